package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gorm.io/gorm"
)

var (
	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yatube_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "yatube_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// PageCacheLookups counts page cache lookups by result (hit, miss, error).
	PageCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yatube_page_cache_lookups_total",
		Help: "Page cache lookups by result",
	}, []string{"result"})

	// PostsCreated counts newly published posts.
	PostsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "yatube_posts_created_total",
		Help: "Total number of posts published",
	})

	// PostsEdited counts successful post edits.
	PostsEdited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "yatube_posts_edited_total",
		Help: "Total number of posts edited by their authors",
	})

	// CommentsCreated counts comments left under posts.
	CommentsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "yatube_comments_created_total",
		Help: "Total number of comments created",
	})

	// FollowChanges counts follow and unfollow actions that changed state.
	FollowChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yatube_follow_changes_total",
		Help: "Follow graph changes by action",
	}, []string{"action"})

	// ImageUploads counts image uploads by outcome (stored, rejected, failed).
	ImageUploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yatube_image_uploads_total",
		Help: "Image uploads by outcome",
	}, []string{"outcome"})

	// EventsPublished counts domain events handed to the broker by subject and outcome.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yatube_events_published_total",
		Help: "Domain events published by subject and outcome",
	}, []string{"subject", "outcome"})
)

const queryStartKey = "yatube:query_start"

// RegisterQueryMetrics installs GORM callbacks that observe query latency per operation and table.
func RegisterQueryMetrics(db *gorm.DB) error {
	cb := db.Callback()
	hooks := []struct {
		operation string
		before    func(string, func(*gorm.DB)) error
		after     func(string, func(*gorm.DB)) error
	}{
		{"create", cb.Create().Before("gorm:create").Register, cb.Create().After("gorm:create").Register},
		{"query", cb.Query().Before("gorm:query").Register, cb.Query().After("gorm:query").Register},
		{"update", cb.Update().Before("gorm:update").Register, cb.Update().After("gorm:update").Register},
		{"delete", cb.Delete().Before("gorm:delete").Register, cb.Delete().After("gorm:delete").Register},
		{"row", cb.Row().Before("gorm:row").Register, cb.Row().After("gorm:row").Register},
		{"raw", cb.Raw().Before("gorm:raw").Register, cb.Raw().After("gorm:raw").Register},
	}

	for _, h := range hooks {
		operation := h.operation
		if err := h.before("yatube:metrics_before_"+operation, func(tx *gorm.DB) {
			tx.InstanceSet(queryStartKey, time.Now())
		}); err != nil {
			return err
		}
		if err := h.after("yatube:metrics_after_"+operation, func(tx *gorm.DB) {
			v, ok := tx.InstanceGet(queryStartKey)
			if !ok {
				return
			}
			start, ok := v.(time.Time)
			if !ok {
				return
			}
			table := tx.Statement.Table
			if table == "" {
				table = "unknown"
			}
			DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
		}); err != nil {
			return err
		}
	}
	return nil
}
