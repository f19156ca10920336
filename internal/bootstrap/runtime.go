// Package bootstrap wires the process-wide runtime shared by the commands.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"yatube/internal/cache"
	"yatube/internal/config"
	"yatube/internal/database"
	"yatube/internal/models"
	"yatube/internal/seed"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	ApplySchema bool
	SeedGroups  bool
}

// InitRuntime connects to DB and Redis, applies the schema and optionally
// upserts the built-in groups.
func InitRuntime(ctx context.Context, cfg *config.Config, opts Options) (*gorm.DB, *redis.Client, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	if opts.ApplySchema {
		if err := database.ApplySchema(ctx, db, cfg); err != nil {
			return nil, nil, fmt.Errorf("apply schema: %w", err)
		}
	}

	// Init Redis (may result in nil client if unreachable)
	r := cache.InitRedis(cfg.RedisURL)

	if err := ensureDevAdmin(ctx, cfg, db); err != nil {
		return nil, nil, fmt.Errorf("failed to bootstrap development admin: %w", err)
	}

	if opts.SeedGroups {
		fixtures, err := seed.DefaultGroups()
		if err != nil {
			return nil, nil, err
		}
		if _, err := seed.Groups(ctx, db, fixtures); err != nil {
			return nil, nil, fmt.Errorf("failed to seed built-in groups: %w", err)
		}
	}

	return db, r, nil
}

// ensureDevAdmin creates or promotes the development administrator when
// DEV_ADMIN_PASSWORD is set. Outside development it does nothing.
func ensureDevAdmin(ctx context.Context, cfg *config.Config, db *gorm.DB) error {
	if cfg == nil || db == nil {
		return nil
	}
	if !strings.EqualFold(cfg.Env, "development") || cfg.DevAdminPassword == "" {
		return nil
	}

	username := strings.TrimSpace(cfg.DevAdminUsername)
	if username == "" {
		username = "admin"
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var admin models.User
		err := tx.Where("username = ?", username).First(&admin).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			hash, err := bcrypt.GenerateFromPassword([]byte(cfg.DevAdminPassword), bcrypt.DefaultCost)
			if err != nil {
				return fmt.Errorf("hash admin password: %w", err)
			}
			admin = models.User{
				Username: username,
				Email:    username + "@yatube.local",
				Password: string(hash),
				IsAdmin:  true,
			}
			if err := tx.Create(&admin).Error; err != nil {
				return err
			}
			log.Printf("development admin %q created", username)
		case err != nil:
			return err
		case !admin.IsAdmin:
			if err := tx.Model(&admin).Update("is_admin", true).Error; err != nil {
				return err
			}
			log.Printf("development admin %q promoted", username)
		}
		return nil
	})
}
