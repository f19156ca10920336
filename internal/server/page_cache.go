package server

import (
	"log/slog"

	"yatube/internal/cache"
	"yatube/internal/featureflags"
	"yatube/internal/middleware"
	"yatube/internal/observability"

	"github.com/gofiber/fiber/v2"
)

const cacheHeader = "X-Cache"

// CachePage serves GET responses from the page store keyed by normalized
// path and query. Successful responses are stored until the TTL runs out;
// writes never invalidate an entry.
func (s *Server) CachePage() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if s.pageCache == nil || s.pageCache.TTL() <= 0 || c.Method() != fiber.MethodGet {
			return c.Next()
		}
		if !s.featureFlags.EnabledOr(featureflags.PageCache, middleware.CurrentUserID(c), true) {
			return c.Next()
		}

		ctx := c.UserContext()
		key := cache.NormalizePageKey(c.Path(), string(c.Request().URI().QueryString()))

		page, ok, err := s.pageCache.Get(ctx, key)
		switch {
		case err != nil:
			observability.PageCacheLookups.WithLabelValues("error").Inc()
			middleware.Logger.WarnContext(ctx, "page cache read failed",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		case ok:
			observability.PageCacheLookups.WithLabelValues("hit").Inc()
			c.Set(cacheHeader, "HIT")
			c.Set(fiber.HeaderContentType, page.ContentType)
			return c.Status(fiber.StatusOK).Send(page.Body)
		default:
			observability.PageCacheLookups.WithLabelValues("miss").Inc()
		}

		if err := c.Next(); err != nil {
			return err
		}
		c.Set(cacheHeader, "MISS")
		if c.Response().StatusCode() != fiber.StatusOK {
			return nil
		}

		stored := &cache.Page{
			ContentType: string(c.Response().Header.ContentType()),
			Body:        append([]byte(nil), c.Response().Body()...),
		}
		if err := s.pageCache.Set(ctx, key, stored); err != nil {
			middleware.Logger.WarnContext(ctx, "page cache write failed",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
		return nil
	}
}
