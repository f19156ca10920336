// Package server contains the HTTP handlers and routing for the blog.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"yatube/internal/cache"
	"yatube/internal/config"
	"yatube/internal/database"
	"yatube/internal/events"
	"yatube/internal/featureflags"
	"yatube/internal/middleware"
	"yatube/internal/models"
	"yatube/internal/observability"
	"yatube/internal/repository"
	"yatube/internal/service"
	"yatube/internal/storage"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	sessions       *middleware.SessionManager
	rateLimiter    *middleware.RateLimiter
	pageCache      cache.PageStore
	featureFlags   *featureflags.Manager
	imageStore     storage.ImageStore
	publisher      events.Publisher
	userRepo       repository.UserRepository
	postService    *service.PostService
	commentService *service.CommentService
	followService  *service.FollowService
	userService    *service.UserService
}

// Option overrides a dependency that NewServerWithDeps would otherwise build from config.
type Option func(*Server)

// WithImageStore uses store for uploaded images.
func WithImageStore(store storage.ImageStore) Option {
	return func(s *Server) { s.imageStore = store }
}

// WithPublisher uses p for domain events.
func WithPublisher(p events.Publisher) Option {
	return func(s *Server) { s.publisher = p }
}

// NewServer creates a new server instance with all dependencies
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	redisClient := cache.InitRedis(cfg.RedisURL)

	return NewServerWithDeps(cfg, db, redisClient)
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// redisClient may be nil; page cache and session revocation then stay in process.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, opts ...Option) (*Server, error) {
	s := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: middleware.InitMetrics(observability.ServiceName),
		featureFlags:   featureflags.NewManager(cfg.FeatureFlags),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.imageStore == nil {
		store, err := storage.New(context.Background(), cfg)
		if err != nil {
			return nil, fmt.Errorf("image storage: %w", err)
		}
		s.imageStore = store
	}
	if s.publisher == nil {
		s.publisher = newPublisher(cfg)
	}
	publisher := events.NewGated(s.publisher, func(actorID uint) bool {
		return s.featureFlags.EnabledOr(featureflags.Events, actorID, true)
	})

	s.sessions = middleware.NewSessionManager(cfg, cache.NewRevocations(redisClient, cfg.SessionTTL()))
	s.rateLimiter = middleware.NewRateLimiter(redisClient, cfg.Env)
	if ttl := cfg.PageCacheTTL(); ttl > 0 {
		s.pageCache = cache.NewPageStore(redisClient, cfg.PageCacheSize, ttl)
	}

	userRepo := repository.NewUserRepository(db)
	postRepo := repository.NewPostRepository(db)
	groupRepo := repository.NewGroupRepository(db)
	commentRepo := repository.NewCommentRepository(db)
	followRepo := repository.NewFollowRepository(db)
	images := service.NewImageService(s.imageStore, cfg)

	s.userRepo = userRepo
	s.postService = service.NewPostService(postRepo, groupRepo, userRepo, commentRepo, followRepo, images, publisher, cfg.PostsPerPage)
	s.commentService = service.NewCommentService(commentRepo, postRepo, publisher)
	s.followService = service.NewFollowService(followRepo, userRepo, publisher)
	s.userService = service.NewUserService(userRepo)

	return s, nil
}

func newPublisher(cfg *config.Config) events.Publisher {
	if strings.TrimSpace(cfg.NATSURL) == "" {
		return events.Noop{}
	}
	p, err := events.Connect(cfg.NATSURL)
	if err != nil {
		middleware.Logger.Warn("NATS unavailable, events disabled", slog.String("error", err.Error()))
		return events.Noop{}
	}
	return p
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.TracingMiddleware())

	// Session must load before ContextMiddleware copies the user ID into the request context.
	if s.sessions != nil {
		app.Use(s.sessions.LoadSession())
	}
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	app.Use(helmet.New(helmet.Config{
		CrossOriginEmbedderPolicy: "unsafe-none",
	}))
	app.Use(middleware.StructuredLogger())

	// CORS runs before the limiter so throttled responses still carry CORS headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:8000,http://127.0.0.1:8000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: origins != "*",
		MaxAge:           86400,
	}))

	if s.config.RateLimitPerMinute > 0 {
		app.Use(limiter.New(limiter.Config{
			Max:        s.config.RateLimitPerMinute,
			Expiration: 1 * time.Minute,
			Next: func(c *fiber.Ctx) bool {
				return c.Method() == fiber.MethodOptions || strings.HasPrefix(c.Path(), "/health")
			},
			KeyGenerator: func(c *fiber.Ctx) string {
				return c.IP()
			},
			LimitReached: func(c *fiber.Ctx) error {
				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
					"error": "Too many requests, please try again later.",
				})
			},
		}))
	}
}

// SetupRoutes configures all routes for the application.
// Fixed first segments are registered before the catch-all username routes.
func (s *Server) SetupRoutes(app *fiber.App) {
	login := middleware.LoginRequired(s.config.LoginURL)

	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}
	if s.config.ImageStorage == "local" && s.config.ImageUploadDir != "" {
		app.Static(strings.TrimSuffix(s.config.MediaURL, "/"), s.config.ImageUploadDir, fiber.Static{
			ByteRange:     true,
			CacheDuration: 10 * time.Minute,
		})
	}

	app.Get("/", s.CachePage(), s.Index)

	auth := app.Group("/auth")
	signupLimit := s.rateLimiter.Limit("signup", 5, 10*time.Minute, middleware.FailOpen)
	loginLimit := s.rateLimiter.Limit("login", 10, 5*time.Minute, middleware.FailOpen)
	auth.Get("/signup/", s.SignupForm)
	auth.Post("/signup/", signupLimit, s.Signup)
	auth.Get("/login/", s.LoginForm)
	auth.Post("/login/", loginLimit, s.Login)
	auth.Get("/logout/", s.Logout)
	auth.Post("/logout/", s.Logout)

	about := app.Group("/about")
	about.Get("/author/", s.AboutAuthor)
	about.Get("/tech/", s.AboutTech)

	admin := app.Group("/admin", login, s.AdminRequired())
	admin.Get("/feature-flags/", s.GetFeatureFlags)

	app.Get("/group/:slug/", s.GroupPosts)
	app.Get("/new/", login, s.NewPostForm)
	app.Post("/new/", login, s.rateLimiter.Limit("create_post", 10, time.Minute, middleware.FailOpen), s.CreatePost)
	app.Get("/follow/", login, s.FollowIndex)

	// Specific /:username/<action>/ routes before the post detail route.
	app.Get("/:username/follow/", login, s.ProfileFollow)
	app.Post("/:username/follow/", login, s.ProfileFollow)
	app.Get("/:username/unfollow/", login, s.ProfileUnfollow)
	app.Post("/:username/unfollow/", login, s.ProfileUnfollow)
	app.Get("/:username/:postID<int>/edit/", login, s.EditPostForm)
	app.Post("/:username/:postID<int>/edit/", login, s.EditPost)
	app.Post("/:username/:postID<int>/comment/", login,
		s.rateLimiter.Limit("create_comment", 30, time.Minute, middleware.FailOpen), s.AddComment)
	app.Get("/:username/:postID<int>/", s.PostView)
	app.Get("/:username/", s.Profile)
}

// App builds the Fiber application once and returns it.
func (s *Server) App() *fiber.App {
	if s.app != nil {
		return s.app
	}
	bodyLimitMB := s.config.ImageMaxUploadSizeMB
	if bodyLimitMB <= 0 {
		bodyLimitMB = service.DefaultImageMaxUploadSizeMB
	}
	app := fiber.New(fiber.Config{
		AppName:      "yatube",
		BodyLimit:    (bodyLimitMB + 1) * 1024 * 1024,
		ErrorHandler: s.errorHandler,
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	s.app = app
	return app
}

// errorHandler renders the JSON not-found and server-error pages.
func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		if fe.Code == fiber.StatusNotFound {
			return s.notFoundPage(c)
		}
		if fe.Code < fiber.StatusInternalServerError {
			return models.RespondWithError(c, fe.Code, err)
		}
	}

	var appErr *models.AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case models.CodeNotFound:
			return s.notFoundPage(c)
		case models.CodeInternal:
		default:
			return models.RespondWithError(c, appErr.Status(), appErr)
		}
	}

	middleware.Logger.ErrorContext(c.UserContext(), "unhandled error",
		slog.String("path", c.Path()),
		slog.String("error", err.Error()),
	)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Internal Server Error",
		"code":  models.CodeInternal,
	})
}

func (s *Server) notFoundPage(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error": "Not Found",
		"code":  models.CodeNotFound,
		"path":  c.Path(),
	})
}

// Start starts the server
func (s *Server) Start() error {
	app := s.App()
	middleware.Logger.Info("Server starting", slog.String("port", s.config.Port))
	return app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			middleware.Logger.Error("error shutting down HTTP server", slog.String("error", err.Error()))
		}
	}

	if s.publisher != nil {
		s.publisher.Close()
	}

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			middleware.Logger.Error("error closing sql DB", slog.String("error", cerr.Error()))
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			middleware.Logger.Error("error closing redis", slog.String("error", rerr.Error()))
		}
	}

	middleware.Logger.Info("Server shutdown complete")
	return nil
}

// LivenessCheck reports that the process is serving
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck reports whether dependencies are reachable. Redis is optional: without
// it the page cache and session revocations live in process.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	if err := database.Ping(ctx, s.db); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "disabled"
	if s.redis != nil {
		redisStatus = "healthy"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus != "healthy" || redisStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"service": observability.ServiceName,
		"status":  overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}
