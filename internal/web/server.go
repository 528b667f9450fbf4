// Package web serves the radar client: server-rendered views over the
// remote REST API, with session handling and route guarding.
package web

import (
	"context"
	"embed"
	"errors"
	"net/http"
	"sync"
	"time"

	"radar/internal/api"
	"radar/internal/config"
	"radar/internal/models"
	"radar/internal/observability"
	"radar/internal/session"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/template/html/v2"
	"github.com/redis/go-redis/v9"
)

//go:embed templates/*.html templates/layouts/*.html
var templatesFS embed.FS

var (
	promOnce sync.Once
	promMW   *fiberprometheus.FiberPrometheus
)

// initMetrics creates the Prometheus middleware once per process.
func initMetrics() *fiberprometheus.FiberPrometheus {
	promOnce.Do(func() {
		promMW = fiberprometheus.New("radar-web")
	})
	return promMW
}

// Server holds all dependencies and provides handlers.
type Server struct {
	config   *config.Config
	api      *api.Client
	sessions *session.Manager
	redis    *redis.Client
	prom     *fiberprometheus.FiberPrometheus
	app      *fiber.App
}

// NewServer creates a server instance with all dependencies.
func NewServer(cfg *config.Config) (*Server, error) {
	client, err := api.New(cfg.APIBaseURL, cfg.UpstreamTimeout)
	if err != nil {
		return nil, err
	}

	var store session.Store
	var redisClient *redis.Client
	if cfg.SessionStore == "redis" {
		redisClient, err = session.NewRedisClient(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		store = session.NewRedisStore(redisClient)
	} else {
		store = session.NewMemoryStore()
	}

	return &Server{
		config:   cfg,
		api:      client,
		sessions: session.NewManager(client, store, cfg.SessionTTL),
		redis:    redisClient,
		prom:     initMetrics(),
	}, nil
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Use this in tests.
func NewServerWithDeps(cfg *config.Config, client *api.Client, sessions *session.Manager) *Server {
	return &Server{
		config:   cfg,
		api:      client,
		sessions: sessions,
	}
}

// App builds the Fiber application with middleware and routes configured.
func (s *Server) App() *fiber.App {
	engine := html.NewFileSystem(http.FS(templatesFS), ".html")

	app := fiber.New(fiber.Config{
		AppName:     "radar web",
		Views:       engine,
		ViewsLayout: "templates/layouts/main",
		BodyLimit:   10 * 1024 * 1024, // matches the backend's upload limit
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var fiberErr *fiber.Error
			if errors.As(err, &fiberErr) {
				code = fiberErr.Code
			}
			observability.Logger.ErrorContext(c.UserContext(), "unhandled error",
				"path", c.Path(), "status", code, "error", err)
			return c.Status(code).Render(
				"templates/error", fiber.Map{"Message": "Something went wrong"})
		},
	})
	s.app = app

	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

// SetupMiddleware configures middleware for the Fiber app.
func (s *Server) SetupMiddleware(app *fiber.App) {
	// Panic recovery
	app.Use(recover.New())

	// Request ID for log correlation
	app.Use(requestid.New())

	// Security headers
	app.Use(helmet.New())

	// Prometheus metrics
	if s.prom != nil {
		app.Use(s.prom.Middleware)
	}

	// Global rate limiting (120 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        120,
		Expiration: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).Render(
				"templates/error", fiber.Map{"Message": "Too many requests, please try again later."})
		},
	}))

	// Session resolution + context propagation, then request logging so the
	// logger sees session and user IDs.
	app.Use(s.SessionMiddleware())
	app.Use(StructuredLogger())
}

// SetupRoutes configures all routes for the application.
func (s *Server) SetupRoutes(app *fiber.App) {
	// Health checks
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)

	// Metrics endpoint for Prometheus
	if s.prom != nil {
		s.prom.RegisterAt(app, "/metrics")
	}

	// Public views; authenticated visitors are sent to the feed.
	app.Get("/", s.RedirectAuthenticated(), s.Landing)
	app.Get("/welcome", s.Landing)
	app.Get("/login", s.RedirectAuthenticated(), s.LoginPage)
	app.Post("/login", s.RedirectAuthenticated(), s.LoginSubmit)
	app.Get("/signup", s.RedirectAuthenticated(), s.SignupPage)
	app.Post("/signup", s.RedirectAuthenticated(), s.SignupSubmit)
	app.Post("/logout", s.Logout)

	// Guarded views
	guarded := app.Group("", s.RequireAuth())
	guarded.Get("/feed", s.Feed)
	guarded.Post("/posts", s.CreatePost)
	guarded.Post("/posts/:id/delete", s.DeletePost)
	guarded.Get("/profile/:id", s.Profile)
	guarded.Post("/profile", s.UpdateProfile)
	guarded.Post("/account/delete", s.DeleteAccount)
}

// LivenessCheck handles liveness probe requests.
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck reports whether the backend and session store are reachable.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	upstreamStatus := "healthy"
	if err := s.api.Ping(ctx); err != nil && models.IsTransportError(err) {
		upstreamStatus = "unhealthy"
	}

	sessionStatus := "healthy"
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			sessionStatus = "unhealthy"
		}
	}

	status := fiber.StatusOK
	overall := "healthy"
	if upstreamStatus != "healthy" || sessionStatus != "healthy" {
		status = fiber.StatusServiceUnavailable
		overall = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overall,
		"checks": fiber.Map{
			"upstream": upstreamStatus,
			"sessions": sessionStatus,
		},
		"time": time.Now(),
	})
}

// Start starts the server.
func (s *Server) Start() error {
	app := s.App()
	observability.Logger.Info("server starting", "port", s.config.Port)
	return app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			observability.Logger.Error("error shutting down HTTP server", "error", err)
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			observability.Logger.Error("error closing redis", "error", err)
		}
	}
	observability.Logger.Info("server shutdown complete")
	return nil
}
