// Package devapi is a small REST backend for local development. It serves
// the auth and post endpoints the front end expects under /api, stores
// everything in SQLite and hands out opaque bearer tokens.
package devapi

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Config controls token lifetimes and response shapes.
type Config struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// Paginate switches GET /posts/ from a bare array to a
	// {count, next, previous, results} envelope.
	Paginate bool
	PageSize int
	// LoginRate is the number of login attempts allowed per minute per
	// client address. Zero disables the limit.
	LoginRate int
}

func DefaultConfig() Config {
	return Config{
		AccessTTL:  5 * time.Minute,
		RefreshTTL: 24 * time.Hour,
		PageSize:   10,
		LoginRate:  10,
	}
}

type Server struct {
	db      *sql.DB
	cfg     Config
	log     *slog.Logger
	limiter *loginLimiter
	echo    *echo.Echo
}

func New(db *sql.DB, cfg Config, log *slog.Logger) *Server {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 10
	}

	s := &Server{
		db:      db,
		cfg:     cfg,
		log:     log,
		limiter: newLoginLimiter(cfg.LoginRate),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Info("devapi.request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"duration_ms", v.Latency.Milliseconds(),
				"request_id", v.RequestID,
			)
			return nil
		},
	}))

	// Credential endpoints ignore any bearer the caller still holds.
	auth := e.Group("/api/auth")
	auth.POST("/login/", s.login)
	auth.POST("/register/", s.register)
	auth.POST("/refresh/", s.refresh)

	posts := e.Group("/api/posts", s.authenticate)
	posts.GET("/", s.listPosts)
	posts.GET("/:id/", s.getPost)
	posts.POST("/", s.createPost, requireUser)
	posts.PUT("/:id/", s.updatePost, requireUser)
	posts.DELETE("/:id/", s.deletePost, requireUser)

	s.echo = e
	return s
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// RunJanitor removes expired tokens and idle rate-limit entries every
// interval until ctx is done.
func (s *Server) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := CleanupExpiredTokens(s.db)
			if err != nil {
				s.log.Error("cleaning up expired tokens", "error", err)
				continue
			}
			if n > 0 {
				s.log.Info("removed expired tokens", "count", n)
			}
			s.limiter.prune(interval)
		}
	}
}
