package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"blogclient/internal/api"
	"blogclient/internal/devapi"
	"blogclient/internal/logging"
	"blogclient/internal/session"
)

const shutdownTimeout = 10 * time.Second

func newApp() *cli.App {
	return &cli.App{
		Name:  "blog",
		Usage: "Blog web client and development backend",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML config file",
				EnvVars: []string{"BLOG_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			devAPICommand(),
			logoutCommand(),
		},
		Before: func(c *cli.Context) error {
			// A missing .env is fine.
			godotenv.Load()

			cfg, err := loadConfig(c.String("config"))
			if err != nil {
				return err
			}
			c.App.Metadata["config"] = cfg
			c.App.Metadata["logger"] = logging.New(logging.Config{
				Level:  cfg.Log.Level,
				Format: cfg.Log.Format,
			})
			return nil
		},
	}
}

func appConfig(c *cli.Context) Config {
	cfg, _ := c.App.Metadata["config"].(Config)
	return cfg
}

func appLogger(c *cli.Context) *slog.Logger {
	if log, ok := c.App.Metadata["logger"].(*slog.Logger); ok {
		return log
	}
	return slog.Default()
}

// openStore opens the persisted session, or an in-memory one when path is
// empty or ":memory:".
func openStore(path string) (session.Store, func() error, error) {
	if path == "" || path == ":memory:" {
		return session.NewMemoryStore(), func() error { return nil }, nil
	}
	store, err := session.OpenSQLite(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening session store: %w", err)
	}
	return store, store.Close, nil
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the web front end",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "listen address (overrides http.addr)"},
			&cli.StringFlag{Name: "api-url", Usage: "backend API root (overrides api.url)"},
		},
		Action: func(c *cli.Context) error {
			cfg := appConfig(c)
			log := appLogger(c)
			if c.IsSet("addr") {
				cfg.HTTP.Addr = c.String("addr")
			}
			if c.IsSet("api-url") {
				cfg.API.URL = c.String("api-url")
			}

			store, closeStore, err := openStore(cfg.Session.Path)
			if err != nil {
				return err
			}
			defer closeStore()

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

			client := api.New(cfg.API.URL, store,
				api.WithHTTPClient(&http.Client{Timeout: cfg.API.Timeout}),
				api.WithLogger(log),
				api.WithMetrics(api.NewMetrics(reg)),
				api.WithSessionExpiredHook(func(ctx context.Context) {
					log.Info("session expired, sign-in required", "request_id", api.RequestID(ctx))
				}),
			)

			blog := NewBlog(client, cfg.Posts.PageSize, log)
			blog.secureCookies = cfg.HTTP.SecureCookies

			srv := &http.Server{
				Addr:              cfg.HTTP.Addr,
				Handler:           blog.routes(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
				ReadHeaderTimeout: 10 * time.Second,
			}

			log.Info("server starting", "addr", cfg.HTTP.Addr, "api", client.BaseURL())
			return runUntilSignal(c.Context, log, srv.ListenAndServe, srv.Shutdown)
		},
	}
}

func devAPICommand() *cli.Command {
	return &cli.Command{
		Name:  "devapi",
		Usage: "Run the development REST backend",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "listen address (overrides devapi.addr)"},
			&cli.BoolFlag{Name: "no-seed", Usage: "do not create the demo user and posts"},
		},
		Action: func(c *cli.Context) error {
			cfg := appConfig(c)
			log := appLogger(c)
			if c.IsSet("addr") {
				cfg.DevAPI.Addr = c.String("addr")
			}

			db, err := devapi.OpenDB(cfg.DevAPI.DB)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer db.Close()

			if !c.Bool("no-seed") {
				if err := devapi.Seed(db, cfg.DevAPI.SeedUser, cfg.DevAPI.SeedPass); err != nil {
					return fmt.Errorf("seeding database: %w", err)
				}
			}

			if n, err := devapi.CleanupExpiredTokens(db); err != nil {
				log.Warn("cleaning up expired tokens", "error", err)
			} else if n > 0 {
				log.Info("removed expired tokens", "count", n)
			}

			srv := devapi.New(db, devapi.Config{
				AccessTTL:  cfg.DevAPI.AccessTTL,
				RefreshTTL: cfg.DevAPI.RefreshTTL,
				Paginate:   cfg.DevAPI.Paginate,
				PageSize:   cfg.DevAPI.PageSize,
				LoginRate:  cfg.DevAPI.LoginRate,
			}, log)

			janitorCtx, cancel := context.WithCancel(c.Context)
			defer cancel()
			go srv.RunJanitor(janitorCtx, time.Hour)

			log.Info("devapi starting", "addr", cfg.DevAPI.Addr)
			return runUntilSignal(c.Context, log,
				func() error { return srv.Start(cfg.DevAPI.Addr) },
				srv.Shutdown,
			)
		},
	}
}

func logoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "Forget the persisted session",
		Action: func(c *cli.Context) error {
			cfg := appConfig(c)

			store, closeStore, err := openStore(cfg.Session.Path)
			if err != nil {
				return err
			}
			defer closeStore()

			if err := store.Forget(c.Context); err != nil {
				return fmt.Errorf("clearing session: %w", err)
			}
			appLogger(c).Info("session cleared", "path", cfg.Session.Path)
			return nil
		},
	}
}

// runUntilSignal runs start until it fails or the process is signalled,
// then calls shutdown with a bounded context.
func runUntilSignal(parent context.Context, log *slog.Logger, start func() error, shutdown func(context.Context) error) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- start()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return shutdown(shutdownCtx)
}
