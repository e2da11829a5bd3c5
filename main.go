package main

import (
	"html/template"
	"log/slog"
	"net/http"
	"os"

	"blogclient/internal/api"
)

type Blog struct {
	api           *api.Client
	templates     map[string]*template.Template
	log           *slog.Logger
	perPage       int
	secureCookies bool
}

func NewBlog(client *api.Client, perPage int, log *slog.Logger) *Blog {
	return &Blog{
		api:       client,
		templates: loadTemplates(),
		log:       log,
		perPage:   perPage,
	}
}

// routes builds the front end's handler. metrics is mounted at /metrics
// when not nil.
func (b *Blog) routes(metrics http.Handler) http.Handler {
	mux := http.NewServeMux()

	// Public routes
	mux.HandleFunc("GET /{$}", b.Home)
	mux.HandleFunc("GET /blog", b.BlogList)
	mux.HandleFunc("GET /posts/{id}", b.Detail)
	mux.HandleFunc("GET /login", b.Login)
	mux.HandleFunc("POST /login", b.Login)
	mux.HandleFunc("GET /register", b.Register)
	mux.HandleFunc("POST /register", b.Register)
	mux.HandleFunc("POST /logout", b.Logout)

	// Protected routes
	mux.HandleFunc("GET /posts/create", b.requireAuth(b.Create))
	mux.HandleFunc("POST /posts/create", b.requireAuth(b.Create))
	mux.HandleFunc("GET /posts/{id}/edit", b.requireAuth(b.Edit))
	mux.HandleFunc("POST /posts/{id}/edit", b.requireAuth(b.Edit))
	mux.HandleFunc("POST /posts/{id}/delete", b.requireAuth(b.Delete))

	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}
	mux.HandleFunc("/", b.NotFound)

	return withRequestID(withRequestLogging(mux, b.log))
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		slog.Error("blog failed", "error", err)
		os.Exit(1)
	}
}
