package web

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/hpungsan/tabula/internal/config"
	"github.com/hpungsan/tabula/internal/review"
)

//go:embed templates/*.html templates/*.md
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// Deps are the collaborators the web UI drives.
type Deps struct {
	Machine  *review.Machine
	Resolver review.ConsentResolver
	DB       *sql.DB

	// Roots are the library roots photos may be served from.
	Roots []string
}

// NewServer creates and configures the HTTP server for the Tabula review UI.
func NewServer(deps Deps, cfg *config.Config, version, bind string, port int) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", bind, port),
		Handler:           NewRouter(deps, cfg, version),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// NewRouter builds the route tree. Split from NewServer so tests can serve it directly.
func NewRouter(deps Deps, cfg *config.Config, version string) http.Handler {
	// Create sub-FS for templates (strip "templates/" prefix)
	templateSub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create template sub-FS")
	}

	// Create sub-FS for static files (strip "static/" prefix)
	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create static sub-FS")
	}

	h := &Handlers{
		machine:  deps.Machine,
		resolver: deps.Resolver,
		db:       deps.DB,
		cfg:      cfg,
		roots:    deps.Roots,
		renderer: NewRenderer(templateSub, version),
	}

	r := chi.NewRouter()
	r.Use(requestLogger)
	r.Use(securityHeaders)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/review", http.StatusFound)
	})
	r.Get("/review", h.HandleReview)
	r.Get("/trash", h.HandleTrash)
	r.Get("/settings", h.HandleSettings)
	r.Get("/about", h.HandleAbout)
	r.Get("/photos/{id}", h.HandlePhoto)
	r.Get("/ws", h.HandleStream)

	// Mutations are throttled per client
	r.Group(func(r chi.Router) {
		r.Use(rateLimit(20, 40))
		r.Post("/review/next", h.HandleNext)
		r.Post("/review/previous", h.HandlePrevious)
		r.Post("/review/mark", h.HandleMark)
		r.Post("/review/refresh", h.HandleRefresh)
		r.Post("/review/rescan", h.HandleRescan)
		r.Post("/trash/restore", h.HandleRestore)
		r.Post("/trash/delete", h.HandleDelete)
		r.Post("/trash/burn", h.HandleBurn)
		r.Post("/consent/{handle}", h.HandleConsent)
		r.Post("/settings", h.HandleSaveSettings)
	})

	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServerFS(staticSub)))

	return r
}

// Run starts the HTTP server and handles graceful shutdown on SIGINT/SIGTERM.
func Run(srv *http.Server) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	log.Info().Msgf("Tabula UI running at http://%s", srv.Addr)

	if strings.Contains(srv.Addr, "0.0.0.0") || strings.Contains(srv.Addr, "::") {
		log.Warn().Msg("server is binding to all interfaces and may be accessible from the network")
	}

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		log.Info().Msg("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}
