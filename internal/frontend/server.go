// Package frontend assembles the HTTP server: router, middleware
// stack, API mounting, and graceful shutdown.
package frontend

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v2"

	"github.com/chemcloud-org/chemcloud/internal/config"
	"github.com/chemcloud-org/chemcloud/internal/frontend/api"
	"github.com/chemcloud-org/chemcloud/internal/logger"
)

// Server is the gateway HTTP server.
type Server struct {
	cfg        *config.Config
	api        *api.API
	runner     *Runner
	httpServer *http.Server
}

// NewServer wires the server. The runner must be the same one handed
// to the API as its Deferrer.
func NewServer(cfg *config.Config, a *api.API, runner *Runner) *Server {
	return &Server{cfg: cfg, api: a, runner: runner}
}

// Serve blocks until ctx is cancelled, then shuts down gracefully and
// drains the background runner.
func (srv *Server) Serve(ctx context.Context) error {
	requestLogger := httplog.NewLogger("http", httplog.Options{
		LogLevel:         slog.LevelInfo,
		JSON:             srv.cfg.LogFormat == "json",
		Concise:          true,
		MessageFieldName: "msg",
	})

	r := chi.NewMux()
	r.Use(middleware.RealIP)
	r.Use(httplog.RequestLogger(requestLogger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	r.Route(srv.cfg.APIV2Str, func(r chi.Router) {
		srv.api.ConfigureRoutes(r)
	})

	r.Get("/openapi.json", srv.api.HandleOpenAPI())
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/openapi.json", http.StatusSeeOther)
	})
	r.Get("/hello-world", func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("name")
		if name == "" {
			name = "friend"
		}
		writeGreeting(w, name)
	})

	addr := net.JoinHostPort(srv.cfg.Host, strconv.Itoa(srv.cfg.Port))
	srv.httpServer = &http.Server{
		Handler:           r,
		Addr:              addr,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "server starting", "addr", addr)
		if err := srv.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		srv.runner.Stop()
		return err
	case <-ctx.Done():
	}

	logger.Info(ctx, "server shutting down", "addr", addr)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := srv.httpServer.Shutdown(shutdownCtx)
	srv.runner.Stop()
	return err
}

func writeGreeting(w http.ResponseWriter, name string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = fmt.Fprintf(w, "%q", "Welcome to ChemCloud, "+name+"!")
}
