package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/m3rciful/aiobot/core/logger"
)

// healthServer answers liveness probes while the bot is running.
type healthServer struct {
	srv *http.Server
}

func newHealthServer(listen string) *healthServer {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Bot is running!"))
	})
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	})
	return &healthServer{
		srv: &http.Server{
			Addr:              listen,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start serves in the background until Stop is called.
func (h *healthServer) Start(ctx context.Context) {
	go func() {
		logger.Info(ctx, "health", "listening", slog.String("listen", h.srv.Addr))
		if err := h.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "health", "serve_failed", slog.String("err", err.Error()))
		}
	}()
}

// Stop shuts the listener down gracefully.
func (h *healthServer) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return h.srv.Shutdown(shutdownCtx)
}
