// Package api serves open schedule days over HTTP for an embedding UI. Each
// date is held by its own workflow controller until it is closed.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// DefaultAddr is used when no listen address is configured
const DefaultAddr = ":8080"

var defaultOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// NewRouter creates a router with every route configured
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	if len(allowedOrigins) == 0 {
		allowedOrigins = defaultOrigins
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/schedules", h.ListSchedules)
		r.Get("/staff", h.ListStaff)

		r.Route("/days", func(r chi.Router) {
			r.Get("/", h.ListOpenDays)

			r.Route("/{date}", func(r chi.Router) {
				r.Get("/", h.GetDay)
				r.Delete("/", h.CloseDay)
				r.Post("/steps/{step}/run", h.RunStep)
				r.Post("/steps/{step}/clear", h.ClearStep)
				r.Post("/goto", h.GoTo)
				r.Post("/reset", h.ResetToBaseline)
				r.Post("/undo", h.Undo)
				r.Post("/redo", h.Redo)
				r.Post("/save", h.SaveDay)
				r.Post("/copy", h.CopyDay)
				r.Get("/export", h.ExportDay)

				r.Route("/edits", func(r chi.Router) {
					r.Post("/move-slots", h.MoveSlots())
					r.Post("/discard-slots", h.DiscardSlots())
					r.Post("/assign-slot", h.AssignSlot())
					r.Post("/leave", h.EditLeave())
					r.Post("/split-therapist", h.SplitTherapist())
					r.Post("/merge-therapist", h.MergeTherapist())
					r.Post("/card-color", h.SetCardColor())
					r.Post("/bed-count", h.SetBedCount())
					r.Post("/bed-note", h.SetBedNote())
				})
			})
		})
	})

	return r
}

// requestLogger logs each request at Debug, and at Warn when it failed
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			}
			if ww.Status() >= http.StatusBadRequest {
				logger.Warn("Request failed", fields...)
				return
			}
			logger.Debug("Request served", fields...)
		})
	}
}

// Serve listens on addr until ctx is done, then shuts down gracefully
func Serve(ctx context.Context, addr string, handler http.Handler, logger *zap.Logger) error {
	if addr == "" {
		addr = DefaultAddr
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("API listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to serve: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down API")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return nil
}
