// Package server exposes the HTTP ingest surface: a webhook that accepts
// OHLC bars and a health probe. Dispatch logic lives in the dispatch
// package; this layer only parses requests.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/bingolead-stack/levelbot/internal/dispatch"
	"github.com/bingolead-stack/levelbot/internal/models"
)

// Server is the HTTP ingest front end.
type Server struct {
	dispatcher *dispatch.Dispatcher
	logger     *logrus.Logger
	httpServer *http.Server
}

// New builds the ingest server listening on addr.
func New(addr string, dispatcher *dispatch.Dispatcher, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	s := &Server{dispatcher: dispatcher, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Post("/webhook", s.handleWebhook)
	r.Get("/health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start serves until ctx is cancelled, then drains with a grace period.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", s.httpServer.Addr).Info("ingest server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down ingest server: %w", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var bar models.Bar
	if err := json.NewDecoder(r.Body).Decode(&bar); err != nil {
		s.logger.WithError(err).Warn("malformed webhook payload")
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "message": "invalid JSON body"})
		return
	}

	if err := s.dispatcher.HandleBar(r.Context(), bar); err != nil {
		if errors.Is(err, dispatch.ErrNoStrategies) {
			s.logger.Error("bar received before strategies initialized")
			writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "message": "strategies not initialized"})
			return
		}
		s.logger.WithError(err).Warn("bar rejected")
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "message": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"strategies": len(s.dispatcher.Strategies()),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
