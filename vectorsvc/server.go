package vectorsvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"parley/memory"
)

const (
	maxBodyBytes    = 10 << 20
	shutdownTimeout = 5 * time.Second
)

// Handler returns the HTTP API. Collectors are registered with reg, which
// also backs GET /metrics.
func (s *Service) Handler(reg *prometheus.Registry) http.Handler {
	m := newMetrics(reg, s)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(s.requestLogger)
	r.Use(m.middleware)

	r.Post("/index", s.handleIndex)
	r.Post("/search", s.handleSearch)
	r.Post("/clear", s.handleClear)
	r.Post("/reset", s.handleReset)
	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return r
}

// ListenAndServe serves h on addr until ctx is cancelled, then shuts down
// gracefully.
func ListenAndServe(ctx context.Context, addr string, h http.Handler, logger zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("vector memory service listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info().Msg("shutting down vector memory service")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Service) handleIndex(w http.ResponseWriter, r *http.Request) {
	var req memory.IndexRequest
	if !decode(w, r, &req) {
		return
	}
	n, err := s.Index(r.Context(), req)
	switch {
	case errors.Is(err, ErrMissingFields), errors.Is(err, ErrNoDocuments):
		writeJSON(w, http.StatusBadRequest, map[string]any{"status": "error", "error": err.Error(), "count": 0})
	case err != nil:
		s.logger.Error().Err(err).Msg("index failed")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"status": "error", "error": err.Error(), "count": 0})
	default:
		writeJSON(w, http.StatusOK, memory.IndexResponse{
			Status:  "success",
			Count:   n,
			Message: fmt.Sprintf("Successfully indexed %d documents", n),
		})
	}
}

func (s *Service) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req memory.SearchRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := s.Search(r.Context(), req)
	switch {
	case errors.Is(err, ErrEmptyQuery):
		writeError(w, http.StatusBadRequest, err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Service) handleClear(w http.ResponseWriter, r *http.Request) {
	var req memory.ClearRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Namespace == "" {
		writeError(w, http.StatusBadRequest, errors.New("no namespace provided"))
		return
	}
	if err := s.Clear(req.Namespace); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "Cleared namespace " + req.Namespace})
}

func (s *Service) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.Reset(); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "All namespaces cleared successfully"})
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Health())
}

func (s *Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Status())
}

func (s *Service) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Str("request_id", chimw.GetReqID(r.Context())).
			Msg("request")
	})
}

// decode reads a JSON body. It writes a 400 and returns false on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("no data provided"))
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, memory.ErrorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
