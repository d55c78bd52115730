// Package server exposes the analysis pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mickamy/xadvise/internal/advisor"
	"github.com/mickamy/xadvise/internal/config"
	"github.com/mickamy/xadvise/internal/engine"
	"github.com/mickamy/xadvise/internal/logging"
	"github.com/mickamy/xadvise/internal/logs"
	"github.com/mickamy/xadvise/internal/recommend"
)

// Server holds the handlers' shared dependencies.
type Server struct {
	advisor     *advisor.Advisor
	db          *engine.Postgres
	recommender *recommend.Client
	logs        *logs.Analyzer
	version     string
}

// New builds a server around an assembled pipeline.
func New(adv *advisor.Advisor, db *engine.Postgres, recommender *recommend.Client, logAnalyzer *logs.Analyzer, version string) *Server {
	return &Server{
		advisor:     adv,
		db:          db,
		recommender: recommender,
		logs:        logAnalyzer,
		version:     version,
	}
}

// Router assembles the chi router with all routes and middleware.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(recoverMiddleware)
	r.Use(requestIDMiddleware)
	r.Use(corsMiddleware)

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Get("/health/full", s.handleFullHealth)
	r.Post("/analyze", s.handleAnalyze)
	r.Get("/examples", s.handleExamples)

	r.Route("/cache", func(r chi.Router) {
		r.Get("/stats", s.handleCacheStats)
		r.Post("/clear", s.handleCacheClear)
		r.Post("/warmup", s.handleCacheWarmup)
		r.Post("/test", s.handleCacheTest)
	})

	r.Route("/database", func(r chi.Router) {
		r.Get("/info", s.handleDatabaseInfo)
		r.Post("/test", s.handleDatabaseTest)
	})

	r.Get("/tables/statistics", s.handleTableStatistics)
	r.Get("/logs/analyze", s.handleLogsAnalyze)
	r.Get("/config/analyze", s.handleConfigAnalyze)

	r.Route("/models", func(r chi.Router) {
		r.Get("/", s.handleModels)
		r.Post("/switch", s.handleModelSwitch)
	})

	return r
}

// ListenAndServe runs the HTTP server until ctx is canceled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logging.Logger.Error("panic in handler", "path", r.URL.Path, "panic", rec)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), requestID)))
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origins := config.Active().Server.CORSOrigins
		origin := r.Header.Get("Origin")
		if origin != "" && (slices.Contains(origins, "*") || slices.Contains(origins, origin)) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.Logger.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
