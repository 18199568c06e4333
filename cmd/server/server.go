package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/Simplici0/bakecost/internal/catalog"
	"github.com/Simplici0/bakecost/internal/metrics"
	"github.com/Simplici0/bakecost/internal/store"
)

const maxBodyBytes = 1 << 20

type server struct {
	auth    *authService
	catalog *catalog.Service
	metrics *metrics.Metrics
	log     *zap.Logger
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.metrics.Middleware)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(s.authMiddleware)

	r.Get("/", s.handleHome)
	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	r.Post("/login", s.handleLogin)
	r.Post("/logout", s.handleLogout)

	r.Route("/ingredients", func(r chi.Router) {
		r.Get("/", s.handleIngredientsList)
		r.Post("/", s.handleIngredientsCreate)
		r.Get("/{id}", s.handleIngredientGet)
		r.Put("/{id}", s.handleIngredientUpdate)
		r.Delete("/{id}", s.handleIngredientDelete)
		r.Get("/{id}/history", s.handleIngredientHistory)
	})

	r.Route("/recipes", func(r chi.Router) {
		r.Get("/", s.handleRecipesList)
		r.Post("/", s.handleRecipesCreate)
		r.Get("/{id}", s.handleRecipeGet)
		r.Put("/{id}", s.handleRecipeUpdate)
		r.Delete("/{id}", s.handleRecipeDelete)
		r.Get("/{id}/history", s.handleRecipeHistory)
		r.Get("/{id}/text", s.handleRecipeText)
	})

	r.Post("/quote", s.handleQuote)

	return r
}

func (s *server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.log.Info("request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *server) handleHome(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Welcome to the bakecost recipe costing API"})
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.catalog.Ping(r.Context()); err != nil {
		s.log.Error("health check", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps catalog, store and pricing errors to a status.
func (s *server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case catalog.IsInputError(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrInUse):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.log.Error("request failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func (s *server) parseMode(w http.ResponseWriter, r *http.Request) (catalog.TotalMode, bool) {
	mode, err := catalog.ParseTotalMode(r.URL.Query().Get("mode"), s.catalog.DefaultMode())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return mode, true
}
