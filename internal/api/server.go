// Package api exposes the acquisition pipeline over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/propscout/propscout/internal/acquire"
	"github.com/propscout/propscout/internal/reqctx"
	"github.com/propscout/propscout/internal/sites"
	"github.com/propscout/propscout/pkg/models"
)

// Acquirer is the pipeline surface the API needs.
type Acquirer interface {
	Acquire(ctx context.Context, rawURL string, mode models.FetchMode) (*models.PropertyRecord, error)
	Stats() acquire.Stats
}

// Server serves the acquisition API.
type Server struct {
	ctrl Acquirer
}

// NewServer creates a Server over the given pipeline.
func NewServer(ctrl Acquirer) *Server {
	return &Server{ctrl: ctrl}
}

// Router builds the HTTP routes with logging, recovery and CORS.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Post("/properties/scrape", s.handleScrape)
		r.Get("/sites", s.handleSites)
		r.Get("/stats", s.handleStats)
	})
	return r
}

type scrapeRequest struct {
	URL  string `json:"url"`
	Mode string `json:"mode,omitempty"`
}

type errorBody struct {
	Code       acquire.Code `json:"code"`
	Message    string       `json:"message"`
	Suggestion string       `json:"suggestion,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: errorBody{
			Code:    acquire.CodeInvalidURL,
			Message: "request body must be JSON with a non-empty url field",
		}})
		return
	}

	mode := models.FetchMode(req.Mode)
	if mode == "" {
		mode = models.ModeAuto
	}

	rec, err := s.ctrl.Acquire(r.Context(), req.URL, mode)
	if err != nil {
		writeAcquireError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleSites(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]models.Site{"sites": sites.Supported()})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Stats())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeAcquireError maps pipeline error codes to HTTP statuses:
// validation 400, unsupported site 422, solve timeout 504, everything
// else upstream-flavored 502.
func writeAcquireError(w http.ResponseWriter, err error) {
	body := errorBody{Code: acquire.CodeFetchFailed, Message: err.Error()}
	var ae *acquire.Error
	if errors.As(err, &ae) {
		body = errorBody{Code: ae.Code, Message: ae.Message, Suggestion: ae.Suggestion}
	}

	status := http.StatusBadGateway
	switch body.Code {
	case acquire.CodeInvalidURL, acquire.CodeProtocolNotAllowed, acquire.CodeSSRFBlocked:
		status = http.StatusBadRequest
	case acquire.CodeUnsupportedSite:
		status = http.StatusUnprocessableEntity
	case acquire.CodeSolveTimeout:
		status = http.StatusGatewayTimeout
	}
	writeJSON(w, status, errorResponse{Error: body})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

// requestLogger tags the request context with an id and logs one
// structured event per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := reqctx.WithRequestContext(r.Context())
		rc := reqctx.GetRequestContext(ctx)
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))
		log.Info().
			Str("request_id", rc.RequestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(rc.StartTime)).
			Msg("request handled")
	})
}
