// Package api exposes the HTTP interface for the shortener service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/shortloop/shortloop/internal/metrics"
	"github.com/shortloop/shortloop/internal/producer"
	"github.com/shortloop/shortloop/internal/shortener"
	"github.com/shortloop/shortloop/internal/stats"
)

// Pinger reports whether a downstream dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wires HTTP handlers to the producer and read paths.
type Server struct {
	router    chi.Router
	producer  *producer.Producer
	urls      shortener.URLStore
	cache     shortener.Cache
	broker    shortener.Broker
	stats     *stats.Aggregator
	publisher shortener.Publisher
	baseURL   string
	pingers   []Pinger
	logger    *zap.Logger
}

// Options carries the Server dependencies.
type Options struct {
	Producer  *producer.Producer
	URLs      shortener.URLStore
	Cache     shortener.Cache
	Broker    shortener.Broker
	Stats     *stats.Aggregator
	Publisher shortener.Publisher
	// BaseURL is the public origin used to build short_url values.
	BaseURL string
	// Pingers are checked by the readiness endpoint.
	Pingers []Pinger
	Logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(opts Options) *Server {
	s := &Server{
		producer:  opts.Producer,
		urls:      opts.URLs,
		cache:     opts.Cache,
		broker:    opts.Broker,
		stats:     opts.Stats,
		publisher: opts.Publisher,
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		pingers:   opts.Pingers,
		logger:    opts.Logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(metricsMiddleware)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Post("/shorten", s.shorten)
	r.Get("/stats/{short_code}", s.getStats)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/queue/depth", s.queueDepth)
	})

	// Registered last so service routes win over short codes.
	r.Get("/{short_code}", s.redirect)

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	for _, p := range s.pingers {
		if err := p.Ping(ctx); err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type shortenRequest struct {
	URL        string `json:"url"`
	CustomCode string `json:"custom_code"`
}

type shortenResponse struct {
	ShortCode   string `json:"short_code"`
	ShortURL    string `json:"short_url"`
	OriginalURL string `json:"original_url"`
}

// maxShortCodeLen matches the short_code column width.
const maxShortCodeLen = 16

func validShortCode(code string) bool {
	if len(code) > maxShortCodeLen {
		return false
	}
	for _, r := range code {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

func (s *Server) shorten(w http.ResponseWriter, r *http.Request) {
	var req shortenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	if !strings.HasPrefix(req.URL, "http://") && !strings.HasPrefix(req.URL, "https://") {
		writeError(w, http.StatusBadRequest, "url must be http or https")
		return
	}
	if req.CustomCode != "" && !validShortCode(req.CustomCode) {
		writeError(w, http.StatusBadRequest, "custom_code must be at most 16 letters, digits, - or _")
		return
	}

	rec, err := s.producer.CreateShortURL(r.Context(), req.URL, req.CustomCode)
	if err != nil {
		if errors.Is(err, shortener.ErrCodeTaken) {
			writeError(w, http.StatusConflict, "short code already in use")
			return
		}
		s.logger.Error("shorten failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not create short url")
		return
	}
	writeJSON(w, http.StatusCreated, shortenResponse{
		ShortCode:   rec.ShortCode,
		ShortURL:    s.baseURL + "/" + rec.ShortCode,
		OriginalURL: rec.OriginalURL,
	})
}

// redirect resolves the short code (cache first), bumps the click counter
// and sends the browser on its way. Counting is atomic in the store, so
// concurrent clicks are never lost.
func (s *Server) redirect(w http.ResponseWriter, r *http.Request) {
	shortCode := chi.URLParam(r, "short_code")

	originalURL, hit, err := s.cache.Get(r.Context(), shortCode)
	if err != nil {
		s.logger.Warn("cache read failed", zap.String("short_code", shortCode), zap.Error(err))
		hit = false
	}
	if !hit {
		rec, err := s.urls.Get(r.Context(), shortCode)
		if err != nil {
			if errors.Is(err, shortener.ErrNotFound) {
				writeError(w, http.StatusNotFound, "short url not found")
				return
			}
			s.logger.Error("url lookup failed", zap.String("short_code", shortCode), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "lookup failed")
			return
		}
		originalURL = rec.OriginalURL
		if err := s.cache.Set(r.Context(), shortCode, originalURL); err != nil {
			s.logger.Warn("cache fill failed", zap.String("short_code", shortCode), zap.Error(err))
		}
	}

	if _, err := s.urls.IncrementClicks(r.Context(), shortCode); err != nil {
		// A cache hit can outlive the row; treat that as not found rather
		// than redirecting to a dead link's target.
		if errors.Is(err, shortener.ErrNotFound) {
			writeError(w, http.StatusNotFound, "short url not found")
			return
		}
		s.logger.Warn("click increment failed", zap.String("short_code", shortCode), zap.Error(err))
	} else {
		metrics.URLClicked()
		s.publishEvent(r.Context(), map[string]any{
			"event":      "url_clicked",
			"short_code": shortCode,
		})
	}

	http.Redirect(w, r, originalURL, http.StatusFound)
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	shortCode := chi.URLParam(r, "short_code")
	view, err := s.stats.Get(r.Context(), shortCode)
	if err != nil {
		if errors.Is(err, shortener.ErrNotFound) {
			writeError(w, http.StatusNotFound, "short url not found")
			return
		}
		s.logger.Error("stats read failed", zap.String("short_code", shortCode), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "stats unavailable")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) queueDepth(w http.ResponseWriter, r *http.Request) {
	n, err := s.broker.Length(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "queue unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"depth": n})
}

func (s *Server) publishEvent(ctx context.Context, payload map[string]any) {
	if s.publisher == nil {
		return
	}
	if _, err := s.publisher.Publish(ctx, producer.TopicAnalytics, payload); err != nil {
		s.logger.Warn("analytics publish failed", zap.Error(err))
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
