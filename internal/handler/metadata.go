package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
)

// MetadataConfig controls the page fetch.
type MetadataConfig struct {
	UserAgent string
	Timeout   time.Duration
}

// MetadataResult is the stored payload of a completed metadata job.
type MetadataResult struct {
	Title       string            `json:"title"`
	Description string            `json:"description"`
	StatusCode  int               `json:"status_code"`
	ContentType string            `json:"content_type"`
	OpenGraph   map[string]string `json:"open_graph,omitempty"`
}

// MetadataHandler fetches the target page and extracts title, description
// and OpenGraph fields.
type MetadataHandler struct {
	cfg           MetadataConfig
	baseCollector *colly.Collector
}

// NewMetadataHandler builds a MetadataHandler.
func NewMetadataHandler(cfg MetadataConfig) *MetadataHandler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "shortloop-bot/1.0"
	}
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	return &MetadataHandler{cfg: cfg, baseCollector: c}
}

// Handle fetches originalURL once and assembles the metadata result.
// Fetching is read-only, so duplicate execution only rewrites the same
// result.
func (h *MetadataHandler) Handle(ctx context.Context, _, originalURL string) (json.RawMessage, error) {
	var (
		result   MetadataResult
		fetchErr error
	)
	result.OpenGraph = make(map[string]string)

	collector := h.baseCollector.Clone()
	collector.UserAgent = h.cfg.UserAgent
	collector.SetRequestTimeout(h.cfg.Timeout)

	collector.OnResponse(func(r *colly.Response) {
		result.StatusCode = r.StatusCode
		result.ContentType = r.Headers.Get("Content-Type")
	})
	collector.OnHTML("title", func(e *colly.HTMLElement) {
		if result.Title == "" {
			result.Title = strings.TrimSpace(e.Text)
		}
	})
	collector.OnHTML(`meta[name="description"]`, func(e *colly.HTMLElement) {
		if result.Description == "" {
			result.Description = e.Attr("content")
		}
	})
	collector.OnHTML(`meta[property^="og:"]`, func(e *colly.HTMLElement) {
		prop := strings.TrimPrefix(e.Attr("property"), "og:")
		if prop != "" {
			result.OpenGraph[prop] = e.Attr("content")
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			result.StatusCode = r.StatusCode
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(originalURL)
	}()
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("fetch %s: %w", originalURL, ctx.Err())
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", originalURL, err)
		}
	}
	collector.Wait()
	if fetchErr != nil {
		return nil, fmt.Errorf("fetch %s: %w", originalURL, fetchErr)
	}

	// OpenGraph description wins when the meta tag is absent.
	if result.Description == "" {
		result.Description = result.OpenGraph["description"]
	}
	if len(result.OpenGraph) == 0 {
		result.OpenGraph = nil
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata result: %w", err)
	}
	return payload, nil
}
