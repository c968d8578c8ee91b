package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/shortloop/shortloop/internal/shortener"
)

// ScreenshotConfig controls the headless capture subsystem.
type ScreenshotConfig struct {
	Width       int64
	Height      int64
	NavTimeout  time.Duration
	MaxParallel int
	UserAgent   string
	BlobPrefix  string
}

func (c ScreenshotConfig) withDefaults() ScreenshotConfig {
	if c.Width <= 0 {
		c.Width = 1280
	}
	if c.Height <= 0 {
		c.Height = 800
	}
	if c.NavTimeout <= 0 {
		c.NavTimeout = 25 * time.Second
	}
	if c.MaxParallel <= 0 {
		c.MaxParallel = 1
	}
	return c
}

// ScreenshotResult is the stored payload of a completed screenshot job.
type ScreenshotResult struct {
	BlobURI string `json:"blob_uri"`
	Width   int64  `json:"width"`
	Height  int64  `json:"height"`
	Format  string `json:"format"`
}

// ScreenshotHandler captures page screenshots with headless Chrome. One
// browser process is shared; each capture runs in its own tab.
type ScreenshotHandler struct {
	blob            shortener.BlobStore
	cfg             ScreenshotConfig
	logger          *zap.Logger
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	sem             chan struct{}
}

// NewScreenshotHandler starts the shared browser and returns the handler.
func NewScreenshotHandler(blob shortener.BlobStore, cfg ScreenshotConfig, logger *zap.Logger) (*ScreenshotHandler, error) {
	cfg = cfg.withDefaults()

	opts := chromedp.DefaultExecAllocatorOptions[:]
	opts = append(opts,
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		allocatorCancel()
		browserCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}

	return &ScreenshotHandler{
		blob:            blob,
		cfg:             cfg,
		logger:          logger,
		allocatorCancel: allocatorCancel,
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
		sem:             make(chan struct{}, cfg.MaxParallel),
	}, nil
}

// Close tears down the browser and allocator contexts.
func (h *ScreenshotHandler) Close() {
	if h == nil {
		return
	}
	h.browserCancel()
	h.allocatorCancel()
}

// Handle navigates to the original URL and stores a viewport screenshot.
func (h *ScreenshotHandler) Handle(ctx context.Context, shortCode, originalURL string) (json.RawMessage, error) {
	select {
	case h.sem <- struct{}{}:
		defer func() { <-h.sem }()
	case <-ctx.Done():
		return nil, fmt.Errorf("screenshot slot wait: %w", ctx.Err())
	}

	tabCtx, cancelTab := chromedp.NewContext(h.browserCtx)
	defer cancelTab()
	taskCtx, cancelTask := context.WithTimeout(tabCtx, h.cfg.NavTimeout)
	defer cancelTask()

	// Forward caller cancellation into the tab.
	stop := context.AfterFunc(ctx, cancelTask)
	defer stop()

	var png []byte
	err := chromedp.Run(taskCtx,
		emulation.SetDeviceMetricsOverride(h.cfg.Width, h.cfg.Height, 1.0, false),
		chromedp.Navigate(originalURL),
		chromedp.CaptureScreenshot(&png),
	)
	if err != nil {
		return nil, fmt.Errorf("capture %s: %w", originalURL, err)
	}

	uri, err := h.blob.PutObject(ctx, h.objectPath(shortCode), "image/png", bytes.NewReader(png))
	if err != nil {
		return nil, fmt.Errorf("store screenshot: %w", err)
	}
	h.logger.Debug("screenshot captured",
		zap.String("short_code", shortCode),
		zap.Int("bytes", len(png)),
	)

	payload, err := json.Marshal(ScreenshotResult{
		BlobURI: uri,
		Width:   h.cfg.Width,
		Height:  h.cfg.Height,
		Format:  "png",
	})
	if err != nil {
		return nil, fmt.Errorf("marshal screenshot result: %w", err)
	}
	return payload, nil
}

func (h *ScreenshotHandler) objectPath(shortCode string) string {
	prefix := strings.Trim(h.cfg.BlobPrefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%s/screenshot.png", shortCode)
	}
	return fmt.Sprintf("%s/%s/screenshot.png", prefix, shortCode)
}
