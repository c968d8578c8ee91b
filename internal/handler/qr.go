package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/shortloop/shortloop/internal/shortener"
)

const qrImageSize = 256

// QRResult is the stored payload of a completed qr_code job.
type QRResult struct {
	BlobURI string `json:"blob_uri"`
	QRCode  string `json:"qr_code"` // base64 PNG
	Format  string `json:"format"`
}

// QRHandler renders a QR code image pointing at the short link.
type QRHandler struct {
	blob    shortener.BlobStore
	baseURL string
	prefix  string
}

// NewQRHandler constructs a QRHandler. baseURL is the public origin the
// short links resolve against.
func NewQRHandler(blob shortener.BlobStore, baseURL, prefix string) *QRHandler {
	return &QRHandler{
		blob:    blob,
		baseURL: strings.TrimRight(baseURL, "/"),
		prefix:  strings.Trim(prefix, "/"),
	}
}

// Handle renders the PNG and stores it. Re-running for the same job writes
// the same object to the same path, so duplicate execution is safe.
func (h *QRHandler) Handle(ctx context.Context, shortCode, _ string) (json.RawMessage, error) {
	target := h.baseURL + "/" + shortCode
	png, err := qrcode.Encode(target, qrcode.Medium, qrImageSize)
	if err != nil {
		return nil, fmt.Errorf("render qr code: %w", err)
	}

	path := h.objectPath(shortCode)
	uri, err := h.blob.PutObject(ctx, path, "image/png", bytes.NewReader(png))
	if err != nil {
		return nil, fmt.Errorf("store qr image: %w", err)
	}

	result := QRResult{
		BlobURI: uri,
		QRCode:  base64.StdEncoding.EncodeToString(png),
		Format:  "png",
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal qr result: %w", err)
	}
	return payload, nil
}

func (h *QRHandler) objectPath(shortCode string) string {
	if h.prefix == "" {
		return fmt.Sprintf("%s/qr.png", shortCode)
	}
	return fmt.Sprintf("%s/%s/qr.png", h.prefix, shortCode)
}
