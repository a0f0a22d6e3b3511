package image

import (
	"bytes"
	"context"
	"fmt"
	stdimage "image"
	"strconv"
	"strings"

	// Decoders for DecodeConfig on provider output.
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// SourceImage is the conditioning input for an edit call.
type SourceImage struct {
	Data     []byte
	MIME     string
	Filename string
}

// EditRequest asks the provider to restyle an existing image.
type EditRequest struct {
	Image   SourceImage
	Prompt  string
	Size    string
	Quality string
	// RequestID seeds deterministic providers and tags provider logs.
	RequestID string
}

// GenerateRequest asks the provider to render an image from text only.
type GenerateRequest struct {
	Prompt    string
	Size      string
	Quality   string
	RequestID string
}

// Asset represents a generated or edited image.
type Asset struct {
	Data   []byte
	Format string
	Width  int
	Height int
}

// Generator is the contract implemented by all image providers. A failed
// call is final; implementations do not retry.
type Generator interface {
	EditImage(ctx context.Context, req EditRequest) (*Asset, error)
	GenerateImage(ctx context.Context, req GenerateRequest) (*Asset, error)
}

// APIError carries a non-2xx provider response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("image provider http %d", e.StatusCode)
	}
	return fmt.Sprintf("image provider http %d: %s", e.StatusCode, e.Message)
}

// SizeDimensions parses "WxH". Unknown or "auto" sizes map to a square canvas.
func SizeDimensions(size string) (int, int) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(size)), "x")
	if len(parts) == 2 {
		w, errW := strconv.Atoi(parts[0])
		h, errH := strconv.Atoi(parts[1])
		if errW == nil && errH == nil && w > 0 && h > 0 {
			return w, h
		}
	}
	return 1024, 1024
}

func decodeImageDimensions(data []byte) (int, int, string) {
	cfg, format, err := stdimage.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, ""
	}
	return cfg.Width, cfg.Height, "image/" + format
}

func newAsset(data []byte, fallbackSize string) *Asset {
	w, h, format := decodeImageDimensions(data)
	if w == 0 || h == 0 {
		w, h = SizeDimensions(fallbackSize)
	}
	if format == "" {
		format = "image/png"
	}
	return &Asset{Data: data, Format: format, Width: w, Height: h}
}
