package storage

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"net/http"

	// Registered decoders for uploaded inputs.
	_ "image/gif"
	_ "image/jpeg"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// MaxWorkingSide bounds the longest side of the PNG working copy sent to the
// generation API.
const MaxWorkingSide = 1536

// ErrUnsupportedImage is returned for payloads that are not a decodable image.
var ErrUnsupportedImage = errors.New("storage: unsupported image format")

var imageExtensions = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/webp": "webp",
	"image/gif":  "gif",
}

// DetectImage sniffs the payload and returns its MIME type and file extension.
func DetectImage(data []byte) (string, string, error) {
	mime := http.DetectContentType(data)
	ext, ok := imageExtensions[mime]
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrUnsupportedImage, mime)
	}
	return mime, ext, nil
}

// NormalizePNG decodes data, downsizes it so neither side exceeds maxSide and
// re-encodes it as PNG. Images already within bounds are only re-encoded.
func NormalizePNG(data []byte, maxSide int) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrUnsupportedImage)
	}
	var out image.Image = src
	if maxSide > 0 && (w > maxSide || h > maxSide) {
		nw, nh := maxSide, h*maxSide/w
		if h > w {
			nw, nh = w*maxSide/h, maxSide
		}
		dst := image.NewRGBA(image.Rect(0, 0, max(nw, 1), max(nh, 1)))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
		out = dst
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, fmt.Errorf("storage: encode png: %w", err)
	}
	return buf.Bytes(), nil
}
