package image

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	stdimage "image"
	"image/color"
	"image/png"
	"strconv"

	"golang.org/x/image/draw"
)

// SyntheticGenerator renders deterministic placeholder PNGs. It keeps the job
// pipeline fully operational in local and CI environments without an API key.
// Edits paste the scaled source image onto the seeded canvas so results stay
// visibly tied to their input.
type SyntheticGenerator struct{}

// NewSyntheticGenerator returns a ready generator.
func NewSyntheticGenerator() *SyntheticGenerator {
	return &SyntheticGenerator{}
}

// GenerateImage renders a patterned canvas seeded by the prompt.
func (s *SyntheticGenerator) GenerateImage(ctx context.Context, req GenerateRequest) (*Asset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	width, height := SizeDimensions(req.Size)
	canvas := renderCanvas(width, height, deterministicSeed(req.RequestID, req.Prompt, req.Size))
	return encodeAsset(canvas)
}

// EditImage renders the canvas and draws the decoded source image over its
// center.
func (s *SyntheticGenerator) EditImage(ctx context.Context, req EditRequest) (*Asset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(req.Image.Data) == 0 {
		return nil, errors.New("source image required")
	}
	src, _, err := stdimage.Decode(bytes.NewReader(req.Image.Data))
	if err != nil {
		return nil, fmt.Errorf("decode source image: %w", err)
	}
	width, height := SizeDimensions(req.Size)
	canvas := renderCanvas(width, height, deterministicSeed(req.RequestID, req.Prompt, req.Size))
	inset := fitRect(src.Bounds(), canvas.Bounds(), 8)
	draw.CatmullRom.Scale(canvas, inset, src, src.Bounds(), draw.Over, nil)
	return encodeAsset(canvas)
}

func renderCanvas(width, height int, seed string) *stdimage.RGBA {
	img := stdimage.NewRGBA(stdimage.Rect(0, 0, width, height))
	base := colorFromSeed(seed, 0)
	accent := colorFromSeed(seed, 1)
	draw.Draw(img, img.Bounds(), &stdimage.Uniform{C: base}, stdimage.Point{}, draw.Src)

	stripeHeight := max(32, height/12)
	for y := 0; y < height; y += stripeHeight * 2 {
		stripe := stdimage.Rect(0, y, width, min(height, y+stripeHeight))
		draw.Draw(img, stripe, &stdimage.Uniform{C: accent}, stdimage.Point{}, draw.Over)
	}
	return img
}

// fitRect scales src into dst preserving aspect ratio with a margin of
// 1/marginDiv of the shorter destination side.
func fitRect(src, dst stdimage.Rectangle, marginDiv int) stdimage.Rectangle {
	margin := min(dst.Dx(), dst.Dy()) / marginDiv
	inner := dst.Inset(margin)
	if src.Dx() == 0 || src.Dy() == 0 {
		return inner
	}
	w, h := inner.Dx(), inner.Dx()*src.Dy()/src.Dx()
	if h > inner.Dy() {
		h = inner.Dy()
		w = inner.Dy() * src.Dx() / src.Dy()
	}
	x := inner.Min.X + (inner.Dx()-w)/2
	y := inner.Min.Y + (inner.Dy()-h)/2
	return stdimage.Rect(x, y, x+w, y+h)
}

func encodeAsset(img *stdimage.RGBA) (*Asset, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	b := img.Bounds()
	return &Asset{Data: buf.Bytes(), Format: "image/png", Width: b.Dx(), Height: b.Dy()}, nil
}

func deterministicSeed(parts ...any) string {
	hasher := sha256.New()
	for _, part := range parts {
		fmt.Fprintf(hasher, "%v|", part)
	}
	return hex.EncodeToString(hasher.Sum(nil))[:18]
}

func colorFromSeed(seed string, shift int) color.RGBA {
	if len(seed) < 6 {
		seed = "000000"
	}
	doubled := seed + seed
	start := (shift * 6) % len(seed)
	segment := doubled[start : start+6]
	return color.RGBA{R: hexByte(segment[0:2]), G: hexByte(segment[2:4]), B: hexByte(segment[4:6]), A: 255}
}

func hexByte(s string) uint8 {
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0
	}
	return uint8(v)
}

var _ Generator = (*SyntheticGenerator)(nil)
