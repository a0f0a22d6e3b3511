package image

import (
	"bytes"
	"context"
	stdimage "image"
	"testing"
)

func TestSyntheticGeneratorIsDeterministic(t *testing.T) {
	gen := NewSyntheticGenerator()
	req := GenerateRequest{Prompt: "a red bicycle", Size: "1536x1024", RequestID: "job-1"}

	first, err := gen.GenerateImage(context.Background(), req)
	if err != nil {
		t.Fatalf("GenerateImage: %v", err)
	}
	second, err := gen.GenerateImage(context.Background(), req)
	if err != nil {
		t.Fatalf("GenerateImage: %v", err)
	}
	if !bytes.Equal(first.Data, second.Data) {
		t.Fatal("synthetic output should be deterministic")
	}
	if first.Width != 1536 || first.Height != 1024 {
		t.Fatalf("dims = %dx%d, want 1536x1024", first.Width, first.Height)
	}
	cfg, format, err := stdimage.DecodeConfig(bytes.NewReader(first.Data))
	if err != nil || format != "png" || cfg.Width != 1536 {
		t.Fatalf("DecodeConfig = %+v %q %v", cfg, format, err)
	}
}

func TestSyntheticGeneratorEditRequiresDecodableSource(t *testing.T) {
	gen := NewSyntheticGenerator()
	if _, err := gen.EditImage(context.Background(), EditRequest{Prompt: "x"}); err == nil {
		t.Fatal("expected error for empty source")
	}
	if _, err := gen.EditImage(context.Background(), EditRequest{Prompt: "x", Image: SourceImage{Data: []byte("nope")}}); err == nil {
		t.Fatal("expected error for undecodable source")
	}

	asset, err := gen.EditImage(context.Background(), EditRequest{Prompt: "x", Size: "1024x1024", Image: SourceImage{Data: testPNG(t, 10, 20)}})
	if err != nil {
		t.Fatalf("EditImage: %v", err)
	}
	if asset.Width != 1024 || asset.Height != 1024 {
		t.Fatalf("dims = %dx%d", asset.Width, asset.Height)
	}
}

func TestFitRectPreservesAspect(t *testing.T) {
	got := fitRect(stdimage.Rect(0, 0, 100, 200), stdimage.Rect(0, 0, 800, 800), 8)
	if got.Dy() != 600 || got.Dx() != 300 {
		t.Fatalf("fitRect = %v, want 300x600", got)
	}
}

func TestSizeDimensions(t *testing.T) {
	cases := map[string][2]int{
		"1024x1536": {1024, 1536},
		"auto":      {1024, 1024},
		"":          {1024, 1024},
		"bogus":     {1024, 1024},
	}
	for in, want := range cases {
		w, h := SizeDimensions(in)
		if w != want[0] || h != want[1] {
			t.Fatalf("SizeDimensions(%q) = %d,%d want %v", in, w, h, want)
		}
	}
}
