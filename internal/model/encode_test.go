package model

import (
	"bytes"
	"encoding/base64"
	"image/color"
	"image/png"
	"testing"

	"diffusiond/internal/pipeline/pipelinetest"
)

func TestEncodeImage_RoundTrip(t *testing.T) {
	src := pipelinetest.Solid(5, 3, color.RGBA{B: 200, A: 255})
	enc, err := EncodeImage(src)
	if err != nil {
		t.Fatalf("EncodeImage: %v", err)
	}
	if enc.Format != "PNG" {
		t.Fatalf("format = %q", enc.Format)
	}
	raw, err := base64.StdEncoding.DecodeString(enc.B64)
	if err != nil {
		t.Fatalf("base64: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("png: %v", err)
	}
	if img.Bounds() != src.Bounds() {
		t.Fatalf("bounds %v != %v", img.Bounds(), src.Bounds())
	}
	if _, _, b, _ := img.At(2, 1).RGBA(); b>>8 != 200 {
		t.Fatalf("pixel changed")
	}
}

func TestEncodeImage_Nil(t *testing.T) {
	if _, err := EncodeImage(nil); err == nil {
		t.Fatalf("expected error for nil image")
	}
}
