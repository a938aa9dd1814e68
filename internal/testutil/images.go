// Package testutil provides synthetic images shared by the test packages.
// It has no dependencies on the rest of the module.
package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"testing"
)

var (
	Black = color.RGBA{0, 0, 0, 255}
	White = color.RGBA{255, 255, 255, 255}
)

// Solid returns a w×h image filled with c.
func Solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// Gray returns a w×h image whose channels all equal v.
func Gray(w, h int, v uint8) *image.RGBA {
	return Solid(w, h, color.RGBA{v, v, v, 255})
}

// EncodePNG returns the PNG encoding of img.
func EncodePNG(t testing.TB, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding png: %v", err)
	}
	return buf.Bytes()
}

// WritePNG writes img to path as PNG and returns the encoded size in bytes.
func WritePNG(t testing.TB, path string, img image.Image) int64 {
	t.Helper()
	data := EncodePNG(t, img)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return int64(len(data))
}
