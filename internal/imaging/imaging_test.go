package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func encodeJPEG(w, h int) []byte {
	var buf bytes.Buffer
	jpeg.Encode(&buf, solid(w, h, color.RGBA{255, 0, 0, 255}), &jpeg.Options{Quality: 90})
	return buf.Bytes()
}

func encodePNG(w, h int, c color.Color) []byte {
	var buf bytes.Buffer
	png.Encode(&buf, solid(w, h, c))
	return buf.Bytes()
}

func TestProcessOutputsJPEG(t *testing.T) {
	for name, data := range map[string][]byte{
		"jpeg": encodeJPEG(100, 60),
		"png":  encodePNG(100, 60, color.RGBA{0, 0, 255, 255}),
	} {
		res, err := Process(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("%s: Process: %v", name, err)
		}
		if res.MIME != "image/jpeg" {
			t.Errorf("%s: expected image/jpeg, got %s", name, res.MIME)
		}
		if res.Width != 100 || res.Height != 60 {
			t.Errorf("%s: expected 100x60, got %dx%d", name, res.Width, res.Height)
		}
	}
}

func TestProcessDownscaleKeepsAspect(t *testing.T) {
	res, err := ProcessWith(bytes.NewReader(encodeJPEG(2000, 500)), Options{MaxDimension: 400, Quality: 80})
	if err != nil {
		t.Fatalf("ProcessWith: %v", err)
	}

	img, _, err := image.Decode(bytes.NewReader(res.Data))
	if err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	b := img.Bounds()
	if b.Dx() != 400 || b.Dy() != 100 {
		t.Errorf("expected 400x100, got %dx%d", b.Dx(), b.Dy())
	}
}

func TestProcessSmallImageNotUpscaled(t *testing.T) {
	res, err := Process(bytes.NewReader(encodeJPEG(50, 50)))
	if err != nil {
		t.Fatalf("Process small image: %v", err)
	}
	if res.Width != 50 || res.Height != 50 {
		t.Errorf("small image should not be resized: got %dx%d", res.Width, res.Height)
	}
}

func TestProcessTransparentPNGOnWhite(t *testing.T) {
	res, err := Process(bytes.NewReader(encodePNG(10, 10, color.RGBA{0, 0, 0, 0})))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	img, _, err := image.Decode(bytes.NewReader(res.Data))
	if err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	r, g, b, _ := img.At(5, 5).RGBA()
	if r < 0xf000 || g < 0xf000 || b < 0xf000 {
		t.Errorf("expected white background, got %x %x %x", r, g, b)
	}
}

func TestProcessRejectsUnsupported(t *testing.T) {
	for _, data := range [][]byte{[]byte("not an image"), []byte("GIF89a..."), []byte("%PDF-1.7")} {
		if _, err := Process(bytes.NewReader(data)); err == nil {
			t.Errorf("expected error for %q", data)
		}
	}
}
