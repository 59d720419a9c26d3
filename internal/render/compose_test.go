package render

import (
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/nfnt/resize"
)

func newTestCompositor(t *testing.T) *Compositor {
	t.Helper()
	c, err := NewCompositor()
	if err != nil {
		t.Fatalf("NewCompositor() failed: %v", err)
	}
	return c
}

func gradientFrame(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 64, A: 255})
		}
	}
	return img
}

func TestComposeEmptyOverlayIsScaledFrameOnly(t *testing.T) {
	c := newTestCompositor(t)
	frame := gradientFrame(360, 640)

	got := c.Compose(frame, "", 720, 1280)

	want := image.NewRGBA(image.Rect(0, 0, 720, 1280))
	scaled := resize.Resize(720, 1280, frame, resize.Bilinear)
	draw.Draw(want, want.Bounds(), scaled, scaled.Bounds().Min, draw.Src)

	if got.Bounds() != want.Bounds() {
		t.Fatalf("bounds = %v, want %v", got.Bounds(), want.Bounds())
	}
	for i := range want.Pix {
		if got.Pix[i] != want.Pix[i] {
			t.Fatalf("pixel data diverges at byte %d: empty overlay must not decorate the frame", i)
		}
	}
}

func TestComposeNoScaleWhenSizesMatch(t *testing.T) {
	c := newTestCompositor(t)
	frame := gradientFrame(720, 720)

	got := c.Compose(frame, "", 720, 720)

	for i := range frame.Pix {
		if got.Pix[i] != frame.Pix[i] {
			t.Fatalf("same-size frame was altered at byte %d", i)
		}
	}
}

func TestComposeCaptionDrawsStrokeAndFill(t *testing.T) {
	c := newTestCompositor(t)
	frame := image.NewRGBA(image.Rect(0, 0, 720, 720))
	// Solid black so only caption ink can produce the fill/stroke colors.
	draw.Draw(frame, frame.Bounds(), image.NewUniform(color.RGBA{A: 255}), image.Point{}, draw.Src)

	got := c.Compose(frame, "HELLO", 720, 720)

	var fillSeen, strokeSeen bool
	for y := 0; y < 720; y++ {
		for x := 0; x < 720; x++ {
			px := got.RGBAAt(x, y)
			if px.R == 255 && px.G == 255 && px.B == 255 {
				fillSeen = true
			}
			if px.R == 16 && px.G == 16 && px.B == 16 {
				strokeSeen = true
			}
		}
	}
	if !fillSeen {
		t.Error("no fill-colored pixels found, caption was not drawn")
	}
	if !strokeSeen {
		t.Error("no stroke-colored pixels found, caption has no outline")
	}
}

func TestComposeCaptionStaysNearBottom(t *testing.T) {
	c := newTestCompositor(t)
	frame := image.NewRGBA(image.Rect(0, 0, 720, 720))
	draw.Draw(frame, frame.Bounds(), image.NewUniform(color.RGBA{A: 255}), image.Point{}, draw.Src)

	got := c.Compose(frame, "HELLO", 720, 720)

	// The baseline sits 10% above the bottom edge with an 8% font, so the
	// top half of the canvas must stay untouched.
	for y := 0; y < 360; y++ {
		for x := 0; x < 720; x++ {
			px := got.RGBAAt(x, y)
			if px.R != 0 || px.G != 0 || px.B != 0 {
				t.Fatalf("caption ink found at (%d,%d), outside the caption band", x, y)
			}
		}
	}
}

func TestComposeDeterministic(t *testing.T) {
	c := newTestCompositor(t)
	frame := gradientFrame(360, 640)

	a := c.Compose(frame, "same text", 720, 1280)
	b := c.Compose(frame, "same text", 720, 1280)

	for i := range a.Pix {
		if a.Pix[i] != b.Pix[i] {
			t.Fatalf("repeated compose diverges at byte %d", i)
		}
	}
}
