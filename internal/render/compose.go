package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"

	"github.com/nfnt/resize"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// Caption geometry, all relative to the output height so every aspect class
// gets the same visual weight.
const (
	captionFontScale     = 0.08 // font size as a fraction of canvas height
	captionBaselineScale = 0.10 // baseline distance from the bottom edge
	captionStrokeScale   = 0.12 // stroke radius as a fraction of font size
)

var (
	captionFill   = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	captionStroke = color.NRGBA{R: 16, G: 16, B: 16, A: 255}
	captionShadow = color.NRGBA{R: 0, G: 0, B: 0, A: 96}
)

// Compositor scales decoded frames onto the output canvas and burns the
// caption into the pixels. Compose is deterministic and safe for concurrent
// use; the only shared state is a size-keyed font face cache.
type Compositor struct {
	font *opentype.Font

	mu    sync.Mutex
	faces map[int]font.Face
}

func NewCompositor() (*Compositor, error) {
	f, err := opentype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing caption font: %w", err)
	}
	return &Compositor{font: f, faces: make(map[int]font.Face)}, nil
}

// Compose scales frame to width x height and, when overlayText is non-empty,
// draws the caption centered near the bottom edge: a soft drop shadow, a dark
// stroke ring, then the fill on top. With empty overlayText the result is the
// scaled frame untouched. Text wider than the canvas is not wrapped; it runs
// off both edges.
func (c *Compositor) Compose(frame image.Image, overlayText string, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))

	scaled := frame
	b := frame.Bounds()
	if b.Dx() != width || b.Dy() != height {
		scaled = resize.Resize(uint(width), uint(height), frame, resize.Bilinear)
	}
	draw.Draw(dst, dst.Bounds(), scaled, scaled.Bounds().Min, draw.Src)

	if overlayText == "" {
		return dst
	}

	fontSize := float64(height) * captionFontScale
	face, err := c.face(int(fontSize))
	if err != nil {
		// A parse error was caught in NewCompositor; face creation from a
		// valid font only fails on absurd sizes. Skip the caption rather
		// than fail the frame.
		return dst
	}

	textWidth := font.MeasureString(face, overlayText)
	x := fixed.I(width)/2 - textWidth/2
	y := fixed.I(height - int(float64(height)*captionBaselineScale))

	shadowOff := fixed.I(maxInt(2, int(fontSize*0.05)))
	drawString(dst, face, overlayText, x+shadowOff, y+shadowOff, captionShadow)

	radius := maxInt(1, int(fontSize*captionStrokeScale))
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy > radius*radius || (dx == 0 && dy == 0) {
				continue
			}
			drawString(dst, face, overlayText, x+fixed.I(dx), y+fixed.I(dy), captionStroke)
		}
	}
	drawString(dst, face, overlayText, x, y, captionFill)

	return dst
}

func (c *Compositor) face(size int) (font.Face, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f, ok := c.faces[size]; ok {
		return f, nil
	}
	f, err := opentype.NewFace(c.font, &opentype.FaceOptions{
		Size:    float64(size),
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, err
	}
	c.faces[size] = f
	return f, nil
}

func drawString(dst draw.Image, face font.Face, s string, x, y fixed.Int26_6, col color.Color) {
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.Point26_6{X: x, Y: y},
	}
	d.DrawString(s)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
