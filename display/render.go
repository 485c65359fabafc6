package display

import (
	"image"
	"image/color"
	"math"
	"sync"

	"github.com/disintegration/imaging"

	"github.jpl.nasa.gov/bdube/bullseye/acquire"
	"github.jpl.nasa.gov/bdube/bullseye/camera"
	"github.jpl.nasa.gov/bdube/bullseye/mathx"
	"github.jpl.nasa.gov/bdube/bullseye/profile"
)

// Settings are the presentation options.  They are safe for concurrent use.
type Settings struct {
	mu      sync.Mutex
	palette Palette
	invert  bool
	width   int
}

// NewSettings returns settings using the named palette.  width is the width
// rendered images are resized to; zero keeps one pixel per sensor pixel.
func NewSettings(palette string, invert bool, width int) (*Settings, error) {
	p, err := Lookup(palette)
	if err != nil {
		return nil, err
	}
	return &Settings{palette: p, invert: invert, width: width}, nil
}

// Palette returns the current palette
func (s *Settings) Palette() Palette {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.palette
}

// SetPalette selects a palette by name
func (s *Settings) SetPalette(name string) error {
	p, err := Lookup(name)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.palette = p
	s.mu.Unlock()
	return nil
}

// Invert reports if the palette is inverted
func (s *Settings) Invert() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.invert
}

// SetInvert sets the palette inversion
func (s *Settings) SetInvert(b bool) {
	s.mu.Lock()
	s.invert = b
	s.mu.Unlock()
}

// Width returns the preview width, zero for native
func (s *Settings) Width() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width
}

// Colorize maps a frame through the palette, scaled so that max is the top
// of the palette.  Row 0 of the frame is the bottom row of the image.
func Colorize(f *camera.Frame, max int, p Palette, invert bool) *image.NRGBA {
	lut := p.LUT(invert)
	if max <= 0 {
		max = 1
	}
	img := image.NewNRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			v := f.At(x, y)
			idx := 0
			if v > 0 {
				idx = int(mathx.Round(255*float64(v)/float64(max), 1))
				if idx > 255 {
					idx = 255
				}
			}
			img.SetNRGBA(x, y, color.NRGBA(lut[idx]))
		}
	}
	return imaging.FlipV(img)
}

// toPixel converts a position in microns from the sensor center to image
// coordinates within bounds, with y increasing downward
func toPixel(pt profile.Point, b camera.PixelBounds, s camera.Sensor) (int, int) {
	px := s.PixelSize
	if px <= 0 {
		px = 1
	}
	x := pt.X/px + float64(s.Width)/2 - float64(b.Left)
	y := pt.Y/px + float64(s.Height)/2 - float64(b.Bottom)
	return int(math.Floor(x)), b.Height - 1 - int(math.Floor(y))
}

// DrawMarkers plots the ellipse outlines and axes onto img, which must be the
// size of bounds and oriented as Colorize returns it
func DrawMarkers(img *image.NRGBA, m profile.Markers, b camera.PixelBounds, s camera.Sensor, c color.NRGBA) {
	plot := func(pt profile.Point) {
		x, y := toPixel(pt, b, s)
		if image.Pt(x, y).In(img.Rect) {
			img.SetNRGBA(x, y, c)
		}
	}
	for _, pt := range m.Inner {
		plot(pt)
	}
	for _, pt := range m.Outer {
		plot(pt)
	}
	px := s.PixelSize
	if px <= 0 {
		px = 1
	}
	limit := 4 * float64(b.Width+b.Height)
	for _, seg := range [][2]profile.Point{m.MajorAxis, m.MinorAxis} {
		a, z := seg[0], seg[1]
		n := int(math.Min(math.Hypot(z.X-a.X, z.Y-a.Y)/px, limit)) + 1
		for i := 0; i <= n; i++ {
			t := float64(i) / float64(n)
			plot(profile.Point{X: a.X + t*(z.X-a.X), Y: a.Y + t*(z.Y-a.Y)})
		}
	}
}

// Render draws a result's frame with the fitted ellipse over it and resizes
// it to the preview width
func (s *Settings) Render(r *acquire.Result, sensor camera.Sensor) image.Image {
	s.mu.Lock()
	p, invert, width := s.palette, s.invert, s.width
	s.mu.Unlock()

	img := Colorize(r.Frame, sensor.MaxValue, p, invert)
	marker := color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	if invert {
		marker = color.NRGBA{A: 255}
	}
	if r.Geometry.Warning == nil {
		DrawMarkers(img, r.Markers, r.Bounds, sensor, marker)
	}
	if width > 0 && width != img.Rect.Dx() {
		return imaging.Resize(img, width, 0, imaging.Lanczos)
	}
	return img
}
