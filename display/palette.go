/*
Package display turns results into pictures.

It owns the presentation settings of the profiler (palette and inversion),
renders frames to color images with the fitted ellipse drawn over them, and
plots the projections against their Gaussian references.  None of this
state feeds back into acquisition.
*/
package display

import (
	"fmt"
	"image/color"
	"math"
	"sort"

	"github.com/lucasb-eyer/go-colorful"
)

// stop is a color at a position in [0, 1]
type stop struct {
	at float64
	c  colorful.Color
}

// Palette maps a normalized intensity in [0, 1] to a color
type Palette struct {
	Name string

	stops  []stop
	cycles float64
	blend  func(a, b colorful.Color, t float64) colorful.Color
	fn     func(t float64) colorful.Color
}

func rgb(r, g, b float64) colorful.Color {
	return colorful.Color{R: r, G: g, B: b}
}

func blendRgb(a, b colorful.Color, t float64) colorful.Color {
	return a.BlendRgb(b, t)
}

func blendLab(a, b colorful.Color, t float64) colorful.Color {
	return a.BlendLab(b, t)
}

var palettes = map[string]Palette{
	"gray": {Name: "gray", blend: blendRgb, stops: []stop{
		{0, rgb(0, 0, 0)}, {1, rgb(1, 1, 1)},
	}},
	"jet": {Name: "jet", blend: blendRgb, stops: []stop{
		{0, rgb(0, 0, .5)}, {.11, rgb(0, 0, 1)}, {.125, rgb(0, 0, 1)},
		{.34, rgb(0, 1, 1)}, {.375, rgb(0, 1, 1)}, {.64, rgb(1, 1, 0)},
		{.65, rgb(1, 1, 0)}, {.89, rgb(1, 0, 0)}, {.91, rgb(1, 0, 0)},
		{1, rgb(.5, 0, 0)},
	}},
	"cool": {Name: "cool", blend: blendRgb, stops: []stop{
		{0, rgb(0, 1, 1)}, {1, rgb(1, 0, 1)},
	}},
	"hot": {Name: "hot", blend: blendRgb, stops: []stop{
		{0, rgb(.0416, 0, 0)}, {.365, rgb(1, 0, 0)}, {.746, rgb(1, 1, 0)}, {1, rgb(1, 1, 1)},
	}},
	"prism": {Name: "prism", blend: blendLab, cycles: 8, stops: []stop{
		{0, rgb(1, 0, 0)}, {.2, rgb(1, .5, 0)}, {.4, rgb(1, 1, 0)},
		{.6, rgb(0, 1, 0)}, {.8, rgb(0, 0, 1)}, {1, rgb(.67, 0, 1)},
	}},
	"hsv": {Name: "hsv", fn: func(t float64) colorful.Color {
		return colorful.Hsv(360*t, 1, 1)
	}},
}

// Names returns the palette names, sorted
func Names() []string {
	out := make([]string, 0, len(palettes))
	for k := range palettes {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Lookup returns the named palette
func Lookup(name string) (Palette, error) {
	p, ok := palettes[name]
	if !ok {
		return Palette{}, fmt.Errorf("display: unknown palette %q, options are %v", name, Names())
	}
	return p, nil
}

// At returns the color for t, which is clamped to [0, 1].  When invert is
// true the palette runs backwards.
func (p Palette) At(t float64, invert bool) color.RGBA {
	if math.IsNaN(t) || t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	if invert {
		t = 1 - t
	}
	r, g, b := p.colorAt(t).Clamped().RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

func (p Palette) colorAt(t float64) colorful.Color {
	if p.fn != nil {
		return p.fn(t)
	}
	if p.cycles > 0 && t < 1 {
		t = math.Mod(t*p.cycles, 1)
	}
	s := p.stops
	if t <= s[0].at {
		return s[0].c
	}
	for i := 1; i < len(s); i++ {
		if t <= s[i].at {
			lo, hi := s[i-1], s[i]
			return p.blend(lo.c, hi.c, (t-lo.at)/(hi.at-lo.at))
		}
	}
	return s[len(s)-1].c
}

// LUT returns the 256 entry lookup table of the palette
func (p Palette) LUT(invert bool) [256]color.RGBA {
	var out [256]color.RGBA
	for i := range out {
		out[i] = p.At(float64(i)/255, invert)
	}
	return out
}
