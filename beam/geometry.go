package beam

import (
	"fmt"
	"math"
	"strings"

	"github.jpl.nasa.gov/bdube/bullseye/camera"
	"github.jpl.nasa.gov/bdube/bullseye/mathx"
)

// Geometry is the beam in physical units.  Positions are microns from the
// sensor center, rotation is in degrees.
type Geometry struct {
	CentroidX   float64 `json:"centroidX"`
	CentroidY   float64 `json:"centroidY"`
	Major       float64 `json:"major"`
	Minor       float64 `json:"minor"`
	Rotation    float64 `json:"rotation"`
	Ellipticity float64 `json:"ellipticity"`
	BlackLevel  float64 `json:"black"`

	// Peak is the Gaussian peak estimate as a fraction of the sensor max, clipped to [0, 1]
	Peak float64 `json:"peak"`

	// MeanWidth is the 1/e^2 diameter of the equivalent round beam
	MeanWidth float64 `json:"meanWidth"`

	M00 float64 `json:"m00"`
	M20 float64 `json:"m20"`
	M02 float64 `json:"m02"`

	// Warning is set for empty or saturated frames
	Warning *DegenerateFrameWarning `json:"warning,omitempty"`
}

// Measurement is the analysis of one frame at pixel and physical scale
type Measurement struct {
	Plane    Plane
	Moments  Moments
	Geometry Geometry
}

// Measure analyzes a frame captured with the given bounds on sensor s
func Measure(f *camera.Frame, background float64, b camera.PixelBounds, s camera.Sensor) Measurement {
	p := Subtract(f, background)
	m := p.Moments()
	if m.Degenerate == Normal && s.MaxValue > 0 && int(f.Max()) >= s.MaxValue {
		m.Degenerate = Saturated
	}
	return Measurement{Plane: p, Moments: m, Geometry: m.Physical(b, s)}
}

// Physical converts pixel moments to a Geometry
func (m Moments) Physical(b camera.PixelBounds, s camera.Sensor) Geometry {
	px := s.PixelSize
	full := float64(s.MaxValue)
	if full <= 0 {
		full = 1
	}
	g := Geometry{
		CentroidX:   (m.M10 + float64(b.Left) - float64(s.Width)/2) * px,
		CentroidY:   (m.M01 + float64(b.Bottom) - float64(s.Height)/2) * px,
		Major:       m.Major * px,
		Minor:       m.Minor * px,
		Rotation:    m.Rotation * 180 / math.Pi,
		Ellipticity: m.Ellipticity,
		BlackLevel:  m.Black,
		Peak:        mathx.Clamp(m.PeakCounts()/full, 0, 1),
		MeanWidth:   m.MeanWidth * px,
		M00:         m.M00,
		M20:         m.M20,
		M02:         m.M02,
	}
	if m.Degenerate != Normal {
		g.Warning = &DegenerateFrameWarning{Reason: m.Degenerate}
	}
	return g
}

// Fields returns the eight scalars in display order: centroid x, centroid y,
// major, minor, rotation, ellipticity, black level, peak
func (g Geometry) Fields() [8]float64 {
	return [8]float64{g.CentroidX, g.CentroidY, g.Major, g.Minor, g.Rotation, g.Ellipticity, g.BlackLevel, g.Peak}
}

// Summary is a human readable rendition of Fields, one per line
func (g Geometry) Summary() string {
	f := g.Fields()
	return fmt.Sprintf("centroid x: %.4g µm\n"+
		"centroid y: %.4g µm\n"+
		"major: %.4g µm\n"+
		"minor: %.4g µm\n"+
		"angle: %.4g°\n"+
		"ellipticity: %.4g\n"+
		"black: %.4g\n"+
		"peak: %.4g\n", f[0], f[1], f[2], f[3], f[4], f[5], f[6], f[7])
}

// CSV renders Fields on one line for logs
func (g Geometry) CSV() string {
	f := g.Fields()
	parts := make([]string, len(f))
	for i, v := range f {
		parts[i] = fmt.Sprintf("% 5.4g", v)
	}
	return strings.Join(parts, ",")
}
