// Package roi maps a physical region of interest onto sensor pixel bounds
// and provides the coordinate arrays downstream consumers plot against.
package roi

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.jpl.nasa.gov/bdube/bullseye/camera"
	"github.jpl.nasa.gov/bdube/bullseye/mathx"
)

// MinSize is the smallest window, in pixels, along either axis
const MinSize = 128

// Request is a region of interest in microns, relative to the sensor center
type Request struct {
	Left   float64 `json:"left"`
	Bottom float64 `json:"bottom"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// FullSensor returns a request covering the whole sensor
func FullSensor(s camera.Sensor) Request {
	w := float64(s.Width) * s.PixelSize
	h := float64(s.Height) * s.PixelSize
	return Request{Left: -w / 2, Bottom: -h / 2, Width: w, Height: h}
}

// Map converts a request into pixel bounds.  Left and bottom are clamped onto
// the sensor, leaving room for the minimum window; width and height are
// floored to MinSize and never extend past the sensor edge.  A sensor smaller
// than MinSize along an axis gives the full sensor on that axis.
func Map(r Request, s camera.Sensor) camera.PixelBounds {
	px := s.PixelSize
	if px <= 0 {
		px = 1
	}
	minW := min(MinSize, s.Width)
	minH := min(MinSize, s.Height)
	l := int(math.Floor(r.Left/px + float64(s.Width)/2))
	b := int(math.Floor(r.Bottom/px + float64(s.Height)/2))
	l = mathx.ClampInt(l, 0, s.Width-minW)
	b = mathx.ClampInt(b, 0, s.Height-minH)
	w := mathx.ClampInt(int(r.Width/px), minW, s.Width-l)
	h := mathx.ClampInt(int(r.Height/px), minH, s.Height-b)
	return camera.PixelBounds{Left: l, Bottom: b, Width: w, Height: h}
}

// Axes holds the physical coordinates of pixel centers and pixel edges
type Axes struct {
	// X, Y are pixel center positions in microns, one per column/row
	X []float64 `json:"x"`
	Y []float64 `json:"y"`

	// XEdges, YEdges are pixel boundaries, one longer than X and Y
	XEdges []float64 `json:"xEdges"`
	YEdges []float64 `json:"yEdges"`
}

// NewAxes computes the coordinate arrays for a window on the sensor
func NewAxes(b camera.PixelBounds, s camera.Sensor) Axes {
	x, xe := axis(b.Left, b.Width, s.Width, s.PixelSize)
	y, ye := axis(b.Bottom, b.Height, s.Height, s.PixelSize)
	return Axes{X: x, Y: y, XEdges: xe, YEdges: ye}
}

func axis(start, n, full int, px float64) ([]float64, []float64) {
	centers := make([]float64, n)
	edges := make([]float64, n+1)
	half := float64(full) / 2
	for i := 0; i < n; i++ {
		centers[i] = (float64(start+i) - half) * px
		edges[i] = centers[i] - px/2
	}
	edges[n] = (float64(start+n)-half)*px - px/2
	return centers, edges
}

// Mapping is the result of applying a request to a source
type Mapping struct {
	Request Request
	Bounds  camera.PixelBounds
	Axes    Axes
}

// Apply maps r and reconfigures the source's capture window.  The source
// may adjust the bounds; the axes follow what it reports.  A rejected mode is
// returned as the source's *camera.ModeConfigurationError.
func Apply(src camera.Source, r Request, log logrus.FieldLogger) (Mapping, error) {
	s := src.Sensor()
	b := Map(r, s)
	actual, err := src.Configure(b, s.Format())
	if err != nil {
		return Mapping{}, fmt.Errorf("roi: configuring %s: %w", b, err)
	}
	if log != nil {
		log.WithField("bounds", actual.String()).Debug("new roi")
	}
	return Mapping{Request: r, Bounds: actual, Axes: NewAxes(actual, s)}, nil
}
