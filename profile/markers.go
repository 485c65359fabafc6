package profile

import (
	"math"

	"github.jpl.nasa.gov/bdube/bullseye/beam"
)

// Point is a position in microns
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Markers outline the fitted ellipse for overlay on the frame
type Markers struct {
	// Inner is the 1/e^2 ellipse
	Inner []Point `json:"inner"`

	// Outer is the ellipse scaled by CropFactor
	Outer []Point `json:"outer"`

	// MajorAxis and MinorAxis are segments spanning +/- CropFactor axis lengths
	MajorAxis [2]Point `json:"majorAxis"`
	MinorAxis [2]Point `json:"minorAxis"`
}

// markerPoints is the number of vertices on each ellipse outline
const markerPoints = 40

// NewMarkers computes the overlay for a geometry
func NewMarkers(g beam.Geometry) Markers {
	t := g.Rotation * math.Pi / 180
	c, s := math.Cos(t), math.Sin(t)
	m := Markers{
		Inner: ellipse(g, c, s, .5),
		Outer: ellipse(g, c, s, CropFactor),
	}
	for i, k := range []float64{-CropFactor, CropFactor} {
		m.MajorAxis[i] = Point{X: g.CentroidX + k*g.Major*c, Y: g.CentroidY + k*g.Major*s}
		m.MinorAxis[i] = Point{X: g.CentroidX - k*g.Minor*s, Y: g.CentroidY + k*g.Minor*c}
	}
	return m
}

func ellipse(g beam.Geometry, c, s, scale float64) []Point {
	out := make([]Point, markerPoints)
	for i := range out {
		phi := 2 * math.Pi * float64(i) / float64(markerPoints-1)
		ex, ey := g.Major*math.Cos(phi), g.Minor*math.Sin(phi)
		out[i] = Point{
			X: g.CentroidX + scale*(ex*c-ey*s),
			Y: g.CentroidY + scale*(ex*s+ey*c),
		}
	}
	return out
}
