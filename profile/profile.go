// Package profile produces 1D intensity profiles of a beam: column and row
// sums, and sums along the fitted major and minor axes, each paired with the
// Gaussian the moments predict.
package profile

import (
	"math"

	"github.jpl.nasa.gov/bdube/bullseye/beam"
	"github.jpl.nasa.gov/bdube/bullseye/roi"
)

// CropFactor is the half width of the axis profiles, in fitted axis lengths
const CropFactor = 1.5

// Projection is a named profile.  Coord is in microns, Measured and Reference
// are summed intensity per bin.
type Projection struct {
	Name      string    `json:"name"`
	Coord     []float64 `json:"coord"`
	Measured  []float64 `json:"measured"`
	Reference []float64 `json:"reference"`
}

// Set holds the four profiles of one frame
type Set struct {
	X     Projection `json:"x"`
	Y     Projection `json:"y"`
	Major Projection `json:"major"`
	Minor Projection `json:"minor"`
}

// All returns the profiles in x, y, major, minor order
func (s Set) All() []Projection {
	return []Projection{s.X, s.Y, s.Major, s.Minor}
}

// AngleSum sums the plane along lines perpendicular to the direction angle
// (radians from +x), so that the result is the projection of the plane onto
// that direction.  Bins are binsize pixels wide and the image center falls
// at len/2.
func AngleSum(p beam.Plane, angle, binsize float64) []float64 {
	if binsize <= 0 {
		binsize = 1
	}
	c, s := math.Cos(angle), math.Sin(angle)
	w, h := float64(p.Width), float64(p.Height)
	n := angleBins(p, angle, binsize)
	out := make([]float64, n)
	half := float64(n) / 2
	for y := 0; y < p.Height; y++ {
		dy := (float64(y) - h/2) * s
		row := p.Data[y*p.Width : (y+1)*p.Width]
		for x, v := range row {
			r := ((float64(x)-w/2)*c+dy)/binsize + half
			k := int(math.Floor(r))
			if k < 0 {
				k = 0
			} else if k >= n {
				k = n - 1
			}
			out[k] += v
		}
	}
	return out
}

func angleBins(p beam.Plane, angle, binsize float64) int {
	c, s := math.Cos(angle), math.Sin(angle)
	extent := math.Abs(float64(p.Width)*c) + math.Abs(float64(p.Height)*s)
	// cos(pi/2) is not exactly zero
	return int(math.Ceil(extent/binsize-1e-9)) + 1
}

// rotatedCentroid is the centroid's position in AngleSum bin coordinates
func rotatedCentroid(p beam.Plane, m beam.Moments, angle, binsize float64, n int) float64 {
	xc := m.M10 - float64(p.Width)/2
	yc := m.M01 - float64(p.Height)/2
	return (math.Cos(angle)*xc+math.Sin(angle)*yc)/binsize + float64(n)/2
}

// Build computes all four profiles.  px is the pixel pitch in microns; binsize
// is the axis profile bin width in pixels.
func Build(ms beam.Measurement, axes roi.Axes, px, binsize float64) Set {
	if binsize <= 0 {
		binsize = 1
	}
	p, m := ms.Plane, ms.Moments
	return Set{
		X:     columns(p, m, axes.X),
		Y:     rows(p, m, axes.Y),
		Major: Axis("major", p, m, m.Rotation, m.Major, px, binsize),
		Minor: Axis("minor", p, m, m.Rotation+math.Pi/2, m.Minor, px, binsize),
	}
}

// Axis projects the plane onto the direction angle and crops it to
// CropFactor times width (pixels) either side of the centroid.  The Gaussian
// reference has a 1/e^2 diameter of width and the total intensity m.M00.
func Axis(name string, p beam.Plane, m beam.Moments, angle, width, px, binsize float64) Projection {
	sum := AngleSum(p, angle, binsize)
	n := len(sum)
	rc := rotatedCentroid(p, m, angle, binsize, n)
	half := CropFactor * width / binsize
	if half < 1 {
		half = 1
	}
	lo := int(math.Max(0, math.Floor(rc-half)))
	hi := int(math.Min(float64(n), math.Ceil(rc+half)))
	if hi < lo {
		hi = lo
	}
	pr := Projection{
		Name:      name,
		Coord:     make([]float64, hi-lo),
		Measured:  make([]float64, hi-lo),
		Reference: make([]float64, hi-lo),
	}
	copy(pr.Measured, sum[lo:hi])
	sigma := width / 4
	for i := range pr.Coord {
		d := (float64(lo+i) + .5 - rc) * binsize // pixels from the centroid
		pr.Coord[i] = d * px
		pr.Reference[i] = gauss(d, sigma, m.M00) * binsize
	}
	return pr
}

func columns(p beam.Plane, m beam.Moments, coord []float64) Projection {
	pr := Projection{Name: "x", Coord: coord, Measured: make([]float64, p.Width), Reference: make([]float64, p.Width)}
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			pr.Measured[x] += p.At(x, y)
		}
	}
	sigma := math.Sqrt(math.Max(m.M20, 0))
	for x := range pr.Reference {
		pr.Reference[x] = gauss(float64(x)-m.M10, sigma, m.M00)
	}
	return pr
}

func rows(p beam.Plane, m beam.Moments, coord []float64) Projection {
	pr := Projection{Name: "y", Coord: coord, Measured: make([]float64, p.Height), Reference: make([]float64, p.Height)}
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			pr.Measured[y] += p.At(x, y)
		}
	}
	sigma := math.Sqrt(math.Max(m.M02, 0))
	for y := range pr.Reference {
		pr.Reference[y] = gauss(float64(y)-m.M01, sigma, m.M00)
	}
	return pr
}

// gauss is a 1D Gaussian of standard deviation sigma and area total, at d.
// A collapsed Gaussian is zero everywhere.
func gauss(d, sigma, total float64) float64 {
	if sigma <= 0 {
		return 0
	}
	return total / (math.Sqrt(2*math.Pi) * sigma) * math.Exp(-d*d/(2*sigma*sigma))
}
