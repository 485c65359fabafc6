/*
Package beam extracts the geometry of a focused spot from a camera frame
using image moments.

The centroid is the first moment of intensity; the second central moments
form the 2x2 moment of inertia matrix whose eigen decomposition, done in
closed form, gives the principal axes and their orientation.  Axis lengths
are reported as 1/e^2 diameters of the equivalent Gaussian, 4 standard
deviations or 2*sqrt(2)*sqrt(2*variance).

When m20 == m02 the orientation is fixed at +/-45 degrees by the sign of
m11, or 0 for an isotropic spot.
*/
package beam

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.jpl.nasa.gov/bdube/bullseye/camera"
	"github.jpl.nasa.gov/bdube/bullseye/mathx"
)

// snap is the relative size below which a moment difference is treated as rounding noise
const snap = 1e-12

// Plane is a frame converted to float64 with the black level removed
type Plane struct {
	Width  int
	Height int
	Data   []float64

	// Black is the level subtracted from every sample
	Black float64
}

// At returns the sample at column x, row y
func (p Plane) At(x, y int) float64 {
	return p.Data[y*p.Width+x]
}

// Subtract removes the pct-th percentile of f from every sample.  pct <= 0
// leaves the frame as is.  Samples may become negative.
func Subtract(f *camera.Frame, pct float64) Plane {
	p := Plane{Width: f.Width, Height: f.Height, Data: f.Floats()}
	if pct > 0 {
		p.Black = mathx.PercentileInt32(f.Pix, pct)
		floats.AddConst(-p.Black, p.Data)
	}
	return p
}

// Degeneracy flags frames whose geometry is computed but not meaningful
type Degeneracy int

const (
	// Normal frames have a positive total intensity and no saturated pixels
	Normal Degeneracy = iota

	// Empty frames have no intensity above the black level
	Empty

	// Saturated frames have pixels at the sensor max
	Saturated
)

func (d Degeneracy) String() string {
	switch d {
	case Empty:
		return "empty"
	case Saturated:
		return "saturated"
	}
	return "normal"
}

// DegenerateFrameWarning is attached to results computed from empty or saturated frames
type DegenerateFrameWarning struct {
	Reason Degeneracy
}

func (w *DegenerateFrameWarning) Error() string {
	return fmt.Sprintf("beam: %s frame, geometry is unreliable", w.Reason)
}

// Moments holds the image moments and the derived ellipse, in pixels
type Moments struct {
	// Black is the subtracted black level
	Black float64 `json:"black"`

	// M00 is the total intensity, floored to 1
	M00 float64 `json:"m00"`

	// M10, M01 are the centroid column and row
	M10 float64 `json:"m10"`
	M01 float64 `json:"m01"`

	// M20, M02, M11 are the second central moments (variances and covariance)
	M20 float64 `json:"m20"`
	M02 float64 `json:"m02"`
	M11 float64 `json:"m11"`

	// Major and Minor are 1/e^2 diameters along the principal axes, Major >= Minor
	Major float64 `json:"major"`
	Minor float64 `json:"minor"`

	// Rotation is the angle of the major axis from +x in (-pi/2, pi/2]
	Rotation float64 `json:"rotation"`

	// Ellipticity is Minor/Major, in [0, 1]
	Ellipticity float64 `json:"ellipticity"`

	// MeanWidth is the 1/e^2 diameter of the equivalent round beam
	MeanWidth float64 `json:"meanWidth"`

	// Max is the largest sample after black subtraction
	Max float64 `json:"max"`

	Degenerate Degeneracy `json:"degenerate"`
}

// Analyze subtracts the background percentile from f and computes its moments.
// It has no state; the same input always gives the same output.
func Analyze(f *camera.Frame, background float64) Moments {
	return Subtract(f, background).Moments()
}

// Moments computes the moments of the plane
func (p Plane) Moments() Moments {
	m := Moments{Black: p.Black}
	w, h := p.Width, p.Height
	if w == 0 || h == 0 {
		m.M00, m.Ellipticity, m.Degenerate = 1, 1, Empty
		return m
	}
	cols := make([]float64, w)
	rows := make([]float64, h)
	for y := 0; y < h; y++ {
		row := p.Data[y*w : (y+1)*w]
		floats.Add(cols, row)
		rows[y] = floats.Sum(row)
	}
	m.Max = floats.Max(p.Data)

	sum := floats.Sum(cols)
	m.M00 = sum
	if m.M00 <= 0 {
		m.M00 = 1
		m.Degenerate = Empty
	}

	xs := index(w)
	ys := index(h)
	m.M10 = floats.Dot(cols, xs) / m.M00
	m.M01 = floats.Dot(rows, ys) / m.M00
	floats.AddConst(-m.M10, xs)
	floats.AddConst(-m.M01, ys)

	m.M20 = weightedSquares(cols, xs) / m.M00
	m.M02 = weightedSquares(rows, ys) / m.M00
	var m11 float64
	for y := 0; y < h; y++ {
		m11 += ys[y] * floats.Dot(p.Data[y*w:(y+1)*w], xs)
	}
	m.M11 = m11 / m.M00

	m.ellipse()
	return m
}

// ellipse fills in the axes and orientation from the second moments
func (m *Moments) ellipse() {
	s := m.M20 + m.M02
	d := m.M20 - m.M02
	m11 := m.M11
	tol := snap * math.Abs(s)
	if math.Abs(d) <= tol {
		d = 0
	}
	if math.Abs(m11) <= tol {
		m11 = 0
	}

	var a2, b2, t float64
	if d == 0 {
		a2 = s + 2*math.Abs(m11)
		b2 = s - 2*math.Abs(m11)
		t = math.Pi / 4 * mathx.Sign(m11)
	} else {
		q := mathx.Sign(d) * math.Sqrt(d*d+4*m11*m11)
		a2 = s + q
		b2 = s - q
		t = .5 * math.Atan2(2*m11, d)
	}
	a := diameter(a2)
	b := diameter(b2)
	// t always points along the larger eigenvalue; the sign of q does not
	if b > a {
		a, b = b, a
	}
	m.Major, m.Minor = a, b
	m.Rotation = halfTurn(t)
	if a > 0 {
		m.Ellipticity = b / a
	} else {
		m.Ellipticity = 1
	}
	m.MeanWidth = diameter(s)
}

// diameter converts a variance sum into a 1/e^2 diameter.  Negative
// values from noise or over-subtraction are treated as zero.
func diameter(v float64) float64 {
	if v <= 0 || math.IsNaN(v) {
		return 0
	}
	return 2 * math.Sqrt2 * math.Sqrt(v)
}

// halfTurn maps an undirected axis angle into (-pi/2, pi/2]
func halfTurn(t float64) float64 {
	for t <= -math.Pi/2 {
		t += math.Pi
	}
	for t > math.Pi/2 {
		t -= math.Pi
	}
	return t
}

// PeakCounts estimates the peak of the equivalent Gaussian in sample units,
// including the black level.  When the second moments are singular the
// largest sample is used instead.
func (m Moments) PeakCounts() float64 {
	det := m.M02*m.M20 - m.M11*m.M11
	if det > 0 && m.Degenerate != Empty {
		return m.M00/(2*math.Pi*math.Sqrt(det)) + m.Black
	}
	return m.Max + m.Black
}

func index(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i)
	}
	return out
}

func weightedSquares(weights, dx []float64) float64 {
	var acc float64
	for i, w := range weights {
		acc += w * dx[i] * dx[i]
	}
	return acc
}
