package profile

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.jpl.nasa.gov/bdube/bullseye/beam"
	"github.jpl.nasa.gov/bdube/bullseye/camera"
	"github.jpl.nasa.gov/bdube/bullseye/roi"
)

func gaussPlane(w, h int, x0, y0, sa, sb, angle, peak float64) beam.Plane {
	p := beam.Plane{Width: w, Height: h, Data: make([]float64, w*h)}
	c, s := math.Cos(angle), math.Sin(angle)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx, dy := float64(x)-x0, float64(y)-y0
			u := c*dx + s*dy
			v := -s*dx + c*dy
			p.Data[y*w+x] = peak * math.Exp(-(u*u/(sa*sa)+v*v/(sb*sb))/2)
		}
	}
	return p
}

func TestAngleSumZeroIsColumnSums(t *testing.T) {
	p := gaussPlane(20, 10, 8, 4, 3, 2, 0.3, 10)
	sum := AngleSum(p, 0, 1)
	require.Len(t, sum, 21)
	for x := 0; x < 20; x++ {
		var col float64
		for y := 0; y < 10; y++ {
			col += p.At(x, y)
		}
		assert.InDelta(t, col, sum[x], 1e-9)
	}
	assert.Equal(t, 0., sum[20])
}

func TestAngleSumQuarterTurnIsRowSums(t *testing.T) {
	p := gaussPlane(20, 10, 8, 4, 3, 2, 0.3, 10)
	sum := AngleSum(p, math.Pi/2, 1)
	for y := 0; y < 10; y++ {
		var row float64
		for x := 0; x < 20; x++ {
			row += p.At(x, y)
		}
		assert.InDelta(t, row, sum[y], 1e-9)
	}
}

func TestAngleSumConservesTotal(t *testing.T) {
	p := gaussPlane(64, 48, 30, 20, 8, 5, 1, 100)
	total := floats.Sum(p.Data)
	for _, angle := range []float64{-2, -0.7, 0.1, 0.5, 1.2, 3} {
		for _, bin := range []float64{1, 2, 3.5} {
			assert.InDelta(t, total, floats.Sum(AngleSum(p, angle, bin)), 1e-6*total)
		}
	}
}

func TestAxisProfileOfRotatedGaussian(t *testing.T) {
	p := gaussPlane(256, 256, 120, 136, 20, 10, math.Pi/6, 1000)
	m := p.Moments()
	major := Axis("major", p, m, m.Rotation, m.Major, 1, 1)
	minor := Axis("minor", p, m, m.Rotation+math.Pi/2, m.Minor, 1, 1)

	for _, c := range []struct {
		pr    Projection
		sigma float64
		width float64
	}{{major, 20, m.Major}, {minor, 10, m.Minor}} {
		total := floats.Sum(c.pr.Measured)
		assert.InEpsilon(t, m.M00, total, 0.01, c.pr.Name)
		assert.InEpsilon(t, m.M00, floats.Sum(c.pr.Reference), 0.01, c.pr.Name)

		var mean, variance float64
		for i, v := range c.pr.Measured {
			mean += v * c.pr.Coord[i]
		}
		mean /= total
		for i, v := range c.pr.Measured {
			d := c.pr.Coord[i] - mean
			variance += v * d * d
		}
		variance /= total
		assert.InDelta(t, 0, mean, 0.1, c.pr.Name)
		assert.InEpsilon(t, c.sigma*c.sigma, variance, 0.02, c.pr.Name)

		// the window spans CropFactor axis lengths either side
		assert.InDelta(t, -CropFactor*c.width, c.pr.Coord[0], 1.5, c.pr.Name)
		assert.InDelta(t, CropFactor*c.width, c.pr.Coord[len(c.pr.Coord)-1], 1.5, c.pr.Name)
	}
}

func TestBuildXY(t *testing.T) {
	s := camera.Sensor{Width: 256, Height: 256, PixelSize: 2, MaxValue: 65535}
	f := camera.NewFrame(256, 256)
	p := gaussPlane(256, 256, 100, 150, 15, 9, 0, 5000)
	for i, v := range p.Data {
		f.Pix[i] = int32(math.Round(v))
	}
	ms := beam.Measure(f, 0, s.Full(), s)
	set := Build(ms, roi.NewAxes(s.Full(), s), s.PixelSize, 1)
	require.Len(t, set.All(), 4)
	assert.Equal(t, []string{"x", "y", "major", "minor"},
		[]string{set.X.Name, set.Y.Name, set.Major.Name, set.Minor.Name})
	assert.Len(t, set.X.Measured, 256)
	assert.Len(t, set.X.Coord, 256)
	assert.Len(t, set.Y.Reference, 256)

	peakX := floats.MaxIdx(set.X.Measured)
	assert.InDelta(t, 100, peakX, 1)
	assert.InDelta(t, set.X.Measured[peakX], set.X.Reference[peakX], 0.01*set.X.Measured[peakX])
	peakY := floats.MaxIdx(set.Y.Reference)
	assert.InDelta(t, 150, peakY, 1)
}

func TestDegenerateProfilesAreFinite(t *testing.T) {
	p := beam.Plane{Width: 32, Height: 32, Data: make([]float64, 32*32)}
	m := p.Moments()
	ms := beam.Measurement{Plane: p, Moments: m}
	s := camera.Sensor{Width: 32, Height: 32, PixelSize: 1, MaxValue: 255}
	set := Build(ms, roi.NewAxes(s.Full(), s), 1, 1)
	for _, pr := range set.All() {
		for i := range pr.Measured {
			assert.False(t, math.IsNaN(pr.Reference[i]) || math.IsInf(pr.Reference[i], 0), pr.Name)
			assert.False(t, math.IsNaN(pr.Coord[i]), pr.Name)
		}
	}
	assert.NotEmpty(t, set.Major.Measured)
}

func TestMarkers(t *testing.T) {
	g := beam.Geometry{CentroidX: 10, CentroidY: -5, Major: 8, Minor: 4, Rotation: 90}
	m := NewMarkers(g)
	require.Len(t, m.Inner, markerPoints)
	// phi = 0 lies on the major axis, which points along +y
	assert.InDelta(t, 10, m.Inner[0].X, 1e-9)
	assert.InDelta(t, -5+4, m.Inner[0].Y, 1e-9)
	assert.InDelta(t, -5+12, m.Outer[0].Y, 1e-9)
	assert.InDelta(t, -5-12, m.MajorAxis[0].Y, 1e-9)
	assert.InDelta(t, 10+6, m.MinorAxis[0].X, 1e-9)
}

func TestAxisReferenceWidth(t *testing.T) {
	p := gaussPlane(256, 256, 128, 128, 16, 8, 0.4, 1000)
	m := p.Moments()
	pr := Axis("major", p, m, m.Rotation, m.Major, 1, 1)

	var total, variance float64
	for i, v := range pr.Reference {
		total += v
		variance += v * pr.Coord[i] * pr.Coord[i]
	}
	variance /= total
	sigma := m.Major / 4
	assert.InEpsilon(t, sigma*sigma, variance, 0.02, "reference is a Gaussian with a 1/e^2 diameter of the major axis")
	assert.InEpsilon(t, 16., sigma, 0.05)
}
