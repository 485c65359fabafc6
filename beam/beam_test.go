package beam

import (
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.jpl.nasa.gov/bdube/bullseye/camera"
)

// gaussFrame renders an elliptical Gaussian with standard deviations sa, sb,
// the sa axis rotated by angle radians from +x
func gaussFrame(w, h int, x0, y0, sa, sb, angle, peak float64) *camera.Frame {
	f := camera.NewFrame(w, h)
	c, s := math.Cos(angle), math.Sin(angle)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx, dy := float64(x)-x0, float64(y)-y0
			u := c*dx + s*dy
			v := -s*dx + c*dy
			val := peak * math.Exp(-(u*u/(sa*sa)+v*v/(sb*sb))/2)
			f.Set(x, y, int32(math.Round(val)))
		}
	}
	return f
}

func uniformFrame(w, h int, v int32) *camera.Frame {
	f := camera.NewFrame(w, h)
	for i := range f.Pix {
		f.Pix[i] = v
	}
	return f
}

// angleDiff is the difference between two undirected axis angles
func angleDiff(a, b float64) float64 {
	return math.Abs(math.Remainder(a-b, math.Pi))
}

func assertFinite(t *testing.T, m Moments) {
	t.Helper()
	for name, v := range map[string]float64{
		"m00": m.M00, "m10": m.M10, "m01": m.M01, "m20": m.M20, "m02": m.M02, "m11": m.M11,
		"major": m.Major, "minor": m.Minor, "rotation": m.Rotation, "ellipticity": m.Ellipticity,
		"peak": m.PeakCounts(),
	} {
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), "%s is not finite: %v", name, v)
	}
}

func TestAxisAlignedGaussian(t *testing.T) {
	f := gaussFrame(256, 256, 120.3, 135.7, 20, 10, 0, 60000)
	m := Analyze(f, 0)
	assert.InDelta(t, 120.3, m.M10, 0.01)
	assert.InDelta(t, 135.7, m.M01, 0.01)
	assert.InDelta(t, 0, m.Rotation, 1e-3)
	assert.InEpsilon(t, 0.5, m.Ellipticity, 0.01)
	assert.InEpsilon(t, 80, m.Major, 0.01)
	assert.InEpsilon(t, 40, m.Minor, 0.01)
	assert.InEpsilon(t, 60000, m.PeakCounts(), 0.01)
	assert.Equal(t, Normal, m.Degenerate)
}

func TestRotatedGaussian(t *testing.T) {
	aligned := Analyze(gaussFrame(256, 256, 128, 128, 20, 10, 0, 60000), 0)
	m := Analyze(gaussFrame(256, 256, 128, 128, 20, 10, math.Pi/6, 60000), 0)
	assert.Less(t, angleDiff(m.Rotation, math.Pi/6), 1e-3)
	assert.InEpsilon(t, 30, m.Rotation*180/math.Pi, 0.01)
	assert.InEpsilon(t, aligned.Major, m.Major, 0.01)
	assert.InEpsilon(t, aligned.Minor, m.Minor, 0.01)
	assert.InEpsilon(t, aligned.Ellipticity, m.Ellipticity, 0.01)
}

func TestRotationIsHalfTurn(t *testing.T) {
	// 120 degrees is the same axis as -60 degrees
	m := Analyze(gaussFrame(256, 256, 128, 128, 20, 10, 2*math.Pi/3, 60000), 0)
	assert.InDelta(t, -math.Pi/3, m.Rotation, 1e-3)
}

func TestMajorAlongY(t *testing.T) {
	m := Analyze(gaussFrame(256, 256, 128, 128, 10, 25, 0, 60000), 0)
	assert.Less(t, angleDiff(m.Rotation, math.Pi/2), 1e-3)
	assert.InEpsilon(t, 100, m.Major, 0.01)
	assert.InEpsilon(t, 40, m.Minor, 0.01)
	assert.GreaterOrEqual(t, m.Rotation, -math.Pi/2)
	assert.LessOrEqual(t, m.Rotation, math.Pi/2)
}

func TestDiagonalGaussian(t *testing.T) {
	m := Analyze(gaussFrame(256, 256, 128, 128, 20, 10, math.Pi/4, 60000), 0)
	assert.Less(t, angleDiff(m.Rotation, math.Pi/4), 1e-3)
	m = Analyze(gaussFrame(256, 256, 128, 128, 20, 10, -math.Pi/4, 60000), 0)
	assert.Less(t, angleDiff(m.Rotation, -math.Pi/4), 1e-3)
}

func TestUniformSquareFrame(t *testing.T) {
	m := Analyze(uniformFrame(64, 64, 100), 0)
	assertFinite(t, m)
	assert.Equal(t, 1., m.Ellipticity)
	assert.Equal(t, 0., m.Rotation)
	assert.Equal(t, m.Major, m.Minor)
}

func TestUniformFrameWithBackground(t *testing.T) {
	m := Analyze(uniformFrame(200, 130, 77), 5)
	assertFinite(t, m)
	assert.Equal(t, 77., m.Black)
	assert.Equal(t, 1., m.M00)
	assert.Equal(t, 1., m.Ellipticity)
	assert.Equal(t, Empty, m.Degenerate)
}

func TestZeroFrame(t *testing.T) {
	m := Analyze(camera.NewFrame(32, 32), 0)
	assertFinite(t, m)
	assert.Equal(t, 1., m.M00)
	assert.Equal(t, 1., m.Ellipticity)
	assert.Equal(t, Empty, m.Degenerate)
	assert.Equal(t, 0., m.PeakCounts())
}

func TestMajorNotLessThanMinor(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 50; i++ {
		w, h := 8+rng.Intn(40), 8+rng.Intn(40)
		f := camera.NewFrame(w, h)
		for j := range f.Pix {
			f.Pix[j] = int32(rng.Intn(256))
		}
		m := Analyze(f, float64(rng.Intn(30)))
		assertFinite(t, m)
		assert.GreaterOrEqual(t, m.Major, m.Minor)
		assert.GreaterOrEqual(t, m.Ellipticity, 0.)
		assert.LessOrEqual(t, m.Ellipticity, 1.)
		assert.Greater(t, m.Rotation, -math.Pi/2-1e-15)
		assert.LessOrEqual(t, m.Rotation, math.Pi/2)
	}
}

func TestAnalyzeIsPure(t *testing.T) {
	f := gaussFrame(128, 96, 60, 40, 12, 7, 0.4, 200)
	before := f.Clone()
	a := Analyze(f, 0)
	b := Analyze(f, 0)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("repeated analysis differs (-first +second):\n%s", diff)
	}
	Analyze(f, 10)
	if diff := cmp.Diff(before.Pix, f.Pix); diff != "" {
		t.Errorf("analysis modified the frame:\n%s", diff)
	}
}

func TestMeasurePhysical(t *testing.T) {
	s := camera.Sensor{Width: 1280, Height: 960, PixelSize: 3.75, MaxValue: 65535}
	b := camera.PixelBounds{Left: 600, Bottom: 400, Width: 256, Height: 256}
	f := gaussFrame(256, 256, 100, 140, 20, 10, 0, 60000)
	ms := Measure(f, 0, b, s)
	g := ms.Geometry
	assert.InDelta(t, (100+600-640)*3.75, g.CentroidX, 0.05)
	assert.InDelta(t, (140+400-480)*3.75, g.CentroidY, 0.05)
	assert.InEpsilon(t, 80*3.75, g.Major, 0.01)
	assert.InEpsilon(t, 40*3.75, g.Minor, 0.01)
	assert.InDelta(t, 0, g.Rotation, 0.1)
	assert.InEpsilon(t, 60000./65535, g.Peak, 0.01)
	assert.Nil(t, g.Warning)
	assert.Equal(t, 256, ms.Plane.Width)
}

func TestMeasureSaturated(t *testing.T) {
	s := camera.Sensor{Width: 256, Height: 256, PixelSize: 1, MaxValue: 255}
	f := gaussFrame(256, 256, 128, 128, 20, 10, 0, 1000)
	for i, v := range f.Pix {
		if v > 255 {
			f.Pix[i] = 255
		}
	}
	g := Measure(f, 0, s.Full(), s).Geometry
	require.NotNil(t, g.Warning)
	assert.Equal(t, Saturated, g.Warning.Reason)
	assert.LessOrEqual(t, g.Peak, 1.)
}

func TestSummaryOrder(t *testing.T) {
	g := Geometry{CentroidX: 1, CentroidY: 2, Major: 3, Minor: 4, Rotation: 5, Ellipticity: .6, BlackLevel: 7, Peak: .8}
	lines := strings.Split(strings.TrimSpace(g.Summary()), "\n")
	require.Len(t, lines, 8)
	assert.Equal(t, "centroid x: 1 µm", lines[0])
	assert.Equal(t, "centroid y: 2 µm", lines[1])
	assert.Equal(t, "major: 3 µm", lines[2])
	assert.Equal(t, "minor: 4 µm", lines[3])
	assert.Equal(t, "angle: 5°", lines[4])
	assert.Equal(t, "ellipticity: 0.6", lines[5])
	assert.Equal(t, "black: 7", lines[6])
	assert.Equal(t, "peak: 0.8", lines[7])
	assert.Equal(t, 8, len(strings.Split(g.CSV(), ",")))
}
