package camera

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSensor = Sensor{Width: 200, Height: 150, PixelSize: 5, MaxValue: 255}

func TestSensorFormat(t *testing.T) {
	assert.Equal(t, Mono8, testSensor.Format())
	assert.Equal(t, Mono16, Sensor{MaxValue: 4095}.Format())
	assert.Equal(t, PixelBounds{Width: 200, Height: 150}, testSensor.Full())
}

func TestFrameHelpers(t *testing.T) {
	f := NewFrame(3, 2)
	f.Set(2, 1, 7)
	assert.Equal(t, int32(7), f.At(2, 1))
	assert.Equal(t, int32(7), f.Pix[5])
	assert.Equal(t, int32(7), f.Max())

	g := f.Clone()
	g.Set(0, 0, 9)
	assert.Equal(t, int32(0), f.At(0, 0))
	assert.True(t, f.SameShape(g))
	assert.False(t, f.SameShape(NewFrame(2, 3)))
	assert.False(t, f.SameShape(nil))
	assert.Equal(t, []float64{0, 0, 0, 0, 0, 7}, f.Floats())
}

func TestModeConfigurationErrorUnwraps(t *testing.T) {
	cause := errors.New("bad")
	var err error = &ModeConfigurationError{Bounds: PixelBounds{1, 2, 3, 4}, Format: Mono8, Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "(1, 2, 3, 4)")
}

func TestMockConfigure(t *testing.T) {
	m := NewMock(testSensor, DefaultSpot, 1)
	b := PixelBounds{Left: 10, Bottom: 20, Width: 128, Height: 128}
	got, err := m.Configure(b, Mono8)
	require.NoError(t, err)
	assert.Equal(t, b, got)

	var mce *ModeConfigurationError
	_, err = m.Configure(b, Mono16)
	assert.ErrorAs(t, err, &mce)
	_, err = m.Configure(PixelBounds{Left: 100, Width: 128, Height: 128}, Mono8)
	assert.ErrorAs(t, err, &mce)

	require.NoError(t, m.Start())
	_, err = m.Configure(b, Mono8)
	assert.ErrorAs(t, err, &mce, "mode changes are refused while streaming")
	require.NoError(t, m.Stop())
}

func TestMockDequeueRequiresStreaming(t *testing.T) {
	m := NewMock(testSensor, DefaultSpot, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := m.Dequeue(ctx)
	var cte *CaptureTimeoutError
	require.ErrorAs(t, err, &cte)
	assert.Positive(t, cte.Timeout)
}

func TestMockRendersIntoBounds(t *testing.T) {
	spot := Spot{SigmaA: 50, SigmaB: 30, Height: .5}
	m := NewMock(testSensor, spot, 1)
	require.NoError(t, m.SetFrameRate(10))
	b := PixelBounds{Left: 36, Bottom: 11, Width: 128, Height: 128}
	_, err := m.Configure(b, Mono8)
	require.NoError(t, err)
	require.NoError(t, m.Start())
	f, err := m.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 128, f.Width)
	assert.Equal(t, 128, f.Height)
	assert.False(t, f.Captured.IsZero())

	// the sensor center (100, 75) is (64, 64) in the window
	assert.Equal(t, f.Max(), f.At(64, 64))
	assert.InDelta(t, 127, f.At(64, 64), 1)
}

func TestMockScalesWithShutterAndSaturates(t *testing.T) {
	spot := Spot{SigmaA: 50, SigmaB: 30, Height: .5}
	m := NewMock(testSensor, spot, 1)
	require.NoError(t, m.SetFrameRate(10))
	require.NoError(t, m.Start())
	require.NoError(t, m.SetShutter(1e-3/2))
	f, err := m.Dequeue(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 63, f.Max(), 1)

	require.NoError(t, m.SetShutter(1e-2))
	f, err = m.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(255), f.Max())
	assert.Error(t, m.SetShutter(0))
}

func TestMockFrameRateRange(t *testing.T) {
	m := NewMock(testSensor, DefaultSpot, 1)
	lo, hi := m.FrameRateRange()
	assert.Error(t, m.SetFrameRate(lo/2))
	assert.Error(t, m.SetFrameRate(hi*2))
	require.NoError(t, m.SetFrameRate(hi))
	assert.Equal(t, hi, m.FrameRate())
}
