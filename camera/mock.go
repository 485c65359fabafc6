package camera

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Spot describes the synthetic beam a Mock renders, in microns relative to
// the sensor center
type Spot struct {
	// X, Y are the center of the spot
	X, Y float64

	// SigmaA, SigmaB are the standard deviations along the two principal axes
	SigmaA, SigmaB float64

	// Angle is the rotation of the A axis from +x, in radians
	Angle float64

	// Height is the peak as a fraction of the sensor max at the reference shutter
	Height float64

	// Noise is the standard deviation of the multiplicative noise
	Noise float64
}

// DefaultSpot is a 15 degree rotated elliptical spot with 20% noise
var DefaultSpot = Spot{
	X:      600,
	Y:      700,
	SigmaA: 250. / 4,
	SigmaB: 150. / 4,
	Angle:  15 * math.Pi / 180,
	Height: .8,
	Noise:  .2,
}

// referenceShutter is the shutter time at which Spot.Height is reached
const referenceShutter = 1e-3

// Mock is a synthetic Source.  The rendered intensity scales with shutter
// time and gain and saturates at the sensor max, so exposure control
// behaves as it would on hardware.
type Mock struct {
	sync.Mutex

	sensor    Sensor
	spot      Spot
	bounds    PixelBounds
	streaming bool
	shutter   float64
	gain      float64
	fps       float64
	fpsMin    float64
	fpsMax    float64
	limiter   *rate.Limiter
	rng       *rand.Rand
}

// NewMock returns a mock source for the given sensor and spot.
// The capture window is initially the full sensor.
func NewMock(s Sensor, spot Spot, seed int64) *Mock {
	return &Mock{
		sensor:  s,
		spot:    spot,
		bounds:  s.Full(),
		shutter: referenceShutter,
		fps:     2,
		fpsMin:  1,
		fpsMax:  10,
		limiter: rate.NewLimiter(rate.Limit(2), 1),
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// Sensor implements Source
func (m *Mock) Sensor() Sensor {
	return m.sensor
}

// Configure implements Source
func (m *Mock) Configure(b PixelBounds, f PixelFormat) (PixelBounds, error) {
	m.Lock()
	defer m.Unlock()
	if f != m.sensor.Format() {
		return b, &ModeConfigurationError{Bounds: b, Format: f, Err: errors.New("unsupported pixel format")}
	}
	if b.Left < 0 || b.Bottom < 0 || b.Width <= 0 || b.Height <= 0 ||
		b.Left+b.Width > m.sensor.Width || b.Bottom+b.Height > m.sensor.Height {
		return b, &ModeConfigurationError{Bounds: b, Format: f, Err: errors.New("window outside of sensor")}
	}
	if m.streaming {
		return b, &ModeConfigurationError{Bounds: b, Format: f, Err: errors.New("cannot change mode while streaming")}
	}
	m.bounds = b
	return b, nil
}

// Start implements Source
func (m *Mock) Start() error {
	m.Lock()
	defer m.Unlock()
	m.streaming = true
	return nil
}

// Stop implements Source
func (m *Mock) Stop() error {
	m.Lock()
	defer m.Unlock()
	m.streaming = false
	return nil
}

// SetShutter implements Source
func (m *Mock) SetShutter(s float64) error {
	if s <= 0 {
		return errors.New("camera: shutter must be positive")
	}
	m.Lock()
	defer m.Unlock()
	m.shutter = s
	return nil
}

// SetGain implements Source
func (m *Mock) SetGain(g float64) error {
	m.Lock()
	defer m.Unlock()
	m.gain = g
	return nil
}

// SetFrameRate implements Source
func (m *Mock) SetFrameRate(fps float64) error {
	m.Lock()
	defer m.Unlock()
	if fps < m.fpsMin || fps > m.fpsMax {
		return errors.New("camera: frame rate out of range")
	}
	m.fps = fps
	m.limiter.SetLimit(rate.Limit(fps))
	return nil
}

// FrameRateRange implements Source
func (m *Mock) FrameRateRange() (float64, float64) {
	return m.fpsMin, m.fpsMax
}

// FrameRate returns the current frame rate
func (m *Mock) FrameRate() float64 {
	m.Lock()
	defer m.Unlock()
	return m.fps
}

// Shutter returns the current shutter time
func (m *Mock) Shutter() float64 {
	m.Lock()
	defer m.Unlock()
	return m.shutter
}

// Flush implements Source.  The mock renders on demand and has no queue.
func (m *Mock) Flush() error {
	return nil
}

// Dequeue implements Source.  Frames are paced at the frame rate.
func (m *Mock) Dequeue(ctx context.Context) (*Frame, error) {
	var timeout time.Duration
	if dl, ok := ctx.Deadline(); ok {
		timeout = time.Until(dl)
	}
	m.Lock()
	streaming := m.streaming
	m.Unlock()
	if !streaming {
		<-ctx.Done()
		return nil, &CaptureTimeoutError{Timeout: timeout}
	}
	if err := m.limiter.Wait(ctx); err != nil {
		return nil, &CaptureTimeoutError{Timeout: timeout}
	}
	m.Lock()
	defer m.Unlock()
	f := m.render()
	f.Captured = time.Now()
	return f, nil
}

// render draws the spot into the current bounds.  Must hold the lock.
func (m *Mock) render() *Frame {
	s, b, sp := m.sensor, m.bounds, m.spot
	f := NewFrame(b.Width, b.Height)
	peak := sp.Height * float64(s.MaxValue) * m.shutter / referenceShutter * math.Pow(10, m.gain/20)
	cos, sin := math.Cos(sp.Angle), math.Sin(sp.Angle)
	halfW, halfH := float64(s.Width)/2, float64(s.Height)/2
	for j := 0; j < b.Height; j++ {
		y := (float64(b.Bottom+j)-halfH)*s.PixelSize - sp.Y
		for i := 0; i < b.Width; i++ {
			x := (float64(b.Left+i)-halfW)*s.PixelSize - sp.X
			u := cos*x + sin*y
			v := -sin*x + cos*y
			val := peak * math.Exp(-((u/sp.SigmaA)*(u/sp.SigmaA)+(v/sp.SigmaB)*(v/sp.SigmaB))/2)
			if sp.Noise > 0 {
				val *= 1 + m.rng.NormFloat64()*sp.Noise
			}
			if val < 0 {
				val = 0
			} else if val > float64(s.MaxValue) {
				val = float64(s.MaxValue)
			}
			f.Pix[j*b.Width+i] = int32(val)
		}
	}
	return f
}
