/*
Package exposure keeps a beam inside the useful range of the sensor by
adjusting the shutter time.

The Controller owns the exposure state (shutter, gain, frame rate) of a
camera.Source.  Changes are plain setter calls which write through to the
source.  Adjust runs a convergence pass which steps the shutter
geometrically until a high percentile of the frame lies inside a target band
expressed as fractions of the sensor maximum.
*/
package exposure

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.jpl.nasa.gov/bdube/bullseye/camera"
	"github.jpl.nasa.gov/bdube/bullseye/logging"
	"github.jpl.nasa.gov/bdube/bullseye/mathx"
)

// Direction is the way a convergence step moved the shutter
type Direction string

const (
	// Up lengthens the shutter
	Up Direction = "+"

	// Down shortens the shutter
	Down Direction = "-"

	// Hold leaves the shutter alone; the brightness is in band
	Hold Direction = "="
)

// State is the exposure configuration of the source
type State struct {
	// Shutter is the exposure time in seconds
	Shutter float64 `json:"shutter"`

	// Gain is in dB
	Gain float64 `json:"gain"`

	// FrameRate is in Hz
	FrameRate float64 `json:"frameRate"`
}

// Limits bounds the values a State may take
type Limits struct {
	ShutterMin float64 `json:"shutterMin"`
	ShutterMax float64 `json:"shutterMax"`
	GainMin    float64 `json:"gainMin"`
	GainMax    float64 `json:"gainMax"`
}

// DefaultLimits are the shutter and gain ranges of a typical machine vision sensor
var DefaultLimits = Limits{ShutterMin: 5e-6, ShutterMax: 100e-3, GainMin: -6, GainMax: 24}

// Settings tune the convergence pass
type Settings struct {
	// Percentile is the brightness proxy, in [0, 100]
	Percentile float64 `json:"percentile"`

	// MinVal and MaxVal bound the target band, as fractions of the sensor max
	MinVal float64 `json:"minVal"`
	MaxVal float64 `json:"maxVal"`

	// Factor is the multiplicative shutter step, in (0, 1)
	Factor float64 `json:"factor"`

	// MaxIter is the most frames a single pass will capture
	MaxIter int `json:"maxIter"`

	// CaptureTimeout bounds each dequeue during the pass.  Zero waits on ctx alone
	CaptureTimeout time.Duration `json:"captureTimeout"`
}

// DefaultSettings target the 99th percentile into [.25, .75]
var DefaultSettings = Settings{Percentile: 99, MinVal: .25, MaxVal: .75, Factor: .6, MaxIter: 10}

// Result summarizes a convergence pass
type Result struct {
	// Brightness is the last measured percentile, as a fraction of the sensor max
	Brightness float64

	// Captures is the number of frames taken during the pass
	Captures int

	// Iterations is the number of shutter changes made
	Iterations int

	// Direction is the last step taken
	Direction Direction

	// Converged is true if the pass ended with the brightness in band
	Converged bool

	// Shutter is the shutter time after the pass
	Shutter float64
}

// Controller owns the exposure state of a source.  It is safe for concurrent use;
// a convergence pass holds the controller for its duration.
type Controller struct {
	mu     sync.Mutex
	src    camera.Source
	state  State
	limits Limits
	set    Settings
	log    logrus.FieldLogger
}

// NewController creates a controller.  The state is not written to the source until Apply is called.
func NewController(src camera.Source, initial State, lim Limits, set Settings, log logrus.FieldLogger) (*Controller, error) {
	if lim.ShutterMin <= 0 || lim.ShutterMax < lim.ShutterMin {
		return nil, fmt.Errorf("exposure: invalid shutter range [%g, %g]", lim.ShutterMin, lim.ShutterMax)
	}
	if set.Factor <= 0 || set.Factor >= 1 {
		return nil, fmt.Errorf("exposure: adjustment factor %g must be in (0, 1)", set.Factor)
	}
	if set.MinVal >= set.MaxVal {
		return nil, fmt.Errorf("exposure: empty target band [%g, %g]", set.MinVal, set.MaxVal)
	}
	if log == nil {
		log = logging.Discard()
	}
	initial.Shutter = mathx.Clamp(initial.Shutter, lim.ShutterMin, lim.ShutterMax)
	return &Controller{src: src, state: initial, limits: lim, set: set, log: log}, nil
}

// Apply writes the full state to the source
func (c *Controller) Apply() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.src.SetShutter(c.state.Shutter); err != nil {
		return fmt.Errorf("exposure: setting shutter: %w", err)
	}
	if err := c.src.SetGain(c.state.Gain); err != nil {
		return fmt.Errorf("exposure: setting gain: %w", err)
	}
	if err := c.src.SetFrameRate(c.state.FrameRate); err != nil {
		return fmt.Errorf("exposure: setting frame rate: %w", err)
	}
	return nil
}

// State returns a copy of the current state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Limits returns the configured limits
func (c *Controller) Limits() Limits {
	return c.limits
}

// Settings returns the convergence settings
func (c *Controller) Settings() Settings {
	return c.set
}

// SetShutter sets the shutter time, which must be within the limits
func (c *Controller) SetShutter(s float64) error {
	if s < c.limits.ShutterMin || s > c.limits.ShutterMax {
		return fmt.Errorf("exposure: shutter %g outside [%g, %g]", s, c.limits.ShutterMin, c.limits.ShutterMax)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setShutter(s)
}

// setShutter must be called with the lock held
func (c *Controller) setShutter(s float64) error {
	if err := c.src.SetShutter(s); err != nil {
		return fmt.Errorf("exposure: setting shutter: %w", err)
	}
	c.state.Shutter = s
	return nil
}

// SetGain sets the gain, which must be within the limits
func (c *Controller) SetGain(g float64) error {
	if g < c.limits.GainMin || g > c.limits.GainMax {
		return fmt.Errorf("exposure: gain %g outside [%g, %g]", g, c.limits.GainMin, c.limits.GainMax)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.src.SetGain(g); err != nil {
		return fmt.Errorf("exposure: setting gain: %w", err)
	}
	c.state.Gain = g
	return nil
}

// SetFrameRate sets the frame rate, which must be within the source's range
func (c *Controller) SetFrameRate(fps float64) error {
	lo, hi := c.src.FrameRateRange()
	if fps < lo || fps > hi {
		return fmt.Errorf("exposure: frame rate %g outside [%g, %g]", fps, lo, hi)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.src.SetFrameRate(fps); err != nil {
		return fmt.Errorf("exposure: setting frame rate: %w", err)
	}
	c.state.FrameRate = fps
	return nil
}

// Brightness returns the configured percentile of f as a fraction of the sensor max
func (c *Controller) Brightness(f *camera.Frame) float64 {
	full := c.src.Sensor().MaxValue
	if full <= 0 {
		full = 1
	}
	return mathx.PercentileInt32(f.Pix, c.set.Percentile) / float64(full)
}

// engages reports if brightness p is out of band with room to move the shutter.
// Must hold the lock.
func (c *Controller) engages(p float64) bool {
	s := c.state.Shutter
	return (p < c.set.MinVal && s < c.limits.ShutterMax) ||
		(p > c.set.MaxVal && s > c.limits.ShutterMin)
}

// NeedsAdjust returns true if f is outside the target band and the shutter can move toward it
func (c *Controller) NeedsAdjust(f *camera.Frame) bool {
	p := c.Brightness(f)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engages(p)
}

// Adjust runs a convergence pass if f is out of band, returning the last
// frame captured (or f itself if nothing was done).  The frame rate is raised
// to its maximum for the pass and restored on every exit.  Running out of
// iterations or hitting a shutter limit is not an error.
func (c *Controller) Adjust(ctx context.Context, f *camera.Frame) (out *camera.Frame, res Result, err error) {
	out = f
	res.Brightness = c.Brightness(f)
	res.Direction = Hold

	c.mu.Lock()
	defer c.mu.Unlock()
	res.Shutter = c.state.Shutter
	if !c.engages(res.Brightness) {
		res.Converged = res.Brightness >= c.set.MinVal && res.Brightness <= c.set.MaxVal
		return out, res, nil
	}

	_, fpsMax := c.src.FrameRateRange()
	if err = c.src.SetFrameRate(fpsMax); err != nil {
		return out, res, fmt.Errorf("exposure: raising frame rate: %w", err)
	}
	defer func() {
		if rerr := c.src.SetFrameRate(c.state.FrameRate); rerr != nil && err == nil {
			err = fmt.Errorf("exposure: restoring frame rate: %w", rerr)
		}
	}()

	for res.Captures < c.set.MaxIter {
		// frames from before the last change carry stale exposure
		if err = c.src.Flush(); err != nil {
			return out, res, fmt.Errorf("exposure: flushing: %w", err)
		}
		var im *camera.Frame
		im, err = c.dequeue(ctx)
		if err != nil {
			return out, res, err
		}
		out = im
		res.Captures++

		p := c.Brightness(im)
		res.Brightness = p
		s := c.state.Shutter
		dir := Hold
		switch {
		case p > c.set.MaxVal:
			s = math.Max(c.limits.ShutterMin, s*c.set.Factor)
			dir = Down
		case p < c.set.MinVal:
			s = math.Min(c.limits.ShutterMax, s/c.set.Factor)
			dir = Up
		}
		res.Direction = dir
		c.log.WithFields(logrus.Fields{"p": p, "dir": string(dir), "shutter": s}).Debug("exposure step")
		if dir == Hold {
			res.Converged = true
			break
		}
		if err = c.setShutter(s); err != nil {
			return out, res, err
		}
		res.Iterations++
		res.Shutter = s
		if s <= c.limits.ShutterMin || s >= c.limits.ShutterMax {
			break
		}
	}
	return out, res, nil
}

func (c *Controller) dequeue(ctx context.Context) (*camera.Frame, error) {
	if c.set.CaptureTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.set.CaptureTimeout)
		defer cancel()
	}
	return c.src.Dequeue(ctx)
}
