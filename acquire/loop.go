/*
Package acquire runs the capture and analysis loop of the beam profiler.

A Loop owns a camera.Source for the duration of a run.  Each cycle it
captures a frame, optionally lets the exposure controller bring the beam
into range, blends the frame into the running average, measures the beam,
builds the projections, and publishes one Result.  Results are published in
capture order; the most recent one is also available from Latest.

Stopping is cooperative.  Stop clears the active flag, which the loop checks
at the top of each cycle, so the cycle in flight always completes.
*/
package acquire

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/astrogo/fitsio"
	"github.com/cenkalti/backoff"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.jpl.nasa.gov/bdube/bullseye/beam"
	"github.jpl.nasa.gov/bdube/bullseye/camera"
	"github.jpl.nasa.gov/bdube/bullseye/exposure"
	"github.jpl.nasa.gov/bdube/bullseye/logging"
	"github.jpl.nasa.gov/bdube/bullseye/profile"
	"github.jpl.nasa.gov/bdube/bullseye/roi"
)

// State is the lifecycle state of a Loop
type State int

const (
	// Idle means no capture is in progress
	Idle State = iota

	// Configuring means the capture window is being applied and streaming started
	Configuring

	// Running means cycles are repeating
	Running

	// Stopping means the active flag was cleared and the last cycle is finishing
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Configuring:
		return "configuring"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// retryInterval is the pause between capture attempts after a timeout
const retryInterval = 20 * time.Millisecond

// Config holds the analysis and lifecycle settings of a Loop
type Config struct {
	// Background is the percentile subtracted from each frame, in [0, 50]
	Background float64 `json:"background"`

	// Average is the frame averaging factor, in [1, 10]
	Average int `json:"average"`

	// BinSize is the projection bin size in pixels
	BinSize float64 `json:"binSize"`

	// AutoShutter enables an exposure pass each cycle
	AutoShutter bool `json:"autoShutter"`

	// CaptureTimeout bounds each dequeue.  Zero waits indefinitely
	CaptureTimeout time.Duration `json:"captureTimeout"`

	// CaptureRetries is the number of times a timed out capture is retried before the run fails
	CaptureRetries int `json:"captureRetries"`

	// ShutdownTimeout bounds how long Stop waits for the loop to finish
	ShutdownTimeout time.Duration `json:"shutdownTimeout"`
}

// DefaultConfig is the stock loop configuration
var DefaultConfig = Config{
	Background:      5,
	Average:         1,
	BinSize:         1,
	CaptureTimeout:  2 * time.Second,
	CaptureRetries:  3,
	ShutdownTimeout: 5 * time.Second,
}

func (c Config) validate() error {
	if !(c.Background >= 0 && c.Background <= 50) {
		return fmt.Errorf("acquire: background percentile %g outside [0, 50]", c.Background)
	}
	if c.Average < 1 || c.Average > 10 {
		return fmt.Errorf("acquire: average %d outside [1, 10]", c.Average)
	}
	if !(c.BinSize > 0) {
		return fmt.Errorf("acquire: bin size %g must be positive", c.BinSize)
	}
	if c.CaptureRetries < 0 {
		return fmt.Errorf("acquire: capture retries %d must not be negative", c.CaptureRetries)
	}
	return nil
}

// Result is everything produced by one cycle
type Result struct {
	// Seq increases by one per published result within a session
	Seq uint64 `json:"seq"`

	// Session identifies the run (or priming pass) which produced the result
	Session uuid.UUID `json:"session"`

	// Captured is the capture time of the newest frame in the result
	Captured time.Time `json:"captured"`

	// Frame is the averaged frame that was analyzed
	Frame *camera.Frame `json:"-"`

	// Bounds is the capture window on the sensor
	Bounds camera.PixelBounds `json:"bounds"`

	// Axes are the physical pixel coordinates of the frame
	Axes roi.Axes `json:"-"`

	Measurement beam.Measurement `json:"-"`
	Geometry    beam.Geometry    `json:"geometry"`
	Profiles    profile.Set      `json:"-"`
	Markers     profile.Markers  `json:"-"`

	// Text is the human readable geometry summary
	Text string `json:"text"`

	// Exposure is the exposure state after the cycle
	Exposure exposure.State `json:"exposure"`

	// Adjust is the exposure pass, if one ran
	Adjust *exposure.Result `json:"adjust,omitempty"`

	// Saved is the path the frame was written to, if any
	Saved string `json:"saved,omitempty"`
}

// Sink receives each published result.  Publish is called from the loop
// goroutine and must not retain the result's frame for mutation.
type Sink interface {
	Publish(*Result)
}

// SinkFunc adapts a function to a Sink
type SinkFunc func(*Result)

// Publish implements Sink
func (f SinkFunc) Publish(r *Result) {
	f(r)
}

// Saver persists raw frames
type Saver interface {
	// Active reports if frames should be saved
	Active() bool

	// Save writes the frame captured at t with the given header cards and returns its path
	Save(t time.Time, f *camera.Frame, cards []fitsio.Card) (string, error)
}

// Loop is the acquisition loop.  All methods are safe for concurrent use.
type Loop struct {
	src   camera.Source
	exp   *exposure.Controller
	sink  Sink
	saver Saver
	log   logrus.FieldLogger

	mu      sync.Mutex
	state   State
	cfg     Config
	req     roi.Request
	pending bool
	mapping roi.Mapping
	session uuid.UUID
	seq     uint64
	done    chan struct{}
	err     error

	// halt is set by a Stop which arrives while the source is being configured
	halt bool

	// avg is only touched by the goroutine running cycles
	avg Averager

	active atomic.Bool
	latest atomic.Pointer[Result]
}

// New creates a loop around src.  sink and saver may be nil.
func New(src camera.Source, exp *exposure.Controller, cfg Config, req roi.Request, sink Sink, saver Saver, log logrus.FieldLogger) (*Loop, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logging.Discard()
	}
	done := make(chan struct{})
	close(done)
	return &Loop{
		src:   src,
		exp:   exp,
		sink:  sink,
		saver: saver,
		log:   log,
		cfg:   cfg,
		req:   req,
		done:  done,
	}, nil
}

// State returns the lifecycle state
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Active returns the active flag
func (l *Loop) Active() bool {
	return l.active.Load()
}

// Latest returns the most recent result, or nil if there is none
func (l *Loop) Latest() *Result {
	return l.latest.Load()
}

// Err returns the error which ended the last run, if any
func (l *Loop) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Done returns a channel which is closed when the current run exits.
// When the loop is idle the channel is already closed.
func (l *Loop) Done() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.done
}

// Session returns the id of the current or last run
func (l *Loop) Session() uuid.UUID {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.session
}

// Exposure returns the exposure controller
func (l *Loop) Exposure() *exposure.Controller {
	return l.exp
}

// Config returns a copy of the configuration
func (l *Loop) Config() Config {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cfg
}

// Mapping returns the ROI mapping in use
func (l *Loop) Mapping() roi.Mapping {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mapping
}

// ROI returns the requested region of interest
func (l *Loop) ROI() roi.Request {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.req
}

// SetROI requests a new region of interest.  While running, it is applied
// at the top of the next cycle; otherwise at the next Start or Prime.
func (l *Loop) SetROI(r roi.Request) error {
	if r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("acquire: roi %gx%g must have positive size", r.Width, r.Height)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.req = r
	l.pending = true
	return nil
}

// SetAverage sets the averaging factor, in [1, 10]
func (l *Loop) SetAverage(n int) error {
	return l.update(func(c *Config) { c.Average = n })
}

// SetBackground sets the background percentile, in [0, 50]
func (l *Loop) SetBackground(p float64) error {
	return l.update(func(c *Config) { c.Background = p })
}

// SetBinSize sets the projection bin size in pixels
func (l *Loop) SetBinSize(b float64) error {
	return l.update(func(c *Config) { c.BinSize = b })
}

// SetAutoShutter switches the per-cycle exposure pass on or off
func (l *Loop) SetAutoShutter(b bool) error {
	return l.update(func(c *Config) { c.AutoShutter = b })
}

func (l *Loop) update(fcn func(*Config)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	cfg := l.cfg
	fcn(&cfg)
	if err := cfg.validate(); err != nil {
		return err
	}
	l.cfg = cfg
	return nil
}

// claim moves the loop out of Idle, or reports who holds it
func (l *Loop) claim() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != Idle {
		return &ConcurrentStartError{State: l.state}
	}
	l.state = Configuring
	l.session = uuid.New()
	l.seq = 0
	l.err = nil
	l.halt = false
	l.done = make(chan struct{})
	return nil
}

// release returns a claimed loop to idle without running it
func (l *Loop) release() {
	l.mu.Lock()
	l.state = Idle
	close(l.done)
	l.mu.Unlock()
}

func (l *Loop) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

// configure applies the ROI and exposure state and starts streaming
func (l *Loop) configure() error {
	l.mu.Lock()
	req := l.req
	l.pending = false
	l.mu.Unlock()

	m, err := roi.Apply(l.src, req, l.log)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.mapping = m
	l.mu.Unlock()
	l.avg.Reset()
	if err = l.exp.Apply(); err != nil {
		return err
	}
	if err = l.src.Start(); err != nil {
		return fmt.Errorf("acquire: starting source: %w", err)
	}
	return nil
}

// Start configures the source and launches the loop.  Configuration errors,
// including a rejected capture window, are returned directly and leave the
// loop idle.  Starting a loop which is not idle is a *ConcurrentStartError.
// A Stop issued during configuration wins: the loop returns to idle and
// never runs.
func (l *Loop) Start() error {
	if err := l.claim(); err != nil {
		return err
	}
	if err := l.configure(); err != nil {
		l.stopSource("unable to stop source after failed start")
		l.release()
		return err
	}
	l.mu.Lock()
	if l.halt {
		l.mu.Unlock()
		l.stopSource("unable to stop source after cancelled start")
		l.log.Info("acquisition stopped during configuration")
		l.release()
		return nil
	}
	l.state = Running
	done := l.done
	session := l.session
	l.active.Store(true)
	l.mu.Unlock()

	l.log.WithField("session", session.String()).Info("acquisition started")
	go l.run(done)
	return nil
}

func (l *Loop) stopSource(msg string) {
	if err := l.src.Stop(); err != nil {
		l.log.WithError(err).Warn(msg)
	}
}

func (l *Loop) run(done chan struct{}) {
	ctx := context.Background()
	var err error
	for l.active.Load() {
		if err = l.cycle(ctx); err != nil {
			break
		}
	}
	l.active.Store(false)
	l.setState(Stopping)
	if serr := l.src.Stop(); serr != nil && err == nil {
		err = fmt.Errorf("acquire: stopping source: %w", serr)
	}
	if err != nil {
		l.log.WithError(err).Error("acquisition ended")
	} else {
		l.log.Info("acquisition stopped")
	}
	l.mu.Lock()
	l.err = err
	l.state = Idle
	l.mu.Unlock()
	close(done)
}

// Stop clears the active flag and waits up to the shutdown timeout for the
// in-flight cycle to complete.  Stopping an idle loop is a no-op; stopping
// a loop which is still configuring cancels the pending Start.
// If the loop does not finish in time a *LoopShutdownTimeout is returned;
// the loop will still stop on its own once the cycle completes.
func (l *Loop) Stop() error {
	l.mu.Lock()
	switch l.state {
	case Idle:
		l.mu.Unlock()
		return nil
	case Running:
		l.state = Stopping
	case Configuring:
		l.halt = true
	}
	done := l.done
	timeout := l.cfg.ShutdownTimeout
	l.mu.Unlock()

	l.active.Store(false)
	if timeout <= 0 {
		<-done
		return nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		err := &LoopShutdownTimeout{Timeout: timeout}
		l.log.Warn(err.Error())
		return err
	}
}

// Prime runs a single configure, capture, analyze and stop pass from idle,
// so a result is available before the loop is started
func (l *Loop) Prime(ctx context.Context) (*Result, error) {
	if err := l.claim(); err != nil {
		return nil, err
	}
	defer l.release()
	err := l.configure()
	if err == nil {
		err = l.cycle(ctx)
	}
	if serr := l.src.Stop(); serr != nil && err == nil {
		err = fmt.Errorf("acquire: stopping source: %w", serr)
	}
	if err != nil {
		return nil, err
	}
	return l.Latest(), nil
}

// applyPending moves to a newly requested ROI.  Streaming is stopped for the
// change since sources cannot reconfigure while streaming.
func (l *Loop) applyPending() error {
	l.mu.Lock()
	pending, req := l.pending, l.req
	l.pending = false
	l.mu.Unlock()
	if !pending {
		return nil
	}
	if err := l.src.Stop(); err != nil {
		return fmt.Errorf("acquire: stopping source: %w", err)
	}
	m, err := roi.Apply(l.src, req, l.log)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.mapping = m
	l.mu.Unlock()
	if err = l.src.Start(); err != nil {
		return fmt.Errorf("acquire: starting source: %w", err)
	}
	return nil
}

// capture dequeues a frame, retrying capture timeouts up to the configured count
func (l *Loop) capture(ctx context.Context, cfg Config) (*camera.Frame, error) {
	var f *camera.Frame
	op := func() error {
		dctx, cancel := ctx, context.CancelFunc(func() {})
		if cfg.CaptureTimeout > 0 {
			dctx, cancel = context.WithTimeout(ctx, cfg.CaptureTimeout)
		}
		defer cancel()
		var err error
		f, err = l.src.Dequeue(dctx)
		if err == nil {
			return nil
		}
		var cte *camera.CaptureTimeoutError
		if errors.As(err, &cte) {
			l.log.WithError(err).Warn("capture timed out")
			return err
		}
		return backoff.Permanent(err)
	}
	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(retryInterval), uint64(cfg.CaptureRetries))
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return nil, fmt.Errorf("acquire: capturing: %w", err)
	}
	return f, nil
}

// cycle runs one capture to publish pass
func (l *Loop) cycle(ctx context.Context) error {
	if err := l.applyPending(); err != nil {
		return err
	}
	cfg := l.Config()
	f, err := l.capture(ctx, cfg)
	if err != nil {
		return err
	}

	var adj *exposure.Result
	if cfg.AutoShutter {
		out, res, err := l.exp.Adjust(ctx, f)
		var cte *camera.CaptureTimeoutError
		switch {
		case errors.As(err, &cte):
			l.log.WithError(err).Warn("exposure pass interrupted")
		case err != nil:
			return err
		}
		f, adj = out, &res
	}

	raw := f
	f = l.avg.Add(f, cfg.Average)

	l.mu.Lock()
	mapping := l.mapping
	session := l.session
	l.seq++
	seq := l.seq
	l.mu.Unlock()

	s := l.src.Sensor()
	m := beam.Measure(f, cfg.Background, mapping.Bounds, s)
	r := &Result{
		Seq:         seq,
		Session:     session,
		Captured:    f.Captured,
		Frame:       f,
		Bounds:      mapping.Bounds,
		Axes:        mapping.Axes,
		Measurement: m,
		Geometry:    m.Geometry,
		Profiles:    profile.Build(m, mapping.Axes, s.PixelSize, cfg.BinSize),
		Markers:     profile.NewMarkers(m.Geometry),
		Text:        m.Geometry.Summary(),
		Exposure:    l.exp.State(),
		Adjust:      adj,
	}
	if l.saver != nil && l.saver.Active() {
		fn, err := l.saver.Save(raw.Captured, raw, r.cards())
		if err != nil {
			l.log.WithError(err).Warn("unable to save frame")
		} else {
			r.Saved = fn
		}
	}

	log := l.log.WithField("seq", seq)
	if w := m.Geometry.Warning; w != nil {
		log.WithField("reason", w.Reason.String()).Warn("degenerate frame")
	}
	log.Info(m.Geometry.CSV())

	l.latest.Store(r)
	if l.sink != nil {
		l.sink.Publish(r)
	}
	return nil
}

// cards are the FITS header cards recorded with a saved frame
func (r *Result) cards() []fitsio.Card {
	g := r.Geometry
	return []fitsio.Card{
		{Name: "DATE-OBS", Value: r.Captured.UTC().Format(time.RFC3339Nano), Comment: "capture time"},
		{Name: "SESSION", Value: r.Session.String(), Comment: "acquisition session"},
		{Name: "SEQ", Value: int(r.Seq), Comment: "cycle within session"},
		{Name: "EXPTIME", Value: r.Exposure.Shutter, Comment: "shutter, s"},
		{Name: "GAIN", Value: r.Exposure.Gain, Comment: "gain, dB"},
		{Name: "FPS", Value: r.Exposure.FrameRate, Comment: "frame rate, Hz"},
		{Name: "AOILEFT", Value: r.Bounds.Left, Comment: "first column on sensor"},
		{Name: "AOIBOT", Value: r.Bounds.Bottom, Comment: "first row on sensor"},
		{Name: "CENTX", Value: g.CentroidX, Comment: "centroid x, um"},
		{Name: "CENTY", Value: g.CentroidY, Comment: "centroid y, um"},
		{Name: "MAJOR", Value: g.Major, Comment: "1/e^2 major diameter, um"},
		{Name: "MINOR", Value: g.Minor, Comment: "1/e^2 minor diameter, um"},
		{Name: "ROTATION", Value: g.Rotation, Comment: "major axis angle, deg"},
		{Name: "BLACK", Value: g.BlackLevel, Comment: "subtracted background, counts"},
	}
}
