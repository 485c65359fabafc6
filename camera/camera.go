/*
Package camera describes the frame source a beam profiler consumes.

The Source interface contains the knobs the analysis engine needs from a
camera driver: the capture window, streaming, exposure controls, and a frame
queue.  Drivers themselves live outside of this module; Mock is a synthetic
source which renders a noisy Gaussian spot and is used when no hardware is
attached.
*/
package camera

import (
	"context"
	"fmt"
	"time"
)

// PixelFormat names the sample format requested from the sensor
type PixelFormat string

const (
	// Mono8 is 8 bits per pixel, monochrome
	Mono8 PixelFormat = "Y8"

	// Mono16 is 16 bits per pixel, monochrome
	Mono16 PixelFormat = "Y16"
)

// PixelBounds is a capture window on the sensor, in pixels.
// Left and Bottom are 0-based.
type PixelBounds struct {
	// Left is the first column of the window
	Left int `json:"left"`

	// Bottom is the first row of the window
	Bottom int `json:"bottom"`

	// Width is the number of columns
	Width int `json:"width"`

	// Height is the number of rows
	Height int `json:"height"`
}

// String implements fmt.Stringer
func (b PixelBounds) String() string {
	return fmt.Sprintf("(%d, %d, %d, %d)", b.Left, b.Bottom, b.Width, b.Height)
}

// Sensor describes the fixed geometry of a sensor
type Sensor struct {
	// Width is the full sensor width in pixels
	Width int `json:"width"`

	// Height is the full sensor height in pixels
	Height int `json:"height"`

	// PixelSize is the pixel pitch in microns
	PixelSize float64 `json:"pixelSize"`

	// MaxValue is the largest representable sample, e.g. 255 for 8 bits
	MaxValue int `json:"maxValue"`
}

// Full returns the pixel bounds covering the whole sensor
func (s Sensor) Full() PixelBounds {
	return PixelBounds{Width: s.Width, Height: s.Height}
}

// Format returns the pixel format matching MaxValue
func (s Sensor) Format() PixelFormat {
	if s.MaxValue > 255 {
		return Mono16
	}
	return Mono8
}

// Source is a camera which streams frames and exposes exposure controls.
//
// Shutter is in seconds, gain in dB, and frame rate in Hz.
type Source interface {
	// Sensor returns the sensor geometry
	Sensor() Sensor

	// Configure sets the capture window and pixel format.  The source
	// may round the window to what the hardware supports; the bounds
	// actually in use are returned.  Rejections are *ModeConfigurationError
	Configure(PixelBounds, PixelFormat) (PixelBounds, error)

	// Start begins streaming frames into the queue
	Start() error

	// Stop ends streaming
	Stop() error

	// SetShutter sets the shutter (exposure) time in seconds
	SetShutter(float64) error

	// SetGain sets the gain in dB
	SetGain(float64) error

	// SetFrameRate sets the frame rate in Hz
	SetFrameRate(float64) error

	// FrameRateRange returns the (min, max) supported frame rate
	FrameRateRange() (float64, float64)

	// Dequeue blocks for the next frame.  If ctx expires first a
	// *CaptureTimeoutError is returned
	Dequeue(ctx context.Context) (*Frame, error)

	// Flush discards any frames already in the queue
	Flush() error
}

// ModeConfigurationError is returned when the sensor rejects a capture window or format
type ModeConfigurationError struct {
	Bounds PixelBounds
	Format PixelFormat
	Err    error
}

func (e *ModeConfigurationError) Error() string {
	return fmt.Sprintf("camera: mode %s with bounds %s rejected: %v", e.Format, e.Bounds, e.Err)
}

func (e *ModeConfigurationError) Unwrap() error {
	return e.Err
}

// CaptureTimeoutError is returned when no frame arrives within the expected interval
type CaptureTimeoutError struct {
	Timeout time.Duration
}

func (e *CaptureTimeoutError) Error() string {
	if e.Timeout == 0 {
		return "camera: capture timed out"
	}
	return fmt.Sprintf("camera: no frame within %v", e.Timeout)
}
