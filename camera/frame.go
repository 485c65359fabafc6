package camera

import "time"

// Frame is a 2D grid of intensity samples.  The data is row major,
// Pix[y*Width+x], with row 0 at the bottom of the capture window.
type Frame struct {
	Width  int
	Height int
	Pix    []int32

	// Captured is the time the frame was dequeued
	Captured time.Time
}

// NewFrame allocates a zeroed frame
func NewFrame(width, height int) *Frame {
	return &Frame{Width: width, Height: height, Pix: make([]int32, width*height)}
}

// At returns the sample at column x, row y
func (f *Frame) At(x, y int) int32 {
	return f.Pix[y*f.Width+x]
}

// Set sets the sample at column x, row y
func (f *Frame) Set(x, y int, v int32) {
	f.Pix[y*f.Width+x] = v
}

// SameShape returns true if o has the same width and height as f
func (f *Frame) SameShape(o *Frame) bool {
	if f == nil || o == nil {
		return false
	}
	return f.Width == o.Width && f.Height == o.Height
}

// Max returns the largest sample in the frame
func (f *Frame) Max() int32 {
	var m int32
	for i, v := range f.Pix {
		if i == 0 || v > m {
			m = v
		}
	}
	return m
}

// Clone returns a deep copy of the frame
func (f *Frame) Clone() *Frame {
	out := &Frame{Width: f.Width, Height: f.Height, Captured: f.Captured}
	out.Pix = make([]int32, len(f.Pix))
	copy(out.Pix, f.Pix)
	return out
}

// Floats returns the samples converted to float64
func (f *Frame) Floats() []float64 {
	out := make([]float64, len(f.Pix))
	for i, v := range f.Pix {
		out[i] = float64(v)
	}
	return out
}
