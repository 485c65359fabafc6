package acquire

import "github.jpl.nasa.gov/bdube/bullseye/camera"

// Averager smooths a stream of frames.  With a factor N > 1 each new frame
// is blended into the previous output as (prev*N + new)/(N+1) in integer
// arithmetic.  This weights history geometrically rather than over a fixed
// window, and the integer division truncates, so the output sits slightly
// below the true mean.  A change of frame shape restarts the blend.
type Averager struct {
	prev *camera.Frame
}

// Add blends f into the running output and returns it.  f is not modified;
// returned frames are never modified afterwards.
func (a *Averager) Add(f *camera.Frame, n int) *camera.Frame {
	if n <= 1 || !a.prev.SameShape(f) {
		a.prev = f
		return f
	}
	out := camera.NewFrame(f.Width, f.Height)
	out.Captured = f.Captured
	N := int64(n)
	for i, v := range f.Pix {
		out.Pix[i] = int32((int64(a.prev.Pix[i])*N + int64(v)) / (N + 1))
	}
	a.prev = out
	return out
}

// Reset forgets the history
func (a *Averager) Reset() {
	a.prev = nil
}
