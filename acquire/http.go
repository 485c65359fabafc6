package acquire

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.jpl.nasa.gov/bdube/bullseye/camera"
	"github.jpl.nasa.gov/bdube/bullseye/exposure"
	"github.jpl.nasa.gov/bdube/bullseye/roi"
	"github.jpl.nasa.gov/bdube/bullseye/server"
)

// errNoResult is returned by result routes before the first cycle completes
var errNoResult = errors.New("acquire: no result yet")

// Status is a snapshot of the loop for the /state route
type Status struct {
	State    string             `json:"state"`
	Active   bool               `json:"active"`
	Session  uuid.UUID          `json:"session"`
	Seq      uint64             `json:"seq"`
	Exposure exposure.State     `json:"exposure"`
	Limits   exposure.Limits    `json:"limits"`
	Config   Config             `json:"config"`
	ROI      roi.Request        `json:"roi"`
	Bounds   camera.PixelBounds `json:"bounds"`
	Err      string             `json:"err,omitempty"`
}

// Status returns a snapshot of the loop
func (l *Loop) Status() Status {
	st := Status{
		State:    l.State().String(),
		Active:   l.Active(),
		Session:  l.Session(),
		Exposure: l.exp.State(),
		Limits:   l.exp.Limits(),
		Config:   l.Config(),
		ROI:      l.ROI(),
		Bounds:   l.Mapping().Bounds,
	}
	if r := l.Latest(); r != nil {
		st.Seq = r.Seq
	}
	if err := l.Err(); err != nil {
		st.Err = err.Error()
	}
	return st
}

// HTTPWrapper exposes a Loop over HTTP
type HTTPWrapper struct {
	Loop *Loop

	server.RouteTable
}

// NewHTTPWrapper returns a new wrapper with the route table populated
func NewHTTPWrapper(l *Loop) HTTPWrapper {
	w := HTTPWrapper{Loop: l, RouteTable: server.RouteTable{}}
	exp := l.Exposure()
	rt := w.RouteTable
	rt[server.MethodPath{Method: http.MethodGet, Path: "/geometry"}] = server.GetJSON(func() (interface{}, error) {
		r := l.Latest()
		if r == nil {
			return nil, errNoResult
		}
		return r.Geometry, nil
	})
	rt[server.MethodPath{Method: http.MethodGet, Path: "/result"}] = server.GetJSON(func() (interface{}, error) {
		r := l.Latest()
		if r == nil {
			return nil, errNoResult
		}
		return r, nil
	})
	rt[server.MethodPath{Method: http.MethodGet, Path: "/summary"}] = w.GetSummary
	rt[server.MethodPath{Method: http.MethodGet, Path: "/state"}] = server.GetJSON(func() (interface{}, error) {
		return l.Status(), nil
	})

	rt[server.MethodPath{Method: http.MethodGet, Path: "/active"}] = server.GetBool(func() (bool, error) {
		return l.Active(), nil
	})
	rt[server.MethodPath{Method: http.MethodPost, Path: "/active"}] = server.SetBool(func(b bool) error {
		if b {
			return l.Start()
		}
		return l.Stop()
	})

	rt[server.MethodPath{Method: http.MethodGet, Path: "/shutter"}] = server.GetFloat(func() (float64, error) {
		return exp.State().Shutter, nil
	})
	rt[server.MethodPath{Method: http.MethodPost, Path: "/shutter"}] = server.SetFloat(exp.SetShutter)
	rt[server.MethodPath{Method: http.MethodGet, Path: "/gain"}] = server.GetFloat(func() (float64, error) {
		return exp.State().Gain, nil
	})
	rt[server.MethodPath{Method: http.MethodPost, Path: "/gain"}] = server.SetFloat(exp.SetGain)
	rt[server.MethodPath{Method: http.MethodGet, Path: "/framerate"}] = server.GetFloat(func() (float64, error) {
		return exp.State().FrameRate, nil
	})
	rt[server.MethodPath{Method: http.MethodPost, Path: "/framerate"}] = server.SetFloat(exp.SetFrameRate)

	rt[server.MethodPath{Method: http.MethodGet, Path: "/auto-shutter"}] = server.GetBool(func() (bool, error) {
		return l.Config().AutoShutter, nil
	})
	rt[server.MethodPath{Method: http.MethodPost, Path: "/auto-shutter"}] = server.SetBool(l.SetAutoShutter)
	rt[server.MethodPath{Method: http.MethodGet, Path: "/average"}] = server.GetInt(func() (int, error) {
		return l.Config().Average, nil
	})
	rt[server.MethodPath{Method: http.MethodPost, Path: "/average"}] = server.SetInt(l.SetAverage)
	rt[server.MethodPath{Method: http.MethodGet, Path: "/background"}] = server.GetFloat(func() (float64, error) {
		return l.Config().Background, nil
	})
	rt[server.MethodPath{Method: http.MethodPost, Path: "/background"}] = server.SetFloat(l.SetBackground)
	rt[server.MethodPath{Method: http.MethodGet, Path: "/binsize"}] = server.GetFloat(func() (float64, error) {
		return l.Config().BinSize, nil
	})
	rt[server.MethodPath{Method: http.MethodPost, Path: "/binsize"}] = server.SetFloat(l.SetBinSize)

	rt[server.MethodPath{Method: http.MethodGet, Path: "/roi"}] = server.GetJSON(func() (interface{}, error) {
		return l.ROI(), nil
	})
	rt[server.MethodPath{Method: http.MethodPost, Path: "/roi"}] = w.SetROI
	return w
}

// RT satisfies server.HTTPer
func (h HTTPWrapper) RT() server.RouteTable {
	return h.RouteTable
}

// GetSummary writes the text summary of the latest result
func (h HTTPWrapper) GetSummary(w http.ResponseWriter, r *http.Request) {
	res := h.Loop.Latest()
	if res == nil {
		http.Error(w, errNoResult.Error(), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(res.Text))
}

// SetROI decodes a roi.Request and queues it on the loop
func (h HTTPWrapper) SetROI(w http.ResponseWriter, r *http.Request) {
	req := roi.Request{}
	err := json.NewDecoder(r.Body).Decode(&req)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err = h.Loop.SetROI(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
}
