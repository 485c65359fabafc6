package display

import (
	"image/png"
	"net/http"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/plot/vg"

	"github.jpl.nasa.gov/bdube/bullseye/acquire"
	"github.jpl.nasa.gov/bdube/bullseye/camera"
	"github.jpl.nasa.gov/bdube/bullseye/server"
)

// Latester provides the most recent result
type Latester interface {
	Latest() *acquire.Result
}

// HTTPWrapper serves rendered results and the display settings.
// It offers an Inject method to add its routes to another HTTPer.
type HTTPWrapper struct {
	Settings *Settings
	Source   Latester
	Sensor   camera.Sensor
}

// Inject adds GET /image.png, GET /profiles.png, GET/POST /palette,
// GET/POST /invert and GET /palettes to the HTTPer
func (h HTTPWrapper) Inject(other server.HTTPer) {
	rt := other.RT()
	rt[server.MethodPath{Method: http.MethodGet, Path: "/image.png"}] = h.Image
	rt[server.MethodPath{Method: http.MethodGet, Path: "/profiles.png"}] = h.Profiles
	rt[server.MethodPath{Method: http.MethodGet, Path: "/palette"}] = server.GetString(func() (string, error) {
		return h.Settings.Palette().Name, nil
	})
	rt[server.MethodPath{Method: http.MethodPost, Path: "/palette"}] = server.SetString(h.Settings.SetPalette)
	rt[server.MethodPath{Method: http.MethodGet, Path: "/invert"}] = server.GetBool(func() (bool, error) {
		return h.Settings.Invert(), nil
	})
	rt[server.MethodPath{Method: http.MethodPost, Path: "/invert"}] = server.SetBool(func(b bool) error {
		h.Settings.SetInvert(b)
		return nil
	})
	rt[server.MethodPath{Method: http.MethodGet, Path: "/palettes"}] = server.GetJSON(func() (interface{}, error) {
		return Names(), nil
	})
}

func (h HTTPWrapper) latest(w http.ResponseWriter) *acquire.Result {
	r := h.Source.Latest()
	if r == nil {
		http.Error(w, "no result yet", http.StatusServiceUnavailable)
	}
	return r
}

// Image writes the latest frame as a PNG
func (h HTTPWrapper) Image(w http.ResponseWriter, r *http.Request) {
	res := h.latest(w)
	if res == nil {
		return
	}
	img := h.Settings.Render(res, h.Sensor)
	w.Header().Set("Content-Type", "image/png")
	if err := png.Encode(w, img); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// Profiles writes the latest projections as a PNG
func (h HTTPWrapper) Profiles(w http.ResponseWriter, r *http.Request) {
	res := h.latest(w)
	if res == nil {
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if err := WriteProfiles(w, res.Profiles, 8*vg.Inch, 6*vg.Inch); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// LogSink is an acquire.Sink which logs the text summary of each result at debug level
type LogSink struct {
	Log logrus.FieldLogger
}

// Publish implements acquire.Sink
func (s LogSink) Publish(r *acquire.Result) {
	entry := s.Log.WithFields(logrus.Fields{"seq": r.Seq, "session": r.Session.String()})
	if r.Geometry.Warning != nil {
		entry = entry.WithField("warning", r.Geometry.Warning.Reason.String())
	}
	if r.Saved != "" {
		entry = entry.WithField("saved", r.Saved)
	}
	entry.Debug(r.Text)
}
