package imgrec

import (
	"encoding/json"
	"go/types"
	"net/http"

	"github.jpl.nasa.gov/bdube/bullseye/server"
)

// HTTPWrapper is an HTTP wrapper around an image recorder that allows the folder and naming to be changed on the fly
//
// it offers an Inject method allowing it to be injected into another HTTPer
type HTTPWrapper struct {
	*Recorder
}

// NewHTTPWrapper returns an HTTP wrapper around a recorder
func NewHTTPWrapper(r *Recorder) HTTPWrapper {
	return HTTPWrapper{r}
}

func (h HTTPWrapper) setString(dst *string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		str := server.StrT{}
		err := json.NewDecoder(r.Body).Decode(&str)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.mu.Lock()
		*dst = str.Str
		h.counter = 0
		h.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}
}

func (h HTTPWrapper) getString(src *string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.mu.Lock()
		s := *src
		h.mu.Unlock()
		hp := server.HumanPayload{T: types.String, String: s}
		hp.EncodeAndRespond(w, r)
	}
}

// GetEnabled returns the Recorder's Enabled field
func (h HTTPWrapper) GetEnabled(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	b := h.Recorder.Enabled
	h.mu.Unlock()
	hp := server.HumanPayload{T: types.Bool, Bool: b}
	hp.EncodeAndRespond(w, r)
}

// SetEnabled sets the recorder's Enabled field
func (h HTTPWrapper) SetEnabled(w http.ResponseWriter, r *http.Request) {
	bT := server.BoolT{}
	err := json.NewDecoder(r.Body).Decode(&bT)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.mu.Lock()
	h.Recorder.Enabled = bT.Bool
	h.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

// Inject adds GET and POST routes for /autowrite/root, /autowrite/prefix,
// /autowrite/format and /autowrite/enabled to the HTTPer
func (h HTTPWrapper) Inject(other server.HTTPer) {
	rt := other.RT()
	rt[server.MethodPath{Method: http.MethodPost, Path: "/autowrite/root"}] = h.setString(&h.Recorder.Root)
	rt[server.MethodPath{Method: http.MethodGet, Path: "/autowrite/root"}] = h.getString(&h.Recorder.Root)
	rt[server.MethodPath{Method: http.MethodPost, Path: "/autowrite/prefix"}] = h.setString(&h.Recorder.Prefix)
	rt[server.MethodPath{Method: http.MethodGet, Path: "/autowrite/prefix"}] = h.getString(&h.Recorder.Prefix)
	rt[server.MethodPath{Method: http.MethodPost, Path: "/autowrite/format"}] = h.setString(&h.Recorder.Format)
	rt[server.MethodPath{Method: http.MethodGet, Path: "/autowrite/format"}] = h.getString(&h.Recorder.Format)
	rt[server.MethodPath{Method: http.MethodPost, Path: "/autowrite/enabled"}] = h.SetEnabled
	rt[server.MethodPath{Method: http.MethodGet, Path: "/autowrite/enabled"}] = h.GetEnabled
}
