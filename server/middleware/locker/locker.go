/*
Package locker guards the control surface of the profiler against changes.

While locked, requests which could change loop or camera settings are
answered with 423 (locked).  Reads always pass, so image and result polling
continue for anyone watching the beam.
*/
package locker

import (
	"encoding/json"
	"go/types"
	"net/http"
	"strings"
	"sync"

	"github.jpl.nasa.gov/bdube/bullseye/server"
)

// Inject adds GET and POST /lock to other's route table
func Inject(other server.HTTPer, l *Locker) {
	rt := other.RT()
	rt[server.MethodPath{Method: http.MethodGet, Path: "/lock"}] = l.HTTPGet
	rt[server.MethodPath{Method: http.MethodPost, Path: "/lock"}] = l.HTTPSet
}

// Locker is a flag checked by Check.  Unlike a sync.Mutex it never blocks;
// rejected requests are turned away immediately.
type Locker struct {
	mu     sync.Mutex
	locked bool

	// Exempt lists path fragments which stay writable while locked
	Exempt []string
}

// New returns an unlocked Locker whose own /lock route is exempt
func New() *Locker {
	return &Locker{Exempt: []string{"lock"}}
}

// Lock engages the lock
func (l *Locker) Lock() {
	l.set(true)
}

// Unlock releases the lock
func (l *Locker) Unlock() {
	l.set(false)
}

func (l *Locker) set(b bool) {
	l.mu.Lock()
	l.locked = b
	l.mu.Unlock()
}

// Locked reports whether the lock is engaged
func (l *Locker) Locked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.locked
}

// rejects reports whether r must be turned away
func (l *Locker) rejects(r *http.Request) bool {
	if r.Method == http.MethodGet || r.Method == http.MethodHead || !l.Locked() {
		return false
	}
	for _, frag := range l.Exempt {
		if strings.Contains(r.URL.Path, frag) {
			return false
		}
	}
	return true
}

// Check is middleware which answers 423 to writes while locked
func (l *Locker) Check(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.rejects(r) {
			http.Error(w, "control surface is locked", http.StatusLocked)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// HTTPSet locks or unlocks according to the boolean in the request body
func (l *Locker) HTTPSet(w http.ResponseWriter, r *http.Request) {
	b := server.BoolT{}
	err := json.NewDecoder(r.Body).Decode(&b)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	l.set(b.Bool)
	w.WriteHeader(http.StatusOK)
}

// HTTPGet reports the lock state as JSON
func (l *Locker) HTTPGet(w http.ResponseWriter, r *http.Request) {
	hp := server.HumanPayload{T: types.Bool, Bool: l.Locked()}
	hp.EncodeAndRespond(w, r)
}
