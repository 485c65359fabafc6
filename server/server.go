// Package server contains misc server utilities.
package server

import (
	"encoding/json"
	"fmt"
	"go/types"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-chi/chi"
)

// BoolT is a struct with a single Bool field
type BoolT struct {
	Bool bool `json:"bool"`
}

// FloatT is a struct with a single F64 field
type FloatT struct {
	F64 float64 `json:"f64"`
}

// IntT is a struct with a single Int field
type IntT struct {
	Int int `json:"int"`
}

// StrT is a struct with a single Str field
type StrT struct {
	Str string `json:"str"`
}

// HumanPayload is a struct containing the basic types that can be
// communicated over HTTP as JSON.  T selects which field is sent.
type HumanPayload struct {
	Bool   bool
	Float  float64
	Int    int
	String string

	T types.BasicKind
}

// EncodeAndRespond writes the payload to w as JSON {"<kind>": value}.
// The keys mirror BoolT, FloatT, IntT and StrT.
func (hp *HumanPayload) EncodeAndRespond(w http.ResponseWriter, r *http.Request) {
	var v interface{}
	switch hp.T {
	case types.Bool:
		v = BoolT{hp.Bool}
	case types.Float64:
		v = FloatT{hp.Float}
	case types.Int:
		v = IntT{hp.Int}
	case types.String:
		v = StrT{hp.String}
	default:
		http.Error(w, fmt.Sprintf("unsupported payload kind %d", hp.T), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// ReplyWithFile replies to the client request by serving the given file name
func ReplyWithFile(w http.ResponseWriter, r *http.Request, fn string, fldr string) {
	filePath, err := filepath.Abs(filepath.Join(fldr, fn))
	if err != nil {
		fstr := fmt.Sprintf("unable to compute abspath of file %s %s %s", fldr, fn, err)
		http.Error(w, fstr, http.StatusInternalServerError)
		return
	}

	f, err := os.Open(filePath)
	if err != nil {
		fstr := fmt.Sprintf("source file missing %s", filePath)
		http.Error(w, fstr, http.StatusNotFound)
		return
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		fstr := fmt.Sprintf("error retrieving source file stats %s", err)
		http.Error(w, fstr, http.StatusNotFound)
		return
	}
	http.ServeContent(w, r, fn, stat.ModTime(), f)
}

// SubMuxSanitize converts a root such as "camera" or "/camera/" to "/camera"
// for use with chi's Mount.  The empty root becomes "/".
func SubMuxSanitize(str string) string {
	if !strings.HasPrefix(str, "/") {
		str = "/" + str
	}
	if len(str) > 1 {
		str = strings.TrimSuffix(str, "/")
	}
	return str
}

// MethodPath is a struct containing a method and a path
type MethodPath struct {
	Method, Path string
}

// RouteTable maps method+path pairs to handlers
type RouteTable map[MethodPath]http.HandlerFunc

// Endpoints lists the endpoints in a RouteTable as "METHOD /path", sorted
func (rt RouteTable) Endpoints() []string {
	routes := make([]string, 0, len(rt))
	for k := range rt {
		routes = append(routes, k.Method+" "+k.Path)
	}
	sort.Strings(routes)
	return routes
}

// Bind binds the routes to a chi router, plus a GET /endpoints route
// which lists them
func (rt RouteTable) Bind(r chi.Router) {
	for k, f := range rt {
		r.MethodFunc(k.Method, k.Path, f)
	}
	r.Get("/endpoints", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		err := json.NewEncoder(w).Encode(rt.Endpoints())
		if err != nil {
			fstr := fmt.Sprintf("error encoding list of routes data to json %q", err)
			http.Error(w, fstr, http.StatusInternalServerError)
		}
	})
}

// HTTPer is an interface for something which has a route table
type HTTPer interface {
	RT() RouteTable
}
