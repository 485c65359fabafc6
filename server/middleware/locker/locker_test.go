package locker

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"

	"github.jpl.nasa.gov/bdube/bullseye/server"
)

type table server.RouteTable

func (t table) RT() server.RouteTable { return server.RouteTable(t) }

func TestLockedRejectsPostsButNotReads(t *testing.T) {
	rt := table{
		{Method: http.MethodGet, Path: "/gain"}:  func(w http.ResponseWriter, r *http.Request) {},
		{Method: http.MethodPost, Path: "/gain"}: func(w http.ResponseWriter, r *http.Request) {},
	}
	l := New()
	Inject(rt, l)
	r := chi.NewRouter()
	r.Use(l.Check)
	server.RouteTable(rt).Bind(r)

	do := func(method, path, body string) int {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(method, path, strings.NewReader(body)))
		return w.Code
	}
	assert.Equal(t, http.StatusOK, do(http.MethodPost, "/gain", `{}`))
	assert.Equal(t, http.StatusOK, do(http.MethodPost, "/lock", `{"bool":true}`))
	assert.True(t, l.Locked())
	assert.Equal(t, http.StatusLocked, do(http.MethodPost, "/gain", `{}`))
	assert.Equal(t, http.StatusOK, do(http.MethodGet, "/gain", ""))
	assert.Equal(t, http.StatusOK, do(http.MethodPost, "/lock", `{"bool":false}`))
	assert.Equal(t, http.StatusOK, do(http.MethodPost, "/gain", `{}`))
}

func TestExemptPathsStayWritable(t *testing.T) {
	l := New()
	l.Exempt = append(l.Exempt, "autowrite")
	l.Lock()
	ok := l.Check(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	w := httptest.NewRecorder()
	ok.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/autowrite/enabled", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	ok.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/roi", nil))
	assert.Equal(t, http.StatusLocked, w.Code)
}
