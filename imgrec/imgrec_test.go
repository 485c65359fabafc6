package imgrec

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/astrogo/fitsio"
	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.jpl.nasa.gov/bdube/bullseye/camera"
	"github.jpl.nasa.gov/bdube/bullseye/server"
)

func testFrame() *camera.Frame {
	f := camera.NewFrame(4, 3)
	for i := range f.Pix {
		f.Pix[i] = int32(i * 10)
	}
	return f
}

func readBack(t *testing.T, fn string) ([]int32, fitsio.Image) {
	t.Helper()
	fid, err := os.Open(fn)
	require.NoError(t, err)
	t.Cleanup(func() { fid.Close() })
	fits, err := fitsio.Open(fid)
	require.NoError(t, err)
	t.Cleanup(func() { fits.Close() })
	img, ok := fits.HDU(0).(fitsio.Image)
	require.True(t, ok)
	var data []int32
	require.NoError(t, img.Read(&data))
	return data, img
}

func TestSaveWithFormat(t *testing.T) {
	dir := t.TempDir()
	r := &Recorder{Root: dir, Format: "beam-%Y%m%d-%H%M%S", Enabled: true}
	ts := time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)
	cards := []fitsio.Card{{Name: "SHUTTER", Value: 1e-3, Comment: "s"}}
	fn, err := r.Save(ts, testFrame(), cards)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "beam-20210304-050607.fits"), fn)

	data, img := readBack(t, fn)
	assert.Equal(t, testFrame().Pix, data)
	assert.Equal(t, []int{4, 3}, img.Header().Axes())
	card := img.Header().Get("SHUTTER")
	require.NotNil(t, card)
	assert.Equal(t, 1e-3, card.Value)
}

func TestSaveFormatWithFolders(t *testing.T) {
	dir := t.TempDir()
	r := &Recorder{Root: dir, Format: "%Y/%m/%d/%H%M%S.fits", Enabled: true}
	fn, err := r.Save(time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC), testFrame(), nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "2021", "03", "04", "050607.fits"), fn)
}

func TestSaveCounterIncrements(t *testing.T) {
	dir := t.TempDir()
	r := &Recorder{Root: dir, Prefix: "beam", Enabled: true}
	ts := time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)
	fn1, err := r.Save(ts, testFrame(), nil)
	require.NoError(t, err)
	fn2, err := r.Save(ts, testFrame(), nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "2021-03-04", "beam000001.fits"), fn1)
	assert.Equal(t, filepath.Join(dir, "2021-03-04", "beam000002.fits"), fn2)
}

func TestActive(t *testing.T) {
	r := &Recorder{}
	assert.False(t, r.Active())
	r.Root = "x"
	assert.False(t, r.Active())
	r.Enabled = true
	assert.True(t, r.Active())
}

func TestWriteFITSToBuffer(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, WriteFITS(buf, testFrame(), nil))
	// FITS files are a whole number of 2880 byte blocks
	assert.Zero(t, buf.Len()%2880)
}

type table server.RouteTable

func (t table) RT() server.RouteTable { return server.RouteTable(t) }

func TestHTTPWrapper(t *testing.T) {
	rec := &Recorder{}
	rt := table{}
	NewHTTPWrapper(rec).Inject(rt)
	r := chi.NewRouter()
	server.RouteTable(rt).Bind(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/autowrite/format", strings.NewReader(`{"str":"%H%M%S"}`)))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "%H%M%S", rec.Format)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/autowrite/enabled", strings.NewReader(`{"bool":true}`)))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, rec.Enabled)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/autowrite/format", nil))
	assert.JSONEq(t, `{"str":"%H%M%S"}`, w.Body.String())
}
