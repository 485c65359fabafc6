package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/knadh/koanf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.jpl.nasa.gov/bdube/bullseye/camera"
	"github.jpl.nasa.gov/bdube/bullseye/roi"
)

func load(t *testing.T, fn string) config {
	t.Helper()
	k := koanf.New(".")
	require.NoError(t, loadConfig(k, fn))
	c := config{}
	require.NoError(t, k.Unmarshal("", &c))
	return c
}

func TestDefaults(t *testing.T) {
	c := load(t, filepath.Join(t.TempDir(), "missing.yml"))
	assert.Equal(t, defaultConfig(), c)

	s := c.sensor()
	assert.Equal(t, 255, s.MaxValue)
	assert.Equal(t, 1280, s.Width)

	lc, err := c.loop()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, lc.CaptureTimeout)
	assert.Equal(t, 5., lc.Background)

	st, lim, set, err := c.exposure()
	require.NoError(t, err)
	assert.Equal(t, 1e-3, st.Shutter)
	assert.Equal(t, 100e-3, lim.ShutterMax)
	assert.Equal(t, .6, set.Factor)

	r := c.roi()
	assert.Equal(t, camera.PixelBounds{Width: 1280, Height: 960}, roi.Map(r, s))
}

func TestFileAndEnvOverride(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "bullseye.yml")
	yml := "Sensor:\n  Bits: 12\nAnalysis:\n  Average: 4\n"
	require.NoError(t, os.WriteFile(fn, []byte(yml), 0o644))
	t.Setenv("BULLSEYE_SENSOR__WIDTH", "640")
	t.Setenv("BULLSEYE_LOGLEVEL", "debug")

	c := load(t, fn)
	assert.Equal(t, 4095, c.sensor().MaxValue)
	assert.Equal(t, 4, c.Analysis.Average)
	assert.Equal(t, 640, c.Sensor.Width)
	assert.Equal(t, 960, c.Sensor.Height)
	assert.Equal(t, "debug", c.LogLevel)
}

func TestBadDuration(t *testing.T) {
	c := defaultConfig()
	c.Loop.ShutdownTimeout = "soon"
	_, err := c.loop()
	assert.Error(t, err)
}

func TestOpenCamera(t *testing.T) {
	s := defaultConfig().sensor()
	src, err := openCamera("none:", s)
	require.NoError(t, err)
	assert.Equal(t, s, src.Sensor())

	_, err = openCamera("first:", s)
	assert.Error(t, err)
	_, err = openCamera("guid:1234", s)
	assert.Error(t, err)
	_, err = openCamera("webcam", s)
	assert.Error(t, err)
}
