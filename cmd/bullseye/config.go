package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"

	"github.jpl.nasa.gov/bdube/bullseye/acquire"
	"github.jpl.nasa.gov/bdube/bullseye/camera"
	"github.jpl.nasa.gov/bdube/bullseye/exposure"
	"github.jpl.nasa.gov/bdube/bullseye/roi"
)

var (
	// ConfigFileName is what it sounds like
	ConfigFileName = "bullseye.yml"

	// EnvPrefix prefixes environment variables which override the config file
	EnvPrefix = "BULLSEYE_"
)

type sensorConfig struct {
	Width     int     `yaml:"Width"`
	Height    int     `yaml:"Height"`
	PixelSize float64 `yaml:"PixelSize"`
	Bits      int     `yaml:"Bits"`
}

type exposureConfig struct {
	Shutter    float64 `yaml:"Shutter"`
	ShutterMin float64 `yaml:"ShutterMin"`
	ShutterMax float64 `yaml:"ShutterMax"`
	Gain       float64 `yaml:"Gain"`
	FrameRate  float64 `yaml:"FrameRate"`
	Auto       bool    `yaml:"Auto"`
	Percentile float64 `yaml:"Percentile"`
	MinVal     float64 `yaml:"MinVal"`
	MaxVal     float64 `yaml:"MaxVal"`
	Factor     float64 `yaml:"Factor"`
	MaxIter    int     `yaml:"MaxIter"`
}

type analysisConfig struct {
	Background float64 `yaml:"Background"`
	Average    int     `yaml:"Average"`
	BinSize    float64 `yaml:"BinSize"`
}

type loopConfig struct {
	CaptureTimeout  string `yaml:"CaptureTimeout"`
	CaptureRetries  int    `yaml:"CaptureRetries"`
	ShutdownTimeout string `yaml:"ShutdownTimeout"`
}

type roiConfig struct {
	Left   float64 `yaml:"Left"`
	Bottom float64 `yaml:"Bottom"`
	Width  float64 `yaml:"Width"`
	Height float64 `yaml:"Height"`
}

type displayConfig struct {
	Palette string `yaml:"Palette"`
	Invert  bool   `yaml:"Invert"`
	Width   int    `yaml:"Width"`
}

type config struct {
	Addr     string         `yaml:"Addr"`
	Root     string         `yaml:"Root"`
	Camera   string         `yaml:"Camera"`
	Save     string         `yaml:"Save"`
	SaveRoot string         `yaml:"SaveRoot"`
	LogLevel string         `yaml:"LogLevel"`
	LogFile  string         `yaml:"LogFile"`
	Sensor   sensorConfig   `yaml:"Sensor"`
	Exposure exposureConfig `yaml:"Exposure"`
	Analysis analysisConfig `yaml:"Analysis"`
	Loop     loopConfig     `yaml:"Loop"`
	ROI      roiConfig      `yaml:"ROI"`
	Display  displayConfig  `yaml:"Display"`
}

func defaultConfig() config {
	s := camera.Sensor{Width: 1280, Height: 960, PixelSize: 3.75}
	full := roi.FullSensor(s)
	return config{
		Addr:     ":8000",
		Root:     "/",
		Camera:   "none:",
		LogLevel: "info",
		Sensor:   sensorConfig{Width: s.Width, Height: s.Height, PixelSize: s.PixelSize, Bits: 8},
		Exposure: exposureConfig{
			Shutter:    1e-3,
			ShutterMin: exposure.DefaultLimits.ShutterMin,
			ShutterMax: exposure.DefaultLimits.ShutterMax,
			Gain:       0,
			FrameRate:  2,
			Percentile: exposure.DefaultSettings.Percentile,
			MinVal:     exposure.DefaultSettings.MinVal,
			MaxVal:     exposure.DefaultSettings.MaxVal,
			Factor:     exposure.DefaultSettings.Factor,
			MaxIter:    exposure.DefaultSettings.MaxIter,
		},
		Analysis: analysisConfig{
			Background: acquire.DefaultConfig.Background,
			Average:    acquire.DefaultConfig.Average,
			BinSize:    acquire.DefaultConfig.BinSize,
		},
		Loop: loopConfig{
			CaptureTimeout:  acquire.DefaultConfig.CaptureTimeout.String(),
			CaptureRetries:  acquire.DefaultConfig.CaptureRetries,
			ShutdownTimeout: acquire.DefaultConfig.ShutdownTimeout.String(),
		},
		ROI:     roiConfig{Left: full.Left, Bottom: full.Bottom, Width: full.Width, Height: full.Height},
		Display: displayConfig{Palette: "jet"},
	}
}

// loadConfig layers the defaults, the config file, and the environment
func loadConfig(k *koanf.Koanf, fn string) error {
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return err
	}
	if err := k.Load(file.Provider(fn), yaml.Parser()); err != nil {
		if !errors.Is(err, os.ErrNotExist) && !strings.Contains(err.Error(), "no such") {
			return fmt.Errorf("error loading config: %w", err)
		}
	}
	return k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return envKey(k, s)
	}), nil)
}

// envKey turns BULLSEYE_SENSOR__WIDTH into the existing key Sensor.Width
func envKey(k *koanf.Koanf, s string) string {
	key := strings.ReplaceAll(strings.TrimPrefix(s, EnvPrefix), "__", ".")
	for _, known := range k.Keys() {
		if strings.EqualFold(known, key) {
			return known
		}
	}
	return key
}

func (c config) sensor() camera.Sensor {
	return camera.Sensor{
		Width:     c.Sensor.Width,
		Height:    c.Sensor.Height,
		PixelSize: c.Sensor.PixelSize,
		MaxValue:  1<<uint(c.Sensor.Bits) - 1,
	}
}

func (c config) exposure() (exposure.State, exposure.Limits, exposure.Settings, error) {
	e := c.Exposure
	st := exposure.State{Shutter: e.Shutter, Gain: e.Gain, FrameRate: e.FrameRate}
	lim := exposure.DefaultLimits
	lim.ShutterMin, lim.ShutterMax = e.ShutterMin, e.ShutterMax
	set := exposure.Settings{
		Percentile: e.Percentile,
		MinVal:     e.MinVal,
		MaxVal:     e.MaxVal,
		Factor:     e.Factor,
		MaxIter:    e.MaxIter,
	}
	to, err := time.ParseDuration(c.Loop.CaptureTimeout)
	if err != nil {
		return st, lim, set, fmt.Errorf("Loop.CaptureTimeout: %w", err)
	}
	set.CaptureTimeout = to
	return st, lim, set, nil
}

func (c config) loop() (acquire.Config, error) {
	out := acquire.Config{
		Background:     c.Analysis.Background,
		Average:        c.Analysis.Average,
		BinSize:        c.Analysis.BinSize,
		AutoShutter:    c.Exposure.Auto,
		CaptureRetries: c.Loop.CaptureRetries,
	}
	var err error
	if out.CaptureTimeout, err = time.ParseDuration(c.Loop.CaptureTimeout); err != nil {
		return out, fmt.Errorf("Loop.CaptureTimeout: %w", err)
	}
	if out.ShutdownTimeout, err = time.ParseDuration(c.Loop.ShutdownTimeout); err != nil {
		return out, fmt.Errorf("Loop.ShutdownTimeout: %w", err)
	}
	return out, nil
}

func (c config) roi() roi.Request {
	return roi.Request{Left: c.ROI.Left, Bottom: c.ROI.Bottom, Width: c.ROI.Width, Height: c.ROI.Height}
}

// openCamera resolves the camera selector.  Hardware drivers are not part of
// this build; only the synthetic source is available.
func openCamera(selector string, s camera.Sensor) (camera.Source, error) {
	kind, _, _ := strings.Cut(selector, ":")
	switch strings.ToLower(kind) {
	case "none":
		return camera.NewMock(s, camera.DefaultSpot, time.Now().UnixNano()), nil
	case "first", "guid":
		return nil, fmt.Errorf("camera %q: no hardware drivers are built in, use \"none:\"", selector)
	}
	return nil, fmt.Errorf("camera %q: unknown selector, expected none:, first: or guid:<id>", selector)
}
