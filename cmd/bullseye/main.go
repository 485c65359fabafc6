// Command bullseye is a laser beam profiler.  It streams frames from a
// camera, fits the beam with image moments, and serves the results and
// controls over HTTP.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/knadh/koanf"
	"github.com/sirupsen/logrus"
	"github.com/theckman/yacspin"

	yml "gopkg.in/yaml.v2"

	"github.jpl.nasa.gov/bdube/bullseye/acquire"
	"github.jpl.nasa.gov/bdube/bullseye/display"
	"github.jpl.nasa.gov/bdube/bullseye/exposure"
	"github.jpl.nasa.gov/bdube/bullseye/imgrec"
	"github.jpl.nasa.gov/bdube/bullseye/logging"
	"github.jpl.nasa.gov/bdube/bullseye/server"
	"github.jpl.nasa.gov/bdube/bullseye/server/middleware/locker"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	k = koanf.New(".")
)

func root() {
	str := `bullseye is a laser beam profiler.  It captures frames from a camera,
measures the centroid, diameters and rotation of the beam from image moments,
and exposes the results and camera controls over HTTP.

Usage:
	bullseye <command>

Commands:
	run
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `bullseye is amenable to configuration via its .yml file.  For a primer on YAML, see
https://yaml.org/start.html

When no configuration is provided, the defaults are used.  Keys are not case-sensitive.
The command mkconf generates the configuration file with the default values.
Any key may be overridden by an environment variable prefixed with BULLSEYE_,
with __ separating levels, e.g. BULLSEYE_SENSOR__WIDTH=640.

Camera selects the frame source.  "none:" uses a synthetic beam.

Save is a strftime template, e.g. "%Y-%m-%d/beam-%H%M%S", relative to SaveRoot.
When it is empty frames are not saved; saving may also be enabled over HTTP
at /autowrite/enabled.

Once running, GET /endpoints lists the available routes.  POST {"bool": true}
to /active to begin streaming.`
	fmt.Println(str)
}

func mkconf() {
	c := config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	err = yml.NewEncoder(f).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	c := config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	err = yml.NewEncoder(os.Stdout).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("bullseye version %v\n", Version)
}

// prime runs the first capture with a spinner on the terminal
func prime(l *acquire.Loop, timeout time.Duration) (*acquire.Result, error) {
	spinner, err := yacspin.New(yacspin.Config{
		Frequency:         100 * time.Millisecond,
		CharSet:           yacspin.CharSets[14],
		Suffix:            " ",
		Message:           "configuring camera and capturing the first frame",
		StopCharacter:     "✓",
		StopColors:        []string{"fgGreen"},
		StopFailCharacter: "✗",
		StopFailColors:    []string{"fgRed"},
	})
	if err == nil {
		spinner.Start()
	}
	ctx, cancel := context.WithCancel(context.Background())
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), timeout)
	}
	defer cancel()
	res, err := l.Prime(ctx)
	if spinner != nil {
		if err != nil {
			spinner.StopFailMessage(err.Error())
			spinner.StopFail()
		} else {
			spinner.StopMessage(fmt.Sprintf("first frame %s", res.Bounds))
			spinner.Stop()
		}
	}
	return res, err
}

func run() {
	cfg := config{}
	if err := k.Unmarshal("", &cfg); err != nil {
		log.Fatal(err)
	}
	logger, closer, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		log.Fatal(err)
	}
	defer closer.Close()

	sensor := cfg.sensor()
	src, err := openCamera(cfg.Camera, sensor)
	if err != nil {
		logger.Fatal(err)
	}
	st, lim, set, err := cfg.exposure()
	if err != nil {
		logger.Fatal(err)
	}
	exp, err := exposure.NewController(src, st, lim, set, logger.WithField("component", "exposure"))
	if err != nil {
		logger.Fatal(err)
	}
	lcfg, err := cfg.loop()
	if err != nil {
		logger.Fatal(err)
	}
	rec := &imgrec.Recorder{Root: cfg.SaveRoot, Format: cfg.Save, Enabled: cfg.Save != ""}
	sink := display.LogSink{Log: logger.WithField("component", "sink")}
	loop, err := acquire.New(src, exp, lcfg, cfg.roi(), sink, rec, logger.WithField("component", "acquire"))
	if err != nil {
		logger.Fatal(err)
	}
	settings, err := display.NewSettings(cfg.Display.Palette, cfg.Display.Invert, cfg.Display.Width)
	if err != nil {
		logger.Fatal(err)
	}

	res, err := prime(loop, lcfg.CaptureTimeout*time.Duration(lcfg.CaptureRetries+2))
	if err != nil {
		logger.Fatal(err)
	}
	logger.WithField("session", res.Session.String()).Info("\n" + res.Text)

	w := acquire.NewHTTPWrapper(loop)
	imgrec.NewHTTPWrapper(rec).Inject(w)
	display.HTTPWrapper{Settings: settings, Source: loop, Sensor: sensor}.Inject(w)
	lock := locker.New()
	locker.Inject(w, lock)

	hndlrS := server.SubMuxSanitize(cfg.Root)
	rt := chi.NewRouter()
	rt.Use(middleware.Recoverer)
	mux := chi.NewRouter()
	mux.Use(lock.Check)
	rt.Mount(hndlrS, mux)
	w.RT().Bind(mux)

	if err = loop.Start(); err != nil {
		logger.Fatal(err)
	}

	srv := &http.Server{Addr: cfg.Addr, Handler: rt}
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		if err := loop.Stop(); err != nil {
			logger.WithError(err).Warn("camera may still be streaming")
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	logger.WithFields(logrus.Fields{"addr": cfg.Addr, "root": hndlrS}).Info("now listening for requests")
	if err = srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal(err)
	}
}

func main() {
	var cmd string
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	if err := loadConfig(k, ConfigFileName); err != nil {
		log.Fatal(err)
	}
	cmd = args[1]
	cmd = strings.ToLower(cmd)
	switch cmd {
	case "help":
		help()
		return
	case "mkconf":
		mkconf()
		return
	case "conf":
		printconf()
		return
	case "run":
		run()
		return
	case "version":
		pversion()
		return
	default:
		log.Fatal("unknown command")
	}
}
