package main

import (
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/live-detect/capture"
	"github.com/nvr-ai/live-detect/config"
	"github.com/nvr-ai/live-detect/inference"
	"github.com/nvr-ai/live-detect/pipeline"
	"github.com/nvr-ai/live-detect/profiler"
)

// detection owns the loaded model and the pipeline feeding it. A nil
// *detection means detection is disabled; every method handles that.
type detection struct {
	engine *inference.Engine
	pipe   *pipeline.Pipeline
	log    *zap.Logger
}

// startDetection loads the model and starts the pipeline. Failures are
// logged and nil is returned so the preview can run without detections.
func startDetection(cfg config.Config, logger *zap.Logger, rec profiler.Recorder, sink pipeline.Sink) *detection {
	engine, err := loadEngine(cfg.Model, logger)
	if err != nil {
		logger.Error("detection disabled", zap.Error(err))
		return nil
	}

	opts := cfg.Pipeline
	opts.Recorder = rec
	opts.Logger = logger
	pipe, err := pipeline.New(engine, sink, opts)
	if err != nil {
		logger.Error("detection disabled", zap.Error(err))
		if uerr := engine.Unload(); uerr != nil {
			logger.Warn("unloading model", zap.Error(uerr))
		}
		return nil
	}
	return &detection{engine: engine, pipe: pipe, log: logger}
}

func loadEngine(mc config.ModelConfig, logger *zap.Logger) (*inference.Engine, error) {
	model, err := os.ReadFile(mc.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading model %s", mc.Path)
	}
	f, err := os.Open(mc.LabelsPath)
	if err != nil {
		return nil, errors.Wrapf(err, "opening labels %s", mc.LabelsPath)
	}
	defer f.Close()
	labels, err := inference.LoadLabels(f)
	if err != nil {
		return nil, err
	}

	opts := mc.Options
	opts.Logger = logger
	if mc.ConfigPath != "" {
		if opts.Config, err = os.ReadFile(mc.ConfigPath); err != nil {
			return nil, errors.Wrapf(err, "reading network config %s", mc.ConfigPath)
		}
	}
	return inference.Load(model, labels, opts)
}

// listener is the capture frame listener, or nil when detection is off.
func (d *detection) listener() capture.FrameListener {
	if d == nil {
		return nil
	}
	return d.pipe.OnFrame
}

func (d *detection) setGeometry(width, height, rotation int) error {
	if d == nil {
		return nil
	}
	return d.pipe.SetGeometry(width, height, rotation)
}

// status is the one-line summary drawn on the preview.
func (d *detection) status(latest pipeline.Result) string {
	if d == nil {
		return "detection disabled"
	}
	return fmt.Sprintf("objects: %d  latency: %v  dropped: %d",
		len(latest.Detections), latest.Latency.Truncate(time.Millisecond), d.pipe.Gate().Dropped())
}

// summary is printed on exit.
func (d *detection) summary() string {
	if d == nil {
		return "detection was disabled"
	}
	return fmt.Sprintf("%d frames admitted, %d dropped, %d results",
		d.pipe.Gate().Admitted(), d.pipe.Gate().Dropped(), d.pipe.Published())
}

// stop shuts the pipeline down before unloading the model it uses.
func (d *detection) stop() {
	if d == nil {
		return
	}
	d.pipe.Stop()
	if err := d.engine.Unload(); err != nil {
		d.log.Warn("unloading model", zap.Error(err))
	}
}
