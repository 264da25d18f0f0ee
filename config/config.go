// Package config loads the detector configuration from YAML.
package config

import (
	"bytes"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/nvr-ai/live-detect/capture"
	"github.com/nvr-ai/live-detect/inference"
	"github.com/nvr-ai/live-detect/overlay"
	"github.com/nvr-ai/live-detect/pipeline"
	"github.com/nvr-ai/live-detect/profiler"
)

// Config is the full application configuration.
type Config struct {
	Camera   CameraConfig     `json:"camera" yaml:"camera"`
	Model    ModelConfig      `json:"model" yaml:"model"`
	Pipeline pipeline.Options `json:"pipeline" yaml:"pipeline"`
	Overlay  overlay.Layout   `json:"overlay" yaml:"overlay"`
	Profiler ProfilerConfig   `json:"profiler" yaml:"profiler"`
	Log      LogConfig        `json:"log" yaml:"log"`
}

// CameraConfig selects and sizes the capture device.
type CameraConfig struct {
	// DeviceID is the OpenCV capture index.
	DeviceID int `json:"deviceId" yaml:"deviceId"`
	// CameraID overrides automatic camera selection.
	CameraID string `json:"cameraId" yaml:"cameraId"`
	// Width and Height are the desired preview size.
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
	// MinimumSize is the smallest acceptable edge length.
	MinimumSize int `json:"minimumSize" yaml:"minimumSize"`
	// DisplayRotation is the display rotation in degrees (0, 90, 180, 270).
	DisplayRotation int  `json:"displayRotation" yaml:"displayRotation"`
	Landscape       bool `json:"landscape" yaml:"landscape"`

	LockTimeout  time.Duration `json:"lockTimeout" yaml:"lockTimeout"`
	CloseTimeout time.Duration `json:"closeTimeout" yaml:"closeTimeout"`
}

// ModelConfig locates the model and its labels.
type ModelConfig struct {
	Path       string `json:"path" yaml:"path"`
	LabelsPath string `json:"labelsPath" yaml:"labelsPath"`
	// ConfigPath is the optional network description for the OpenCV backend.
	ConfigPath string `json:"configPath" yaml:"configPath"`

	inference.Options `yaml:",inline"`
}

// ProfilerConfig toggles periodic status reports.
type ProfilerConfig struct {
	Enabled                   bool `json:"enabled" yaml:"enabled"`
	profiler.ProfilingOptions `yaml:",inline"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level       string `json:"level" yaml:"level"`
	Development bool   `json:"development" yaml:"development"`
}

// Default returns a configuration that runs the bundled SSD MobileNet
// against the first webcam.
func Default() Config {
	model := inference.DefaultOptions()
	return Config{
		Camera: CameraConfig{
			Width:        640,
			Height:       480,
			MinimumSize:  capture.DefaultMinimumSize,
			LockTimeout:  capture.DefaultLockTimeout,
			CloseTimeout: capture.DefaultCloseTimeout,
			Landscape:    true,
		},
		Model: ModelConfig{
			Path:       "models/detect.onnx",
			LabelsPath: "models/labelmap.txt",
			Options:    model,
		},
		Pipeline: pipeline.DefaultOptions(),
		Overlay: overlay.Layout{
			ViewWidth:      640,
			ViewHeight:     700,
			Reserved:       60,
			ModelInputSize: model.InputSize,
			Padding:        overlay.DefaultPadding,
		},
		Profiler: ProfilerConfig{
			ProfilingOptions: profiler.ProfilingOptions{ReportInterval: 5 * time.Second},
		},
		Log: LogConfig{Level: "info"},
	}
}

// Parse decodes YAML from r over the defaults. Unknown keys are rejected.
// An unset overlay model input size follows the model's.
//
// Arguments:
//   - r: The YAML document.
//
// Returns:
//   - Config: The merged, validated configuration.
//   - error: If decoding or validation fails.
func Parse(r io.Reader) (Config, error) {
	cfg := Default()
	cfg.Overlay.ModelInputSize = 0
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, errors.Wrap(err, "decoding config")
	}
	if cfg.Overlay.ModelInputSize == 0 {
		cfg.Overlay.ModelInputSize = cfg.Model.InputSize
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads and parses the file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "reading config %s", path)
	}
	return Parse(bytes.NewReader(data))
}

// Validate reports every problem found, not just the first.
func (c Config) Validate() error {
	var err error
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		err = multierr.Append(err, errors.Errorf("camera: invalid size %dx%d", c.Camera.Width, c.Camera.Height))
	}
	if c.Camera.DisplayRotation%90 != 0 {
		err = multierr.Append(err, errors.Errorf("camera: display rotation %d is not a multiple of 90", c.Camera.DisplayRotation))
	}
	if c.Model.Path == "" {
		err = multierr.Append(err, errors.New("model: path is required"))
	}
	if c.Model.LabelsPath == "" {
		err = multierr.Append(err, errors.New("model: labelsPath is required"))
	}
	if verr := c.Model.Options.Validate(); verr != nil {
		err = multierr.Append(err, errors.Wrap(verr, "model"))
	}
	if t := c.Pipeline.Threshold; t < 0 || t >= 1 {
		err = multierr.Append(err, errors.Errorf("pipeline: threshold %v outside [0, 1)", t))
	}
	if verr := c.Overlay.Validate(); verr != nil {
		err = multierr.Append(err, errors.Wrap(verr, "overlay"))
	} else if c.Overlay.ModelInputSize != c.Model.InputSize {
		err = multierr.Append(err, errors.Errorf("overlay: model input size %d does not match model %d",
			c.Overlay.ModelInputSize, c.Model.InputSize))
	}
	if _, lerr := zapcore.ParseLevel(c.Log.Level); lerr != nil {
		err = multierr.Append(err, errors.Wrap(lerr, "log"))
	}
	return err
}

// SessionConfig translates the camera section for capture.Session.Open.
func (c CameraConfig) SessionConfig() capture.SessionConfig {
	return capture.SessionConfig{
		CameraID:     c.CameraID,
		DesiredSize:  capture.Size{Width: c.Width, Height: c.Height},
		MinimumSize:  c.MinimumSize,
		Display:      capture.RotationFromDegrees(c.DisplayRotation),
		Landscape:    c.Landscape,
		LockTimeout:  c.LockTimeout,
		CloseTimeout: c.CloseTimeout,
	}
}

// Build constructs the logger.
func (c LogConfig) Build() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return nil, errors.Wrap(err, "parsing log level")
	}
	zc := zap.NewProductionConfig()
	if c.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
