package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/color"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
	"golang.org/x/sync/errgroup"

	"github.com/nvr-ai/live-detect/capture"
	"github.com/nvr-ai/live-detect/config"
	"github.com/nvr-ai/live-detect/inference"
	"github.com/nvr-ai/live-detect/overlay"
	"github.com/nvr-ai/live-detect/profiler"
)

const (
	// windowTitle is the title of the preview window.
	windowTitle = "Live Detect"
	// keyEscape closes the window.
	keyEscape = 27
	// renderInterval paces redraws of the preview window.
	renderInterval = 33 * time.Millisecond
)

func main() {
	var (
		configPath string
		deviceID   int
		modelPath  string
		labelsPath string
		backend    string
		threshold  float64
		showWindow bool
		profile    bool
	)
	flag.StringVar(&configPath, "config", "", "Path to a YAML config file")
	flag.IntVar(&deviceID, "device", 0, "Video capture device index")
	flag.StringVar(&modelPath, "model", "", "Path to the detection model")
	flag.StringVar(&labelsPath, "labels", "", "Path to the label map")
	flag.StringVar(&backend, "backend", "", "Inference backend (onnx, opencv)")
	flag.Float64Var(&threshold, "confidence", 0.5, "Detection confidence threshold")
	flag.BoolVar(&showWindow, "show-window", true, "Show the preview window")
	flag.BoolVar(&profile, "profile", false, "Log periodic profiler reports")
	flag.Parse()

	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			log.Fatal(err)
		}
	}

	// Flags only override values that were set explicitly.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "device":
			cfg.Camera.DeviceID = deviceID
		case "model":
			cfg.Model.Path = modelPath
		case "labels":
			cfg.Model.LabelsPath = labelsPath
		case "backend":
			cfg.Model.Backend = inference.BackendKind(backend)
		case "confidence":
			cfg.Pipeline.Threshold = float32(threshold)
		case "profile":
			cfg.Profiler.Enabled = profile
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	logger, err := cfg.Log.Build()
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	printBanner(cfg, showWindow)

	if err := run(cfg, logger, showWindow); err != nil {
		logger.Error("exiting", zap.Error(err))
		os.Exit(1)
	}
}

func printBanner(cfg config.Config, showWindow bool) {
	fmt.Printf("\n🚀 Live Object Detection\n")
	fmt.Printf("=====================================\n")
	fmt.Printf("⚙️  Configuration:\n")
	fmt.Printf("   🎥 Camera device: %d (%dx%d requested)\n", cfg.Camera.DeviceID, cfg.Camera.Width, cfg.Camera.Height)
	fmt.Printf("   🎯 Model: %s (%s, %dx%d)\n", cfg.Model.Path, cfg.Model.Backend, cfg.Model.InputSize, cfg.Model.InputSize)
	fmt.Printf("   🏷️  Labels: %s\n", cfg.Model.LabelsPath)
	fmt.Printf("   📊 Confidence threshold: %.2f\n", cfg.Pipeline.Threshold)
	if cfg.Pipeline.NMS.Enabled() {
		fmt.Printf("   🧹 NMS IoU threshold: %.2f\n", cfg.Pipeline.NMS.IoUThreshold)
	}
	fmt.Printf("   📈 Profiling: %t\n", cfg.Profiler.Enabled)
	fmt.Printf("   🖼️  Show window: %t\n", showWindow)
	fmt.Printf("=====================================\n\n")
}

func run(cfg config.Config, logger *zap.Logger, showWindow bool) error {
	popts := cfg.Profiler.ProfilingOptions
	popts.Logger = logger
	rp := profiler.NewRuntimeProfiler(popts)
	if cfg.Profiler.Enabled {
		rp.Start()
		defer rp.Stop()
	}

	results := &resultStore{}
	det := startDetection(cfg, logger, rp, results)
	if det == nil {
		fmt.Printf("⚠️  Model not loaded, showing the preview without detections\n")
	}
	defer det.stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	sessionErrs := make(chan error, 1)
	preview := &previewBuffer{}
	sc := cfg.Camera.SessionConfig()
	sc.Preview = preview
	sc.Listener = det.listener()
	sc.OnError = func(err error) {
		select {
		case sessionErrs <- err:
		default:
		}
	}

	session := capture.NewSession(capture.NewWebcamDriver(cfg.Camera.DeviceID, logger), logger)
	if err := session.Open(ctx, sc); err != nil {
		return err
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn("closing camera", zap.Error(err))
		}
	}()
	rp.AddMetricsCollector(sessionMetrics{session})

	size, orient := session.Size(), session.Orientation()
	fmt.Printf("✅ Streaming %v, frame rotation %d°\n", size, orient.FrameRotation())
	if err := det.setGeometry(size.Width, size.Height, orient.FrameRotation()); err != nil {
		return err
	}

	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case err := <-sessionErrs:
			return errors.Wrap(err, "camera session")
		}
	})

	var err error
	if showWindow {
		err = display(gctx, cfg.Overlay, preview, results, det)
	} else {
		<-gctx.Done()
	}
	stop()
	if werr := g.Wait(); err == nil {
		err = werr
	}
	if err != nil {
		return err
	}

	fmt.Printf("\n👋 Stopped: %s\n", det.summary())
	return nil
}

// display draws the preview with the latest detections until ctx is done or
// the window is closed.
func display(ctx context.Context, layout overlay.Layout, preview *previewBuffer, results *resultStore, det *detection) error {
	window := gocv.NewWindow(windowTitle)
	defer window.Close()

	view := image.NewRGBA(image.Rect(0, 0, layout.ViewWidth, layout.ViewHeight))
	bgr := gocv.NewMat()
	defer bgr.Close()
	var frame *image.RGBA

	white := color.RGBA{255, 255, 255, 0}
	ticker := time.NewTicker(renderInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		frame = preview.Snapshot(frame)
		if frame == nil {
			if window.WaitKey(1) == keyEscape {
				return nil
			}
			continue
		}
		if err := overlay.Compose(view, frame, layout); err != nil {
			return err
		}
		rgba, err := gocv.ImageToMatRGBA(view)
		if err != nil {
			return errors.Wrap(err, "converting view")
		}
		gocv.CvtColor(rgba, &bgr, gocv.ColorRGBAToBGR)
		rgba.Close()

		latest := results.Latest()
		surface := overlay.NewMatSurface(&bgr)
		overlay.Render(surface, layout, latest.Detections)
		surface.DrawText(det.status(latest), image.Pt(10, 30), white)

		window.IMShow(bgr)
		if window.WaitKey(1) == keyEscape {
			return nil
		}
	}
}
