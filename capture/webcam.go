package capture

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/live-detect/images"
)

// WebcamDriver exposes a single OpenCV video capture device as a camera.
type WebcamDriver struct {
	// DeviceID is the OpenCV capture index.
	DeviceID int
	// Sizes overrides scanning when set.
	Sizes []Size

	log       *zap.SugaredLogger
	sizesOnce sync.Once
	sizes     []Size
	sizesErr  error
}

// NewWebcamDriver creates a driver for the given capture index.
func NewWebcamDriver(deviceID int, logger *zap.Logger) *WebcamDriver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebcamDriver{DeviceID: deviceID, log: logger.Named("webcam").Sugar()}
}

func (d *WebcamDriver) cameraID() string { return fmt.Sprintf("webcam-%d", d.DeviceID) }

// Cameras reports the webcam. Supported sizes are scanned once by requesting
// every standard resolution and keeping what the device accepts.
func (d *WebcamDriver) Cameras(_ context.Context) ([]Characteristics, error) {
	sizes := d.Sizes
	if len(sizes) == 0 {
		d.sizesOnce.Do(func() { d.sizes, d.sizesErr = d.scanSizes() })
		if d.sizesErr != nil {
			return nil, d.sizesErr
		}
		sizes = d.sizes
	}
	return []Characteristics{{
		ID:             d.cameraID(),
		Facing:         FacingExternal,
		SupportedSizes: sizes,
	}}, nil
}

func (d *WebcamDriver) scanSizes() ([]Size, error) {
	vc, err := gocv.OpenVideoCapture(d.DeviceID)
	if err != nil {
		return nil, errors.Wrapf(err, "open capture %d", d.DeviceID)
	}
	defer vc.Close()

	seen := make(map[Size]bool)
	var sizes []Size
	for _, r := range images.StandardResolutions() {
		want := SizeOf(r)
		vc.Set(gocv.VideoCaptureFrameWidth, float64(want.Width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(want.Height))
		got := Size{
			Width:  int(vc.Get(gocv.VideoCaptureFrameWidth)),
			Height: int(vc.Get(gocv.VideoCaptureFrameHeight)),
		}
		if got.Width <= 0 || got.Height <= 0 || got.Width%2 != 0 || got.Height%2 != 0 || seen[got] {
			continue
		}
		seen[got] = true
		sizes = append(sizes, got)
	}
	d.log.Infow("scanned capture sizes", "device", d.DeviceID, "sizes", sizes)
	if len(sizes) == 0 {
		return nil, errors.Errorf("capture %d accepted no standard resolution", d.DeviceID)
	}
	return sizes, nil
}

// OpenDevice opens the capture device.
func (d *WebcamDriver) OpenDevice(_ context.Context, id string, cb DeviceCallback) (Device, error) {
	if id != d.cameraID() {
		return nil, errors.Errorf("unknown camera %q", id)
	}
	vc, err := gocv.OpenVideoCapture(d.DeviceID)
	if err != nil {
		return nil, errors.Wrapf(err, "open capture %d", d.DeviceID)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, errors.Errorf("capture %d did not open", d.DeviceID)
	}
	return &webcamDevice{vc: vc, cb: cb, log: d.log}, nil
}

type webcamDevice struct {
	mu     sync.Mutex
	vc     *gocv.VideoCapture
	cb     DeviceCallback
	log    *zap.SugaredLogger
	closed bool
}

func (w *webcamDevice) CreateSession(_ context.Context, cfg StreamConfig) (Stream, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, errors.New("device closed")
	}
	if cfg.Size.Width%2 != 0 || cfg.Size.Height%2 != 0 {
		return nil, errors.Errorf("size %s is not even", cfg.Size)
	}
	w.vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Size.Width))
	w.vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Size.Height))
	got := Size{
		Width:  int(w.vc.Get(gocv.VideoCaptureFrameWidth)),
		Height: int(w.vc.Get(gocv.VideoCaptureFrameHeight)),
	}
	if got != cfg.Size {
		return nil, errors.Errorf("device negotiated %s instead of %s", got, cfg.Size)
	}
	return &webcamStream{dev: w, size: cfg.Size, targets: cfg.Targets}, nil
}

func (w *webcamDevice) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.vc.Close()
}

// webcamStream reads BGR frames, converts them to planar I420 and fans them
// out to the targets on its own goroutine. Device callbacks are posted from a
// fresh goroutine because handling them stops this stream.
type webcamStream struct {
	dev     *webcamDevice
	size    Size
	targets []Target

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (s *webcamStream) Start(ctx context.Context) error {
	if s.done != nil {
		return errors.New("stream already started")
	}
	ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.done = make(chan struct{})
	go s.loop(ctx)
	return nil
}

func (s *webcamStream) loop(ctx context.Context) {
	defer close(s.done)

	bgr := gocv.NewMat()
	defer bgr.Close()
	yuv := gocv.NewMat()
	defer yuv.Close()

	w, h := s.size.Width, s.size.Height
	ySize, cSize := w*h, (w/2)*(h/2)

	for ctx.Err() == nil {
		if ok := s.dev.vc.Read(&bgr); !ok {
			if ctx.Err() == nil {
				go s.dev.cb(DeviceDisconnected, errors.New("capture read failed"))
			}
			return
		}
		if bgr.Empty() {
			continue
		}
		if bgr.Cols() != w || bgr.Rows() != h {
			s.dev.log.Warnw("frame size changed", "cols", bgr.Cols(), "rows", bgr.Rows())
			continue
		}

		gocv.CvtColor(bgr, &yuv, gocv.ColorBGRToYUVI420)
		data, err := yuv.DataPtrUint8()
		if err != nil || len(data) < ySize+2*cSize {
			go s.dev.cb(DeviceError, errors.Errorf("bad I420 buffer: %v", err))
			return
		}
		frame := images.NewRawFrame(w, h, 0,
			images.Plane{Data: data[:ySize], RowStride: w, PixelStride: 1},
			images.Plane{Data: data[ySize : ySize+cSize], RowStride: w / 2, PixelStride: 1},
			images.Plane{Data: data[ySize+cSize : ySize+2*cSize], RowStride: w / 2, PixelStride: 1},
			nil,
		)
		for _, t := range s.targets {
			t.Accept(frame)
		}
	}
}

func (s *webcamStream) Stop() error {
	s.once.Do(func() {
		if s.cancel == nil {
			return
		}
		s.cancel()
		<-s.done
	})
	return nil
}
