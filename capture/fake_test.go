package capture

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/nvr-ai/live-detect/images"
)

// fakeDriver records every call so tests can check ordering and leaks.
type fakeDriver struct {
	mu         sync.Mutex
	cams       []Characteristics
	camsErr    error
	openErr    error
	sessionErr error
	startErr   error
	openGate   chan struct{}

	cb       DeviceCallback
	devices  []*fakeDevice
	calls    []string
	openings int
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{cams: []Characteristics{
		{ID: "front", Facing: FacingFront, SensorOrientation: 270, SupportedSizes: []Size{{640, 480}}},
		{ID: "back", Facing: FacingBack, SensorOrientation: 90, SupportedSizes: []Size{{1920, 1080}, {1280, 720}, {640, 480}, {320, 240}}},
	}}
}

func (d *fakeDriver) record(call string) {
	d.mu.Lock()
	d.calls = append(d.calls, call)
	d.mu.Unlock()
}

func (d *fakeDriver) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

func (d *fakeDriver) Cameras(context.Context) ([]Characteristics, error) {
	return d.cams, d.camsErr
}

func (d *fakeDriver) OpenDevice(ctx context.Context, id string, cb DeviceCallback) (Device, error) {
	d.mu.Lock()
	d.openings++
	gate := d.openGate
	d.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if d.openErr != nil {
		return nil, d.openErr
	}
	dev := &fakeDevice{driver: d, id: id}
	d.mu.Lock()
	d.cb = cb
	d.devices = append(d.devices, dev)
	d.mu.Unlock()
	d.record("open " + id)
	return dev, nil
}

// emit delivers a device event the way a driver thread would.
func (d *fakeDriver) emit(ev DeviceEvent, err error) {
	d.mu.Lock()
	cb := d.cb
	d.mu.Unlock()
	cb(ev, err)
}

// leaked counts devices that were opened and never closed.
func (d *fakeDriver) leaked() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, dev := range d.devices {
		if !dev.closed {
			n++
		}
	}
	return n
}

func (d *fakeDriver) lastStream() *fakeStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.devices) == 0 {
		return nil
	}
	return d.devices[len(d.devices)-1].stream
}

type fakeDevice struct {
	driver *fakeDriver
	id     string
	closed bool
	stream *fakeStream
}

func (f *fakeDevice) CreateSession(_ context.Context, cfg StreamConfig) (Stream, error) {
	if f.driver.sessionErr != nil {
		return nil, f.driver.sessionErr
	}
	s := &fakeStream{driver: f.driver, cfg: cfg}
	f.driver.mu.Lock()
	f.stream = s
	f.driver.mu.Unlock()
	f.driver.record("create-session " + cfg.Size.String())
	return s, nil
}

func (f *fakeDevice) Close() error {
	f.driver.mu.Lock()
	already := f.closed
	f.closed = true
	f.driver.mu.Unlock()
	if already {
		return errors.New("device closed twice")
	}
	f.driver.record("close-device")
	return nil
}

type fakeStream struct {
	driver  *fakeDriver
	cfg     StreamConfig
	started bool
	stopped bool
}

func (s *fakeStream) Start(context.Context) error {
	if s.driver.startErr != nil {
		return s.driver.startErr
	}
	s.driver.mu.Lock()
	s.started = true
	s.driver.mu.Unlock()
	s.driver.record("start")
	return nil
}

func (s *fakeStream) Stop() error {
	s.driver.mu.Lock()
	already := s.stopped
	s.stopped = true
	s.driver.mu.Unlock()
	if !already {
		s.driver.record("stop")
	}
	return nil
}

// push delivers a frame to every target.
func (s *fakeStream) push(f *images.RawFrame) {
	for _, t := range s.cfg.Targets {
		t.Accept(f)
	}
}

// testFrame builds a planar frame of the given size filled with v.
func testFrame(w, h int, v byte) *images.RawFrame {
	cw, ch := (w+1)/2, (h+1)/2
	fill := func(n int) []byte {
		b := make([]byte, n)
		for i := range b {
			b[i] = v
		}
		return b
	}
	return images.NewRawFrame(w, h, 0,
		images.Plane{Data: fill(w * h), RowStride: w, PixelStride: 1},
		images.Plane{Data: fill(cw * ch), RowStride: cw, PixelStride: 1},
		images.Plane{Data: fill(cw * ch), RowStride: cw, PixelStride: 1},
		nil,
	)
}

type denied struct{}

func (denied) CameraGranted() bool { return false }
