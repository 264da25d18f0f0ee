package main

import (
	"image"
	"sync"

	"github.com/nvr-ai/live-detect/capture"
	"github.com/nvr-ai/live-detect/images"
	"github.com/nvr-ai/live-detect/pipeline"
)

// previewBuffer is the capture preview target. It keeps the latest frame
// as RGBA for the display loop.
type previewBuffer struct {
	mu    sync.Mutex
	frame *image.RGBA
	ok    bool
}

func (p *previewBuffer) Accept(f *images.RawFrame) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.frame == nil || p.frame.Rect.Dx() != f.Width || p.frame.Rect.Dy() != f.Height {
		p.frame = image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	}
	p.ok = images.ConvertToPacked(f, p.frame) == nil
}

// Snapshot copies the latest preview into dst, reallocating it when the
// size differs, and returns it. It returns nil until a frame has arrived.
func (p *previewBuffer) Snapshot(dst *image.RGBA) *image.RGBA {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.ok {
		return nil
	}
	if dst == nil || dst.Rect != p.frame.Rect {
		dst = image.NewRGBA(p.frame.Rect)
	}
	copy(dst.Pix, p.frame.Pix)
	return dst
}

// resultStore is the pipeline sink read by the display loop.
type resultStore struct {
	mu     sync.Mutex
	latest pipeline.Result
}

func (s *resultStore) Publish(r pipeline.Result) {
	s.mu.Lock()
	s.latest = r
	s.mu.Unlock()
}

// Latest returns the most recent result. Its detections are never modified
// after publication, so they can be read without the lock.
func (s *resultStore) Latest() pipeline.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

// sessionMetrics reports frame reader counters to the profiler.
type sessionMetrics struct {
	session *capture.Session
}

func (m sessionMetrics) CollectMetrics() map[string]float64 {
	st := m.session.ReaderStats()
	return map[string]float64{
		"reader_delivered":   float64(st.Delivered),
		"reader_overwritten": float64(st.Overwritten),
		"reader_starved":     float64(st.Starved),
	}
}
