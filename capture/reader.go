package capture

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/nvr-ai/live-detect/images"
)

// MaxImages is the number of frame buffers owned by a Reader.
const MaxImages = 2

// FrameListener handles one frame on the reader goroutine. It must call
// Release on the frame once done with it.
type FrameListener func(frame *images.RawFrame)

// ReaderStats counts frame outcomes.
type ReaderStats struct {
	// Delivered frames reached the listener.
	Delivered uint64
	// Overwritten frames were replaced by a newer one before delivery.
	Overwritten uint64
	// Starved frames arrived while every buffer was held.
	Starved uint64
}

// Reader is a capture Target that hands the latest frame to a listener on
// its own goroutine.
//
// Frames are copied into one of MaxImages buffers. A single mailbox slot
// holds the frame waiting for delivery; a newer frame replaces it. When all
// buffers are in use the incoming frame is discarded.
type Reader struct {
	size     Size
	rotation int
	listener FrameListener
	log      *zap.SugaredLogger

	mu      sync.Mutex
	cond    *sync.Cond
	free    []*images.RawFrame
	pending *images.RawFrame
	closed  bool

	seq       uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
	starved   atomic.Uint64

	done      chan struct{}
	closeOnce sync.Once
}

// NewReader allocates the buffers and starts the delivery goroutine.
func NewReader(size Size, rotation int, listener FrameListener, log *zap.SugaredLogger) *Reader {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	r := &Reader{
		size:     size,
		rotation: images.NormalizeRotation(rotation),
		listener: listener,
		log:      log,
		done:     make(chan struct{}),
	}
	r.cond = sync.NewCond(&r.mu)
	for i := 0; i < MaxImages; i++ {
		r.free = append(r.free, &images.RawFrame{})
	}
	go r.loop()
	return r
}

// Accept copies frame into a free buffer and posts it to the mailbox.
func (r *Reader) Accept(frame *images.RawFrame) {
	if frame.Width != r.size.Width || frame.Height != r.size.Height {
		r.log.Warnw("frame size mismatch", "got", Size{frame.Width, frame.Height}, "want", r.size)
		return
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	var buf *images.RawFrame
	switch {
	case r.pending != nil:
		// Reuse the undelivered buffer; its frame is stale.
		buf = r.pending
		r.pending = nil
		r.dropped.Add(1)
	case len(r.free) > 0:
		buf = r.free[len(r.free)-1]
		r.free = r.free[:len(r.free)-1]
	default:
		r.mu.Unlock()
		r.starved.Add(1)
		return
	}
	r.mu.Unlock()

	buf.CopyFrom(frame)
	buf.Rotation = r.rotation
	buf.Seq = atomic.AddUint64(&r.seq, 1)
	buf.SetRelease(func() { r.recycle(buf) })

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.pending = buf
	r.cond.Signal()
	r.mu.Unlock()
}

func (r *Reader) recycle(buf *images.RawFrame) {
	r.mu.Lock()
	r.free = append(r.free, buf)
	r.mu.Unlock()
}

func (r *Reader) loop() {
	defer close(r.done)
	for {
		r.mu.Lock()
		for r.pending == nil && !r.closed {
			r.cond.Wait()
		}
		if r.closed {
			r.mu.Unlock()
			return
		}
		frame := r.pending
		r.pending = nil
		r.mu.Unlock()

		r.delivered.Add(1)
		r.deliver(frame)
	}
}

// deliver shields the reader goroutine from listener panics.
func (r *Reader) deliver(frame *images.RawFrame) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Errorw("frame listener panicked", "seq", frame.Seq, "panic", p)
			frame.Release()
		}
	}()
	if r.listener == nil {
		frame.Release()
		return
	}
	r.listener(frame)
}

// Stats returns a snapshot of the counters.
func (r *Reader) Stats() ReaderStats {
	return ReaderStats{
		Delivered:   r.delivered.Load(),
		Overwritten: r.dropped.Load(),
		Starved:     r.starved.Load(),
	}
}

// Close stops delivery and waits for the listener to return. Safe to call
// more than once.
func (r *Reader) Close() error {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		r.pending = nil
		r.cond.Broadcast()
		r.mu.Unlock()
		<-r.done
		r.log.Debugw("reader closed", "stats", r.Stats())
	})
	return nil
}
