package capture

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nvr-ai/live-detect/images"
)

func recv(t *testing.T, ch <-chan *images.RawFrame) *images.RawFrame {
	t.Helper()
	select {
	case f := <-ch:
		return f
	case <-time.After(time.Second):
		t.Fatal("no frame delivered")
		return nil
	}
}

func TestReader_LatestWins(t *testing.T) {
	type seen struct {
		v        byte
		seq      uint64
		rotation int
	}
	got := make(chan seen, 4)
	unblock := make(chan struct{})
	r := NewReader(Size{4, 2}, 90, func(f *images.RawFrame) {
		got <- seen{f.Y.Data[0], f.Seq, f.Rotation}
		if f.Y.Data[0] == 1 {
			<-unblock
		}
		f.Release()
	}, zaptest.NewLogger(t).Sugar())
	defer r.Close()

	r.Accept(testFrame(4, 2, 1))
	first := <-got
	assert.Equal(t, 90, first.rotation)

	// The listener is busy with frame 1, so these share the mailbox slot.
	r.Accept(testFrame(4, 2, 2))
	r.Accept(testFrame(4, 2, 3))
	r.Accept(testFrame(4, 2, 4))
	close(unblock)

	select {
	case latest := <-got:
		assert.Equal(t, byte(4), latest.v)
		assert.Greater(t, latest.seq, first.seq)
	case <-time.After(time.Second):
		t.Fatal("latest frame not delivered")
	}

	stats := r.Stats()
	assert.EqualValues(t, 2, stats.Delivered)
	assert.EqualValues(t, 2, stats.Overwritten)
	assert.Zero(t, stats.Starved)
}

func TestReader_StarvesWhenBuffersHeld(t *testing.T) {
	got := make(chan *images.RawFrame, MaxImages)
	r := NewReader(Size{4, 2}, 0, func(f *images.RawFrame) { got <- f }, zaptest.NewLogger(t).Sugar())
	defer r.Close()

	r.Accept(testFrame(4, 2, 1))
	a := recv(t, got)
	r.Accept(testFrame(4, 2, 2))
	b := recv(t, got)

	r.Accept(testFrame(4, 2, 3))
	assert.EqualValues(t, 1, r.Stats().Starved)

	a.Release()
	a.Release()
	r.Accept(testFrame(4, 2, 5))
	c := recv(t, got)
	assert.Equal(t, byte(5), c.Y.Data[0])
	b.Release()
	c.Release()
}

func TestReader_IgnoresForeignSizes(t *testing.T) {
	got := make(chan *images.RawFrame, 1)
	r := NewReader(Size{4, 2}, 0, func(f *images.RawFrame) { got <- f }, zaptest.NewLogger(t).Sugar())
	defer r.Close()

	r.Accept(testFrame(6, 2, 1))
	r.Accept(testFrame(4, 2, 2))
	f := recv(t, got)
	assert.Equal(t, byte(2), f.Y.Data[0])
	f.Release()
}

func TestReader_RecoversListenerPanic(t *testing.T) {
	got := make(chan *images.RawFrame, 1)
	calls := 0
	r := NewReader(Size{4, 2}, 0, func(f *images.RawFrame) {
		calls++
		if calls == 1 {
			panic("boom")
		}
		got <- f
	}, zaptest.NewLogger(t).Sugar())
	defer r.Close()

	r.Accept(testFrame(4, 2, 1))
	require.Eventually(t, func() bool { return r.Stats().Delivered == 1 }, time.Second, time.Millisecond)
	r.Accept(testFrame(4, 2, 2))
	f := recv(t, got)
	assert.Equal(t, byte(2), f.Y.Data[0])
	f.Release()
}

func TestReader_CloseIsIdempotent(t *testing.T) {
	got := make(chan *images.RawFrame, 1)
	r := NewReader(Size{4, 2}, 0, func(f *images.RawFrame) { got <- f }, zaptest.NewLogger(t).Sugar())

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	r.Accept(testFrame(4, 2, 1))

	select {
	case <-got:
		t.Fatal("frame delivered after close")
	case <-time.After(20 * time.Millisecond):
	}
}
