package capture_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fathomrs/agent/internal/capture"
	"github.com/fathomrs/agent/internal/protocol"
)

type fakeProvider struct {
	mu      sync.Mutex
	frames  [][]byte
	idx     int
	changed bool
}

func (f *fakeProvider) Capture(_ int) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.idx >= len(f.frames) {
		return nil, false, nil
	}
	data := f.frames[f.idx]
	f.idx++
	return data, true, nil
}

type fakeSender struct {
	mu   sync.Mutex
	sent [][]byte
}

func (f *fakeSender) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, append([]byte(nil), data...))
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func TestPipelineEmitsSequentialFrames(t *testing.T) {
	provider := &fakeProvider{frames: [][]byte{{0x01}, {0x02}, {0x03}}}
	sender := &fakeSender{}

	pipe := capture.NewPipeline(sender, func() capture.Provider { return provider })
	ctx, cancel := context.WithCancel(context.Background())
	pipe.Start(ctx, 80, 1000, nil)

	deadline := time.After(2 * time.Second)
	for sender.count() < 3 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for frames")
		case <-time.After(5 * time.Millisecond):
		}
	}

	pipe.Stop()
	cancel()

	sender.mu.Lock()
	defer sender.mu.Unlock()
	for i, raw := range sender.sent {
		kind, payload, _, err := protocol.DecodeFrame(raw)
		if err != nil {
			t.Fatalf("decoding frame %d: %v", i, err)
		}
		if kind != protocol.KindFrame {
			t.Fatalf("frame %d kind = %v, want FRAME", i, kind)
		}
		seq, _, jpeg, err := protocol.DecodeFramePayload(payload)
		if err != nil {
			t.Fatalf("decoding FRAME payload %d: %v", i, err)
		}
		if seq != uint32(i+1) {
			t.Errorf("frame %d seq = %d, want %d", i, seq, i+1)
		}
		if len(jpeg) != 1 {
			t.Errorf("frame %d jpeg len = %d, want 1", i, len(jpeg))
		}
	}
}

// TestPipelineSuppressesUnchangedFrames checks that a provider reporting
// "unchanged" produces no FRAME at all: with a static screen the first
// capture is the only one emitted.
func TestPipelineSuppressesUnchangedFrames(t *testing.T) {
	provider := &fakeProvider{frames: [][]byte{{0x01}}}
	sender := &fakeSender{}

	pipe := capture.NewPipeline(sender, func() capture.Provider { return provider })
	pipe.Start(context.Background(), 70, 10, nil)

	deadline := time.After(2 * time.Second)
	for sender.count() < 1 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for the first frame")
		case <-time.After(5 * time.Millisecond):
		}
	}

	// Give the loop a few more iterations' worth of time: every subsequent
	// capture reports unchanged, so no further frame may appear.
	time.Sleep(300 * time.Millisecond)
	pipe.Stop()

	if got := sender.count(); got != 1 {
		t.Errorf("frames sent = %d, want exactly 1 with a static screen", got)
	}
}

func TestPipelineStopIsIdempotentAndRestartable(t *testing.T) {
	provider := &fakeProvider{frames: [][]byte{{0xAA}}}
	sender := &fakeSender{}

	pipe := capture.NewPipeline(sender, func() capture.Provider { return provider })
	ctx := context.Background()

	pipe.Stop() // no-op before any Start
	pipe.Start(ctx, 50, 30, nil)
	pipe.Stop()
	pipe.Stop() // idempotent

	// Restartable after Stop.
	pipe.Start(ctx, 50, 30, nil)
	pipe.Stop()
}

type failingProvider struct{}

func (failingProvider) Capture(_ int) ([]byte, bool, error) {
	return nil, false, errors.New("display gone")
}

// TestPipelineReportsProviderFailure checks a provider error terminates the
// loop and fires the onFailure callback exactly once.
func TestPipelineReportsProviderFailure(t *testing.T) {
	sender := &fakeSender{}
	pipe := capture.NewPipeline(sender, func() capture.Provider { return failingProvider{} })

	failures := make(chan error, 2)
	pipe.Start(context.Background(), 70, 10, func(err error) { failures <- err })

	select {
	case err := <-failures:
		if err == nil {
			t.Fatal("onFailure fired with nil error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for onFailure")
	}

	pipe.Stop()
	select {
	case err := <-failures:
		t.Fatalf("onFailure fired more than once: %v", err)
	default:
	}
	if sender.count() != 0 {
		t.Errorf("frames sent = %d, want 0 when the provider always fails", sender.count())
	}
}
