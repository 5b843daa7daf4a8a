package capture

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fathomrs/agent/internal/protocol"
)

// Sender is the minimal transport contract the pipeline needs: a single
// Send method, satisfied by supervisor.Conn and by cmd/agent's connHolder.
type Sender interface {
	Send(data []byte) error
}

// Pipeline implements supervisor.CaptureController, running the fps-paced
// capture loop against a Provider and emitting
// FRAME messages on a Sender.
type Pipeline struct {
	newProvider func() Provider
	sender      Sender

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPipeline builds a Pipeline. newProvider is called once per Start so
// that the previous-frame fingerprint resets on every START_STREAM.
func NewPipeline(sender Sender, newProvider func() Provider) *Pipeline {
	return &Pipeline{sender: sender, newProvider: newProvider}
}

// Start begins emitting frames at quality/fpsMax. If a capture is already
// running it is stopped first. onFailure (may be nil) is called from the
// capture goroutine if the provider fails and the loop terminates; send
// failures do not report through it, since the session supervisor observes
// those on the connection itself.
func (p *Pipeline) Start(ctx context.Context, quality, fpsMax int, onFailure func(error)) {
	p.Stop()

	if fpsMax < 1 {
		fpsMax = 1
	}
	if quality < 1 {
		quality = 1
	} else if quality > 100 {
		quality = 100
	}

	runCtx, cancel := context.WithCancel(ctx)

	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()

	provider := p.newProvider()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(runCtx, provider, quality, fpsMax, onFailure)
	}()
}

// stopGrace bounds how long Stop waits for the capture loop to exit before
// abandoning it: the loop's provider.Capture call may be blocked on bridge
// IPC to a dead helper, and shutdown must not hang on it.
const stopGrace = 2 * time.Second

// Stop cancels any in-flight capture loop and waits up to stopGrace for it
// to exit; past that it logs and returns, abandoning the loop to finish (or
// not) on its own.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(stopGrace):
		slog.Warn("capture task did not stop within grace period, abandoning", "grace", stopGrace)
	}
}

func (p *Pipeline) run(ctx context.Context, provider Provider, quality, fpsMax int, onFailure func(error)) {
	interval := time.Second / time.Duration(fpsMax)
	origin := time.Now()
	var seq uint32

	// A provider error racing a deliberate Stop (the bridge closes its
	// pipes when torn down) must not report as a failure of the run that
	// replaced it.
	fail := func(err error) {
		if ctx.Err() == nil && onFailure != nil {
			onFailure(err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		iterStart := time.Now()

		jpeg, changed, err := provider.Capture(quality)
		if err != nil {
			slog.Warn("capture failed", "error", err)
			fail(err)
			return
		}

		if changed {
			seq++
			tsMs := uint32(time.Since(origin).Milliseconds())
			payload := protocol.EncodeFramePayload(seq, tsMs, jpeg)
			frame, err := protocol.EncodeFrame(protocol.KindFrame, payload)
			if err != nil {
				slog.Error("encoding FRAME", "error", err)
				fail(err)
				return
			}
			if err := p.sender.Send(frame); err != nil {
				slog.Warn("sending FRAME failed", "error", err)
				return
			}
		}

		elapsed := time.Since(iterStart)
		remaining := interval - elapsed
		if remaining <= 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(remaining):
		}
	}
}
