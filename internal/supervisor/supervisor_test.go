package supervisor_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fathomrs/agent/internal/config"
	"github.com/fathomrs/agent/internal/protocol"
	"github.com/fathomrs/agent/internal/supervisor"
)

// fakeConn is a scripted supervisor.Conn: Send always succeeds and records
// frames; Receive serves from a channel so tests can drive the AUTH
// handshake and subsequent dispatch deterministically.
type fakeConn struct {
	mu      sync.Mutex
	sent    [][]byte
	recvCh  chan []byte
	closed  bool
	sendErr error
}

func newFakeConn() *fakeConn {
	return &fakeConn{recvCh: make(chan []byte, 8)}
}

func (f *fakeConn) Send(data []byte) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.mu.Lock()
	f.sent = append(f.sent, append([]byte(nil), data...))
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) Receive() ([]byte, error) {
	data, ok := <-f.recvCh
	if !ok {
		return nil, errors.New("fakeConn: closed")
	}
	return data, nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.recvCh)
	}
	return nil
}

func (f *fakeConn) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeCapture struct {
	mu             sync.Mutex
	startedQuality int
	startedFPS     int
	startCount     int
	stopCount      int
	onFailure      func(error)
}

func (f *fakeCapture) Start(_ context.Context, quality, fpsMax int, onFailure func(error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startedQuality = quality
	f.startedFPS = fpsMax
	f.startCount++
	f.onFailure = onFailure
}

func (f *fakeCapture) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCount++
}

func (f *fakeCapture) starts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.startCount
}

func (f *fakeCapture) stops() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopCount
}

// failCapture invokes the onFailure callback the supervisor handed to the
// most recent Start, the way a real capture task reports a provider error.
func (f *fakeCapture) failCapture(err error) {
	f.mu.Lock()
	cb := f.onFailure
	f.mu.Unlock()
	if cb != nil {
		cb(err)
	}
}

type fakeInput struct {
	mouseEvents atomic.Int32
	keyEvents   atomic.Int32
}

func (f *fakeInput) HandleMouseEvent(_ []byte) error {
	f.mouseEvents.Add(1)
	return nil
}

func (f *fakeInput) HandleKeyEvent(_ []byte) error {
	f.keyEvents.Add(1)
	return nil
}

type fakeMetrics struct{}

func (fakeMetrics) Sample() (uint64, float64, float64) { return 100, 5.0, 10.0 }

func testConfig() *config.Config {
	return &config.Config{
		ConsoleURL: "wss://console.example.com",
		AgentID:    "agent-1",
		AgentToken: "tok",
		Hostname:   "host",
		OSInfo:     "linux/amd64",
	}
}

func authOKFrame(t *testing.T) []byte {
	t.Helper()
	frame, err := protocol.EncodeFrame(protocol.KindAuthOK, nil)
	if err != nil {
		t.Fatalf("encoding AUTH_OK: %v", err)
	}
	return frame
}

func startStreamFrame(t *testing.T, quality, fpsMax int) []byte {
	t.Helper()
	body, err := protocol.EncodeJSON(protocol.StartStreamPayload{Quality: quality, FPSMax: fpsMax})
	if err != nil {
		t.Fatalf("encoding START_STREAM payload: %v", err)
	}
	frame, err := protocol.EncodeFrame(protocol.KindStartStream, body)
	if err != nil {
		t.Fatalf("encoding START_STREAM frame: %v", err)
	}
	return frame
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// TestRunAuthenticatesAndDispatchesStartStream drives a single session
// through AUTH → AUTH_OK → START_STREAM and checks the capture controller
// observed the clamped quality/fps.
func TestRunAuthenticatesAndDispatchesStartStream(t *testing.T) {
	conn := newFakeConn()
	capture := &fakeCapture{}
	input := &fakeInput{}

	dial := func(_ context.Context, _ string) (supervisor.Conn, error) {
		return conn, nil
	}

	s := supervisor.New(testConfig(), dial, capture, input, fakeMetrics{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	conn.recvCh <- authOKFrame(t)

	startStream := protocol.StartStreamPayload{Quality: 150, FPSMax: 0}
	body, err := protocol.EncodeJSON(startStream)
	if err != nil {
		t.Fatalf("encoding START_STREAM: %v", err)
	}
	frame, err := protocol.EncodeFrame(protocol.KindStartStream, body)
	if err != nil {
		t.Fatalf("encoding frame: %v", err)
	}
	conn.recvCh <- frame

	deadline := time.After(2 * time.Second)
	for {
		capture.mu.Lock()
		started := capture.startCount
		capture.mu.Unlock()
		if started > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for capture Start")
		case <-time.After(10 * time.Millisecond):
		}
	}

	capture.mu.Lock()
	if capture.startedQuality != 100 {
		t.Errorf("quality = %d, want clamped to 100", capture.startedQuality)
	}
	if capture.startedFPS != 1 {
		t.Errorf("fpsMax = %d, want clamped to 1", capture.startedFPS)
	}
	capture.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

// TestRunStopStreamClearsCapture checks STOP_STREAM stops the capture
// controller.
func TestRunStopStreamClearsCapture(t *testing.T) {
	conn := newFakeConn()
	capture := &fakeCapture{}
	input := &fakeInput{}

	dial := func(_ context.Context, _ string) (supervisor.Conn, error) {
		return conn, nil
	}

	s := supervisor.New(testConfig(), dial, capture, input, fakeMetrics{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	conn.recvCh <- authOKFrame(t)

	stopFrame, err := protocol.EncodeFrame(protocol.KindStopStream, nil)
	if err != nil {
		t.Fatalf("encoding frame: %v", err)
	}
	conn.recvCh <- stopFrame

	deadline := time.After(2 * time.Second)
	for {
		capture.mu.Lock()
		stopped := capture.stopCount
		capture.mu.Unlock()
		if stopped > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for capture Stop")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	<-done
}

// TestRunMouseAndKeyEventsReachInputSink checks MOUSE_EVENT/KEY_EVENT are
// forwarded even with no active stream.
func TestRunMouseAndKeyEventsReachInputSink(t *testing.T) {
	conn := newFakeConn()
	capture := &fakeCapture{}
	input := &fakeInput{}

	dial := func(_ context.Context, _ string) (supervisor.Conn, error) {
		return conn, nil
	}

	s := supervisor.New(testConfig(), dial, capture, input, fakeMetrics{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	conn.recvCh <- authOKFrame(t)

	mouseBody, _ := protocol.EncodeJSON(protocol.MouseEventPayload{X: 1, Y: 2, Action: protocol.MouseMove})
	mouseFrame, _ := protocol.EncodeFrame(protocol.KindMouseEvent, mouseBody)
	conn.recvCh <- mouseFrame

	keyBody, _ := protocol.EncodeJSON(protocol.KeyEventPayload{Key: "a", Action: protocol.KeyDown})
	keyFrame, _ := protocol.EncodeFrame(protocol.KindKeyEvent, keyBody)
	conn.recvCh <- keyFrame

	deadline := time.After(2 * time.Second)
	for {
		if input.mouseEvents.Load() > 0 && input.keyEvents.Load() > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for input events to be dispatched")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	<-done
}

// TestRunReconnectsOnAuthFailure exercises the Authenticating→Closing→
// Disconnected→Connecting path: the first dial's connection answers AUTH
// with ERROR instead of AUTH_OK, the second succeeds.
func TestRunReconnectsOnAuthFailure(t *testing.T) {
	firstConn := newFakeConn()
	secondConn := newFakeConn()
	capture := &fakeCapture{}
	input := &fakeInput{}

	var dialCount atomic.Int32
	dial := func(_ context.Context, _ string) (supervisor.Conn, error) {
		if dialCount.Add(1) == 1 {
			return firstConn, nil
		}
		return secondConn, nil
	}

	s := supervisor.New(testConfig(), dial, capture, input, fakeMetrics{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	// First connection: respond with an unexpected kind, which ends the
	// authentication step with an error and forces reconnection.
	errFrame, _ := protocol.EncodeFrame(protocol.KindError, []byte(`{"code":"x","message":"y"}`))
	start := time.Now()
	firstConn.recvCh <- errFrame

	deadline := time.After(5 * time.Second)
	for dialCount.Load() < 2 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for reconnect attempt")
		case <-time.After(10 * time.Millisecond):
		}
	}

	// The first consecutive failure must sleep min(2^1, 60) = 2s before
	// reconnecting, not 0s.
	if elapsed := time.Since(start); elapsed < 1900*time.Millisecond {
		t.Fatalf("reconnected after %v, want at least ~2s backoff on the first failure", elapsed)
	}

	secondConn.recvCh <- authOKFrame(t)

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

// TestRunReconnectResumesActiveStream drops a connection mid-stream and
// checks the agent restarts the capture on the next session with the same
// quality/fps, without any new START_STREAM from the console.
func TestRunReconnectResumesActiveStream(t *testing.T) {
	firstConn := newFakeConn()
	secondConn := newFakeConn()
	capture := &fakeCapture{}
	input := &fakeInput{}

	var dialCount atomic.Int32
	dial := func(_ context.Context, _ string) (supervisor.Conn, error) {
		if dialCount.Add(1) == 1 {
			return firstConn, nil
		}
		return secondConn, nil
	}

	s := supervisor.New(testConfig(), dial, capture, input, fakeMetrics{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	// The second session's AUTH_OK is queued up front so authentication
	// succeeds as soon as the agent reconnects.
	secondConn.recvCh <- authOKFrame(t)

	firstConn.recvCh <- authOKFrame(t)
	firstConn.recvCh <- startStreamFrame(t, 70, 15)
	waitFor(t, "first capture start", func() bool { return capture.starts() == 1 })

	firstConn.Close()

	waitFor(t, "resumed capture start", func() bool { return capture.starts() == 2 })

	capture.mu.Lock()
	if capture.startedQuality != 70 || capture.startedFPS != 15 {
		t.Errorf("resumed with quality=%d fps=%d, want 70/15", capture.startedQuality, capture.startedFPS)
	}
	capture.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

// TestRunCaptureFailureDoesNotResume checks that a stream killed by a
// capture error stays stopped: the session continues, and after a later
// reconnect the agent must not restart the capture until the console sends
// a new START_STREAM.
func TestRunCaptureFailureDoesNotResume(t *testing.T) {
	firstConn := newFakeConn()
	secondConn := newFakeConn()
	capture := &fakeCapture{}
	input := &fakeInput{}

	var dialCount atomic.Int32
	dial := func(_ context.Context, _ string) (supervisor.Conn, error) {
		if dialCount.Add(1) == 1 {
			return firstConn, nil
		}
		return secondConn, nil
	}

	s := supervisor.New(testConfig(), dial, capture, input, fakeMetrics{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	secondConn.recvCh <- authOKFrame(t)

	firstConn.recvCh <- authOKFrame(t)
	firstConn.recvCh <- startStreamFrame(t, 70, 15)
	waitFor(t, "capture start", func() bool { return capture.starts() == 1 })

	// The capture task dies (display gone, helper crashed). The supervisor
	// must stop the stream but keep the session alive.
	stopsBefore := capture.stops()
	capture.failCapture(errors.New("display gone"))
	waitFor(t, "failure handling", func() bool { return capture.stops() > stopsBefore })

	// Drop the connection; the reconnect authenticates against secondConn.
	firstConn.Close()
	waitFor(t, "reconnect", func() bool { return dialCount.Load() == 2 })
	waitFor(t, "second AUTH", func() bool { return secondConn.sentCount() >= 1 })

	// Give a would-be resume ample time to happen, then check it didn't.
	time.Sleep(300 * time.Millisecond)
	if got := capture.starts(); got != 1 {
		t.Errorf("capture started %d times, want 1: a failed stream must not auto-resume", got)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
