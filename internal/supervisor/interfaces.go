package supervisor

import "context"

// Conn is the transport contract the supervisor depends on. Implemented by
// *transport.Conn; expressed as an interface here so dispatch and reconnect
// logic can be tested against a fake.
type Conn interface {
	Send(data []byte) error
	Receive() ([]byte, error)
	Close() error
}

// CaptureController is the contract the capture pipeline exposes to the
// supervisor's dispatch loop. Implemented by *capture.Pipeline in direct
// mode and by the bridge-backed pipeline in session-0 mode.
type CaptureController interface {
	// Start begins emitting FRAME messages at the given quality/fps. Start
	// is idempotent with Stop: calling Start while already running first
	// stops the previous run. onFailure (may be nil) is invoked at most
	// once per run, from the capture goroutine, when the capture task
	// terminates because the provider failed — not on Stop, cancellation,
	// or a transport send failure (the supervisor observes those through
	// its own receive loop).
	Start(ctx context.Context, quality, fpsMax int, onFailure func(error))
	Stop()
}

// InputSink receives decoded MOUSE_EVENT/KEY_EVENT payloads. Implemented by
// *input.Simulator in direct mode and by the bridge's input forwarder in
// session-0 mode.
type InputSink interface {
	HandleMouseEvent(payload []byte) error
	HandleKeyEvent(payload []byte) error
}

// MetricsSampler produces the HEARTBEAT payload's numeric fields.
type MetricsSampler interface {
	Sample() (uptime uint64, cpuPercent, memPercent float64)
}
