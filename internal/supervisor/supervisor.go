package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fathomrs/agent/internal/config"
	"github.com/fathomrs/agent/internal/protocol"
	"github.com/fathomrs/agent/internal/transport"
)

// authTimeout bounds how long Authenticating waits for AUTH_OK.
const authTimeout = 10 * time.Second

// Dialer opens a transport connection. Implemented by DialTransport, an
// adapter over transport.Dial;
// expressed as a func type so tests can substitute a fake without needing a
// real WebSocket server.
type Dialer func(ctx context.Context, wsURL string) (Conn, error)

// DialTransport adapts transport.Dial to the Dialer signature.
func DialTransport(ctx context.Context, wsURL string) (Conn, error) {
	return transport.Dial(ctx, wsURL)
}

// Supervisor drives the connect/authenticate/run/reconnect lifecycle.
type Supervisor struct {
	cfg     *config.Config
	dial    Dialer
	capture CaptureController
	input   InputSink
	metrics MetricsSampler

	state  State
	stream streamState
	conn   Conn

	// captureErrCh carries at most one pending capture-task failure per
	// session; rebuilt on every connection in runSession.
	captureErrCh chan error
}

// New builds a Supervisor. capture, input, and metrics are the concrete
// direct-mode or bridge-mode implementations chosen by cmd/agent at
// startup.
func New(cfg *config.Config, dial Dialer, capture CaptureController, input InputSink, metrics MetricsSampler) *Supervisor {
	return &Supervisor{
		cfg:     cfg,
		dial:    dial,
		capture: capture,
		input:   input,
		metrics: metrics,
		state:   StateDisconnected,
	}
}

// Run blocks until ctx is cancelled, connecting, authenticating, and
// running sessions against the console with exponential backoff between
// failed attempts. It only returns once cancellation has been observed and
// the current session has been torn down cleanly.
func (s *Supervisor) Run(ctx context.Context) error {
	wsURL, err := transport.BuildURL(s.cfg.ConsoleURL)
	if err != nil {
		return fmt.Errorf("building console URL: %w", err)
	}

	attempt := 0

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		s.state = StateConnecting
		slog.Info("connecting to console", "url", wsURL, "attempt", attempt)

		conn, err := s.dial(ctx, wsURL)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Warn("connect failed", "error", err)
			attempt++
			if !s.sleepBackoff(ctx, attempt) {
				return ctx.Err()
			}
			continue
		}
		s.conn = conn

		reachedReady, err := s.runSession(ctx)
		if err != nil {
			slog.Warn("session ended", "error", err)
		}
		_ = s.conn.Close()
		s.conn = nil

		if ctx.Err() != nil {
			s.state = StateDisconnected
			return ctx.Err()
		}

		s.state = StateDisconnected
		if reachedReady {
			attempt = 0
		}
		attempt++
		if !s.sleepBackoff(ctx, attempt) {
			return ctx.Err()
		}
	}
}

func (s *Supervisor) sleepBackoff(ctx context.Context, attempt int) bool {
	delay := calculateBackoff(attempt)
	if delay == 0 {
		return true
	}
	slog.Info("reconnecting after backoff", "delay", delay, "attempt", attempt)
	select {
	case <-ctx.Done():
		return false
	case <-time.After(delay):
		return true
	}
}

// runSession drives a single connection from Authenticating through
// Closing. attempt resets only on the caller's side, on a successful
// return to Ready (the caller treats any return from here as needing a
// fresh backoff unless it re-entered Ready, which it signals through the
// reachedReady return value so the caller can reset attempt to 0).
func (s *Supervisor) runSession(ctx context.Context) (reachedReady bool, err error) {
	s.state = StateAuthenticating
	if err := s.authenticate(ctx); err != nil {
		s.state = StateClosing
		return false, err
	}

	s.state = StateReady

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go s.runHeartbeatLoop(sessionCtx, errCh)

	s.captureErrCh = make(chan error, 1)

	if s.stream.wasActive {
		s.capture.Start(sessionCtx, s.stream.quality, s.stream.fpsMax, s.captureFailureSink())
		s.stream.active = true
	}

	recvCh := make(chan recvResult, 1)
	go s.recvLoop(sessionCtx, recvCh)

	for {
		select {
		case <-ctx.Done():
			s.state = StateClosing
			s.capture.Stop()
			s.stream.snapshotDisconnect()
			return true, ctx.Err()

		case err := <-errCh:
			s.state = StateClosing
			s.capture.Stop()
			s.stream.snapshotDisconnect()
			return true, fmt.Errorf("heartbeat send failed: %w", err)

		case err := <-s.captureErrCh:
			// Capture task death is not fatal to the session: the link and
			// input handling stay up; the console re-issues START_STREAM
			// when it wants a stream again.
			slog.Warn("capture task failed, stream stopped", "error", err)
			s.capture.Stop()
			s.stream.fail()

		case res := <-recvCh:
			if res.err != nil {
				s.state = StateClosing
				s.capture.Stop()
				s.stream.snapshotDisconnect()
				return true, fmt.Errorf("receive failed: %w", res.err)
			}
			if err := s.decodeAndDispatch(sessionCtx, res.data); err != nil {
				s.state = StateClosing
				s.capture.Stop()
				s.stream.snapshotDisconnect()
				return true, err
			}
		}
	}
}

// captureFailureSink returns the onFailure callback handed to the capture
// controller: a non-blocking send into this session's failure channel,
// called from the capture goroutine.
func (s *Supervisor) captureFailureSink() func(error) {
	ch := s.captureErrCh
	return func(err error) {
		select {
		case ch <- err:
		default:
		}
	}
}

type recvResult struct {
	data []byte
	err  error
}

func (s *Supervisor) recvLoop(ctx context.Context, out chan<- recvResult) {
	for {
		data, err := s.conn.Receive()
		select {
		case out <- recvResult{data: data, err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

// authenticate sends AUTH and waits up to authTimeout for AUTH_OK.
func (s *Supervisor) authenticate(ctx context.Context) error {
	payload := protocol.AuthPayload{
		AgentID:  s.cfg.AgentID,
		Token:    s.cfg.AgentToken,
		Hostname: s.cfg.Hostname,
		OSInfo:   s.cfg.OSInfo,
	}
	body, err := protocol.EncodeJSON(payload)
	if err != nil {
		return fmt.Errorf("marshalling AUTH payload: %w", err)
	}
	frame, err := protocol.EncodeFrame(protocol.KindAuth, body)
	if err != nil {
		return fmt.Errorf("encoding AUTH frame: %w", err)
	}
	if err := s.conn.Send(frame); err != nil {
		return fmt.Errorf("sending AUTH: %w", err)
	}

	type authResult struct {
		data []byte
		err  error
	}
	resCh := make(chan authResult, 1)
	go func() {
		data, err := s.conn.Receive()
		resCh <- authResult{data: data, err: err}
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(authTimeout):
		return errors.New("supervisor: AUTH timed out waiting for AUTH_OK")
	case res := <-resCh:
		if res.err != nil {
			return fmt.Errorf("receiving AUTH response: %w", res.err)
		}
		kind, _, _, err := protocol.DecodeFrame(res.data)
		if err != nil {
			return fmt.Errorf("decoding AUTH response: %w", err)
		}
		if kind != protocol.KindAuthOK {
			return fmt.Errorf("supervisor: expected AUTH_OK, got %s", kind.String())
		}
		return nil
	}
}
