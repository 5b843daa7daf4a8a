package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fathomrs/agent/internal/protocol"
)

// dispatch handles one decoded message. It sends nothing on the transport
// and returns nil for every kind: anomalies are logged and swallowed so
// the link stays up.
func (s *Supervisor) dispatch(ctx context.Context, kind protocol.Kind, payload []byte) error {
	switch kind {
	case protocol.KindAuthOK:
		slog.Warn("received AUTH_OK outside authentication", "state", s.state.String())
		return nil

	case protocol.KindStartStream:
		var p protocol.StartStreamPayload
		if err := protocol.DecodeJSON(payload, &p); err != nil {
			slog.Warn("malformed START_STREAM payload", "error", err)
			return nil
		}
		p.Clamp()

		s.capture.Stop()
		// Discard a failure report from the run just stopped so it cannot
		// be mistaken for a failure of the new one.
		select {
		case <-s.captureErrCh:
		default:
		}
		s.capture.Start(ctx, p.Quality, p.FPSMax, s.captureFailureSink())
		s.stream.start(p.Quality, p.FPSMax)
		return nil

	case protocol.KindStopStream:
		s.capture.Stop()
		s.stream.stop()
		return nil

	case protocol.KindMouseEvent:
		if err := s.input.HandleMouseEvent(payload); err != nil {
			slog.Warn("mouse event handling failed", "error", err)
		}
		return nil

	case protocol.KindKeyEvent:
		if err := s.input.HandleKeyEvent(payload); err != nil {
			slog.Warn("key event handling failed", "error", err)
		}
		return nil

	case protocol.KindHeartbeatAck:
		return nil

	case protocol.KindError:
		var p protocol.ErrorPayload
		if err := protocol.DecodeJSON(payload, &p); err != nil {
			slog.Warn("malformed ERROR payload", "error", err)
			return nil
		}
		slog.Warn("console reported error", "code", p.Code, "message", p.Message)
		return nil

	default:
		slog.Warn("unhandled message kind", "kind", kind.String())
		return nil
	}
}

// decodeAndDispatch unframes a raw transport message and dispatches it.
// Unknown-kind frames are logged and skipped, not treated as fatal.
func (s *Supervisor) decodeAndDispatch(ctx context.Context, raw []byte) error {
	kind, payload, _, err := protocol.DecodeFrame(raw)
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownKind) {
			slog.Warn("unknown message kind on wire", "kind", kind)
			return nil
		}
		return fmt.Errorf("decoding frame: %w", err)
	}
	return s.dispatch(ctx, kind, payload)
}
