package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/fathomrs/agent/internal/protocol"
)

const heartbeatInterval = 30 * time.Second

// runHeartbeatLoop sends a HEARTBEAT every heartbeatInterval until ctx is
// cancelled or a send fails. A send failure is reported on errCh so the
// caller can drop the session to Closing: a failed heartbeat send is fatal
// to the session.
func (s *Supervisor) runHeartbeatLoop(ctx context.Context, errCh chan<- error) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			uptime, cpu, mem := s.metrics.Sample()
			payload := protocol.HeartbeatPayload{
				Uptime: uptime,
				CPU:    cpu,
				Mem:    mem,
			}
			body, err := protocol.EncodeJSON(payload)
			if err != nil {
				slog.Error("marshalling heartbeat payload", "error", err)
				continue
			}
			frame, err := protocol.EncodeFrame(protocol.KindHeartbeat, body)
			if err != nil {
				slog.Error("encoding heartbeat frame", "error", err)
				continue
			}
			if err := s.conn.Send(frame); err != nil {
				select {
				case errCh <- err:
				case <-ctx.Done():
				}
				return
			}
		}
	}
}
