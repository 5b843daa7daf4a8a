// Package helper implements the in-session side of the session-0 bridge: a
// short-lived process spawned by internal/bridge into a logged-on user's
// session. It dials the two named pipes the bridge listens on, serves
// capture requests on one and applies input/overlay commands read from
// the other.
package helper

import (
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/fathomrs/agent/internal/capture"
	"github.com/fathomrs/agent/internal/input"
	"github.com/fathomrs/agent/internal/overlay"
	"github.com/fathomrs/agent/internal/pipewire"
)

// dialPipe is overridden per-platform: go-winio's DialPipe on Windows, a
// stub returning an error elsewhere (the helper never runs off Windows).
var dialPipe func(name string) (net.Conn, error)

// Run dials capturePipeName and inputPipeName as a client and serves both
// until the capture pipe closes. It blocks until the helper should exit.
func Run(capturePipeName, inputPipeName string) error {
	captureConn, err := dialPipe(capturePipeName)
	if err != nil {
		return err
	}
	defer captureConn.Close()

	inputConn, err := dialPipe(inputPipeName)
	if err != nil {
		return err
	}
	defer inputConn.Close()

	ov := overlay.New()
	sim := input.NewSimulator()

	go serveInput(inputConn, sim, ov)

	return serveCapture(captureConn)
}

// serveCapture loops reading single-byte quality requests and responding
// with either an "unchanged" marker or a freshly JPEG-encoded frame. It
// owns the provider's previous-frame fingerprint for the lifetime of this
// helper process — a fresh helper means a fresh fingerprint (the bridge
// respawns the helper only after a pipe I/O failure or a session switch,
// so the fingerprint persists across START_STREAM/STOP_STREAM cycles).
func serveCapture(conn net.Conn) error {
	provider := capture.NewDirectProvider()

	for {
		quality, err := pipewire.ReadCaptureRequest(conn)
		if err != nil {
			if err == io.EOF {
				slog.Info("capture pipe closed, exiting")
				return nil
			}
			return err
		}

		jpeg, changed, err := provider.Capture(quality)
		if err != nil {
			slog.Warn("helper capture failed", "error", err)
			jpeg, changed = nil, false
		}
		if !changed {
			jpeg = nil
		}

		if err := pipewire.WriteCaptureResponse(conn, jpeg); err != nil {
			return err
		}
	}
}

// serveInput runs on its own goroutine ("separate thread"),
// reading framed input/overlay commands and dispatching them until the
// pipe closes.
func serveInput(conn net.Conn, sim *input.Simulator, ov *overlay.Overlay) {
	for {
		kind, body, err := pipewire.ReadInputFrame(conn)
		if err != nil {
			slog.Info("input pipe closed", "error", err)
			return
		}

		switch kind {
		case pipewire.InputTypeMouse:
			if err := sim.HandleMouseEvent(body); err != nil {
				slog.Warn("helper: mouse event failed", "error", err)
			}
		case pipewire.InputTypeKey:
			if err := sim.HandleKeyEvent(body); err != nil {
				slog.Warn("helper: key event failed", "error", err)
			}
		case pipewire.InputTypeNotify:
			var p pipewire.NotifyPayload
			if err := json.Unmarshal(body, &p); err != nil {
				slog.Warn("helper: malformed notify payload", "error", err)
				continue
			}
			if p.Connected {
				ov.Show(p.TechnicianName)
			} else {
				ov.Hide()
			}
		default:
			slog.Warn("helper: unknown input pipe message type", "kind", kind)
		}
	}
}

// connectTimeout bounds how long dialPipe waits for the bridge's listener
// to accept, mirroring the bridge's own helperConnectTimeout.
const connectTimeout = 10 * time.Second
