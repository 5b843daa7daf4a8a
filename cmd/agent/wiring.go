package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"

	"github.com/kardianos/service"

	"github.com/fathomrs/agent/internal/bridge"
	"github.com/fathomrs/agent/internal/capture"
	"github.com/fathomrs/agent/internal/input"
	"github.com/fathomrs/agent/internal/supervisor"
)

// connHolder adapts the supervisor's reconnecting transport to
// capture.Sender. The capture pipeline is constructed once at process
// startup, before any connection exists, and must keep sending FRAMEs
// against whatever connection is current across reconnects — so the
// pipeline is given this holder rather than a *transport.Conn directly.
type connHolder struct {
	mu   sync.Mutex
	conn supervisor.Conn
}

func (h *connHolder) set(c supervisor.Conn) {
	h.mu.Lock()
	h.conn = c
	h.mu.Unlock()
}

func (h *connHolder) Send(data []byte) error {
	h.mu.Lock()
	c := h.conn
	h.mu.Unlock()
	if c == nil {
		return fmt.Errorf("wiring: no active connection")
	}
	return c.Send(data)
}

// dialerFor wraps supervisor.DialTransport so every successful dial also
// updates holder, keeping the capture pipeline's Sender current.
func dialerFor(holder *connHolder) supervisor.Dialer {
	return func(ctx context.Context, wsURL string) (supervisor.Conn, error) {
		conn, err := supervisor.DialTransport(ctx, wsURL)
		if err != nil {
			return nil, err
		}
		holder.set(conn)
		return conn, nil
	}
}

// technicianLabel is shown on the in-session banner while a stream is
// active. The wire protocol does not carry the operator's display name, so
// a generic label is used until a protocol revision carries one in
// START_STREAM.
const technicianLabel = "Remote technician"

// notifyingPipeline couples the session-0 capture pipeline to the helper's
// on-screen banner: the overlay shows for exactly as long as a stream is
// active, which is when a technician is viewing the desktop.
type notifyingPipeline struct {
	*capture.Pipeline
	br *bridge.Bridge
}

func (n *notifyingPipeline) Start(ctx context.Context, quality, fpsMax int, onFailure func(error)) {
	n.Pipeline.Start(ctx, quality, fpsMax, onFailure)
	if err := n.br.Notify(technicianLabel, true); err != nil {
		slog.Debug("overlay show failed", "error", err)
	}
}

func (n *notifyingPipeline) Stop() {
	n.Pipeline.Stop()
	if err := n.br.Notify("", false); err != nil {
		slog.Debug("overlay hide failed", "error", err)
	}
}

// isSessionZero reports whether this process is running detached from an
// interactive desktop. Windows services always run in
// session 0; kardianos/service.Interactive reports false in exactly that
// case. Off Windows the product has no session-0 concept, so this is
// always false there.
func isSessionZero() bool {
	return runtime.GOOS == "windows" && !service.Interactive()
}

// buildBackends selects the direct or session-0-bridge capture/input
// implementation based on whether the process has an interactive desktop.
// The selection is made once at startup and fixed for the process
// lifetime, though the bridge may re-spawn its helper as sessions change.
func buildBackends(holder *connHolder) (supervisor.CaptureController, supervisor.InputSink, func() error) {
	if isSessionZero() {
		exePath, err := os.Executable()
		if err != nil {
			slog.Error("resolving executable path for session-0 bridge", "error", err)
			exePath = os.Args[0]
		}
		br := bridge.New(exePath)
		pipeline := capture.NewPipeline(holder, func() capture.Provider { return br })
		ctrl := &notifyingPipeline{Pipeline: pipeline, br: br}
		return ctrl, br, func() error { return br.Close(context.Background()) }
	}

	pipeline := capture.NewPipeline(holder, func() capture.Provider { return capture.NewDirectProvider() })
	sim := input.NewSimulator()
	return pipeline, sim, func() error { return nil }
}
