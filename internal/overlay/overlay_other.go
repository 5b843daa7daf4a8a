//go:build !windows

package overlay

import "log/slog"

// Overlay is a logging-only stand-in off Windows, where the product does
// not ship a host agent.
type Overlay struct{}

func New() *Overlay { return &Overlay{} }

func (o *Overlay) Show(technicianName string) {
	slog.Debug("overlay unsupported on this platform", "technician", technicianName)
}

func (o *Overlay) Hide() {
	slog.Debug("overlay hide unsupported on this platform")
}
