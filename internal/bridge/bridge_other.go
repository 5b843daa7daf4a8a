//go:build !windows

package bridge

import "context"

// Bridge is unavailable off Windows: the product only ships a session-0
// helper architecture on Windows, where desktop-less services are common.
type Bridge struct{}

func New(executablePath string) *Bridge { return &Bridge{} }

func (b *Bridge) SelectSession(sessionID uint32) {}

func (b *Bridge) Capture(quality int) ([]byte, bool, error) {
	return nil, false, ErrNoInteractiveSession
}

func (b *Bridge) HandleMouseEvent(payload []byte) error { return nil }

func (b *Bridge) HandleKeyEvent(payload []byte) error { return nil }

func (b *Bridge) Notify(technicianName string, connected bool) error { return nil }

func (b *Bridge) Close(_ context.Context) error { return nil }
