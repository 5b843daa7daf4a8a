// Package input injects mouse and keyboard events at the OS level. The
// platform-specific SendInput plumbing lives in
// injector_windows.go / injector_other.go behind the injector interface;
// this file holds the platform-independent decode/ordering logic shared by
// both the direct in-process simulator and the bridge's in-helper one.
package input

import (
	"fmt"
	"log/slog"

	"github.com/fathomrs/agent/internal/protocol"
)

// injector is the minimal OS-level contract a Simulator drives. The
// Windows implementation wraps lxn/win's SendInput; other platforms get a
// no-op stub since the product only ships host agents for Windows.
type injector interface {
	moveMouse(x, y int)
	mouseButton(button int, down bool)
	key(vk uint16, down bool)
	screenSize() (width, height int)
}

// Simulator implements supervisor.InputSink by decoding MOUSE_EVENT/
// KEY_EVENT payloads and driving an injector.
type Simulator struct {
	inj injector
}

// NewSimulator returns a Simulator backed by the platform's native
// injector.
func NewSimulator() *Simulator {
	return &Simulator{inj: newPlatformInjector()}
}

// HandleMouseEvent decodes and applies a MOUSE_EVENT payload.
func (s *Simulator) HandleMouseEvent(payload []byte) error {
	var p protocol.MouseEventPayload
	if err := protocol.DecodeJSON(payload, &p); err != nil {
		return fmt.Errorf("decoding MOUSE_EVENT: %w", err)
	}

	button := p.NormalizedButton()

	switch p.Action {
	case protocol.MouseMove:
		s.inj.moveMouse(p.X, p.Y)
	case protocol.MouseDown:
		s.inj.moveMouse(p.X, p.Y)
		s.inj.mouseButton(button, true)
	case protocol.MouseUp:
		s.inj.moveMouse(p.X, p.Y)
		s.inj.mouseButton(button, false)
	case protocol.MouseClick:
		s.inj.moveMouse(p.X, p.Y)
		s.inj.mouseButton(button, true)
		s.inj.mouseButton(button, false)
	case protocol.MouseDblClick:
		s.inj.moveMouse(p.X, p.Y)
		s.inj.mouseButton(button, true)
		s.inj.mouseButton(button, false)
		s.inj.mouseButton(button, true)
		s.inj.mouseButton(button, false)
	default:
		slog.Warn("unknown mouse action", "action", p.Action)
	}
	return nil
}

// HandleKeyEvent decodes and applies a KEY_EVENT payload. On down,
// modifiers are pressed before the main key; on up, the main key is
// released first, then modifiers.
func (s *Simulator) HandleKeyEvent(payload []byte) error {
	var p protocol.KeyEventPayload
	if err := protocol.DecodeJSON(payload, &p); err != nil {
		return fmt.Errorf("decoding KEY_EVENT: %w", err)
	}

	vk, ok := lookupVKCode(p.Key)
	if !ok {
		slog.Warn("unknown key, ignoring", "key", p.Key)
		return nil
	}

	down := p.Action == protocol.KeyDown

	modVKs := make([]uint16, 0, len(p.Modifiers))
	for _, m := range p.Modifiers {
		if modVK, ok := modifierVKCode(string(m)); ok {
			modVKs = append(modVKs, modVK)
		} else {
			slog.Warn("unknown modifier, ignoring", "modifier", m)
		}
	}

	if down {
		for _, modVK := range modVKs {
			s.inj.key(modVK, true)
		}
		s.inj.key(vk, true)
	} else {
		s.inj.key(vk, false)
		for _, modVK := range modVKs {
			s.inj.key(modVK, false)
		}
	}
	return nil
}
