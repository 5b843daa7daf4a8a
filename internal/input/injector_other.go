//go:build !windows

package input

import "log/slog"

// otherInjector is a logging-only stand-in for platforms the product does
// not ship a host agent on; it lets the rest of the module build and be
// tested off Windows.
type otherInjector struct{}

func newPlatformInjector() injector {
	return &otherInjector{}
}

func (otherInjector) screenSize() (int, int) { return 1920, 1080 }

func (otherInjector) moveMouse(x, y int) {
	slog.Debug("input injection unsupported on this platform", "op", "move", "x", x, "y", y)
}

func (otherInjector) mouseButton(button int, down bool) {
	slog.Debug("input injection unsupported on this platform", "op", "button", "button", button, "down", down)
}

func (otherInjector) key(vk uint16, down bool) {
	slog.Debug("input injection unsupported on this platform", "op", "key", "vk", vk, "down", down)
}
