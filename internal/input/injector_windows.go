//go:build windows

package input

import (
	"unsafe"

	"github.com/lxn/win"
)

// windowsInjector drives mouse/keyboard input via SendInput, the same API
// surface the session-0 helper uses from inside the target user's session.
type windowsInjector struct{}

func newPlatformInjector() injector {
	return &windowsInjector{}
}

func (w *windowsInjector) screenSize() (int, int) {
	width := int(win.GetSystemMetrics(win.SM_CXSCREEN))
	height := int(win.GetSystemMetrics(win.SM_CYSCREEN))
	if width == 0 || height == 0 {
		width, height = 1920, 1080
	}
	return width, height
}

// toAbsolute converts an absolute pixel coordinate on the primary display
// to SendInput's normalised 0..65535 absolute coordinate space.
func toAbsolute(coord, extent int) int32 {
	if extent <= 1 {
		return 0
	}
	return int32((coord * 65535) / (extent - 1))
}

func (w *windowsInjector) sendMouse(mi win.MOUSEINPUT) {
	input := win.MOUSE_INPUT{
		Type: win.INPUT_MOUSE,
		Mi:   mi,
	}
	win.SendInput(1, unsafe.Pointer(&input), int32(unsafe.Sizeof(input)))
}

func (w *windowsInjector) moveMouse(x, y int) {
	width, height := w.screenSize()
	w.sendMouse(win.MOUSEINPUT{
		Dx:      toAbsolute(x, width),
		Dy:      toAbsolute(y, height),
		DwFlags: win.MOUSEEVENTF_MOVE | win.MOUSEEVENTF_ABSOLUTE,
	})
}

func (w *windowsInjector) mouseButton(button int, down bool) {
	var flag uint32
	switch button {
	case 1:
		if down {
			flag = win.MOUSEEVENTF_MIDDLEDOWN
		} else {
			flag = win.MOUSEEVENTF_MIDDLEUP
		}
	case 2:
		if down {
			flag = win.MOUSEEVENTF_RIGHTDOWN
		} else {
			flag = win.MOUSEEVENTF_RIGHTUP
		}
	default:
		if down {
			flag = win.MOUSEEVENTF_LEFTDOWN
		} else {
			flag = win.MOUSEEVENTF_LEFTUP
		}
	}
	w.sendMouse(win.MOUSEINPUT{DwFlags: flag})
}

func (w *windowsInjector) key(vk uint16, down bool) {
	var flags uint32
	if !down {
		flags = win.KEYEVENTF_KEYUP
	}
	input := win.KEYBD_INPUT{
		Type: win.INPUT_KEYBOARD,
		Ki: win.KEYBDINPUT{
			WVk:     vk,
			DwFlags: flags,
		},
	}
	win.SendInput(1, unsafe.Pointer(&input), int32(unsafe.Sizeof(input)))
}
