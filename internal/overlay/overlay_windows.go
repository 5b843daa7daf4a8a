//go:build windows

// Package overlay shows and hides the "Session controlled by: <name>"
// banner inside the target user's session.
package overlay

import (
	"sync"
	"syscall"
	"unsafe"

	"github.com/lxn/win"
)

const (
	className  = "FathomSessionOverlay"
	windowText = "Fathom Session Overlay"
	margin     = 16
	bannerW    = 360
	bannerH    = 36
)

// Overlay owns the lifetime of the topmost, borderless, click-through
// banner window. It is safe to call Show/Hide repeatedly and from a single
// goroutine (the helper's input-handling thread).
type Overlay struct {
	mu    sync.Mutex
	hwnd  win.HWND
	label string
}

// New returns an Overlay with no window. The window class is registered
// and the window created lazily on the first Show, so that a session that
// never connects a technician never materializes a window.
func New() *Overlay {
	return &Overlay{}
}

// Show ensures the overlay window exists, re-anchors it to the current
// working area (so it survives resolution changes), and displays the given
// technician name.
func (o *Overlay) Show(technicianName string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.hwnd == 0 {
		o.hwnd = o.create()
	}
	if o.hwnd == 0 {
		return
	}

	o.label = technicianName
	o.anchor()
	win.SetWindowPos(o.hwnd, win.HWND_TOPMOST, 0, 0, 0, 0, win.SWP_NOMOVE|win.SWP_NOSIZE|win.SWP_SHOWWINDOW)
	win.ShowWindow(o.hwnd, win.SW_SHOWNOACTIVATE)
	win.InvalidateRect(o.hwnd, nil, true)
	// UpdateWindow sends WM_PAINT directly to wndProc rather than queuing
	// it, so the new label paints immediately without a message pump.
	win.UpdateWindow(o.hwnd)
}

// Hide hides the overlay window without destroying it.
func (o *Overlay) Hide() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.hwnd != 0 {
		win.ShowWindow(o.hwnd, win.SW_HIDE)
	}
}

func (o *Overlay) anchor() {
	var rc win.RECT
	if !win.SystemParametersInfo(win.SPI_GETWORKAREA, 0, unsafe.Pointer(&rc), 0) {
		rc.Right = int32(win.GetSystemMetrics(win.SM_CXSCREEN))
		rc.Bottom = int32(win.GetSystemMetrics(win.SM_CYSCREEN))
	}

	x := int32(rc.Right) - bannerW - margin
	y := int32(rc.Bottom) - bannerH - margin
	win.SetWindowPos(o.hwnd, win.HWND_TOPMOST, x, y, bannerW, bannerH, win.SWP_SHOWWINDOW)
}

func (o *Overlay) create() win.HWND {
	hInstance := win.GetModuleHandle(nil)

	classNamePtr, _ := syscall.UTF16PtrFromString(className)
	windowTextPtr, _ := syscall.UTF16PtrFromString(windowText)

	var wc win.WNDCLASSEX
	wc.CbSize = uint32(unsafe.Sizeof(wc))
	wc.LpfnWndProc = syscall.NewCallback(wndProc)
	wc.HInstance = hInstance
	wc.LpszClassName = classNamePtr
	wc.HbrBackground = win.COLOR_WINDOW + 1

	win.RegisterClassEx(&wc)

	exStyle := uint32(win.WS_EX_LAYERED | win.WS_EX_TOOLWINDOW | win.WS_EX_TRANSPARENT | win.WS_EX_TOPMOST)
	style := uint32(win.WS_POPUP)

	hwnd := win.CreateWindowEx(
		exStyle,
		classNamePtr,
		windowTextPtr,
		style,
		0, 0, bannerW, bannerH,
		0, 0, hInstance, nil,
	)
	if hwnd == 0 {
		return 0
	}

	// Stash the *Overlay on the window itself so the free-function wndProc
	// can reach the current label on WM_PAINT.
	win.SetWindowLongPtr(hwnd, win.GWLP_USERDATA, uintptr(unsafe.Pointer(o)))

	win.SetLayeredWindowAttributes(hwnd, 0, 230, win.LWA_ALPHA)
	return hwnd
}

// wndProc is a minimal window procedure: it paints the current label on
// WM_PAINT and otherwise defers to DefWindowProc.
func wndProc(hwnd win.HWND, msg uint32, wParam, lParam uintptr) uintptr {
	switch msg {
	case win.WM_PAINT:
		paintOverlay(hwnd)
		return 0
	case win.WM_DESTROY:
		win.PostQuitMessage(0)
		return 0
	default:
		return win.DefWindowProc(hwnd, msg, wParam, lParam)
	}
}

// paintOverlay draws "Session controlled by: <name>" into the window's
// client area. The *Overlay is recovered from GWLP_USERDATA since wndProc
// is a free function, not a method.
func paintOverlay(hwnd win.HWND) {
	ptr := win.GetWindowLongPtr(hwnd, win.GWLP_USERDATA)
	if ptr == 0 {
		return
	}
	o := (*Overlay)(unsafe.Pointer(ptr))

	var ps win.PAINTSTRUCT
	hdc := win.BeginPaint(hwnd, &ps)
	if hdc == 0 {
		return
	}
	defer win.EndPaint(hwnd, &ps)

	o.mu.Lock()
	label := o.label
	o.mu.Unlock()

	var rc win.RECT
	win.GetClientRect(hwnd, &rc)

	bg := win.CreateSolidBrush(win.RGB(32, 32, 32))
	win.FillRect(hdc, &rc, bg)
	win.DeleteObject(win.HGDIOBJ(bg))

	win.SetBkMode(hdc, win.TRANSPARENT)
	win.SetTextColor(hdc, win.RGB(255, 255, 255))

	text := "Session controlled by: " + label
	textPtr, err := syscall.UTF16PtrFromString(text)
	if err != nil {
		return
	}
	win.DrawTextEx(hdc, textPtr, -1, &rc, win.DT_CENTER|win.DT_VCENTER|win.DT_SINGLELINE, nil)
}
