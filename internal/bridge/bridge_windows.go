//go:build windows

package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"sync"
	"time"
	"unsafe"

	"github.com/Microsoft/go-winio"
	"github.com/google/uuid"
	"golang.org/x/sys/windows"

	"github.com/fathomrs/agent/internal/pipewire"
)

const (
	// pipeSDDL grants read/write to authenticated interactive users and
	// full control to the local system principal.
	pipeSDDL = "D:(A;;GA;;;SY)(A;;GRGW;;;IU)"

	helperConnectTimeout = 10 * time.Second
	captureCallTimeout   = 5 * time.Second
)

var (
	wtsapi32                 = windows.NewLazySystemDLL("wtsapi32.dll")
	procWTSEnumerateSessions = wtsapi32.NewProc("WTSEnumerateSessionsW")
	procWTSFreeMemory        = wtsapi32.NewProc("WTSFreeMemory")
	procWTSQueryUserToken    = wtsapi32.NewProc("WTSQueryUserToken")
)

type wtsSessionInfo struct {
	SessionID      uint32
	WinStationName *uint16
	State          uint32
}

const wtsActive = 0

// Bridge owns the two named-pipe servers and the helper process spawned
// into a target user session. The capture pipe is used request/response
// from a single caller at a time (serialised by callMu); input-pipe writes
// are serialised by inputMu so framed writes cannot interleave.
type Bridge struct {
	executablePath string

	mu              sync.Mutex
	capturePipe     net.Listener
	inputPipe       net.Listener
	captureConn     net.Conn
	inputConn       net.Conn
	helperCmd       *exec.Cmd
	targetSessionID uint32
	sessionPinned   bool

	callMu  sync.Mutex
	inputMu sync.Mutex
}

// New builds a Bridge that will spawn copies of executablePath as the
// capture/input helper.
func New(executablePath string) *Bridge {
	return &Bridge{executablePath: executablePath}
}

// SelectSession pins the bridge to a specific session id ("switch to
// session X"): any existing helper is disposed and the next capture
// request respawns it there.
func (b *Bridge) SelectSession(sessionID uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.disposeLocked()
	b.targetSessionID = sessionID
	b.sessionPinned = true
}

// Capture implements capture.Provider by forwarding a quality request to
// the helper over the capture pipe, spawning the helper first if needed.
func (b *Bridge) Capture(quality int) ([]byte, bool, error) {
	b.callMu.Lock()
	defer b.callMu.Unlock()

	if err := b.ensureHelper(); err != nil {
		return nil, false, err
	}

	b.mu.Lock()
	conn := b.captureConn
	b.mu.Unlock()

	if conn == nil {
		return nil, false, ErrHelperDidNotConnect
	}

	_ = conn.SetDeadline(time.Now().Add(captureCallTimeout))
	if err := pipewire.WriteCaptureRequest(conn, quality); err != nil {
		b.teardownHelper()
		return nil, false, fmt.Errorf("sending capture request: %w", err)
	}

	jpeg, changed, err := pipewire.ReadCaptureResponse(conn)
	if err != nil {
		b.teardownHelper()
		return nil, false, fmt.Errorf("reading capture response: %w", err)
	}
	return jpeg, changed, nil
}

// HandleMouseEvent forwards a MOUSE_EVENT payload to the helper's input
// pipe.
func (b *Bridge) HandleMouseEvent(payload []byte) error {
	return b.sendInput(pipewire.InputTypeMouse, payload)
}

// HandleKeyEvent forwards a KEY_EVENT payload to the helper's input pipe.
func (b *Bridge) HandleKeyEvent(payload []byte) error {
	return b.sendInput(pipewire.InputTypeKey, payload)
}

// Notify forwards an overlay notification to the helper's input pipe. A
// hide with no helper running is a no-op rather than a spawn: there is no
// overlay to hide.
func (b *Bridge) Notify(technicianName string, connected bool) error {
	if !connected {
		b.mu.Lock()
		running := b.inputConn != nil
		b.mu.Unlock()
		if !running {
			return nil
		}
	}
	body, err := pipewire.EncodeNotify(technicianName, connected)
	if err != nil {
		return err
	}
	return b.sendInput(pipewire.InputTypeNotify, body)
}

func (b *Bridge) sendInput(kind byte, body []byte) error {
	// Input may arrive while no stream is active and must still be applied,
	// so forwarding spawns the helper just like a capture call does. callMu
	// serialises the spawn against in-flight capture calls.
	b.callMu.Lock()
	err := b.ensureHelper()
	b.callMu.Unlock()
	if err != nil {
		return err
	}

	b.mu.Lock()
	conn := b.inputConn
	b.mu.Unlock()
	if conn == nil {
		return ErrHelperDidNotConnect
	}

	b.inputMu.Lock()
	defer b.inputMu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(captureCallTimeout))
	if err := pipewire.WriteInputFrame(conn, kind, body); err != nil {
		b.teardownHelper()
		return fmt.Errorf("forwarding input: %w", err)
	}
	return nil
}

// ensureHelper spawns the helper and waits for both pipes to connect if
// none is currently running.
func (b *Bridge) ensureHelper() error {
	b.mu.Lock()
	alreadyRunning := b.captureConn != nil && b.inputConn != nil
	b.mu.Unlock()
	if alreadyRunning {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.disposeLocked()

	sessionID := b.targetSessionID
	if !b.sessionPinned {
		resolved, err := resolveTargetSession()
		if err != nil {
			return err
		}
		sessionID = resolved
	}

	captureName := fmt.Sprintf(`\\.\pipe\capture-%s`, uuid.NewString())
	inputName := fmt.Sprintf(`\\.\pipe\input-%s`, uuid.NewString())

	cfg := &winio.PipeConfig{SecurityDescriptor: pipeSDDL}

	capLn, err := winio.ListenPipe(captureName, cfg)
	if err != nil {
		return fmt.Errorf("listening on capture pipe: %w", err)
	}
	inLn, err := winio.ListenPipe(inputName, cfg)
	if err != nil {
		capLn.Close()
		return fmt.Errorf("listening on input pipe: %w", err)
	}
	b.capturePipe = capLn
	b.inputPipe = inLn

	cmd, err := spawnInSession(sessionID, b.executablePath, captureName, inputName)
	if err != nil {
		b.disposeLocked()
		return fmt.Errorf("spawning helper in session %d: %w", sessionID, err)
	}
	b.helperCmd = cmd
	b.targetSessionID = sessionID

	captureConn, inputConn, err := acceptBoth(capLn, inLn, helperConnectTimeout)
	if err != nil {
		b.disposeLocked()
		return err
	}
	b.captureConn = captureConn
	b.inputConn = inputConn
	return nil
}

func acceptBoth(capLn, inLn net.Listener, timeout time.Duration) (net.Conn, net.Conn, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	capCh := make(chan result, 1)
	inCh := make(chan result, 1)

	go func() {
		c, err := capLn.Accept()
		capCh <- result{c, err}
	}()
	go func() {
		c, err := inLn.Accept()
		inCh <- result{c, err}
	}()

	deadline := time.After(timeout)

	var captureConn, inputConn net.Conn
	for captureConn == nil || inputConn == nil {
		select {
		case r := <-capCh:
			if r.err != nil {
				return nil, nil, fmt.Errorf("accepting capture pipe: %w", r.err)
			}
			captureConn = r.conn
		case r := <-inCh:
			if r.err != nil {
				return nil, nil, fmt.Errorf("accepting input pipe: %w", r.err)
			}
			inputConn = r.conn
		case <-deadline:
			return nil, nil, ErrHelperDidNotConnect
		}
	}
	return captureConn, inputConn, nil
}

// teardownHelper disposes the pipes on I/O failure so the next call
// respawns the helper. A session pinned by SelectSession is unpinned here:
// the pinned session may be the thing that died (user logged off), and the
// next spawn should fall back to resolving a live one.
func (b *Bridge) teardownHelper() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.disposeLocked()
	b.sessionPinned = false
}

func (b *Bridge) disposeLocked() {
	if b.captureConn != nil {
		b.captureConn.Close()
		b.captureConn = nil
	}
	if b.inputConn != nil {
		b.inputConn.Close()
		b.inputConn = nil
	}
	if b.capturePipe != nil {
		b.capturePipe.Close()
		b.capturePipe = nil
	}
	if b.inputPipe != nil {
		b.inputPipe.Close()
		b.inputPipe = nil
	}
	if b.helperCmd != nil && b.helperCmd.Process != nil {
		_ = b.helperCmd.Process.Kill()
	}
	b.helperCmd = nil
}

// resolveTargetSession prefers the physical console session, falling back
// to the first Active session with a user token.
func resolveTargetSession() (uint32, error) {
	console := windows.WTSGetActiveConsoleSessionId()
	if console != 0xFFFFFFFF {
		if hasUserToken(console) {
			return console, nil
		}
	}

	sessions, err := enumerateSessions()
	if err != nil {
		return 0, fmt.Errorf("enumerating sessions: %w", err)
	}
	for _, s := range sessions {
		if s.State == wtsActive && hasUserToken(s.SessionID) {
			return s.SessionID, nil
		}
	}
	return 0, ErrNoInteractiveSession
}

func enumerateSessions() ([]wtsSessionInfo, error) {
	var sessionInfo uintptr
	var count uint32

	r1, _, err := procWTSEnumerateSessions.Call(
		0, // WTS_CURRENT_SERVER_HANDLE
		0,
		1,
		uintptr(unsafe.Pointer(&sessionInfo)),
		uintptr(unsafe.Pointer(&count)),
	)
	if r1 == 0 {
		return nil, fmt.Errorf("WTSEnumerateSessionsW: %w", err)
	}
	defer procWTSFreeMemory.Call(sessionInfo)

	type rawSessionInfo struct {
		SessionID      uint32
		WinStationName *uint16
		State          uint32
	}

	raw := unsafe.Slice((*rawSessionInfo)(unsafe.Pointer(sessionInfo)), int(count))
	out := make([]wtsSessionInfo, len(raw))
	for i, r := range raw {
		out[i] = wtsSessionInfo{SessionID: r.SessionID, WinStationName: r.WinStationName, State: r.State}
	}
	return out, nil
}

func hasUserToken(sessionID uint32) bool {
	var token windows.Handle
	r1, _, _ := procWTSQueryUserToken.Call(uintptr(sessionID), uintptr(unsafe.Pointer(&token)))
	if r1 == 0 {
		return false
	}
	windows.CloseHandle(token)
	return true
}

// spawnInSession duplicates the target session's user token to a primary
// token and launches executablePath with --capture-helper <capturePipe>
// <inputPipe>, attached to the default interactive desktop.
func spawnInSession(sessionID uint32, executablePath, capturePipe, inputPipe string) (*exec.Cmd, error) {
	var sessionToken windows.Handle
	r1, _, err := procWTSQueryUserToken.Call(uintptr(sessionID), uintptr(unsafe.Pointer(&sessionToken)))
	if r1 == 0 {
		return nil, fmt.Errorf("WTSQueryUserToken: %w", err)
	}
	defer windows.CloseHandle(sessionToken)

	var primaryToken windows.Token
	if err := windows.DuplicateTokenEx(
		windows.Token(sessionToken),
		windows.MAXIMUM_ALLOWED,
		nil,
		windows.SecurityImpersonation,
		windows.TokenPrimary,
		&primaryToken,
	); err != nil {
		return nil, fmt.Errorf("duplicating session token: %w", err)
	}
	defer primaryToken.Close()

	cmdLine := fmt.Sprintf(`"%s" --capture-helper %s %s`, executablePath, capturePipe, inputPipe)

	desktop, err := windows.UTF16PtrFromString(`winsta0\default`)
	if err != nil {
		return nil, fmt.Errorf("converting desktop name: %w", err)
	}
	si := &windows.StartupInfo{Desktop: desktop}
	si.Cb = uint32(unsafe.Sizeof(*si))
	pi := &windows.ProcessInformation{}

	cmdLineUTF16, err := windows.UTF16PtrFromString(cmdLine)
	if err != nil {
		return nil, fmt.Errorf("converting command line: %w", err)
	}

	var env *uint16
	if err := windows.CreateEnvironmentBlock(&env, primaryToken, false); err != nil {
		return nil, fmt.Errorf("creating environment block: %w", err)
	}
	defer windows.DestroyEnvironmentBlock(env)

	err = windows.CreateProcessAsUser(
		primaryToken,
		nil,
		cmdLineUTF16,
		nil,
		nil,
		false,
		windows.CREATE_UNICODE_ENVIRONMENT|windows.CREATE_NO_WINDOW,
		env,
		nil,
		si,
		pi,
	)
	if err != nil {
		return nil, fmt.Errorf("CreateProcessAsUser: %w", err)
	}
	defer windows.CloseHandle(pi.Process)
	defer windows.CloseHandle(pi.Thread)

	slog.Info("spawned capture helper", "session", sessionID, "pid", pi.ProcessId)

	proc, err := os.FindProcess(int(pi.ProcessId))
	if err != nil {
		return nil, fmt.Errorf("finding spawned helper process: %w", err)
	}
	return &exec.Cmd{Process: proc}, nil
}

// Close tears down any running helper and both pipes.
func (b *Bridge) Close(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.disposeLocked()
	return nil
}
