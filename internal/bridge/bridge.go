// Package bridge implements the session-0 bridge:
// when the agent process has no interactive desktop of its own, it spawns a
// helper process inside a logged-on user's session and talks to it over two
// named pipes — one request/response pipe for screen capture, one one-way
// pipe for input and overlay notifications. The wire format on those pipes
// lives in internal/pipewire so internal/helper can speak the same bytes.
package bridge

import "errors"

// Errors surfaced to the capture pipeline / supervisor.
var (
	// ErrNoInteractiveSession is returned when no session is Active with an
	// associated user token to spawn the helper into.
	ErrNoInteractiveSession = errors.New("bridge: no interactive session available")

	// ErrHelperDidNotConnect is returned when the spawned helper fails to
	// connect both pipes within the connect timeout.
	ErrHelperDidNotConnect = errors.New("bridge: helper did not connect within timeout")
)
