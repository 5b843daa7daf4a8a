// Package protocol implements the framed binary wire protocol shared between
// the agent and the console: a 5-byte header (kind + big-endian length)
// followed by a JSON, empty, or FRAME-shaped binary payload.
package protocol

// Kind identifies the type of a framed message.
type Kind byte

// Message kinds, per the wire protocol. Directions: A→C (agent to console),
// C→A (console to agent), both (ERROR).
const (
	KindAuth          Kind = 0x01 // A→C  JSON AuthPayload
	KindAuthOK        Kind = 0x02 // C→A  JSON AuthOKPayload
	KindStartStream   Kind = 0x03 // C→A  JSON StartStreamPayload
	KindFrame         Kind = 0x04 // A→C  binary FRAME payload
	KindMouseEvent    Kind = 0x05 // C→A  JSON MouseEventPayload
	KindKeyEvent      Kind = 0x06 // C→A  JSON KeyEventPayload
	KindStopStream    Kind = 0x07 // C→A  empty
	KindHeartbeat     Kind = 0x08 // A→C  JSON HeartbeatPayload
	KindHeartbeatAck  Kind = 0x09 // C→A  empty
	KindError         Kind = 0xFF // both JSON ErrorPayload
)

// String returns a human-readable name for logging.
func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "AUTH"
	case KindAuthOK:
		return "AUTH_OK"
	case KindStartStream:
		return "START_STREAM"
	case KindFrame:
		return "FRAME"
	case KindMouseEvent:
		return "MOUSE_EVENT"
	case KindKeyEvent:
		return "KEY_EVENT"
	case KindStopStream:
		return "STOP_STREAM"
	case KindHeartbeat:
		return "HEARTBEAT"
	case KindHeartbeatAck:
		return "HEARTBEAT_ACK"
	case KindError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// knownKinds enumerates every valid Kind for DecodeFrame's validity check.
var knownKinds = map[Kind]struct{}{
	KindAuth:         {},
	KindAuthOK:       {},
	KindStartStream:  {},
	KindFrame:        {},
	KindMouseEvent:   {},
	KindKeyEvent:     {},
	KindStopStream:   {},
	KindHeartbeat:    {},
	KindHeartbeatAck: {},
	KindError:        {},
}

// Valid reports whether k is one of the enumerated message kinds.
func (k Kind) Valid() bool {
	_, ok := knownKinds[k]
	return ok
}
