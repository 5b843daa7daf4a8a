package protocol

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

const (
	// headerLen is the fixed 5-byte header: 1 byte kind + 4 bytes length.
	headerLen = 5

	// maxPayloadLen is a defensive ceiling on decode: the wire protocol
	// requires accepting frames of at least 16 MiB; this accepts double
	// that.
	maxPayloadLen = 32 << 20
)

// Sentinel errors for framing-level failures. Matched with errors.Is.
var (
	// ErrPayloadTooLarge is returned by EncodeFrame when the payload
	// exceeds what a uint32 length prefix can express, and by DecodeFrame
	// when the declared length exceeds maxPayloadLen.
	ErrPayloadTooLarge = errors.New("protocol: payload too large")

	// ErrTruncated is returned by DecodeFrame when buf is shorter than the
	// header plus the declared payload length.
	ErrTruncated = errors.New("protocol: truncated frame")

	// ErrUnknownKind is returned by DecodeFrame when the header's kind byte
	// is not one of the enumerated message kinds. Callers should log and
	// continue rather than tear down the connection.
	ErrUnknownKind = errors.New("protocol: unknown message kind")

	// ErrMalformedJSON is returned by DecodeJSON when the payload is not
	// valid JSON for the target type.
	ErrMalformedJSON = errors.New("protocol: malformed JSON payload")
)

// EncodeFrame writes the 5-byte header (kind, big-endian length) followed
// by payload. payload may be nil or empty for empty-bodied kinds.
func EncodeFrame(kind Kind, payload []byte) ([]byte, error) {
	if len(payload) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}

	buf := make([]byte, headerLen+len(payload))
	buf[0] = byte(kind)
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(payload)))
	copy(buf[headerLen:], payload)
	return buf, nil
}

// DecodeFrame parses the 5-byte header and returns the kind, the payload
// slice (a view into buf, not a copy), and the total number of bytes
// consumed (headerLen + len(payload)).
//
// DecodeFrame itself does not reject unknown kinds with a hard error in the
// sense of refusing to parse: it still reports the consumed length so a
// caller reading a stream of frames can skip past one it doesn't recognise.
// It does, however, return ErrUnknownKind so the supervisor can choose to
// log and continue instead of tearing down the connection.
func DecodeFrame(buf []byte) (kind Kind, payload []byte, consumed int, err error) {
	if len(buf) < headerLen {
		return 0, nil, 0, ErrTruncated
	}

	kind = Kind(buf[0])
	n := binary.BigEndian.Uint32(buf[1:5])
	if n > maxPayloadLen {
		return 0, nil, 0, fmt.Errorf("%w: declared length %d", ErrPayloadTooLarge, n)
	}

	total := headerLen + int(n)
	if len(buf) < total {
		return 0, nil, 0, ErrTruncated
	}

	payload = buf[headerLen:total]

	if !kind.Valid() {
		return kind, payload, total, ErrUnknownKind
	}

	return kind, payload, total, nil
}

// DecodeJSON unmarshals payload into v, wrapping json errors in
// ErrMalformedJSON so callers can match with errors.Is regardless of the
// underlying encoding/json error shape.
func DecodeJSON(payload []byte, v interface{}) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}
	return nil
}

// EncodeJSON marshals v for use as a frame payload.
func EncodeJSON(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}
