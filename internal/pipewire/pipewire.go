// Package pipewire implements the two small wire formats spoken over the
// session-0 bridge's named pipes: a request/response framing for screen
// capture and a one-way framing for input/overlay notifications.
// It is shared by internal/bridge (the service side) and internal/helper
// (the in-session side) so both speak exactly the same bytes.
package pipewire

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// Input-pipe message types.
const (
	InputTypeMouse  byte = 1
	InputTypeKey    byte = 2
	InputTypeNotify byte = 3
)

// NotifyPayload is the type-3 JSON body on the input pipe.
type NotifyPayload struct {
	TechnicianName string `json:"technician_name"`
	Connected      bool   `json:"connected"`
}

// EncodeNotify marshals a type-3 overlay notification body.
func EncodeNotify(technicianName string, connected bool) ([]byte, error) {
	body, err := json.Marshal(NotifyPayload{TechnicianName: technicianName, Connected: connected})
	if err != nil {
		return nil, fmt.Errorf("marshalling notify payload: %w", err)
	}
	return body, nil
}

// WriteInputFrame writes one input-pipe frame: [1B type][4B BE length][N
// bytes JSON].
func WriteInputFrame(w io.Writer, kind byte, body []byte) error {
	header := make([]byte, 5)
	header[0] = kind
	binary.BigEndian.PutUint32(header[1:], uint32(len(body)))
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("writing input frame header: %w", err)
	}
	if len(body) > 0 {
		if _, err := w.Write(body); err != nil {
			return fmt.Errorf("writing input frame body: %w", err)
		}
	}
	return nil
}

// ReadInputFrame reads one input-pipe frame written by WriteInputFrame.
func ReadInputFrame(r io.Reader) (kind byte, body []byte, err error) {
	header := make([]byte, 5)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, nil, fmt.Errorf("reading input frame header: %w", err)
	}
	kind = header[0]
	n := binary.BigEndian.Uint32(header[1:])
	body = make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, body); err != nil {
			return 0, nil, fmt.Errorf("reading input frame body: %w", err)
		}
	}
	return kind, body, nil
}

// WriteCaptureRequest writes the 1-byte quality request on the capture
// pipe, clamped to 1..100.
func WriteCaptureRequest(w io.Writer, quality int) error {
	if quality < 1 {
		quality = 1
	} else if quality > 100 {
		quality = 100
	}
	_, err := w.Write([]byte{byte(quality)})
	return err
}

// ReadCaptureRequest reads the 1-byte quality request.
func ReadCaptureRequest(r io.Reader) (int, error) {
	buf := make([]byte, 1)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, err
	}
	return int(buf[0]), nil
}

// WriteCaptureResponse writes [4B BE length][JPEG]; an empty jpeg means
// "unchanged" (L == 0).
func WriteCaptureResponse(w io.Writer, jpeg []byte) error {
	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(jpeg)))
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("writing capture response header: %w", err)
	}
	if len(jpeg) > 0 {
		if _, err := w.Write(jpeg); err != nil {
			return fmt.Errorf("writing capture response body: %w", err)
		}
	}
	return nil
}

// ReadCaptureResponse reads a capture response. changed is false when the
// helper reported L == 0 ("unchanged").
func ReadCaptureResponse(r io.Reader) (jpeg []byte, changed bool, err error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, false, fmt.Errorf("reading capture response header: %w", err)
	}
	n := binary.BigEndian.Uint32(header)
	if n == 0 {
		return nil, false, nil
	}
	jpeg = make([]byte, n)
	if _, err := io.ReadFull(r, jpeg); err != nil {
		return nil, false, fmt.Errorf("reading capture response body: %w", err)
	}
	return jpeg, true, nil
}
