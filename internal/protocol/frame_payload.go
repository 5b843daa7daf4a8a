package protocol

import (
	"encoding/binary"
	"fmt"
)

// frameHeaderLen is the fixed prefix of a FRAME payload: 4-byte seq followed
// by 4-byte timestamp, both big-endian, before the raw JPEG bytes.
const frameHeaderLen = 8

// EncodeFramePayload builds the FRAME payload layout: [4B seq][4B ts_ms][JPEG].
func EncodeFramePayload(seq uint32, tsMs uint32, jpeg []byte) []byte {
	buf := make([]byte, frameHeaderLen+len(jpeg))
	binary.BigEndian.PutUint32(buf[0:4], seq)
	binary.BigEndian.PutUint32(buf[4:8], tsMs)
	copy(buf[frameHeaderLen:], jpeg)
	return buf
}

// DecodeFramePayload parses a FRAME payload into its sequence number,
// timestamp, and JPEG bytes (a view into payload, not a copy). A JPEG
// length of 0 is well-formed.
func DecodeFramePayload(payload []byte) (seq uint32, tsMs uint32, jpeg []byte, err error) {
	if len(payload) < frameHeaderLen {
		return 0, 0, nil, fmt.Errorf("%w: FRAME payload shorter than %d bytes", ErrTruncated, frameHeaderLen)
	}
	seq = binary.BigEndian.Uint32(payload[0:4])
	tsMs = binary.BigEndian.Uint32(payload[4:8])
	jpeg = payload[frameHeaderLen:]
	return seq, tsMs, jpeg, nil
}
