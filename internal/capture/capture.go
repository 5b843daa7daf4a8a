// Package capture implements the direct screen-capture backend: grabbing
// the primary display, detecting whether the frame changed since the last
// call, and JPEG-encoding the result.
package capture

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/kbinani/screenshot"
)

// ErrNoInteractiveSession is returned when the process has no accessible
// display to capture (the session-0 case, see internal/bridge).
var ErrNoInteractiveSession = errors.New("capture: no interactive session available")

// Provider produces a JPEG snapshot of the primary display at a requested
// quality, or reports that nothing changed since the previous call.
type Provider interface {
	// Capture returns (jpeg, true, nil) when the frame changed, or
	// (nil, false, nil) when it is identical to the previous call.
	Capture(quality int) (jpeg []byte, changed bool, err error)
}

// DirectProvider captures the primary display in-process via kbinani/
// screenshot. It is unusable from a session-0 service process with no
// desktop; in that mode the bridge's remote provider is used instead.
type DirectProvider struct {
	mu       sync.Mutex
	lastHash uint64
	hasLast  bool
}

// NewDirectProvider returns a Provider ready for repeated Capture calls.
// Fingerprint state resets on every START_STREAM by constructing a fresh
// DirectProvider (the supervisor's capture pipeline owns this lifetime).
func NewDirectProvider() *DirectProvider {
	return &DirectProvider{}
}

// Capture grabs the primary display, compares its pixel-buffer fingerprint
// against the previous call, and either reports "unchanged" or JPEG-encodes
// the new frame. A change in resolution changes the buffer length and thus
// the hash input, so it always forces a cache miss.
func (p *DirectProvider) Capture(quality int) ([]byte, bool, error) {
	n := screenshot.NumActiveDisplays()
	if n <= 0 {
		return nil, false, ErrNoInteractiveSession
	}

	bounds := screenshot.GetDisplayBounds(0)
	img, err := screenshot.CaptureRect(bounds)
	if err != nil {
		return nil, false, fmt.Errorf("capturing display: %w", err)
	}

	hash := fingerprint(img)

	p.mu.Lock()
	unchanged := p.hasLast && hash == p.lastHash
	p.lastHash = hash
	p.hasLast = true
	p.mu.Unlock()

	if unchanged {
		return nil, false, nil
	}

	buf := &bytes.Buffer{}
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, false, fmt.Errorf("encoding JPEG: %w", err)
	}
	return buf.Bytes(), true, nil
}

// fingerprint hashes the raw RGBA pixel buffer with xxhash, a fast
// non-cryptographic hash whose collision resistance is more than enough
// for change detection (this is not a security boundary).
func fingerprint(img *image.RGBA) uint64 {
	return xxhash.Sum64(img.Pix)
}
