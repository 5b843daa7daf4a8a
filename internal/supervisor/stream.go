package supervisor

// streamState tracks the capture stream across dispatch and reconnects.
// active reports whether a capture task should currently be running; it is
// cleared by STOP_STREAM and by a capture failure. wasActive is the shadow
// flag snapshotted when a connection drops, so that a stream lost to a
// transient transport failure resumes with the same quality/fps — but one
// stopped by the console or killed by a capture error stays stopped until
// the console re-issues START_STREAM. The frame sequence counter and
// capture fingerprint live inside the capture pipeline itself (they are
// reset on every Start).
type streamState struct {
	active    bool
	wasActive bool
	quality   int
	fpsMax    int
}

func (s *streamState) start(quality, fpsMax int) {
	s.active = true
	s.quality = quality
	s.fpsMax = fpsMax
}

// stop clears both flags: an explicit STOP_STREAM must not resume after a
// reconnect.
func (s *streamState) stop() {
	s.active = false
	s.wasActive = false
}

// fail clears active only. The capture task died but the session is still
// up; the console decides whether to start a new stream.
func (s *streamState) fail() {
	s.active = false
}

// snapshotDisconnect records whether a stream was running at the moment the
// connection dropped, for resumption on the next successful connect.
func (s *streamState) snapshotDisconnect() {
	s.wasActive = s.active
	s.active = false
}
