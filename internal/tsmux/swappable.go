package tsmux

import (
	"io"
	"sync"
)

// SwappableWriter is an io.Writer whose underlying destination can be
// redirected mid-stream. In single-file HLS output the segmenter wraps the
// one output file in a SwappableWriter for the whole run, and each
// segment's fresh RawSink (and, under AES-128, its Aes128Sink) writes
// through it, so every segment lands at the next byte-range offset of the
// same file. SetWriter retargets subsequent writes; the segmenter itself
// never calls it.
type SwappableWriter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewSwappableWriter constructs a SwappableWriter initially targeting w.
func NewSwappableWriter(w io.Writer) *SwappableWriter {
	return &SwappableWriter{w: w}
}

// Write implements io.Writer, forwarding to the current target.
func (s *SwappableWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w == nil {
		return 0, io.ErrClosedPipe
	}
	return s.w.Write(p)
}

// SetWriter redirects subsequent writes to w.
func (s *SwappableWriter) SetWriter(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w = w
}
