package codec

import (
	"io"
	"strings"
)

// WriteSink appends p to acc and returns the number of bytes consumed.
// With limit > 0 the accumulator never grows past limit bytes; the returned
// count is then shorter than len(p), which the transport treats as a write
// failure.
func WriteSink(p []byte, acc *strings.Builder, limit int) int {
	n := len(p)
	if limit > 0 {
		room := limit - acc.Len()
		if room < 0 {
			room = 0
		}
		if n > room {
			n = room
		}
	}
	acc.Write(p[:n])
	return n
}

// Sink accumulates a response body. It is an io.Writer whose short writes
// surface as io.ErrShortWrite.
type Sink struct {
	acc   strings.Builder
	limit int
}

// NewSink returns an empty sink bounded by limit bytes (0 = unbounded).
func NewSink(limit int) *Sink {
	return &Sink{limit: limit}
}

func (s *Sink) Write(p []byte) (int, error) {
	n := WriteSink(p, &s.acc, s.limit)
	if n != len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

// String returns everything accumulated so far.
func (s *Sink) String() string {
	return s.acc.String()
}

// Len returns the number of accumulated bytes.
func (s *Sink) Len() int {
	return s.acc.Len()
}
