package session

import (
	"time"

	"go.uber.org/zap"
)

// DefaultMaxResponseBytes bounds how much of a response body is buffered.
const DefaultMaxResponseBytes = 32 << 20

// Option configures a Session.
type Option func(*Session)

// WithEngine replaces the default net/http engine.
func WithEngine(e Engine) Option {
	return func(s *Session) {
		if e != nil {
			s.engine = e
		}
	}
}

// WithLogger sets the session logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTimeout bounds each request. Zero disables the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d >= 0 {
			s.timeout = d
		}
	}
}

// WithMaxResponseBytes limits the buffered response body. Zero or less means
// unlimited.
func WithMaxResponseBytes(n int) Option {
	return func(s *Session) {
		s.maxResponseBytes = n
	}
}
