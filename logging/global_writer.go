package logging

import (
	"io"
	"os"
	"sync"
)

// stderrSink is the terminal side of every logger. Commands point it at
// their own stderr so output ordering follows cobra's writers.
var stderrSink = &swapWriter{w: os.Stderr}

type swapWriter struct {
	mu sync.RWMutex
	w  io.Writer
}

func (s *swapWriter) Write(p []byte) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.w.Write(p)
}

func (s *swapWriter) swap(w io.Writer) io.Writer {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.w
	s.w = w
	return prev
}

// SetGlobalOutput redirects the stderr sink of every logger and returns
// the previous writer.
func SetGlobalOutput(w io.Writer) io.Writer {
	if w == nil {
		w = os.Stderr
	}
	return stderrSink.swap(w)
}

// GetGlobalOutput returns the shared stderr sink.
func GetGlobalOutput() io.Writer {
	return stderrSink
}
