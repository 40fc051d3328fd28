package logger

import (
	"bufio"
	"errors"
	"io"
	"sync"
)

var errSinkClosed = errors.New("logger: sink closed")

// sink serializes log lines onto a single goroutine that owns the buffered
// outputs, so slow stdout or disk never blocks a handler for long.
type sink struct {
	lines chan []byte
	flush chan chan error
	done  chan struct{}
	out   *bufio.Writer

	closeMu sync.RWMutex
	closed  bool

	mu  sync.Mutex
	err error
}

func newSink(outputs []io.Writer, queue int) *sink {
	if queue <= 0 {
		queue = 256
	}
	s := &sink{
		lines: make(chan []byte, queue),
		flush: make(chan chan error),
		done:  make(chan struct{}),
		out:   bufio.NewWriterSize(io.MultiWriter(outputs...), 64*1024),
	}
	go s.run()
	return s
}

func (s *sink) run() {
	defer close(s.done)
	for {
		select {
		case line, ok := <-s.lines:
			if !ok {
				s.fail(s.out.Flush())
				return
			}
			s.write(line)
			// Flush when idle so lines show up promptly without a timer.
			if len(s.lines) == 0 {
				s.fail(s.out.Flush())
			}
		case ack := <-s.flush:
			for n := len(s.lines); n > 0; n-- {
				line, ok := <-s.lines
				if !ok {
					break
				}
				s.write(line)
			}
			ack <- s.out.Flush()
		}
	}
}

func (s *sink) write(line []byte) {
	if _, err := s.out.Write(line); err != nil {
		s.fail(err)
	}
}

// Write implements io.Writer. The slice is copied because slog handlers
// reuse their buffers.
func (s *sink) Write(p []byte) (int, error) {
	if err := s.firstErr(); err != nil {
		return 0, err
	}
	line := make([]byte, len(p))
	copy(line, p)

	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	if s.closed {
		return 0, errSinkClosed
	}
	s.lines <- line
	return len(p), nil
}

// Flush blocks until queued lines reached the outputs.
func (s *sink) Flush() error {
	ack := make(chan error, 1)
	select {
	case s.flush <- ack:
		return <-ack
	case <-s.done:
		return s.firstErr()
	}
}

// Close drains the queue and stops the goroutine.
func (s *sink) Close() error {
	s.closeMu.Lock()
	if !s.closed {
		s.closed = true
		close(s.lines)
	}
	s.closeMu.Unlock()
	<-s.done
	return s.firstErr()
}

func (s *sink) fail(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}

func (s *sink) firstErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
