// Package logsink carries user-visible log lines from the core to whatever is
// presenting them: the terminal UI, stdout, or the structured logger.
package logsink

import (
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
)

// Sink receives one line at a time. Implementations must be safe for
// concurrent use.
type Sink interface {
	Append(line string)
}

// Appendf formats and appends a line.
func Appendf(s Sink, format string, args ...any) {
	s.Append(fmt.Sprintf(format, args...))
}

// Func adapts a function to a Sink.
type Func func(line string)

func (f Func) Append(line string) { f(line) }

// Discard drops every line.
var Discard Sink = Func(func(string) {})

// Zap writes lines through a zap logger at info level.
type Zap struct {
	Logger *zap.Logger
}

// NewZap returns a sink on top of l, or the global logger if l is nil.
func NewZap(l *zap.Logger) *Zap {
	if l == nil {
		l = zap.L()
	}
	return &Zap{Logger: l.Named("sink")}
}

func (z *Zap) Append(line string) { z.Logger.Info(line) }

// Writer prints one line per Append.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriter(w io.Writer) *Writer { return &Writer{w: w} }

func (s *Writer) Append(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.w, line)
}

// Chan buffers lines for a single consumer. When the buffer is full the
// oldest pending line is dropped so producers never block.
type Chan struct {
	ch      chan string
	mu      sync.Mutex
	dropped int
}

func NewChan(size int) *Chan {
	if size <= 0 {
		size = 256
	}
	return &Chan{ch: make(chan string, size)}
}

// Lines returns the receive side.
func (c *Chan) Lines() <-chan string { return c.ch }

// Dropped reports how many lines were discarded due to a full buffer.
func (c *Chan) Dropped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

func (c *Chan) Append(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for {
		select {
		case c.ch <- line:
			return
		default:
		}
		select {
		case <-c.ch:
			c.dropped++
		default:
		}
	}
}

// Multi fans a line out to several sinks.
type Multi []Sink

func (m Multi) Append(line string) {
	for _, s := range m {
		s.Append(line)
	}
}
