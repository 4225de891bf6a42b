// Package sim provides an in-memory peripheral that behaves like a GATT
// characteristic pair. Reads return the last value written unless a Responder
// is set. It tracks every write/read span so callers can check that the link
// was never driven by two exchanges at once.
package sim

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vitaminmoo/blebench/internal/transport"
)

const (
	// WriteChar and ReadChar are the characteristic ids the simulator exposes.
	WriteChar transport.CharID = "sim-write"
	ReadChar  transport.CharID = "sim-read"
)

// Op names a transport call for fault injection.
type Op int

const (
	OpWrite Op = iota
	OpRead
)

func (o Op) String() string {
	if o == OpWrite {
		return "write"
	}
	return "read"
}

// Span is one write followed by its read, as observed by the peripheral.
type Span struct {
	Start time.Time
	End   time.Time
}

// Options configures a Peripheral.
type Options struct {
	MaxWriteSize int
	WriteLatency time.Duration
	ReadLatency  time.Duration

	// DisconnectAfter drops the link once this many writes have completed. Zero disables.
	DisconnectAfter int

	// Responder computes the read value from the last written value. Nil echoes.
	Responder func(last []byte) []byte

	// Fail injects an error for the n-th call (1-based) of op. Nil never fails.
	Fail func(op Op, n int) error
}

// Peripheral is a simulated link. Safe for concurrent use, but the overlap
// detector counts any concurrent write/read pair as a violation.
type Peripheral struct {
	opts Options

	connected atomic.Bool
	inFlight  atomic.Int32
	overlaps  atomic.Int32
	writes    atomic.Int64
	reads     atomic.Int64

	mu    sync.Mutex
	last  []byte
	open  time.Time
	spans []Span
}

// New creates a connected Peripheral.
func New(opts Options) *Peripheral {
	p := &Peripheral{opts: opts}
	p.connected.Store(true)
	return p
}

// Handle returns a transport handle bound to the simulator's characteristic pair.
func (p *Peripheral) Handle() transport.Handle {
	return transport.Handle{Transport: p, WriteChar: WriteChar, ReadChar: ReadChar}
}

// IsConnected implements transport.Transport.
func (p *Peripheral) IsConnected() bool { return p.connected.Load() }

// MaxWriteSize implements transport.Transport.
func (p *Peripheral) MaxWriteSize() int { return p.opts.MaxWriteSize }

// Disconnect drops the link.
func (p *Peripheral) Disconnect() { p.connected.Store(false) }

// Reconnect restores the link.
func (p *Peripheral) Reconnect() { p.connected.Store(true) }

// WriteCharacteristic implements transport.Transport.
func (p *Peripheral) WriteCharacteristic(ctx context.Context, id transport.CharID, data []byte, requireAck bool) error {
	if !p.IsConnected() {
		return transport.ErrNotConnected
	}
	if id != WriteChar {
		return fmt.Errorf("unknown characteristic %q", id)
	}
	if max := transport.WriteSize(p); len(data) > max {
		return fmt.Errorf("write of %d bytes exceeds max %d", len(data), max)
	}

	if p.inFlight.Add(1) > 1 {
		p.overlaps.Add(1)
	}
	p.mu.Lock()
	p.open = time.Now()
	p.mu.Unlock()

	n := int(p.writes.Add(1))
	if err := p.sleep(ctx, p.opts.WriteLatency); err != nil {
		p.closeSpan()
		return err
	}
	if err := p.fail(OpWrite, n); err != nil {
		p.closeSpan()
		return err
	}

	p.mu.Lock()
	p.last = append(p.last[:0], data...)
	p.mu.Unlock()

	if p.opts.DisconnectAfter > 0 && n >= p.opts.DisconnectAfter {
		p.Disconnect()
	}
	return nil
}

// ReadCharacteristic implements transport.Transport.
func (p *Peripheral) ReadCharacteristic(ctx context.Context, id transport.CharID) ([]byte, error) {
	defer p.closeSpan()

	if id != ReadChar {
		return nil, fmt.Errorf("unknown characteristic %q", id)
	}
	n := int(p.reads.Add(1))
	if err := p.sleep(ctx, p.opts.ReadLatency); err != nil {
		return nil, err
	}
	if err := p.fail(OpRead, n); err != nil {
		return nil, err
	}

	p.mu.Lock()
	last := append([]byte(nil), p.last...)
	p.mu.Unlock()

	if p.opts.Responder != nil {
		return p.opts.Responder(last), nil
	}
	return last, nil
}

// Writes returns how many writes the peripheral has accepted or attempted.
func (p *Peripheral) Writes() int { return int(p.writes.Load()) }

// Reads returns how many reads were issued.
func (p *Peripheral) Reads() int { return int(p.reads.Load()) }

// Overlaps returns how many times a write started while another exchange was open.
func (p *Peripheral) Overlaps() int { return int(p.overlaps.Load()) }

// Spans returns a copy of the recorded write/read spans.
func (p *Peripheral) Spans() []Span {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Span, len(p.spans))
	copy(out, p.spans)
	return out
}

func (p *Peripheral) closeSpan() {
	if p.inFlight.Load() <= 0 {
		return
	}
	p.inFlight.Add(-1)
	p.mu.Lock()
	if !p.open.IsZero() {
		p.spans = append(p.spans, Span{Start: p.open, End: time.Now()})
		p.open = time.Time{}
	}
	p.mu.Unlock()
}

func (p *Peripheral) fail(op Op, n int) error {
	if p.opts.Fail == nil {
		return nil
	}
	return p.opts.Fail(op, n)
}

func (p *Peripheral) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
