// Package exchange performs write-then-read round trips over a transport.
//
// An Engine owns the link lock: at most one exchange is in flight across every
// caller sharing the Engine, whatever the number of goroutines driving it.
// Waiting for the lock honours cancellation; an exchange that holds it runs to
// completion or timeout.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vitaminmoo/blebench/internal/chunk"
	"github.com/vitaminmoo/blebench/internal/transport"
)

// ErrNotAttempted marks a Result whose context was cancelled before it got the
// link. Nothing was written.
var ErrNotAttempted = errors.New("exchange not attempted")

const (
	DefaultWriteTimeout = 5 * time.Second
	DefaultReadTimeout  = 5 * time.Second
)

// Result is the outcome of one fragment round trip.
type Result struct {
	Index    int
	Sent     int
	Received []byte // nil unless the read completed

	StartedAt time.Time // immediately before the write
	WrittenAt time.Time // write returned; zero if never attempted
	EndedAt   time.Time // read returned or the failure was observed

	Err error
}

// OK reports whether both the write and the read completed.
func (r Result) OK() bool { return r.Err == nil }

// Skipped reports whether the exchange was abandoned before touching the link.
func (r Result) Skipped() bool { return errors.Is(r.Err, ErrNotAttempted) }

// Latency is the full round-trip time.
func (r Result) Latency() time.Duration { return r.EndedAt.Sub(r.StartedAt) }

// SendTime is the time spent in the write call.
func (r Result) SendTime() time.Duration {
	if r.WrittenAt.IsZero() {
		return 0
	}
	return r.WrittenAt.Sub(r.StartedAt)
}

// ReceiveTime is the time spent in the read call.
func (r Result) ReceiveTime() time.Duration {
	if r.WrittenAt.IsZero() {
		return 0
	}
	return r.EndedAt.Sub(r.WrittenAt)
}

// Engine drives exchanges against one transport handle.
type Engine struct {
	lock         chan struct{}
	link         transport.Handle
	writeTimeout time.Duration
	readTimeout  time.Duration
	now          func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithTimeouts bounds each write and read. Non-positive values keep the default.
func WithTimeouts(write, read time.Duration) Option {
	return func(e *Engine) {
		if write > 0 {
			e.writeTimeout = write
		}
		if read > 0 {
			e.readTimeout = read
		}
	}
}

// WithClock replaces time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine for link.
func New(link transport.Handle, opts ...Option) *Engine {
	e := &Engine{
		lock:         make(chan struct{}, 1),
		link:         link,
		writeTimeout: DefaultWriteTimeout,
		readTimeout:  DefaultReadTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Link returns the handle the engine drives.
func (e *Engine) Link() transport.Handle { return e.link }

// IsConnected reports the link's connectivity flag.
func (e *Engine) IsConnected() bool { return e.link.IsConnected() }

// MaxWriteSize returns the usable fragment size of the link.
func (e *Engine) MaxWriteSize() int { return e.link.WriteSize() }

// acquire takes the link lock unless ctx ends first.
func (e *Engine) acquire(ctx context.Context) error {
	select {
	case e.lock <- struct{}{}:
		// both cases may have been ready
		if err := ctx.Err(); err != nil {
			e.release()
			return err
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) release() { <-e.lock }

// Exchange writes f to the write characteristic with acknowledgement, then
// reads the read characteristic. It blocks until the link is free; if ctx is
// cancelled first the Result is Skipped and nothing is sent. Once the write is
// issued, cancellation no longer applies and only the timeouts bound the
// exchange. Failures are returned inside the Result, never as a panic.
func (e *Engine) Exchange(ctx context.Context, f chunk.Fragment) (res Result) {
	res = Result{Index: f.Index, Sent: len(f.Data)}
	if err := e.acquire(ctx); err != nil {
		res.Err = fmt.Errorf("fragment %d: %w: %w", f.Index, ErrNotAttempted, err)
		return res
	}
	defer e.release()
	ctx = context.WithoutCancel(ctx)
	defer func() {
		if r := recover(); r != nil {
			res.EndedAt = e.now()
			res.Received = nil
			res.Err = fmt.Errorf("fragment %d: %w: panic: %v", f.Index, transport.ErrTransportFailure, r)
		}
	}()

	res.StartedAt = e.now()
	if !e.link.IsConnected() {
		res.EndedAt = res.StartedAt
		res.Err = fmt.Errorf("fragment %d: %w", f.Index, transport.ErrNotConnected)
		return res
	}

	wctx, cancel := context.WithTimeout(ctx, e.writeTimeout)
	err := e.link.WriteCharacteristic(wctx, e.link.WriteChar, f.Data, true)
	cancel()
	res.WrittenAt = e.now()
	if err != nil {
		res.EndedAt = res.WrittenAt
		res.Err = fmt.Errorf("write fragment %d: %w", f.Index, transport.Classify(err))
		return res
	}

	rctx, cancel := context.WithTimeout(ctx, e.readTimeout)
	data, err := e.link.ReadCharacteristic(rctx, e.link.ReadChar)
	cancel()
	res.EndedAt = e.now()
	if err != nil {
		res.Err = fmt.Errorf("read fragment %d: %w", f.Index, transport.Classify(err))
		return res
	}

	if data == nil {
		data = []byte{}
	}
	res.Received = data
	return res
}

// Read reads the read characteristic on its own, holding the link lock so it
// never interleaves with an exchange.
// Like Exchange, cancellation only applies while waiting for the lock.
func (e *Engine) Read(ctx context.Context) ([]byte, error) {
	if err := e.acquire(ctx); err != nil {
		return nil, err
	}
	defer e.release()

	if !e.link.IsConnected() {
		return nil, transport.ErrNotConnected
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.readTimeout)
	defer cancel()
	data, err := e.link.ReadCharacteristic(rctx, e.link.ReadChar)
	if err != nil {
		return nil, transport.Classify(err)
	}
	return data, nil
}
