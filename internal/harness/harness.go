// Package harness measures link throughput by driving many fixed-size
// exchanges through a bounded worker pool.
//
// Workers pull jobs from a shared queue, so scheduling overlaps, but every
// exchange goes through the same exchange.Engine and the radio only ever sees
// one write/read pair at a time.
package harness

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/vitaminmoo/blebench/internal/chunk"
	"github.com/vitaminmoo/blebench/internal/config"
	"github.com/vitaminmoo/blebench/internal/exchange"
	"github.com/vitaminmoo/blebench/internal/stats"
	"github.com/vitaminmoo/blebench/internal/transport"
)

const (
	// DefaultConcurrency is the worker count when Options.MaxConcurrency is zero.
	DefaultConcurrency = 100

	// DefaultFill is the filler byte of every test packet.
	DefaultFill byte = 'T'
)

// Progress is reported after each completed exchange.
type Progress struct {
	Done     int
	Planned  int
	Failures int
}

// Fraction returns completion in [0, 1].
func (p Progress) Fraction() float64 {
	if p.Planned == 0 {
		return 1
	}
	return float64(p.Done) / float64(p.Planned)
}

// Options configures a run.
type Options struct {
	PacketSize     int
	PacketCount    int
	MaxConcurrency int // zero means DefaultConcurrency

	// Interval paces dispatches; zero dispatches as fast as workers free up.
	Interval time.Duration

	// Fill is the packet content byte; zero means DefaultFill.
	Fill byte

	// Progress, if set, is called after every completion. Calls are serialized.
	Progress func(Progress)
}

func (o Options) validate(maxWrite int) error {
	if o.PacketSize <= 0 {
		return transport.Invalidf("packet size must be positive, got %d", o.PacketSize)
	}
	if o.PacketSize > maxWrite {
		return transport.Invalidf("packet size %d exceeds link maximum %d", o.PacketSize, maxWrite)
	}
	if o.PacketCount < 0 {
		return transport.Invalidf("packet count must not be negative, got %d", o.PacketCount)
	}
	if o.MaxConcurrency < 0 {
		return transport.Invalidf("max concurrency must not be negative, got %d", o.MaxConcurrency)
	}
	if o.Interval < 0 {
		return transport.Invalidf("interval must not be negative, got %v", o.Interval)
	}
	return nil
}

// Run performs PacketCount exchanges of PacketSize bytes and returns the
// finalized statistics. It fails before scheduling anything if the options are
// invalid or the link is down. Individual exchange failures are counted, not
// returned. Cancelling ctx stops dispatching; exchanges already handed to a
// worker run to completion or timeout and are included in the report.
func Run(ctx context.Context, e *exchange.Engine, opts Options) (stats.Report, error) {
	if err := opts.validate(e.MaxWriteSize()); err != nil {
		return stats.Report{}, err
	}
	if !e.IsConnected() {
		return stats.Report{}, fmt.Errorf("throughput test: %w", transport.ErrNotConnected)
	}

	session, err := stats.NewSession(opts.PacketCount, opts.PacketSize)
	if err != nil {
		return stats.Report{}, err
	}

	workers := opts.MaxConcurrency
	if workers == 0 {
		workers = DefaultConcurrency
	}
	if workers > opts.PacketCount {
		workers = opts.PacketCount
	}

	fill := opts.Fill
	if fill == 0 {
		fill = DefaultFill
	}
	packet := make([]byte, opts.PacketSize)
	for i := range packet {
		packet[i] = fill
	}

	config.Debugf("Throughput run: %d x %d bytes, %d workers, interval %v",
		opts.PacketCount, opts.PacketSize, workers, opts.Interval)

	r := &runner{
		engine:   e,
		session:  session,
		packet:   packet,
		planned:  opts.PacketCount,
		progress: opts.Progress,
	}

	// Workers waiting on the engine give up when ctx ends; an exchange that
	// already holds the link finishes under its own timeouts.
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go r.work(ctx, w, jobs, &wg)
	}

	cancelled := dispatch(ctx, jobs, opts.PacketCount, opts.Interval, session)
	close(jobs)
	wg.Wait()

	rep := session.Finalize(cancelled)
	config.Debugf("Throughput run %s finished: %s", rep.ID, rep.Counts())
	return rep, nil
}

// dispatch hands job indices to workers until count is reached or ctx is
// done. It reports whether it stopped early.
func dispatch(ctx context.Context, jobs chan<- int, count int, interval time.Duration, session *stats.Session) bool {
	var limiter *rate.Limiter
	if interval > 0 {
		limiter = rate.NewLimiter(rate.Every(interval), 1)
	}

	for i := 0; i < count; i++ {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return true
			}
		}
		if i == 0 {
			session.Begin()
		}
		select {
		case jobs <- i:
		case <-ctx.Done():
			return true
		}
	}
	return false
}

type runner struct {
	engine   *exchange.Engine
	session  *stats.Session
	packet   []byte
	planned  int
	progress func(Progress)

	mu       sync.Mutex
	done     int
	failures int
}

func (r *runner) work(ctx context.Context, id int, jobs <-chan int, wg *sync.WaitGroup) {
	defer wg.Done()
	for idx := range jobs {
		r.record(r.exchange(ctx, id, idx))
	}
}

// exchange runs one job, turning a panic anywhere below into a failed result.
func (r *runner) exchange(ctx context.Context, worker, idx int) (res exchange.Result) {
	defer func() {
		if p := recover(); p != nil {
			res = exchange.Result{
				Index: idx,
				Sent:  len(r.packet),
				Err:   fmt.Errorf("worker %d: %w: panic: %v", worker, transport.ErrTransportFailure, p),
			}
		}
	}()
	return r.engine.Exchange(ctx, chunk.Fragment{Index: idx, Data: r.packet})
}

func (r *runner) record(res exchange.Result) {
	if res.Skipped() {
		return
	}
	if res.Err != nil {
		config.Debugf("Packet %d failed: %v", res.Index, res.Err)
	}
	if err := r.session.Add(res); err != nil {
		config.Debugf("Packet %d not recorded: %v", res.Index, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.done++
	if !res.OK() {
		r.failures++
	}
	if r.progress != nil {
		r.progress(Progress{Done: r.done, Planned: r.planned, Failures: r.failures})
	}
}
