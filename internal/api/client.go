// Package api is the facade the terminal UI and CLI drive. It wires the
// exchange engine, the message pipeline and the throughput harness to a log
// sink so every user-visible outcome shows up as a line.
package api

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"

	"github.com/vitaminmoo/blebench/internal/chunk"
	"github.com/vitaminmoo/blebench/internal/config"
	"github.com/vitaminmoo/blebench/internal/exchange"
	"github.com/vitaminmoo/blebench/internal/harness"
	"github.com/vitaminmoo/blebench/internal/logsink"
	"github.com/vitaminmoo/blebench/internal/pipeline"
	"github.com/vitaminmoo/blebench/internal/stats"
	"github.com/vitaminmoo/blebench/internal/transport"
	"github.com/vitaminmoo/blebench/internal/util"
)

// DefaultListenInterval is the read polling period of Listen.
const DefaultListenInterval = 3 * time.Second

// Client provides the high-level operations for one connected link.
type Client struct {
	engine   *exchange.Engine
	sink     logsink.Sink
	interval time.Duration
	fill     byte
}

// Option configures a Client.
type Option func(*Client)

// WithTimeouts bounds every write and read of the client's engine.
func WithTimeouts(write, read time.Duration) Option {
	return func(c *Client) {
		c.engine = exchange.New(c.engine.Link(), exchange.WithTimeouts(write, read))
	}
}

// WithInterval paces throughput test dispatches.
func WithInterval(d time.Duration) Option {
	return func(c *Client) { c.interval = d }
}

// WithFill sets the throughput test packet content byte.
func WithFill(b byte) Option {
	return func(c *Client) { c.fill = b }
}

// New creates a client for link. A nil sink discards output.
func New(link transport.Handle, sink logsink.Sink, opts ...Option) *Client {
	if sink == nil {
		sink = logsink.Discard
	}
	c := &Client{
		engine: exchange.New(link),
		sink:   sink,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Engine returns the client's exchange engine.
func (c *Client) Engine() *exchange.Engine { return c.engine }

// IsConnected reports the link state.
func (c *Client) IsConnected() bool { return c.engine.IsConnected() }

// SendMessage fragments text and exchanges each fragment in order. The returned
// sequence yields every result; each one is also logged to the sink as it
// completes. Consume the sequence to drive the send.
func (c *Client) SendMessage(ctx context.Context, text string) (iter.Seq[exchange.Result], error) {
	seq, err := pipeline.Send(ctx, c.engine, []byte(text))
	if err != nil {
		c.logFailure(err)
		return nil, err
	}
	total := chunk.Count(len(text), c.engine.MaxWriteSize())

	return func(yield func(exchange.Result) bool) {
		for r := range seq {
			c.logResult(r, total)
			if !yield(r) {
				return
			}
		}
	}, nil
}

// Send drains SendMessage and reports how many fragments failed.
func (c *Client) Send(ctx context.Context, text string) (failed int, err error) {
	seq, err := c.SendMessage(ctx, text)
	if err != nil {
		return 0, err
	}
	for r := range seq {
		if !r.OK() {
			failed++
		}
	}
	return failed, ctx.Err()
}

func (c *Client) logResult(r exchange.Result, total int) {
	if !r.OK() {
		logsink.Appendf(c.sink, "Fragment %d/%d failed: %v", r.Index+1, total, r.Err)
		return
	}
	logsink.Appendf(c.sink, "Sent fragment %d/%d (%d bytes) in %s", r.Index+1, total, r.Sent, stats.FormatElapsed(r.Latency()))
	logsink.Appendf(c.sink, "Received: %s", util.Printable(r.Received))
	if config.Verbose && len(r.Received) > 0 {
		config.Debugf("Fragment %d response:\n%s", r.Index, util.HexDump(r.Received))
	}
}

func (c *Client) logFailure(err error) {
	switch {
	case errors.Is(err, transport.ErrNotConnected):
		c.sink.Append("Not connected to device")
	default:
		logsink.Appendf(c.sink, "Error: %v", err)
	}
}

// FitPacketSize caps a configured packet size at the link's maximum write
// size, noting the change in the sink. Sizes that already fit are returned
// unchanged.
func (c *Client) FitPacketSize(n int) int {
	limit := c.engine.MaxWriteSize()
	if n <= limit {
		return n
	}
	logsink.Appendf(c.sink, "Packet size %d exceeds link maximum %d, using %d", n, limit, limit)
	return limit
}

// RunThroughputTest performs packetCount exchanges of packetSize bytes with at
// most maxConcurrency scheduled at once. progress may be nil. The summary line
// and the success/failure counts are logged to the sink.
func (c *Client) RunThroughputTest(ctx context.Context, packetSize, packetCount, maxConcurrency int, progress func(harness.Progress)) (stats.Report, error) {
	logsink.Appendf(c.sink, "Starting throughput test: %s packets of %s",
		humanize.Comma(int64(packetCount)), humanize.IBytes(uint64(max(packetSize, 0))))

	rep, err := harness.Run(ctx, c.engine, harness.Options{
		PacketSize:     packetSize,
		PacketCount:    packetCount,
		MaxConcurrency: maxConcurrency,
		Interval:       c.interval,
		Fill:           c.fill,
		Progress:       progress,
	})
	if err != nil {
		c.logFailure(err)
		return rep, err
	}

	c.sink.Append(rep.Summary())
	c.sink.Append(rep.Counts())
	return rep, nil
}

// Listen polls the read characteristic every interval and logs each value
// until ctx is cancelled or the link drops. Polls share the engine lock, so
// they never interleave with an exchange.
func (c *Client) Listen(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultListenInterval
	}
	if !c.engine.IsConnected() {
		err := fmt.Errorf("listen: %w", transport.ErrNotConnected)
		c.logFailure(err)
		return err
	}

	limiter := rate.NewLimiter(rate.Every(interval), 1)
	for {
		if err := limiter.Wait(ctx); err != nil {
			return nil
		}
		data, err := c.engine.Read(ctx)
		switch {
		case errors.Is(err, transport.ErrNotConnected):
			c.sink.Append("Disconnected")
			return err
		case ctx.Err() != nil:
			return nil
		case err != nil:
			logsink.Appendf(c.sink, "Read failed: %v", err)
		default:
			logsink.Appendf(c.sink, "Received: %s", util.Printable(data))
		}
	}
}
