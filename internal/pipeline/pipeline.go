// Package pipeline sends one payload as a sequence of fragment exchanges.
package pipeline

import (
	"context"
	"fmt"
	"iter"

	"github.com/vitaminmoo/blebench/internal/chunk"
	"github.com/vitaminmoo/blebench/internal/config"
	"github.com/vitaminmoo/blebench/internal/exchange"
	"github.com/vitaminmoo/blebench/internal/transport"
)

// Send splits payload by the link's maximum write size and returns a lazy
// sequence of exchange results, one per fragment, in order.
//
// Nothing is sent until the sequence is ranged over. Fragments are driven one
// at a time; a failed fragment does not stop the ones after it. Cancelling ctx
// stops before the next fragment, and breaking out of the range loop stops
// early as well. Ranging over the sequence again resends the whole payload.
//
// Send fails immediately if the link is down.
func Send(ctx context.Context, e *exchange.Engine, payload []byte) (iter.Seq[exchange.Result], error) {
	if !e.IsConnected() {
		return nil, fmt.Errorf("send: %w", transport.ErrNotConnected)
	}

	frags, err := chunk.Split(payload, e.MaxWriteSize())
	if err != nil {
		return nil, err
	}

	return func(yield func(exchange.Result) bool) {
		for _, f := range frags {
			res := e.Exchange(ctx, f)
			if res.Skipped() {
				config.Debugf("Send cancelled before fragment %d/%d", f.Index+1, len(frags))
				return
			}
			if !yield(res) {
				return
			}
		}
	}, nil
}

// Collect drains a Send sequence into a slice.
func Collect(seq iter.Seq[exchange.Result]) []exchange.Result {
	var out []exchange.Result
	for r := range seq {
		out = append(out, r)
	}
	return out
}
