package ble

import (
	"context"

	"github.com/vitaminmoo/blebench/internal/config"
)

// radio admits one adapter call at a time. The slot is held until the call
// returns, not until the caller stops waiting, so a call abandoned on timeout
// still blocks the next one.
type radio struct {
	busy chan struct{}
}

func newRadio() *radio {
	return &radio{busy: make(chan struct{}, 1)}
}

func (r *radio) release() { <-r.busy }

// through runs fn once the radio is free. It fails with ctx's error if the
// previous call is still outstanding when ctx ends.
func through[T any](ctx context.Context, r *radio, fn func() (T, error)) (T, error) {
	select {
	case r.busy <- struct{}{}:
	case <-ctx.Done():
		var zero T
		config.Debugf("Radio still busy with an abandoned call")
		return zero, ctx.Err()
	}
	return await(ctx, 0, func() (T, error) {
		defer r.release()
		return fn()
	})
}
