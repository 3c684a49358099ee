// Package taskholder shares expensive per-key operations between concurrent callers.
//
// A Holder runs at most one operation per key at a time; callers asking for a key that
// is already in flight wait for that operation and receive its result. Operations of
// different keys are also serialized through one global gate, which suits rare and slow
// work such as downloading and parsing model files.
//
// De-duplication is best effort. A caller arriving just as an operation completes may
// either receive the finished result or start a new operation.
package taskholder

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/picogrid/legion-connector/pkg/logger"
)

// ErrClosed is returned by Execute after Close.
var ErrClosed = errors.New("taskholder: closed")

// Option configures a Holder.
type Option func(*options)

type options struct {
	settleDelay time.Duration
	log         logger.Logger
}

// WithSettleDelay waits d after acquiring the gate and before running an operation.
// Callers arriving for the same key during the delay join the pending operation.
func WithSettleDelay(d time.Duration) Option {
	return func(o *options) { o.settleDelay = d }
}

// WithLogger sets the logger used for operation tracing.
func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// Holder de-duplicates operations by key. The zero value is not usable; use New.
type Holder[K ~string, R any] struct {
	group  singleflight.Group
	gate   *semaphore.Weighted
	opts   options
	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool
}

// New creates a Holder.
func New[K ~string, R any](opts ...Option) *Holder[K, R] {
	o := options{log: logger.WithPrefix("taskholder")}
	for _, opt := range opts {
		opt(&o)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Holder[K, R]{
		gate:   semaphore.NewWeighted(1),
		opts:   o,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Execute runs op for key, or waits for the operation already running for key. The
// operation receives the holder's context, not the caller's, so a caller that gives up
// does not cancel work other callers are waiting for; ctx only bounds how long this
// caller waits.
func (h *Holder[K, R]) Execute(ctx context.Context, key K, op func(ctx context.Context) (R, error)) (R, error) {
	var zero R
	if h.closed.Load() {
		return zero, ErrClosed
	}

	ch := h.group.DoChan(string(key), func() (any, error) {
		if err := h.gate.Acquire(h.ctx, 1); err != nil {
			return nil, ErrClosed
		}
		defer h.gate.Release(1)

		if h.opts.settleDelay > 0 {
			t := time.NewTimer(h.opts.settleDelay)
			defer t.Stop()
			select {
			case <-t.C:
			case <-h.ctx.Done():
				return nil, ErrClosed
			}
		}

		h.opts.log.Debugf("Running operation for %s", key)
		return op(h.ctx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		v, _ := res.Val.(R)
		if res.Shared {
			h.opts.log.Debugf("Shared result of operation for %s", key)
		}
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Close cancels all running operations and rejects new ones.
func (h *Holder[K, R]) Close() {
	if h.closed.Swap(true) {
		return
	}
	h.cancel()
}
