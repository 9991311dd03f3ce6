// Package blocking offloads calls into vendor SDKs — which are allowed to
// block — onto a dedicated worker pool so the cooperative executor driving
// RunEngine, the RPC surface, and per-device polling loops is never stalled
// (spec.md §5 "blocking offload primitive"). Grounded on the errgroup/
// semaphore shape used for worker-pool fan-out alongside mmap-backed shared
// state in other_examples' yanet2 pdump ring control-plane file, the closest
// non-domain analogue in the pack to this daemon's blocking/shared-memory
// split.
package blocking

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Pool runs blocking work items on ordinary OS threads, bounding total
// concurrency so a storm of vendor calls cannot exhaust the process's
// thread budget.
type Pool struct {
	sem *semaphore.Weighted
}

// New creates a pool with the given concurrency limit. A limit of 0 or
// less uses runtime.NumCPU().
func New(limit int) *Pool {
	if limit <= 0 {
		limit = runtime.NumCPU()
	}
	return &Pool{sem: semaphore.NewWeighted(int64(limit))}
}

// Run executes fn on the blocking pool and returns its result, blocking the
// caller (cooperatively, via ctx) until a slot is free and fn completes.
// Cancelling ctx before fn starts returns ctx.Err() without running fn;
// cancelling after fn has started does not interrupt fn — "a blocked vendor
// SDK call completes before control returns" (spec.md §5 cancellation
// contract).
func (p *Pool) Run(ctx context.Context, fn func() error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return fn()
}

// RunValue is Run's generic-result counterpart for callers that need a
// value back from the blocking call.
func RunValue[T any](ctx context.Context, p *Pool, fn func() (T, error)) (T, error) {
	var zero T
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return zero, err
	}
	defer p.sem.Release(1)
	return fn()
}

// Group runs a fixed batch of blocking work items concurrently, bounded by
// the same semaphore, and returns the first error (if any), cancelling the
// rest (errgroup's standard fail-fast semantics).
func (p *Pool) Group(ctx context.Context, fns ...func(context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, fn := range fns {
		fn := fn
		g.Go(func() error {
			return p.Run(gctx, func() error { return fn(gctx) })
		})
	}
	return g.Wait()
}
