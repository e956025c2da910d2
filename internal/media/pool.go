// Package media decodes inline media payloads and bounds the number of
// concurrent uploads to object storage.
package media

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Pool bounds concurrent uploads across every migration task of the
// process, not per task.
type Pool struct {
	sem *semaphore.Weighted
}

// NewPool allows at most limit concurrent uploads. A limit below 1 is 1.
func NewPool(limit int) *Pool {
	return &Pool{sem: semaphore.NewWeighted(int64(max(limit, 1)))}
}

// Run waits for a slot and runs fn in it. It returns ctx.Err() when the
// context ends first. A nil Pool runs fn directly.
func (p *Pool) Run(ctx context.Context, fn func() error) error {
	if p == nil || p.sem == nil {
		return fn()
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return fn()
}
