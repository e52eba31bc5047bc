// Package coalesce provides keyed request coalescing: at most one execution of
// an expensive operation per key is in flight, and concurrent callers for the
// same key share its result.
package coalesce

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

var ErrPanicked = errors.New("coalesced call panicked")

// Group coalesces calls by key. The zero value is ready to use.
type Group[T any] struct {
	sf singleflight.Group

	mu      sync.Mutex
	pending map[string]int
}

// Do runs fn for key unless a call for key is already in flight, in which case
// it waits for and returns that call's result. shared reports whether the
// result was delivered to more than one caller.
//
// fn receives a context detached from the caller's cancellation: one caller
// giving up must not abort work other callers are waiting on. fn is expected to
// bound itself with its own deadline. A panic in fn is returned as ErrPanicked.
func (g *Group[T]) Do(ctx context.Context, key string, fn func(ctx context.Context) (T, error)) (v T, shared bool, err error) {
	ch := g.sf.DoChan(key, func() (result any, err error) {
		g.add(key)
		defer g.done(key)
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: %v", ErrPanicked, r)
			}
		}()
		return fn(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return v, res.Shared, res.Err
		}
		v, _ = res.Val.(T)
		return v, res.Shared, nil
	case <-ctx.Done():
		return v, false, ctx.Err()
	}
}

// Pending returns the number of keys with a call in flight.
func (g *Group[T]) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}

// InFlight reports whether a call for key is in flight.
func (g *Group[T]) InFlight(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pending[key] > 0
}

func (g *Group[T]) add(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending == nil {
		g.pending = make(map[string]int)
	}
	g.pending[key]++
}

func (g *Group[T]) done(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pending[key]--
	if g.pending[key] <= 0 {
		delete(g.pending, key)
	}
}
