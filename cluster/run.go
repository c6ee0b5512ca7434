package cluster

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Run launches n workers on a new LocalGroup and waits for all of them.
//
// A worker returning an error aborts the group so that peers blocked in a
// collective are released. Run returns the first error observed.
func Run(ctx context.Context, n int, fn func(ctx context.Context, comm Comm) error) error {
	group, err := NewLocalGroup(n)
	if err != nil {
		return err
	}
	return group.Run(ctx, fn)
}

// Run launches one goroutine per worker of g and waits for all of them.
func (g *LocalGroup) Run(ctx context.Context, fn func(ctx context.Context, comm Comm) error) error {
	eg, ctx := errgroup.WithContext(ctx)
	for rank := range g.size {
		comm := g.Comm(rank)
		eg.Go(func() error {
			if err := fn(ctx, comm); err != nil {
				comm.Abort(err)
				return fmt.Errorf("rank %d: %w", rank, err)
			}
			return nil
		})
	}
	return eg.Wait()
}
