package concurrent

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/zeusync/intellitrack/pkg/sequence"
)

// ForEach runs action for every element with at most limit goroutines
// (limit <= 0 means unbounded). The context passed to action is cancelled
// as soon as one action fails; elements not yet started are skipped.
func ForEach[T any](parent context.Context, i *sequence.Iterator[T], limit int, action func(context.Context, T) error) error {
	g, ctx := errgroup.WithContext(parent)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for value := range i.Seq() {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			return action(ctx, value)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return parent.Err()
}
