package restore

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// MapConcurrent calls fn for every item concurrently, at most limit at a time when
// limit > 0, and waits for every call to return before it does.
//
// Results are index-aligned with items. When err is non-nil it is the first error
// returned by fn; results of the calls that succeeded are still populated. A failing
// call does not cancel the others, so no request is abandoned half way.
func MapConcurrent[T, R any](ctx context.Context, items []T, limit int, fn func(context.Context, T) (R, error)) ([]R, error) {
	results := make([]R, len(items))

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i, item := range items {
		g.Go(func() error {
			r, err := fn(ctx, item)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}

	err := g.Wait()
	return results, err
}
