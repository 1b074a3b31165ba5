package paged

import (
	"context"
	"fmt"
	"time"
)

// Options controls one paged fetch operation.
type Options struct {
	// PageSize is the limit passed to every fetch. Must be positive.
	PageSize int
	// MaxFetch caps the total number of rows pulled across all pages.
	// Zero means unbounded.
	MaxFetch int
	// Delay, when positive, is slept between consecutive page fetches. It is
	// a self-imposed rate limit on the source, not a correctness or ordering
	// mechanism.
	Delay time.Duration
}

// FetchAll pulls the complete result set out of a paginated read-only source,
// folding every page into a running accumulator with merge.
//
// fetch pulls one page at the given offset. counts extracts the count signals
// of a page; when a page carries several logical sub-lists the maximum signal
// governs continuation. A page whose governing count is smaller than the page
// size means the source is exhausted.
//
// Pages are fetched sequentially at increasing offsets, so the merged result
// is an order-preserving concatenation of the source. Fails if no page could
// be fetched.
func FetchAll[P any](
	ctx context.Context,
	opts Options,
	fetch func(ctx context.Context, offset, limit int) (P, error),
	counts func(page P) []int,
	merge func(acc, page P) P,
) (P, error) {
	var zero P
	if opts.PageSize <= 0 {
		return zero, fmt.Errorf("paged: page size must be positive, got %d", opts.PageSize)
	}
	if err := ctx.Err(); err != nil {
		return zero, fmt.Errorf("paged: no pages fetched: %w", err)
	}

	var (
		acc     P
		fetched int
	)
	for offset, pages := 0, 0; ; {
		if pages > 0 && opts.Delay > 0 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(opts.Delay):
			}
		}

		page, err := fetch(ctx, offset, opts.PageSize)
		if err != nil {
			return zero, err
		}
		if pages == 0 {
			acc = page
		} else {
			acc = merge(acc, page)
		}
		pages++

		governing := 0
		for _, c := range counts(page) {
			if c > governing {
				governing = c
			}
		}
		fetched += governing

		if governing < opts.PageSize {
			// Source exhausted.
			return acc, nil
		}
		if opts.MaxFetch > 0 && fetched >= opts.MaxFetch {
			return acc, nil
		}
		offset += opts.PageSize
	}
}
