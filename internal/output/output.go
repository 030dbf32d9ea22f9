package output

import (
	"context"
	"errors"

	"product-image-miner/internal/product"
)

// ErrPersistence wraps every failure to write the output destination. It is
// fatal for the running pass.
var ErrPersistence = errors.New("output persistence failed")

// Writer appends results for the duration of one pass. Close finalizes the
// collection framing; it must be called even when nothing was appended.
type Writer interface {
	Append(ctx context.Context, r product.FetchResult) error
	Close() error
}

// Collection is an ordered append-only set of fetch results.
type Collection interface {
	// Create starts a fresh collection, discarding whatever was stored before.
	Create(ctx context.Context) (Writer, error)
	// Extend appends after the existing entries without rewriting them.
	Extend(ctx context.Context) (Writer, error)
	// Describe names the destination for logs.
	Describe() string
}
