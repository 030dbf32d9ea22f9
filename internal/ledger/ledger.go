// Package ledger persists the ids whose image could not be fetched, so a
// later retry pass knows what to revisit.
package ledger

import (
	"context"
	"errors"

	"product-image-miner/internal/product"
)

// ErrPersistence wraps every failure to read or write the ledger.
var ErrPersistence = errors.New("failure ledger persistence failed")

// Store holds the current failure ledger. Replace overwrites the whole
// ledger; it never merges with what was stored before.
type Store interface {
	Load(ctx context.Context) ([]product.ID, error)
	Replace(ctx context.Context, ids []product.ID) error
	Describe() string
}

// Dedupe drops empty ids and repeats, keeping first-seen order.
func Dedupe(ids []product.ID) []product.ID {
	seen := make(map[product.ID]struct{}, len(ids))
	out := make([]product.ID, 0, len(ids))
	for _, id := range ids {
		if id.IsZero() {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
