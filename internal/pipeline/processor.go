package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"product-image-miner/internal/fetcher"
	"product-image-miner/internal/product"
)

// ErrMissingField marks a record without an id or thumbnail_url.
var ErrMissingField = errors.New("required field missing")

type SkipReason string

const (
	SkipMissingID        SkipReason = "missing_id"
	SkipMissingThumbnail SkipReason = "missing_thumbnail"
	SkipFetchFailed      SkipReason = "fetch_failed"
	SkipEncodeFailed     SkipReason = "encode_failed"
	SkipPanic            SkipReason = "panic"
)

// Outcome is the result of processing one record: either Result is set, or
// Reason and Err explain why the record was skipped.
type Outcome struct {
	ID     product.ID
	Result *product.FetchResult
	Reason SkipReason
	Err    error
}

func (o Outcome) OK() bool { return o.Result != nil && o.Reason == "" }

// ImageFetcher downloads the bytes behind a URL.
type ImageFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

var _ ImageFetcher = (*fetcher.Fetcher)(nil)

type Processor struct {
	fetcher   ImageFetcher
	mediaType string
	logger    *zap.SugaredLogger
}

func NewProcessor(f ImageFetcher, mediaType string, logger *zap.SugaredLogger) *Processor {
	if mediaType == "" {
		mediaType = product.DefaultMediaType
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Processor{fetcher: f, mediaType: mediaType, logger: logger}
}

// Process turns one record into a FetchResult. It never panics and never
// returns a partial result.
func (p *Processor) Process(ctx context.Context, rec product.Record) (out Outcome) {
	out.ID = rec.ID

	defer func() {
		if r := recover(); r != nil {
			p.logger.Errorw("item_process_panic", "id", rec.ID.String(), "panic", r)
			out = Outcome{ID: rec.ID, Reason: SkipPanic, Err: fmt.Errorf("panic processing %s: %v", rec.ID, r)}
		}
	}()

	if rec.ID.IsZero() {
		return skip(out, SkipMissingID, fmt.Errorf("%w: id", ErrMissingField))
	}
	if rec.ThumbnailURL == "" {
		return skip(out, SkipMissingThumbnail, fmt.Errorf("%w: thumbnail_url for %s", ErrMissingField, rec.ID))
	}

	image, err := p.fetcher.Fetch(ctx, rec.ThumbnailURL)
	if err != nil {
		return skip(out, SkipFetchFailed, err)
	}

	res := product.NewFetchResult(rec.ID, p.mediaType, image)
	if _, err := res.MarshalLine(); err != nil {
		return skip(out, SkipEncodeFailed, fmt.Errorf("encode %s: %w", rec.ID, err))
	}
	out.Result = &res
	return out
}

func skip(o Outcome, reason SkipReason, err error) Outcome {
	o.Reason, o.Err = reason, err
	return o
}
