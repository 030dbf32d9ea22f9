package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"product-image-miner/internal/ledger"
	"product-image-miner/internal/output"
	"product-image-miner/internal/product"
	"product-image-miner/internal/source"
)

type Pass string

const (
	PassBatch Pass = "batch"
	PassRetry Pass = "retry"
)

const defaultProgressEvery = 10

// Observer receives per-item and per-pass counts.
type Observer interface {
	ObserveItem(pass, outcome string)
	ObservePass(pass string, err error, took time.Duration, ledgerSize int)
}

type noopObserver struct{}

func (noopObserver) ObserveItem(string, string)                    {}
func (noopObserver) ObservePass(string, error, time.Duration, int) {}

type Summary struct {
	RunID       string             `json:"run_id"`
	Pass        Pass               `json:"pass"`
	Output      string             `json:"output"`
	Ledger      string             `json:"ledger"`
	Processed   int                `json:"processed"`
	Succeeded   int                `json:"succeeded"`
	Failed      int                `json:"failed"`
	Unresolved  int                `json:"unresolved"`
	Duplicates  int                `json:"duplicates"`
	Skipped     map[SkipReason]int `json:"skipped"`
	Interrupted bool               `json:"interrupted"`
	Duration    time.Duration      `json:"duration_ns"`
}

type Options struct {
	Processor *Processor
	Output    output.Collection
	Ledger    ledger.Store
	Logger    *zap.SugaredLogger
	Observer  Observer
	// ProgressEvery logs a progress line every N items; 0 means 10.
	ProgressEvery int
}

// Service runs batch and retry passes. It is not safe for concurrent passes
// over the same output; callers serialize them.
type Service struct {
	processor     *Processor
	output        output.Collection
	ledger        ledger.Store
	logger        *zap.SugaredLogger
	observer      Observer
	progressEvery int
}

func NewService(opts Options) *Service {
	s := &Service{
		processor:     opts.Processor,
		output:        opts.Output,
		ledger:        opts.Ledger,
		logger:        opts.Logger,
		observer:      opts.Observer,
		progressEvery: opts.ProgressEvery,
	}
	if s.logger == nil {
		s.logger = zap.NewNop().Sugar()
	}
	if s.observer == nil {
		s.observer = noopObserver{}
	}
	if s.progressEvery <= 0 {
		s.progressEvery = defaultProgressEvery
	}
	return s
}

// failures is an ordered id set that supports removal.
type failures struct {
	order []product.ID
	in    map[product.ID]bool
}

func newFailures() *failures {
	return &failures{in: map[product.ID]bool{}}
}

func (f *failures) add(id product.ID) {
	if id.IsZero() {
		return
	}
	if _, seen := f.in[id]; !seen {
		f.order = append(f.order, id)
	}
	f.in[id] = true
}

func (f *failures) remove(id product.ID) {
	if _, seen := f.in[id]; seen {
		f.in[id] = false
	}
}

func (f *failures) list() []product.ID {
	out := make([]product.ID, 0, len(f.order))
	for _, id := range f.order {
		if f.in[id] {
			out = append(out, id)
		}
	}
	return out
}

type run struct {
	svc     *Service
	summary Summary
	failed  *failures
	started time.Time
}

func (s *Service) newRun(pass Pass) *run {
	return &run{
		svc: s,
		summary: Summary{
			RunID:   uuid.NewString(),
			Pass:    pass,
			Output:  s.output.Describe(),
			Ledger:  s.ledger.Describe(),
			Skipped: map[SkipReason]int{},
		},
		failed:  newFailures(),
		started: time.Now(),
	}
}

func (r *run) record(o Outcome) {
	r.summary.Processed++
	if o.OK() {
		r.summary.Succeeded++
		r.failed.remove(o.ID)
		r.svc.observer.ObserveItem(string(r.summary.Pass), "success")
	} else {
		r.summary.Skipped[o.Reason]++
		r.failed.add(o.ID)
		r.svc.logger.Warnw("item_skipped",
			"run_id", r.summary.RunID,
			"id", o.ID.String(),
			"reason", o.Reason,
			"err", o.Err,
		)
		r.svc.observer.ObserveItem(string(r.summary.Pass), string(o.Reason))
	}

	if r.summary.Processed%r.svc.progressEvery == 0 {
		r.svc.logger.Infow("pipeline_progress",
			"run_id", r.summary.RunID,
			"pass", r.summary.Pass,
			"processed", r.summary.Processed,
			"succeeded", r.summary.Succeeded,
		)
	}
}

// finish replaces the ledger with this pass's failures plus any extra ids
// that were never attempted. A cancelled pass still writes its ledger; any
// other error leaves the previous ledger in place.
func (r *run) finish(ctx context.Context, runErr error, extra ...product.ID) (Summary, error) {
	for _, id := range extra {
		r.failed.add(id)
	}
	ids := r.failed.list()
	r.summary.Failed = len(ids)
	r.summary.Duration = time.Since(r.started)

	err := runErr
	if err == nil || isCancel(err) {
		if lerr := r.svc.ledger.Replace(context.WithoutCancel(ctx), ids); lerr != nil {
			err = errors.Join(err, fmt.Errorf("replace ledger: %w", lerr))
		}
	}
	r.summary.Interrupted = isCancel(runErr)

	r.svc.observer.ObservePass(string(r.summary.Pass), err, r.summary.Duration, len(ids))
	fields := []any{
		"run_id", r.summary.RunID,
		"pass", r.summary.Pass,
		"processed", r.summary.Processed,
		"succeeded", r.summary.Succeeded,
		"failed", r.summary.Failed,
		"unresolved", r.summary.Unresolved,
		"duplicates", r.summary.Duplicates,
		"skipped", r.summary.Skipped,
		"took", r.summary.Duration,
	}
	if err != nil {
		r.svc.logger.Errorw("pipeline_pass_failed", append(fields, "err", err)...)
		return r.summary, err
	}
	r.svc.logger.Infow("pipeline_pass_finished", fields...)
	return r.summary, nil
}

func isCancel(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// RunBatch starts a fresh output collection and processes every record of
// src in order. Successes are appended as soon as they are fetched; the
// ledger is replaced once iteration ends.
func (s *Service) RunBatch(ctx context.Context, src source.Source) (Summary, error) {
	r := s.newRun(PassBatch)
	s.logger.Infow("pipeline_pass_started", "run_id", r.summary.RunID, "pass", PassBatch, "output", r.summary.Output)

	w, err := s.output.Create(ctx)
	if err != nil {
		return r.finish(ctx, fmt.Errorf("create output: %w", err))
	}

	written := map[product.ID]bool{}
	iterErr := src.Each(ctx, func(rec product.Record) error {
		if !rec.ID.IsZero() && written[rec.ID] {
			r.summary.Duplicates++
			return nil
		}

		o := s.processor.Process(ctx, rec)
		if err := ctx.Err(); err != nil && !o.OK() {
			return err
		}
		if o.OK() {
			if err := w.Append(ctx, *o.Result); err != nil {
				return err
			}
			written[o.ID] = true
		}
		r.record(o)
		return nil
	})

	if cerr := w.Close(); cerr != nil && (iterErr == nil || isCancel(iterErr)) {
		iterErr = errors.Join(iterErr, cerr)
	}
	return r.finish(ctx, iterErr)
}

// Retry reprocesses the ids in the ledger. Records are resolved from src
// (first occurrence wins); ids that cannot be resolved stay failed without
// an attempt. Successes are appended after the existing output entries.
func (s *Service) Retry(ctx context.Context, src source.Source) (Summary, error) {
	r := s.newRun(PassRetry)

	ids, err := s.ledger.Load(ctx)
	if err != nil {
		return r.finish(ctx, fmt.Errorf("load ledger: %w", err))
	}
	ids = ledger.Dedupe(ids)
	s.logger.Infow("pipeline_pass_started",
		"run_id", r.summary.RunID,
		"pass", PassRetry,
		"output", r.summary.Output,
		"ledger_ids", len(ids),
	)
	if len(ids) == 0 {
		return r.finish(ctx, nil)
	}

	index, err := source.Index(ctx, src, ids)
	if err != nil {
		if isCancel(err) {
			return r.finish(ctx, err, ids...)
		}
		return r.finish(ctx, fmt.Errorf("resolve ledger ids: %w", err))
	}

	w, err := s.output.Extend(ctx)
	if err != nil {
		return r.finish(ctx, fmt.Errorf("extend output: %w", err))
	}

	var runErr error
	next := 0
	for ; next < len(ids); next++ {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		id := ids[next]
		rec, ok := index[id]
		if !ok {
			r.summary.Unresolved++
			r.failed.add(id)
			s.logger.Warnw("ledger_id_unresolved", "run_id", r.summary.RunID, "id", id.String())
			continue
		}

		o := s.processor.Process(ctx, rec)
		if err := ctx.Err(); err != nil && !o.OK() {
			runErr = err
			break
		}
		if o.OK() {
			if err := w.Append(ctx, *o.Result); err != nil {
				runErr = err
				break
			}
		}
		r.record(o)
	}

	if cerr := w.Close(); cerr != nil && (runErr == nil || isCancel(runErr)) {
		runErr = errors.Join(runErr, cerr)
	}
	// Ids not reached before cancellation keep their place in the ledger.
	return r.finish(ctx, runErr, ids[next:]...)
}
