package fetcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"product-image-miner/config"
)

const (
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 2 * time.Second
	DefaultTimeout     = 100 * time.Second
)

// ErrNetwork is returned once every attempt for a URL has failed.
var ErrNetwork = errors.New("image fetch failed")

// AttemptObserver is notified after every HTTP attempt.
type AttemptObserver interface {
	ObserveFetchAttempt(ok bool)
}

type Options struct {
	MaxAttempts int
	RetryDelay  time.Duration
	Timeout     time.Duration
	UserAgent   string
	Logger      *zap.SugaredLogger
	Observer    AttemptObserver
}

func OptionsFromConfig(cfg *config.Config, logger *zap.SugaredLogger) Options {
	return Options{
		MaxAttempts: cfg.Fetch.MaxAttempts,
		RetryDelay:  cfg.Fetch.RetryDelay,
		Timeout:     cfg.Fetch.Timeout,
		UserAgent:   cfg.Catalog.UserAgent,
		Logger:      logger,
	}
}

// Fetcher downloads binary content with a bounded number of attempts and a
// fixed wait between them.
type Fetcher struct {
	http        *resty.Client
	maxAttempts int
	logger      *zap.SugaredLogger
	observer    AttemptObserver
}

func New(opts Options) *Fetcher {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}

	f := &Fetcher{
		maxAttempts: opts.MaxAttempts,
		logger:      opts.Logger,
		observer:    opts.Observer,
	}

	client := resty.New()
	client.SetLogger(opts.Logger)
	client.SetTimeout(opts.Timeout)
	if ua := strings.TrimSpace(opts.UserAgent); ua != "" {
		client.SetHeader("user-agent", ua)
	}
	// Equal min/max wait turns resty's jittered backoff into a fixed delay.
	client.SetRetryCount(opts.MaxAttempts - 1)
	client.SetRetryWaitTime(opts.RetryDelay)
	client.SetRetryMaxWaitTime(opts.RetryDelay)
	client.AddRetryCondition(func(r *resty.Response, err error) bool {
		ok := err == nil && r != nil && r.IsSuccess()
		if f.observer != nil {
			f.observer.ObserveFetchAttempt(ok)
		}
		return !ok
	})
	client.AddRetryHook(func(r *resty.Response, err error) {
		f.logger.Warnw("image_fetch_attempt_failed",
			"url", requestURL(r),
			"status", statusCode(r),
			"err", err,
			"retry_delay", opts.RetryDelay,
		)
	})

	f.http = client
	return f
}

// Fetch returns the response body of url. It never returns partial data: on
// error the byte slice is nil.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, fmt.Errorf("%w: missing url", ErrNetwork)
	}

	resp, err := f.http.R().
		SetContext(ctx).
		Get(url)
	if f.maxAttempts == 1 && f.observer != nil {
		// Retry conditions only run when retries are enabled.
		f.observer.ObserveFetchAttempt(err == nil && resp.IsSuccess())
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		f.logger.Warnw("image_fetch_failed", "url", url, "attempts", f.maxAttempts, "err", err)
		return nil, fmt.Errorf("%w after %d attempts: %v", ErrNetwork, f.maxAttempts, err)
	}
	if !resp.IsSuccess() {
		f.logger.Warnw("image_fetch_failed", "url", url, "attempts", f.maxAttempts, "status", resp.StatusCode())
		return nil, fmt.Errorf("%w after %d attempts: unexpected status %s", ErrNetwork, f.maxAttempts, resp.Status())
	}

	return resp.Body(), nil
}

func requestURL(r *resty.Response) string {
	if r == nil || r.Request == nil {
		return ""
	}
	return r.Request.URL
}

func statusCode(r *resty.Response) int {
	if r == nil {
		return 0
	}
	return r.StatusCode()
}
