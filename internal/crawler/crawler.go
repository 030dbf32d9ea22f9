// Package crawler harvests product records from a Tiki-style catalog API
// into the data directory the image pipeline reads from.
package crawler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"product-image-miner/config"
)

type Options struct {
	BaseURL   string
	UserAgent string
	PageLimit int
	Delay     time.Duration
	Timeout   time.Duration
	Logger    *zap.SugaredLogger
}

func OptionsFromConfig(cfg *config.Config, logger *zap.SugaredLogger) Options {
	return Options{
		BaseURL:   cfg.Catalog.BaseURL,
		UserAgent: cfg.Catalog.UserAgent,
		PageLimit: cfg.Catalog.PageLimit,
		Delay:     cfg.Catalog.RequestDelay,
		Timeout:   cfg.Catalog.Timeout,
		Logger:    logger,
	}
}

type Client struct {
	http      *resty.Client
	pageLimit int
	delay     time.Duration
	logger    *zap.SugaredLogger
}

func NewClient(opts Options) *Client {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.PageLimit <= 0 {
		opts.PageLimit = 10000
	}

	client := resty.New()
	client.SetBaseURL(strings.TrimRight(opts.BaseURL, "/"))
	client.SetLogger(opts.Logger)
	if opts.Timeout > 0 {
		client.SetTimeout(opts.Timeout)
	}
	if ua := strings.TrimSpace(opts.UserAgent); ua != "" {
		client.SetHeader("user-agent", ua)
	}

	return &Client{
		http:      client,
		pageLimit: opts.PageLimit,
		delay:     opts.Delay,
		logger:    opts.Logger,
	}
}

type listPage struct {
	Data []struct {
		ID json.RawMessage `json:"id"`
	} `json:"data"`
}

// ProductIDs pages through the category listing until the API answers with a
// non-200 status or an empty page.
func (c *Client) ProductIDs(ctx context.Context, categoryID int) ([]string, error) {
	var ids []string
	for page := 1; ; page++ {
		c.logger.Infow("catalog_page_requested", "category", categoryID, "page", page)

		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"limit":        strconv.Itoa(c.pageLimit),
				"include":      "advertisement",
				"aggregations": "1",
				"category":     strconv.Itoa(categoryID),
				"page":         strconv.Itoa(page),
			}).
			Get("/products")
		if err != nil {
			return ids, fmt.Errorf("list category %d page %d: %w", categoryID, page, err)
		}
		if resp.StatusCode() != http.StatusOK {
			c.logger.Infow("catalog_listing_ended", "category", categoryID, "page", page, "status", resp.StatusCode())
			return ids, nil
		}

		var body listPage
		if err := json.Unmarshal(resp.Body(), &body); err != nil {
			return ids, fmt.Errorf("decode category %d page %d: %w", categoryID, page, err)
		}
		if len(body.Data) == 0 {
			return ids, nil
		}
		for _, p := range body.Data {
			if id := idText(p.ID); id != "" {
				ids = append(ids, id)
			}
		}

		if err := c.wait(ctx); err != nil {
			return ids, err
		}
	}
}

// ProductDetail returns the raw detail document, or ok=false when the API
// does not answer 200.
func (c *Client) ProductDetail(ctx context.Context, id string) (raw string, ok bool, err error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", id).
		Get("/products/{id}")
	if err != nil {
		return "", false, fmt.Errorf("product %s: %w", id, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", false, nil
	}
	return resp.String(), true, nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.delay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(c.delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// idText renders a listing id the way it is used in detail URLs: numbers as
// is, strings unquoted.
func idText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
