package inngest

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/inngest/inngestgo"

	"product-image-miner/config"
	"product-image-miner/internal/pkg/render"
)

const DefaultServePath = "/api/inngest"

const disabledReason = "inngest disabled: set INNGEST_APP_ID to enable"

// ServePath is where the Inngest executor calls this app.
func ServePath(cfg *config.Config) string {
	if cfg != nil {
		if p := strings.TrimSpace(cfg.Inngest.ServePath); p != "" {
			return p
		}
	}
	return DefaultServePath
}

// Enabled reports whether an app id is configured.
func Enabled(cfg *config.Config) bool {
	return cfg != nil && strings.TrimSpace(cfg.Inngest.AppID) != ""
}

// NewInngestClient returns a client that rejects every call when Inngest is
// not configured, so handlers and functions can be wired unconditionally.
func NewInngestClient(cfg *config.Config) (inngestgo.Client, error) {
	if !Enabled(cfg) {
		return disabledClient{}, nil
	}

	dev, _ := strconv.ParseBool(strings.TrimSpace(cfg.Inngest.Dev))
	opts := inngestgo.ClientOpts{
		AppID: strings.TrimSpace(cfg.Inngest.AppID),
		Dev:   inngestgo.BoolPtr(dev),
	}
	if signingKey := strings.TrimSpace(cfg.Inngest.SigningKey); signingKey != "" {
		opts.SigningKey = &signingKey
	}
	c, err := inngestgo.NewClient(opts)
	if err != nil {
		return nil, err
	}

	if serveHost := strings.TrimSpace(cfg.Inngest.ServeHost); serveHost != "" {
		scheme := "https"
		if dev {
			scheme = "http"
		}
		c.SetURL(&url.URL{
			Scheme: scheme,
			Host:   serveHost,
			Path:   ServePath(cfg),
		})
	}

	return c, nil
}

var errInngestDisabled = errors.New("inngest disabled")

type disabledClient struct{}

func (disabledClient) AppID() string { return "" }

func (disabledClient) Send(ctx context.Context, evt any) (string, error) {
	return "", errInngestDisabled
}

func (disabledClient) SendMany(ctx context.Context, evt []any) ([]string, error) {
	return nil, errInngestDisabled
}

func (disabledClient) Options() inngestgo.ClientOpts { return inngestgo.ClientOpts{} }

func (c disabledClient) Serve() http.Handler { return c.ServeWithOpts(inngestgo.ServeOpts{}) }

func (disabledClient) ServeWithOpts(opts inngestgo.ServeOpts) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		render.ChiErr(w, http.StatusNotImplemented, disabledReason)
	})
}

func (disabledClient) SetOptions(opts inngestgo.ClientOpts) error { return errInngestDisabled }
func (disabledClient) SetURL(u *url.URL)                          {}
