package fx

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"product-image-miner/config"

	"go.uber.org/zap"
)

func TestNewMux_CORSPreflight_AllowsLocalhost5173_InDev(t *testing.T) {
	cfg := &config.Config{}
	cfg.ENV = config.Dev

	r := NewMux(muxParams{
		Cfg:      cfg,
		Logger:   zap.NewNop().Sugar(),
		Handlers: nil,
	})

	req := httptest.NewRequest(http.MethodOptions, "/v1/passes/enqueue", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("allow-origin=%q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Methods"); got == "" {
		t.Fatalf("missing allow-methods")
	}
}

func TestNewMux_CORSPreflight_AllowsConfiguredOrigin_InProduction(t *testing.T) {
	cfg := &config.Config{}
	cfg.ENV = config.Production
	cfg.CORSOrigins = []string{"https://console.example.com"}

	r := NewMux(muxParams{
		Cfg:    cfg,
		Logger: zap.NewNop().Sugar(),
	})

	req := httptest.NewRequest(http.MethodOptions, "/v1/ledger", nil)
	req.Header.Set("Origin", "https://console.example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://console.example.com" {
		t.Fatalf("allow-origin=%q", got)
	}
}
