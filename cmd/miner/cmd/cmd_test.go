package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"product-image-miner/config"
	"product-image-miner/internal/pipeline"
)

func TestExitCode(t *testing.T) {
	t.Parallel()

	var stderr bytes.Buffer
	require.Equal(t, 0, exitCode(nil, &stderr))
	require.Equal(t, 2, exitCode(errUsage, &stderr))
	require.Empty(t, stderr.String())
	require.Equal(t, 2, exitCode(errors.New(`unknown command "bogus" for "miner"`), &stderr))
	require.Equal(t, 1, exitCode(errors.New("write output: disk full"), &stderr))
	require.Contains(t, stderr.String(), "ERROR: write output: disk full")
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	if args == nil {
		// cobra falls back to os.Args on nil.
		args = []string{}
	}
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRoot_UsageErrors(t *testing.T) {
	t.Parallel()

	_, err := execute(t)
	require.ErrorIs(t, err, errUsage)

	_, err = execute(t, "map", "extra")
	require.ErrorIs(t, err, errUsage)

	_, err = execute(t, "map", "--no-such-flag")
	require.ErrorIs(t, err, errUsage)

	_, err = execute(t, "map", "--format", "xml")
	require.ErrorIs(t, err, errUsage)
}

func TestPipelineFlags_Apply(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Pipeline.InputDir = "data"
	cfg.Pipeline.OutputFormat = config.OutputFormatArray

	got := pipelineFlags{output: "out.ndjson", format: "NDJSON"}.apply(cfg)
	require.Equal(t, "data", got.Pipeline.InputDir)
	require.Equal(t, "out.ndjson", got.Pipeline.OutputFile)
	require.Equal(t, config.OutputFormatNDJSON, got.Pipeline.OutputFormat)
	require.Equal(t, config.OutputFormatArray, cfg.Pipeline.OutputFormat)
}

func TestMapThenRetry(t *testing.T) {
	imgs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ok.jpg" {
			_, _ = w.Write([]byte{0xff, 0xd8})
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(imgs.Close)

	dir := t.TempDir()
	input := filepath.Join(dir, "data")
	require.NoError(t, os.MkdirAll(input, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(input, "product_book.json"), []byte(`[
		{"id": 1, "thumbnail_url": "`+imgs.URL+`/ok.jpg"},
		{"id": 2, "thumbnail_url": "`+imgs.URL+`/missing.jpg"}
	]`), 0o644))

	t.Setenv("APP_ENV", "test")
	t.Setenv("FETCH_MAX_ATTEMPTS", "1")
	t.Setenv("FETCH_RETRY_DELAY", "0s")
	t.Setenv("FETCH_TIMEOUT", "5s")
	t.Setenv("PIPELINE_LEDGER_FILE", filepath.Join(dir, "fail_map.json"))

	outFile := filepath.Join(dir, "map.json")
	out, err := execute(t, "map", "--input-dir", input, "--output", outFile)
	require.NoError(t, err)

	var sum pipeline.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &sum))
	require.Equal(t, pipeline.PassBatch, sum.Pass)
	require.Equal(t, 1, sum.Succeeded)
	require.Equal(t, 1, sum.Failed)

	b, err := os.ReadFile(filepath.Join(dir, "fail_map.json"))
	require.NoError(t, err)
	require.JSONEq(t, `{"failed_ids":[2]}`, string(b))

	out, err = execute(t, "retry", "--quiet", "--input-dir", input, "--output", outFile)
	require.NoError(t, err)
	require.Empty(t, out)

	var entries []map[string]any
	b, err = os.ReadFile(outFile)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(b, &entries))
	require.Len(t, entries, 1)
	require.EqualValues(t, 1, entries[0]["id"])
}
