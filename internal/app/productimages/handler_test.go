package productimages

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"product-image-miner/db/migrations"
	"product-image-miner/internal/output"
	"product-image-miner/internal/product"

	_ "modernc.org/sqlite"
)

func newTestTable(t *testing.T) *output.SQLTable {
	t.Helper()

	db, err := sqlx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, migrations.Up(context.Background(), db.DB, goose.DialectSQLite3))

	tbl := output.NewSQLTable(db, "sqlite")
	w, err := tbl.Create(context.Background())
	require.NoError(t, err)
	require.NoError(t, w.Append(context.Background(), product.NewFetchResult("42", "image/png", []byte{0x89, 0x50})))
	require.NoError(t, w.Append(context.Background(), product.NewFetchResult(`"sku-1"`, "", []byte{0xff})))
	require.NoError(t, w.Close())
	return tbl
}

func serve(h *GetByIDHandler, path string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	h.RegisterRoute(r)
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestGetByIDHandler_Success(t *testing.T) {
	t.Parallel()

	h := &GetByIDHandler{store: newTestTable(t), logger: zap.NewNop().Sugar()}

	rr := serve(h, "/v1/product-images/42")
	require.Equal(t, http.StatusOK, rr.Code)

	var got struct {
		ID          json.RawMessage `json:"id"`
		ImageBase64 string          `json:"image_base64"`
		Bytes       int             `json:"bytes"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Equal(t, "42", string(got.ID))
	require.Equal(t, "data:image/png;base64,iVA=", got.ImageBase64)
	require.Equal(t, 2, got.Bytes)

	rr = serve(h, "/v1/product-images/sku-1")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"id":"sku-1"`)
}

func TestGetByIDHandler_Image(t *testing.T) {
	t.Parallel()

	h := &GetByIDHandler{store: newTestTable(t), logger: zap.NewNop().Sugar()}

	rr := serve(h, "/v1/product-images/42/image")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "image/png", rr.Header().Get("Content-Type"))
	require.Equal(t, []byte{0x89, 0x50}, rr.Body.Bytes())
}

func TestGetByIDHandler_NotFound(t *testing.T) {
	t.Parallel()

	h := &GetByIDHandler{store: newTestTable(t), logger: zap.NewNop().Sugar()}

	rr := serve(h, "/v1/product-images/7")
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Contains(t, rr.Body.String(), `"error":"not found"`)
}

func TestGetByIDHandler_FileBackend(t *testing.T) {
	t.Parallel()

	h := &GetByIDHandler{logger: zap.NewNop().Sugar()}

	rr := serve(h, "/v1/product-images/42")
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
