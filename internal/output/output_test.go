package output

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/require"

	"product-image-miner/db/migrations"
	"product-image-miner/internal/product"

	_ "modernc.org/sqlite"
)

func result(id string) product.FetchResult {
	return product.NewFetchResult(product.ID(id), product.DefaultMediaType, []byte{0xff, 0x00})
}

func appendAll(t *testing.T, w Writer, ids ...string) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, w.Append(context.Background(), result(id)))
	}
	require.NoError(t, w.Close())
}

func decodeArray(t *testing.T, path string) []product.FetchResult {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var out []product.FetchResult
	require.NoError(t, json.Unmarshal(b, &out))
	return out
}

func ids(rs []product.FetchResult) []product.ID {
	out := make([]product.ID, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.ID)
	}
	return out
}

func TestArrayFile_CreateFraming(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.json")
	c := NewArrayFile(path, false)

	w, err := c.Create(context.Background())
	require.NoError(t, err)
	appendAll(t, w, "1", "2")

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	want := "[\n" +
		"{\n    \"id\": 1,\n    \"image_base64\": \"data:image/jpeg;base64,/wA=\"\n}" +
		",\n" +
		"{\n    \"id\": 2,\n    \"image_base64\": \"data:image/jpeg;base64,/wA=\"\n}" +
		"\n]"
	require.Equal(t, want, string(b))
}

func TestArrayFile_CreateEmpty(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "out.json")
	w, err := NewArrayFile(path, false).Create(context.Background())
	require.NoError(t, err)
	require.NoError(t, w.Close())

	require.Empty(t, decodeArray(t, path))
}

func TestArrayFile_ExtendClosedFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.json")
	c := NewArrayFile(path, true)

	w, err := c.Create(context.Background())
	require.NoError(t, err)
	appendAll(t, w, "1")

	w, err = c.Extend(context.Background())
	require.NoError(t, err)
	appendAll(t, w, "2", `"x"`)

	require.Equal(t, []product.ID{"1", "2", `"x"`}, ids(decodeArray(t, path)))
}

func TestArrayFile_ExtendEmptyArray(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, os.WriteFile(path, []byte("[\n\n]"), 0o644))

	w, err := NewArrayFile(path, false).Extend(context.Background())
	require.NoError(t, err)
	appendAll(t, w, "7")

	require.Equal(t, []product.ID{"7"}, ids(decodeArray(t, path)))
}

func TestArrayFile_ExtendMissingFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.json")
	w, err := NewArrayFile(path, false).Extend(context.Background())
	require.NoError(t, err)
	appendAll(t, w, "3")

	require.Equal(t, []product.ID{"3"}, ids(decodeArray(t, path)))
}

func TestArrayFile_ExtendWithoutClosingFrame(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.json")
	c := NewArrayFile(path, false)
	w, err := c.Create(context.Background())
	require.NoError(t, err)
	require.NoError(t, w.Append(context.Background(), result("1")))
	// Simulate a crash: the file is left without "\n]".
	aw := w.(*arrayWriter)
	require.NoError(t, aw.f.Close())
	aw.f = nil

	w, err = c.Extend(context.Background())
	require.NoError(t, err)
	appendAll(t, w, "2")

	require.Equal(t, []product.ID{"1", "2"}, ids(decodeArray(t, path)))
}

func TestArrayFile_ExtendWithoutAppendLeavesFileUntouched(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.json")
	const original = "[\n{\"id\": 1, \"image_base64\": \"x\"}\n]  \n"
	require.NoError(t, os.WriteFile(path, []byte(original), 0o644))

	w, err := NewArrayFile(path, false).Extend(context.Background())
	require.NoError(t, err)
	require.NoError(t, w.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, original, string(b))
}

func TestArrayFile_ExtendCorruptTail(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"id": 1, "image_`), 0o644))

	w, err := NewArrayFile(path, false).Extend(context.Background())
	require.NoError(t, err)
	err = w.Append(context.Background(), result("2"))
	require.ErrorIs(t, err, ErrPersistence)
	require.ErrorContains(t, err, ErrCorruptTail.Error())
}

func TestArrayFile_AppendAfterClose(t *testing.T) {
	t.Parallel()

	w, err := NewArrayFile(filepath.Join(t.TempDir(), "out.json"), false).Create(context.Background())
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.ErrorIs(t, w.Append(context.Background(), result("1")), ErrPersistence)
	require.NoError(t, w.Close())
}

func TestArrayFile_LargeEntrySpansChunks(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.json")
	c := NewArrayFile(path, false)
	w, err := c.Create(context.Background())
	require.NoError(t, err)
	big := product.NewFetchResult("1", product.DefaultMediaType, make([]byte, 3*tailChunk))
	require.NoError(t, w.Append(context.Background(), big))
	require.NoError(t, w.Close())

	// Trailing whitespace bigger than one chunk.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(strings.Repeat(" ", tailChunk+10) + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	w, err = c.Extend(context.Background())
	require.NoError(t, err)
	appendAll(t, w, "2")

	got := decodeArray(t, path)
	require.Equal(t, []product.ID{"1", "2"}, ids(got))
	img, err := got[0].DecodeImage()
	require.NoError(t, err)
	require.Len(t, img, 3*tailChunk)
}

func readLines(t *testing.T, path string) []product.ID {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var out []product.ID
	dec := json.NewDecoder(bytes.NewReader(b))
	for dec.More() {
		var r product.FetchResult
		require.NoError(t, dec.Decode(&r))
		out = append(out, r.ID)
	}
	return out
}

func TestNDJSONFile_CreateAndExtend(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.ndjson")
	c := NewNDJSONFile(path, false)

	w, err := c.Create(context.Background())
	require.NoError(t, err)
	appendAll(t, w, "1", "2")

	w, err = c.Extend(context.Background())
	require.NoError(t, err)
	appendAll(t, w, "3")

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t,
		`{"id":1,"image_base64":"data:image/jpeg;base64,/wA="}`+"\n"+
			`{"id":2,"image_base64":"data:image/jpeg;base64,/wA="}`+"\n"+
			`{"id":3,"image_base64":"data:image/jpeg;base64,/wA="}`+"\n",
		string(b))
}

func TestNDJSONFile_ExtendRepairsTornLine(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.ndjson")
	require.NoError(t, os.WriteFile(path, []byte(`{"id":1,"image_base64":"a"}`+"\n"+`{"id":2,"ima`), 0o644))

	w, err := NewNDJSONFile(path, false).Extend(context.Background())
	require.NoError(t, err)
	appendAll(t, w, "3")

	require.Equal(t, []product.ID{"1", "3"}, readLines(t, path))
}

func newTestSQLTable(t *testing.T) *SQLTable {
	t.Helper()

	conn, err := sqlx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	conn.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, migrations.Up(context.Background(), conn.DB, goose.DialectSQLite3))
	return NewSQLTable(conn, "sqlite")
}

func TestSQLTable_CreateExtendAndRead(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tbl := newTestSQLTable(t)

	w, err := tbl.Create(ctx)
	require.NoError(t, err)
	appendAll(t, w, "1", `"b"`)

	w, err = tbl.Extend(ctx)
	require.NoError(t, err)
	appendAll(t, w, "3", "1")

	all, err := tbl.List(ctx)
	require.NoError(t, err)
	require.Equal(t, []product.ID{"1", `"b"`, "3"}, ids(all))

	got, err := tbl.Get(ctx, `"b"`)
	require.NoError(t, err)
	img, err := got.DecodeImage()
	require.NoError(t, err)
	require.Equal(t, []byte{0xff, 0x00}, img)

	_, err = tbl.Get(ctx, "404")
	require.ErrorIs(t, err, ErrNotFound)

	w, err = tbl.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	all, err = tbl.List(ctx)
	require.NoError(t, err)
	require.Empty(t, all)
}
