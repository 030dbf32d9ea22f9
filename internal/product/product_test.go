package product

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestID_PreservesSourceType(t *testing.T) {
	t.Parallel()

	var recs []Record
	require.NoError(t, json.Unmarshal([]byte(`[{"id": 12}, {"id": "12"}, {"id": 1.5e3}]`), &recs))

	require.Equal(t, ID("12"), recs[0].ID)
	require.Equal(t, ID(`"12"`), recs[1].ID)
	require.NotEqual(t, recs[0].ID, recs[1].ID)
	require.Equal(t, ID("1.5e3"), recs[2].ID)

	require.Equal(t, "12", recs[0].ID.String())
	require.Equal(t, "12", recs[1].ID.String())

	b, err := json.Marshal([]ID{recs[0].ID, recs[1].ID})
	require.NoError(t, err)
	require.JSONEq(t, `[12, "12"]`, string(b))
}

func TestID_IsZero(t *testing.T) {
	t.Parallel()

	for _, id := range []ID{"", "null", `""`, "0", "0.0", "false"} {
		require.True(t, id.IsZero(), "id %q", id)
	}
	for _, id := range []ID{"1", `"0"`, `"a"`, "-3"} {
		require.False(t, id.IsZero(), "id %q", id)
	}
}

func TestParseID(t *testing.T) {
	t.Parallel()

	require.Equal(t, ID("42"), ParseID("42"))
	require.Equal(t, ID(`"42"`), ParseID(`"42"`))
	require.Equal(t, ID(`"abc"`), ParseID("abc"))
	require.Equal(t, ID(""), ParseID("  "))
}

func TestRecord_UnmarshalIgnoresExtraKeysAndNonStringThumbnails(t *testing.T) {
	t.Parallel()

	var r Record
	require.NoError(t, json.Unmarshal([]byte(`{"id": 7, "name": "x", "thumbnail_url": " https://img/x.jpg "}`), &r))
	require.Equal(t, Record{ID: "7", ThumbnailURL: "https://img/x.jpg"}, r)

	require.NoError(t, json.Unmarshal([]byte(`{"id": 8, "thumbnail_url": 99}`), &r))
	require.Equal(t, Record{ID: "8"}, r)

	require.NoError(t, json.Unmarshal([]byte(`{"thumbnail_url": "u"}`), &r))
	require.True(t, r.ID.IsZero())
}

func TestFetchResult_RoundTripsTwoBytes(t *testing.T) {
	t.Parallel()

	payload := []byte{0xff, 0x00}
	res := NewFetchResult("1", "", payload)

	require.Equal(t, "data:image/jpeg;base64,/wA=", res.ImageBase64)

	got, err := res.DecodeImage()
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestFetchResult_MarshalPretty(t *testing.T) {
	t.Parallel()

	res := FetchResult{ID: `"a&b"`, ImageBase64: "data:image/png;base64,AA=="}
	b, err := res.MarshalPretty()
	require.NoError(t, err)
	require.Equal(t, "{\n    \"id\": \"a&b\",\n    \"image_base64\": \"data:image/png;base64,AA==\"\n}", string(b))

	line, err := res.MarshalLine()
	require.NoError(t, err)
	require.Equal(t, `{"id":"a&b","image_base64":"data:image/png;base64,AA=="}`, string(line))
}
