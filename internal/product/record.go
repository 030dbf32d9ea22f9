package product

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// DefaultMediaType is the media type written into every data URI unless the
// pipeline is configured otherwise.
const DefaultMediaType = "image/jpeg"

// Record is one catalog item as read from the input files. Keys other than id
// and thumbnail_url are ignored.
type Record struct {
	ID           ID
	ThumbnailURL string
}

func (r *Record) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID           ID              `json:"id"`
		ThumbnailURL json.RawMessage `json:"thumbnail_url"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	r.ID = raw.ID
	r.ThumbnailURL = ""
	// Non-string thumbnails are treated as missing.
	var thumb string
	if len(raw.ThumbnailURL) > 0 && json.Unmarshal(raw.ThumbnailURL, &thumb) == nil {
		r.ThumbnailURL = strings.TrimSpace(thumb)
	}
	return nil
}

// FetchResult is the unit written to the output collection.
type FetchResult struct {
	ID          ID     `json:"id"`
	ImageBase64 string `json:"image_base64"`
}

// NewFetchResult encodes raw image bytes as a data URI.
func NewFetchResult(id ID, mediaType string, image []byte) FetchResult {
	return FetchResult{
		ID:          id,
		ImageBase64: DataURIPrefix(mediaType) + base64.StdEncoding.EncodeToString(image),
	}
}

func DataURIPrefix(mediaType string) string {
	if strings.TrimSpace(mediaType) == "" {
		mediaType = DefaultMediaType
	}
	return "data:" + mediaType + ";base64,"
}

// DecodeImage strips the data URI prefix and returns the original bytes.
func (r FetchResult) DecodeImage() ([]byte, error) {
	_, payload, ok := strings.Cut(r.ImageBase64, ";base64,")
	if !ok || !strings.HasPrefix(r.ImageBase64, "data:") {
		return nil, fmt.Errorf("image_base64 for %s is not a base64 data URI", r.ID)
	}
	return base64.StdEncoding.DecodeString(payload)
}

// MarshalPretty renders the result the way the array output file stores it:
// four-space indent, no HTML escaping, no trailing newline.
func (r FetchResult) MarshalPretty() ([]byte, error) {
	return marshal(r, "    ")
}

// MarshalLine renders the result as a single compact line.
func (r FetchResult) MarshalLine() ([]byte, error) {
	return marshal(r, "")
}

func marshal(v any, indent string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if indent != "" {
		enc.SetIndent("", indent)
	}
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
