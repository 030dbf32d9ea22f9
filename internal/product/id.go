package product

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ID is a product identifier kept exactly as the source supplied it, stored as
// compact JSON text. 123 and "123" are different ids.
type ID string

// ParseID builds an ID from user input (CLI flag, URL path). Numeric input
// becomes a JSON number, anything else a JSON string.
func ParseID(raw string) ID {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if json.Valid([]byte(raw)) {
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err == nil {
			switch v.(type) {
			case float64, string:
				return ID(compactJSON([]byte(raw)))
			}
		}
	}
	b, _ := json.Marshal(raw)
	return ID(b)
}

// IsZero reports whether the id is missing or falsy (null, 0, "", false).
func (id ID) IsZero() bool {
	switch s := string(id); s {
	case "", "null", `""`, "false", "[]", "{}":
		return true
	default:
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f == 0
		}
		return false
	}
}

// String returns the id without JSON quoting, for logs and redis members.
func (id ID) String() string {
	s := string(id)
	if strings.HasPrefix(s, `"`) {
		var unq string
		if err := json.Unmarshal([]byte(s), &unq); err == nil {
			return unq
		}
	}
	return s
}

func (id ID) MarshalJSON() ([]byte, error) {
	if id == "" {
		return []byte("null"), nil
	}
	if !json.Valid([]byte(id)) {
		return nil, fmt.Errorf("invalid product id %q", string(id))
	}
	return []byte(id), nil
}

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*id = ""
		return nil
	}
	*id = ID(compactJSON(b))
	return nil
}

func compactJSON(b []byte) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, b); err != nil {
		return string(b)
	}
	return buf.String()
}
