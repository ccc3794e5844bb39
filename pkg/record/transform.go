package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// dateFields are normalized from ISO-8601 strings to time.Time at every depth.
var dateFields = map[string]struct{}{
	"created_at": {},
	"updated_at": {},
	"createdAt":  {},
	"updatedAt":  {},
}

// timeLayouts are tried in order. Layouts without a zone parse as UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTime parses the timestamp formats the Shopify APIs emit.
func ParseTime(s string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// NormalizeDates returns a copy of v in which every date field holding a
// parseable timestamp string is replaced by a time.Time. Maps and slices are
// rebuilt at every depth; scalars come back unchanged. Strings that do not
// parse are kept as they are.
func NormalizeDates(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if s, ok := val.(string); ok {
				if _, isDate := dateFields[k]; isDate {
					if ts, ok := ParseTime(s); ok {
						out[k] = ts
						continue
					}
				}
			}
			out[k] = NormalizeDates(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = NormalizeDates(val)
		}
		return out
	default:
		return v
	}
}

// UnwrapNodes returns a copy of v in which every map whose only key is "nodes"
// and whose value is a list is replaced by that list, at any depth.
func UnwrapNodes(v any) any {
	switch t := v.(type) {
	case map[string]any:
		if len(t) == 1 {
			if nodes, ok := t["nodes"].([]any); ok {
				return UnwrapNodes(nodes)
			}
		}
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = UnwrapNodes(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = UnwrapNodes(val)
		}
		return out
	default:
		return v
	}
}

// NormalizeItem applies NormalizeDates to a single item.
func NormalizeItem(item Item) Item {
	return NormalizeDates(item).(map[string]any)
}

// Items converts a decoded JSON array into items. Elements that are not
// objects are skipped.
func Items(values []any) Page {
	page := make(Page, 0, len(values))
	for _, v := range values {
		if m, ok := v.(map[string]any); ok {
			page = append(page, m)
		}
	}
	return page
}

// Decode reads a JSON document keeping numbers as json.Number.
func Decode(r io.Reader) (any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	return v, nil
}

// DecodeBytes is Decode over an in-memory body.
func DecodeBytes(body []byte) (any, error) {
	return Decode(bytes.NewReader(body))
}
