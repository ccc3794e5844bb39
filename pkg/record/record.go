// Package record holds the item and page types produced by the Shopify fetchers
// and the pure transforms applied to them before they leave a fetcher.
package record

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Item is one entity instance (one order, one product, ...) as decoded from the API.
// Numbers are json.Number so that 64-bit ids survive decoding.
type Item = map[string]any

// Page is the batch of items returned by a single paginated request.
type Page = []Item

// Lookup walks a dot-separated path ("discount.updatedAt") into nested maps.
// A nil value counts as missing.
func Lookup(item Item, path string) (any, bool) {
	var current any = item
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	if current == nil {
		return nil, false
	}
	return current, true
}

// Key builds the deterministic identity of an item from its primary key fields.
// Composite keys are joined with "|".
func Key(item Item, fields []string) (string, error) {
	if len(fields) == 0 {
		return "", fmt.Errorf("no primary key fields")
	}

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		v, ok := Lookup(item, field)
		if !ok {
			return "", fmt.Errorf("primary key field %q missing", field)
		}
		parts = append(parts, scalarString(v))
	}
	return strings.Join(parts, "|"), nil
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(t)
	}
}
