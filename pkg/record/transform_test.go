package record

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return ts
}

func TestNormalizeDates(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want func(t *testing.T) any
	}{
		{
			name: "top level fields",
			in: map[string]any{
				"id":         json.Number("1"),
				"created_at": "2024-01-02T03:04:05Z",
				"updated_at": "2024-01-03T10:00:00-05:00",
				"title":      "hat",
			},
			want: func(t *testing.T) any {
				return map[string]any{
					"id":         json.Number("1"),
					"created_at": mustTime(t, "2024-01-02T03:04:05Z"),
					"updated_at": mustTime(t, "2024-01-03T10:00:00-05:00"),
					"title":      "hat",
				}
			},
		},
		{
			name: "nested maps and lists",
			in: map[string]any{
				"variants": []any{
					map[string]any{"createdAt": "2024-02-01T00:00:00Z", "sku": "A"},
					map[string]any{"options": map[string]any{"updatedAt": "2024-02-02T00:00:00.5Z"}},
				},
			},
			want: func(t *testing.T) any {
				return map[string]any{
					"variants": []any{
						map[string]any{"createdAt": mustTime(t, "2024-02-01T00:00:00Z"), "sku": "A"},
						map[string]any{"options": map[string]any{"updatedAt": mustTime(t, "2024-02-02T00:00:00.5Z")}},
					},
				}
			},
		},
		{
			name: "non date field holding a timestamp is untouched",
			in:   map[string]any{"processed_at": "2024-01-02T03:04:05Z"},
			want: func(t *testing.T) any {
				return map[string]any{"processed_at": "2024-01-02T03:04:05Z"}
			},
		},
		{
			name: "unparseable date string is kept",
			in:   map[string]any{"updated_at": "yesterday"},
			want: func(t *testing.T) any {
				return map[string]any{"updated_at": "yesterday"}
			},
		},
		{
			name: "null date field is kept",
			in:   map[string]any{"updated_at": nil},
			want: func(t *testing.T) any {
				return map[string]any{"updated_at": nil}
			},
		},
		{
			name: "scalar is identity",
			in:   "2024-01-02T03:04:05Z",
			want: func(t *testing.T) any { return "2024-01-02T03:04:05Z" },
		},
		{
			name: "bare list of scalars is identity",
			in:   []any{"a", json.Number("2"), true},
			want: func(t *testing.T) any { return []any{"a", json.Number("2"), true} },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeDates(tt.in)
			if diff := cmp.Diff(tt.want(t), got); diff != "" {
				t.Errorf("NormalizeDates() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNormalizeDates_RoundTrip(t *testing.T) {
	inputs := []string{
		"2024-01-02T03:04:05Z",
		"2023-11-30T23:59:59-05:00",
		"2024-06-01T12:00:00.123456+02:00",
	}

	for _, s := range inputs {
		t.Run(s, func(t *testing.T) {
			got := NormalizeDates(map[string]any{"updated_at": s}).(map[string]any)
			ts, ok := got["updated_at"].(time.Time)
			if !ok {
				t.Fatalf("updated_at = %T, want time.Time", got["updated_at"])
			}

			back, err := time.Parse(time.RFC3339Nano, ts.Format(time.RFC3339Nano))
			if err != nil {
				t.Fatalf("re-parse: %v", err)
			}
			if !back.Equal(mustTime(t, s)) {
				t.Errorf("round trip = %v, want %v", back, s)
			}
		})
	}
}

func TestNormalizeDates_DoesNotMutateInput(t *testing.T) {
	nested := map[string]any{"updated_at": "2024-01-02T03:04:05Z"}
	in := map[string]any{"child": nested}

	_ = NormalizeDates(in)

	if _, ok := nested["updated_at"].(string); !ok {
		t.Errorf("input was mutated: %#v", nested)
	}
}

func TestUnwrapNodes(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
	}{
		{
			name: "single nodes wrapper",
			in:   map[string]any{"nodes": []any{"a", "b"}},
			want: []any{"a", "b"},
		},
		{
			name: "nested wrapper inside item",
			in: map[string]any{
				"id":    "gid://1",
				"codes": map[string]any{"nodes": []any{map[string]any{"code": "X"}}},
			},
			want: map[string]any{
				"id":    "gid://1",
				"codes": []any{map[string]any{"code": "X"}},
			},
		},
		{
			name: "wrapper inside list elements",
			in: []any{
				map[string]any{"tags": map[string]any{"nodes": []any{"t1"}}},
				map[string]any{"nodes": []any{map[string]any{"nodes": []any{"deep"}}}},
			},
			want: []any{
				map[string]any{"tags": []any{"t1"}},
				[]any{[]any{"deep"}},
			},
		},
		{
			name: "other key name is a no-op",
			in:   map[string]any{"not_nodes": []any{"a"}},
			want: map[string]any{"not_nodes": []any{"a"}},
		},
		{
			name: "nodes next to other keys is kept",
			in:   map[string]any{"nodes": []any{"a"}, "count": json.Number("1")},
			want: map[string]any{"nodes": []any{"a"}, "count": json.Number("1")},
		},
		{
			name: "nodes holding a non list is kept",
			in:   map[string]any{"nodes": "a"},
			want: map[string]any{"nodes": "a"},
		},
		{
			name: "bare list is identity",
			in:   []any{"a", "b"},
			want: []any{"a", "b"},
		},
		{
			name: "scalar is identity",
			in:   json.Number("42"),
			want: json.Number("42"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := UnwrapNodes(tt.in)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("UnwrapNodes() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecode_KeepsLargeIDs(t *testing.T) {
	v, err := DecodeBytes([]byte(`{"id": 9007199254740993}`))
	if err != nil {
		t.Fatalf("DecodeBytes() error = %v", err)
	}

	id := v.(map[string]any)["id"].(json.Number)
	if id.String() != "9007199254740993" {
		t.Errorf("id = %s, want 9007199254740993", id)
	}
}

func TestItems_SkipsNonObjects(t *testing.T) {
	page := Items([]any{map[string]any{"id": "1"}, "junk", json.Number("3"), map[string]any{"id": "2"}})
	if len(page) != 2 {
		t.Fatalf("len(page) = %d, want 2", len(page))
	}
}
