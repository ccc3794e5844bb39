package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/shopify-source/pkg/incremental"
)

func TestKey_String(t *testing.T) {
	tests := []struct {
		name string
		key  Key
		want string
	}{
		{
			name: "shop domain",
			key:  Key{Shop: "my-shop.myshopify.com", Resource: "orders"},
			want: "shopify:state:my-shop.myshopify.com:orders",
		},
		{
			name: "shop with port",
			key:  Key{Shop: "127.0.0.1:8080", Resource: "inventory_items"},
			want: "shopify:state:127.0.0.1:8080:inventory_items",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.key.String())

			parsed, err := ParseKey(tt.want)
			require.NoError(t, err)
			assert.Equal(t, tt.key, parsed)
		})
	}
}

func TestParseKey_Invalid(t *testing.T) {
	for _, s := range []string{
		"cache:products:1",
		"shopify:state:",
		"shopify:state:orders",
		"shopify:state:shop:",
	} {
		t.Run(s, func(t *testing.T) {
			_, err := ParseKey(s)
			assert.Error(t, err)
		})
	}
}

func TestEntry_Cursor(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 30, 0, 500, time.UTC)

	entry := NewEntry(incremental.Timestamp(ts), []string{"1", "2"}, "load-1")
	assert.Equal(t, incremental.KindTimestamp, entry.Kind)
	assert.Equal(t, "load-1", entry.LoadID)
	assert.False(t, entry.UpdatedAt.IsZero())

	c, err := entry.Cursor()
	require.NoError(t, err)
	assert.True(t, c.Time.Equal(ts))

	idEntry := NewEntry(incremental.ID(9876543210123), nil, "")
	c, err = idEntry.Cursor()
	require.NoError(t, err)
	assert.Equal(t, incremental.ID(9876543210123), c)

	_, err = (&Entry{Kind: "bogus", Value: "x"}).Cursor()
	assert.Error(t, err)
}
