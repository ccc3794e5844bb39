package shopify

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/shopify-source/internal/testutil"
	"github.com/Sternrassler/shopify-source/pkg/incremental"
	"github.com/Sternrassler/shopify-source/pkg/ratelimit"
)

func testConfig(mock *testutil.MockShopify) Config {
	cfg := DefaultConfig(mock.URL(), "shpat_test")
	cfg.APIVersion = testutil.APIVersion
	cfg.GraphQLAPIVersion = testutil.APIVersion
	cfg.MaxRetries = 0
	cfg.InitialBackoff = 5 * time.Millisecond
	cfg.MaxBackoff = 10 * time.Millisecond
	return cfg
}

func newTestSource(t *testing.T, cfg Config) *Source {
	t.Helper()

	src, err := NewSource(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { src.Close() })
	return src
}

func TestNewSource_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing shop", func(c *Config) { c.ShopURL = "" }, "shop url is required"},
		{"missing token", func(c *Config) { c.AccessToken = "" }, "access token is required"},
		{"page size too large", func(c *Config) { c.ItemsPerPage = 251 }, "items_per_page"},
		{"bad order status", func(c *Config) { c.OrderStatus = "pending" }, "invalid order status"},
		{"end before start", func(c *Config) {
			c.StartDate = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
			c.EndDate = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		}, "before start date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig("my-shop.myshopify.com", "shpat_test")
			tt.mutate(&cfg)

			_, err := NewSource(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSource_ResourcesInLoadOrder(t *testing.T) {
	src := newTestSource(t, DefaultConfig("my-shop.myshopify.com", "shpat_test"))

	var names []string
	for _, r := range src.Resources() {
		names = append(names, r.Name)
	}

	assert.Equal(t, []string{
		Products, Orders, Customers, InventoryItems, Transactions,
		Balance, Events, PriceRules, Discounts, Taxonomy,
	}, names)
	assert.Equal(t, "my-shop.myshopify.com", src.Shop())
}

func TestSource_ResourceDefinitions(t *testing.T) {
	src := newTestSource(t, DefaultConfig("my-shop.myshopify.com", "shpat_test"))

	tests := []struct {
		name        string
		api         ratelimit.API
		disposition WriteDisposition
		primaryKey  []string
		field       string
		kind        incremental.Kind
	}{
		{Products, ratelimit.APIREST, Merge, []string{"id"}, "updated_at", incremental.KindTimestamp},
		{Orders, ratelimit.APIREST, Merge, []string{"id"}, "updated_at", incremental.KindTimestamp},
		{Customers, ratelimit.APIREST, Merge, []string{"id"}, "updated_at", incremental.KindTimestamp},
		{InventoryItems, ratelimit.APIGraphQL, Merge, []string{"id"}, "updatedAt", incremental.KindTimestamp},
		{Transactions, ratelimit.APIREST, Merge, []string{"id"}, "id", incremental.KindID},
		{Balance, ratelimit.APIREST, SCD2, []string{"currency"}, "", ""},
		{Events, ratelimit.APIREST, Append, []string{"id"}, "created_at", incremental.KindTimestamp},
		{PriceRules, ratelimit.APIREST, Merge, []string{"id"}, "updated_at", incremental.KindTimestamp},
		{Discounts, ratelimit.APIGraphQL, Merge, []string{"id"}, "discount.updatedAt", incremental.KindTimestamp},
		{Taxonomy, ratelimit.APIGraphQL, Merge, []string{"id"}, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := src.Resource(tt.name)
			require.NoError(t, err)

			assert.Equal(t, tt.api, r.API)
			assert.Equal(t, tt.disposition, r.WriteDisposition)
			assert.Equal(t, tt.primaryKey, r.PrimaryKey)

			if tt.field == "" {
				assert.False(t, r.IsIncremental())
				return
			}
			require.True(t, r.IsIncremental())
			assert.Equal(t, tt.field, r.Incremental.Field)
			assert.Equal(t, tt.kind, r.Incremental.Kind)
		})
	}
}

func TestSource_Select(t *testing.T) {
	src := newTestSource(t, DefaultConfig("my-shop.myshopify.com", "shpat_test"))

	all, err := src.Select()
	require.NoError(t, err)
	assert.Len(t, all, 10)

	picked, err := src.Select(Orders, Products, Orders)
	require.NoError(t, err)
	require.Len(t, picked, 2)
	assert.Equal(t, Orders, picked[0].Name)
	assert.Equal(t, Products, picked[1].Name)

	_, err = src.Select(Orders, "gift_cards")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownResource))
	assert.Contains(t, err.Error(), "gift_cards")
}

func TestResource_Window(t *testing.T) {
	cfg := DefaultConfig("my-shop.myshopify.com", "shpat_test")
	cfg.StartDate = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg.EndDate = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	src := newTestSource(t, cfg)

	orders, err := src.Resource(Orders)
	require.NoError(t, err)

	t.Run("first run uses start date", func(t *testing.T) {
		w := orders.Window(incremental.Cursor{}, nil)
		assert.Equal(t, "updated_at", w.Field)
		assert.Equal(t, incremental.Timestamp(cfg.StartDate), w.Start)
		assert.Equal(t, incremental.Timestamp(cfg.EndDate), w.End)
		assert.Empty(t, w.BoundaryKeys)
	})

	t.Run("saved cursor wins", func(t *testing.T) {
		saved := incremental.Timestamp(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
		w := orders.Window(saved, []string{"7", "9"})
		assert.Equal(t, saved, w.Start)
		assert.Equal(t, []string{"7", "9"}, w.BoundaryKeys)
	})

	t.Run("saved cursor of another kind is ignored", func(t *testing.T) {
		w := orders.Window(incremental.ID(42), []string{"42"})
		assert.Equal(t, incremental.Timestamp(cfg.StartDate), w.Start)
		assert.Empty(t, w.BoundaryKeys)
	})

	t.Run("id cursor has no start or end by default", func(t *testing.T) {
		tx, err := src.Resource(Transactions)
		require.NoError(t, err)

		w := tx.Window(incremental.Cursor{}, nil)
		assert.True(t, w.Start.IsZero())
		assert.False(t, w.HasEnd())
	})

	t.Run("non-incremental resource has empty window", func(t *testing.T) {
		balance, err := src.Resource(Balance)
		require.NoError(t, err)
		assert.Equal(t, incremental.Window{}, balance.Window(incremental.Cursor{}, nil))
	})
}
