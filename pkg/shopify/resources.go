package shopify

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/Sternrassler/shopify-source/pkg/incremental"
	"github.com/Sternrassler/shopify-source/pkg/pagination"
)

// Resource names.
const (
	Products       = "products"
	Orders         = "orders"
	Customers      = "customers"
	InventoryItems = "inventory_items"
	Transactions   = "transactions"
	Balance        = "balance"
	Events         = "events"
	PriceRules     = "price_rules"
	Discounts      = "discounts"
	Taxonomy       = "taxonomy"
)

var idKey = []string{"id"}

func updatedAtCursor() *Incremental {
	return &Incremental{Field: "updated_at", Kind: incremental.KindTimestamp, Bounded: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// restResources defines the REST-backed resources in load order.
func restResources(cfg Config) []RESTResource {
	limit := strconv.Itoa(cfg.ItemsPerPage)

	// updatedParams is shared by products, orders, customers and price_rules.
	updatedParams := func(w incremental.Window) url.Values {
		return url.Values{
			"updated_at_min": {formatTime(w.Start.Time)},
			"limit":          {limit},
			"order":          {"updated_at asc"},
		}
	}

	// entityParams adds the creation and upper bounds products, orders and
	// customers accept.
	entityParams := func(w incremental.Window) url.Values {
		params := updatedParams(w)
		if !cfg.CreatedAtMin.IsZero() {
			params.Set("created_at_min", formatTime(cfg.CreatedAtMin))
		}
		if w.HasEnd() {
			params.Set("updated_at_max", formatTime(w.End.Time))
		}
		return params
	}

	return []RESTResource{
		{
			Name:             Products,
			Path:             "products",
			PrimaryKey:       idKey,
			WriteDisposition: Merge,
			Incremental:      updatedAtCursor(),
			Params:           entityParams,
		},
		{
			Name:             Orders,
			Path:             "orders",
			PrimaryKey:       idKey,
			WriteDisposition: Merge,
			Incremental:      updatedAtCursor(),
			Params: func(w incremental.Window) url.Values {
				params := entityParams(w)
				params.Set("status", string(cfg.OrderStatus))
				return params
			},
		},
		{
			Name:             Customers,
			Path:             "customers",
			PrimaryKey:       idKey,
			WriteDisposition: Merge,
			Incremental:      updatedAtCursor(),
			Params:           entityParams,
		},
		{
			Name:             Transactions,
			Path:             "shopify_payments/balance/transactions",
			PrimaryKey:       idKey,
			WriteDisposition: Merge,
			Incremental:      &Incremental{Field: "id", Kind: incremental.KindID},
			Params: func(w incremental.Window) url.Values {
				params := url.Values{"limit": {limit}}
				if !w.Start.IsZero() {
					params.Set("since_id", w.Start.String())
				}
				return params
			},
		},
		{
			Name:             Balance,
			Path:             "shopify_payments/balance",
			PrimaryKey:       []string{"currency"},
			WriteDisposition: SCD2,
			Params: func(incremental.Window) url.Values {
				return nil
			},
		},
		{
			Name:             Events,
			Path:             "events",
			PrimaryKey:       idKey,
			WriteDisposition: Append,
			Incremental:      &Incremental{Field: "created_at", Kind: incremental.KindTimestamp, Bounded: true},
			Params: func(w incremental.Window) url.Values {
				return url.Values{
					"created_at_min": {formatTime(w.Start.Time)},
					"limit":          {limit},
					"order":          {"created_at asc"},
				}
			},
		},
		{
			Name:             PriceRules,
			Path:             "price_rules",
			PrimaryKey:       idKey,
			WriteDisposition: Merge,
			Incremental:      updatedAtCursor(),
			Params:           updatedParams,
		},
	}
}

// graphQLResources defines the GraphQL-backed resources in load order.
func graphQLResources(cfg Config) []GraphQLResource {
	updatedSince := func(w incremental.Window) map[string]any {
		return map[string]any{
			"query": fmt.Sprintf("updated_at:>'%s'", formatTime(w.Start.Time)),
			"first": cfg.ItemsPerPage,
		}
	}

	return []GraphQLResource{
		{
			Name:             InventoryItems,
			PrimaryKey:       idKey,
			WriteDisposition: Merge,
			Incremental:      &Incremental{Field: "updatedAt", Kind: incremental.KindTimestamp, Bounded: true},
			Query: pagination.Query{
				Text:            inventoryItemsQuery,
				ItemsPath:       "data.inventoryItems.edges[*].node",
				CursorPath:      "data.inventoryItems.pageInfo.endCursor",
				CursorVariable:  "after",
				HasNextPagePath: "data.inventoryItems.pageInfo.hasNextPage",
			},
			Variables: updatedSince,
		},
		{
			Name:             Discounts,
			PrimaryKey:       idKey,
			WriteDisposition: Merge,
			Incremental:      &Incremental{Field: "discount.updatedAt", Kind: incremental.KindTimestamp, Bounded: true},
			Query: pagination.Query{
				Text:            discountsQuery,
				ItemsPath:       "data.discountNodes.nodes",
				CursorPath:      "data.discountNodes.pageInfo.endCursor",
				CursorVariable:  "after",
				HasNextPagePath: "data.discountNodes.pageInfo.hasNextPage",
			},
			Variables: updatedSince,
		},
		{
			Name:             Taxonomy,
			PrimaryKey:       idKey,
			WriteDisposition: Merge,
			Query: pagination.Query{
				Text:            taxonomyQuery,
				ItemsPath:       "data.taxonomy.categories.nodes",
				CursorPath:      "data.taxonomy.categories.pageInfo.endCursor",
				CursorVariable:  "after",
				HasNextPagePath: "data.taxonomy.categories.pageInfo.hasNextPage",
			},
			Variables: func(incremental.Window) map[string]any {
				return map[string]any{"first": cfg.ItemsPerPage}
			},
		},
	}
}
