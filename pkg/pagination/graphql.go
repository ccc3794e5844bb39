package pagination

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"maps"
	"net/http"
	"strings"

	"github.com/ohler55/ojg/jp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/shopify-source/pkg/client"
	"github.com/Sternrassler/shopify-source/pkg/ratelimit"
	"github.com/Sternrassler/shopify-source/pkg/record"
)

// throttleStatusPath locates the GraphQL bucket report.
var throttleStatusPath = jp.MustParseString("$.extensions.cost.throttleStatus")

// GraphQLClient is the transport the GraphQL fetcher needs.
type GraphQLClient interface {
	// GraphQLURL returns the GraphQL endpoint URL.
	GraphQLURL() string

	// PostJSON POSTs a JSON body; statuses >= 400 are returned as errors.
	PostJSON(ctx context.Context, rawURL string, body any) (*http.Response, error)

	// ReportThrottleStatus receives the bucket report of each response.
	ReportThrottleStatus(ctx context.Context, status ratelimit.ThrottleStatus)
}

// Query describes one paginated GraphQL query.
type Query struct {
	// Text is the GraphQL document.
	Text string

	// ItemsPath locates the result nodes, e.g. "data.inventoryItems.edges[*].node".
	// A match that is itself a list contributes its elements, so a path ending
	// in "nodes" yields one item per node rather than one list item.
	ItemsPath string

	// CursorPath locates the pagination cursor, e.g. "data.inventoryItems.pageInfo.endCursor".
	CursorPath string

	// CursorVariable is the variable that carries the cursor, e.g. "after".
	CursorVariable string

	// HasNextPagePath optionally locates a boolean "more pages" flag.
	HasNextPagePath string

	// Variables are the initial variables. They are copied, never mutated.
	Variables map[string]any
}

// compiledQuery holds parsed JSONPath expressions.
type compiledQuery struct {
	items   jp.Expr
	cursor  jp.Expr
	hasNext jp.Expr
}

func (q Query) compile() (*compiledQuery, error) {
	if q.Text == "" {
		return nil, fmt.Errorf("query text is required")
	}
	if q.CursorVariable == "" {
		return nil, fmt.Errorf("cursor variable is required")
	}

	items, err := parsePath(q.ItemsPath)
	if err != nil {
		return nil, fmt.Errorf("items path: %w", err)
	}
	cursor, err := parsePath(q.CursorPath)
	if err != nil {
		return nil, fmt.Errorf("cursor path: %w", err)
	}

	c := &compiledQuery{items: items, cursor: cursor}
	if q.HasNextPagePath != "" {
		if c.hasNext, err = parsePath(q.HasNextPagePath); err != nil {
			return nil, fmt.Errorf("has next page path: %w", err)
		}
	}
	return c, nil
}

func parsePath(p string) (jp.Expr, error) {
	if p == "" {
		return nil, fmt.Errorf("empty path")
	}
	if !strings.HasPrefix(p, "$") {
		p = "$." + p
	}
	return jp.ParseString(p)
}

// GraphQLFetcher pages through GraphQL connections by cursor.
type GraphQLFetcher struct {
	client GraphQLClient
	config Config
	logger zerolog.Logger
}

// NewGraphQLFetcher creates a new GraphQL fetcher.
func NewGraphQLFetcher(client GraphQLClient, config Config) *GraphQLFetcher {
	return &GraphQLFetcher{
		client: client,
		config: config,
		logger: log.With().Str("component", "graphql-fetcher").Logger(),
	}
}

// Pages returns the pages of a GraphQL query. Each invocation starts from
// q.Variables; a response with a top-level errors array fails the sequence
// with a *client.GraphQLError and yields nothing of that page.
func (f *GraphQLFetcher) Pages(ctx context.Context, q Query) iter.Seq2[record.Page, error] {
	return func(yield func(record.Page, error) bool) {
		compiled, err := q.compile()
		if err != nil {
			yield(nil, fmt.Errorf("invalid query: %w", err))
			return
		}

		variables := maps.Clone(q.Variables)
		if variables == nil {
			variables = make(map[string]any)
		}

		for page := 1; ; page++ {
			doc, err := f.execute(ctx, q.Text, variables)
			if err != nil {
				yield(nil, fmt.Errorf("graphql page %d: %w", page, err))
				return
			}

			items := extractItems(compiled.items, doc)
			if len(items) == 0 {
				f.logger.Debug().Int("page", page).Msg("No items - stopping")
				return
			}

			pagesTotal.WithLabelValues("graphql").Inc()
			itemsTotal.WithLabelValues("graphql").Add(float64(len(items)))

			f.logger.Debug().
				Int("page", page).
				Int("items", len(items)).
				Msg("Fetched GraphQL page")

			if !yield(items, nil) {
				return
			}

			// A missing, empty or non-string cursor ends the sequence.
			value, _ := lastValue(compiled.cursor, doc)
			cursor, ok := value.(string)
			if !ok || cursor == "" {
				return
			}

			if compiled.hasNext != nil {
				more, ok := lastValue(compiled.hasNext, doc)
				if b, isBool := more.(bool); !ok || !isBool || !b {
					return
				}
			}

			variables[q.CursorVariable] = cursor
		}
	}
}

// execute posts one request and returns the decoded document.
func (f *GraphQLFetcher) execute(ctx context.Context, text string, variables map[string]any) (any, error) {
	if f.config.PageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.config.PageTimeout)
		defer cancel()
	}

	resp, err := f.client.PostJSON(ctx, f.client.GraphQLURL(), map[string]any{
		"query":     text,
		"variables": variables,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	doc, err := record.DecodeBytes(body)
	if err != nil {
		return nil, err
	}

	if gqlErr := graphQLErrors(doc, body); gqlErr != nil {
		return nil, gqlErr
	}

	if status, ok := throttleStatus(doc); ok {
		f.client.ReportThrottleStatus(ctx, status)
	}

	return doc, nil
}

// graphQLErrors returns a GraphQLError if doc has a non-empty errors field.
func graphQLErrors(doc any, body []byte) *client.GraphQLError {
	obj, ok := doc.(map[string]any)
	if !ok {
		return nil
	}

	raw, ok := obj["errors"]
	if !ok || raw == nil {
		return nil
	}

	gqlErr := &client.GraphQLError{Body: string(body)}
	switch errs := raw.(type) {
	case []any:
		if len(errs) == 0 {
			return nil
		}
		for _, e := range errs {
			if m, ok := e.(map[string]any); ok {
				if msg, ok := m["message"].(string); ok {
					gqlErr.Messages = append(gqlErr.Messages, msg)
				}
			}
		}
	case string:
		gqlErr.Messages = []string{errs}
	}
	return gqlErr
}

func extractItems(expr jp.Expr, doc any) record.Page {
	var values []any
	for _, v := range expr.Get(doc) {
		// A path ending in a list yields the list itself
		if list, ok := v.([]any); ok {
			values = append(values, list...)
			continue
		}
		values = append(values, v)
	}

	items := make(record.Page, 0, len(values))
	for _, item := range record.Items(values) {
		if m, ok := record.NormalizeDates(record.UnwrapNodes(item)).(map[string]any); ok {
			items = append(items, m)
		}
	}
	return items
}

// lastValue returns the last non-null value at expr.
func lastValue(expr jp.Expr, doc any) (any, bool) {
	values := expr.Get(doc)
	for i := len(values) - 1; i >= 0; i-- {
		if values[i] != nil {
			return values[i], true
		}
	}
	return nil, false
}

func throttleStatus(doc any) (ratelimit.ThrottleStatus, bool) {
	v, ok := lastValue(throttleStatusPath, doc)
	if !ok {
		return ratelimit.ThrottleStatus{}, false
	}
	m, ok := v.(map[string]any)
	if !ok {
		return ratelimit.ThrottleStatus{}, false
	}

	return ratelimit.ThrottleStatus{
		MaximumAvailable:   toFloat(m["maximumAvailable"]),
		CurrentlyAvailable: toFloat(m["currentlyAvailable"]),
		RestoreRate:        toFloat(m["restoreRate"]),
	}, true
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case json.Number:
		f, _ := n.Float64()
		return f
	case float64:
		return n
	case int64:
		return float64(n)
	default:
		return 0
	}
}
