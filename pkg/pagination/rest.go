package pagination

import (
	"context"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/shopify-source/pkg/record"
)

// Prometheus metrics for page fetching.
var (
	pagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shopify_pages_total",
		Help: "Total pages fetched by API",
	}, []string{"api"})

	itemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shopify_items_total",
		Help: "Total items yielded by API",
	}, []string{"api"})
)

// Config holds fetcher configuration.
type Config struct {
	// PageTimeout bounds one page request including reading its body.
	// Zero means no per-page timeout beyond the caller's context.
	PageTimeout time.Duration
}

// DefaultConfig returns the default fetcher configuration.
func DefaultConfig() Config {
	return Config{
		PageTimeout: 2 * time.Minute,
	}
}

// RESTClient is the transport the REST fetcher needs.
type RESTClient interface {
	// URL returns the absolute endpoint URL for a resource path.
	URL(resource string) string

	// Get performs a GET; statuses >= 400 are returned as errors.
	Get(ctx context.Context, rawURL string) (*http.Response, error)
}

// RESTFetcher pages through REST list endpoints by following Link headers.
type RESTFetcher struct {
	client RESTClient
	config Config
	logger zerolog.Logger
}

// NewRESTFetcher creates a new REST fetcher.
func NewRESTFetcher(client RESTClient, config Config) *RESTFetcher {
	return &RESTFetcher{
		client: client,
		config: config,
		logger: log.With().Str("component", "rest-fetcher").Logger(),
	}
}

// Pages returns the pages of a REST resource. The first request carries
// params; every later request is exactly the server's next link.
func (f *RESTFetcher) Pages(ctx context.Context, resource string, params url.Values) iter.Seq2[record.Page, error] {
	return func(yield func(record.Page, error) bool) {
		next := f.client.URL(resource)
		if len(params) > 0 {
			next += "?" + params.Encode()
		}
		key := ItemsKey(resource)

		for page := 1; next != ""; page++ {
			items, link, err := f.fetchPage(ctx, next, key)
			if err != nil {
				yield(nil, fmt.Errorf("fetch %s page %d: %w", resource, page, err))
				return
			}

			pagesTotal.WithLabelValues("rest").Inc()
			itemsTotal.WithLabelValues("rest").Add(float64(len(items)))

			f.logger.Debug().
				Str("resource", resource).
				Int("page", page).
				Int("items", len(items)).
				Bool("has_next", link != "").
				Msg("Fetched REST page")

			if !yield(items, nil) {
				return
			}
			next = link
		}
	}
}

func (f *RESTFetcher) fetchPage(ctx context.Context, rawURL, key string) (record.Page, string, error) {
	if f.config.PageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.config.PageTimeout)
		defer cancel()
	}

	resp, err := f.client.Get(ctx, rawURL)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	doc, err := record.Decode(resp.Body)
	if err != nil {
		return nil, "", err
	}

	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, "", fmt.Errorf("response is not a JSON object")
	}

	raw, ok := obj[key]
	if !ok {
		return nil, "", fmt.Errorf("response has no %q key", key)
	}

	list, ok := raw.([]any)
	if !ok {
		return nil, "", fmt.Errorf("response key %q is not an array", key)
	}

	items := record.Items(list)
	for i, item := range items {
		items[i] = record.NormalizeItem(item)
	}

	return items, ParseNextLink(resp.Header.Get("Link")), nil
}

// ItemsKey returns the response key holding the items of a resource path.
func ItemsKey(resource string) string {
	return path.Base(resource)
}
