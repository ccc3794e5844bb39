package shopify

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/url"
	"slices"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/shopify-source/pkg/client"
	"github.com/Sternrassler/shopify-source/pkg/incremental"
	"github.com/Sternrassler/shopify-source/pkg/pagination"
	"github.com/Sternrassler/shopify-source/pkg/ratelimit"
	"github.com/Sternrassler/shopify-source/pkg/record"
)

// ErrUnknownResource is returned when a resource name is not defined.
var ErrUnknownResource = errors.New("unknown resource")

// Source holds the clients and resources of one shop.
type Source struct {
	config    Config
	rest      *client.Client
	clients   []*client.Client
	limiter   *ratelimit.Tracker
	resources []*Resource
	byName    map[string]*Resource
	logger    zerolog.Logger

	rateStore     ratelimit.Store
	fetcherConfig pagination.Config
}

// Option customizes a Source.
type Option func(*Source)

// WithRateLimitStore shares call-limit state through store, e.g. a
// ratelimit.RedisStore used by several processes syncing the same shop.
func WithRateLimitStore(store ratelimit.Store) Option {
	return func(s *Source) {
		s.rateStore = store
	}
}

// WithFetcherConfig overrides the page fetcher configuration.
func WithFetcherConfig(cfg pagination.Config) Option {
	return func(s *Source) {
		s.fetcherConfig = cfg
	}
}

// NewSource builds the source. REST resources share one client; each
// GraphQL resource gets its own client. All clients share one call-limit tracker.
func NewSource(cfg Config, opts ...Option) (*Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = client.DefaultAPIVersion
	}
	if cfg.GraphQLAPIVersion == "" {
		cfg.GraphQLAPIVersion = client.DefaultGraphQLAPIVersion
	}
	if cfg.StartDate.IsZero() {
		cfg.StartDate = incremental.Epoch
	}

	s := &Source{
		config:        cfg,
		byName:        make(map[string]*Resource),
		fetcherConfig: pagination.DefaultConfig(),
		logger:        log.With().Str("component", "shopify-source").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rateStore == nil {
		s.rateStore = ratelimit.NewMemoryStore()
	}

	shop, err := shopDomain(cfg.ShopURL)
	if err != nil {
		return nil, err
	}
	s.limiter = ratelimit.NewTracker(s.rateStore, shop,
		log.With().Str("component", "rate-limiter").Str("shop", shop).Logger())

	restCfg := cfg.clientConfig(cfg.APIVersion)
	restCfg.RateLimiter = s.limiter
	if s.rest, err = s.newClient(restCfg); err != nil {
		return nil, fmt.Errorf("create rest client: %w", err)
	}
	restFetcher := pagination.NewRESTFetcher(s.rest, s.fetcherConfig)

	for _, def := range restResources(cfg) {
		s.add(s.restResource(def, restFetcher))
	}

	for _, def := range graphQLResources(cfg) {
		gqlCfg := cfg.clientConfig(cfg.GraphQLAPIVersion)
		gqlCfg.API = ratelimit.APIGraphQL
		gqlCfg.RateLimiter = s.limiter

		c, err := s.newClient(gqlCfg)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("create graphql client for %s: %w", def.Name, err)
		}
		s.add(s.graphQLResource(def, pagination.NewGraphQLFetcher(c, s.fetcherConfig)))
	}
	s.sortLoadOrder()

	s.logger.Info().
		Str("shop", s.rest.ShopDomain()).
		Str("api_version", cfg.APIVersion).
		Str("graphql_api_version", cfg.GraphQLAPIVersion).
		Int("resources", len(s.resources)).
		Msg("Shopify source ready")

	return s, nil
}

func shopDomain(shopURL string) (string, error) {
	normalized, err := client.NormalizeShopURL(shopURL)
	if err != nil {
		return "", err
	}
	u, err := url.Parse(normalized)
	if err != nil {
		return "", fmt.Errorf("parse shop url: %w", err)
	}
	return u.Host, nil
}

func (s *Source) newClient(cfg client.Config) (*client.Client, error) {
	c, err := client.New(cfg)
	if err != nil {
		return nil, err
	}
	s.clients = append(s.clients, c)
	return c, nil
}

func (s *Source) add(r *Resource) {
	s.resources = append(s.resources, r)
	s.byName[r.Name] = r
}

func (s *Source) bounds(inc *Incremental) (start, end incremental.Cursor) {
	if inc == nil || inc.Kind != incremental.KindTimestamp {
		return incremental.Cursor{}, incremental.Cursor{}
	}
	start = incremental.Timestamp(s.config.StartDate)
	if !s.config.EndDate.IsZero() {
		end = incremental.Timestamp(s.config.EndDate)
	}
	return start, end
}

func (s *Source) restResource(def RESTResource, fetcher *pagination.RESTFetcher) *Resource {
	r := &Resource{
		Name:             def.Name,
		PrimaryKey:       def.PrimaryKey,
		WriteDisposition: def.WriteDisposition,
		Incremental:      def.Incremental,
		API:              ratelimit.APIREST,
	}
	r.start, r.end = s.bounds(def.Incremental)
	r.pages = func(ctx context.Context, w incremental.Window) iter.Seq2[record.Page, error] {
		params := def.Params(w)
		s.logger.Debug().
			Str("resource", def.Name).
			Str("endpoint", def.Path).
			Str("params", params.Encode()).
			Msg("Starting REST resource")
		return fetcher.Pages(ctx, def.Path, params)
	}
	return r
}

func (s *Source) graphQLResource(def GraphQLResource, fetcher *pagination.GraphQLFetcher) *Resource {
	r := &Resource{
		Name:             def.Name,
		PrimaryKey:       def.PrimaryKey,
		WriteDisposition: def.WriteDisposition,
		Incremental:      def.Incremental,
		API:              ratelimit.APIGraphQL,
	}
	r.start, r.end = s.bounds(def.Incremental)
	r.pages = func(ctx context.Context, w incremental.Window) iter.Seq2[record.Page, error] {
		q := def.Query
		q.Variables = def.Variables(w)
		s.logger.Debug().
			Str("resource", def.Name).
			Interface("variables", q.Variables).
			Msg("Starting GraphQL resource")
		return fetcher.Pages(ctx, q)
	}
	return r
}

// loadOrder lists resources in the order they are loaded.
var loadOrder = []string{
	Products, Orders, Customers, InventoryItems, Transactions,
	Balance, Events, PriceRules, Discounts, Taxonomy,
}

func (s *Source) sortLoadOrder() {
	rank := make(map[string]int, len(loadOrder))
	for i, name := range loadOrder {
		rank[name] = i
	}
	slices.SortStableFunc(s.resources, func(a, b *Resource) int {
		return rank[a.Name] - rank[b.Name]
	})
}

// Shop returns the shop domain.
func (s *Source) Shop() string {
	return s.rest.ShopDomain()
}

// RateLimiter returns the call-limit tracker shared by all resources.
func (s *Source) RateLimiter() *ratelimit.Tracker {
	return s.limiter
}

// Resources returns all resources in load order.
func (s *Source) Resources() []*Resource {
	return append([]*Resource(nil), s.resources...)
}

// Resource returns the resource with the given name.
func (s *Source) Resource(name string) (*Resource, error) {
	r, ok := s.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownResource, name)
	}
	return r, nil
}

// Select returns the named resources in the order given, or all resources
// when no names are given.
func (s *Source) Select(names ...string) ([]*Resource, error) {
	if len(names) == 0 {
		return s.Resources(), nil
	}

	out := make([]*Resource, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true

		r, err := s.Resource(name)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Close releases the clients' idle connections.
func (s *Source) Close() error {
	for _, c := range s.clients {
		c.Close()
	}
	return nil
}
