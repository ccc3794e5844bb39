package shopify

import (
	"fmt"
	"time"

	"github.com/Sternrassler/shopify-source/pkg/client"
	"github.com/Sternrassler/shopify-source/pkg/incremental"
)

// OrderStatus filters the orders resource.
type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusClosed    OrderStatus = "closed"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusAny       OrderStatus = "any"
)

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusOpen, OrderStatusClosed, OrderStatusCancelled, OrderStatusAny:
		return true
	}
	return false
}

// DefaultItemsPerPage is the largest page size the Admin API accepts.
const DefaultItemsPerPage = 250

// Config holds the source configuration.
type Config struct {
	// ShopURL is the shop address, e.g. "my-shop.myshopify.com".
	ShopURL string

	// AccessToken is the private app password / Admin API access token.
	AccessToken string

	// APIVersion is used by REST resources.
	APIVersion string

	// GraphQLAPIVersion is used by GraphQL resources.
	GraphQLAPIVersion string

	// ItemsPerPage is sent as limit/first.
	ItemsPerPage int

	// StartDate is the lower bound of a first run of timestamp resources.
	StartDate time.Time

	// EndDate is an optional inclusive upper bound. Runs with an end date
	// load a fixed range and do not advance saved cursors.
	EndDate time.Time

	// CreatedAtMin is a creation-time lower bound for products, orders and
	// customers, independent of the incremental cursor. Zero disables it.
	CreatedAtMin time.Time

	// OrderStatus filters orders.
	OrderStatus OrderStatus

	// Client settings shared by every resource client.
	UserAgent      string
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultConfig returns a configuration with the connector defaults.
func DefaultConfig(shopURL, accessToken string) Config {
	base := client.DefaultConfig(shopURL, accessToken)
	return Config{
		ShopURL:           shopURL,
		AccessToken:       accessToken,
		APIVersion:        client.DefaultAPIVersion,
		GraphQLAPIVersion: client.DefaultGraphQLAPIVersion,
		ItemsPerPage:      DefaultItemsPerPage,
		StartDate:         incremental.Epoch,
		CreatedAtMin:      incremental.Epoch,
		OrderStatus:       OrderStatusAny,
		UserAgent:         base.UserAgent,
		Timeout:           base.Timeout,
		MaxRetries:        base.MaxRetries,
		InitialBackoff:    base.InitialBackoff,
		MaxBackoff:        base.MaxBackoff,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.ShopURL == "" {
		return fmt.Errorf("shop url is required")
	}
	if c.AccessToken == "" {
		return fmt.Errorf("access token is required")
	}
	if c.ItemsPerPage < 1 || c.ItemsPerPage > DefaultItemsPerPage {
		return fmt.Errorf("items_per_page must be between 1 and %d (got %d)", DefaultItemsPerPage, c.ItemsPerPage)
	}
	if !c.OrderStatus.Valid() {
		return fmt.Errorf("invalid order status %q", c.OrderStatus)
	}
	if !c.EndDate.IsZero() && c.EndDate.Before(c.StartDate) {
		return fmt.Errorf("end date %s is before start date %s",
			c.EndDate.Format(time.RFC3339), c.StartDate.Format(time.RFC3339))
	}
	return nil
}

func (c *Config) clientConfig(version string) client.Config {
	cfg := client.DefaultConfig(c.ShopURL, c.AccessToken)
	cfg.APIVersion = version
	if c.UserAgent != "" {
		cfg.UserAgent = c.UserAgent
	}
	if c.Timeout > 0 {
		cfg.Timeout = c.Timeout
	}
	cfg.MaxRetries = c.MaxRetries
	if c.InitialBackoff > 0 {
		cfg.InitialBackoff = c.InitialBackoff
	}
	if c.MaxBackoff > 0 {
		cfg.MaxBackoff = c.MaxBackoff
	}
	return cfg
}
