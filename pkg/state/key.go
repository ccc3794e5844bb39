package state

import (
	"fmt"
	"strings"
)

// KeyPrefix prefixes every state key.
const KeyPrefix = "shopify:state"

// Key identifies the saved cursor of one resource of one shop.
type Key struct {
	// Shop is the shop domain, e.g. "my-shop.myshopify.com".
	Shop string

	// Resource is the resource name, e.g. "orders".
	Resource string
}

// String returns the deterministic key string.
// Format: shopify:state:<shop>:<resource>
func (k Key) String() string {
	return fmt.Sprintf("%s:%s:%s", KeyPrefix, k.Shop, k.Resource)
}

// ShopPrefix returns the prefix shared by all keys of a shop.
func ShopPrefix(shop string) string {
	return fmt.Sprintf("%s:%s:", KeyPrefix, shop)
}

// ParseKey reverses Key.String.
func ParseKey(s string) (Key, error) {
	rest, ok := strings.CutPrefix(s, KeyPrefix+":")
	if !ok {
		return Key{}, fmt.Errorf("state key %q lacks prefix %q", s, KeyPrefix)
	}
	// Shop domains may carry a port; the resource never contains a colon.
	i := strings.LastIndex(rest, ":")
	if i <= 0 || i == len(rest)-1 {
		return Key{}, fmt.Errorf("malformed state key %q", s)
	}
	return Key{Shop: rest[:i], Resource: rest[i+1:]}, nil
}

func (k Key) validate() error {
	if k.Shop == "" {
		return fmt.Errorf("state key: shop is required")
	}
	if k.Resource == "" {
		return fmt.Errorf("state key: resource is required")
	}
	return nil
}
