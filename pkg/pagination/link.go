package pagination

import (
	"strings"

	"github.com/tomnomnom/linkheader"
)

// ParseNextLink returns the target of the rel="next" entry of an RFC 8288
// Link header, or "" if there is none. Relation types match case-insensitively.
//
//	<https://shop/admin/api/2024-01/products.json?page_info=abc&limit=250>; rel="next"
func ParseNextLink(header string) string {
	for _, link := range linkheader.Parse(header) {
		for _, rel := range strings.Fields(link.Rel) {
			if strings.EqualFold(rel, "next") {
				return link.URL
			}
		}
	}
	return ""
}
