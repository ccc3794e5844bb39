// Package pagination turns paginated Shopify Admin API endpoints into lazy
// page sequences.
//
// Two fetchers are provided:
//
//   - RESTFetcher follows the Link rel="next" header verbatim and reads the
//     items array from the key named after the last path segment of the
//     resource ("shopify_payments/balance/transactions" -> "transactions").
//   - GraphQLFetcher re-posts a query with a cursor variable, locating items,
//     cursor and the optional hasNextPage flag by JSONPath.
//
// Both return iter.Seq2[record.Page, error]. A page is fetched only when the
// consumer asks for it; breaking out of the range loop issues no further
// request. Errors are yielded once and end the sequence. Fetchers never retry;
// retries belong to the client.
//
// Example usage:
//
//	fetcher := pagination.NewRESTFetcher(shopifyClient, pagination.DefaultConfig())
//	for page, err := range fetcher.Pages(ctx, "products", params) {
//		if err != nil {
//			return err
//		}
//		// ...
//	}
package pagination
