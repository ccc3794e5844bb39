// Package shopify defines the Shopify source: its resources, how each one is
// fetched, and the incremental runs that drain them.
//
// Resources are created by NewSource in load order:
//
//   - products, orders, customers: REST, merged on id, cursor updated_at
//   - inventory_items: GraphQL, merged on id, cursor updatedAt
//   - transactions: REST, merged on id, cursor id (since_id)
//   - balance: REST, SCD2 on currency, no cursor
//   - events: REST, appended, cursor created_at
//   - price_rules: REST, merged on id, cursor updated_at
//   - discounts: GraphQL, merged on id, cursor discount.updatedAt
//   - taxonomy: GraphQL, merged on id, no cursor
//
// # Runs
//
// A Run fetches a resource over an incremental.Window. Items outside the
// window, and items on the start boundary already loaded by the previous run,
// are dropped. The run reports its new high-water mark only after the last
// page has been fetched:
//
//	src, err := shopify.NewSource(shopify.DefaultConfig(shopURL, token))
//	if err != nil {
//		return err
//	}
//	defer src.Close()
//
//	orders, _ := src.Resource(shopify.Orders)
//	run := orders.Run(orders.Window(saved, boundaryKeys))
//	for page, err := range run.Pages(ctx) {
//		if err != nil {
//			return err
//		}
//		// load page
//	}
//	res, err := run.Result()
//	if err == nil && res.Committable {
//		// save res.Cursor and res.BoundaryKeys
//	}
//
// A window with an end date is never committable: the next run must start
// from the previous mark again.
package shopify
