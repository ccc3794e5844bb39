// Package state persists the high-water mark of each incremental resource so
// that the next run resumes where the last drained run stopped.
//
// Entries are keyed by shop and resource:
//
//	shopify:state:my-shop.myshopify.com:orders
//
// Three backends implement Store: MemoryStore for tests and dry runs,
// RedisStore for state shared between workers, and SQLStore (sqlite, postgres
// or mysql) which keeps the state next to the loaded tables in a
// _shopify_state table.
//
// # Basic Usage
//
//	store, err := state.Open(ctx, "sqlite:///var/lib/shopify/state.db")
//	if err != nil {
//		return err
//	}
//	defer store.Close()
//
//	key := state.Key{Shop: "my-shop.myshopify.com", Resource: "orders"}
//	entry, err := store.Get(ctx, key)
//	if errors.Is(err, state.ErrNoState) {
//		// first run
//	}
//
//	cursor, err := entry.Cursor()
//	// ... run the resource ...
//	err = store.Set(ctx, key, state.NewEntry(res.Cursor, res.BoundaryKeys, loadID))
//
// An entry is only written after a run has fetched its last page; a failed or
// interrupted run leaves the previous entry in place.
package state
