package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/shopify-source/internal/sqldb"
	"github.com/Sternrassler/shopify-source/pkg/incremental"
)

// TableName is the table holding saved cursors.
const TableName = "_shopify_state"

var stateColumns = []string{"shop", "resource", "kind", "value", "boundary_keys", "load_id", "updated_at"}

// SQLStore keeps state in a SQL table, one row per shop and resource.
type SQLStore struct {
	db *sqldb.DB
}

// NewSQLStore creates the state table if needed. Close closes db.
func NewSQLStore(ctx context.Context, db *sqldb.DB) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database cannot be nil")
	}

	d := db.Dialect
	schema := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	shop %s NOT NULL,
	resource %s NOT NULL,
	kind %s NOT NULL,
	value %s NOT NULL,
	boundary_keys %s,
	load_id %s,
	updated_at %s NOT NULL,
	PRIMARY KEY (shop, resource)
)`, d.Quote(TableName), d.KeyType(), d.KeyType(), d.KeyType(), d.KeyType(), d.TextType(), d.KeyType(), d.KeyType())

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("create state table: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// Get implements Store.
func (s *SQLStore) Get(ctx context.Context, key Key) (*Entry, error) {
	query := s.db.Dialect.Rebind(fmt.Sprintf(
		"SELECT kind, value, boundary_keys, load_id, updated_at FROM %s WHERE shop = ? AND resource = ?",
		s.db.Dialect.Quote(TableName)))

	entry, err := scanEntry(s.db.QueryRowContext(ctx, query, key.Shop, key.Resource))
	if errors.Is(err, sql.ErrNoRows) {
		Operations.WithLabelValues("sql", "get").Inc()
		Misses.WithLabelValues("sql").Inc()
		return nil, fmt.Errorf("%s: %w", key, ErrNoState)
	}
	if err != nil {
		return nil, observe("sql", "get", fmt.Errorf("read state %s: %w", key, err))
	}
	return entry, observe("sql", "get", nil)
}

// Set implements Store.
func (s *SQLStore) Set(ctx context.Context, key Key, entry *Entry) error {
	if err := validate(key, entry); err != nil {
		return observe("sql", "set", err)
	}

	keys, err := json.Marshal(entry.BoundaryKeys)
	if err != nil {
		return observe("sql", "set", fmt.Errorf("marshal boundary keys: %w", err))
	}
	updatedAt := entry.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	upsert := s.db.Dialect.Upsert(TableName, stateColumns,
		[]string{"shop", "resource"}, stateColumns[2:])
	_, err = s.db.ExecContext(ctx, upsert,
		key.Shop, key.Resource, string(entry.Kind), entry.Value, string(keys), entry.LoadID,
		updatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return observe("sql", "set", fmt.Errorf("write state %s: %w", key, err))
	}
	return observe("sql", "set", nil)
}

// Delete implements Store.
func (s *SQLStore) Delete(ctx context.Context, key Key) error {
	query := s.db.Dialect.Rebind(fmt.Sprintf("DELETE FROM %s WHERE shop = ? AND resource = ?",
		s.db.Dialect.Quote(TableName)))
	if _, err := s.db.ExecContext(ctx, query, key.Shop, key.Resource); err != nil {
		return observe("sql", "delete", fmt.Errorf("delete state %s: %w", key, err))
	}
	return observe("sql", "delete", nil)
}

// List implements Store.
func (s *SQLStore) List(ctx context.Context, shop string) ([]Keyed, error) {
	query := s.db.Dialect.Rebind(fmt.Sprintf(
		"SELECT resource, kind, value, boundary_keys, load_id, updated_at FROM %s WHERE shop = ? ORDER BY resource",
		s.db.Dialect.Quote(TableName)))

	rows, err := s.db.QueryContext(ctx, query, shop)
	if err != nil {
		return nil, observe("sql", "list", fmt.Errorf("list state: %w", err))
	}
	defer rows.Close()

	var out []Keyed
	for rows.Next() {
		var resource string
		var entry Entry
		var kind, keys, loadID, updatedAt sql.NullString
		if err := rows.Scan(&resource, &kind, &entry.Value, &keys, &loadID, &updatedAt); err != nil {
			return nil, observe("sql", "list", fmt.Errorf("scan state: %w", err))
		}
		if err := fillEntry(&entry, kind, keys, loadID, updatedAt); err != nil {
			return nil, observe("sql", "list", err)
		}
		out = append(out, Keyed{Key: Key{Shop: shop, Resource: resource}, Entry: &entry})
	}
	if err := rows.Err(); err != nil {
		return nil, observe("sql", "list", fmt.Errorf("list state: %w", err))
	}
	return out, observe("sql", "list", nil)
}

// Close implements Store.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func scanEntry(row *sql.Row) (*Entry, error) {
	var entry Entry
	var kind, keys, loadID, updatedAt sql.NullString
	if err := row.Scan(&kind, &entry.Value, &keys, &loadID, &updatedAt); err != nil {
		return nil, err
	}
	if err := fillEntry(&entry, kind, keys, loadID, updatedAt); err != nil {
		return nil, err
	}
	return &entry, nil
}

func fillEntry(entry *Entry, kind, keys, loadID, updatedAt sql.NullString) error {
	entry.Kind = incremental.Kind(kind.String)
	entry.LoadID = loadID.String

	if keys.Valid && keys.String != "" && keys.String != "null" {
		if err := json.Unmarshal([]byte(keys.String), &entry.BoundaryKeys); err != nil {
			return fmt.Errorf("%w: boundary keys: %v", ErrInvalidEntry, err)
		}
	}
	if updatedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, updatedAt.String)
		if err != nil {
			return fmt.Errorf("%w: updated_at: %v", ErrInvalidEntry, err)
		}
		entry.UpdatedAt = t
	}
	return nil
}
