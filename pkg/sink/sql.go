package sink

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/shopify-source/internal/sqldb"
	"github.com/Sternrassler/shopify-source/pkg/record"
)

// SQLSink stores every table as rows of (_key, _load_id, _loaded_at, data)
// where data is the item as a JSON document. SCD2 tables add _hash,
// _valid_from and _valid_to; the current version has a NULL _valid_to.
type SQLSink struct {
	db     *sqldb.DB
	stage  *stage
	logger zerolog.Logger
	now    func() time.Time

	mu      sync.Mutex
	created map[string]bool
}

// NewSQLSink creates a sink over db. Close closes db.
func NewSQLSink(db *sqldb.DB) *SQLSink {
	return &SQLSink{
		db:      db,
		stage:   newStage(),
		logger:  log.With().Str("component", "sql-sink").Str("dialect", string(db.Dialect)).Logger(),
		now:     time.Now,
		created: make(map[string]bool),
	}
}

func (s *SQLSink) ensureTable(ctx context.Context, table Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.created[table.Name] {
		return nil
	}

	d := s.db.Dialect
	var cols []string
	switch table.Disposition {
	case Merge:
		cols = []string{
			"_key " + d.KeyType() + " PRIMARY KEY",
			"_load_id " + d.KeyType() + " NOT NULL",
			"_loaded_at " + d.KeyType() + " NOT NULL",
			"data " + d.TextType() + " NOT NULL",
		}
	case SCD2:
		cols = []string{
			"_key " + d.KeyType() + " NOT NULL",
			"_hash " + d.KeyType() + " NOT NULL",
			"_load_id " + d.KeyType() + " NOT NULL",
			"_loaded_at " + d.KeyType() + " NOT NULL",
			"_valid_from " + d.KeyType() + " NOT NULL",
			"_valid_to " + d.KeyType(),
			"data " + d.TextType() + " NOT NULL",
		}
	default:
		cols = []string{
			"_key " + d.KeyType(),
			"_load_id " + d.KeyType() + " NOT NULL",
			"_loaded_at " + d.KeyType() + " NOT NULL",
			"data " + d.TextType() + " NOT NULL",
		}
	}

	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", d.Quote(table.Name), strings.Join(cols, ",\n\t"))
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", table.Name, err)
	}

	s.created[table.Name] = true
	s.logger.Debug().Str("table", table.Name).Str("disposition", string(table.Disposition)).Msg("Table ready")
	return nil
}

// Write implements Sink.
func (s *SQLSink) Write(ctx context.Context, table Table, loadID string, page record.Page) error {
	if err := table.Validate(); err != nil {
		return err
	}
	rows, err := prepare(table, page)
	if err != nil {
		return err
	}
	if table.Disposition == SCD2 {
		s.stage.add(table.Name, loadID, rows)
		return nil
	}
	if len(rows) == 0 {
		return nil
	}
	if err := s.ensureTable(ctx, table); err != nil {
		return err
	}

	d := s.db.Dialect
	columns := []string{"_key", "_load_id", "_loaded_at", "data"}
	var stmt string
	if table.Disposition == Merge {
		rows = dedupe(rows)
		stmt = d.Upsert(table.Name, columns, []string{"_key"}, columns[1:])
	} else {
		stmt = d.Rebind(fmt.Sprintf("INSERT INTO %s (_key, _load_id, _loaded_at, data) VALUES (?, ?, ?, ?)", d.Quote(table.Name)))
	}

	loadedAt := timestamp(s.now())
	return s.inTx(ctx, func(tx *sql.Tx) error {
		prepared, err := tx.PrepareContext(ctx, stmt)
		if err != nil {
			return fmt.Errorf("prepare %s: %w", table.Name, err)
		}
		defer prepared.Close()

		for _, r := range rows {
			var key any = r.key
			if r.key == "" {
				key = nil
			}
			if _, err := prepared.ExecContext(ctx, key, loadID, loadedAt, string(r.data)); err != nil {
				return fmt.Errorf("write %s: %w", table.Name, err)
			}
		}
		return nil
	})
}

// Complete implements Sink.
func (s *SQLSink) Complete(ctx context.Context, table Table, loadID string) error {
	if table.Disposition != SCD2 {
		return nil
	}
	if err := s.ensureTable(ctx, table); err != nil {
		return err
	}

	snapshot := s.stage.take(table.Name, loadID)
	d := s.db.Dialect
	name := d.Quote(table.Name)
	now := timestamp(s.now())

	return s.inTx(ctx, func(tx *sql.Tx) error {
		current, err := s.activeVersions(ctx, tx, name)
		if err != nil {
			return err
		}

		closeKeys, insert := reconcile(current, snapshot)

		closeStmt := d.Rebind(fmt.Sprintf("UPDATE %s SET _valid_to = ? WHERE _key = ? AND _valid_to IS NULL", name))
		for _, key := range closeKeys {
			if _, err := tx.ExecContext(ctx, closeStmt, now, key); err != nil {
				return fmt.Errorf("close %s version %s: %w", table.Name, key, err)
			}
		}

		insertStmt := d.Rebind(fmt.Sprintf(
			"INSERT INTO %s (_key, _hash, _load_id, _loaded_at, _valid_from, _valid_to, data) VALUES (?, ?, ?, ?, ?, NULL, ?)", name))
		for _, r := range insert {
			if _, err := tx.ExecContext(ctx, insertStmt, r.key, r.hash, loadID, now, now, string(r.data)); err != nil {
				return fmt.Errorf("insert %s version %s: %w", table.Name, r.key, err)
			}
		}

		s.logger.Info().
			Str("table", table.Name).
			Str("load_id", loadID).
			Int("closed", len(closeKeys)).
			Int("inserted", len(insert)).
			Msg("SCD2 load reconciled")
		return nil
	})
}

func (s *SQLSink) activeVersions(ctx context.Context, tx *sql.Tx, name string) ([]active, error) {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf("SELECT _key, _hash FROM %s WHERE _valid_to IS NULL", name))
	if err != nil {
		return nil, fmt.Errorf("read active versions: %w", err)
	}
	defer rows.Close()

	var out []active
	for rows.Next() {
		var a active
		if err := rows.Scan(&a.key, &a.hash); err != nil {
			return nil, fmt.Errorf("scan active version: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLSink) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Close implements Sink.
// Abort drops the staged rows of an SCD2 load.
func (s *SQLSink) Abort(_ context.Context, table Table, loadID string) error {
	s.stage.drop(table.Name, loadID)
	return nil
}

func (s *SQLSink) Close() error {
	return s.db.Close()
}
