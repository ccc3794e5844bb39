// Package sink writes resource pages into tables named after the resources.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/Sternrassler/shopify-source/pkg/record"
)

// Disposition tells a sink how rows combine with what is already stored.
type Disposition string

const (
	// Append inserts every row.
	Append Disposition = "append"

	// Merge upserts rows by primary key.
	Merge Disposition = "merge"

	// SCD2 keeps a version history per primary key: rows whose content
	// changed or that are absent from a load are closed, new versions open.
	SCD2 Disposition = "scd2"
)

// Table describes the destination of one resource.
type Table struct {
	Name        string
	PrimaryKey  []string
	Disposition Disposition
}

// Validate checks the table definition.
func (t Table) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("table name is required")
	}
	switch t.Disposition {
	case Append:
	case Merge, SCD2:
		if len(t.PrimaryKey) == 0 {
			return fmt.Errorf("table %s: %s requires a primary key", t.Name, t.Disposition)
		}
	default:
		return fmt.Errorf("table %s: unknown write disposition %q", t.Name, t.Disposition)
	}
	return nil
}

// Sink receives the pages of a load.
type Sink interface {
	// Write stores one page of a load.
	Write(ctx context.Context, table Table, loadID string, page record.Page) error

	// Complete finishes the load of a table. SCD2 tables are reconciled here.
	Complete(ctx context.Context, table Table, loadID string) error

	// Abort discards a load that will not be completed. Rows already written
	// for append and merge tables stay; staged SCD2 rows are dropped.
	Abort(ctx context.Context, table Table, loadID string) error

	// Close releases the destination.
	Close() error
}

// row is an item prepared for storage.
type row struct {
	key  string
	hash string
	data []byte
	item record.Item
}

func prepare(table Table, page record.Page) ([]row, error) {
	rows := make([]row, 0, len(page))
	for i, item := range page {
		data, err := json.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("table %s: encode item %d: %w", table.Name, i, err)
		}

		key := ""
		if len(table.PrimaryKey) > 0 {
			if key, err = record.Key(item, table.PrimaryKey); err != nil {
				return nil, fmt.Errorf("table %s: item %d: %w", table.Name, i, err)
			}
		}

		rows = append(rows, row{
			key:  key,
			hash: strconv.FormatUint(xxhash.Sum64(data), 16),
			data: data,
			item: item,
		})
	}
	return rows, nil
}

// dedupe keeps the last row of every key, in first-seen order.
func dedupe(rows []row) []row {
	index := make(map[string]int, len(rows))
	out := rows[:0:0]
	for _, r := range rows {
		if i, ok := index[r.key]; ok {
			out[i] = r
			continue
		}
		index[r.key] = len(out)
		out = append(out, r)
	}
	return out
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
