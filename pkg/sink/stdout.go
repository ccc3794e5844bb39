package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/Sternrassler/shopify-source/pkg/record"
)

// WriterSink writes JSON lines of {"table", "load_id", "key", "data"} to an
// io.Writer. It is meant for dry runs. The writer is not closed.
type WriterSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

type line struct {
	Table  string          `json:"table"`
	LoadID string          `json:"load_id"`
	Key    string          `json:"key,omitempty"`
	Data   json.RawMessage `json:"data"`
}

// NewWriterSink creates a sink writing to w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{enc: json.NewEncoder(w)}
}

// Write implements Sink.
func (s *WriterSink) Write(_ context.Context, table Table, loadID string, page record.Page) error {
	if err := table.Validate(); err != nil {
		return err
	}
	rows, err := prepare(table, page)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		if err := s.enc.Encode(line{Table: table.Name, LoadID: loadID, Key: r.key, Data: r.data}); err != nil {
			return fmt.Errorf("write %s: %w", table.Name, err)
		}
	}
	return nil
}

// Complete implements Sink.
func (s *WriterSink) Complete(context.Context, Table, string) error {
	return nil
}

// Close implements Sink.
// Abort is a no-op; lines are written as they arrive.
func (s *WriterSink) Abort(context.Context, Table, string) error {
	return nil
}

func (s *WriterSink) Close() error {
	return nil
}
