package sink

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Sternrassler/shopify-source/pkg/record"
)

// DefaultTopicPrefix prefixes topics when the DSN names none.
const DefaultTopicPrefix = "shopify"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes every item to the topic <prefix>.<table>, keyed by the
// joined primary key so that all versions of an entity share a partition.
// SCD2 tables are published as full snapshots on Complete.
type KafkaSink struct {
	writer messageWriter
	prefix string
	stage  *stage
	now    func() time.Time
}

// NewKafkaSink creates a sink publishing to brokers.
func NewKafkaSink(brokers []string, prefix string) *KafkaSink {
	return newKafkaSink(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		RequiredAcks:           kafka.RequireAll,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}, prefix)
}

func newKafkaSink(w messageWriter, prefix string) *KafkaSink {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return &KafkaSink{
		writer: w,
		prefix: prefix,
		stage:  newStage(),
		now:    time.Now,
	}
}

// Topic returns the topic of a table.
func (k *KafkaSink) Topic(table string) string {
	return k.prefix + "." + table
}

func (k *KafkaSink) publish(ctx context.Context, table Table, loadID string, rows []row) error {
	if len(rows) == 0 {
		return nil
	}

	now := k.now()
	msgs := make([]kafka.Message, len(rows))
	for i, r := range rows {
		msgs[i] = kafka.Message{
			Topic: k.Topic(table.Name),
			Key:   []byte(r.key),
			Value: r.data,
			Time:  now,
			Headers: []kafka.Header{
				{Key: "load_id", Value: []byte(loadID)},
				{Key: "disposition", Value: []byte(table.Disposition)},
				{Key: "hash", Value: []byte(r.hash)},
			},
		}
	}

	if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %s: %w", table.Name, err)
	}
	return nil
}

// Write implements Sink.
func (k *KafkaSink) Write(ctx context.Context, table Table, loadID string, page record.Page) error {
	if err := table.Validate(); err != nil {
		return err
	}
	rows, err := prepare(table, page)
	if err != nil {
		return err
	}
	if table.Disposition == SCD2 {
		k.stage.add(table.Name, loadID, rows)
		return nil
	}
	return k.publish(ctx, table, loadID, rows)
}

// Complete implements Sink.
func (k *KafkaSink) Complete(ctx context.Context, table Table, loadID string) error {
	if table.Disposition != SCD2 {
		return nil
	}
	return k.publish(ctx, table, loadID, k.stage.take(table.Name, loadID))
}

// Close implements Sink.
// Abort drops the staged snapshot of an SCD2 load; nothing was published.
func (k *KafkaSink) Abort(_ context.Context, table Table, loadID string) error {
	k.stage.drop(table.Name, loadID)
	return nil
}

func (k *KafkaSink) Close() error {
	return k.writer.Close()
}

// parseKafkaDSN reads kafka://broker1:9092,broker2:9092/prefix.
func parseKafkaDSN(dsn string) (brokers []string, prefix string, err error) {
	rest := strings.TrimPrefix(dsn, "kafka://")
	hosts, prefix, _ := strings.Cut(rest, "/")
	for _, h := range strings.Split(hosts, ",") {
		if h = strings.TrimSpace(h); h != "" {
			brokers = append(brokers, h)
		}
	}
	if len(brokers) == 0 {
		return nil, "", fmt.Errorf("kafka dsn %q names no brokers", dsn)
	}
	return brokers, strings.Trim(prefix, "/"), nil
}
