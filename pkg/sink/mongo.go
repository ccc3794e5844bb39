package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/Sternrassler/shopify-source/pkg/record"
)

// DefaultMongoDatabase is used when the URI names no database.
const DefaultMongoDatabase = "shopify"

// MongoSink stores one collection per table. Merge documents use the joined
// primary key as _id; SCD2 documents carry _key, _hash, _valid_from and
// _valid_to like the SQL tables.
type MongoSink struct {
	client *mongo.Client
	db     *mongo.Database
	stage  *stage
	logger zerolog.Logger
	now    func() time.Time
}

// NewMongoSink connects to uri and writes into database.
func NewMongoSink(ctx context.Context, uri, database string) (*MongoSink, error) {
	if database == "" {
		database = DefaultMongoDatabase
	}

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return &MongoSink{
		client: client,
		db:     client.Database(database),
		stage:  newStage(),
		logger: log.With().Str("component", "mongo-sink").Str("database", database).Logger(),
		now:    time.Now,
	}, nil
}

func (m *MongoSink) document(r row, loadID string, loadedAt time.Time) bson.M {
	doc := make(bson.M, len(r.item)+3)
	for k, v := range r.item {
		doc[k] = v
	}
	doc["_load_id"] = loadID
	doc["_loaded_at"] = loadedAt
	if r.key != "" {
		doc["_key"] = r.key
	}
	return doc
}

// Write implements Sink.
func (m *MongoSink) Write(ctx context.Context, table Table, loadID string, page record.Page) error {
	if err := table.Validate(); err != nil {
		return err
	}
	rows, err := prepare(table, page)
	if err != nil {
		return err
	}
	if table.Disposition == SCD2 {
		m.stage.add(table.Name, loadID, rows)
		return nil
	}
	if len(rows) == 0 {
		return nil
	}

	coll := m.db.Collection(table.Name)
	loadedAt := m.now().UTC()

	if table.Disposition == Append {
		docs := make([]any, len(rows))
		for i, r := range rows {
			docs[i] = m.document(r, loadID, loadedAt)
		}
		if _, err := coll.InsertMany(ctx, docs); err != nil {
			return fmt.Errorf("insert into %s: %w", table.Name, err)
		}
		return nil
	}

	models := make([]mongo.WriteModel, 0, len(rows))
	for _, r := range dedupe(rows) {
		doc := m.document(r, loadID, loadedAt)
		doc["_id"] = r.key
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": r.key}).
			SetReplacement(doc).
			SetUpsert(true))
	}
	if _, err := coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false)); err != nil {
		return fmt.Errorf("merge into %s: %w", table.Name, err)
	}
	return nil
}

// Complete implements Sink.
func (m *MongoSink) Complete(ctx context.Context, table Table, loadID string) error {
	if table.Disposition != SCD2 {
		return nil
	}

	coll := m.db.Collection(table.Name)
	snapshot := m.stage.take(table.Name, loadID)
	now := m.now().UTC()

	cursor, err := coll.Find(ctx, bson.M{"_valid_to": nil},
		options.Find().SetProjection(bson.M{"_key": 1, "_hash": 1}))
	if err != nil {
		return fmt.Errorf("read active versions of %s: %w", table.Name, err)
	}
	var docs []struct {
		Key  string `bson:"_key"`
		Hash string `bson:"_hash"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return fmt.Errorf("decode active versions of %s: %w", table.Name, err)
	}
	current := make([]active, len(docs))
	for i, d := range docs {
		current[i] = active{key: d.Key, hash: d.Hash}
	}

	closeKeys, insert := reconcile(current, snapshot)

	if len(closeKeys) > 0 {
		_, err := coll.UpdateMany(ctx,
			bson.M{"_key": bson.M{"$in": closeKeys}, "_valid_to": nil},
			bson.M{"$set": bson.M{"_valid_to": now}})
		if err != nil {
			return fmt.Errorf("close versions of %s: %w", table.Name, err)
		}
	}

	if len(insert) > 0 {
		newDocs := make([]any, len(insert))
		for i, r := range insert {
			doc := m.document(r, loadID, now)
			doc["_hash"] = r.hash
			doc["_valid_from"] = now
			doc["_valid_to"] = nil
			newDocs[i] = doc
		}
		if _, err := coll.InsertMany(ctx, newDocs); err != nil {
			return fmt.Errorf("insert versions of %s: %w", table.Name, err)
		}
	}

	m.logger.Info().
		Str("table", table.Name).
		Str("load_id", loadID).
		Int("closed", len(closeKeys)).
		Int("inserted", len(insert)).
		Msg("SCD2 load reconciled")
	return nil
}

// Close implements Sink.
// Abort drops the staged rows of an SCD2 load.
func (m *MongoSink) Abort(_ context.Context, table Table, loadID string) error {
	m.stage.drop(table.Name, loadID)
	return nil
}

func (m *MongoSink) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
