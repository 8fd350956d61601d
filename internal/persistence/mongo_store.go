package persistence

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mdmestre/enroller/pkg/api"
)

// MongoLedger is a Ledger backed by MongoDB. Each campaign is a single
// document, replaced whole on every Save.
type MongoLedger struct {
	coll *mongo.Collection
	name string
}

type mongoRecord struct {
	ID     string   `bson:"_id"`
	Added  []string `bson:"added"`
	Linked []string `bson:"linked"`
}

// NewMongoLedger returns a MongoLedger storing the campaign called name in
// the "ledgers" collection of dbName.
func NewMongoLedger(client *mongo.Client, dbName, name string) *MongoLedger {
	if name == "" {
		name = "default"
	}
	return &MongoLedger{
		coll: client.Database(dbName).Collection("ledgers"),
		name: name,
	}
}

func (l *MongoLedger) Load(ctx context.Context) (*api.Record, error) {
	var doc mongoRecord
	err := l.coll.FindOne(ctx, bson.M{"_id": l.name}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return api.NewRecord(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("find ledger: %w", err)
	}
	return fromWire(wireRecord{Added: doc.Added, Linked: doc.Linked}), nil
}

func (l *MongoLedger) Save(ctx context.Context, rec *api.Record) error {
	w := toWire(rec)
	doc := mongoRecord{ID: l.name, Added: w.Added, Linked: w.Linked}
	_, err := l.coll.ReplaceOne(ctx, bson.M{"_id": l.name}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("replace ledger: %w", err)
	}
	return nil
}
