// Package mongostore persists session records in MongoDB, keyed by an
// owner name, for deployments where several workers share sessions.
package mongostore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"go.pilab.hu/authflow/domain"
)

// SessionsCollection is the collection holding client session records.
const SessionsCollection = "authflow_sessions"

type sessionDocument struct {
	Owner  string                `bson:"_id"`
	Record *domain.SessionRecord `bson:"record"`
}

// MongoStore implements store.SessionStore using MongoDB. One document
// per owner; ReplaceOne with upsert keeps writes atomic.
type MongoStore struct {
	collection *mongo.Collection
	owner      string
}

// NewMongoStore creates a store writing to db's session collection under
// the given owner key.
func NewMongoStore(db *mongo.Database, owner string) *MongoStore {
	return &MongoStore{
		collection: db.Collection(SessionsCollection),
		owner:      owner,
	}
}

// Save implements store.SessionStore.Save.
func (m *MongoStore) Save(ctx context.Context, record *domain.SessionRecord) error {
	doc := sessionDocument{Owner: m.owner, Record: record}
	opts := options.Replace().SetUpsert(true)
	if _, err := m.collection.ReplaceOne(ctx, bson.M{"_id": m.owner}, doc, opts); err != nil {
		return fmt.Errorf("failed to upsert session document: %w", err)
	}
	return nil
}

// Load implements store.SessionStore.Load.
func (m *MongoStore) Load(ctx context.Context) (*domain.SessionRecord, error) {
	var doc sessionDocument
	err := m.collection.FindOne(ctx, bson.M{"_id": m.owner}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session document: %w", err)
	}
	return doc.Record, nil
}

// Clear implements store.SessionStore.Clear.
func (m *MongoStore) Clear(ctx context.Context) error {
	if _, err := m.collection.DeleteOne(ctx, bson.M{"_id": m.owner}); err != nil {
		return fmt.Errorf("failed to delete session document: %w", err)
	}
	return nil
}
