package checkpoint

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// snapshotDoc is one node's checkpoint snapshot, grounded on the
// teacher's YCSBDataMongo document shape (storage/mongo.go) - an id,
// a payload, stripped of the row-store's lock-owner bookkeeping this
// domain has no use for.
type snapshotDoc struct {
	ID           string `bson:"_id"`
	CheckpointID int64  `bson:"checkpoint_id"`
	NodeID       string `bson:"node_id"`
	Snapshot     string `bson:"snapshot"`
}

// MongoStore is the Mongo-backed sibling of PostgresStore: another
// supplemental, optional durability target for the same checkpoint
// snapshots (spec.md §4.3 [ADD]).
type MongoStore struct {
	ctx        context.Context
	collection *mongo.Collection
}

func NewMongoStore(ctx context.Context, uri string, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo checkpoint store: %w", err)
	}
	coll := client.Database(database).Collection("pbft_checkpoints")
	return &MongoStore{ctx: ctx, collection: coll}, nil
}

func (m *MongoStore) upsert(id string, doc snapshotDoc) error {
	opts := options.Replace().SetUpsert(true)
	_, err := m.collection.ReplaceOne(m.ctx, bson.M{"_id": id}, doc, opts)
	return err
}

func (m *MongoStore) AppendLocal(nodeID string, checkpointID int64, text string) error {
	id := fmt.Sprintf("%d:%s", checkpointID, nodeID)
	return m.upsert(id, snapshotDoc{ID: id, CheckpointID: checkpointID, NodeID: nodeID, Snapshot: text})
}

// WriteFinal concatenates in the canonical id order the caller already
// computed (replica/state.go's canonicalIDOrder), matching FileStore.
func (m *MongoStore) WriteFinal(checkpointID int64, textsByNode map[string]string, order []string) (string, error) {
	var b strings.Builder
	for _, id := range order {
		b.WriteString(textsByNode[id])
		b.WriteString("\n")
	}
	final := b.String()
	docID := fmt.Sprintf("%d:final", checkpointID)
	err := m.upsert(docID, snapshotDoc{ID: docID, CheckpointID: checkpointID, NodeID: "__final__", Snapshot: final})
	return final, err
}

func (m *MongoStore) WriteRecovered(nodeID string, text string) error {
	id := "recovered:" + nodeID
	return m.upsert(id, snapshotDoc{ID: id, CheckpointID: -1, NodeID: nodeID, Snapshot: text})
}

var _ Store = (*MongoStore)(nil)
