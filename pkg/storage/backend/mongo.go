package backend

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/matzehuels/trek/pkg/errors"
)

// Mongo implements a MongoDB-backed backend for production
// deployments. Each node record is one document in a single
// collection, keyed by trajectory name and node full name, with the
// parent full name denormalized for child listings.
type Mongo struct {
	client *mongo.Client
	nodes  *mongo.Collection
}

const (
	mongoDatabase   = "trek"
	mongoCollection = "nodes"
)

// mongoDoc wraps a Record with its lookup keys.
type mongoDoc struct {
	Traj   string `bson:"traj"`
	Parent string `bson:"parent"`
	Record Record `bson:"record"`
}

// NewMongo connects to the MongoDB deployment at uri and verifies the
// connection.
func NewMongo(ctx context.Context, uri string) (*Mongo, error) {
	if uri == "" {
		uri = "mongodb://localhost:27017"
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStorage, err, "connect to mongodb at %s", uri)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, errors.Wrap(errors.ErrCodeStorage, err, "ping mongodb at %s", uri)
	}
	return &Mongo{
		client: client,
		nodes:  client.Database(mongoDatabase).Collection(mongoCollection),
	}, nil
}

func mongoKey(traj, fullName string) bson.M {
	return bson.M{"traj": traj, "record.full_name": fullName}
}

// WriteNode upserts one node record.
func (m *Mongo) WriteNode(ctx context.Context, traj string, rec Record) error {
	parent, _ := parentOf(rec.FullName)
	doc := mongoDoc{Traj: traj, Parent: parent, Record: rec}
	_, err := m.nodes.ReplaceOne(ctx, mongoKey(traj, rec.FullName), doc,
		options.Replace().SetUpsert(true))
	if err != nil {
		return errors.Wrap(errors.ErrCodeStorage, err, "store node %q", rec.FullName)
	}
	return nil
}

// ReadNode reads one node record.
func (m *Mongo) ReadNode(ctx context.Context, traj, fullName string) (Record, error) {
	var doc mongoDoc
	err := m.nodes.FindOne(ctx, mongoKey(traj, fullName)).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return Record{}, errors.New(errors.ErrCodeNotFound,
			"trajectory %q has no stored node %q", traj, fullName)
	}
	if err != nil {
		return Record{}, errors.Wrap(errors.ErrCodeStorage, err, "read node %q", fullName)
	}
	return doc.Record, nil
}

// ListChildren returns the names of the direct children of fullName.
func (m *Mongo) ListChildren(ctx context.Context, traj, fullName string) ([]string, error) {
	filter := bson.M{"traj": traj, "parent": fullName}
	if fullName == "" {
		// The root's own document also has parent "", so exclude it.
		filter["record.full_name"] = bson.M{"$ne": ""}
	}
	cur, err := m.nodes.Find(ctx, filter,
		options.Find().SetProjection(bson.M{"record.full_name": 1}))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStorage, err, "list children of %q", fullName)
	}
	defer cur.Close(ctx)

	names := []string{}
	for cur.Next(ctx) {
		var doc mongoDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, errors.Wrap(errors.ErrCodeStorage, err, "decode child of %q", fullName)
		}
		names = append(names, lastSegment(doc.Record.FullName))
	}
	if err := cur.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeStorage, err, "list children of %q", fullName)
	}
	return names, nil
}

// DeleteNode removes one node record.
func (m *Mongo) DeleteNode(ctx context.Context, traj, fullName string) error {
	if _, err := m.nodes.DeleteOne(ctx, mongoKey(traj, fullName)); err != nil {
		return errors.Wrap(errors.ErrCodeStorage, err, "delete node %q", fullName)
	}
	return nil
}

// ListTrajectories returns the names of all stored trajectories.
func (m *Mongo) ListTrajectories(ctx context.Context) ([]string, error) {
	values, err := m.nodes.Distinct(ctx, "traj", bson.M{})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStorage, err, "list trajectories")
	}
	names := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			names = append(names, s)
		}
	}
	return names, nil
}

// Close disconnects from MongoDB.
func (m *Mongo) Close() error {
	return m.client.Disconnect(context.Background())
}

// Ensure Mongo implements Backend.
var _ Backend = (*Mongo)(nil)
