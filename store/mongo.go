package store

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/phillip/giftpots-go/apperr"
)

type MongoOptions struct {
	// Timeout bounds every single store operation.
	Timeout time.Duration
	// Transactions requires a replica set. Standalone servers run
	// WithTransaction bodies without one.
	Transactions bool
}

type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	opts   MongoOptions
}

func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, apperr.StoreUnavailable(err, "connect mongo")
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, apperr.StoreUnavailable(err, "ping mongo")
	}
	return client, nil
}

func NewMongoStore(client *mongo.Client, dbName string, opts MongoOptions) *MongoStore {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	return &MongoStore{client: client, db: client.Database(dbName), opts: opts}
}

func (s *MongoStore) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opts.Timeout)
}

func (s *MongoStore) Find(ctx context.Context, table string, q Query, out interface{}) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	findOpts := options.Find()
	if len(q.Sort) > 0 {
		sortDoc := bson.D{}
		for _, srt := range q.Sort {
			dir := 1
			if srt.Desc {
				dir = -1
			}
			sortDoc = append(sortDoc, bson.E{Key: srt.Field, Value: dir})
		}
		findOpts.SetSort(sortDoc)
	}
	if q.Limit > 0 {
		findOpts.SetLimit(q.Limit)
	}

	cursor, err := s.db.Collection(table).Find(ctx, q.Filter.toBSON(), findOpts)
	if err != nil {
		return wrapMongoErr(err, "find "+table)
	}
	if err := cursor.All(ctx, out); err != nil {
		return wrapMongoErr(err, "decode "+table)
	}
	return nil
}

func (s *MongoStore) Insert(ctx context.Context, table string, docs ...interface{}) error {
	if len(docs) == 0 {
		return nil
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if _, err := s.db.Collection(table).InsertMany(ctx, docs); err != nil {
		return wrapMongoErr(err, "insert "+table)
	}
	return nil
}

func (s *MongoStore) Patch(ctx context.Context, table string, changes map[string]interface{}, f Filter) (int64, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	res, err := s.db.Collection(table).UpdateMany(ctx, f.toBSON(), bson.M{"$set": bson.M(changes)})
	if err != nil {
		return 0, wrapMongoErr(err, "patch "+table)
	}
	return res.MatchedCount, nil
}

func (s *MongoStore) Delete(ctx context.Context, table string, f Filter) (int64, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	res, err := s.db.Collection(table).DeleteMany(ctx, f.toBSON())
	if err != nil {
		return 0, wrapMongoErr(err, "delete "+table)
	}
	return res.DeletedCount, nil
}

func (s *MongoStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if !s.opts.Transactions || mongo.SessionFromContext(ctx) != nil {
		return fn(ctx)
	}

	sess, err := s.client.StartSession()
	if err != nil {
		return wrapMongoErr(err, "start session")
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	if err != nil {
		if _, ok := apperr.As(err); ok {
			return err
		}
		return wrapMongoErr(err, "commit transaction")
	}
	return nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return apperr.StoreUnavailable(err, "ping mongo")
	}
	return nil
}

// EnsureSchema creates the collections' indexes for SchemaVersion. It also
// materializes the collections, which multi-document transactions need.
func (s *MongoStore) EnsureSchema(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		TablePots: {
			{Keys: bson.D{{Key: "slug", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "is_active", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		TablePotItems: {
			{Keys: bson.D{{Key: "pot_id", Value: 1}, {Key: "sort_order", Value: 1}}},
		},
		TableSessions: {
			{Keys: bson.D{{Key: "gateway_order_id", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "paid_at", Value: -1}}},
		},
		TableAllocations: {
			{Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "position", Value: 1}}},
			{Keys: bson.D{{Key: "pot_id", Value: 1}, {Key: "status", Value: 1}}},
		},
		TableWebhookEvents: {
			{Keys: bson.D{{Key: "gateway_event_id", Value: 1}}},
		},
	}

	for _, table := range Tables {
		ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		_, err := s.db.Collection(table).Indexes().CreateMany(ctx, indexes[table])
		cancel()
		if err != nil {
			return apperr.StoreUnavailable(err, "ensure schema v"+strconv.Itoa(SchemaVersion)+" on "+table)
		}
	}
	return nil
}

func wrapMongoErr(err error, op string) error {
	if errors.Is(err, mongo.ErrClientDisconnected) || mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return apperr.StoreUnavailable(err, op)
	}
	return apperr.Store(err, op)
}
