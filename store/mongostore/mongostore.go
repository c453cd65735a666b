// Package mongostore implements store.Store on MongoDB. Transactions need a
// replica set or sharded cluster.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kevinaaaquil/library/backend/store"
)

type Store struct {
	*queries
	Client *mongo.Client
	log    logrus.FieldLogger
}

var _ store.Store = (*Store)(nil)

// Open connects, pings and ensures indexes.
func Open(ctx context.Context, uri, dbName string, log logrus.FieldLogger) (*Store, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}
	s := &Store{
		queries: &queries{db: client.Database(dbName)},
		Client:  client,
		log:     log,
	}
	if err := s.EnsureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("ensure indexes: %w", err)
	}
	log.WithField("database", dbName).Info("connected to MongoDB")
	return s, nil
}

func (s *Store) WithTx(ctx context.Context, fn func(q store.Queries) error) error {
	sess, err := s.Client.StartSession()
	if err != nil {
		return err
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(&queries{db: s.db, sc: sc})
	})
	return err
}

func (s *Store) Ping(ctx context.Context) error {
	return s.Client.Ping(ctx, nil)
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.Client.Disconnect(ctx)
}

// queries runs against the database, inside the session when sc is set.
type queries struct {
	db *mongo.Database
	sc mongo.SessionContext
}

func (q *queries) ctx(ctx context.Context) context.Context {
	if q.sc != nil {
		return q.sc
	}
	return ctx
}

func (q *queries) Books() *mongo.Collection         { return q.db.Collection("books") }
func (q *queries) Readers() *mongo.Collection       { return q.db.Collection("readers") }
func (q *queries) Loans() *mongo.Collection         { return q.db.Collection("loans") }
func (q *queries) Reservations() *mongo.Collection  { return q.db.Collection("reservations") }
func (q *queries) Fines() *mongo.Collection         { return q.db.Collection("fines") }
func (q *queries) Notifications() *mongo.Collection { return q.db.Collection("notifications") }
func (q *queries) Users() *mongo.Collection         { return q.db.Collection("users") }

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return store.ErrNotFound
	}
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %v", store.ErrDuplicate, err)
	}
	var labeled mongo.LabeledError
	if errors.As(err, &labeled) && labeled.HasErrorLabel("TransientTransactionError") {
		return fmt.Errorf("%w: %v", store.ErrConflict, err)
	}
	return err
}

// findOne decodes a single document or returns store.ErrNotFound.
func findOne(ctx context.Context, c *mongo.Collection, filter any, dest any) error {
	return mapError(c.FindOne(ctx, filter).Decode(dest))
}

func findAll[T any](ctx context.Context, c *mongo.Collection, filter any, opts ...*options.FindOptions) ([]T, error) {
	cur, err := c.Find(ctx, filter, opts...)
	if err != nil {
		return nil, mapError(err)
	}
	defer cur.Close(ctx)
	out := []T{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, mapError(err)
	}
	return out, nil
}

func insert(ctx context.Context, c *mongo.Collection, doc any) error {
	_, err := c.InsertOne(ctx, doc)
	return mapError(err)
}

// updateMatched reports whether the filter matched a document.
func updateMatched(ctx context.Context, c *mongo.Collection, filter, update any) (bool, error) {
	res, err := c.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, mapError(err)
	}
	return res.MatchedCount == 1, nil
}

func count(ctx context.Context, c *mongo.Collection, filter any) (int, error) {
	n, err := c.CountDocuments(ctx, filter)
	return int(n), mapError(err)
}
