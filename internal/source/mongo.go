package source

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/davexpro/hybrid-backup/internal/config"
)

const defaultBatchSize = 200

// Store is the document-oriented primary store.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	cfg    config.SourceConfig
}

// Connect dials the primary store and verifies it with a ping.
func Connect(ctx context.Context, cfg config.SourceConfig) (*Store, error) {
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetReadPreference(readpref.SecondaryPreferred())

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to source store: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping source store: %w", err)
	}

	return &Store{client: client, db: client.Database(cfg.Database), cfg: cfg}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) Users() Enumerator[UserAccount] {
	return newCollection[UserAccount](s.db, s.cfg.Collections.Users, bson.D{{Key: "uid", Value: 1}})
}

func (s *Store) Profiles() Enumerator[UserProfile] {
	return newCollection[UserProfile](s.db, s.cfg.Collections.Profiles, bson.D{{Key: "uid", Value: 1}})
}

func (s *Store) Emotions() Enumerator[EmotionEntry] {
	return newCollection[EmotionEntry](s.db, s.cfg.Collections.Emotions,
		bson.D{{Key: "uid", Value: 1}, {Key: "date", Value: 1}})
}

func (s *Store) Sessions() Enumerator[CounselingSession] {
	return newCollection[CounselingSession](s.db, s.cfg.Collections.Sessions,
		bson.D{{Key: "uid", Value: 1}, {Key: "sessionId", Value: 1}})
}

type collection[T any] struct {
	coll *mongo.Collection
	sort bson.D
}

func newCollection[T any](db *mongo.Database, name string, sort bson.D) *collection[T] {
	return &collection[T]{coll: db.Collection(name), sort: sort}
}

func (c *collection[T]) Name() string { return c.coll.Name() }

func (c *collection[T]) Open(ctx context.Context) (Cursor[T], error) {
	opts := options.Find().
		SetSort(c.sort).
		SetBatchSize(defaultBatchSize).
		SetNoCursorTimeout(true)

	cur, err := c.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, err
	}
	return &mongoCursor[T]{cur: cur}, nil
}

type mongoCursor[T any] struct {
	cur *mongo.Cursor
}

func (m *mongoCursor[T]) Next(ctx context.Context) bool {
	return m.cur.Next(ctx)
}

func (m *mongoCursor[T]) Decode() (T, error) {
	var v T
	err := m.cur.Decode(&v)
	return v, err
}

func (m *mongoCursor[T]) ID() string {
	raw := m.cur.Current.Lookup("_id")
	if s, ok := raw.StringValueOK(); ok {
		return s
	}
	if oid, ok := raw.ObjectIDOK(); ok {
		return oid.Hex()
	}
	return raw.String()
}

func (m *mongoCursor[T]) Err() error {
	return m.cur.Err()
}

func (m *mongoCursor[T]) Close(ctx context.Context) error {
	return m.cur.Close(ctx)
}
