package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"dramadesk/internal/domain"
)

const postsCollection = "posts"

// MongoRepository implements PostRepository on a MongoDB collection.
//
// The client is a shared, lazily-initialized handle: the first operation
// connects, later operations reuse the connection, and a failed connect is
// retried on the next operation rather than cached. Connection establishment
// and per-query execution carry separate timeouts so a slow query is
// reported as ErrQueryTimeout, not as a connect failure.
type MongoRepository struct {
	uri      string
	database string
	log      logrus.FieldLogger

	connectTimeout time.Duration
	queryTimeout   time.Duration

	mu   sync.Mutex
	coll *mongo.Collection
}

// NewMongoRepository creates a repository for the given connection string
// and database. No connection is made until the first operation.
func NewMongoRepository(uri, database string, logger logrus.FieldLogger) *MongoRepository {
	return &MongoRepository{
		uri:            uri,
		database:       database,
		log:            logger.WithField("component", "post_repository"),
		connectTimeout: 10 * time.Second,
		queryTimeout:   5 * time.Second,
	}
}

// collection returns the shared posts collection, connecting on first use.
func (r *MongoRepository) collection(ctx context.Context) (*mongo.Collection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.coll != nil {
		return r.coll, nil
	}
	if r.uri == "" {
		return nil, fmt.Errorf("%w: MONGODB_URI is not set", ErrNotConfigured)
	}

	connectCtx, cancel := context.WithTimeout(ctx, r.connectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(r.uri))
	if err != nil {
		r.log.WithError(err).Error("Failed to connect to MongoDB")
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		// Disconnect the half-open client so the next call starts clean.
		_ = client.Disconnect(context.Background())
		r.log.WithError(err).Error("Failed to ping MongoDB")
		return nil, fmt.Errorf("failed to reach mongodb: %w", err)
	}

	r.log.WithField("database", r.database).Info("Connected to MongoDB")
	r.coll = client.Database(r.database).Collection(postsCollection)
	return r.coll, nil
}

// classify maps deadline errors onto ErrQueryTimeout so callers can tell
// "took too long, data may still exist" apart from a hard failure.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || mongo.IsTimeout(err) {
		return fmt.Errorf("%w: %v", ErrQueryTimeout, err)
	}
	return err
}

// Insert stores a post and returns the assigned ObjectID as a hex string.
func (r *MongoRepository) Insert(ctx context.Context, post domain.Post) (string, error) {
	log := r.log.WithField("title", post.Title)

	coll, err := r.collection(ctx)
	if err != nil {
		return "", err
	}

	// CreatedAt is a commit-time server decision; never trust the caller's.
	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now().UTC()
	}

	opCtx, cancel := context.WithTimeout(ctx, r.queryTimeout)
	defer cancel()

	res, err := coll.InsertOne(opCtx, post)
	if err != nil {
		log.WithError(err).Error("Failed to insert post")
		return "", fmt.Errorf("failed to insert post: %w", classify(err))
	}

	id, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", fmt.Errorf("unexpected inserted id type %T", res.InsertedID)
	}

	log.WithField("post_id", id.Hex()).Info("Post inserted")
	return id.Hex(), nil
}

// ListAll returns every post, newest first.
func (r *MongoRepository) ListAll(ctx context.Context) ([]domain.Post, error) {
	coll, err := r.collection(ctx)
	if err != nil {
		return nil, err
	}

	opCtx, cancel := context.WithTimeout(ctx, r.queryTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cur, err := coll.Find(opCtx, bson.D{}, opts)
	if err != nil {
		r.log.WithError(err).Error("Failed to query posts")
		return nil, fmt.Errorf("failed to query posts: %w", classify(err))
	}
	defer cur.Close(opCtx)

	var posts []domain.Post
	if err := cur.All(opCtx, &posts); err != nil {
		r.log.WithError(err).Error("Failed to decode posts")
		return nil, fmt.Errorf("failed to decode posts: %w", classify(err))
	}

	r.log.WithField("post_count", len(posts)).Debug("Posts retrieved")
	return posts, nil
}

// DeleteAll removes every post and returns the deleted count.
func (r *MongoRepository) DeleteAll(ctx context.Context) (int64, error) {
	coll, err := r.collection(ctx)
	if err != nil {
		return 0, err
	}

	opCtx, cancel := context.WithTimeout(ctx, r.queryTimeout)
	defer cancel()

	res, err := coll.DeleteMany(opCtx, bson.D{})
	if err != nil {
		r.log.WithError(err).Error("Failed to delete posts")
		return 0, fmt.Errorf("failed to delete posts: %w", classify(err))
	}

	r.log.WithField("deleted_count", res.DeletedCount).Info("All posts deleted")
	return res.DeletedCount, nil
}

// Close disconnects the shared client if it was ever opened.
func (r *MongoRepository) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.coll == nil {
		return nil
	}
	client := r.coll.Database().Client()
	r.coll = nil
	if err := client.Disconnect(ctx); err != nil {
		r.log.WithError(err).Error("Error disconnecting from MongoDB")
		return err
	}
	r.log.Info("Disconnected from MongoDB")
	return nil
}
