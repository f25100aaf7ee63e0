// Package mongostore persists analytics records and day counters in MongoDB,
// using the collection and field names of the legacy web app so an
// existing database can be reused.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/manishdashsharma/gitview/internal/db"
	"github.com/manishdashsharma/gitview/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	usersCollection        = "users"
	visitorsCollection     = "visitors"
	profileViewsCollection = "profileviews"
)

// Store is a MongoDB backed store
type Store struct {
	client   *mongo.Client
	users    *mongo.Collection
	visitors *mongo.Collection
	views    *mongo.Collection
}

// userDoc is the cached record document, keyed uniquely by username
type userDoc struct {
	Username   string                 `bson:"username"`
	GithubData models.AnalyticsRecord `bson:"githubData"`
	CreatedAt  time.Time              `bson:"createdAt"`
	UpdatedAt  time.Time              `bson:"updatedAt"`
}

// New connects to uri and pings the primary
func New(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	d := client.Database(database)
	return &Store{
		client:   client,
		users:    d.Collection(usersCollection),
		visitors: d.Collection(visitorsCollection),
		views:    d.Collection(profileViewsCollection),
	}, nil
}

// Open connects with exponential backoff, giving up after attempts tries
func Open(ctx context.Context, uri, database string, attempts int, logger *log.Logger) (*Store, error) {
	var s *Store
	err := db.WithRetry(ctx, attempts, logger, func() error {
		var err error
		s, err = New(ctx, uri, database)
		return err
	})
	return s, err
}

// Initialize creates the unique indexes the cache and counters rely on
func (s *Store) Initialize(ctx context.Context) error {
	indexes := []struct {
		coll *mongo.Collection
		keys bson.D
	}{
		{s.users, bson.D{{Key: "username", Value: 1}}},
		{s.visitors, bson.D{{Key: "date", Value: 1}}},
		{s.views, bson.D{{Key: "username", Value: 1}, {Key: "date", Value: 1}}},
	}

	for _, idx := range indexes {
		_, err := idx.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    idx.keys,
			Options: options.Index().SetUnique(true),
		})
		if err != nil {
			return fmt.Errorf("failed to create index on %s: %w", idx.coll.Name(), err)
		}
	}
	return nil
}

// GetProfile gets the cached record for a username, or nil if there is none
func (s *Store) GetProfile(ctx context.Context, username string) (*models.AnalyticsRecord, error) {
	raw, err := s.users.FindOne(ctx, bson.M{"username": username}).Raw()
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	doc, err := decodeUserDoc(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}
	return &doc.GithubData, nil
}

// SaveProfile stores a record unless a document for the username already
// exists that was cached after staleBefore. It reports whether this write won.
func (s *Store) SaveProfile(ctx context.Context, username string, rec *models.AnalyticsRecord, staleBefore time.Time) (bool, error) {
	doc := userDoc{
		Username:   username,
		GithubData: *rec,
		CreatedAt:  rec.CachedAt,
		UpdatedAt:  rec.CachedAt,
	}

	// A fresh document fails the filter, so the upsert collides with the
	// unique username index and the write is dropped.
	filter := bson.M{"username": username, "createdAt": bson.M{"$lte": staleBefore}}
	res, err := s.users.ReplaceOne(ctx, filter, doc, options.Replace().SetUpsert(true))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to save profile: %w", err)
	}
	return res.UpsertedCount > 0 || res.ModifiedCount > 0, nil
}

func (s *Store) counterFilter(username, date string) (*mongo.Collection, bson.M) {
	if username == "" {
		return s.visitors, bson.M{"date": date}
	}
	return s.views, bson.M{"username": username, "date": date}
}

// IncrementCounter atomically adds one to the (username, date) counter and
// returns the new count. An empty username addresses the global visit counter.
func (s *Store) IncrementCounter(ctx context.Context, username, date string, at time.Time) (int64, error) {
	coll, filter := s.counterFilter(username, date)
	update := bson.M{
		"$inc":         bson.M{"count": int64(1)},
		"$set":         bson.M{"updatedAt": at},
		"$setOnInsert": bson.M{"createdAt": at},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var row models.DayCounter
	err := coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&row)
	if mongo.IsDuplicateKeyError(err) {
		// Two upserts raced to create the row; the retry finds it and increments.
		err = coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&row)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to increment counter: %w", err)
	}
	return row.Count, nil
}

// CounterRange gets the counter documents with from <= date <= to, oldest first
func (s *Store) CounterRange(ctx context.Context, username, from, to string) ([]models.DayCounter, error) {
	coll, filter := s.counterFilter(username, "")
	filter["date"] = bson.M{"$gte": from, "$lte": to}

	cur, err := coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "date", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to read counters: %w", err)
	}

	var rows []models.DayCounter
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to read counters: %w", err)
	}
	return rows, nil
}

// CounterTotal sums every day of a counter
func (s *Store) CounterTotal(ctx context.Context, username string) (int64, error) {
	coll, match := s.counterFilter(username, "")
	delete(match, "date")

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.M{"_id": nil, "total": bson.M{"$sum": "$count"}}}},
	}

	cur, err := coll.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, fmt.Errorf("failed to sum counters: %w", err)
	}

	var out []struct {
		Total int64 `bson:"total"`
	}
	if err := cur.All(ctx, &out); err != nil {
		return 0, fmt.Errorf("failed to sum counters: %w", err)
	}
	if len(out) == 0 {
		return 0, nil
	}
	return out[0].Total, nil
}

// Ping checks that the primary is reachable
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client
func (s *Store) Close() error {
	return s.client.Disconnect(context.Background())
}
