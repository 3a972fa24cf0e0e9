package mongostore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"navy-registrar/internal/domain"
)

// CollectionName is the collection holding conversation documents.
const CollectionName = "conversations"

// collectionAPI is the subset of *mongo.Collection used by Store.
type collectionAPI interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
}

type conversationDocument struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	UserID    string             `bson:"user_id"`
	Data      string             `bson:"data"` // JSON object
	CreatedAt time.Time          `bson:"created_at"`
}

// Store keeps conversation records in MongoDB.
type Store struct {
	coll collectionAPI
	now  func() time.Time
}

// Connect dials MongoDB and verifies the connection.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	if strings.TrimSpace(uri) == "" {
		return nil, errors.New("mongostore: uri must not be empty")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongostore: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongostore: ping: %w", err)
	}
	return client, nil
}

// EnsureIndexes creates the per-user recency index.
func EnsureIndexes(ctx context.Context, coll *mongo.Collection) error {
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "user_id", Value: 1},
			{Key: "created_at", Value: -1},
		},
	})
	if err != nil {
		return fmt.Errorf("mongostore: create index: %w", err)
	}
	return nil
}

// New returns a Store over the given collection.
func New(coll collectionAPI) (*Store, error) {
	if coll == nil {
		return nil, errors.New("mongostore: collection must not be nil")
	}
	return &Store{coll: coll, now: time.Now}, nil
}

func newestFirst() bson.D {
	return bson.D{
		{Key: "created_at", Value: -1},
		{Key: "_id", Value: -1},
	}
}

// LatestConversation returns the newest conversation data for a user, or an
// empty map when the user has none.
func (s *Store) LatestConversation(ctx context.Context, userID string) (map[string]any, error) {
	var doc conversationDocument
	err := s.coll.FindOne(ctx, bson.M{"user_id": userID}, options.FindOne().SetSort(newestFirst())).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("mongostore: LatestConversation: %w", err)
	}
	data, err := domain.DecodeData(doc.Data)
	if err != nil {
		return nil, fmt.Errorf("mongostore: LatestConversation: %w", err)
	}
	return data, nil
}

// AppendConversation inserts a new immutable conversation document.
func (s *Store) AppendConversation(ctx context.Context, userID string, data map[string]any) error {
	if strings.TrimSpace(userID) == "" {
		return errors.New("mongostore: AppendConversation: user id is required")
	}
	raw, err := domain.EncodeData(data)
	if err != nil {
		return fmt.Errorf("mongostore: AppendConversation: %w", err)
	}
	doc := conversationDocument{
		UserID:    userID,
		Data:      raw,
		CreatedAt: s.now().UTC(),
	}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("mongostore: AppendConversation: %w", err)
	}
	return nil
}

// ConversationHistory returns up to limit records for a user in chronological order.
func (s *Store) ConversationHistory(ctx context.Context, userID string, limit int) ([]domain.ConversationRecord, error) {
	opts := options.Find().SetSort(newestFirst())
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := s.coll.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongostore: ConversationHistory: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []conversationDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongostore: ConversationHistory: decode: %w", err)
	}

	records := make([]domain.ConversationRecord, len(docs))
	for i, doc := range docs {
		data, err := domain.DecodeData(doc.Data)
		if err != nil {
			return nil, fmt.Errorf("mongostore: ConversationHistory: %w", err)
		}
		// Reverse to chronological order.
		records[len(docs)-1-i] = domain.ConversationRecord{
			UserID:    doc.UserID,
			Data:      data,
			CreatedAt: doc.CreatedAt,
		}
	}
	return records, nil
}
