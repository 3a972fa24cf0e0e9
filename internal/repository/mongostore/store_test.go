package mongostore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type fakeCollection struct {
	inserted  []interface{}
	insertErr error

	findOneDoc interface{}
	findOneErr error
	lastFilter interface{}
	lastSort   interface{}

	findDocs  []interface{}
	findErr   error
	lastLimit *int64
}

func (f *fakeCollection) InsertOne(_ context.Context, document interface{}, _ ...*options.InsertOneOptions) (*mongo.InsertOneResult, error) {
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	f.inserted = append(f.inserted, document)
	return &mongo.InsertOneResult{}, nil
}

func (f *fakeCollection) FindOne(_ context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult {
	f.lastFilter = filter
	if len(opts) > 0 {
		f.lastSort = opts[0].Sort
	}
	doc := f.findOneDoc
	if doc == nil {
		doc = bson.D{}
	}
	return mongo.NewSingleResultFromDocument(doc, f.findOneErr, nil)
}

func (f *fakeCollection) Find(_ context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error) {
	f.lastFilter = filter
	if len(opts) > 0 {
		f.lastLimit = opts[0].Limit
		f.lastSort = opts[0].Sort
	}
	if f.findErr != nil {
		return nil, f.findErr
	}
	return mongo.NewCursorFromDocuments(f.findDocs, nil, nil)
}

func newTestStore(t *testing.T, coll *fakeCollection) *Store {
	t.Helper()
	s, err := New(coll)
	require.NoError(t, err)
	s.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestNew_NilCollection(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
}

func TestLatestConversation_HappyPath(t *testing.T) {
	coll := &fakeCollection{findOneDoc: conversationDocument{
		UserID:    "sailor",
		Data:      `{"ship_type":"Destroyer","crew_size":300}`,
		CreatedAt: time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC),
	}}
	s := newTestStore(t, coll)

	data, err := s.LatestConversation(context.Background(), "sailor")
	require.NoError(t, err)
	require.Equal(t, "Destroyer", data["ship_type"])
	require.Equal(t, int64(300), data["crew_size"])
	require.Equal(t, bson.M{"user_id": "sailor"}, coll.lastFilter)
	require.Equal(t, newestFirst(), coll.lastSort)
}

func TestLatestConversation_NoDocuments(t *testing.T) {
	s := newTestStore(t, &fakeCollection{findOneErr: mongo.ErrNoDocuments})

	data, err := s.LatestConversation(context.Background(), "sailor")
	require.NoError(t, err)
	require.NotNil(t, data)
	require.Empty(t, data)
}

func TestLatestConversation_FindError(t *testing.T) {
	s := newTestStore(t, &fakeCollection{findOneErr: errors.New("server selection timeout")})

	_, err := s.LatestConversation(context.Background(), "sailor")
	require.Error(t, err)
	require.Contains(t, err.Error(), "LatestConversation")
}

func TestAppendConversation_HappyPath(t *testing.T) {
	coll := &fakeCollection{}
	s := newTestStore(t, coll)

	err := s.AppendConversation(context.Background(), "sailor", map[string]any{"ship_name": "USS Kidd"})
	require.NoError(t, err)
	require.Len(t, coll.inserted, 1)

	doc := coll.inserted[0].(conversationDocument)
	require.Equal(t, "sailor", doc.UserID)
	require.JSONEq(t, `{"ship_name":"USS Kidd"}`, doc.Data)
	require.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), doc.CreatedAt)
}

func TestAppendConversation_Errors(t *testing.T) {
	coll := &fakeCollection{}
	s := newTestStore(t, coll)
	require.Error(t, s.AppendConversation(context.Background(), " ", map[string]any{}))
	require.Empty(t, coll.inserted)

	s = newTestStore(t, &fakeCollection{insertErr: errors.New("write concern")})
	err := s.AppendConversation(context.Background(), "sailor", map[string]any{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "write concern")
}

func TestConversationHistory_Chronological(t *testing.T) {
	coll := &fakeCollection{findDocs: []interface{}{
		conversationDocument{UserID: "sailor", Data: `{"ship_name":"newer"}`, CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		conversationDocument{UserID: "sailor", Data: `{"ship_name":"older"}`, CreatedAt: time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)},
	}}
	s := newTestStore(t, coll)

	records, err := s.ConversationHistory(context.Background(), "sailor", 5)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "older", records[0].Data["ship_name"])
	require.Equal(t, "newer", records[1].Data["ship_name"])
	require.Equal(t, int64(5), *coll.lastLimit)
}

func TestConversationHistory_FindError(t *testing.T) {
	s := newTestStore(t, &fakeCollection{findErr: errors.New("boom")})
	_, err := s.ConversationHistory(context.Background(), "sailor", 0)
	require.Error(t, err)
}

func TestConnect_EmptyURI(t *testing.T) {
	_, err := Connect(context.Background(), "")
	require.Error(t, err)
}
