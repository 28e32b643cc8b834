package source

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestStatic_EnumeratesAndRestarts(t *testing.T) {
	s := &Static[EmotionEntry]{
		Collection: "emotion_records",
		Records:    []EmotionEntry{{UID: "u1", Date: "2024-01-01"}, {UID: "u2", Date: "2024-01-01"}},
		FailAt:     map[int]error{1: errors.New("bad")},
	}

	for pass := 0; pass < 2; pass++ {
		cur, err := s.Open(context.Background())
		require.NoError(t, err)

		require.True(t, cur.Next(context.Background()))
		rec, err := cur.Decode()
		require.NoError(t, err)
		assert.Equal(t, "u1", rec.UID)

		require.True(t, cur.Next(context.Background()))
		_, err = cur.Decode()
		assert.Error(t, err)
		assert.Equal(t, "emotion_records#1", cur.ID())

		assert.False(t, cur.Next(context.Background()))
		require.NoError(t, cur.Close(context.Background()))
	}
}

func TestStatic_StopsOnCancel(t *testing.T) {
	s := &Static[UserAccount]{Collection: "users", Records: []UserAccount{{UID: "u1"}}}
	cur, err := s.Open(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, cur.Next(ctx))
}

func TestMongoCursor_DecodeAndID(t *testing.T) {
	oid := primitive.NewObjectID()
	started := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	docs := []interface{}{
		bson.D{
			{Key: "_id", Value: "u1_s1"},
			{Key: "sessionId", Value: "s1"},
			{Key: "uid", Value: "u1"},
			{Key: "startedAt", Value: started},
			{Key: "messages", Value: bson.A{
				bson.D{{Key: "role", Value: "user"}, {Key: "content", Value: "안녕하세요"}},
			}},
		},
		bson.D{{Key: "_id", Value: oid}, {Key: "sessionId", Value: 42}},
	}
	raw, err := mongo.NewCursorFromDocuments(docs, nil, nil)
	require.NoError(t, err)
	cur := &mongoCursor[CounselingSession]{cur: raw}
	ctx := context.Background()

	require.True(t, cur.Next(ctx))
	assert.Equal(t, "u1_s1", cur.ID())
	s, err := cur.Decode()
	require.NoError(t, err)
	assert.Equal(t, "s1", s.SessionID)
	require.NotNil(t, s.StartedAt)
	assert.True(t, started.Equal(*s.StartedAt))
	require.Len(t, s.Messages, 1)
	assert.Equal(t, "안녕하세요", s.Messages[0].Content)

	require.True(t, cur.Next(ctx))
	assert.Equal(t, oid.Hex(), cur.ID())
	_, err = cur.Decode()
	assert.Error(t, err, "an int sessionId does not decode into a string")

	assert.False(t, cur.Next(ctx))
	require.NoError(t, cur.Err())
	require.NoError(t, cur.Close(ctx))
}
