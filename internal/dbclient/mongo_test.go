package dbclient

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"dbai/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

func TestParseMongoQuery_CommandShape(t *testing.T) {
	mq, err := parseMongoQuery(Query{Text: `{"find":"users","filter":{"status":"active","age":{"$gte":21}}}`})
	require.NoError(t, err)
	assert.Equal(t, "users", mq.Collection)
	assert.Equal(t, "find", mq.Operation)
	require.Len(t, mq.Filter, 2)
	assert.Equal(t, "status", mq.Filter[0].Key)
	assert.Equal(t, "active", mq.Filter[0].Value)
	assert.Equal(t, "age", mq.Filter[1].Key)
}

func TestParseMongoQuery_EditorShape(t *testing.T) {
	mq, err := parseMongoQuery(Query{Text: `{
		"collection": "orders",
		"filter": {"_id": {"$oid": "507f1f77bcf86cd799439011"}},
		"sort": {"created": -1},
		"limit": 5
	}`})
	require.NoError(t, err)
	assert.Equal(t, "orders", mq.Collection)
	assert.Equal(t, "find", mq.Operation, "operation defaults to find")
	assert.Equal(t, int64(5), mq.Limit)

	oid, ok := mq.Filter[0].Value.(bson.ObjectID)
	require.True(t, ok, "extended JSON $oid decodes to ObjectID, got %T", mq.Filter[0].Value)
	assert.Equal(t, "507f1f77bcf86cd799439011", oid.Hex())
	assert.Equal(t, "created", mq.Sort[0].Key)
}

func TestParseMongoQuery_Aggregate(t *testing.T) {
	mq, err := parseMongoQuery(Query{Object: map[string]any{
		"aggregate": "events",
		"pipeline": []any{
			map[string]any{"$match": map[string]any{"type": "click"}},
			map[string]any{"$group": map[string]any{"_id": "$page"}},
		},
	}})
	require.NoError(t, err)
	assert.Equal(t, "aggregate", mq.Operation)
	require.Len(t, mq.Pipeline, 2)
	assert.Equal(t, "$match", mq.Pipeline[0][0].Key)
}

func TestParseMongoQuery_Errors(t *testing.T) {
	tests := []struct {
		name  string
		query Query
	}{
		{"empty", Query{Text: "   "}},
		{"not json", Query{Text: "db.users.find({})"}},
		{"no collection", Query{Text: `{"filter":{}}`}},
		{"bad command value", Query{Text: `{"find": 42}`}},
		{"bad filter", Query{Text: `{"collection":"u","filter":[1,2]}`}},
		{"pipeline not array", Query{Text: `{"aggregate":"u","pipeline":{"$match":{}}}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseMongoQuery(tt.query)
			assert.ErrorIs(t, err, domain.ErrQuerySyntax)
		})
	}
}

func TestFromBSON(t *testing.T) {
	oid := bson.NewObjectID()
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	in := bson.D{
		{Key: "_id", Value: oid},
		{Key: "n", Value: int32(7)},
		{Key: "at", Value: bson.NewDateTimeFromTime(ts)},
		{Key: "tags", Value: bson.A{"a", int32(2)}},
		{Key: "nested", Value: bson.M{"b": 2.5, "a": nil}},
	}
	out, ok := fromBSON(in).(Document)
	require.True(t, ok)
	require.Len(t, out, 5)

	assert.Equal(t, oid.Hex(), out[0].Value)
	assert.Equal(t, int64(7), out[1].Value)
	assert.Equal(t, ts, out[2].Value)
	assert.Equal(t, []any{"a", int64(2)}, out[3].Value)
	assert.Equal(t, Document{{Key: "a", Value: nil}, {Key: "b", Value: 2.5}}, out[4].Value)
}

func TestBSONTypeName(t *testing.T) {
	assert.Equal(t, "objectId", bsonTypeName(bson.NewObjectID()))
	assert.Equal(t, "int", bsonTypeName(int32(1)))
	assert.Equal(t, "long", bsonTypeName(int64(1)))
	assert.Equal(t, "object", bsonTypeName(bson.D{}))
	assert.Equal(t, "array", bsonTypeName(bson.A{}))
	assert.Equal(t, "null", bsonTypeName(nil))
}

func TestClassifyMongo(t *testing.T) {
	tests := []struct {
		name  string
		phase phase
		err   error
		want  domain.ErrorKind
	}{
		{"auth failed", phaseConnect, mongo.CommandError{Code: 18, Message: "Authentication failed."}, domain.KindAuthRejected},
		{"unauthorized", phaseExecute, mongo.CommandError{Code: 13, Message: "not authorized on app"}, domain.KindPermissionDenied},
		{"max time", phaseExecute, mongo.CommandError{Code: 50, Message: "operation exceeded time limit"}, domain.KindQueryTimeout},
		{"bad value", phaseExecute, mongo.CommandError{Code: 2, Message: "unknown operator: $foo"}, domain.KindQuerySyntaxError},
		{"disconnected", phaseExecute, mongo.ErrClientDisconnected, domain.KindConnectionLost},
		{"server selection", phaseConnect, errors.New("server selection error: context deadline"), domain.KindNetworkUnreachable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify(tt.phase, fmt.Errorf("wrapped: %w", tt.err), classifyMongo)
			assert.Equal(t, tt.want, domain.KindOf(err))
		})
	}
}
