package dbclient

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"dbai/internal/domain"
	"dbai/internal/logging"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// mongoAdapter implements Adapter for MongoDB.
type mongoAdapter struct {
	logger *slog.Logger
}

// NewMongoAdapter returns the document-store adapter.
func NewMongoAdapter(logger *slog.Logger) Adapter {
	return &mongoAdapter{logger: logger.With("component", "mongo")}
}

func (a *mongoAdapter) Driver() domain.DatabaseDriver { return domain.DatabaseDriverMongoDB }

func (a *mongoAdapter) Connect(ctx context.Context, cfg *domain.ConnectionConfig, secret string) (Conn, error) {
	uri, dbName := buildMongoURI(cfg, secret)
	a.logger.Info("connecting", "uri", logging.Mask(uri), "database", dbName)

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, classify(phaseConnect, fmt.Errorf("connect mongo: %w", err), classifyMongo)
	}
	if err := client.Ping(ctx, nil); err != nil {
		dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Disconnect(dctx)
		return nil, classify(phaseConnect, fmt.Errorf("ping mongo: %w", err), classifyMongo)
	}
	return &mongoConn{client: client, dbName: dbName, logger: a.logger}, nil
}

// buildMongoURI returns the connection URI and the target database.
// A host that is already a full mongodb:// or mongodb+srv:// URI is used as is,
// with <password> placeholders filled in.
func buildMongoURI(cfg *domain.ConnectionConfig, password string) (string, string) {
	if strings.HasPrefix(cfg.Host, "mongodb+srv://") || strings.HasPrefix(cfg.Host, "mongodb://") {
		uri := cfg.Host
		if password != "" {
			esc := url.QueryEscape(password)
			uri = strings.ReplaceAll(uri, "<password>", esc)
			uri = strings.ReplaceAll(uri, "<db_password>", esc)
		}
		dbName := cfg.Database
		if dbName == "" {
			dbName = databaseFromURI(uri)
		}
		return uri, dbName
	}

	port := cfg.Port
	if port == 0 {
		port = domain.DatabaseDriverMongoDB.DefaultPort()
	}
	u := url.URL{Scheme: "mongodb", Host: fmt.Sprintf("%s:%d", cfg.Host, port), Path: "/"}
	if cfg.Username != "" {
		u.User = url.UserPassword(cfg.Username, password)
	}
	q := url.Values{}
	for k, v := range cfg.Options {
		q.Set(k, v)
	}
	if cfg.TLS {
		q.Set("tls", "true")
	}
	u.RawQuery = q.Encode()

	dbName := cfg.Database
	if dbName == "" {
		dbName = "test"
	}
	return u.String(), dbName
}

// databaseFromURI extracts the path segment of user:pass@host/DB?params.
func databaseFromURI(uri string) string {
	rest := uri
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+3:]
	}
	if i := strings.LastIndex(rest, "@"); i >= 0 {
		rest = rest[i+1:]
	}
	if i := strings.Index(rest, "/"); i >= 0 {
		path := rest[i+1:]
		if q := strings.Index(path, "?"); q >= 0 {
			path = path[:q]
		}
		if path != "" {
			return path
		}
	}
	return "test"
}

// ─────────────────────────────────────────────────────────────
// Query parsing
// ─────────────────────────────────────────────────────────────

// mongoQuery is the JSON structure accepted from the editor. The command
// shape ({"find": "users", "filter": {...}}) is mapped onto it.
type mongoQuery struct {
	Collection string          `json:"collection"`
	Operation  string          `json:"operation,omitempty"` // find (default), aggregate, count, insertOne, updateMany, deleteMany
	Filter     json.RawMessage `json:"filter,omitempty"`
	Projection json.RawMessage `json:"projection,omitempty"`
	Sort       json.RawMessage `json:"sort,omitempty"`
	Limit      int64           `json:"limit,omitempty"`
	Document   json.RawMessage `json:"document,omitempty"`
	Update     json.RawMessage `json:"update,omitempty"`
	Pipeline   json.RawMessage `json:"pipeline,omitempty"`
}

// parsedMongoQuery holds the BSON forms of a mongoQuery.
type parsedMongoQuery struct {
	Collection string
	Operation  string
	Filter     bson.D
	Projection bson.D
	Sort       bson.D
	Limit      int64
	Document   bson.D
	Update     bson.D
	Pipeline   mongo.Pipeline
}

var commandKeys = []string{"find", "aggregate", "count"}

func parseMongoQuery(q Query) (*parsedMongoQuery, error) {
	raw := []byte(strings.TrimSpace(q.Text))
	if q.Object != nil {
		b, err := json.Marshal(q.Object)
		if err != nil {
			return nil, syntaxError("encode query object: %v", err)
		}
		raw = b
	}
	if len(raw) == 0 {
		return nil, syntaxError("empty query")
	}

	var mq mongoQuery
	if err := json.Unmarshal(raw, &mq); err != nil {
		return nil, syntaxError("invalid query JSON: %v", err)
	}
	var head map[string]json.RawMessage
	_ = json.Unmarshal(raw, &head)
	for _, key := range commandKeys {
		v, ok := head[key]
		if !ok {
			continue
		}
		var coll string
		if err := json.Unmarshal(v, &coll); err != nil {
			return nil, syntaxError("%q must name a collection", key)
		}
		mq.Collection = coll
		mq.Operation = key
		break
	}
	if mq.Collection == "" {
		return nil, syntaxError("query must specify 'collection' or a find/aggregate/count command")
	}

	out := &parsedMongoQuery{Collection: mq.Collection, Operation: mq.Operation, Limit: mq.Limit}
	if out.Operation == "" {
		out.Operation = "find"
	}
	var err error
	for _, f := range []struct {
		name string
		raw  json.RawMessage
		dst  *bson.D
	}{
		{"filter", mq.Filter, &out.Filter},
		{"projection", mq.Projection, &out.Projection},
		{"sort", mq.Sort, &out.Sort},
		{"document", mq.Document, &out.Document},
		{"update", mq.Update, &out.Update},
	} {
		if *f.dst, err = ejsonDoc(f.raw); err != nil {
			return nil, syntaxError("%s: %v", f.name, err)
		}
	}
	if len(mq.Pipeline) > 0 {
		var stages []json.RawMessage
		if err := json.Unmarshal(mq.Pipeline, &stages); err != nil {
			return nil, syntaxError("pipeline must be an array: %v", err)
		}
		for i, s := range stages {
			d, err := ejsonDoc(s)
			if err != nil {
				return nil, syntaxError("pipeline stage %d: %v", i, err)
			}
			out.Pipeline = append(out.Pipeline, d)
		}
	}
	return out, nil
}

// ejsonDoc decodes Extended JSON ($oid, $date, $numberLong) keeping key order.
func ejsonDoc(raw json.RawMessage) (bson.D, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var d bson.D
	if err := bson.UnmarshalExtJSON(raw, false, &d); err != nil {
		return nil, err
	}
	return d, nil
}

// ─────────────────────────────────────────────────────────────
// Conn
// ─────────────────────────────────────────────────────────────

type mongoConn struct {
	client    *mongo.Client
	dbName    string
	logger    *slog.Logger
	closeOnce sync.Once
	closeErr  error
}

func (m *mongoConn) Execute(ctx context.Context, q Query) (*RawResult, error) {
	mq, err := parseMongoQuery(q)
	if err != nil {
		return nil, err
	}
	m.logger.Debug("execute", "collection", mq.Collection, "operation", mq.Operation)

	coll := m.client.Database(m.dbName).Collection(mq.Collection)
	var res *RawResult
	switch mq.Operation {
	case "find":
		res, err = m.execFind(ctx, coll, mq, q.Limit)
	case "aggregate":
		res, err = m.execAggregate(ctx, coll, mq, q.Limit)
	case "count":
		res, err = m.execCount(ctx, coll, mq)
	case "insertOne":
		res, err = m.execInsertOne(ctx, coll, mq)
	case "updateMany":
		res, err = m.execUpdateMany(ctx, coll, mq)
	case "deleteMany":
		res, err = m.execDeleteMany(ctx, coll, mq)
	default:
		return nil, syntaxError("unsupported operation: %s", mq.Operation)
	}
	if err != nil {
		return nil, classify(phaseExecute, err, classifyMongo)
	}
	return res, nil
}

func orEmpty(d bson.D) bson.D {
	if d == nil {
		return bson.D{}
	}
	return d
}

func (m *mongoConn) execFind(ctx context.Context, coll *mongo.Collection, mq *parsedMongoQuery, limit int) (*RawResult, error) {
	opts := options.Find()
	if mq.Projection != nil {
		opts.SetProjection(mq.Projection)
	}
	if mq.Sort != nil {
		opts.SetSort(mq.Sort)
	}
	n := mq.Limit
	if limit > 0 && (n <= 0 || int64(limit) < n) {
		n = int64(limit)
	}
	if n > 0 {
		opts.SetLimit(n)
	}

	cursor, err := coll.Find(ctx, orEmpty(mq.Filter), opts)
	if err != nil {
		return nil, fmt.Errorf("find: %w", err)
	}
	return m.drain(ctx, cursor, limit)
}

func (m *mongoConn) execAggregate(ctx context.Context, coll *mongo.Collection, mq *parsedMongoQuery, limit int) (*RawResult, error) {
	pipeline := mq.Pipeline
	if pipeline == nil {
		pipeline = mongo.Pipeline{}
	}
	writes := pipelineWrites(pipeline)
	// $out and $merge must stay the last stage
	if limit > 0 && !writes {
		pipeline = append(pipeline[:len(pipeline):len(pipeline)], bson.D{{Key: "$limit", Value: limit}})
	}
	cursor, err := coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}
	res, err := m.drain(ctx, cursor, limit)
	if err == nil && writes {
		res.IsWrite = true
	}
	return res, err
}

func (m *mongoConn) execCount(ctx context.Context, coll *mongo.Collection, mq *parsedMongoQuery) (*RawResult, error) {
	n, err := coll.CountDocuments(ctx, orEmpty(mq.Filter))
	if err != nil {
		return nil, fmt.Errorf("count: %w", err)
	}
	return &RawResult{Shape: ShapeDocuments, Documents: []Document{{{Key: "count", Value: n}}}}, nil
}

func (m *mongoConn) execInsertOne(ctx context.Context, coll *mongo.Collection, mq *parsedMongoQuery) (*RawResult, error) {
	if mq.Document == nil {
		return nil, syntaxError("insertOne requires 'document'")
	}
	if _, err := coll.InsertOne(ctx, mq.Document); err != nil {
		return nil, fmt.Errorf("insertOne: %w", err)
	}
	return &RawResult{Shape: ShapeDocuments, IsWrite: true, AffectedRows: 1}, nil
}

func (m *mongoConn) execUpdateMany(ctx context.Context, coll *mongo.Collection, mq *parsedMongoQuery) (*RawResult, error) {
	if mq.Update == nil {
		return nil, syntaxError("updateMany requires 'update'")
	}
	result, err := coll.UpdateMany(ctx, orEmpty(mq.Filter), mq.Update)
	if err != nil {
		return nil, fmt.Errorf("updateMany: %w", err)
	}
	return &RawResult{Shape: ShapeDocuments, IsWrite: true, AffectedRows: result.ModifiedCount}, nil
}

func (m *mongoConn) execDeleteMany(ctx context.Context, coll *mongo.Collection, mq *parsedMongoQuery) (*RawResult, error) {
	result, err := coll.DeleteMany(ctx, orEmpty(mq.Filter))
	if err != nil {
		return nil, fmt.Errorf("deleteMany: %w", err)
	}
	return &RawResult{Shape: ShapeDocuments, IsWrite: true, AffectedRows: result.DeletedCount}, nil
}

// drain reads at most limit documents (all when limit is 0) and closes the cursor.
func (m *mongoConn) drain(ctx context.Context, cursor *mongo.Cursor, limit int) (*RawResult, error) {
	defer cursor.Close(context.WithoutCancel(ctx))

	out := &RawResult{Shape: ShapeDocuments}
	for cursor.Next(ctx) {
		var doc bson.D
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}
		out.Documents = append(out.Documents, fromBSON(doc).(Document))
		if limit > 0 && len(out.Documents) >= limit {
			break
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor: %w", err)
	}
	return out, nil
}

// fromBSON converts driver values into plain Go values.
func fromBSON(v any) any {
	switch val := v.(type) {
	case nil, bson.Null, bson.Undefined:
		return nil
	case bson.D:
		doc := make(Document, len(val))
		for i, e := range val {
			doc[i] = Field{Key: e.Key, Value: fromBSON(e.Value)}
		}
		return doc
	case bson.M:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		doc := make(Document, len(keys))
		for i, k := range keys {
			doc[i] = Field{Key: k, Value: fromBSON(val[k])}
		}
		return doc
	case bson.A:
		arr := make([]any, len(val))
		for i, e := range val {
			arr[i] = fromBSON(e)
		}
		return arr
	case bson.ObjectID:
		return val.Hex()
	case bson.DateTime:
		return val.Time().UTC()
	case bson.Timestamp:
		return time.Unix(int64(val.T), 0).UTC()
	case bson.Decimal128:
		return val.String()
	case bson.Binary:
		return hex.EncodeToString(val.Data)
	case int32:
		return int64(val)
	case int64, float64, string, bool:
		return val
	default:
		return fmt.Sprint(val)
	}
}

// bsonTypeName is the schema hint for a sampled value.
func bsonTypeName(v any) string {
	switch v.(type) {
	case nil, bson.Null:
		return "null"
	case bson.ObjectID:
		return "objectId"
	case string:
		return "string"
	case int32:
		return "int"
	case int64:
		return "long"
	case float64:
		return "double"
	case bson.Decimal128:
		return "decimal"
	case bool:
		return "bool"
	case bson.DateTime, bson.Timestamp:
		return "date"
	case bson.D, bson.M:
		return "object"
	case bson.A:
		return "array"
	case bson.Binary:
		return "binData"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// ListCollections samples one document per collection for field hints.
func (m *mongoConn) ListCollections(ctx context.Context) ([]domain.CollectionInfo, error) {
	db := m.client.Database(m.dbName)
	names, err := db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, classify(phaseSchema, fmt.Errorf("list collections: %w", err), classifyMongo)
	}
	sort.Strings(names)

	out := make([]domain.CollectionInfo, 0, len(names))
	for _, name := range names {
		info := domain.CollectionInfo{Name: name}
		var doc bson.D
		err := db.Collection(name).FindOne(ctx, bson.D{}).Decode(&doc)
		switch {
		case errors.Is(err, mongo.ErrNoDocuments):
		case err != nil:
			return nil, classify(phaseSchema, fmt.Errorf("sample %s: %w", name, err), classifyMongo)
		default:
			for _, e := range doc {
				info.Fields = append(info.Fields, domain.FieldInfo{Name: e.Key, Type: bsonTypeName(e.Value)})
			}
		}
		out = append(out, info)
	}
	return out, nil
}

func (m *mongoConn) Ping(ctx context.Context) error {
	if err := m.client.Ping(ctx, nil); err != nil {
		return classify(phaseExecute, err, classifyMongo)
	}
	return nil
}

func (m *mongoConn) Close(ctx context.Context) error {
	m.closeOnce.Do(func() {
		m.closeErr = m.client.Disconnect(ctx)
	})
	return m.closeErr
}

// ─────────────────────────────────────────────────────────────
// Error classification
// ─────────────────────────────────────────────────────────────

const (
	mongoCodeUnauthorized        = 13
	mongoCodeAuthFailed          = 18
	mongoCodeMaxTimeMSExpired    = 50
	mongoCodeFailedToParse       = 9
	mongoCodeBadValue            = 2
	mongoCodeInterruptedShutdown = 11600
)

func classifyMongo(p phase, err error) (domain.ErrorKind, bool) {
	if errors.Is(err, mongo.ErrClientDisconnected) {
		return domain.KindConnectionLost, true
	}
	var se mongo.ServerError
	if errors.As(err, &se) {
		switch {
		case se.HasErrorCode(mongoCodeAuthFailed):
			return domain.KindAuthRejected, true
		case se.HasErrorCode(mongoCodeUnauthorized):
			return domain.KindPermissionDenied, true
		case se.HasErrorCode(mongoCodeMaxTimeMSExpired):
			return domain.KindQueryTimeout, true
		case se.HasErrorCode(mongoCodeInterruptedShutdown):
			return domain.KindConnectionLost, true
		case p != phaseConnect && (se.HasErrorCode(mongoCodeFailedToParse) || se.HasErrorCode(mongoCodeBadValue)):
			return domain.KindQuerySyntaxError, true
		}
	}
	msg := err.Error()
	if p == phaseConnect && (strings.Contains(msg, "AuthenticationFailed") || strings.Contains(msg, "auth error")) {
		return domain.KindAuthRejected, true
	}
	if mongo.IsTimeout(err) {
		if p == phaseConnect {
			return domain.KindTimedOut, true
		}
		return domain.KindQueryTimeout, true
	}
	if mongo.IsNetworkError(err) || strings.Contains(msg, "server selection error") {
		if p == phaseConnect {
			return domain.KindNetworkUnreachable, true
		}
		return domain.KindConnectionLost, true
	}
	return "", false
}
