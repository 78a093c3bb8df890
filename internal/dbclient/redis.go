package dbclient

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"

	"dbai/internal/domain"

	"github.com/redis/go-redis/v9"
)

const (
	redisScanCount     = 100
	redisMaxSchemaKeys = 1000
)

// redisAdapter implements Adapter for Redis.
type redisAdapter struct {
	logger *slog.Logger
}

// NewRedisAdapter returns the key-value adapter.
func NewRedisAdapter(logger *slog.Logger) Adapter {
	return &redisAdapter{logger: logger.With("component", "redis")}
}

func (a *redisAdapter) Driver() domain.DatabaseDriver { return domain.DatabaseDriverRedis }

func (a *redisAdapter) Connect(ctx context.Context, cfg *domain.ConnectionConfig, secret string) (Conn, error) {
	opts, err := buildRedisOptions(cfg, secret)
	if err != nil {
		return nil, err
	}
	a.logger.Info("connecting", "addr", opts.Addr, "db", opts.DB)

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, classify(phaseConnect, fmt.Errorf("ping redis: %w", err), classifyRedis)
	}
	return &redisConn{client: client, logger: a.logger}, nil
}

// buildRedisOptions maps a config onto client options. Database holds the
// logical DB index.
func buildRedisOptions(cfg *domain.ConnectionConfig, password string) (*redis.Options, error) {
	port := cfg.Port
	if port == 0 {
		port = domain.DatabaseDriverRedis.DefaultPort()
	}
	opts := &redis.Options{
		Addr:       fmt.Sprintf("%s:%d", cfg.Host, port),
		Username:   cfg.Username,
		Password:   password,
		MaxRetries: -1,
	}
	if cfg.Database != "" {
		n, err := strconv.Atoi(cfg.Database)
		if err != nil || n < 0 {
			return nil, domain.E(domain.KindInvalidConfig, "connect", cfg.ID,
				fmt.Errorf("redis database must be a non-negative index, got %q", cfg.Database))
		}
		opts.DB = n
	}
	if cfg.TLS {
		opts.TLSConfig = &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}
	}
	return opts, nil
}

// splitCommandLine tokenizes a redis-cli style line. Double quotes support
// backslash escapes; single quotes are literal.
func splitCommandLine(line string) ([]string, error) {
	var (
		args    []string
		cur     strings.Builder
		inArg   bool
		quote   rune
		escaped bool
	)
	for _, r := range line {
		switch {
		case escaped:
			switch r {
			case 'n':
				cur.WriteRune('\n')
			case 't':
				cur.WriteRune('\t')
			default:
				cur.WriteRune(r)
			}
			escaped = false
		case quote == '"' && r == '\\':
			escaped = true
		case quote != 0 && r == quote:
			quote = 0
		case quote != 0:
			cur.WriteRune(r)
		case r == '"' || r == '\'':
			quote = r
			inArg = true
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			if inArg {
				args = append(args, cur.String())
				cur.Reset()
				inArg = false
			}
		default:
			cur.WriteRune(r)
			inArg = true
		}
	}
	if quote != 0 || escaped {
		return nil, syntaxError("unterminated quote in %q", line)
	}
	if inArg {
		args = append(args, cur.String())
	}
	return args, nil
}

// ─────────────────────────────────────────────────────────────
// Conn
// ─────────────────────────────────────────────────────────────

type redisConn struct {
	client    *redis.Client
	logger    *slog.Logger
	closeOnce sync.Once
	closeErr  error
}

func redisArgs(q Query) ([]string, error) {
	if q.Object != nil {
		raw, ok := q.Object["command"].([]any)
		if !ok || len(raw) == 0 {
			return nil, syntaxError(`structured redis query needs {"command": [...]}`)
		}
		args := make([]string, len(raw))
		for i, a := range raw {
			args[i] = fmt.Sprint(a)
		}
		return args, nil
	}
	args, err := splitCommandLine(q.Text)
	if err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return nil, syntaxError("empty command")
	}
	return args, nil
}

func (c *redisConn) Execute(ctx context.Context, q Query) (*RawResult, error) {
	args, err := redisArgs(q)
	if err != nil {
		return nil, err
	}
	cmd := strings.ToUpper(args[0])
	c.logger.Debug("execute", "command", cmd, "args", len(args)-1)

	iargs := make([]any, len(args))
	for i, a := range args {
		iargs[i] = a
	}
	reply, err := c.client.Do(ctx, iargs...).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, classify(phaseExecute, err, classifyRedis)
	}

	out := &RawResult{Shape: ShapePairs, IsWrite: redisWriteCommands[cmd]}
	if out.IsWrite {
		if n, ok := reply.(int64); ok {
			out.AffectedRows = n
		} else if reply != nil {
			out.AffectedRows = 1
		}
	}
	out.Pairs = replyPairs(args, reply)
	if q.Limit > 0 && len(out.Pairs) > q.Limit {
		out.Pairs = out.Pairs[:q.Limit]
	}
	return out, nil
}

// replyPairs shapes a reply as key/value pairs. Maps keep their keys (sorted),
// arrays are keyed by index, and scalars are keyed by the command's key
// argument.
func replyPairs(args []string, reply any) []Pair {
	switch v := reply.(type) {
	case map[any]any:
		keys := make([]string, 0, len(v))
		vals := make(map[string]any, len(v))
		for k, val := range v {
			ks := fmt.Sprint(k)
			keys = append(keys, ks)
			vals[ks] = fromRedis(val)
		}
		sort.Strings(keys)
		pairs := make([]Pair, len(keys))
		for i, k := range keys {
			pairs[i] = Pair{Key: k, Value: vals[k]}
		}
		return pairs
	case []any:
		pairs := make([]Pair, len(v))
		for i, val := range v {
			pairs[i] = Pair{Key: strconv.Itoa(i), Value: fromRedis(val)}
		}
		return pairs
	default:
		key := strings.ToLower(args[0])
		if len(args) > 1 {
			key = args[1]
		}
		return []Pair{{Key: key, Value: fromRedis(v)}}
	}
}

func fromRedis(v any) any {
	switch val := v.(type) {
	case []any:
		arr := make([]any, len(val))
		for i, e := range val {
			arr[i] = fromRedis(e)
		}
		return arr
	case map[any]any:
		keys := make([]string, 0, len(val))
		m := make(map[string]any, len(val))
		for k, e := range val {
			ks := fmt.Sprint(k)
			keys = append(keys, ks)
			m[ks] = fromRedis(e)
		}
		sort.Strings(keys)
		doc := make(Document, len(keys))
		for i, k := range keys {
			doc[i] = Field{Key: k, Value: m[k]}
		}
		return doc
	case error:
		return val.Error()
	default:
		return val
	}
}

// ListCollections groups scanned keys by the prefix before the first ':'.
// Each group reports the key types it contains.
func (c *redisConn) ListCollections(ctx context.Context) ([]domain.CollectionInfo, error) {
	var keys []string
	var cursor uint64
	for {
		batch, next, err := c.client.Scan(ctx, cursor, "*", redisScanCount).Result()
		if err != nil {
			return nil, classify(phaseSchema, fmt.Errorf("scan: %w", err), classifyRedis)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 || len(keys) >= redisMaxSchemaKeys {
			break
		}
	}
	if len(keys) > redisMaxSchemaKeys {
		keys = keys[:redisMaxSchemaKeys]
	}

	types := make([]*redis.StatusCmd, len(keys))
	_, err := c.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, k := range keys {
			types[i] = p.Type(ctx, k)
		}
		return nil
	})
	if err != nil {
		return nil, classify(phaseSchema, fmt.Errorf("key types: %w", err), classifyRedis)
	}

	groups := map[string]map[string]bool{}
	for i, k := range keys {
		g := keyGroup(k)
		if groups[g] == nil {
			groups[g] = map[string]bool{}
		}
		groups[g][types[i].Val()] = true
	}
	return redisGroups(groups), nil
}

func keyGroup(key string) string {
	if i := strings.Index(key, ":"); i > 0 {
		return key[:i]
	}
	return key
}

func redisGroups(groups map[string]map[string]bool) []domain.CollectionInfo {
	names := make([]string, 0, len(groups))
	for g := range groups {
		names = append(names, g)
	}
	sort.Strings(names)

	out := make([]domain.CollectionInfo, 0, len(names))
	for _, g := range names {
		ts := make([]string, 0, len(groups[g]))
		for t := range groups[g] {
			ts = append(ts, t)
		}
		sort.Strings(ts)
		out = append(out, domain.CollectionInfo{
			Name: g,
			Fields: []domain.FieldInfo{
				{Name: "key", Type: "string"},
				{Name: "value", Type: strings.Join(ts, "|")},
			},
		})
	}
	return out
}

func (c *redisConn) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return classify(phaseExecute, err, classifyRedis)
	}
	return nil
}

func (c *redisConn) Close(context.Context) error {
	c.closeOnce.Do(func() {
		c.closeErr = c.client.Close()
	})
	return c.closeErr
}

func classifyRedis(p phase, err error) (domain.ErrorKind, bool) {
	if errors.Is(err, redis.ErrClosed) {
		return domain.KindConnectionLost, true
	}
	msg := err.Error()
	switch {
	case strings.HasPrefix(msg, "WRONGPASS"), strings.HasPrefix(msg, "NOAUTH"),
		strings.Contains(msg, "invalid password"), strings.Contains(msg, "invalid username-password"):
		if p == phaseConnect {
			return domain.KindAuthRejected, true
		}
		return domain.KindPermissionDenied, true
	case strings.HasPrefix(msg, "NOPERM"):
		return domain.KindPermissionDenied, true
	case strings.HasPrefix(msg, "LOADING"), strings.HasPrefix(msg, "MASTERDOWN"):
		if p == phaseConnect {
			return domain.KindNetworkUnreachable, true
		}
		return domain.KindConnectionLost, true
	case strings.HasPrefix(msg, "ERR unknown command"), strings.HasPrefix(msg, "ERR syntax"),
		strings.HasPrefix(msg, "ERR wrong number"), strings.HasPrefix(msg, "WRONGTYPE"):
		if p != phaseConnect {
			return domain.KindQuerySyntaxError, true
		}
		return domain.KindProtocolMismatch, true
	}
	return "", false
}
