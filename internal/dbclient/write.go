package dbclient

import (
	"encoding/json"
	"strings"

	"dbai/internal/domain"

	"go.mongodb.org/mongo-driver/v2/mongo"
)

// IsWriteQuery reports whether text would modify data when run on a session
// of driver. Unparseable text is reported as read since Execute refuses it
// too; raw MongoDB write commands are still reported as writes.
func IsWriteQuery(driver domain.DatabaseDriver, text string) bool {
	switch driver {
	case domain.DatabaseDriverMongoDB:
		return mongoWrites(Query{Text: text})
	case domain.DatabaseDriverRedis:
		return redisWrites(text)
	}
	for _, st := range splitSQL(text, dollarQuoted(driver)) {
		if st.writes() {
			return true
		}
	}
	return false
}

// ─────────────────────────────────────────────────────────────
// SQL
// ─────────────────────────────────────────────────────────────

var sqlWriteVerbs = map[string]bool{
	"INSERT": true, "UPDATE": true, "DELETE": true, "DROP": true, "ALTER": true,
	"TRUNCATE": true, "CREATE": true, "REPLACE": true, "MERGE": true, "UPSERT": true,
	"GRANT": true, "REVOKE": true, "ATTACH": true, "DETACH": true, "COPY": true,
	"VACUUM": true, "REINDEX": true, "RENAME": true, "COMMENT": true, "REFRESH": true,
	"CALL": true, "DO": true, "EXEC": true, "EXECUTE": true, "LOCK": true,
	"LOAD": true, "INSTALL": true, "IMPORT": true, "EXPORT": true, "CLUSTER": true,
}

var sqlReadVerbs = map[string]bool{
	"SELECT": true, "WITH": true, "SHOW": true, "DESCRIBE": true, "DESC": true,
	"EXPLAIN": true, "PRAGMA": true, "VALUES": true, "TABLE": true, "FROM": true,
}

// sqlEmbeddedWrites are keywords that make any statement a write, wherever
// they appear: DML inside WITH, SELECT INTO, PREPARE ... AS DELETE.
var sqlEmbeddedWrites = map[string]bool{
	"INSERT": true, "UPDATE": true, "DELETE": true, "MERGE": true, "INTO": true,
}

// pragmas that take an argument and still only read.
var sqliteReadPragmas = map[string]bool{
	"TABLE_INFO": true, "TABLE_XINFO": true, "INDEX_LIST": true, "INDEX_INFO": true,
	"INDEX_XINFO": true, "FOREIGN_KEY_LIST": true, "FOREIGN_KEY_CHECK": true,
	"INTEGRITY_CHECK": true, "QUICK_CHECK": true, "TABLE_LIST": true,
}

// sqlStatement is one statement of a script. tokens holds its bare words
// upper-cased plus the "=" and "(" symbols; comments and literals are gone.
type sqlStatement struct {
	tokens []string
}

// verb is the first keyword, skipping opening parentheses.
func (s sqlStatement) verb() string {
	for _, t := range s.tokens {
		if t != "(" {
			return t
		}
	}
	return ""
}

func (s sqlStatement) has(words ...string) bool {
	for _, t := range s.tokens {
		for _, w := range words {
			if t == w {
				return true
			}
		}
	}
	return false
}

// returnsRows reports whether the statement produces a result set.
func (s sqlStatement) returnsRows() bool {
	return sqlReadVerbs[s.verb()] || s.has("RETURNING")
}

// writes reports whether the statement changes data, schema or settings.
func (s sqlStatement) writes() bool {
	verb := s.verb()
	switch {
	case sqlWriteVerbs[verb]:
		return true
	case verb == "PRAGMA":
		return s.pragmaWrites()
	case verb == "EXPLAIN" && !s.has("ANALYZE", "ANALYSE"):
		return false
	}
	for i, t := range s.tokens {
		if !sqlEmbeddedWrites[t] {
			continue
		}
		// SELECT ... FOR UPDATE and FOR NO KEY UPDATE only lock
		if t == "UPDATE" && i > 0 && (s.tokens[i-1] == "FOR" || s.tokens[i-1] == "KEY") {
			continue
		}
		return true
	}
	return false
}

// pragmaWrites: "PRAGMA x = v" and "PRAGMA x(v)" set x, except for the
// introspection pragmas.
func (s sqlStatement) pragmaWrites() bool {
	if s.has("=") {
		return true
	}
	if !s.has("(") {
		return false
	}
	name := ""
	for _, t := range s.tokens[1:] {
		if t != "(" {
			name = t
		}
		if t == "(" {
			break
		}
	}
	return !sqliteReadPragmas[name]
}

func dollarQuoted(driver domain.DatabaseDriver) bool {
	return driver == domain.DatabaseDriverPostgres || driver == domain.DatabaseDriverDuckDB
}

// splitSQL splits text on semicolons outside literals and comments and
// drops empty statements. Backslashes never escape and comments never nest,
// so text some engine reads as code is never hidden as a literal.
func splitSQL(text string, dollarQuotes bool) []sqlStatement {
	var (
		out  []sqlStatement
		cur  []string
		word strings.Builder
	)
	flushWord := func() {
		if word.Len() > 0 {
			cur = append(cur, strings.ToUpper(word.String()))
			word.Reset()
		}
	}
	flushStmt := func() {
		flushWord()
		if len(cur) > 0 {
			out = append(out, sqlStatement{tokens: cur})
		}
		cur = nil
	}

	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case c == '-' && i+1 < len(text) && text[i+1] == '-':
			flushWord()
			for i < len(text) && text[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < len(text) && text[i+1] == '*':
			flushWord()
			end := strings.Index(text[i+2:], "*/")
			if end < 0 {
				i = len(text)
			} else {
				i += end + 3
			}
		case c == '\'' || c == '"' || c == '`':
			flushWord()
			end := strings.IndexByte(text[i+1:], c)
			if end < 0 {
				i = len(text)
			} else {
				i += end + 1
			}
		case c == '$' && dollarQuotes && word.Len() == 0:
			tag, ok := dollarTag(text[i:])
			if !ok {
				word.WriteByte(c)
				continue
			}
			end := strings.Index(text[i+len(tag):], tag)
			if end < 0 {
				i = len(text)
			} else {
				i += len(tag) + end + len(tag) - 1
			}
		case c == ';':
			flushStmt()
		case c == '=' || c == '(':
			flushWord()
			cur = append(cur, string(c))
		case c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9':
			word.WriteByte(c)
		default:
			flushWord()
		}
	}
	flushStmt()
	return out
}

// dollarTag returns the opening "$tag$" of a postgres dollar-quoted string.
func dollarTag(s string) (string, bool) {
	for j := 1; j < len(s); j++ {
		c := s[j]
		switch {
		case c == '$':
			return s[:j+1], true
		case c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || j > 1 && c >= '0' && c <= '9':
		default:
			return "", false
		}
	}
	return "", false
}

// ─────────────────────────────────────────────────────────────
// MongoDB
// ─────────────────────────────────────────────────────────────

var mongoReadOperations = map[string]bool{"find": true, "aggregate": true, "count": true}

// mongoWriteCommands are raw database command names. Execute rejects them,
// but they are still reported as writes.
var mongoWriteCommands = map[string]bool{
	"insert": true, "update": true, "delete": true, "findAndModify": true,
	"drop": true, "dropDatabase": true, "create": true, "createIndexes": true,
	"dropIndexes": true, "renameCollection": true,
}

func mongoWrites(q Query) bool {
	mq, err := parseMongoQuery(q)
	if err != nil {
		var head map[string]json.RawMessage
		if json.Unmarshal([]byte(strings.TrimSpace(q.Text)), &head) != nil {
			return false
		}
		for k := range head {
			if mongoWriteCommands[k] {
				return true
			}
		}
		return false
	}
	if !mongoReadOperations[mq.Operation] {
		return true
	}
	return mq.Operation == "aggregate" && pipelineWrites(mq.Pipeline)
}

// pipelineWrites reports a $out or $merge stage.
func pipelineWrites(p mongo.Pipeline) bool {
	for _, stage := range p {
		for _, e := range stage {
			if e.Key == "$out" || e.Key == "$merge" {
				return true
			}
		}
	}
	return false
}

// ─────────────────────────────────────────────────────────────
// Redis
// ─────────────────────────────────────────────────────────────

var redisWriteCommands = map[string]bool{
	"SET": true, "SETEX": true, "PSETEX": true, "SETNX": true, "SETRANGE": true, "GETSET": true,
	"GETDEL": true, "GETEX": true, "MSET": true, "MSETNX": true, "DEL": true, "UNLINK": true,
	"EXPIRE": true, "PEXPIRE": true, "EXPIREAT": true, "PEXPIREAT": true, "PERSIST": true,
	"INCR": true, "INCRBY": true, "INCRBYFLOAT": true, "DECR": true, "DECRBY": true, "APPEND": true,
	"HSET": true, "HSETNX": true, "HMSET": true, "HDEL": true, "HINCRBY": true, "HINCRBYFLOAT": true,
	"LPUSH": true, "RPUSH": true, "LPUSHX": true, "RPUSHX": true, "LPOP": true, "RPOP": true,
	"LREM": true, "LSET": true, "LTRIM": true, "LINSERT": true, "LMOVE": true, "RPOPLPUSH": true,
	"BLPOP": true, "BRPOP": true, "BLMOVE": true,
	"SADD": true, "SREM": true, "SPOP": true, "SMOVE": true,
	"SUNIONSTORE": true, "SINTERSTORE": true, "SDIFFSTORE": true,
	"ZADD": true, "ZREM": true, "ZINCRBY": true, "ZPOPMIN": true, "ZPOPMAX": true,
	"ZREMRANGEBYSCORE": true, "ZREMRANGEBYRANK": true, "ZREMRANGEBYLEX": true,
	"ZUNIONSTORE": true, "ZINTERSTORE": true, "ZRANGESTORE": true,
	"XADD": true, "XDEL": true, "XTRIM": true, "PFADD": true, "PFMERGE": true,
	"GEOADD": true, "SETBIT": true, "BITOP": true,
	"RENAME": true, "RENAMENX": true, "COPY": true, "MOVE": true, "RESTORE": true,
	"FLUSHDB": true, "FLUSHALL": true, "SWAPDB": true,
	"EVAL": true, "EVALSHA": true, "FCALL": true,
}

func redisWrites(text string) bool {
	q := Query{Text: text}
	if trimmed := strings.TrimSpace(text); strings.HasPrefix(trimmed, "{") {
		if err := json.Unmarshal([]byte(trimmed), &q.Object); err != nil {
			return false
		}
	}
	args, err := redisArgs(q)
	if err != nil {
		return false
	}
	return redisWriteCommands[strings.ToUpper(args[0])]
}
