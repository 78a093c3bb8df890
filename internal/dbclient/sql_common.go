package dbclient

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"dbai/internal/domain"
	"dbai/internal/logging"
)

// sqlDialect holds the per-engine differences of the shared database/sql conn.
type sqlDialect struct {
	driverName string // database/sql driver name
	// schemaExpr filters information_schema to the connected schema.
	// Empty means sqlite_master introspection.
	schemaExpr string
	classify   driverClassifier

	// dollarQuotes enables $tag$ string literals when splitting statements.
	dollarQuotes bool
}

// sqlAdapter is the shared Adapter for postgres, mysql, sqlite and duckdb.
type sqlAdapter struct {
	driver  domain.DatabaseDriver
	dialect sqlDialect
	dsn     func(cfg *domain.ConnectionConfig, secret string) (string, error)
	logger  *slog.Logger
}

func (a *sqlAdapter) Driver() domain.DatabaseDriver { return a.driver }

func (a *sqlAdapter) Connect(ctx context.Context, cfg *domain.ConnectionConfig, secret string) (Conn, error) {
	dsn, err := a.dsn(cfg, secret)
	if err != nil {
		return nil, classify(phaseConnect, err, a.dialect.classify)
	}
	a.logger.Debug("opening connection", "dsn", logging.Mask(dsn))

	db, err := sql.Open(a.dialect.driverName, dsn)
	if err != nil {
		return nil, classify(phaseConnect, fmt.Errorf("open %s: %w", a.dialect.driverName, err), a.dialect.classify)
	}
	// Sensible pool settings for a desktop app
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(10 * time.Minute)
	if cfg.Database == ":memory:" {
		// every pooled connection would open its own empty database
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, classify(phaseConnect, fmt.Errorf("ping %s: %w", a.driver, err), a.dialect.classify)
	}
	return newSQLConn(db, a.dialect, a.logger), nil
}

// sqlConn is a live database/sql pool.
type sqlConn struct {
	db        *sql.DB
	dialect   sqlDialect
	logger    *slog.Logger
	closeOnce sync.Once
	closeErr  error
}

func newSQLConn(db *sql.DB, dialect sqlDialect, logger *slog.Logger) *sqlConn {
	return &sqlConn{db: db, dialect: dialect, logger: logger}
}

func (c *sqlConn) Execute(ctx context.Context, q Query) (*RawResult, error) {
	text := strings.TrimSpace(q.Text)
	stmts := splitSQL(text, c.dialect.dollarQuotes)
	switch len(stmts) {
	case 0:
		return nil, syntaxError("%s expects query text", c.dialect.driverName)
	case 1:
	default:
		return nil, syntaxError("%s runs one statement per query, got %d", c.dialect.driverName, len(stmts))
	}
	st := stmts[0]
	rows, write := st.returnsRows(), st.writes()
	c.logger.Debug("execute", "driver", c.dialect.driverName, "rows", rows, "write", write, "limit", q.Limit)
	if !rows {
		return c.execWrite(ctx, text)
	}
	limit := q.Limit
	if write {
		// stopping early would abandon a write part-way
		limit = 0
	}
	res, err := c.execRead(ctx, text, limit)
	if err != nil {
		return nil, err
	}
	if write {
		res.IsWrite = true
		// DML ... RETURNING yields one row per affected row
		if !sqlReadVerbs[st.verb()] {
			res.AffectedRows = int64(len(res.Rows))
		}
	}
	return res, nil
}

func (c *sqlConn) execWrite(ctx context.Context, query string) (*RawResult, error) {
	result, err := c.db.ExecContext(ctx, query)
	if err != nil {
		return nil, classify(phaseExecute, fmt.Errorf("exec: %w", err), c.dialect.classify)
	}
	affected, _ := result.RowsAffected()
	return &RawResult{Shape: ShapeRows, IsWrite: true, AffectedRows: affected}, nil
}

func (c *sqlConn) execRead(ctx context.Context, query string, limit int) (*RawResult, error) {
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, classify(phaseExecute, fmt.Errorf("query: %w", err), c.dialect.classify)
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, classify(phaseExecute, fmt.Errorf("columns: %w", err), c.dialect.classify)
	}
	cols := make([]Column, len(types))
	for i, t := range types {
		cols[i] = Column{Name: t.Name(), Type: strings.ToLower(t.DatabaseTypeName())}
	}

	out := &RawResult{Shape: ShapeRows, Columns: cols}
	for rows.Next() {
		if limit > 0 && len(out.Rows) >= limit {
			break
		}
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for j := range values {
			ptrs[j] = &values[j]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, classify(phaseExecute, fmt.Errorf("scan row: %w", err), c.dialect.classify)
		}
		row := make([]any, len(cols))
		for j, v := range values {
			row[j] = convertSQLValue(v, cols[j].Type)
		}
		out.Rows = append(out.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(phaseExecute, fmt.Errorf("iterate: %w", err), c.dialect.classify)
	}
	return out, nil
}

// convertSQLValue turns driver values into plain Go values. Drivers that
// return numbers as text (mysql DECIMAL, postgres NUMERIC) get parsed here
// using the column's type name.
func convertSQLValue(v any, dbType string) any {
	switch val := v.(type) {
	case nil:
		return nil
	case []byte:
		s := string(val)
		if n, ok := parseNumeric(s, dbType); ok {
			return n
		}
		return s
	case string:
		if n, ok := parseNumeric(val, dbType); ok {
			return n
		}
		return val
	case int:
		return int64(val)
	case int32:
		return int64(val)
	case int16:
		return int64(val)
	case int8:
		return int64(val)
	case uint8:
		return int64(val)
	case uint16:
		return int64(val)
	case uint32:
		return int64(val)
	case float32:
		return float64(val)
	default:
		return val
	}
}

func parseNumeric(s, dbType string) (any, bool) {
	switch {
	case isIntegerType(dbType):
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, true
		}
	case isDecimalType(dbType):
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f, true
		}
	}
	return nil, false
}

func isIntegerType(t string) bool {
	switch t {
	case "int", "integer", "int2", "int4", "int8", "smallint", "bigint", "tinyint",
		"mediumint", "hugeint", "serial", "bigserial", "unsigned int", "unsigned bigint",
		"unsigned tinyint", "unsigned smallint", "unsigned mediumint", "year":
		return true
	}
	return false
}

func isDecimalType(t string) bool {
	switch t {
	case "decimal", "numeric", "float", "float4", "float8", "double", "real", "double precision":
		return true
	}
	return false
}

func (c *sqlConn) ListCollections(ctx context.Context) ([]domain.CollectionInfo, error) {
	var (
		out []domain.CollectionInfo
		err error
	)
	if c.dialect.schemaExpr == "" {
		out, err = c.listSQLite(ctx)
	} else {
		out, err = c.listInfoSchema(ctx)
	}
	if err != nil {
		return nil, classify(phaseSchema, err, c.dialect.classify)
	}
	return out, nil
}

// listInfoSchema works for MySQL, Postgres and DuckDB via information_schema.
func (c *sqlConn) listInfoSchema(ctx context.Context) ([]domain.CollectionInfo, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT table_name, column_name, data_type FROM information_schema.columns
		 WHERE table_schema = `+c.dialect.schemaExpr+`
		 ORDER BY table_name, ordinal_position`)
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	defer rows.Close()

	var out []domain.CollectionInfo
	for rows.Next() {
		var table string
		var f domain.FieldInfo
		if err := rows.Scan(&table, &f.Name, &f.Type); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		f.Type = strings.ToLower(f.Type)
		if n := len(out); n == 0 || out[n-1].Name != table {
			out = append(out, domain.CollectionInfo{Name: table})
		}
		last := &out[len(out)-1]
		last.Fields = append(last.Fields, f)
	}
	return out, rows.Err()
}

// listSQLite uses sqlite_master + PRAGMA table_info.
func (c *sqlConn) listSQLite(ctx context.Context) ([]domain.CollectionInfo, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type IN ('table','view') AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan table: %w", err)
		}
		tables = append(tables, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]domain.CollectionInfo, 0, len(tables))
	for _, tbl := range tables {
		fields, err := c.sqliteColumns(ctx, tbl)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.CollectionInfo{Name: tbl, Fields: fields})
	}
	return out, nil
}

func (c *sqlConn) sqliteColumns(ctx context.Context, table string) ([]domain.FieldInfo, error) {
	rows, err := c.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("table_info %s: %w", table, err)
	}
	defer rows.Close()

	var fields []domain.FieldInfo
	for rows.Next() {
		var cid, notNull, pk int
		var name, colType string
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("scan table_info: %w", err)
		}
		fields = append(fields, domain.FieldInfo{Name: name, Type: strings.ToLower(colType)})
	}
	return fields, rows.Err()
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func (c *sqlConn) Ping(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return classify(phaseExecute, err, c.dialect.classify)
	}
	return nil
}

func (c *sqlConn) Close(context.Context) error {
	c.closeOnce.Do(func() {
		c.closeErr = c.db.Close()
	})
	return c.closeErr
}
