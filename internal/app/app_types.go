package app

import (
	"dbai/internal/domain"
)

// QueryResultView is the frontend view of a query result: field order kept,
// values reduced to plain JSON.
type QueryResultView struct {
	Columns      []string             `json:"columns"`
	Types        []string             `json:"types"`
	Rows         [][]any              `json:"rows"`
	TotalRows    int                  `json:"totalRows"`
	Truncated    bool                 `json:"truncated"`
	DurationMs   int64                `json:"durationMs"`
	IsWrite      bool                 `json:"isWrite"`
	AffectedRows int64                `json:"affectedRows"`
	Query        string               `json:"query"`
	Kinds        [][]domain.ValueKind `json:"kinds"`
}

func newQueryResultView(query string, res *domain.QueryResult) *QueryResultView {
	v := &QueryResultView{
		Columns:      res.FieldNames(),
		Types:        make([]string, len(res.Fields)),
		Rows:         make([][]any, len(res.Records)),
		Kinds:        make([][]domain.ValueKind, len(res.Records)),
		TotalRows:    len(res.Records),
		Truncated:    res.Truncated,
		DurationMs:   res.Duration.Milliseconds(),
		IsWrite:      res.IsWrite,
		AffectedRows: res.AffectedRows,
		Query:        query,
	}
	for i, f := range res.Fields {
		v.Types[i] = f.Type
	}
	for i, rec := range res.Records {
		row := make([]any, len(v.Columns))
		kinds := make([]domain.ValueKind, len(v.Columns))
		for j, name := range v.Columns {
			row[j] = rec[name].V
			kinds[j] = rec[name].Kind
		}
		v.Rows[i] = row
		v.Kinds[i] = kinds
	}
	return v
}

// QueryInput is what the query editor sends.
type QueryInput struct {
	ConnectionID string         `json:"connectionId"`
	Query        string         `json:"query"`
	Object       map[string]any `json:"object,omitempty"`
	TimeoutMs    int64          `json:"timeoutMs,omitempty"`
	MaxRows      int            `json:"maxRows,omitempty"`
}
