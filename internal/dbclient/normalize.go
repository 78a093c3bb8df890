package dbclient

import (
	"encoding/json"
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"time"

	"dbai/internal/domain"
)

// Normalize maps a backend-shaped result onto the common record model.
// maxRows <= 0 means no cap; past the cap, records are dropped and Truncated
// is set.
func Normalize(raw *RawResult, maxRows int) *domain.QueryResult {
	res := &domain.QueryResult{IsWrite: raw.IsWrite, AffectedRows: raw.AffectedRows}

	switch raw.Shape {
	case ShapeDocuments:
		normalizeDocuments(res, raw.Documents, maxRows)
	case ShapePairs:
		normalizePairs(res, raw.Pairs, maxRows)
	default:
		normalizeRows(res, raw.Columns, raw.Rows, maxRows)
	}
	if res.Fields == nil {
		res.Fields = []domain.FieldInfo{}
	}
	if res.Records == nil {
		res.Records = []domain.Record{}
	}
	return res
}

func capped(n, maxRows int) (int, bool) {
	if maxRows > 0 && n > maxRows {
		return maxRows, true
	}
	return n, false
}

func normalizeRows(res *domain.QueryResult, cols []Column, rows [][]any, maxRows int) {
	names := uniqueNames(cols)
	n, truncated := capped(len(rows), maxRows)
	res.Truncated = truncated

	res.Fields = make([]domain.FieldInfo, len(cols))
	for i, c := range cols {
		res.Fields[i] = domain.FieldInfo{Name: names[i], Type: c.Type}
	}

	res.Records = make([]domain.Record, 0, n)
	for _, row := range rows[:n] {
		rec := make(domain.Record, len(cols))
		for i := range cols {
			v := domain.Null
			if i < len(row) {
				v = ToValue(row[i])
			}
			rec[names[i]] = v
		}
		res.Records = append(res.Records, rec)
	}
	fillTypeHints(res)
}

// uniqueNames suffixes repeated column names (id, id_2, id_3) so every
// column keeps its own record key.
func uniqueNames(cols []Column) []string {
	seen := make(map[string]int, len(cols))
	names := make([]string, len(cols))
	for i, c := range cols {
		name := c.Name
		seen[name]++
		if k := seen[name]; k > 1 {
			name = name + "_" + strconv.Itoa(k)
			for seen[name] > 0 {
				k++
				name = c.Name + "_" + strconv.Itoa(k)
			}
			seen[name]++
		}
		names[i] = name
	}
	return names
}

func normalizeDocuments(res *domain.QueryResult, docs []Document, maxRows int) {
	n, truncated := capped(len(docs), maxRows)
	res.Truncated = truncated
	docs = docs[:n]

	// union of keys, first-seen order
	index := map[string]int{}
	for _, d := range docs {
		for _, f := range d {
			if _, ok := index[f.Key]; !ok {
				index[f.Key] = len(res.Fields)
				res.Fields = append(res.Fields, domain.FieldInfo{Name: f.Key})
			}
		}
	}

	res.Records = make([]domain.Record, 0, n)
	for _, d := range docs {
		rec := make(domain.Record, len(res.Fields))
		for _, f := range res.Fields {
			rec[f.Name] = domain.Null
		}
		for _, f := range d {
			rec[f.Key] = ToValue(f.Value)
		}
		res.Records = append(res.Records, rec)
	}
	fillTypeHints(res)
}

func normalizePairs(res *domain.QueryResult, pairs []Pair, maxRows int) {
	n, truncated := capped(len(pairs), maxRows)
	res.Truncated = truncated
	res.Fields = []domain.FieldInfo{{Name: "key", Type: string(domain.ValueString)}, {Name: "value"}}
	res.Records = make([]domain.Record, 0, n)
	for _, p := range pairs[:n] {
		res.Records = append(res.Records, domain.Record{
			"key":   {Kind: domain.ValueString, V: p.Key},
			"value": ToValue(p.Value),
		})
	}
	fillTypeHints(res)
}

// fillTypeHints infers missing field types from the first non-null value.
func fillTypeHints(res *domain.QueryResult) {
	for i := range res.Fields {
		if res.Fields[i].Type != "" {
			continue
		}
		for _, rec := range res.Records {
			if v := rec[res.Fields[i].Name]; v.Kind != domain.ValueNull {
				res.Fields[i].Type = string(v.Kind)
				break
			}
		}
		if res.Fields[i].Type == "" {
			res.Fields[i].Type = string(domain.ValueNull)
		}
	}
}

// ToValue maps a plain Go value to a typed value.
func ToValue(v any) domain.Value {
	switch val := v.(type) {
	case nil:
		return domain.Null
	case string:
		return domain.Value{Kind: domain.ValueString, V: val}
	case []byte:
		return domain.Value{Kind: domain.ValueString, V: string(val)}
	case bool:
		return domain.Value{Kind: domain.ValueBoolean, V: val}
	case int:
		return domain.Value{Kind: domain.ValueNumber, V: int64(val)}
	case int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return domain.Value{Kind: domain.ValueNumber, V: val}
	case json.Number:
		return domain.Value{Kind: domain.ValueNumber, V: val}
	case *big.Int:
		return domain.Value{Kind: domain.ValueNumber, V: val.String()}
	case time.Time:
		return domain.Value{Kind: domain.ValueTimestamp, V: val}
	case Document, map[string]any, []any:
		return domain.Value{Kind: domain.ValueDocument, V: val}
	case fmt.Stringer:
		return domain.Value{Kind: domain.ValueString, V: val.String()}
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		return domain.Value{Kind: domain.ValueDocument, V: v}
	case reflect.Pointer:
		if rv.IsNil() {
			return domain.Null
		}
		return ToValue(rv.Elem().Interface())
	}
	return domain.Value{Kind: domain.ValueString, V: fmt.Sprint(v)}
}
