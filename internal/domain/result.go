package domain

import "time"

// ValueKind tags a normalized scalar.
type ValueKind string

const (
	ValueString    ValueKind = "string"
	ValueNumber    ValueKind = "number"
	ValueBoolean   ValueKind = "boolean"
	ValueTimestamp ValueKind = "timestamp"
	ValueNull      ValueKind = "null"
	ValueDocument  ValueKind = "document" // nested document or array
)

// Value is one typed cell of a normalized record. For ValueDocument, V holds
// the nested data for display.
type Value struct {
	Kind ValueKind `json:"kind"`
	V    any       `json:"value"`
}

// Null is the value of a missing or SQL NULL field.
var Null = Value{Kind: ValueNull}

// Record maps field name to value. Every field of the result is present.
type Record map[string]Value

// QueryResult is the backend-independent result of one execution.
type QueryResult struct {
	Fields       []FieldInfo   `json:"fields"`
	Records      []Record      `json:"records"`
	Duration     time.Duration `json:"duration"`
	Truncated    bool          `json:"truncated"`
	IsWrite      bool          `json:"isWrite,omitempty"`
	AffectedRows int64         `json:"affectedRows,omitempty"`
}

// FieldNames returns the ordered field names.
func (r *QueryResult) FieldNames() []string {
	names := make([]string, len(r.Fields))
	for i, f := range r.Fields {
		names[i] = f.Name
	}
	return names
}
