package service

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"dbai/internal/domain"
)

// ExportFormat names an export encoding.
type ExportFormat string

const (
	ExportCSV  ExportFormat = "csv"
	ExportJSON ExportFormat = "json"
)

// WriteResult encodes res to w. CSV writes a header of field names and one
// line per record; nested documents are JSON-encoded into their cell. JSON
// writes an array of plain objects.
func WriteResult(w io.Writer, res *domain.QueryResult, format ExportFormat) error {
	switch format {
	case ExportCSV:
		return writeCSV(w, res)
	case ExportJSON:
		return writeJSON(w, res)
	default:
		return domain.Errorf(domain.KindInvalidConfig, "unknown export format %q", format)
	}
}

func writeCSV(w io.Writer, res *domain.QueryResult) error {
	cw := csv.NewWriter(w)
	names := res.FieldNames()
	if err := cw.Write(names); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	row := make([]string, len(names))
	for _, rec := range res.Records {
		for i, name := range names {
			row[i] = CellText(rec[name])
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// CellText renders a value as a single text cell. Nulls are empty.
func CellText(v domain.Value) string {
	switch v.Kind {
	case domain.ValueNull:
		return ""
	case domain.ValueTimestamp:
		if t, ok := v.V.(time.Time); ok {
			return t.Format(time.RFC3339Nano)
		}
	case domain.ValueBoolean:
		if b, ok := v.V.(bool); ok {
			return strconv.FormatBool(b)
		}
	case domain.ValueDocument:
		b, err := json.Marshal(v.V)
		if err == nil {
			return string(b)
		}
	}
	return fmt.Sprint(v.V)
}

func writeJSON(w io.Writer, res *domain.QueryResult) error {
	names := res.FieldNames()
	rows := make([]orderedRecord, len(res.Records))
	for i, rec := range res.Records {
		rows[i] = orderedRecord{names: names, rec: rec}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

// orderedRecord marshals a record's plain values in field order.
type orderedRecord struct {
	names []string
	rec   domain.Record
}

func (o orderedRecord) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, name := range o.names {
		if i > 0 {
			buf = append(buf, ',')
		}
		k, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(o.rec[name].V)
		if err != nil {
			return nil, err
		}
		buf = append(buf, k...)
		buf = append(buf, ':')
		buf = append(buf, v...)
	}
	return append(buf, '}'), nil
}
