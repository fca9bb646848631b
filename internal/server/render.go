package server

import (
	"github.com/vibesql/sqlrun/internal/connector"
	"github.com/vibesql/sqlrun/internal/shape"
)

// RenderedResult is a connector result made serializable.
type RenderedResult struct {
	Values   map[string]any
	Columns  []string
	RowCount int
}

// Render converts result for the wire. A raw cursor is drained into
// column-named records of at most maxRows rows. A nil result (batch) renders
// as nil.
func Render(result connector.Result, maxRows int) (*RenderedResult, error) {
	if result == nil {
		return nil, nil
	}

	rendered := &RenderedResult{Values: make(map[string]any, len(result))}

	for slot, value := range result {
		switch v := value.(type) {
		case shape.Cursor:
			columns, records, err := shape.Records(v, maxRows)
			if err != nil {
				return nil, err
			}
			rendered.Values[slot] = records
			rendered.Columns = columns
			rendered.RowCount = len(records)

		case shape.Rows:
			rows := make([][]any, len(v))
			for i, row := range v {
				rows[i] = normalizeRow(row)
			}
			rendered.Values[slot] = rows
			rendered.RowCount = len(v)

		case shape.Row:
			rendered.Values[slot] = normalizeRow(v)
			if len(v) > 0 {
				rendered.RowCount = 1
			}

		case []any:
			rendered.Values[slot] = normalizeRow(v)
			rendered.RowCount = len(v)

		case nil:
			rendered.Values[slot] = nil

		default:
			rendered.Values[slot] = normalize(v)
			rendered.RowCount = 1
		}
	}

	return rendered, nil
}

func normalizeRow(row []any) []any {
	out := make([]any, len(row))
	for i, value := range row {
		out[i] = normalize(value)
	}
	return out
}

// normalize renders driver byte slices as text instead of base64.
func normalize(value any) any {
	if b, ok := value.([]byte); ok {
		return string(b)
	}
	return value
}
