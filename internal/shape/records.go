package shape

import (
	"strconv"

	"github.com/vibesql/sqlrun/internal/database"
)

// Records drains and closes cursor into column-named rows, for surfaces that
// have to serialize a raw cursor. []byte values are rendered as strings.
// Repeated column names get a numeric suffix (a, a_2) so no value is lost;
// the returned columns carry the same names as the record keys.
func Records(cursor Cursor, maxRows int) ([]string, []map[string]any, error) {
	defer cursor.Close()

	columns, err := cursor.Columns()
	if err != nil {
		return nil, nil, database.TranslateError(err)
	}
	columns = uniqueColumns(columns)

	results := make([]map[string]any, 0)

	for {
		values, ok, err := next(cursor, len(columns))
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			break
		}

		if err := checkRowLimit(len(results), maxRows); err != nil {
			return nil, nil, err
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}

		results = append(results, row)
	}

	return columns, results, nil
}

func uniqueColumns(columns []string) []string {
	taken := make(map[string]bool, len(columns))
	for _, col := range columns {
		taken[col] = true
	}

	unique := make([]string, len(columns))
	seen := make(map[string]bool, len(columns))
	for i, col := range columns {
		name := col
		if seen[col] {
			for n := 2; ; n++ {
				name = col + "_" + strconv.Itoa(n)
				if !taken[name] {
					break
				}
			}
			taken[name] = true
		}
		seen[col] = true
		unique[i] = name
	}
	return unique
}
