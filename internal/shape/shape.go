// Package shape converts a query cursor into one of the output contracts a
// caller can ask for.
package shape

import (
	"github.com/vibesql/sqlrun/internal/database"
)

// Shape errors
const (
	msgScalarColumns   = "single result output mode incompatible with query: wrong column count"
	msgSingleRowRows   = "one-row-N-col mode incompatible with query: multiple rows"
	msgMultiRowColumns = "N-row-one-col mode incompatible with query: wrong column count"
)

// Cursor is the part of *sql.Rows the shaper reads.
type Cursor interface {
	Columns() ([]string, error)
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// Row holds column values in cursor column order, as the driver returned them.
type Row []any

// Rows holds rows in cursor order.
type Rows []Row

type options struct {
	maxRows int
}

// Option tunes Shape.
type Option func(*options)

// WithMaxRows caps the number of rows a materialized mode may produce.
// Zero means no cap.
func WithMaxRows(n int) Option {
	return func(o *options) {
		o.maxRows = n
	}
}

// Shape materializes cursor according to mode. Except for RawCursor, the
// cursor is always closed before Shape returns, whether it succeeds or not.
func Shape(cursor Cursor, mode OutputMode, opts ...Option) (any, error) {
	if mode == RawCursor {
		return cursor, nil
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	value, err := materialize(cursor, mode, o)
	closeErr := cursor.Close()
	if err != nil {
		return nil, err
	}
	if closeErr != nil {
		return nil, database.TranslateError(closeErr)
	}

	return value, nil
}

func materialize(cursor Cursor, mode OutputMode, o options) (any, error) {
	columns, err := cursor.Columns()
	if err != nil {
		return nil, database.TranslateError(err)
	}

	switch mode {
	case Scalar:
		if len(columns) != 1 {
			return nil, database.NewShapeError(msgScalarColumns)
		}
		row, ok, err := next(cursor, len(columns))
		if err != nil || !ok {
			return nil, err
		}
		return row[0], nil

	case SingleRow:
		row, ok, err := next(cursor, len(columns))
		if err != nil {
			return nil, err
		}
		if !ok {
			return Row{}, nil
		}
		if cursor.Next() {
			return nil, database.NewShapeError(msgSingleRowRows)
		}
		if err := cursor.Err(); err != nil {
			return nil, database.TranslateError(err)
		}
		return row, nil

	case MultiRow:
		if len(columns) != 1 {
			return nil, database.NewShapeError(msgMultiRowColumns)
		}
		values := make([]any, 0)
		for {
			row, ok, err := next(cursor, len(columns))
			if err != nil {
				return nil, err
			}
			if !ok {
				return values, nil
			}
			if err := checkRowLimit(len(values), o.maxRows); err != nil {
				return nil, err
			}
			values = append(values, row[0])
		}

	default:
		table := make(Rows, 0)
		for {
			row, ok, err := next(cursor, len(columns))
			if err != nil {
				return nil, err
			}
			if !ok {
				return table, nil
			}
			if err := checkRowLimit(len(table), o.maxRows); err != nil {
				return nil, err
			}
			table = append(table, row)
		}
	}
}

// next scans the following row. ok is false once the cursor is exhausted.
func next(cursor Cursor, width int) (Row, bool, error) {
	if !cursor.Next() {
		if err := cursor.Err(); err != nil {
			return nil, false, database.TranslateError(err)
		}
		return nil, false, nil
	}

	values := make(Row, width)
	valuePtrs := make([]any, width)
	for i := range values {
		valuePtrs[i] = &values[i]
	}

	if err := cursor.Scan(valuePtrs...); err != nil {
		return nil, false, database.TranslateError(err)
	}

	return values, true, nil
}

func checkRowLimit(current int, maxRows int) error {
	if maxRows > 0 && current >= maxRows {
		return database.NewResultTooLargeError(maxRows)
	}
	return nil
}
