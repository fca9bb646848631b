package main

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"

	"github.com/vibesql/sqlrun/internal/connector"
	"github.com/vibesql/sqlrun/internal/shape"
)

// printResult writes a connector result for a terminal. Records and tables
// are rendered with tablewriter; scalars and single columns as plain lines.
func printResult(w io.Writer, result connector.Result) error {
	if result == nil {
		_, err := fmt.Fprintln(w, "Batch executed")
		return err
	}

	for _, value := range result {
		switch v := value.(type) {
		case nil:
			_, err := fmt.Fprintln(w, "Statement executed")
			return err

		case shape.Cursor:
			columns, records, err := shape.Records(v, 0)
			if err != nil {
				return err
			}

			data := make([][]string, 0, len(records))
			for _, record := range records {
				row := make([]string, 0, len(columns))
				for _, column := range columns {
					row = append(row, formatValue(record[column]))
				}
				data = append(data, row)
			}

			renderTable(w, columns, data)
			_, err = fmt.Fprintf(w, "(%d rows)\n", len(records))
			return err

		case shape.Rows:
			data := make([][]string, 0, len(v))
			for _, row := range v {
				data = append(data, formatRow(row))
			}
			renderTable(w, nil, data)
			return nil

		case shape.Row:
			if len(v) == 0 {
				return nil
			}
			renderTable(w, nil, [][]string{formatRow(v)})
			return nil

		case []any:
			for _, item := range v {
				if _, err := fmt.Fprintln(w, formatValue(item)); err != nil {
					return err
				}
			}
			return nil

		default:
			_, err := fmt.Fprintln(w, formatValue(v))
			return err
		}
	}

	return nil
}

func renderTable(w io.Writer, header []string, data [][]string) {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	if len(header) > 0 {
		table.SetHeader(header)
	}
	table.AppendBulk(data)
	table.Render()
}

func formatRow(row []any) []string {
	out := make([]string, len(row))
	for i, value := range row {
		out[i] = formatValue(value)
	}
	return out
}

func formatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
