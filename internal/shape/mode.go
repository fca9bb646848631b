package shape

import (
	"fmt"
	"strings"
)

// OutputMode selects how a cursor is turned into a result value.
type OutputMode int

const (
	// RawCursor hands the cursor itself to the caller.
	RawCursor OutputMode = iota
	// Scalar returns the single value of the first row.
	Scalar
	// SingleRow returns the values of the only row.
	SingleRow
	// MultiRow returns the single column of every row.
	MultiRow
	// Table returns every row.
	Table
)

// Result slots, one per output mode.
const (
	SlotResultSet = "resultset"
	SlotScalar    = "singleResult"
	SlotSingleRow = "oneRowNColResult"
	SlotMultiRow  = "nRowOneColResult"
	SlotTable     = "tableResult"
)

var modeNames = map[string]OutputMode{
	"":           RawCursor,
	"default":    RawCursor,
	"resultset":  RawCursor,
	"single":     Scalar,
	"scalar":     Scalar,
	"one_row":    SingleRow,
	"single-row": SingleRow,
	"n_row":      MultiRow,
	"multi-row":  MultiRow,
	"table":      Table,
}

// ParseOutputMode accepts the output type names used in host configurations.
func ParseOutputMode(name string) (OutputMode, error) {
	mode, ok := modeNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return RawCursor, fmt.Errorf("output type %q is not supported", name)
	}
	return mode, nil
}

// Slot returns the result key the mode's value is stored under.
func (m OutputMode) Slot() string {
	switch m {
	case Scalar:
		return SlotScalar
	case SingleRow:
		return SlotSingleRow
	case MultiRow:
		return SlotMultiRow
	case Table:
		return SlotTable
	default:
		return SlotResultSet
	}
}

func (m OutputMode) String() string {
	switch m {
	case Scalar:
		return "single"
	case SingleRow:
		return "one_row"
	case MultiRow:
		return "n_row"
	case Table:
		return "table"
	default:
		return "resultset"
	}
}
