package query

import (
	"encoding/json"
	"fmt"
)

// Result is a bounded, sanitized result set.
type Result struct {
	Columns    []string  `json:"columns"`
	Rows       [][]Value `json:"rows"`
	RowCount   int       `json:"rowCount"`
	Truncated  bool      `json:"truncated"`
	DurationMs int64     `json:"durationMs"`
}

// NewResult builds a result from already sanitized rows.
func NewResult(columns []string, rows [][]Value) Result {
	if rows == nil {
		rows = [][]Value{}
	}
	return Result{Columns: columns, Rows: rows, RowCount: len(rows)}
}

// Check verifies the result survives a JSON round trip with its shape intact.
func (r Result) Check() error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	var back Result
	if err := json.Unmarshal(data, &back); err != nil {
		return fmt.Errorf("unmarshal result: %w", err)
	}
	if len(back.Rows) != len(r.Rows) || len(back.Columns) != len(r.Columns) {
		return fmt.Errorf("result shape changed in round trip")
	}
	for i, row := range r.Rows {
		if len(row) != len(r.Columns) {
			return fmt.Errorf("row %d has %d values for %d columns", i, len(row), len(r.Columns))
		}
	}
	return nil
}
