package market

import (
	"encoding/json"
	"math"
)

// Table is tabular market data keyed by column (a period end date or a trading
// day, formatted 2006-01-02) and then by row (a line item or a price field).
type Table map[string]map[string]float64

// Set stores v at (column, row). Non-finite values are dropped since JSON cannot carry them.
func (t Table) Set(column, row string, v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return
	}
	r, ok := t[column]
	if !ok {
		r = make(map[string]float64)
		t[column] = r
	}
	r[row] = v
}

// JSON renders the table as a JSON object of objects.
func (t Table) JSON() (string, error) {
	b, err := json.Marshal(t)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
