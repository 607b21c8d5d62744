package repository

import (
	"math"

	"github.com/martin8756/termelesinaplo/repository/models"
)

// Totals is the aggregate shown on the admin view
type Totals struct {
	Quantity   int64   `json:"quantity"`
	Rejects    int64   `json:"rejects"`
	RejectRate float64 `json:"rejectRate"`
}

// ComputeTotals sums quantity and rejects over rows and derives the reject
// rate in percent, rounded to two decimals. Zero quantity yields a zero rate.
func ComputeTotals(rows []models.Record) Totals {
	var totals Totals
	for _, row := range rows {
		totals.Quantity = addSaturating(totals.Quantity, row.Quantity)
		totals.Rejects = addSaturating(totals.Rejects, row.Rejects)
	}
	if totals.Quantity > 0 {
		rate := float64(totals.Rejects) / float64(totals.Quantity) * 100
		totals.RejectRate = math.Round(rate*100) / 100
	}
	return totals
}

// addSaturating clamps to the int64 range instead of wrapping
func addSaturating(a, b int64) int64 {
	switch {
	case b > 0 && a > math.MaxInt64-b:
		return math.MaxInt64
	case b < 0 && a < math.MinInt64-b:
		return math.MinInt64
	}
	return a + b
}
