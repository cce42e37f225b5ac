package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EngineState is the aggregate root persisted after every trading cycle.
// It is the only durable record of the paper account; decimal fields
// marshal as strings so snapshots round-trip without precision loss.
type EngineState struct {
	Balance        decimal.Decimal     `json:"balance"`
	Positions      map[string]Position `json:"positions"`
	Orders         []Order             `json:"orders"`
	TotalFeesPaid  decimal.Decimal     `json:"total_fees_paid"`
	InitialBalance decimal.Decimal     `json:"initial_balance"`
	CycleCount     int64               `json:"cycle_count"`
	SavedAt        time.Time           `json:"saved_at"`
}
