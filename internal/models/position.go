package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RiskRule holds the exit parameters attached to a position when it is
// opened. TrailingStop only ever ratchets upward as price moves in the
// position's favor.
type RiskRule struct {
	StopLossPct     decimal.Decimal `json:"stop_loss_pct"`
	TakeProfitPct   decimal.Decimal `json:"take_profit_pct"`
	TrailingEnabled bool            `json:"trailing_enabled"`
	TrailPct        decimal.Decimal `json:"trail_pct"`
	TrailingStop    decimal.Decimal `json:"trailing_stop"`
}

// Position is an open holding of a single symbol. CostBasis is the
// cumulative gross (pre-fee) USDT spent acquiring the currently-held
// quantity, so AvgEntryPrice = CostBasis / Quantity.
type Position struct {
	Symbol    string          `json:"symbol"`
	Quantity  decimal.Decimal `json:"quantity"`
	CostBasis decimal.Decimal `json:"cost_basis"`
	Rule      RiskRule        `json:"rule"`
	OpenedAt  time.Time       `json:"opened_at"`
}

// AvgEntryPrice returns the volume-weighted entry price of the position.
// Returns zero for an empty position.
func (p Position) AvgEntryPrice() decimal.Decimal {
	if p.Quantity.IsZero() {
		return decimal.Zero
	}
	return p.CostBasis.Div(p.Quantity)
}
