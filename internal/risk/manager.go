package risk

import (
	"fmt"

	"paper-trade-bot-go/internal/models"

	"github.com/shopspring/decimal"
)

// ExitReason names why the risk manager wants a position closed.
type ExitReason string

const (
	ReasonStopLoss     ExitReason = "STOP_LOSS"
	ReasonTakeProfit   ExitReason = "TAKE_PROFIT"
	ReasonTrailingStop ExitReason = "TRAILING_STOP"
)

// ExitIntent is a request to close (part of) a position. The manager never
// touches the ledger itself; the orchestrator consumes the intent and calls
// Ledger.Sell.
type ExitIntent struct {
	Symbol   string
	Quantity decimal.Decimal
	Reason   ExitReason
	Detail   string
}

// Manager evaluates open positions against their risk rules each cycle.
type Manager struct {
	// Fraction of the position to close on take-profit; 1 = full exit.
	partialTPFraction decimal.Decimal
}

var hundred = decimal.NewFromInt(100)

// NewManager creates a risk manager. partialTPFraction outside (0,1] is
// treated as a full exit.
func NewManager(partialTPFraction decimal.Decimal) *Manager {
	if partialTPFraction.LessThanOrEqual(decimal.Zero) || partialTPFraction.GreaterThan(decimal.NewFromInt(1)) {
		partialTPFraction = decimal.NewFromInt(1)
	}
	return &Manager{partialTPFraction: partialTPFraction}
}

// UpdateTrailing ratchets the trailing stop for a position. The stop only
// ever moves up: max(current stop, price × (1 − trail_pct/100)). Returns
// true if the stop moved.
func (m *Manager) UpdateTrailing(pos *models.Position, price decimal.Decimal) bool {
	if !pos.Rule.TrailingEnabled || price.LessThanOrEqual(decimal.Zero) {
		return false
	}
	candidate := price.Mul(decimal.NewFromInt(1).Sub(pos.Rule.TrailPct.Div(hundred)))
	if candidate.GreaterThan(pos.Rule.TrailingStop) {
		pos.Rule.TrailingStop = candidate
		return true
	}
	return false
}

// Evaluate checks one open position against its rule at the current price
// and returns an exit intent, or nil if the position stays open.
//
// Order of checks: stop-loss, then take-profit, then trailing stop. The
// stop-loss fires at pnl ≤ −stop_loss_pct exactly (inclusive), take-profit
// at pnl ≥ take_profit_pct exactly.
func (m *Manager) Evaluate(pos models.Position, price decimal.Decimal) *ExitIntent {
	if price.LessThanOrEqual(decimal.Zero) || pos.Quantity.LessThanOrEqual(decimal.Zero) {
		return nil
	}
	entry := pos.AvgEntryPrice()
	if entry.IsZero() {
		return nil
	}
	pnlPct := price.Sub(entry).Div(entry).Mul(hundred)

	if pnlPct.LessThanOrEqual(pos.Rule.StopLossPct.Neg()) {
		return &ExitIntent{
			Symbol:   pos.Symbol,
			Quantity: pos.Quantity,
			Reason:   ReasonStopLoss,
			Detail:   fmt.Sprintf("pnl %s%% breached stop-loss %s%%", pnlPct.Round(4), pos.Rule.StopLossPct),
		}
	}

	if pnlPct.GreaterThanOrEqual(pos.Rule.TakeProfitPct) {
		return &ExitIntent{
			Symbol:   pos.Symbol,
			Quantity: pos.Quantity.Mul(m.partialTPFraction),
			Reason:   ReasonTakeProfit,
			Detail:   fmt.Sprintf("pnl %s%% reached take-profit %s%%", pnlPct.Round(4), pos.Rule.TakeProfitPct),
		}
	}

	if pos.Rule.TrailingEnabled && !pos.Rule.TrailingStop.IsZero() &&
		price.LessThanOrEqual(pos.Rule.TrailingStop) {
		return &ExitIntent{
			Symbol:   pos.Symbol,
			Quantity: pos.Quantity,
			Reason:   ReasonTrailingStop,
			Detail:   fmt.Sprintf("price %s fell to trailing stop %s", price, pos.Rule.TrailingStop.Round(8)),
		}
	}

	return nil
}
