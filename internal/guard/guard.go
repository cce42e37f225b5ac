package guard

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Rejection names why a proposed entry was refused. It is an expected
// outcome (equivalent to HOLD), not an error.
type Rejection struct {
	Reason string
	Detail string
}

const (
	ReasonMaxPositions  = "max_positions"
	ReasonAlreadyHeld   = "already_held"
	ReasonCooldown      = "cooldown"
	ReasonDailyTradeCap = "daily_trade_cap"
	ReasonSymbolCap     = "per_symbol_cap"
	ReasonExposureCap   = "total_exposure_cap"
)

// Limits are the allocation and overtrading constraints.
type Limits struct {
	MaxPositions        int
	MaxPerSymbolPct     decimal.Decimal // percent of total account value
	MaxTotalExposurePct decimal.Decimal // percent of total account value
	MinTradeInterval    time.Duration   // since the most recent BUY
	MaxTradesPerDay     int             // BUY orders per UTC day
}

// EntryRequest is a pure view of everything the guard needs to admit or
// reject a new position. The orchestrator assembles it from ledger state.
type EntryRequest struct {
	Symbol        string
	Amount        decimal.Decimal // proposed gross USDT spend
	OpenPositions int
	SymbolHeld    bool
	SymbolValue   decimal.Decimal // current exposure to this symbol
	TotalValue    decimal.Decimal // balance + all position values
	TotalInvested decimal.Decimal // all position values
	LastBuyAt     time.Time       // zero if no prior BUY
	TradesToday   int
	Now           time.Time
}

// Guard is a stateless predicate over entry requests.
type Guard struct {
	limits Limits
}

var hundred = decimal.NewFromInt(100)

func New(limits Limits) *Guard {
	return &Guard{limits: limits}
}

// Check returns nil if the entry is admitted, otherwise a named rejection.
// All checks are side-effect free; the caller logs the reason and moves on.
func (g *Guard) Check(req EntryRequest) *Rejection {
	if req.OpenPositions >= g.limits.MaxPositions {
		return &Rejection{
			Reason: ReasonMaxPositions,
			Detail: fmt.Sprintf("%d positions open, limit %d", req.OpenPositions, g.limits.MaxPositions),
		}
	}

	if req.SymbolHeld {
		return &Rejection{
			Reason: ReasonAlreadyHeld,
			Detail: fmt.Sprintf("%s already held", req.Symbol),
		}
	}

	if !req.LastBuyAt.IsZero() && req.Now.Sub(req.LastBuyAt) < g.limits.MinTradeInterval {
		return &Rejection{
			Reason: ReasonCooldown,
			Detail: fmt.Sprintf("last buy %s ago, cooldown %s", req.Now.Sub(req.LastBuyAt), g.limits.MinTradeInterval),
		}
	}

	if req.TradesToday >= g.limits.MaxTradesPerDay {
		return &Rejection{
			Reason: ReasonDailyTradeCap,
			Detail: fmt.Sprintf("%d trades today, limit %d", req.TradesToday, g.limits.MaxTradesPerDay),
		}
	}

	if req.TotalValue.GreaterThan(decimal.Zero) {
		projectedSymbol := req.SymbolValue.Add(req.Amount).Div(req.TotalValue).Mul(hundred)
		if projectedSymbol.GreaterThan(g.limits.MaxPerSymbolPct) {
			return &Rejection{
				Reason: ReasonSymbolCap,
				Detail: fmt.Sprintf("projected %s exposure %s%%, cap %s%%",
					req.Symbol, projectedSymbol.Round(2), g.limits.MaxPerSymbolPct),
			}
		}

		projectedTotal := req.TotalInvested.Add(req.Amount).Div(req.TotalValue).Mul(hundred)
		if projectedTotal.GreaterThan(g.limits.MaxTotalExposurePct) {
			return &Rejection{
				Reason: ReasonExposureCap,
				Detail: fmt.Sprintf("projected total exposure %s%%, cap %s%%",
					projectedTotal.Round(2), g.limits.MaxTotalExposurePct),
			}
		}
	}

	return nil
}
