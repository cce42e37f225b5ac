package ledger

import (
	"fmt"
	"time"

	"paper-trade-bot-go/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Ledger owns the only financially meaningful state of the paper account:
// cash balance, open positions, order history and cumulative fees. All
// mutation goes through Buy/Sell, which are all-or-nothing: every check
// happens before the first write.
//
// The ledger is not safe for concurrent use; the orchestrator serializes
// all access by construction.
type Ledger struct {
	balance        decimal.Decimal
	positions      map[string]models.Position
	orders         []models.Order
	totalFeesPaid  decimal.Decimal
	initialBalance decimal.Decimal

	feeRate       decimal.Decimal
	dustThreshold decimal.Decimal

	now func() time.Time
}

// Valuation is the result of a portfolio valuation pass. FallbackSymbols
// lists positions that had no live price and were valued at their average
// entry price instead.
type Valuation struct {
	Total           decimal.Decimal
	Invested        decimal.Decimal
	FallbackSymbols []string
}

// AssetPnL is the unrealized profit and loss of one open position.
type AssetPnL struct {
	AvgEntryPrice decimal.Decimal
	UnrealizedUSD decimal.Decimal
	UnrealizedPct decimal.Decimal
}

// ProfitSummary reports account performance against the initial balance,
// combining realized cash movements and unrealized position value.
type ProfitSummary struct {
	ProfitUSD    decimal.Decimal
	PctOfInitial decimal.Decimal
}

// New creates a ledger with a fresh balance.
func New(initialBalance, feeRate, dustThreshold decimal.Decimal) *Ledger {
	return &Ledger{
		balance:        initialBalance,
		positions:      make(map[string]models.Position),
		orders:         nil,
		totalFeesPaid:  decimal.Zero,
		initialBalance: initialBalance,
		feeRate:        feeRate,
		dustThreshold:  dustThreshold,
		now:            time.Now,
	}
}

// Restore creates a ledger from a persisted engine state.
func Restore(state *models.EngineState, feeRate, dustThreshold decimal.Decimal) *Ledger {
	positions := make(map[string]models.Position, len(state.Positions))
	for sym, pos := range state.Positions {
		positions[sym] = pos
	}
	orders := make([]models.Order, len(state.Orders))
	copy(orders, state.Orders)

	return &Ledger{
		balance:        state.Balance,
		positions:      positions,
		orders:         orders,
		totalFeesPaid:  state.TotalFeesPaid,
		initialBalance: state.InitialBalance,
		feeRate:        feeRate,
		dustThreshold:  dustThreshold,
		now:            time.Now,
	}
}

// Buy spends usdtAmount of cash on symbol at price. The fee is charged on
// the gross amount; the net remainder converts to quantity. The position's
// cost basis accumulates the gross amount.
func (l *Ledger) Buy(symbol string, usdtAmount, price decimal.Decimal) (*models.Order, error) {
	if usdtAmount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("buy %s for %s: %w", symbol, usdtAmount, ErrInvalidQuantity)
	}
	if price.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("buy %s: %w", symbol, ErrPriceUnavailable)
	}
	if usdtAmount.GreaterThan(l.balance) {
		return nil, fmt.Errorf("buy %s for %s with balance %s: %w",
			symbol, usdtAmount, l.balance, ErrInsufficientFunds)
	}

	fee := usdtAmount.Mul(l.feeRate)
	netAmount := usdtAmount.Sub(fee)
	quantity := netAmount.Div(price)

	order := models.Order{
		ID:         uuid.NewString(),
		Timestamp:  l.now(),
		Symbol:     symbol,
		Side:       models.OrderSideBuy,
		Quantity:   quantity,
		Price:      price,
		GrossValue: usdtAmount,
		Fee:        fee,
		NetValue:   netAmount,
		Status:     models.OrderStatusFilled,
	}

	// All checks passed; apply the full transaction.
	l.balance = l.balance.Sub(usdtAmount)
	pos, held := l.positions[symbol]
	if !held {
		pos = models.Position{Symbol: symbol, OpenedAt: order.Timestamp}
	}
	pos.Quantity = pos.Quantity.Add(quantity)
	pos.CostBasis = pos.CostBasis.Add(usdtAmount)
	l.positions[symbol] = pos
	l.orders = append(l.orders, order)
	l.totalFeesPaid = l.totalFeesPaid.Add(fee)

	return &order, nil
}

// Sell disposes of quantity of symbol at price, crediting the net proceeds
// to the balance. Cost basis is reduced proportionally; a residual below
// the dust threshold closes the position.
func (l *Ledger) Sell(symbol string, quantity, price decimal.Decimal) (*models.Order, error) {
	if quantity.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("sell %s of %s: %w", quantity, symbol, ErrInvalidQuantity)
	}
	if price.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("sell %s: %w", symbol, ErrPriceUnavailable)
	}
	pos, held := l.positions[symbol]
	if !held || quantity.GreaterThan(pos.Quantity) {
		return nil, fmt.Errorf("sell %s of %s holding %s: %w",
			quantity, symbol, pos.Quantity, ErrInsufficientPosition)
	}

	gross := quantity.Mul(price)
	fee := gross.Mul(l.feeRate)
	net := gross.Sub(fee)

	order := models.Order{
		ID:         uuid.NewString(),
		Timestamp:  l.now(),
		Symbol:     symbol,
		Side:       models.OrderSideSell,
		Quantity:   quantity,
		Price:      price,
		GrossValue: gross,
		Fee:        fee,
		NetValue:   net,
		Status:     models.OrderStatusFilled,
	}

	l.balance = l.balance.Add(net)
	soldFraction := quantity.Div(pos.Quantity)
	pos.CostBasis = pos.CostBasis.Sub(pos.CostBasis.Mul(soldFraction))
	pos.Quantity = pos.Quantity.Sub(quantity)
	if pos.Quantity.LessThan(l.dustThreshold) {
		delete(l.positions, symbol)
	} else {
		l.positions[symbol] = pos
	}
	l.orders = append(l.orders, order)
	l.totalFeesPaid = l.totalFeesPaid.Add(fee)

	return &order, nil
}

// SellAll closes the full held quantity of symbol.
func (l *Ledger) SellAll(symbol string, price decimal.Decimal) (*models.Order, error) {
	pos, held := l.positions[symbol]
	if !held {
		return nil, fmt.Errorf("sell all of %s: %w", symbol, ErrInsufficientPosition)
	}
	return l.Sell(symbol, pos.Quantity, price)
}

// PortfolioValue values the account at the given prices. Positions without
// a live price fall back to their average entry price and are flagged.
func (l *Ledger) PortfolioValue(prices map[string]decimal.Decimal) Valuation {
	v := Valuation{Total: l.balance, Invested: decimal.Zero}
	for sym, pos := range l.positions {
		price, ok := prices[sym]
		if !ok || price.LessThanOrEqual(decimal.Zero) {
			price = pos.AvgEntryPrice()
			v.FallbackSymbols = append(v.FallbackSymbols, sym)
		}
		value := pos.Quantity.Mul(price)
		v.Total = v.Total.Add(value)
		v.Invested = v.Invested.Add(value)
	}
	return v
}

// AssetPnL reports the unrealized P&L of one position at currentPrice.
func (l *Ledger) AssetPnL(symbol string, currentPrice decimal.Decimal) (AssetPnL, error) {
	pos, held := l.positions[symbol]
	if !held {
		return AssetPnL{}, fmt.Errorf("pnl for %s: %w", symbol, ErrInsufficientPosition)
	}
	entry := pos.AvgEntryPrice()
	unrealized := currentPrice.Sub(entry).Mul(pos.Quantity)
	pct := decimal.Zero
	if !entry.IsZero() {
		pct = currentPrice.Sub(entry).Div(entry).Mul(decimal.NewFromInt(100))
	}
	return AssetPnL{AvgEntryPrice: entry, UnrealizedUSD: unrealized, UnrealizedPct: pct}, nil
}

// ProfitSummary reports total account performance (realized + unrealized)
// against the initial balance, valuing positions at the given prices.
func (l *Ledger) ProfitSummary(prices map[string]decimal.Decimal) ProfitSummary {
	v := l.PortfolioValue(prices)
	profit := v.Total.Sub(l.initialBalance)
	pct := decimal.Zero
	if !l.initialBalance.IsZero() {
		pct = profit.Div(l.initialBalance).Mul(decimal.NewFromInt(100))
	}
	return ProfitSummary{ProfitUSD: profit, PctOfInitial: pct}
}

// Balance returns the current cash balance.
func (l *Ledger) Balance() decimal.Decimal { return l.balance }

// TotalFeesPaid returns the cumulative fees across all orders.
func (l *Ledger) TotalFeesPaid() decimal.Decimal { return l.totalFeesPaid }

// Position returns the open position for symbol, if any.
func (l *Ledger) Position(symbol string) (models.Position, bool) {
	pos, ok := l.positions[symbol]
	return pos, ok
}

// SetPosition stores an updated position. Used by the orchestrator to
// persist risk-rule changes (trailing stop ratchets); quantity and cost
// basis must not be altered through this path.
func (l *Ledger) SetPosition(pos models.Position) {
	if _, held := l.positions[pos.Symbol]; held {
		l.positions[pos.Symbol] = pos
	}
}

// OpenPositions returns a copy of all open positions.
func (l *Ledger) OpenPositions() map[string]models.Position {
	out := make(map[string]models.Position, len(l.positions))
	for sym, pos := range l.positions {
		out[sym] = pos
	}
	return out
}

// Orders returns the chronological order history.
func (l *Ledger) Orders() []models.Order {
	out := make([]models.Order, len(l.orders))
	copy(out, l.orders)
	return out
}

// Snapshot materializes the ledger into a persistable engine state.
// CycleCount and SavedAt are owned by the orchestrator/store.
func (l *Ledger) Snapshot() *models.EngineState {
	return &models.EngineState{
		Balance:        l.balance,
		Positions:      l.OpenPositions(),
		Orders:         l.Orders(),
		TotalFeesPaid:  l.totalFeesPaid,
		InitialBalance: l.initialBalance,
	}
}
