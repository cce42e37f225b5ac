package trader

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"paper-trade-bot-go/internal/binance"
	"paper-trade-bot-go/internal/config"
	"paper-trade-bot-go/internal/confluence"
	"paper-trade-bot-go/internal/database"
	"paper-trade-bot-go/internal/guard"
	"paper-trade-bot-go/internal/ledger"
	"paper-trade-bot-go/internal/models"
	"paper-trade-bot-go/internal/risk"
	"paper-trade-bot-go/internal/sentiment"
	"paper-trade-bot-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// neutralSentiment stands in for the Fear & Greed index when the feed is
// unreachable, so scoring degrades toward HOLD instead of skewing.
const neutralSentiment = 50

// Engine is the cycle orchestrator. Once per tick it walks all tracked
// symbols: open positions go through the risk manager, everything else
// through the confluence engine and portfolio guard. All ledger mutation
// happens on this single goroutine.
type Engine struct {
	logger     *zap.Logger
	cfg        *config.Config
	restClient binance.RestClientInterface
	sentiment  sentiment.ClientInterface
	ledger     *ledger.Ledger
	confluence *confluence.Engine
	risk       *risk.Manager
	guard      *guard.Guard
	store      *store.Store
	journal    *database.Journal

	cycleCount int64
	startTime  time.Time

	mu     sync.Mutex
	status Status

	now func() time.Time
}

// Status is a read-only copy of engine state for the API server, refreshed
// at the end of every cycle so readers never touch live ledger state.
type Status struct {
	CycleCount    int64     `json:"cycle_count"`
	Balance       string    `json:"balance"`
	OpenPositions []string  `json:"open_positions"`
	TotalFeesPaid string    `json:"total_fees_paid"`
	LastCycleAt   time.Time `json:"last_cycle_at"`
}

// NewEngine wires the orchestrator. The confluence engine, risk manager and
// portfolio guard are built here from configuration; ledger, store and
// journal are owned by the caller (they carry persistent state).
func NewEngine(
	logger *zap.Logger,
	cfg *config.Config,
	restClient binance.RestClientInterface,
	sentimentClient sentiment.ClientInterface,
	led *ledger.Ledger,
	st *store.Store,
	journal *database.Journal,
	cycleCount int64,
) (*Engine, error) {
	scorers := []confluence.WeightedScorer{
		{Scorer: confluence.MacroScorer{}, Weight: decimal.NewFromFloat(cfg.Scoring.Weights.Macro)},
		{Scorer: confluence.PriceActionScorer{}, Weight: decimal.NewFromFloat(cfg.Scoring.Weights.PriceAction)},
		{Scorer: confluence.OnChainScorer{}, Weight: decimal.NewFromFloat(cfg.Scoring.Weights.OnChain)},
		{Scorer: confluence.CycleScorer{}, Weight: decimal.NewFromFloat(cfg.Scoring.Weights.Cycle)},
	}
	confEngine, err := confluence.NewEngine(scorers, confluence.Thresholds{
		Buy:           decimal.NewFromFloat(cfg.Scoring.BuyThreshold),
		Sell:          decimal.NewFromFloat(cfg.Scoring.SellThreshold),
		MinConfidence: decimal.NewFromFloat(cfg.Scoring.MinConfidence),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build confluence engine: %w", err)
	}

	return &Engine{
		logger:     logger,
		cfg:        cfg,
		restClient: restClient,
		sentiment:  sentimentClient,
		ledger:     led,
		confluence: confEngine,
		risk:       risk.NewManager(decimal.NewFromFloat(cfg.Risk.PartialTPFraction)),
		guard: guard.New(guard.Limits{
			MaxPositions:        cfg.Guard.MaxPositions,
			MaxPerSymbolPct:     decimal.NewFromFloat(cfg.Guard.MaxPerSymbolPct),
			MaxTotalExposurePct: decimal.NewFromFloat(cfg.Guard.MaxTotalExposurePct),
			MinTradeInterval:    time.Duration(cfg.Guard.MinTradeInterval) * time.Second,
			MaxTradesPerDay:     cfg.Guard.MaxTradesPerDay,
		}),
		store:      st,
		journal:    journal,
		cycleCount: cycleCount,
		startTime:  time.Now(),
		now:        time.Now,
	}, nil
}

// Run starts the trading engine's main loop. A shutdown signal finishes the
// in-flight cycle, persists final state and returns.
func (e *Engine) Run(ctx context.Context) {
	interval := time.Duration(e.cfg.Trading.TickInterval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("Starting trading cycle loop",
		zap.Duration("interval", interval),
		zap.Strings("symbols", e.cfg.Trading.Symbols),
		zap.Bool("dry_run", e.cfg.Trading.DryRun))

	e.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Stopping trading engine...")
			if err := e.persist(); err != nil {
				e.logger.Error("Failed to persist final state", zap.Error(err))
			}
			return
		case <-ticker.C:
			e.runCycle(ctx)
		}
	}
}

// runCycle performs one full pass over all tracked symbols and persists the
// resulting state.
func (e *Engine) runCycle(ctx context.Context) {
	e.cycleCount++
	l := e.logger.With(zap.Int64("cycle", e.cycleCount))
	l.Info("Starting trading cycle")

	sentimentValue := e.fetchSentiment(ctx, l)
	prices := e.fetchPrices(l)

	for _, symbol := range e.cfg.Trading.Symbols {
		price, ok := prices[symbol]
		if !ok {
			l.Warn("Skipping symbol for this cycle, price unavailable", zap.String("symbol", symbol))
			continue
		}

		if pos, held := e.ledger.Position(symbol); held {
			e.manageOpenPosition(l, pos, price)
		} else {
			e.scoutEntry(l, symbol, price, sentimentValue, prices)
		}
	}

	if err := e.persist(); err != nil {
		l.Error("Failed to persist engine state", zap.Error(err))
	}
	e.refreshStatus()
	l.Info("Trading cycle complete",
		zap.String("balance", e.ledger.Balance().String()),
		zap.Int("open_positions", len(e.ledger.OpenPositions())))
}

// fetchSentiment returns the Fear & Greed index, or a neutral value when
// the feed is down. Sentiment failure must not abort the cycle.
func (e *Engine) fetchSentiment(ctx context.Context, l *zap.Logger) int {
	value, err := e.sentiment.GetFearGreedIndex(ctx)
	if err != nil {
		l.Warn("Sentiment feed unavailable, using neutral value", zap.Error(err))
		return neutralSentiment
	}
	return value
}

// fetchPrices collects current prices for all tracked symbols. A failed
// fetch only drops that symbol from the cycle.
func (e *Engine) fetchPrices(l *zap.Logger) map[string]decimal.Decimal {
	prices := make(map[string]decimal.Decimal, len(e.cfg.Trading.Symbols))
	for _, symbol := range e.cfg.Trading.Symbols {
		price, err := e.restClient.GetPrice(symbol)
		if err != nil {
			l.Warn("Failed to fetch price", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		prices[symbol] = price
	}
	return prices
}

// manageOpenPosition runs the risk rules for one held symbol and executes
// any exit the risk manager emits.
func (e *Engine) manageOpenPosition(l *zap.Logger, pos models.Position, price decimal.Decimal) {
	if e.risk.UpdateTrailing(&pos, price) {
		e.ledger.SetPosition(pos)
		l.Debug("Trailing stop ratcheted",
			zap.String("symbol", pos.Symbol),
			zap.String("trailing_stop", pos.Rule.TrailingStop.String()))
	}

	intent := e.risk.Evaluate(pos, price)
	if intent == nil {
		return
	}

	l.Info("Risk exit triggered",
		zap.String("symbol", intent.Symbol),
		zap.String("reason", string(intent.Reason)),
		zap.String("detail", intent.Detail))

	order, err := e.ledger.Sell(intent.Symbol, intent.Quantity, price)
	if err != nil {
		// Contract violation: the intent came from ledger state.
		l.Error("Risk exit failed against ledger", zap.Error(err))
		return
	}
	e.afterOrder(l, order)
}

// scoutEntry evaluates one unheld symbol and opens a position when the
// confluence signal is BUY and the portfolio guard admits the entry.
func (e *Engine) scoutEntry(l *zap.Logger, symbol string, price decimal.Decimal, sentimentValue int, prices map[string]decimal.Decimal) {
	candles, err := e.restClient.GetKlines(symbol, e.cfg.Trading.KlineInterval, e.cfg.Trading.KlineLimit)
	if err != nil {
		l.Warn("Failed to fetch klines, skipping symbol", zap.String("symbol", symbol), zap.Error(err))
		return
	}
	stats, err := e.restClient.Get24hStats(symbol)
	if err != nil {
		l.Warn("Failed to fetch 24h stats, skipping symbol", zap.String("symbol", symbol), zap.Error(err))
		return
	}

	snap := models.MarketSnapshot{
		Symbol:    symbol,
		Price:     price,
		Candles:   candles,
		Stats:     stats,
		Sentiment: sentimentValue,
		Now:       e.now(),
	}
	result := e.confluence.Evaluate(snap)
	l.Info("Confluence result",
		zap.String("symbol", symbol),
		zap.String("signal", string(result.Signal)),
		zap.String("score", result.AggregateScore.Round(4).String()),
		zap.String("confidence", result.Confidence.Round(2).String()),
		zap.String("rationale", result.Rationale))

	if result.Signal != confluence.SignalBuy {
		return
	}

	amount := e.positionSize(result.Confidence, candles)
	if amount.GreaterThan(e.ledger.Balance()) {
		l.Info("Skipping entry, sized amount exceeds balance",
			zap.String("symbol", symbol), zap.String("amount", amount.String()))
		return
	}

	if rejection := e.guard.Check(e.entryRequest(symbol, amount, prices)); rejection != nil {
		// Expected outcome, HOLD-equivalent.
		l.Info("Entry rejected by portfolio guard",
			zap.String("symbol", symbol),
			zap.String("reason", rejection.Reason),
			zap.String("detail", rejection.Detail))
		return
	}

	order, err := e.ledger.Buy(symbol, amount, price)
	if err != nil {
		l.Error("Buy failed against ledger", zap.String("symbol", symbol), zap.Error(err))
		return
	}

	// Attach the risk rule at position-open time.
	if pos, held := e.ledger.Position(symbol); held {
		pos.Rule = models.RiskRule{
			StopLossPct:     decimal.NewFromFloat(e.cfg.Risk.StopLossPct),
			TakeProfitPct:   decimal.NewFromFloat(e.cfg.Risk.TakeProfitPct),
			TrailingEnabled: e.cfg.Risk.TrailingEnabled,
			TrailPct:        decimal.NewFromFloat(e.cfg.Risk.TrailPct),
		}
		e.risk.UpdateTrailing(&pos, price)
		e.ledger.SetPosition(pos)
	}

	l.Info("Opened position",
		zap.String("symbol", symbol),
		zap.String("amount", amount.String()),
		zap.String("quantity", order.Quantity.String()),
		zap.String("price", price.String()))
	e.afterOrder(l, order)
}

// entryRequest assembles the guard's pure view from ledger state.
func (e *Engine) entryRequest(symbol string, amount decimal.Decimal, prices map[string]decimal.Decimal) guard.EntryRequest {
	valuation := e.ledger.PortfolioValue(prices)
	_, held := e.ledger.Position(symbol)

	symbolValue := decimal.Zero
	if pos, ok := e.ledger.Position(symbol); ok {
		if price, ok := prices[symbol]; ok {
			symbolValue = pos.Quantity.Mul(price)
		} else {
			symbolValue = pos.CostBasis
		}
	}

	now := e.now()
	var lastBuyAt time.Time
	tradesToday := 0
	for _, order := range e.ledger.Orders() {
		if order.Side != models.OrderSideBuy {
			continue
		}
		if order.Timestamp.After(lastBuyAt) {
			lastBuyAt = order.Timestamp
		}
		y1, m1, d1 := order.Timestamp.UTC().Date()
		y2, m2, d2 := now.UTC().Date()
		if y1 == y2 && m1 == m2 && d1 == d2 {
			tradesToday++
		}
	}

	return guard.EntryRequest{
		Symbol:        symbol,
		Amount:        amount,
		OpenPositions: len(e.ledger.OpenPositions()),
		SymbolHeld:    held,
		SymbolValue:   symbolValue,
		TotalValue:    valuation.Total,
		TotalInvested: valuation.Invested,
		LastBuyAt:     lastBuyAt,
		TradesToday:   tradesToday,
		Now:           now,
	}
}

// positionSize computes the gross USDT amount for a new entry: the risk
// fraction of the balance, scaled by confidence and damped by observed
// volatility, clamped to [min_notional, max_position_size].
func (e *Engine) positionSize(confidence decimal.Decimal, candles []models.Candle) decimal.Decimal {
	base := e.ledger.Balance().Mul(decimal.NewFromFloat(e.cfg.Trading.RiskFraction))
	size := base.Mul(confidence.Div(decimal.NewFromInt(100)))

	// Volatility is a boundary scalar, not ledger money; float is fine here.
	vol := returnStdev(candles)
	if vol > 0 {
		damp := decimal.NewFromFloat(1 + 10*vol)
		size = size.Div(damp)
	}

	minNotional := decimal.NewFromFloat(e.cfg.Trading.MinNotional)
	maxSize := decimal.NewFromFloat(e.cfg.Trading.MaxPositionSize)
	if size.LessThan(minNotional) {
		size = minNotional
	}
	if size.GreaterThan(maxSize) {
		size = maxSize
	}
	return size
}

// returnStdev is the standard deviation of close-to-close returns over the
// candle window.
func returnStdev(candles []models.Candle) float64 {
	if len(candles) < 3 {
		return 0
	}
	returns := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		prev := candles[i-1].Close.InexactFloat64()
		cur := candles[i].Close.InexactFloat64()
		if prev <= 0 {
			continue
		}
		returns = append(returns, cur/prev-1)
	}
	if len(returns) < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))
	return math.Sqrt(variance)
}

// afterOrder journals an executed order and, outside dry-run, mirrors it to
// the exchange through the execution gateway.
func (e *Engine) afterOrder(l *zap.Logger, order *models.Order) {
	if e.journal != nil {
		if err := e.journal.Append(order); err != nil {
			l.Error("Failed to journal order", zap.Error(err))
		}
	}

	if !e.cfg.Trading.DryRun {
		if _, err := e.restClient.CreateOrder(order.Symbol, order.Side, order.Quantity); err != nil {
			l.Error("Failed to mirror order to exchange",
				zap.String("order_id", order.ID), zap.Error(err))
		}
	}
}

// persist snapshots the ledger and writes it through the atomic store.
func (e *Engine) persist() error {
	state := e.ledger.Snapshot()
	state.CycleCount = e.cycleCount
	return e.store.Save(state)
}

// refreshStatus publishes a copy of engine state for the API server.
func (e *Engine) refreshStatus() {
	positions := e.ledger.OpenPositions()
	symbols := make([]string, 0, len(positions))
	for symbol := range positions {
		symbols = append(symbols, symbol)
	}

	e.mu.Lock()
	e.status = Status{
		CycleCount:    e.cycleCount,
		Balance:       e.ledger.Balance().String(),
		OpenPositions: symbols,
		TotalFeesPaid: e.ledger.TotalFeesPaid().String(),
		LastCycleAt:   e.now(),
	}
	e.mu.Unlock()
}

// Status returns the most recently published status copy.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// StartTime reports when the engine was constructed.
func (e *Engine) StartTime() time.Time { return e.startTime }
