package confluence

import (
	"fmt"
	"strings"
	"time"

	"paper-trade-bot-go/internal/models"

	"github.com/shopspring/decimal"
)

// Signal is the trading decision emitted by the engine.
type Signal string

const (
	SignalBuy  Signal = "BUY"
	SignalSell Signal = "SELL"
	SignalHold Signal = "HOLD"
)

// Scorer is one independent confluence factor. Implementations must be pure
// functions of the snapshot: identical inputs always yield identical output.
// The score is in [0,1]; the rationale is a short human-readable explanation
// kept for the audit log.
type Scorer interface {
	Name() string
	Score(snap models.MarketSnapshot) (decimal.Decimal, string)
}

// SubScore is one factor's contribution to a Result.
type SubScore struct {
	Score     decimal.Decimal `json:"score"`
	Weight    decimal.Decimal `json:"weight"`
	Rationale string          `json:"rationale"`
}

// Result is the ephemeral decision artifact produced once per symbol per
// cycle. It is logged but never persisted as ledger state.
type Result struct {
	Symbol         string              `json:"symbol"`
	Timestamp      time.Time           `json:"timestamp"`
	SubScores      map[string]SubScore `json:"sub_scores"`
	AggregateScore decimal.Decimal     `json:"aggregate_score"` // 0..4
	Confidence     decimal.Decimal     `json:"confidence"`      // 0..100
	Signal         Signal              `json:"signal"`
	Rationale      string              `json:"rationale"`
}

// Thresholds are the signal decision bands. Boundaries are inclusive.
type Thresholds struct {
	Buy           decimal.Decimal // aggregate score, default 3.2
	Sell          decimal.Decimal // aggregate score, default 2.4
	MinConfidence decimal.Decimal // percent, default 70
}

// WeightedScorer pairs a scorer with its aggregation weight.
type WeightedScorer struct {
	Scorer Scorer
	Weight decimal.Decimal
}

// Engine aggregates a fixed set of weighted scorers into one score,
// confidence and signal. It holds no mutable state and is safe to reuse
// across cycles.
type Engine struct {
	scorers    []WeightedScorer
	thresholds Thresholds
}

var four = decimal.NewFromInt(4)
var hundred = decimal.NewFromInt(100)

// NewEngine builds an engine. Weights must be positive and sum to 1.
func NewEngine(scorers []WeightedScorer, thresholds Thresholds) (*Engine, error) {
	if len(scorers) == 0 {
		return nil, fmt.Errorf("confluence: no scorers configured")
	}
	sum := decimal.Zero
	for _, ws := range scorers {
		if ws.Weight.LessThanOrEqual(decimal.Zero) {
			return nil, fmt.Errorf("confluence: non-positive weight for %s", ws.Scorer.Name())
		}
		sum = sum.Add(ws.Weight)
	}
	if !sum.Equal(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("confluence: weights sum to %s, want 1", sum)
	}
	return &Engine{scorers: scorers, thresholds: thresholds}, nil
}

// Evaluate scores one snapshot. aggregate = 4 × Σ(weight·score), confidence
// = aggregate/4 × 100. BUY requires aggregate ≥ buy threshold AND confidence
// ≥ minimum confidence; SELL fires at aggregate ≤ sell threshold; everything
// else is HOLD.
func (e *Engine) Evaluate(snap models.MarketSnapshot) Result {
	subScores := make(map[string]SubScore, len(e.scorers))
	weighted := decimal.Zero
	var rationales []string

	for _, ws := range e.scorers {
		score, rationale := ws.Scorer.Score(snap)
		subScores[ws.Scorer.Name()] = SubScore{Score: score, Weight: ws.Weight, Rationale: rationale}
		weighted = weighted.Add(ws.Weight.Mul(score))
		rationales = append(rationales, fmt.Sprintf("%s: %s", ws.Scorer.Name(), rationale))
	}

	aggregate := four.Mul(weighted)
	confidence := aggregate.Div(four).Mul(hundred)

	signal := SignalHold
	switch {
	case aggregate.GreaterThanOrEqual(e.thresholds.Buy) &&
		confidence.GreaterThanOrEqual(e.thresholds.MinConfidence):
		signal = SignalBuy
	case aggregate.LessThanOrEqual(e.thresholds.Sell):
		signal = SignalSell
	}

	return Result{
		Symbol:         snap.Symbol,
		Timestamp:      snap.Now,
		SubScores:      subScores,
		AggregateScore: aggregate,
		Confidence:     confidence,
		Signal:         signal,
		Rationale:      strings.Join(rationales, "; "),
	}
}

// Timeframe is one horizon in multi-timeframe mode.
type Timeframe struct {
	Name    string
	Weight  decimal.Decimal
	Scorers []WeightedScorer
}

// EvaluateMultiTimeframe runs one evaluation per timeframe (the caller
// supplies one snapshot per timeframe, typically with different candle
// windows) and requires a strict majority of timeframes to agree before
// emitting BUY or SELL. Conflicting signals force HOLD. The combined score
// and confidence are the timeframe-weighted averages.
func (e *Engine) EvaluateMultiTimeframe(snaps map[string]models.MarketSnapshot, frames []Timeframe) Result {
	if len(frames) == 0 {
		return Result{Signal: SignalHold, Rationale: "no timeframes configured"}
	}

	counts := map[Signal]int{}
	combined := Result{
		SubScores: make(map[string]SubScore),
		Signal:    SignalHold,
	}
	totalWeight := decimal.Zero

	for _, frame := range frames {
		snap, ok := snaps[frame.Name]
		if !ok {
			continue
		}
		frameEngine := Engine{scorers: frame.Scorers, thresholds: e.thresholds}
		if len(frame.Scorers) == 0 {
			frameEngine.scorers = e.scorers
		}
		res := frameEngine.Evaluate(snap)

		counts[res.Signal]++
		combined.Symbol = res.Symbol
		combined.Timestamp = res.Timestamp
		combined.AggregateScore = combined.AggregateScore.Add(res.AggregateScore.Mul(frame.Weight))
		combined.Confidence = combined.Confidence.Add(res.Confidence.Mul(frame.Weight))
		totalWeight = totalWeight.Add(frame.Weight)
		for name, sub := range res.SubScores {
			combined.SubScores[frame.Name+"/"+name] = sub
		}
	}

	if totalWeight.IsZero() {
		combined.Rationale = "no market data for any timeframe"
		return combined
	}
	combined.AggregateScore = combined.AggregateScore.Div(totalWeight)
	combined.Confidence = combined.Confidence.Div(totalWeight)

	evaluated := counts[SignalBuy] + counts[SignalSell] + counts[SignalHold]
	majority := evaluated/2 + 1
	switch {
	case counts[SignalBuy] >= majority && counts[SignalSell] == 0:
		combined.Signal = SignalBuy
		combined.Rationale = fmt.Sprintf("%d/%d timeframes agree on BUY", counts[SignalBuy], evaluated)
	case counts[SignalSell] >= majority && counts[SignalBuy] == 0:
		combined.Signal = SignalSell
		combined.Rationale = fmt.Sprintf("%d/%d timeframes agree on SELL", counts[SignalSell], evaluated)
	case counts[SignalBuy] > 0 && counts[SignalSell] > 0:
		combined.Signal = SignalHold
		combined.Rationale = "mixed signals"
	default:
		combined.Signal = SignalHold
		combined.Rationale = "no timeframe majority"
	}
	return combined
}
