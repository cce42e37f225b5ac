package confluence

import (
	"fmt"

	"paper-trade-bot-go/internal/models"

	"github.com/shopspring/decimal"
)

// The concrete scorers below are deterministic indicator computations over
// the market snapshot. Each returns a neutral 0.5 when its inputs are
// missing, so a thin snapshot degrades to HOLD instead of a skewed signal.

var (
	half    = decimal.NewFromFloat(0.5)
	one     = decimal.NewFromInt(1)
	neutral = half
)

func clamp01(v decimal.Decimal) decimal.Decimal {
	if v.LessThan(decimal.Zero) {
		return decimal.Zero
	}
	if v.GreaterThan(one) {
		return one
	}
	return v
}

// MacroScorer blends 24h momentum with the market-wide Fear & Greed index.
// A flat market with neutral sentiment scores 0.5; ±10% daily moves and
// sentiment extremes push the score toward the bounds.
type MacroScorer struct{}

func (MacroScorer) Name() string { return "macro" }

func (MacroScorer) Score(snap models.MarketSnapshot) (decimal.Decimal, string) {
	// ±10% change maps to the full [0,1] momentum range.
	momentum := clamp01(half.Add(snap.Stats.ChangePct.Div(decimal.NewFromInt(20))))
	sentiment := clamp01(decimal.NewFromInt(int64(snap.Sentiment)).Div(hundred))

	score := momentum.Add(sentiment).Div(decimal.NewFromInt(2))
	return score, fmt.Sprintf("24h change %s%%, fear/greed %d", snap.Stats.ChangePct, snap.Sentiment)
}

// PriceActionScorer measures the current price against the volume-weighted
// average price of the candle window. Trading below VWAP scores high
// (discounted entry), above scores low.
type PriceActionScorer struct{}

func (PriceActionScorer) Name() string { return "price_action" }

func (PriceActionScorer) Score(snap models.MarketSnapshot) (decimal.Decimal, string) {
	vwap, ok := computeVWAP(snap.Candles)
	if !ok || vwap.IsZero() || snap.Price.IsZero() {
		return neutral, "insufficient candle data for VWAP"
	}

	// ±5% deviation from VWAP maps to the full score range.
	deviation := snap.Price.Sub(vwap).Div(vwap)
	score := clamp01(half.Sub(deviation.Mul(decimal.NewFromInt(10))))
	return score, fmt.Sprintf("price %s vs VWAP %s", snap.Price, vwap.Round(8))
}

func computeVWAP(candles []models.Candle) (decimal.Decimal, bool) {
	if len(candles) == 0 {
		return decimal.Zero, false
	}
	three := decimal.NewFromInt(3)
	pv := decimal.Zero
	vol := decimal.Zero
	for _, c := range candles {
		typical := c.High.Add(c.Low).Add(c.Close).Div(three)
		pv = pv.Add(typical.Mul(c.Volume))
		vol = vol.Add(c.Volume)
	}
	if vol.IsZero() {
		return decimal.Zero, false
	}
	return pv.Div(vol), true
}

// OnChainScorer approximates on-chain accumulation pressure with an
// OBV-style signed volume balance over the candle window: volume on up
// candles counts positive, on down candles negative.
type OnChainScorer struct{}

func (OnChainScorer) Name() string { return "on_chain" }

func (OnChainScorer) Score(snap models.MarketSnapshot) (decimal.Decimal, string) {
	if len(snap.Candles) < 2 {
		return neutral, "insufficient candle data for volume trend"
	}

	signed := decimal.Zero
	total := decimal.Zero
	for i := 1; i < len(snap.Candles); i++ {
		prev, cur := snap.Candles[i-1], snap.Candles[i]
		total = total.Add(cur.Volume)
		switch {
		case cur.Close.GreaterThan(prev.Close):
			signed = signed.Add(cur.Volume)
		case cur.Close.LessThan(prev.Close):
			signed = signed.Sub(cur.Volume)
		}
	}
	if total.IsZero() {
		return neutral, "no volume in candle window"
	}

	// signed/total is in [-1,1]; shift to [0,1].
	ratio := signed.Div(total)
	score := clamp01(ratio.Add(one).Div(decimal.NewFromInt(2)))
	return score, fmt.Sprintf("signed volume balance %s", ratio.Round(4))
}

// CycleScorer scores where price sits within the recent high/low range.
// Near the bottom of the range scores high (early in the local cycle),
// near the top scores low.
type CycleScorer struct{}

func (CycleScorer) Name() string { return "cycle" }

func (CycleScorer) Score(snap models.MarketSnapshot) (decimal.Decimal, string) {
	if len(snap.Candles) == 0 || snap.Price.IsZero() {
		return neutral, "insufficient candle data for range position"
	}

	low := snap.Candles[0].Low
	high := snap.Candles[0].High
	for _, c := range snap.Candles[1:] {
		if c.Low.LessThan(low) {
			low = c.Low
		}
		if c.High.GreaterThan(high) {
			high = c.High
		}
	}
	if high.Equal(low) {
		return neutral, "flat range"
	}

	rangePos := snap.Price.Sub(low).Div(high.Sub(low))
	score := clamp01(one.Sub(rangePos))
	return score, fmt.Sprintf("price at %s of %s-%s range", rangePos.Round(4), low, high)
}
