package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle is a single OHLCV bar as returned by the market data gateway.
type Candle struct {
	OpenTime time.Time       `json:"open_time"`
	Open     decimal.Decimal `json:"open"`
	High     decimal.Decimal `json:"high"`
	Low      decimal.Decimal `json:"low"`
	Close    decimal.Decimal `json:"close"`
	Volume   decimal.Decimal `json:"volume"`
}

// Stats24h holds the rolling 24-hour statistics for a symbol.
type Stats24h struct {
	ChangePct decimal.Decimal `json:"change_pct"`
	Volume    decimal.Decimal `json:"volume"`
}

// MarketSnapshot bundles everything the confluence engine needs to score
// one symbol at one instant. It is assembled by the orchestrator from the
// gateway responses and passed by value so scorers stay side-effect free.
type MarketSnapshot struct {
	Symbol    string
	Price     decimal.Decimal
	Candles   []Candle
	Stats     Stats24h
	Sentiment int // Fear & Greed index, 0..100
	Now       time.Time
}
