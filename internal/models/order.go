package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	OrderSideBuy  = "BUY"
	OrderSideSell = "SELL"

	OrderStatusFilled = "FILLED"
)

// Order is an immutable record of one executed paper trade. Orders are
// appended to the engine's history in chronological order and are never
// mutated after creation.
type Order struct {
	ID         string          `json:"id" gorm:"primaryKey"`
	Timestamp  time.Time       `json:"timestamp"`
	Symbol     string          `json:"symbol" gorm:"index"`
	Side       string          `json:"side"` // "BUY" or "SELL"
	Quantity   decimal.Decimal `json:"quantity" gorm:"type:numeric"`
	Price      decimal.Decimal `json:"price" gorm:"type:numeric"`
	GrossValue decimal.Decimal `json:"gross_value" gorm:"type:numeric"`
	Fee        decimal.Decimal `json:"fee" gorm:"type:numeric"`
	NetValue   decimal.Decimal `json:"net_value" gorm:"type:numeric"`
	Status     string          `json:"status"`
}
