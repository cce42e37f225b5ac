package database

import (
	"testing"
	"time"

	"paper-trade-bot-go/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func setupJournal(t *testing.T) *Journal {
	t.Helper()
	// Use a new, non-shared in-memory database for each test to ensure isolation.
	db, err := NewDatabase("file::memory:")
	assert.NoError(t, err)
	return NewJournal(db)
}

func TestJournal_AppendAndRead(t *testing.T) {
	j := setupJournal(t)
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	for i, side := range []string{models.OrderSideBuy, models.OrderSideSell, models.OrderSideBuy} {
		order := &models.Order{
			ID:         string(rune('a' + i)),
			Timestamp:  base.Add(time.Duration(i) * time.Minute),
			Symbol:     "BTCUSDT",
			Side:       side,
			Quantity:   d("0.001"),
			Price:      d("50000.12345678"),
			GrossValue: d("50.00012345678"),
			Fee:        d("0.05"),
			NetValue:   d("49.95"),
			Status:     models.OrderStatusFilled,
		}
		assert.NoError(t, j.Append(order))
	}

	orders, err := j.RecentOrders(2)
	assert.NoError(t, err)
	assert.Len(t, orders, 2)
	// Newest first.
	assert.Equal(t, "c", orders[0].ID)
	assert.Equal(t, "b", orders[1].ID)

	all, err := j.RecentOrders(10)
	assert.NoError(t, err)
	assert.Len(t, all, 3)
	// Decimal precision survives the sqlite round trip.
	assert.True(t, all[0].Price.Equal(d("50000.12345678")), "price = %s", all[0].Price)
}

func TestJournal_DuplicateIDRejected(t *testing.T) {
	j := setupJournal(t)
	order := &models.Order{
		ID: "dup", Timestamp: time.Now(), Symbol: "BTCUSDT",
		Side: models.OrderSideBuy, Quantity: d("1"), Price: d("1"),
		GrossValue: d("1"), Fee: d("0.001"), NetValue: d("0.999"),
		Status: models.OrderStatusFilled,
	}

	assert.NoError(t, j.Append(order))
	dup := *order
	assert.Error(t, j.Append(&dup), "orders are immutable; duplicate ids must not overwrite")
}
