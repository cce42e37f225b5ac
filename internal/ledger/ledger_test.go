package ledger

import (
	"testing"

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

func newTestLedger(balance string) *Ledger {
	return New(d(balance), d("0.001"), d("0.000001"))
}

func TestBuy_Scenario(t *testing.T) {
	// Balance $200, BUY $50 of SYM at $50,000 with 0.1% fee.
	l := newTestLedger("200.00")

	order, err := l.Buy("BTCUSDT", d("50"), d("50000"))

	assert.NoError(t, err)
	assert.Equal(t, models.OrderSideBuy, order.Side)
	assert.True(t, order.Fee.Equal(d("0.05")), "fee = %s", order.Fee)
	assert.True(t, order.Quantity.Equal(d("0.000999")), "quantity = %s", order.Quantity)
	assert.True(t, l.Balance().Equal(d("150.00")), "balance = %s", l.Balance())

	pos, held := l.Position("BTCUSDT")
	assert.True(t, held)
	assert.True(t, pos.CostBasis.Equal(d("50")))
	assert.True(t, pos.AvgEntryPrice().Equal(d("50").Div(d("0.000999"))))
}

func TestBuy_InsufficientFunds(t *testing.T) {
	l := newTestLedger("100")

	order, err := l.Buy("BTCUSDT", d("100.01"), d("50000"))

	assert.Nil(t, order)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	// The failed buy must not have touched any state.
	assert.True(t, l.Balance().Equal(d("100")))
	assert.Empty(t, l.Orders())
	assert.True(t, l.TotalFeesPaid().IsZero())
}

func TestBuy_PriceUnavailable(t *testing.T) {
	l := newTestLedger("100")

	_, err := l.Buy("BTCUSDT", d("50"), decimal.Zero)

	assert.ErrorIs(t, err, ErrPriceUnavailable)
}

func TestSell_InvalidAndOversell(t *testing.T) {
	l := newTestLedger("100")
	_, err := l.Buy("ETHUSDT", d("50"), d("2000"))
	assert.NoError(t, err)

	_, err = l.Sell("ETHUSDT", decimal.Zero, d("2000"))
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	pos, _ := l.Position("ETHUSDT")
	_, err = l.Sell("ETHUSDT", pos.Quantity.Add(d("1")), d("2000"))
	assert.ErrorIs(t, err, ErrInsufficientPosition)

	_, err = l.Sell("XRPUSDT", d("1"), d("2"))
	assert.ErrorIs(t, err, ErrInsufficientPosition)
}

func TestBuySell_RoundTripCostsTwoFees(t *testing.T) {
	l := newTestLedger("1000")

	_, err := l.Buy("BTCUSDT", d("100"), d("50000"))
	assert.NoError(t, err)
	_, err = l.SellAll("BTCUSDT", d("50000"))
	assert.NoError(t, err)

	// Fee on both legs: 100×0.001 + (100×0.999)×0.001.
	expectedLoss := d("100").Mul(d("0.001")).Add(d("100").Mul(d("0.999")).Mul(d("0.001")))
	assert.True(t, l.Balance().Equal(d("1000").Sub(expectedLoss)),
		"balance = %s, expected loss %s", l.Balance(), expectedLoss)

	_, held := l.Position("BTCUSDT")
	assert.False(t, held, "position should be closed")
}

func TestSell_PartialReducesCostBasisProportionally(t *testing.T) {
	l := newTestLedger("1000")
	_, err := l.Buy("ETHUSDT", d("400"), d("2000"))
	assert.NoError(t, err)

	before, _ := l.Position("ETHUSDT")
	half := before.Quantity.Div(d("2"))

	_, err = l.Sell("ETHUSDT", half, d("2100"))
	assert.NoError(t, err)

	after, held := l.Position("ETHUSDT")
	assert.True(t, held)
	assert.True(t, after.Quantity.Equal(half))
	assert.True(t, after.CostBasis.Equal(d("200")), "cost basis = %s", after.CostBasis)
	// Average entry price is unchanged by a partial sell.
	assert.True(t, after.AvgEntryPrice().Equal(before.AvgEntryPrice()))
}

func TestInvariants_FeeConservationAndNonNegativity(t *testing.T) {
	l := newTestLedger("500")

	ops := []func() error{
		func() error { _, err := l.Buy("BTCUSDT", d("200"), d("60000")); return err },
		func() error { _, err := l.Buy("ETHUSDT", d("150"), d("3000")); return err },
		func() error {
			pos, _ := l.Position("BTCUSDT")
			_, err := l.Sell("BTCUSDT", pos.Quantity.Div(d("3")), d("61000"))
			return err
		},
		func() error { _, err := l.Buy("BTCUSDT", d("50"), d("61500")); return err },
		func() error { _, err := l.SellAll("ETHUSDT", d("2900")); return err },
	}
	for _, op := range ops {
		assert.NoError(t, op())
		assert.False(t, l.Balance().IsNegative(), "balance went negative")
		for _, pos := range l.OpenPositions() {
			assert.False(t, pos.Quantity.IsNegative(), "negative quantity for %s", pos.Symbol)
		}
	}

	sum := decimal.Zero
	for _, o := range l.Orders() {
		sum = sum.Add(o.Fee)
	}
	assert.True(t, l.TotalFeesPaid().Equal(sum), "fees %s != Σ order fees %s", l.TotalFeesPaid(), sum)
}

func TestPortfolioValue_FallbackToEntryPrice(t *testing.T) {
	l := newTestLedger("1000")
	_, err := l.Buy("BTCUSDT", d("100"), d("50000"))
	assert.NoError(t, err)
	_, err = l.Buy("ETHUSDT", d("100"), d("2000"))
	assert.NoError(t, err)

	v := l.PortfolioValue(map[string]decimal.Decimal{"BTCUSDT": d("52000")})

	btc, _ := l.Position("BTCUSDT")
	eth, _ := l.Position("ETHUSDT")
	expected := l.Balance().
		Add(btc.Quantity.Mul(d("52000"))).
		Add(eth.Quantity.Mul(eth.AvgEntryPrice()))
	assert.True(t, v.Total.Equal(expected), "total = %s, expected %s", v.Total, expected)
	assert.Equal(t, []string{"ETHUSDT"}, v.FallbackSymbols)
}

func TestAssetPnL(t *testing.T) {
	l := newTestLedger("1000")
	_, err := l.Buy("BTCUSDT", d("100"), d("50000"))
	assert.NoError(t, err)

	pos, _ := l.Position("BTCUSDT")
	entry := pos.AvgEntryPrice()
	up := entry.Mul(d("1.10"))

	pnl, err := l.AssetPnL("BTCUSDT", up)
	assert.NoError(t, err)
	assert.True(t, pnl.AvgEntryPrice.Equal(entry))
	assert.True(t, pnl.UnrealizedPct.Round(8).Equal(d("10")), "pct = %s", pnl.UnrealizedPct)

	_, err = l.AssetPnL("DOGEUSDT", d("0.1"))
	assert.ErrorIs(t, err, ErrInsufficientPosition)
}

func TestProfitSummary(t *testing.T) {
	l := newTestLedger("1000")
	_, err := l.Buy("BTCUSDT", d("500"), d("50000"))
	assert.NoError(t, err)

	pos, _ := l.Position("BTCUSDT")
	// Price doubles: profit ≈ position value − initial allocation − fee.
	summary := l.ProfitSummary(map[string]decimal.Decimal{"BTCUSDT": d("100000")})
	expected := l.Balance().Add(pos.Quantity.Mul(d("100000"))).Sub(d("1000"))
	assert.True(t, summary.ProfitUSD.Equal(expected))
	assert.True(t, summary.PctOfInitial.Equal(expected.Div(d("1000")).Mul(d("100"))))
}

func TestSnapshotRestore(t *testing.T) {
	l := newTestLedger("1000")
	_, err := l.Buy("BTCUSDT", d("100"), d("50000"))
	assert.NoError(t, err)
	_, err = l.Buy("ETHUSDT", d("200"), d("3000"))
	assert.NoError(t, err)

	state := l.Snapshot()
	restored := Restore(state, d("0.001"), d("0.000001"))

	assert.True(t, restored.Balance().Equal(l.Balance()))
	assert.True(t, restored.TotalFeesPaid().Equal(l.TotalFeesPaid()))
	assert.Equal(t, l.Orders(), restored.Orders())
	assert.Equal(t, l.OpenPositions(), restored.OpenPositions())
}
