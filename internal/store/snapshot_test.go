package store

import (
	"os"
	"path/filepath"
	"strings"
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

func sampleState() *models.EngineState {
	return &models.EngineState{
		Balance: d("150.00"),
		Positions: map[string]models.Position{
			"BTCUSDT": {
				Symbol:    "BTCUSDT",
				Quantity:  d("0.000999"),
				CostBasis: d("50"),
				Rule:      models.RiskRule{StopLossPct: d("4"), TakeProfitPct: d("8")},
				OpenedAt:  time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
			},
		},
		Orders: []models.Order{{
			ID:         "ord-1",
			Timestamp:  time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
			Symbol:     "BTCUSDT",
			Side:       models.OrderSideBuy,
			Quantity:   d("0.000999"),
			Price:      d("50000"),
			GrossValue: d("50"),
			Fee:        d("0.05"),
			NetValue:   d("49.95"),
			Status:     models.OrderStatusFilled,
		}},
		TotalFeesPaid:  d("0.05"),
		InitialBalance: d("200.00"),
		CycleCount:     7,
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s := New(path)
	state := sampleState()

	assert.NoError(t, s.Save(state))
	loaded, err := s.Load()
	assert.NoError(t, err)
	assert.NotNil(t, loaded)

	// Decimal fields must round-trip bit-for-bit on their string form.
	assert.Equal(t, state.Balance.String(), loaded.Balance.String())
	assert.Equal(t, state.TotalFeesPaid.String(), loaded.TotalFeesPaid.String())
	assert.Equal(t, state.InitialBalance.String(), loaded.InitialBalance.String())
	assert.Equal(t, state.CycleCount, loaded.CycleCount)

	pos := loaded.Positions["BTCUSDT"]
	assert.Equal(t, "0.000999", pos.Quantity.String())
	assert.Equal(t, "50", pos.CostBasis.String())

	assert.Len(t, loaded.Orders, 1)
	assert.Equal(t, "0.05", loaded.Orders[0].Fee.String())
	assert.Equal(t, "50000", loaded.Orders[0].Price.String())
}

func TestSave_AtomicNoTempLeftBehind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	s := New(path)

	assert.NoError(t, s.Save(sampleState()))

	_, err := os.Stat(path)
	assert.NoError(t, err)
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file must be renamed away")

	// Overwriting an existing snapshot also goes through the rename path.
	assert.NoError(t, s.Save(sampleState()))
	entries, err := os.ReadDir(dir)
	assert.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLoad_MissingFileIsFreshStart(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "nope.json"))

	state, err := s.Load()
	assert.NoError(t, err)
	assert.Nil(t, state)
}

func TestLoad_MalformedJSONIsCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	assert.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := New(path).Load()
	assert.ErrorIs(t, err, ErrCorruptState)
}

func TestLoad_BadDecimalIsCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	doc := `{"balance": "not-a-number", "positions": {}, "orders": [],
		"total_fees_paid": "0", "initial_balance": "100", "cycle_count": 0}`
	assert.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	_, err := New(path).Load()
	assert.ErrorIs(t, err, ErrCorruptState)
}

func TestLoad_StructurallyInvalidIsCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s := New(path)

	cases := map[string]func(*models.EngineState){
		"negative balance":  func(st *models.EngineState) { st.Balance = d("-1") },
		"negative quantity": func(st *models.EngineState) { p := st.Positions["BTCUSDT"]; p.Quantity = d("-2"); st.Positions["BTCUSDT"] = p },
		"negative fees":     func(st *models.EngineState) { st.TotalFeesPaid = d("-0.01") },
		"bad order side":    func(st *models.EngineState) { st.Orders[0].Side = "SHORT" },
		"missing order id":  func(st *models.EngineState) { st.Orders[0].ID = "" },
	}
	for name, mutate := range cases {
		t.Run(strings.ReplaceAll(name, " ", "_"), func(t *testing.T) {
			state := sampleState()
			mutate(state)
			assert.NoError(t, s.Save(state))

			_, err := s.Load()
			assert.ErrorIs(t, err, ErrCorruptState)
		})
	}
}
