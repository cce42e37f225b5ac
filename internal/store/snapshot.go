package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"paper-trade-bot-go/internal/models"
)

// ErrCorruptState marks a snapshot that exists but cannot be trusted.
// Startup must halt on it rather than silently resetting the ledger;
// a fresh ledger in place of a corrupt one masks financial data loss.
var ErrCorruptState = errors.New("corrupt state snapshot")

// Store persists the engine state as a JSON document. Saves are atomic:
// the document is written to a temp file and renamed over the snapshot
// path, so a concurrent reader never observes a partial file.
type Store struct {
	path string
}

func New(path string) *Store {
	return &Store{path: path}
}

// Save writes the state snapshot. SavedAt is stamped here.
func (s *Store) Save(state *models.EngineState) error {
	state.SavedAt = time.Now().UTC()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp state: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("rename state into place: %w", err)
	}
	return nil
}

// Load reads the snapshot. A missing file returns (nil, nil) — first run.
// An unreadable, unparseable, or structurally invalid snapshot returns an
// error wrapping ErrCorruptState.
func (s *Store) Load() (*models.EngineState, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state %s: %w", s.path, err)
	}

	var state models.EngineState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptState, s.path, err)
	}
	if err := validate(&state); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptState, s.path, err)
	}
	return &state, nil
}

// validate enforces the structural invariants a trustworthy snapshot must
// satisfy. Decimal parse failures are already caught by Unmarshal.
func validate(state *models.EngineState) error {
	if state.Balance.IsNegative() {
		return fmt.Errorf("negative balance %s", state.Balance)
	}
	if state.InitialBalance.IsNegative() {
		return fmt.Errorf("negative initial balance %s", state.InitialBalance)
	}
	if state.TotalFeesPaid.IsNegative() {
		return fmt.Errorf("negative total fees %s", state.TotalFeesPaid)
	}
	if state.CycleCount < 0 {
		return fmt.Errorf("negative cycle count %d", state.CycleCount)
	}
	for sym, pos := range state.Positions {
		if pos.Quantity.IsNegative() {
			return fmt.Errorf("negative quantity for %s", sym)
		}
		if pos.CostBasis.IsNegative() {
			return fmt.Errorf("negative cost basis for %s", sym)
		}
	}
	for i, order := range state.Orders {
		if order.ID == "" {
			return fmt.Errorf("order %d missing id", i)
		}
		if order.Side != models.OrderSideBuy && order.Side != models.OrderSideSell {
			return fmt.Errorf("order %s has invalid side %q", order.ID, order.Side)
		}
	}
	return nil
}
