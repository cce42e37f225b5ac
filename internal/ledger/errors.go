package ledger

import "errors"

// Contract violations returned by Buy/Sell. These should never fire if the
// orchestrator respects ledger state first; they are returned rather than
// swallowed so tests can assert the invariants.
var (
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInsufficientPosition = errors.New("insufficient position")
	ErrInvalidQuantity      = errors.New("invalid quantity")
	ErrPriceUnavailable     = errors.New("price unavailable")
)
