package lending

import (
	"fmt"
	"strings"
)

// DepositMode selects how a deposit interacts with an existing collateral
// record.
type DepositMode string

const (
	// DepositAccumulate tops up a record holding the same token and rejects a
	// different token.
	DepositAccumulate DepositMode = "accumulate"
	// DepositReplace overwrites the record with the new token and amount.
	DepositReplace DepositMode = "replace"
)

// DefaultPayoutDenom is the currency borrowed funds are paid out in.
const DefaultPayoutDenom = "usdc"

// Params groups the host-selected policies of the engine.
type Params struct {
	DepositMode DepositMode
	// FixedBorrowRate, when set, is snapshotted into new loans instead of the
	// configured base rate.
	FixedBorrowRate *Decimal
	// MaxLTVBps bounds total due against collateral, in basis points. Zero
	// disables the check.
	MaxLTVBps uint64
	// PayoutDenom names the currency of borrow payouts.
	PayoutDenom string
}

// DefaultParams returns the policies used when the host does not override them.
func DefaultParams() Params {
	return Params{
		DepositMode: DepositAccumulate,
		PayoutDenom: DefaultPayoutDenom,
	}
}

// Normalize fills blanks with defaults.
func (p Params) Normalize() Params {
	p.DepositMode = DepositMode(strings.ToLower(strings.TrimSpace(string(p.DepositMode))))
	if p.DepositMode == "" {
		p.DepositMode = DepositAccumulate
	}
	p.PayoutDenom = strings.TrimSpace(p.PayoutDenom)
	if p.PayoutDenom == "" {
		p.PayoutDenom = DefaultPayoutDenom
	}
	return p
}

// Validate checks the parameters for consistency.
func (p Params) Validate() error {
	switch p.DepositMode {
	case DepositAccumulate, DepositReplace:
	default:
		return fmt.Errorf("lending: unknown deposit mode %q", p.DepositMode)
	}
	if p.MaxLTVBps > 10_000 {
		return fmt.Errorf("lending: max ltv %d exceeds 10000 bps", p.MaxLTVBps)
	}
	return nil
}
