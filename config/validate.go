package config

import (
	"fmt"

	"lendledger/crypto"
	"lendledger/native/lending"
)

// Validate checks the genesis values Instantiate will consume.
func (g *Genesis) Validate() error {
	if g == nil {
		return fmt.Errorf("genesis is nil")
	}
	if err := crypto.ValidateAccount(g.Owner); err != nil {
		return fmt.Errorf("owner: %w", err)
	}
	if _, err := lending.ParseDecimal(g.BaseInterestRate); err != nil {
		return fmt.Errorf("base_interest_rate: %w", err)
	}
	return nil
}

// PausedModules returns the module names that start paused.
func (g *Genesis) PausedModules() []string {
	var out []string
	if g.Pauses.Lending {
		out = append(out, "lending")
	}
	if g.Pauses.Payouts {
		out = append(out, "payouts")
	}
	return out
}
