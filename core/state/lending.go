package state

import (
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/rlp"

	"lendledger/native/lending"
)

type storedLendingConfig struct {
	Owner    string
	BaseRate *big.Int
}

type storedCollateral struct {
	TokenAddress string
	Amount       *big.Int
}

type storedLoan struct {
	AmountBorrowed *big.Int
	InterestRate   *big.Int
	LoanStartTime  uint64
}

func requireAccount(account string) (string, error) {
	trimmed := strings.TrimSpace(account)
	if trimmed == "" {
		return "", fmt.Errorf("state: account required")
	}
	return trimmed, nil
}

// LendingConfig loads the module configuration.
func (m *Manager) LendingConfig() (*lending.Config, error) {
	var stored storedLendingConfig
	ok, err := m.KVGet(LendingConfigKey(), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: lending config", lending.ErrNotFound)
	}
	rate, err := lending.DecimalFromAtomics(stored.BaseRate)
	if err != nil {
		return nil, err
	}
	return &lending.Config{Owner: stored.Owner, BaseInterestRate: rate}, nil
}

// PutLendingConfig stores the module configuration.
func (m *Manager) PutLendingConfig(cfg *lending.Config) error {
	if cfg == nil {
		return fmt.Errorf("state: nil lending config")
	}
	return m.KVPut(LendingConfigKey(), storedLendingConfig{
		Owner:    cfg.Owner,
		BaseRate: cfg.BaseInterestRate.Atomics(),
	})
}

// LendingCollateral loads the collateral record of account.
func (m *Manager) LendingCollateral(account string) (*lending.Collateral, error) {
	account, err := requireAccount(account)
	if err != nil {
		return nil, err
	}
	var stored storedCollateral
	ok, err := m.KVGet(LendingCollateralKey(account), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: no collateral for %s", lending.ErrNotFound, account)
	}
	return collateralFromStored(&stored)
}

func collateralFromStored(stored *storedCollateral) (*lending.Collateral, error) {
	amount, err := lending.AmountFromBig(stored.Amount)
	if err != nil {
		return nil, err
	}
	return &lending.Collateral{TokenAddress: stored.TokenAddress, Amount: amount}, nil
}

// PutLendingCollateral stores a collateral record. A zero amount removes the
// record so that stored collateral is always positive.
func (m *Manager) PutLendingCollateral(account string, collateral *lending.Collateral) error {
	account, err := requireAccount(account)
	if err != nil {
		return err
	}
	if collateral == nil || collateral.Amount.IsZero() {
		return m.KVDelete(LendingCollateralKey(account))
	}
	return m.KVPut(LendingCollateralKey(account), storedCollateral{
		TokenAddress: collateral.TokenAddress,
		Amount:       collateral.Amount.Big(),
	})
}

// DeleteLendingCollateral removes the collateral record of account.
func (m *Manager) DeleteLendingCollateral(account string) error {
	account, err := requireAccount(account)
	if err != nil {
		return err
	}
	return m.KVDelete(LendingCollateralKey(account))
}

// LendingLoan loads the open loan of account.
func (m *Manager) LendingLoan(account string) (*lending.LoanInfo, error) {
	account, err := requireAccount(account)
	if err != nil {
		return nil, err
	}
	var stored storedLoan
	ok, err := m.KVGet(LendingLoanKey(account), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: no loan for %s", lending.ErrNotFound, account)
	}
	return loanFromStored(&stored)
}

func loanFromStored(stored *storedLoan) (*lending.LoanInfo, error) {
	principal, err := lending.AmountFromBig(stored.AmountBorrowed)
	if err != nil {
		return nil, err
	}
	rate, err := lending.DecimalFromAtomics(stored.InterestRate)
	if err != nil {
		return nil, err
	}
	return &lending.LoanInfo{AmountBorrowed: principal, InterestRate: rate, LoanStartTime: stored.LoanStartTime}, nil
}

// PutLendingLoan stores the loan of account.
func (m *Manager) PutLendingLoan(account string, loan *lending.LoanInfo) error {
	account, err := requireAccount(account)
	if err != nil {
		return err
	}
	if loan == nil {
		return fmt.Errorf("state: nil loan")
	}
	return m.KVPut(LendingLoanKey(account), storedLoan{
		AmountBorrowed: loan.AmountBorrowed.Big(),
		InterestRate:   loan.InterestRate.Atomics(),
		LoanStartTime:  loan.LoanStartTime,
	})
}

// DeleteLendingLoan removes the loan of account.
func (m *Manager) DeleteLendingLoan(account string) error {
	account, err := requireAccount(account)
	if err != nil {
		return err
	}
	return m.KVDelete(LendingLoanKey(account))
}

// LendingPositions walks every account holding collateral or a loan, in
// account order.
func (m *Manager) LendingPositions(fn func(*lending.Position) error) error {
	positions := make(map[string]*lending.Position)
	var order []string
	get := func(account string) *lending.Position {
		pos, ok := positions[account]
		if !ok {
			pos = &lending.Position{Account: account}
			positions[account] = pos
			order = append(order, account)
		}
		return pos
	}
	if err := m.KVIterate(lendingCollateralPrefix, func(key, value []byte) error {
		var stored storedCollateral
		if err := rlp.DecodeBytes(value, &stored); err != nil {
			return fmt.Errorf("state: collateral %s: %w", key, err)
		}
		collateral, err := collateralFromStored(&stored)
		if err != nil {
			return err
		}
		get(string(key[len(lendingCollateralPrefix):])).Collateral = collateral
		return nil
	}); err != nil {
		return err
	}
	if err := m.KVIterate(lendingLoanPrefix, func(key, value []byte) error {
		var stored storedLoan
		if err := rlp.DecodeBytes(value, &stored); err != nil {
			return fmt.Errorf("state: loan %s: %w", key, err)
		}
		loan, err := loanFromStored(&stored)
		if err != nil {
			return err
		}
		get(string(key[len(lendingLoanPrefix):])).Loan = loan
		return nil
	}); err != nil {
		return err
	}
	sort.Strings(order)
	for _, account := range order {
		if err := fn(positions[account]); err != nil {
			return err
		}
	}
	return nil
}
