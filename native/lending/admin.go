package lending

import (
	"errors"
	"fmt"
	"strings"

	"lendledger/core/events"
	"lendledger/crypto"
)

// Instantiate writes the module configuration. It may only run once.
func (e *Engine) Instantiate(owner string, baseRate Decimal) (*Result, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	owner = strings.TrimSpace(owner)
	if err := crypto.ValidateAccount(owner); err != nil {
		return nil, fmt.Errorf("%w: owner: %v", ErrInvalidState, err)
	}
	if _, err := e.state.LendingConfig(); err == nil {
		return nil, fmt.Errorf("%w: already instantiated", ErrInvalidState)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	cfg := &Config{Owner: owner, BaseInterestRate: baseRate}
	if err := e.state.PutLendingConfig(cfg); err != nil {
		return nil, err
	}
	return e.emit(events.LendingInstantiated{Owner: owner, BaseInterestRate: baseRate.String()}), nil
}

// UpdateInterestRate replaces the base rate. Only the owner may call it and
// open loans keep the rate they were opened with.
func (e *Engine) UpdateInterestRate(caller string, newRate Decimal) (*Result, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}
	cfg, err := e.state.LendingConfig()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(caller) != cfg.Owner {
		return nil, fmt.Errorf("%w: you have no permissions", ErrUnauthorized)
	}
	cfg.BaseInterestRate = newRate
	if err := e.state.PutLendingConfig(cfg); err != nil {
		return nil, err
	}
	return e.emit(events.LendingRateUpdated{Owner: cfg.Owner, NewRate: newRate.String()}), nil
}

// Config returns the stored module configuration.
func (e *Engine) Config() (*Config, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.LendingConfig()
}

// Collateral returns the collateral record of account.
func (e *Engine) Collateral(account string) (*Collateral, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.LendingCollateral(strings.TrimSpace(account))
}

// Loan returns the open loan of account.
func (e *Engine) Loan(account string) (*LoanInfo, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.LendingLoan(strings.TrimSpace(account))
}

// Position returns both records of account. Missing records are left nil.
func (e *Engine) Position(account string) (*Position, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	account = strings.TrimSpace(account)
	collateral, err := e.loadCollateral(account)
	if err != nil {
		return nil, err
	}
	loan, err := e.loadLoan(account)
	if err != nil {
		return nil, err
	}
	return &Position{Account: account, Collateral: collateral, Loan: loan}, nil
}
