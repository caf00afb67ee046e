package events

import "lendledger/core/types"

const (
	// TypeLendingInstantiated is emitted once when the module config is created.
	TypeLendingInstantiated = "lending.instantiated"
	// TypeLendingCollateralDeposited records a collateral deposit.
	TypeLendingCollateralDeposited = "lending.collateral.deposited"
	// TypeLendingCollateralWithdrawn records a collateral withdrawal.
	TypeLendingCollateralWithdrawn = "lending.collateral.withdrawn"
	// TypeLendingBorrowed records a new loan.
	TypeLendingBorrowed = "lending.loan.borrowed"
	// TypeLendingRepaid records a loan repayment.
	TypeLendingRepaid = "lending.loan.repaid"
	// TypeLendingRateUpdated records an owner rate change.
	TypeLendingRateUpdated = "lending.rate.updated"
)

// Action names carried in the "action" attribute.
const (
	ActionInstantiate        = "instantiate"
	ActionDepositCollateral  = "deposit_collateral"
	ActionWithdrawCollateral = "withdraw_collateral"
	ActionBorrow             = "borrow"
	ActionRepayLoan          = "repay_loan"
	ActionUpdateInterestRate = "update_interest_rate"
)

// LendingInstantiated is emitted when the module is configured.
type LendingInstantiated struct {
	Owner            string
	BaseInterestRate string
}

func (LendingInstantiated) EventType() string { return TypeLendingInstantiated }

func (e LendingInstantiated) Event() *types.Event {
	attrs := map[string]string{
		"action":             ActionInstantiate,
		"owner":              e.Owner,
		"base_interest_rate": e.BaseInterestRate,
	}
	return &types.Event{Type: TypeLendingInstantiated, Attributes: attrs}
}

// LendingCollateralDeposited is emitted after a deposit is applied.
type LendingCollateralDeposited struct {
	Account      string
	TokenAddress string
	Amount       string
	// Balance is the resulting collateral amount.
	Balance string
}

func (LendingCollateralDeposited) EventType() string { return TypeLendingCollateralDeposited }

func (e LendingCollateralDeposited) Event() *types.Event {
	attrs := map[string]string{
		"action": ActionDepositCollateral,
		"amount": e.Amount,
	}
	setIfPresent(attrs, "account", e.Account)
	setIfPresent(attrs, "token_address", e.TokenAddress)
	setIfPresent(attrs, "balance", e.Balance)
	return &types.Event{Type: TypeLendingCollateralDeposited, Attributes: attrs}
}

// LendingCollateralWithdrawn is emitted after a withdrawal is applied.
type LendingCollateralWithdrawn struct {
	Account      string
	TokenAddress string
	Amount       string
	Balance      string
}

func (LendingCollateralWithdrawn) EventType() string { return TypeLendingCollateralWithdrawn }

func (e LendingCollateralWithdrawn) Event() *types.Event {
	attrs := map[string]string{
		"action":        ActionWithdrawCollateral,
		"amount":        e.Amount,
		"token_address": e.TokenAddress,
	}
	setIfPresent(attrs, "account", e.Account)
	setIfPresent(attrs, "balance", e.Balance)
	return &types.Event{Type: TypeLendingCollateralWithdrawn, Attributes: attrs}
}

// LendingBorrowed is emitted when a loan opens.
type LendingBorrowed struct {
	Account      string
	Amount       string
	InterestRate string
	StartTime    string
}

func (LendingBorrowed) EventType() string { return TypeLendingBorrowed }

func (e LendingBorrowed) Event() *types.Event {
	attrs := map[string]string{
		"action":        ActionBorrow,
		"amount":        e.Amount,
		"interest_rate": e.InterestRate,
	}
	setIfPresent(attrs, "account", e.Account)
	setIfPresent(attrs, "loan_start_time", e.StartTime)
	return &types.Event{Type: TypeLendingBorrowed, Attributes: attrs}
}

// LendingRepaid is emitted when a loan closes.
type LendingRepaid struct {
	Account      string
	Amount       string
	InterestPaid string
	TotalDue     string
}

func (LendingRepaid) EventType() string { return TypeLendingRepaid }

func (e LendingRepaid) Event() *types.Event {
	attrs := map[string]string{
		"action":        ActionRepayLoan,
		"amount":        e.Amount,
		"interest_paid": e.InterestPaid,
		"total_due":     e.TotalDue,
	}
	setIfPresent(attrs, "account", e.Account)
	return &types.Event{Type: TypeLendingRepaid, Attributes: attrs}
}

// LendingRateUpdated is emitted when the owner changes the base rate.
type LendingRateUpdated struct {
	Owner   string
	NewRate string
}

func (LendingRateUpdated) EventType() string { return TypeLendingRateUpdated }

func (e LendingRateUpdated) Event() *types.Event {
	attrs := map[string]string{
		"action":   ActionUpdateInterestRate,
		"new_rate": e.NewRate,
	}
	setIfPresent(attrs, "owner", e.Owner)
	return &types.Event{Type: TypeLendingRateUpdated, Attributes: attrs}
}
