package engine

import (
	"context"
)

// Engine describes the operations required by the lending HTTP surface.
// Amounts and rates travel as decimal strings.
type Engine interface {
	Instantiate(ctx context.Context, owner, baseRate string) (Result, error)
	DepositCollateral(ctx context.Context, caller, tokenAddress, amount string) (Result, error)
	WithdrawCollateral(ctx context.Context, caller, tokenAddress, amount string) (Result, error)
	Borrow(ctx context.Context, caller, amount string) (Result, error)
	RepayLoan(ctx context.Context, caller, amount string) (Result, error)
	UpdateInterestRate(ctx context.Context, caller, newRate string) (Result, error)
	GetConfig(ctx context.Context) (Config, error)
	GetPosition(ctx context.Context, account string) (Position, error)
}

// Result is the committed outcome of an action.
type Result struct {
	Action     string            `json:"action"`
	Attributes map[string]string `json:"attributes"`
	Transfers  []Transfer        `json:"transfers"`
}

// Transfer is a payout handed to the dispatcher after commit.
type Transfer struct {
	ID       string `json:"id"`
	To       string `json:"to"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

// Config mirrors the stored module configuration.
type Config struct {
	Owner            string `json:"owner"`
	BaseInterestRate string `json:"baseInterestRate"`
}

// Collateral is the pledged token position of an account.
type Collateral struct {
	TokenAddress string `json:"tokenAddress"`
	Amount       string `json:"amount"`
}

// Loan is the open loan of an account with its computed charges.
type Loan struct {
	AmountBorrowed string `json:"amountBorrowed"`
	InterestRate   string `json:"interestRate"`
	LoanStartTime  uint64 `json:"loanStartTime"`
	Interest       string `json:"interest"`
	TotalDue       string `json:"totalDue"`
}

// Position combines the records of one account. Absent records are nil.
type Position struct {
	Account    string      `json:"account"`
	Collateral *Collateral `json:"collateral,omitempty"`
	Loan       *Loan       `json:"loan,omitempty"`
}
