package lending

// Config is the singleton module configuration written at instantiation.
type Config struct {
	// Owner is the only identity allowed to change the base rate.
	Owner string
	// BaseInterestRate is the flat rate snapshotted into new loans.
	BaseInterestRate Decimal
}

// Collateral records the single pledged token position of an account. A
// stored record always has a positive amount.
type Collateral struct {
	TokenAddress string
	Amount       Amount
}

// LoanInfo describes the outstanding loan of an account. Interest is flat:
// the charge is principal times the snapshotted rate, independent of time.
type LoanInfo struct {
	AmountBorrowed Amount
	InterestRate   Decimal
	// LoanStartTime is the host clock reading in seconds when the loan opened.
	LoanStartTime uint64
}

// Interest returns floor(principal * rate).
func (l *LoanInfo) Interest() (Amount, error) {
	return l.AmountBorrowed.MulDecimal(l.InterestRate)
}

// TotalDue returns principal plus interest.
func (l *LoanInfo) TotalDue() (Amount, error) {
	interest, err := l.Interest()
	if err != nil {
		return Amount{}, err
	}
	return l.AmountBorrowed.Add(interest)
}

// Position aggregates the per-account view returned by queries and exports.
type Position struct {
	Account    string
	Collateral *Collateral
	Loan       *LoanInfo
}

// Result is the structured outcome of an action.
type Result struct {
	Action     string
	Attributes map[string]string
	Transfers  []Transfer
}

// Transfer instructs the host to move funds out of the module once the
// action's state changes are durable.
type Transfer struct {
	To     string
	Amount Amount
	Denom  string
}
