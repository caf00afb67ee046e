package lending

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"lendledger/core/events"
	nativecommon "lendledger/native/common"
)

const moduleName = "lending"

// ModuleName is the pause key of the lending module.
const ModuleName = moduleName

type engineState interface {
	LendingConfig() (*Config, error)
	PutLendingConfig(cfg *Config) error
	LendingCollateral(account string) (*Collateral, error)
	PutLendingCollateral(account string, collateral *Collateral) error
	DeleteLendingCollateral(account string) error
	LendingLoan(account string) (*LoanInfo, error)
	PutLendingLoan(account string, loan *LoanInfo) error
	DeleteLendingLoan(account string) error
}

// Engine applies lending actions against the configured state. It performs no
// locking: callers serialize actions and decide whether to commit the writes
// an action produced.
type Engine struct {
	state   engineState
	params  Params
	pauses  nativecommon.PauseView
	emitter events.Emitter
	now     uint64
}

// NewEngine constructs an engine with the supplied policies.
func NewEngine(params Params) *Engine {
	return &Engine{
		params:  params.Normalize(),
		emitter: events.NoopEmitter{},
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetEmitter configures the event emitter. Passing nil resets the emitter to a
// no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetTime records the host clock reading, in seconds, stamped on new loans.
func (e *Engine) SetTime(seconds uint64) {
	if e == nil {
		return
	}
	e.now = seconds
}

// Params returns the active policies.
func (e *Engine) Params() Params {
	if e == nil {
		return DefaultParams()
	}
	return e.params
}

func (e *Engine) guard() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return nativecommon.Guard(e.pauses, moduleName)
}

func (e *Engine) emit(evt events.Event) *Result {
	built := evt.Event()
	if e.emitter != nil {
		e.emitter.Emit(evt)
	}
	return &Result{Action: built.Attributes["action"], Attributes: built.Attributes}
}

func requireCaller(caller string) (string, error) {
	trimmed := strings.TrimSpace(caller)
	if trimmed == "" {
		return "", fmt.Errorf("%w: caller identity required", ErrUnauthorized)
	}
	return trimmed, nil
}

// loadCollateral returns nil without error when the account has no record.
func (e *Engine) loadCollateral(account string) (*Collateral, error) {
	collateral, err := e.state.LendingCollateral(account)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return collateral, err
}

func (e *Engine) loadLoan(account string) (*LoanInfo, error) {
	loan, err := e.state.LendingLoan(account)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return loan, err
}

// checkLTV verifies that collateral covers debt under the configured max LTV.
func (e *Engine) checkLTV(collateral Amount, debt Amount) error {
	if coversDebt(collateral, debt, e.params.MaxLTVBps) {
		return nil
	}
	return fmt.Errorf("%w: collateral %s does not cover %s at %d bps", ErrInvalidState, collateral, debt, e.params.MaxLTVBps)
}

// outstanding returns the total due on the account's loan, zero when none.
func (e *Engine) outstanding(account string) (Amount, error) {
	loan, err := e.loadLoan(account)
	if err != nil || loan == nil {
		return Amount{}, err
	}
	return loan.TotalDue()
}

// normalizeToken folds compatibility forms (full-width letters, ligatures) so
// visually identical token addresses compare equal.
func normalizeToken(tokenAddress string) string {
	return strings.TrimSpace(norm.NFKC.String(tokenAddress))
}

// DepositCollateral records collateral for caller.
func (e *Engine) DepositCollateral(caller, tokenAddress string, amount Amount) (*Result, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}
	account, err := requireCaller(caller)
	if err != nil {
		return nil, err
	}
	if amount.IsZero() {
		return nil, fmt.Errorf("%w: amount cannot be zero", ErrInvalidAmount)
	}
	token := normalizeToken(tokenAddress)
	if token == "" {
		return nil, fmt.Errorf("%w: token address required", ErrInvalidAmount)
	}
	existing, err := e.loadCollateral(account)
	if err != nil {
		return nil, err
	}
	next := &Collateral{TokenAddress: token, Amount: amount}
	if existing != nil && e.params.DepositMode == DepositAccumulate {
		if existing.TokenAddress != token {
			return nil, fmt.Errorf("%w: collateral already held in %s", ErrInvalidState, existing.TokenAddress)
		}
		total, err := existing.Amount.Add(amount)
		if err != nil {
			return nil, err
		}
		next.Amount = total
	}
	if existing != nil && e.params.DepositMode == DepositReplace {
		// Replacing can shrink the pledge below an open loan.
		debt, err := e.outstanding(account)
		if err != nil {
			return nil, err
		}
		if err := e.checkLTV(next.Amount, debt); err != nil {
			return nil, err
		}
	}
	if err := e.state.PutLendingCollateral(account, next); err != nil {
		return nil, err
	}
	return e.emit(events.LendingCollateralDeposited{
		Account:      account,
		TokenAddress: token,
		Amount:       amount.String(),
		Balance:      next.Amount.String(),
	}), nil
}

// WithdrawCollateral releases part or all of caller's collateral.
func (e *Engine) WithdrawCollateral(caller, tokenAddress string, amount Amount) (*Result, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}
	account, err := requireCaller(caller)
	if err != nil {
		return nil, err
	}
	if amount.IsZero() {
		return nil, fmt.Errorf("%w: amount cannot be zero", ErrInvalidAmount)
	}
	token := normalizeToken(tokenAddress)
	existing, err := e.state.LendingCollateral(account)
	if err != nil {
		return nil, err
	}
	if existing.TokenAddress != token || existing.Amount.Cmp(amount) < 0 {
		return nil, fmt.Errorf("%w: insufficient collateral or mismatched token address", ErrInvalidState)
	}
	remaining, err := existing.Amount.Sub(amount)
	if err != nil {
		return nil, err
	}
	debt, err := e.outstanding(account)
	if err != nil {
		return nil, err
	}
	if err := e.checkLTV(remaining, debt); err != nil {
		return nil, err
	}
	if remaining.IsZero() {
		err = e.state.DeleteLendingCollateral(account)
	} else {
		err = e.state.PutLendingCollateral(account, &Collateral{TokenAddress: token, Amount: remaining})
	}
	if err != nil {
		return nil, err
	}
	return e.emit(events.LendingCollateralWithdrawn{
		Account:      account,
		TokenAddress: token,
		Amount:       amount.String(),
		Balance:      remaining.String(),
	}), nil
}

// Borrow opens a loan for caller and yields the payout instruction.
func (e *Engine) Borrow(caller string, amount Amount) (*Result, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}
	account, err := requireCaller(caller)
	if err != nil {
		return nil, err
	}
	if amount.IsZero() {
		return nil, fmt.Errorf("%w: amount cannot be zero", ErrInvalidAmount)
	}
	active, err := e.loadLoan(account)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, fmt.Errorf("%w: loan of %s already active", ErrInvalidState, active.AmountBorrowed)
	}
	rate, err := e.borrowRate()
	if err != nil {
		return nil, err
	}
	loan := &LoanInfo{AmountBorrowed: amount, InterestRate: rate, LoanStartTime: e.now}
	// Computing the total due here keeps repayment free of overflow.
	due, err := loan.TotalDue()
	if err != nil {
		return nil, err
	}
	if e.params.MaxLTVBps > 0 {
		collateral, err := e.state.LendingCollateral(account)
		if err != nil {
			return nil, err
		}
		if err := e.checkLTV(collateral.Amount, due); err != nil {
			return nil, err
		}
	}
	if err := e.state.PutLendingLoan(account, loan); err != nil {
		return nil, err
	}
	result := e.emit(events.LendingBorrowed{
		Account:      account,
		Amount:       amount.String(),
		InterestRate: rate.String(),
		StartTime:    strconv.FormatUint(loan.LoanStartTime, 10),
	})
	result.Transfers = []Transfer{{To: account, Amount: amount, Denom: e.params.PayoutDenom}}
	return result, nil
}

func (e *Engine) borrowRate() (Decimal, error) {
	if e.params.FixedBorrowRate != nil {
		return *e.params.FixedBorrowRate, nil
	}
	cfg, err := e.state.LendingConfig()
	if err != nil {
		return Decimal{}, err
	}
	return cfg.BaseInterestRate, nil
}

// RepayLoan closes caller's loan when amount covers principal plus interest.
// Any excess is accepted and not refunded.
func (e *Engine) RepayLoan(caller string, amount Amount) (*Result, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}
	account, err := requireCaller(caller)
	if err != nil {
		return nil, err
	}
	loan, err := e.state.LendingLoan(account)
	if err != nil {
		return nil, err
	}
	interest, err := loan.Interest()
	if err != nil {
		return nil, err
	}
	due, err := loan.AmountBorrowed.Add(interest)
	if err != nil {
		return nil, err
	}
	if amount.Cmp(due) < 0 {
		return nil, fmt.Errorf("%w: repayment amount is not enough to cover the loan and interest (due %s)", ErrInsufficientPayment, due)
	}
	if err := e.state.DeleteLendingLoan(account); err != nil {
		return nil, err
	}
	return e.emit(events.LendingRepaid{
		Account:      account,
		Amount:       amount.String(),
		InterestPaid: interest.String(),
		TotalDue:     due.String(),
	}), nil
}
