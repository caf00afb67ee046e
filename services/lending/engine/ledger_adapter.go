package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"lendledger/core/events"
	"lendledger/core/state"
	"lendledger/crypto"
	"lendledger/native/bank"
	nativecommon "lendledger/native/common"
	"lendledger/native/lending"
	"lendledger/observability"
	"lendledger/storage"
)

// LedgerAdapter hosts the lending state machine on a local store. Actions are
// serialized; each runs against a fresh overlay that is committed in one batch
// on success and discarded on failure. Payouts and events are released only
// after commit.
type LedgerAdapter struct {
	db         storage.Database
	params     lending.Params
	pauses     nativecommon.PauseView
	dispatcher bank.Dispatcher
	emitter    events.Emitter
	logger     *slog.Logger
	metrics    *observability.LendingMetrics
	payouts    *observability.PayoutMetrics
	now        func() time.Time

	mu        sync.Mutex
	lastNanos int64
}

// AdapterOption customises the adapter instance.
type AdapterOption func(*LedgerAdapter)

// WithDispatcher supplies the payout dispatcher.
func WithDispatcher(d bank.Dispatcher) AdapterOption {
	return func(a *LedgerAdapter) { a.dispatcher = d }
}

// WithPauses wires the module pause view.
func WithPauses(p nativecommon.PauseView) AdapterOption {
	return func(a *LedgerAdapter) { a.pauses = p }
}

// WithEmitter receives events of committed actions.
func WithEmitter(e events.Emitter) AdapterOption {
	return func(a *LedgerAdapter) { a.emitter = e }
}

// WithLogger overrides the default slog logger.
func WithLogger(l *slog.Logger) AdapterOption {
	return func(a *LedgerAdapter) { a.logger = l }
}

// WithClock sets the wall clock. The adapter never lets readings go backwards.
func WithClock(clock func() time.Time) AdapterOption {
	return func(a *LedgerAdapter) { a.now = clock }
}

// NewLedgerAdapter wires a store into the Engine abstraction expected by the
// service.
func NewLedgerAdapter(db storage.Database, params lending.Params, opts ...AdapterOption) *LedgerAdapter {
	a := &LedgerAdapter{
		db:      db,
		params:  params.Normalize(),
		emitter: events.NoopEmitter{},
		logger:  slog.Default(),
		metrics: observability.Lending(),
		payouts: observability.Payouts(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.emitter == nil {
		a.emitter = events.NoopEmitter{}
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	return a
}

// tick returns a strictly increasing clock reading in nanoseconds. Callers
// must hold mu.
func (a *LedgerAdapter) tick() int64 {
	now := a.now().UnixNano()
	if now <= a.lastNanos {
		now = a.lastNanos + 1
	}
	a.lastNanos = now
	return now
}

type bufferedEmitter struct {
	events []events.Event
}

func (b *bufferedEmitter) Emit(evt events.Event) {
	if evt != nil {
		b.events = append(b.events, evt)
	}
}

func (a *LedgerAdapter) apply(ctx context.Context, action string, fn func(*lending.Engine) (*lending.Result, error)) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	start := time.Now()

	seq, res, buffer, err := a.run(fn)
	if err != nil {
		a.metrics.Observe(action, lending.Kind(err), time.Since(start))
		return Result{}, err
	}
	for _, evt := range buffer.events {
		a.emitter.Emit(evt)
	}
	out := Result{Action: res.Action, Attributes: res.Attributes, Transfers: []Transfer{}}
	for i, instr := range res.Transfers {
		transfer := bank.NewTransfer(instr, uint64(seq), i)
		out.Transfers = append(out.Transfers, Transfer{
			ID:       transfer.ID,
			To:       transfer.To,
			Amount:   transfer.Amount.String(),
			Currency: transfer.Denom,
		})
		a.dispatch(ctx, transfer)
	}
	a.metrics.Observe(action, "", time.Since(start))
	return out, nil
}

// run executes fn against a fresh overlay under the adapter lock and commits
// its writes. The overlay is discarded on error.
func (a *LedgerAdapter) run(fn func(*lending.Engine) (*lending.Result, error)) (int64, *lending.Result, *bufferedEmitter, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	seq := a.tick()
	manager := state.NewManager(a.db)
	buffer := &bufferedEmitter{}
	eng := lending.NewEngine(a.params)
	eng.SetState(manager)
	eng.SetPauses(a.pauses)
	eng.SetEmitter(buffer)
	eng.SetTime(uint64(seq / int64(time.Second)))

	res, err := fn(eng)
	if err == nil {
		err = manager.Commit()
	}
	if err != nil {
		manager.Discard()
		return seq, nil, nil, err
	}
	return seq, res, buffer, nil
}

// dispatch hands a committed payout to the dispatcher. Failures are reported
// but never undo the committed action.
func (a *LedgerAdapter) dispatch(ctx context.Context, transfer bank.Transfer) {
	if a.dispatcher == nil {
		a.logger.Warn("payout dropped: no dispatcher configured",
			slog.String("transfer", transfer.ID),
			slog.String("denom", transfer.Denom))
		a.payouts.RecordError(transfer.Denom, "no_dispatcher")
		return
	}
	if err := a.dispatcher.Dispatch(context.WithoutCancel(ctx), transfer); err != nil {
		a.logger.Error("payout dispatch failed",
			slog.String("transfer", transfer.ID),
			slog.String("denom", transfer.Denom),
			slog.Any("error", err))
		a.payouts.RecordError(transfer.Denom, "dispatch")
		return
	}
	a.payouts.RecordDispatch(transfer.Denom)
}

func parseCaller(caller string) (string, error) {
	trimmed := strings.TrimSpace(caller)
	if err := crypto.ValidateAccount(trimmed); err != nil {
		return "", fmt.Errorf("%w: invalid caller identity: %v", lending.ErrUnauthorized, err)
	}
	return trimmed, nil
}

func (a *LedgerAdapter) Instantiate(ctx context.Context, owner, baseRate string) (Result, error) {
	rate, err := lending.ParseDecimal(baseRate)
	if err != nil {
		return Result{}, err
	}
	return a.apply(ctx, events.ActionInstantiate, func(e *lending.Engine) (*lending.Result, error) {
		return e.Instantiate(owner, rate)
	})
}

func (a *LedgerAdapter) DepositCollateral(ctx context.Context, caller, tokenAddress, amount string) (Result, error) {
	account, err := parseCaller(caller)
	if err != nil {
		return Result{}, err
	}
	value, err := lending.ParseAmount(amount)
	if err != nil {
		return Result{}, err
	}
	return a.apply(ctx, events.ActionDepositCollateral, func(e *lending.Engine) (*lending.Result, error) {
		return e.DepositCollateral(account, tokenAddress, value)
	})
}

func (a *LedgerAdapter) WithdrawCollateral(ctx context.Context, caller, tokenAddress, amount string) (Result, error) {
	account, err := parseCaller(caller)
	if err != nil {
		return Result{}, err
	}
	value, err := lending.ParseAmount(amount)
	if err != nil {
		return Result{}, err
	}
	return a.apply(ctx, events.ActionWithdrawCollateral, func(e *lending.Engine) (*lending.Result, error) {
		return e.WithdrawCollateral(account, tokenAddress, value)
	})
}

func (a *LedgerAdapter) Borrow(ctx context.Context, caller, amount string) (Result, error) {
	account, err := parseCaller(caller)
	if err != nil {
		return Result{}, err
	}
	value, err := lending.ParseAmount(amount)
	if err != nil {
		return Result{}, err
	}
	return a.apply(ctx, events.ActionBorrow, func(e *lending.Engine) (*lending.Result, error) {
		return e.Borrow(account, value)
	})
}

func (a *LedgerAdapter) RepayLoan(ctx context.Context, caller, amount string) (Result, error) {
	account, err := parseCaller(caller)
	if err != nil {
		return Result{}, err
	}
	value, err := lending.ParseAmount(amount)
	if err != nil {
		return Result{}, err
	}
	return a.apply(ctx, events.ActionRepayLoan, func(e *lending.Engine) (*lending.Result, error) {
		return e.RepayLoan(account, value)
	})
}

func (a *LedgerAdapter) UpdateInterestRate(ctx context.Context, caller, newRate string) (Result, error) {
	rate, err := lending.ParseDecimal(newRate)
	if err != nil {
		return Result{}, err
	}
	return a.apply(ctx, events.ActionUpdateInterestRate, func(e *lending.Engine) (*lending.Result, error) {
		return e.UpdateInterestRate(caller, rate)
	})
}

// query runs fn against a read-only view under the action lock so reads never
// observe a half-applied action.
func (a *LedgerAdapter) query(ctx context.Context, fn func(*lending.Engine) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	eng := lending.NewEngine(a.params)
	eng.SetState(state.NewManager(a.db))
	return fn(eng)
}

func (a *LedgerAdapter) GetConfig(ctx context.Context) (Config, error) {
	var out Config
	err := a.query(ctx, func(e *lending.Engine) error {
		cfg, err := e.Config()
		if err != nil {
			return err
		}
		out = Config{Owner: cfg.Owner, BaseInterestRate: cfg.BaseInterestRate.String()}
		return nil
	})
	return out, err
}

func (a *LedgerAdapter) GetPosition(ctx context.Context, account string) (Position, error) {
	var out Position
	err := a.query(ctx, func(e *lending.Engine) error {
		pos, err := e.Position(account)
		if err != nil {
			return err
		}
		out, err = positionFromLedger(pos)
		return err
	})
	return out, err
}

func positionFromLedger(pos *lending.Position) (Position, error) {
	out := Position{Account: pos.Account}
	if pos.Collateral != nil {
		out.Collateral = &Collateral{TokenAddress: pos.Collateral.TokenAddress, Amount: pos.Collateral.Amount.String()}
	}
	if pos.Loan != nil {
		interest, err := pos.Loan.Interest()
		if err != nil {
			return Position{}, err
		}
		due, err := pos.Loan.TotalDue()
		if err != nil {
			return Position{}, err
		}
		out.Loan = &Loan{
			AmountBorrowed: pos.Loan.AmountBorrowed.String(),
			InterestRate:   pos.Loan.InterestRate.String(),
			LoanStartTime:  pos.Loan.LoanStartTime,
			Interest:       interest.String(),
			TotalDue:       due.String(),
		}
	}
	return out, nil
}

var _ Engine = (*LedgerAdapter)(nil)
