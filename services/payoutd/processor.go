package payoutd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"lendledger/native/bank"
)

// ErrProcessorPaused is returned when a payout is attempted while the processor is paused.
var ErrProcessorPaused = errors.New("payoutd: processor paused")

// Sender moves funds for a payout and returns a delivery reference.
type Sender interface {
	Send(ctx context.Context, transfer bank.Transfer) (string, error)
}

// LogSender records payouts in the service log instead of moving funds.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) Send(_ context.Context, transfer bank.Transfer) (string, error) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("payout sent",
		slog.String("transfer", transfer.ID),
		slog.String("account", transfer.To),
		slog.String("amount", transfer.Amount.String()),
		slog.String("denom", transfer.Denom))
	return "log:" + transfer.ID, nil
}

type processState struct {
	completed bool
	inFlight  bool
	reference string
	updatedAt time.Time
}

// Processor drains the outbox, enforcing policies before handing each payout
// to the sender.
type Processor struct {
	outbox    *Outbox
	sender    Sender
	policies  *PolicyEnforcer
	metrics   *Metrics
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
	now       func() time.Time

	mu        sync.Mutex
	paused    bool
	processed map[string]processState
	// completed counts payouts sent and acknowledged since start.
	completed int
}

// ProcessorOption customises the processor instance.
type ProcessorOption func(*Processor)

// WithSender supplies the component that moves funds.
func WithSender(s Sender) ProcessorOption {
	return func(p *Processor) { p.sender = s }
}

// WithPolicies enables per-denom caps. Without policies every payout passes.
func WithPolicies(policies *PolicyEnforcer) ProcessorOption {
	return func(p *Processor) { p.policies = policies }
}

// WithMetrics overrides the default metrics registry.
func WithMetrics(m *Metrics) ProcessorOption {
	return func(p *Processor) { p.metrics = m }
}

// WithLogger overrides the default slog logger.
func WithLogger(l *slog.Logger) ProcessorOption {
	return func(p *Processor) { p.logger = l }
}

// WithPollInterval configures how often Run drains the outbox.
func WithPollInterval(interval time.Duration) ProcessorOption {
	return func(p *Processor) { p.interval = interval }
}

// WithBatchSize caps the payouts handled per drain.
func WithBatchSize(n int) ProcessorOption {
	return func(p *Processor) { p.batchSize = n }
}

// WithClock sets the function used to derive timestamps.
func WithClock(clock func() time.Time) ProcessorOption {
	return func(p *Processor) { p.now = clock }
}

// NewProcessor constructs a payout processor over outbox.
func NewProcessor(outbox *Outbox, opts ...ProcessorOption) *Processor {
	proc := &Processor{
		outbox:    outbox,
		metrics:   NewMetrics(),
		logger:    slog.Default(),
		processed: make(map[string]processState),
		interval:  5 * time.Second,
		batchSize: 100,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(proc)
	}
	if proc.metrics == nil {
		proc.metrics = NewMetrics()
	}
	if proc.logger == nil {
		proc.logger = slog.Default()
	}
	if proc.sender == nil {
		proc.sender = LogSender{Logger: proc.logger}
	}
	return proc
}

// Run drains the outbox every poll interval until ctx is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	interval := p.interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := p.Drain(ctx); err != nil && !errors.Is(err, ErrProcessorPaused) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.logger.Error("payout drain failed", slog.Any("error", err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Drain delivers one batch of pending payouts and returns how many were sent.
// Payouts rejected by policy or by the sender stay queued for the next drain.
func (p *Processor) Drain(ctx context.Context) (int, error) {
	if p.outbox == nil {
		return 0, fmt.Errorf("payoutd: outbox not configured")
	}
	p.mu.Lock()
	paused := p.paused
	p.mu.Unlock()
	if paused {
		return 0, ErrProcessorPaused
	}
	entries, err := p.outbox.Pending(p.batchSize)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		if err := p.Process(ctx, entry); err != nil {
			if errors.Is(err, ErrProcessorPaused) {
				return sent, err
			}
			p.logger.Warn("payout deferred",
				slog.String("transfer", entry.Transfer.ID),
				slog.String("denom", entry.Transfer.Denom),
				slog.Any("error", err))
			continue
		}
		sent++
	}
	if remaining, err := p.outbox.Pending(0); err == nil {
		p.metrics.SetPending(len(remaining))
	}
	return sent, nil
}

// Process delivers a single outbox entry and acknowledges it.
func (p *Processor) Process(ctx context.Context, entry Entry) error {
	transfer := entry.Transfer
	id := strings.TrimSpace(transfer.ID)
	if err := transfer.Validate(); err != nil {
		return err
	}

	p.mu.Lock()
	if p.paused {
		p.mu.Unlock()
		p.metrics.RecordError(transfer.Denom, "paused")
		return ErrProcessorPaused
	}
	state, exists := p.processed[id]
	if exists && state.inFlight {
		p.mu.Unlock()
		return nil
	}
	if exists && state.completed {
		p.mu.Unlock()
		// Sent earlier but the ack did not land.
		return p.ack(id)
	}
	if p.policies != nil {
		if err := p.policies.Validate(transfer.Denom, transfer.Amount, p.now()); err != nil {
			p.mu.Unlock()
			switch {
			case errors.Is(err, ErrDailyCapExceeded):
				p.metrics.RecordError(transfer.Denom, "daily_cap")
			case errors.Is(err, ErrSoftBalanceExceeded):
				p.metrics.RecordError(transfer.Denom, "inventory")
			default:
				p.metrics.RecordError(transfer.Denom, "policy")
			}
			return err
		}
	}
	p.processed[id] = processState{inFlight: true, updatedAt: p.now()}
	p.mu.Unlock()

	if err := p.outbox.MarkAttempt(id); err != nil {
		p.finishFailure(id)
		return err
	}
	reference, err := p.sender.Send(ctx, transfer)
	if err != nil {
		p.finishFailure(id)
		p.metrics.RecordError(transfer.Denom, "transfer")
		return err
	}

	p.mu.Lock()
	if p.policies != nil {
		p.policies.Record(transfer.Denom, transfer.Amount, p.now())
	}
	p.processed[id] = processState{completed: true, reference: reference, updatedAt: p.now()}
	p.mu.Unlock()

	if !entry.QueuedAt.IsZero() {
		p.metrics.ObserveLatency(transfer.Denom, p.now().Sub(entry.QueuedAt))
	}
	return p.ack(id)
}

// ack removes a sent payout from the outbox. The completed marker is kept
// until the ack lands so a retry does not send twice.
func (p *Processor) ack(id string) error {
	if err := p.outbox.Ack(id); err != nil {
		return err
	}
	p.mu.Lock()
	delete(p.processed, id)
	p.completed++
	p.mu.Unlock()
	return nil
}

func (p *Processor) finishFailure(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.processed, id)
}

// Pause halts new payout processing.
func (p *Processor) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = true
	p.metrics.SetPause(true)
}

// Resume re-enables payout processing.
func (p *Processor) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = false
	p.metrics.SetPause(false)
}

// Status summarises processor state for administrative endpoints.
type Status struct {
	Paused       bool              `json:"paused"`
	Processed    int               `json:"processed"`
	InFlight     int               `json:"in_flight"`
	Pending      int               `json:"pending"`
	CapRemaining map[string]string `json:"cap_remaining"`
}

// Status reports the current processor status snapshot.
func (p *Processor) Status() Status {
	p.mu.Lock()
	status := Status{
		Paused:       p.paused,
		Processed:    p.completed,
		CapRemaining: make(map[string]string),
	}
	for _, state := range p.processed {
		if state.inFlight {
			status.InFlight++
		}
	}
	if p.policies != nil {
		for denom, remaining := range p.policies.Snapshot(p.now()) {
			status.CapRemaining[denom] = remaining.String()
		}
	}
	p.mu.Unlock()
	if p.outbox != nil {
		if pending, err := p.outbox.Pending(0); err == nil {
			status.Pending = len(pending)
		}
	}
	return status
}
