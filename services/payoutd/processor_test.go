package payoutd

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"lendledger/native/bank"
	"lendledger/storage"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []bank.Transfer
	err  error
}

func (s *recordingSender) Send(_ context.Context, transfer bank.Transfer) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.sent = append(s.sent, transfer)
	return "ref-" + transfer.ID, nil
}

func queue(t *testing.T, outbox *Outbox, transfers ...bank.Transfer) {
	t.Helper()
	for _, transfer := range transfers {
		if err := outbox.Dispatch(context.Background(), transfer); err != nil {
			t.Fatalf("dispatch: %v", err)
		}
	}
}

func TestProcessorDrainSendsAndAcks(t *testing.T) {
	outbox := NewOutbox(storage.NewMemDB())
	sender := &recordingSender{}
	proc := NewProcessor(outbox, WithSender(sender))
	queue(t, outbox, newTransfer("a", 1), newTransfer("b", 2))

	sent, err := proc.Drain(context.Background())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if sent != 2 || len(sender.sent) != 2 {
		t.Fatalf("expected two payouts, got sent=%d recorded=%d", sent, len(sender.sent))
	}
	pending, _ := outbox.Pending(0)
	if len(pending) != 0 {
		t.Fatalf("expected empty outbox, got %d", len(pending))
	}
	if status := proc.Status(); status.Processed != 2 || status.Pending != 0 {
		t.Fatalf("unexpected status %+v", status)
	}
	proc.mu.Lock()
	tracked := len(proc.processed)
	proc.mu.Unlock()
	if tracked != 0 {
		t.Fatalf("expected acknowledged payouts to be forgotten, %d still tracked", tracked)
	}
}

func TestProcessorSenderFailureKeepsEntry(t *testing.T) {
	outbox := NewOutbox(storage.NewMemDB())
	sender := &recordingSender{err: errors.New("bank offline")}
	proc := NewProcessor(outbox, WithSender(sender))
	queue(t, outbox, newTransfer("a", 1))

	sent, err := proc.Drain(context.Background())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if sent != 0 {
		t.Fatalf("expected nothing sent, got %d", sent)
	}
	pending, _ := outbox.Pending(0)
	if len(pending) != 1 || pending[0].Attempts != 1 {
		t.Fatalf("expected entry retained with one attempt, got %+v", pending)
	}

	sender.err = nil
	if sent, err := proc.Drain(context.Background()); err != nil || sent != 1 {
		t.Fatalf("expected retry to deliver, sent=%d err=%v", sent, err)
	}
}

func TestProcessorPause(t *testing.T) {
	outbox := NewOutbox(storage.NewMemDB())
	sender := &recordingSender{}
	proc := NewProcessor(outbox, WithSender(sender))
	queue(t, outbox, newTransfer("a", 1))

	proc.Pause()
	if _, err := proc.Drain(context.Background()); !errors.Is(err, ErrProcessorPaused) {
		t.Fatalf("expected paused error, got %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("paused processor must not send")
	}
	proc.Resume()
	if sent, err := proc.Drain(context.Background()); err != nil || sent != 1 {
		t.Fatalf("expected delivery after resume, sent=%d err=%v", sent, err)
	}
}

func TestProcessorEnforcesDailyCap(t *testing.T) {
	outbox := NewOutbox(storage.NewMemDB())
	sender := &recordingSender{}
	policies, err := NewPolicyEnforcer([]Policy{{Denom: "USDC", DailyCap: big.NewInt(10)}})
	if err != nil {
		t.Fatalf("policies: %v", err)
	}
	day := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	proc := NewProcessor(outbox, WithSender(sender), WithPolicies(policies), WithClock(func() time.Time { return day }))
	queue(t, outbox, newTransfer("a", 6), newTransfer("b", 6))

	sent, err := proc.Drain(context.Background())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if sent != 1 {
		t.Fatalf("expected cap to allow exactly one payout, got %d", sent)
	}
	if got := proc.Status().CapRemaining["usdc"]; got != "4" {
		t.Fatalf("expected remaining cap 4, got %q", got)
	}

	day = day.Add(24 * time.Hour)
	if sent, err := proc.Drain(context.Background()); err != nil || sent != 1 {
		t.Fatalf("expected next day to release payout, sent=%d err=%v", sent, err)
	}
}

func TestProcessorRunStopsOnCancel(t *testing.T) {
	outbox := NewOutbox(storage.NewMemDB())
	sender := &recordingSender{}
	proc := NewProcessor(outbox, WithSender(sender), WithPollInterval(5*time.Millisecond))
	queue(t, outbox, newTransfer("a", 1))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- proc.Run(ctx) }()
	deadline := time.After(2 * time.Second)
	for {
		sender.mu.Lock()
		n := len(sender.sent)
		sender.mu.Unlock()
		if n == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("payout not delivered by Run")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestAdminServer(t *testing.T) {
	outbox := NewOutbox(storage.NewMemDB())
	proc := NewProcessor(outbox, WithSender(&recordingSender{}))
	admin := NewAdminServer(proc)

	res := httptest.NewRecorder()
	admin.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/pause", nil))
	if res.Code != http.StatusNoContent || !proc.Status().Paused {
		t.Fatalf("expected pause to engage, got %d", res.Code)
	}
	res = httptest.NewRecorder()
	admin.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/drain", nil))
	if res.Code != http.StatusConflict {
		t.Fatalf("expected drain to conflict while paused, got %d", res.Code)
	}
	res = httptest.NewRecorder()
	admin.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/resume", nil))
	if res.Code != http.StatusNoContent || proc.Status().Paused {
		t.Fatalf("expected resume, got %d", res.Code)
	}
	res = httptest.NewRecorder()
	admin.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/pause", nil))
	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", res.Code)
	}
}
