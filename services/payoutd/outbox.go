package payoutd

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/rlp"

	"lendledger/native/bank"
	"lendledger/storage"
)

var pendingPrefix = []byte("payout/pending/")

// Entry is a payout awaiting delivery.
type Entry struct {
	Transfer bank.Transfer
	QueuedAt time.Time
	Attempts uint64
}

type storedEntry struct {
	ID       string
	To       string
	Amount   *big.Int
	Denom    string
	QueuedAt uint64
	Attempts uint64
}

// Outbox is a durable bank.Dispatcher. Dispatch only records the transfer;
// a Processor delivers it later and acknowledges it once sent.
type Outbox struct {
	db  storage.Database
	now func() time.Time
	mu  sync.Mutex
}

// NewOutbox persists pending payouts in db.
func NewOutbox(db storage.Database) *Outbox {
	return &Outbox{db: db, now: time.Now}
}

func pendingKey(id string) []byte {
	return append(append([]byte{}, pendingPrefix...), id...)
}

// Dispatch records the transfer. Recording the same ID twice is a no-op.
func (o *Outbox) Dispatch(ctx context.Context, transfer bank.Transfer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := transfer.Validate(); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	key := pendingKey(transfer.ID)
	if _, err := o.db.Get(key); err == nil {
		return nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("payoutd: lookup %s: %w", transfer.ID, err)
	}
	return o.putLocked(storedEntry{
		ID:       transfer.ID,
		To:       transfer.To,
		Amount:   new(big.Int).Set(transfer.Amount),
		Denom:    transfer.Denom,
		QueuedAt: uint64(o.now().Unix()),
	})
}

func (o *Outbox) putLocked(entry storedEntry) error {
	encoded, err := rlp.EncodeToBytes(&entry)
	if err != nil {
		return fmt.Errorf("payoutd: encode %s: %w", entry.ID, err)
	}
	return o.db.Put(pendingKey(entry.ID), encoded)
}

// Pending lists up to limit queued payouts in key order. limit <= 0 lists all.
func (o *Outbox) Pending(limit int) ([]Entry, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var (
		out    []Entry
		decErr error
	)
	err := o.db.Iterate(pendingPrefix, func(_, value []byte) bool {
		var stored storedEntry
		if err := rlp.DecodeBytes(value, &stored); err != nil {
			decErr = fmt.Errorf("payoutd: decode pending entry: %w", err)
			return false
		}
		out = append(out, Entry{
			Transfer: bank.Transfer{ID: stored.ID, To: stored.To, Amount: stored.Amount, Denom: stored.Denom},
			QueuedAt: time.Unix(int64(stored.QueuedAt), 0).UTC(),
			Attempts: stored.Attempts,
		})
		return limit <= 0 || len(out) < limit
	})
	if err != nil {
		return nil, err
	}
	if decErr != nil {
		return nil, decErr
	}
	return out, nil
}

// Ack removes a delivered payout.
func (o *Outbox) Ack(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("payoutd: transfer id required")
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.db.Delete(pendingKey(id))
}

// MarkAttempt bumps the delivery attempt counter of a pending payout.
func (o *Outbox) MarkAttempt(id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	raw, err := o.db.Get(pendingKey(id))
	if err != nil {
		return err
	}
	var stored storedEntry
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return fmt.Errorf("payoutd: decode %s: %w", id, err)
	}
	stored.Attempts++
	return o.putLocked(stored)
}

var _ bank.Dispatcher = (*Outbox)(nil)
