package bank

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"lukechampine.com/blake3"

	"lendledger/native/lending"
)

// Transfer is a payout instruction addressed to an account. ID is stable for
// a given instruction so downstream processing can be idempotent.
type Transfer struct {
	ID     string
	To     string
	Amount *big.Int
	Denom  string
}

// Dispatcher hands committed payout instructions to the component that
// actually moves funds.
type Dispatcher interface {
	Dispatch(ctx context.Context, transfer Transfer) error
}

// DispatcherFunc adapts a function into a Dispatcher.
type DispatcherFunc func(ctx context.Context, transfer Transfer) error

func (f DispatcherFunc) Dispatch(ctx context.Context, transfer Transfer) error {
	return f(ctx, transfer)
}

// NewTransfer derives the payout for an engine instruction. sequence must be
// unique per action so that equal instructions from different actions get
// different identifiers.
func NewTransfer(instr lending.Transfer, sequence uint64, index int) Transfer {
	t := Transfer{
		To:     strings.TrimSpace(instr.To),
		Amount: instr.Amount.Big(),
		Denom:  strings.ToLower(strings.TrimSpace(instr.Denom)),
	}
	t.ID = TransferID(t, sequence, index)
	return t
}

// TransferID returns the hex blake3 digest identifying a transfer.
func TransferID(t Transfer, sequence uint64, index int) string {
	var buf []byte
	buf = append(buf, t.To...)
	buf = append(buf, 0)
	if t.Amount != nil {
		buf = append(buf, t.Amount.String()...)
	}
	buf = append(buf, 0)
	buf = append(buf, t.Denom...)
	buf = binary.BigEndian.AppendUint64(buf, sequence)
	buf = binary.BigEndian.AppendUint32(buf, uint32(index))
	sum := blake3.Sum256(buf)
	return hex.EncodeToString(sum[:])
}

// Validate checks that the transfer is fully specified.
func (t Transfer) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("bank: transfer id required")
	}
	if strings.TrimSpace(t.To) == "" {
		return fmt.Errorf("bank: transfer recipient required")
	}
	if t.Amount == nil || t.Amount.Sign() <= 0 {
		return fmt.Errorf("bank: transfer amount must be positive")
	}
	if strings.TrimSpace(t.Denom) == "" {
		return fmt.Errorf("bank: transfer denom required")
	}
	return nil
}
