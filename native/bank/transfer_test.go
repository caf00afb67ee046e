package bank

import (
	"context"
	"testing"

	"lendledger/native/lending"
)

func TestNewTransferDerivesStableID(t *testing.T) {
	instr := lending.Transfer{To: "lend1alice", Amount: lending.NewAmount(100), Denom: "USDC"}
	a := NewTransfer(instr, 7, 0)
	b := NewTransfer(instr, 7, 0)
	if a.ID != b.ID || len(a.ID) != 64 {
		t.Fatalf("expected stable 32-byte hex id, got %q and %q", a.ID, b.ID)
	}
	if a.Denom != "usdc" {
		t.Fatalf("denom should be normalised, got %q", a.Denom)
	}
	if NewTransfer(instr, 8, 0).ID == a.ID {
		t.Fatalf("different sequence must change the id")
	}
	if NewTransfer(instr, 7, 1).ID == a.ID {
		t.Fatalf("different index must change the id")
	}
	if err := a.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestValidateRejectsIncompleteTransfer(t *testing.T) {
	if err := (Transfer{ID: "x", To: "lend1a", Denom: "usdc"}).Validate(); err == nil {
		t.Fatalf("expected missing amount error")
	}
}

func TestDispatcherFunc(t *testing.T) {
	var got Transfer
	var d Dispatcher = DispatcherFunc(func(_ context.Context, tr Transfer) error {
		got = tr
		return nil
	})
	want := NewTransfer(lending.Transfer{To: "lend1bob", Amount: lending.NewAmount(5), Denom: "usdc"}, 1, 0)
	if err := d.Dispatch(context.Background(), want); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if got.ID != want.ID {
		t.Fatalf("dispatcher did not receive transfer")
	}
}
