package state

import (
	"errors"
	"testing"

	"lendledger/native/lending"
	"lendledger/storage"
)

func TestLendingKeyFormats(t *testing.T) {
	if string(LendingConfigKey()) != "lending/config" {
		t.Fatalf("unexpected config key: %s", LendingConfigKey())
	}
	if string(LendingCollateralKey("lend1abc")) != "lending/collateral/lend1abc" {
		t.Fatalf("unexpected collateral key: %s", LendingCollateralKey("lend1abc"))
	}
	if string(LendingLoanKey("lend1abc")) != "lending/loan/lend1abc" {
		t.Fatalf("unexpected loan key: %s", LendingLoanKey("lend1abc"))
	}
}

func TestLendingRecordsRoundTrip(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	mgr := NewManager(db)

	cfg := &lending.Config{Owner: "lend1owner", BaseInterestRate: lending.MustParseDecimal("0.123456789012345678")}
	if err := mgr.PutLendingConfig(cfg); err != nil {
		t.Fatalf("put config: %v", err)
	}
	loan := &lending.LoanInfo{AmountBorrowed: lending.NewAmount(1000), InterestRate: lending.Percent(5), LoanStartTime: 42}
	if err := mgr.PutLendingLoan("alice", loan); err != nil {
		t.Fatalf("put loan: %v", err)
	}
	if err := mgr.PutLendingCollateral("alice", &lending.Collateral{TokenAddress: "tokenA", Amount: lending.NewAmount(7)}); err != nil {
		t.Fatalf("put collateral: %v", err)
	}
	if err := mgr.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	fresh := NewManager(db)
	gotCfg, err := fresh.LendingConfig()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if gotCfg.Owner != cfg.Owner || gotCfg.BaseInterestRate.Cmp(cfg.BaseInterestRate) != 0 {
		t.Fatalf("config mismatch: %+v", gotCfg)
	}
	gotLoan, err := fresh.LendingLoan("alice")
	if err != nil {
		t.Fatalf("loan: %v", err)
	}
	if gotLoan.AmountBorrowed.Cmp(loan.AmountBorrowed) != 0 || gotLoan.InterestRate.Cmp(loan.InterestRate) != 0 || gotLoan.LoanStartTime != 42 {
		t.Fatalf("loan mismatch: %+v", gotLoan)
	}
	gotCollateral, err := fresh.LendingCollateral("alice")
	if err != nil {
		t.Fatalf("collateral: %v", err)
	}
	if gotCollateral.TokenAddress != "tokenA" || gotCollateral.Amount.Cmp(lending.NewAmount(7)) != 0 {
		t.Fatalf("collateral mismatch: %+v", gotCollateral)
	}
}

func TestLendingLoadsMissReturnNotFound(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	if _, err := mgr.LendingConfig(); !errors.Is(err, lending.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for config, got %v", err)
	}
	if _, err := mgr.LendingCollateral("bob"); !errors.Is(err, lending.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for collateral, got %v", err)
	}
	if _, err := mgr.LendingLoan("bob"); !errors.Is(err, lending.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for loan, got %v", err)
	}
}

func TestDiscardDropsOverlay(t *testing.T) {
	db := storage.NewMemDB()
	mgr := NewManager(db)
	if err := mgr.PutLendingLoan("alice", &lending.LoanInfo{AmountBorrowed: lending.NewAmount(1)}); err != nil {
		t.Fatalf("put loan: %v", err)
	}
	if _, err := mgr.LendingLoan("alice"); err != nil {
		t.Fatalf("overlay read: %v", err)
	}
	mgr.Discard()
	if mgr.Dirty() {
		t.Fatalf("overlay should be empty after discard")
	}
	if _, err := mgr.LendingLoan("alice"); !errors.Is(err, lending.ErrNotFound) {
		t.Fatalf("expected discarded loan to be gone, got %v", err)
	}
	if _, err := db.Get(LendingLoanKey("alice")); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("discarded write reached the database")
	}
}

func TestDeleteInOverlayHidesCommittedRecord(t *testing.T) {
	db := storage.NewMemDB()
	mgr := NewManager(db)
	if err := mgr.PutLendingCollateral("alice", &lending.Collateral{TokenAddress: "t", Amount: lending.NewAmount(5)}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := mgr.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := mgr.DeleteLendingCollateral("alice"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := mgr.LendingCollateral("alice"); !errors.Is(err, lending.ErrNotFound) {
		t.Fatalf("expected overlay delete to hide record, got %v", err)
	}
	if _, err := db.Get(LendingCollateralKey("alice")); err != nil {
		t.Fatalf("committed record should remain until commit: %v", err)
	}
	if err := mgr.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if _, err := db.Get(LendingCollateralKey("alice")); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected record removed after commit")
	}
}

func TestZeroCollateralIsNotStored(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	if err := mgr.PutLendingCollateral("alice", &lending.Collateral{TokenAddress: "t"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := mgr.LendingCollateral("alice"); !errors.Is(err, lending.ErrNotFound) {
		t.Fatalf("zero collateral must not exist, got %v", err)
	}
}

func TestLendingPositionsMergesOverlay(t *testing.T) {
	db := storage.NewMemDB()
	mgr := NewManager(db)
	_ = mgr.PutLendingCollateral("bob", &lending.Collateral{TokenAddress: "t", Amount: lending.NewAmount(3)})
	_ = mgr.PutLendingLoan("alice", &lending.LoanInfo{AmountBorrowed: lending.NewAmount(2)})
	if err := mgr.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	_ = mgr.PutLendingCollateral("alice", &lending.Collateral{TokenAddress: "t", Amount: lending.NewAmount(9)})
	_ = mgr.DeleteLendingCollateral("bob")

	var seen []*lending.Position
	if err := mgr.LendingPositions(func(p *lending.Position) error {
		seen = append(seen, p)
		return nil
	}); err != nil {
		t.Fatalf("positions: %v", err)
	}
	if len(seen) != 1 || seen[0].Account != "alice" {
		t.Fatalf("expected only alice, got %d positions", len(seen))
	}
	if seen[0].Collateral == nil || seen[0].Loan == nil {
		t.Fatalf("expected merged collateral and loan for alice")
	}
}

func TestStateBackedEngine(t *testing.T) {
	db := storage.NewMemDB()
	mgr := NewManager(db)
	engine := lending.NewEngine(lending.DefaultParams())
	engine.SetState(mgr)

	if _, err := engine.Borrow("alice", lending.NewAmount(10)); !errors.Is(err, lending.ErrNotFound) {
		t.Fatalf("borrow before instantiate should fail with ErrNotFound, got %v", err)
	}
	mgr.Discard()
	if _, err := engine.DepositCollateral("alice", "tokenA", lending.NewAmount(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	mgr.Discard()
	if _, err := db.Get(LendingCollateralKey("alice")); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("discarded action must leave no trace")
	}
}
