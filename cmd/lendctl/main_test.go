package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"lendledger/core/state"
	"lendledger/crypto"
	"lendledger/native/lending"
	"lendledger/storage"
)

func TestAddressRoundTrip(t *testing.T) {
	var out bytes.Buffer
	raw := strings.Repeat("ab", crypto.AddressLength)
	if err := run("address", []string{"-hex", "0x" + raw}, &out); err != nil {
		t.Fatalf("encode: %v", err)
	}
	encoded := strings.TrimSpace(out.String())
	if !strings.HasPrefix(encoded, "lend1") {
		t.Fatalf("unexpected identity %q", encoded)
	}

	out.Reset()
	if err := run("address", []string{"-decode", encoded}, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != "lend "+raw {
		t.Fatalf("decoded %q", got)
	}
}

func TestAddressRequiresInput(t *testing.T) {
	if err := run("address", nil, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected error without flags")
	}
}

func TestTokenRejectsBadSubject(t *testing.T) {
	t.Setenv(defaultSecret, "secret")
	if err := run("token", []string{"-sub", "not-an-identity"}, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected invalid subject to fail")
	}

	var out bytes.Buffer
	sub := crypto.MustNewAddress(crypto.AccountPrefix, bytes.Repeat([]byte{1}, crypto.AddressLength)).String()
	if err := run("token", []string{"-sub", sub, "-scopes", "lending:admin"}, &out); err != nil {
		t.Fatalf("token: %v", err)
	}
	if strings.Count(strings.TrimSpace(out.String()), ".") != 2 {
		t.Fatalf("expected a JWT, got %q", out.String())
	}
}

func TestExportParquet(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "ledger")
	db, err := storage.Open(storage.BackendLevelDB, dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	mgr := state.NewManager(db)
	if err := mgr.PutLendingCollateral("alice", &lending.Collateral{TokenAddress: "weth", Amount: lending.NewAmount(10)}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := mgr.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	db.Close()

	var out bytes.Buffer
	target := filepath.Join(dir, "positions.parquet")
	if err := run("export-parquet", []string{"-db", dbPath, "-out", target}, &out); err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.Contains(out.String(), "wrote 1 positions") {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestUnknownCommand(t *testing.T) {
	if err := run("bogus", nil, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected error")
	}
}
