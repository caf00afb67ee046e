package lending

import (
	"errors"
	"math/big"
	"testing"
	"time"
)

func TestParseDecimalRendering(t *testing.T) {
	cases := map[string]string{
		"0.05":  "0.05",
		"1":     "1",
		"0":     "0",
		"2.500": "2.5",
		"0.000000000000000001": "0.000000000000000001",
	}
	for in, want := range cases {
		d, err := ParseDecimal(in)
		if err != nil {
			t.Fatalf("parse %q: %v", in, err)
		}
		if got := d.String(); got != want {
			t.Fatalf("render %q: got %q want %q", in, got, want)
		}
	}
}

func TestParseDecimalRejectsBadInput(t *testing.T) {
	for _, in := range []string{"", "-0.1", "abc", "0.0000000000000000001"} {
		if _, err := ParseDecimal(in); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("expected ErrInvalidAmount for %q, got %v", in, err)
		}
	}
}

func TestParseDecimalBoundsExponent(t *testing.T) {
	start := time.Now()
	if _, err := ParseDecimal("1e-10000000"); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for huge negative exponent, got %v", err)
	}
	if _, err := ParseDecimal("1e10000000"); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected ErrOverflow for huge positive exponent, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("exponent rejection took %s", elapsed)
	}

	d, err := ParseDecimal("5e-2")
	if err != nil {
		t.Fatalf("parse 5e-2: %v", err)
	}
	if d.Cmp(Percent(5)) != 0 {
		t.Fatalf("5e-2 = %s, want 0.05", d)
	}
	if d, err := ParseDecimal("0e-999999"); err != nil || !d.IsZero() {
		t.Fatalf("zero with exponent: %v %v", d, err)
	}
}

func TestPercentMatchesParsed(t *testing.T) {
	if Percent(5).Cmp(MustParseDecimal("0.05")) != 0 {
		t.Fatalf("Percent(5) should equal 0.05, got %s", Percent(5))
	}
}

func TestMulDecimalTruncates(t *testing.T) {
	cases := []struct {
		amount uint64
		rate   string
		want   uint64
	}{
		{1000, "0.05", 50},
		{999, "0.05", 49},
		{1, "0.5", 0},
		{7, "0", 0},
		{3, "1.5", 4},
	}
	for _, tc := range cases {
		got, err := NewAmount(tc.amount).MulDecimal(MustParseDecimal(tc.rate))
		if err != nil {
			t.Fatalf("mul %d*%s: %v", tc.amount, tc.rate, err)
		}
		if got.Cmp(NewAmount(tc.want)) != 0 {
			t.Fatalf("mul %d*%s: got %s want %d", tc.amount, tc.rate, got, tc.want)
		}
	}
}

func maxAmount(t *testing.T) Amount {
	t.Helper()
	limit := new(big.Int).Lsh(big.NewInt(1), 128)
	limit.Sub(limit, big.NewInt(1))
	a, err := AmountFromBig(limit)
	if err != nil {
		t.Fatalf("max amount: %v", err)
	}
	return a
}

func TestAmountCheckedArithmetic(t *testing.T) {
	max := maxAmount(t)
	if _, err := max.Add(NewAmount(1)); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected overflow on add, got %v", err)
	}
	if _, err := NewAmount(1).Sub(NewAmount(2)); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected overflow on sub, got %v", err)
	}
	if _, err := max.MulDecimal(MustParseDecimal("2")); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected overflow on mul, got %v", err)
	}
	sum, err := NewAmount(2).Add(NewAmount(3))
	if err != nil || sum.Cmp(NewAmount(5)) != 0 {
		t.Fatalf("unexpected sum %s err %v", sum, err)
	}
}

func TestParseAmountBounds(t *testing.T) {
	if _, err := ParseAmount("340282366920938463463374607431768211456"); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected overflow for 2^128, got %v", err)
	}
	a, err := ParseAmount("340282366920938463463374607431768211455")
	if err != nil {
		t.Fatalf("max amount should parse: %v", err)
	}
	if a.Cmp(maxAmount(t)) != 0 {
		t.Fatalf("unexpected parsed max %s", a)
	}
	if _, err := ParseAmount("12x"); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
}

func TestAmountJSON(t *testing.T) {
	var a Amount
	if err := a.UnmarshalJSON([]byte(`"1000"`)); err != nil {
		t.Fatalf("string form: %v", err)
	}
	if err := a.UnmarshalJSON([]byte(`250`)); err != nil {
		t.Fatalf("numeric form: %v", err)
	}
	if a.String() != "250" {
		t.Fatalf("unexpected amount %s", a)
	}
	raw, err := a.MarshalJSON()
	if err != nil || string(raw) != `"250"` {
		t.Fatalf("unexpected encoding %s err %v", raw, err)
	}
}

func TestCoversDebt(t *testing.T) {
	if !coversDebt(NewAmount(0), NewAmount(100), 0) {
		t.Fatalf("zero bps disables the check")
	}
	if !coversDebt(NewAmount(2000), NewAmount(1000), 5000) {
		t.Fatalf("2000 at 50%% should cover 1000")
	}
	if coversDebt(NewAmount(1999), NewAmount(1000), 5000) {
		t.Fatalf("1999 at 50%% should not cover 1000")
	}
}
