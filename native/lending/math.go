package lending

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// amountBits bounds Amount to an unsigned 128-bit range.
const amountBits = 128

// decimalPlaces is the fixed fractional precision of Decimal.
const decimalPlaces = 18

// maxDecimalExponent bounds the scientific exponent accepted by ParseDecimal.
// Anything beyond it is out of range for a 128-bit atomic value.
const maxDecimalExponent = 64

var (
	decimalScale = uint256.NewInt(1_000_000_000_000_000_000)
	basisPoints  = uint256.NewInt(10_000)
)

// Amount is an unsigned 128-bit token quantity. Arithmetic is checked and
// fails with ErrOverflow rather than wrapping.
type Amount struct {
	v uint256.Int
}

// NewAmount lifts a uint64 into an Amount.
func NewAmount(n uint64) Amount {
	var a Amount
	a.v.SetUint64(n)
	return a
}

// ParseAmount parses a base-10 integer string.
func ParseAmount(s string) (Amount, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Amount{}, fmt.Errorf("%w: amount required", ErrInvalidAmount)
	}
	parsed, err := uint256.FromDecimal(trimmed)
	if err != nil {
		if errors.Is(err, uint256.ErrBig256Range) {
			return Amount{}, fmt.Errorf("%w: amount %q exceeds 128 bits", ErrOverflow, trimmed)
		}
		return Amount{}, fmt.Errorf("%w: invalid amount %q", ErrInvalidAmount, trimmed)
	}
	return amountFromInt(parsed)
}

// AmountFromBig converts a non-negative big integer.
func AmountFromBig(b *big.Int) (Amount, error) {
	if b == nil {
		return Amount{}, nil
	}
	if b.Sign() < 0 {
		return Amount{}, fmt.Errorf("%w: negative amount", ErrInvalidAmount)
	}
	v, overflow := uint256.FromBig(b)
	if overflow {
		return Amount{}, fmt.Errorf("%w: amount exceeds 128 bits", ErrOverflow)
	}
	return amountFromInt(v)
}

func amountFromInt(v *uint256.Int) (Amount, error) {
	if v.BitLen() > amountBits {
		return Amount{}, fmt.Errorf("%w: amount exceeds 128 bits", ErrOverflow)
	}
	var a Amount
	a.v.Set(v)
	return a, nil
}

func (a Amount) IsZero() bool { return a.v.IsZero() }

func (a Amount) Cmp(b Amount) int { return a.v.Cmp(&b.v) }

// Big returns a fresh big.Int copy.
func (a Amount) Big() *big.Int { return a.v.ToBig() }

func (a Amount) String() string { return a.v.Dec() }

// Add returns a+b or ErrOverflow.
func (a Amount) Add(b Amount) (Amount, error) {
	var out uint256.Int
	if _, overflow := out.AddOverflow(&a.v, &b.v); overflow || out.BitLen() > amountBits {
		return Amount{}, fmt.Errorf("%w: %s + %s", ErrOverflow, a, b)
	}
	return Amount{v: out}, nil
}

// Sub returns a-b or ErrOverflow when b > a.
func (a Amount) Sub(b Amount) (Amount, error) {
	var out uint256.Int
	if _, underflow := out.SubOverflow(&a.v, &b.v); underflow {
		return Amount{}, fmt.Errorf("%w: %s - %s", ErrOverflow, a, b)
	}
	return Amount{v: out}, nil
}

// MulDecimal returns floor(a * d).
func (a Amount) MulDecimal(d Decimal) (Amount, error) {
	var out uint256.Int
	if _, overflow := out.MulDivOverflow(&a.v, &d.atomics, decimalScale); overflow || out.BitLen() > amountBits {
		return Amount{}, fmt.Errorf("%w: %s * %s", ErrOverflow, a, d)
	}
	return Amount{v: out}, nil
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("%w: amount must be a string or integer", ErrInvalidAmount)
		}
		raw = n.String()
	}
	parsed, err := ParseAmount(raw)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// coversDebt reports whether collateral*bps/10000 >= debt. A zero bps disables
// the check.
func coversDebt(collateral, debt Amount, bps uint64) bool {
	if bps == 0 {
		return true
	}
	var lhs, rhs uint256.Int
	// Both sides stay well below 2^256 for 128-bit operands.
	lhs.Mul(&collateral.v, uint256.NewInt(bps))
	rhs.Mul(&debt.v, basisPoints)
	return lhs.Cmp(&rhs) >= 0
}

// Decimal is an unsigned fixed-point number with 18 fractional digits.
type Decimal struct {
	atomics uint256.Int
}

// Percent returns n/100.
func Percent(n uint64) Decimal {
	var d Decimal
	d.atomics.Mul(uint256.NewInt(n), uint256.NewInt(10_000_000_000_000_000))
	return d
}

// DecimalFromAtomics builds a Decimal from its raw 10^-18 units.
func DecimalFromAtomics(atomics *big.Int) (Decimal, error) {
	if atomics == nil {
		return Decimal{}, nil
	}
	if atomics.Sign() < 0 {
		return Decimal{}, fmt.Errorf("%w: negative decimal", ErrInvalidAmount)
	}
	v, overflow := uint256.FromBig(atomics)
	if overflow || v.BitLen() > amountBits {
		return Decimal{}, fmt.Errorf("%w: decimal out of range", ErrOverflow)
	}
	var d Decimal
	d.atomics.Set(v)
	return d, nil
}

// ParseDecimal accepts strings such as "0.05" or "1". More than 18 fractional
// digits is rejected rather than rounded.
func ParseDecimal(s string) (Decimal, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Decimal{}, fmt.Errorf("%w: decimal required", ErrInvalidAmount)
	}
	parsed, err := decimal.NewFromString(trimmed)
	if err != nil {
		return Decimal{}, fmt.Errorf("%w: invalid decimal %q", ErrInvalidAmount, trimmed)
	}
	if parsed.IsNegative() {
		return Decimal{}, fmt.Errorf("%w: decimal %q is negative", ErrInvalidAmount, trimmed)
	}
	if parsed.IsZero() {
		return Decimal{}, nil
	}
	exp := parsed.Exponent()
	if exp < -maxDecimalExponent {
		return Decimal{}, fmt.Errorf("%w: decimal %q has more than %d fractional digits", ErrInvalidAmount, trimmed, decimalPlaces)
	}
	if exp > maxDecimalExponent {
		return Decimal{}, fmt.Errorf("%w: decimal %q out of range", ErrOverflow, trimmed)
	}
	shifted := parsed.Shift(decimalPlaces)
	if !shifted.Equal(shifted.Truncate(0)) {
		return Decimal{}, fmt.Errorf("%w: decimal %q has more than %d fractional digits", ErrInvalidAmount, trimmed, decimalPlaces)
	}
	return DecimalFromAtomics(shifted.BigInt())
}

// MustParseDecimal panics on malformed input. Intended for constants and tests.
func MustParseDecimal(s string) Decimal {
	d, err := ParseDecimal(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Atomics returns the raw 10^-18 units.
func (d Decimal) Atomics() *big.Int { return d.atomics.ToBig() }

func (d Decimal) IsZero() bool { return d.atomics.IsZero() }

func (d Decimal) Cmp(o Decimal) int { return d.atomics.Cmp(&o.atomics) }

func (d Decimal) String() string {
	return decimal.NewFromBigInt(d.atomics.ToBig(), -decimalPlaces).String()
}

func (d Decimal) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Decimal) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: decimal must be a string", ErrInvalidAmount)
	}
	parsed, err := ParseDecimal(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
