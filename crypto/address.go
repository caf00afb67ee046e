package crypto

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
)

// AddressPrefix defines the human-readable part of an account identity.
type AddressPrefix string

const (
	// AccountPrefix tags ordinary ledger accounts.
	AccountPrefix AddressPrefix = "lend"
	// ModulePrefix tags module-owned accounts such as the payout reserve.
	ModulePrefix AddressPrefix = "lendmod"
)

// AddressLength is the size of the raw identity payload.
const AddressLength = 20

var errAddressLength = errors.New("crypto: address must be 20 bytes long")

// Address is a bech32 encoded account identity.
type Address struct {
	prefix AddressPrefix
	bytes  []byte
}

// NewAddress validates the payload length and returns the identity.
func NewAddress(prefix AddressPrefix, b []byte) (Address, error) {
	if len(b) != AddressLength {
		return Address{}, errAddressLength
	}
	if strings.TrimSpace(string(prefix)) == "" {
		return Address{}, errors.New("crypto: address prefix required")
	}
	cp := make([]byte, AddressLength)
	copy(cp, b)
	return Address{prefix: prefix, bytes: cp}, nil
}

// MustNewAddress panics when the payload is malformed. Intended for tests and
// compile-time constants.
func MustNewAddress(prefix AddressPrefix, b []byte) Address {
	addr, err := NewAddress(prefix, b)
	if err != nil {
		panic(err)
	}
	return addr
}

func (a Address) String() string {
	if a.IsZero() {
		return ""
	}
	conv, err := bech32.ConvertBits(a.bytes, 8, 5, true)
	if err != nil {
		return ""
	}
	encoded, err := bech32.Encode(string(a.prefix), conv)
	if err != nil {
		return ""
	}
	return encoded
}

func (a Address) Bytes() []byte {
	if a.bytes == nil {
		return nil
	}
	out := make([]byte, len(a.bytes))
	copy(out, a.bytes)
	return out
}

// Prefix returns the human-readable prefix associated with the address.
func (a Address) Prefix() AddressPrefix {
	return a.prefix
}

// IsZero reports whether the address carries no payload.
func (a Address) IsZero() bool {
	return len(a.bytes) == 0
}

// Equal compares prefix and payload.
func (a Address) Equal(other Address) bool {
	return a.prefix == other.prefix && bytes.Equal(a.bytes, other.bytes)
}

// DecodeAddress parses a bech32 identity string.
func DecodeAddress(addrStr string) (Address, error) {
	trimmed := strings.TrimSpace(addrStr)
	if trimmed == "" {
		return Address{}, errors.New("crypto: empty address")
	}
	prefix, decoded, err := bech32.Decode(trimmed)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	return NewAddress(AddressPrefix(prefix), conv)
}

// ValidateAccount checks that the string is a well formed identity with one of
// the known prefixes.
func ValidateAccount(addrStr string) error {
	addr, err := DecodeAddress(addrStr)
	if err != nil {
		return err
	}
	switch addr.Prefix() {
	case AccountPrefix, ModulePrefix:
		return nil
	default:
		return fmt.Errorf("crypto: unexpected address prefix %q", addr.Prefix())
	}
}
