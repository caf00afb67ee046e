package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"lendledger/crypto"
)

const DefaultBaseInterestRate = "0.05"

// Genesis carries the Instantiate input for a fresh ledger.
type Genesis struct {
	Owner             string `toml:"Owner"`
	BaseInterestRate  string `toml:"BaseInterestRate"`
	OwnerKeystorePath string `toml:"OwnerKeystorePath,omitempty"`
	Pauses            Pauses `toml:"Pauses"`
}

// Pauses lists modules that start paused.
type Pauses struct {
	Lending bool
	Payouts bool
}

// Load loads the genesis from the given path. A missing file is created with
// a freshly generated owner key stored next to it.
func Load(path string) (*Genesis, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path, "")
	}
	gen := &Genesis{}
	meta, err := toml.DecodeFile(path, gen)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("genesis %s: unknown field %s", path, undecoded[0])
	}
	gen.normalize()
	if err := gen.Validate(); err != nil {
		return nil, fmt.Errorf("genesis %s: %w", path, err)
	}
	return gen, nil
}

func (g *Genesis) normalize() {
	g.Owner = strings.TrimSpace(g.Owner)
	g.BaseInterestRate = strings.TrimSpace(g.BaseInterestRate)
	if g.BaseInterestRate == "" {
		g.BaseInterestRate = DefaultBaseInterestRate
	}
	g.OwnerKeystorePath = strings.TrimSpace(g.OwnerKeystorePath)
}

// createDefault creates and saves a default genesis whose owner key is
// protected by passphrase.
func createDefault(path, passphrase string) (*Genesis, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	keystorePath, err := crypto.WriteKeystore(keystoreDir(path), key, passphrase)
	if err != nil {
		return nil, err
	}
	gen := &Genesis{
		Owner:             key.PubKey().Address(crypto.AccountPrefix).String(),
		BaseInterestRate:  DefaultBaseInterestRate,
		OwnerKeystorePath: keystorePath,
	}
	if err := persist(path, gen); err != nil {
		return nil, err
	}
	return gen, nil
}

func persist(path string, gen *Genesis) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(gen)
}

func keystoreDir(genesisPath string) string {
	dir := filepath.Dir(genesisPath)
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, "keystore")
}
