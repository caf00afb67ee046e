package crypto

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/accounts/keystore"
)

// WriteKeystore encrypts the key into a v3 keystore file named after the
// account identity inside dir. The resulting file path is returned.
func WriteKeystore(dir string, key *PrivateKey, passphrase string) (string, error) {
	if key == nil {
		return "", errors.New("crypto: nil private key")
	}
	if dir == "" {
		return "", errors.New("crypto: empty keystore directory")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	scratch, err := os.MkdirTemp(dir, ".import-")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(scratch)

	ks := keystore.NewKeyStore(scratch, keystore.LightScryptN, keystore.LightScryptP)
	acct, err := ks.ImportECDSA(key.PrivateKey, passphrase)
	if err != nil {
		return "", err
	}
	dest := filepath.Join(dir, key.PubKey().Address(AccountPrefix).String()+".json")
	if err := os.Rename(acct.URL.Path, dest); err != nil {
		return "", fmt.Errorf("crypto: move keystore: %w", err)
	}
	return dest, os.Chmod(dest, 0o600)
}

// ReadKeystore decrypts a v3 keystore file.
func ReadKeystore(path, passphrase string) (*PrivateKey, error) {
	if path == "" {
		return nil, errors.New("crypto: empty keystore path")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	decrypted, err := keystore.DecryptKey(raw, passphrase)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{PrivateKey: decrypted.PrivateKey}, nil
}
