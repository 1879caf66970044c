package services

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/dmitrijs2005/sealmail/internal/cryptox"
	"github.com/dmitrijs2005/sealmail/internal/filex"
)

var ErrKeyFileExists = errors.New("key file already exists")

// GenerateKeyFile creates a new key pair and writes the private key to path,
// sealed under password. An existing file is never overwritten.
func GenerateKeyFile(path string, password []byte) (cryptox.PublicKey, error) {
	ok, err := filex.Exists(path)
	if err != nil {
		return cryptox.PublicKey{}, err
	}
	if ok {
		return cryptox.PublicKey{}, fmt.Errorf("%w: %s", ErrKeyFileExists, path)
	}

	if dir := filepath.Dir(path); dir != "." {
		if _, err := filex.EnsureDir(dir); err != nil {
			return cryptox.PublicKey{}, err
		}
	}

	priv, pub, err := cryptox.GenerateKeyPair()
	if err != nil {
		return cryptox.PublicKey{}, err
	}
	if err := cryptox.SavePrivateKey(path, priv, password); err != nil {
		return cryptox.PublicKey{}, fmt.Errorf("save key: %w", err)
	}
	return pub, nil
}

// LoadKeyFile opens the key file at path and returns both halves of the pair.
func LoadKeyFile(path string, password []byte) (cryptox.PrivateKey, cryptox.PublicKey, error) {
	priv, err := cryptox.LoadPrivateKey(path, password)
	if err != nil {
		return priv, cryptox.PublicKey{}, err
	}
	pub, err := priv.Public()
	if err != nil {
		return priv, cryptox.PublicKey{}, err
	}
	return priv, pub, nil
}
