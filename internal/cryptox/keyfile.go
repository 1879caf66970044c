package cryptox

import (
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"github.com/dmitrijs2005/sealmail/internal/common"
	"github.com/dmitrijs2005/sealmail/internal/filex"
)

const keyFileBlockType = "SEALMAIL PRIVATE KEY"

// ErrBadKeyFile is returned for unreadable or tampered key files.
var ErrBadKeyFile = errors.New("bad key file")

// SavePrivateKey writes priv to path, sealed under a key derived from
// password, in a PEM block. The file is created with mode 0600.
func SavePrivateKey(path string, priv PrivateKey, password []byte) error {
	salt := common.GenerateRandByteArray(16)

	key := DeriveMasterKey(password, salt)
	defer common.WipeByteArray(key)

	sealed, err := SealGCM(key, priv[:])
	if err != nil {
		return err
	}

	block := &pem.Block{
		Type:    keyFileBlockType,
		Headers: map[string]string{"Salt": base64.StdEncoding.EncodeToString(salt)},
		Bytes:   sealed,
	}
	return filex.WriteAtomic(path, pem.EncodeToMemory(block), 0o600)
}

// LoadPrivateKey reads a key file written by SavePrivateKey. A wrong
// password yields common.ErrDecryptionFailed.
func LoadPrivateKey(path string, password []byte) (PrivateKey, error) {
	var priv PrivateKey

	data, err := os.ReadFile(path)
	if err != nil {
		return priv, fmt.Errorf("read key file: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil || block.Type != keyFileBlockType {
		return priv, ErrBadKeyFile
	}

	salt, err := base64.StdEncoding.DecodeString(block.Headers["Salt"])
	if err != nil || len(salt) == 0 {
		return priv, ErrBadKeyFile
	}

	key := DeriveMasterKey(password, salt)
	defer common.WipeByteArray(key)

	raw, err := OpenGCM(key, block.Bytes)
	if err != nil {
		return priv, err
	}
	defer common.WipeByteArray(raw)

	if len(raw) != len(priv) {
		return priv, ErrBadKeyFile
	}
	copy(priv[:], raw)
	return priv, nil
}
