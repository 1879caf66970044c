package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"github.com/dmitrijs2005/sealmail/internal/common"
)

// KeySize is the size of every symmetric content key.
const KeySize = 32

// NewContentKey returns a fresh random 256-bit key.
func NewContentKey() []byte {
	return common.GenerateRandByteArray(KeySize)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("invalid key size %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create AES cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// SealGCM encrypts plaintext with AES-256-GCM under a fresh random nonce and
// returns nonce || ciphertext.
func SealGCM(key, plaintext []byte) ([]byte, error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := common.GenerateRandByteArray(aesgcm.NonceSize())
	return aesgcm.Seal(nonce, nonce, plaintext, nil), nil
}

// OpenGCM reverses SealGCM. Any failure, including a short blob, is
// reported as common.ErrDecryptionFailed.
func OpenGCM(key, blob []byte) ([]byte, error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDecryptionFailed, err)
	}

	ns := aesgcm.NonceSize()
	if len(blob) < ns+aesgcm.Overhead() {
		return nil, common.ErrDecryptionFailed
	}

	plaintext, err := aesgcm.Open(nil, blob[:ns], blob[ns:], nil)
	if err != nil {
		return nil, common.ErrDecryptionFailed
	}
	return plaintext, nil
}
