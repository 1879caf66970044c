package cryptox

import (
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/dmitrijs2005/sealmail/internal/common"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const wrapInfo = "sealmail key wrap v1"

// PublicKey is a raw X25519 public key. It is comparable and can key maps.
type PublicKey [32]byte

// PrivateKey is a raw X25519 private key.
type PrivateKey [32]byte

func (k PublicKey) String() string {
	return base64.StdEncoding.EncodeToString(k[:])
}

// ParsePublicKey validates b as an X25519 public key.
func ParsePublicKey(b []byte) (PublicKey, error) {
	var pk PublicKey
	if len(b) != len(pk) {
		return pk, fmt.Errorf("public key must be %d bytes, got %d", len(pk), len(b))
	}
	copy(pk[:], b)
	return pk, nil
}

// PublicKeyFromString decodes the base64 form produced by PublicKey.String.
func PublicKeyFromString(s string) (PublicKey, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return PublicKey{}, fmt.Errorf("decode public key: %w", err)
	}
	return ParsePublicKey(b)
}

// GenerateKeyPair creates a new X25519 key pair.
func GenerateKeyPair() (PrivateKey, PublicKey, error) {
	var priv PrivateKey
	var pub PublicKey

	k, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return priv, pub, fmt.Errorf("generate x25519 key: %w", err)
	}
	copy(priv[:], k.Bytes())
	copy(pub[:], k.PublicKey().Bytes())
	return priv, pub, nil
}

// Public derives the public half of k.
func (k PrivateKey) Public() (PublicKey, error) {
	var pub PublicKey
	priv, err := ecdh.X25519().NewPrivateKey(k[:])
	if err != nil {
		return pub, err
	}
	copy(pub[:], priv.PublicKey().Bytes())
	return pub, nil
}

func wrappingKey(shared, ephemeral, recipient []byte) ([]byte, error) {
	salt := make([]byte, 0, len(ephemeral)+len(recipient))
	salt = append(salt, ephemeral...)
	salt = append(salt, recipient...)

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, shared, salt, []byte(wrapInfo)), key); err != nil {
		return nil, err
	}
	return key, nil
}

// WrapKey encrypts contentKey to recipient. The result is
// ephemeralPublic(32) || nonce(24) || XChaCha20-Poly1305(contentKey).
func WrapKey(recipient PublicKey, contentKey []byte) ([]byte, error) {
	curve := ecdh.X25519()

	peer, err := curve.NewPublicKey(recipient[:])
	if err != nil {
		return nil, &common.InvalidRecipientError{Identity: recipient.String()}
	}

	eph, err := curve.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ephemeral key: %w", err)
	}

	shared, err := eph.ECDH(peer)
	if err != nil {
		// low-order point
		return nil, &common.InvalidRecipientError{Identity: recipient.String()}
	}
	defer common.WipeByteArray(shared)

	ephPub := eph.PublicKey().Bytes()

	key, err := wrappingKey(shared, ephPub, recipient[:])
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(ephPub)+aead.NonceSize()+len(contentKey)+aead.Overhead())
	out = append(out, ephPub...)
	nonce := common.GenerateRandByteArray(aead.NonceSize())
	out = append(out, nonce...)
	return aead.Seal(out, nonce, contentKey, nil), nil
}

// UnwrapKey recovers a content key wrapped by WrapKey. Every failure is
// reported as common.ErrDecryptionFailed.
func UnwrapKey(priv PrivateKey, wrapped []byte) ([]byte, error) {
	const minLen = 32 + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead
	if len(wrapped) < minLen {
		return nil, common.ErrDecryptionFailed
	}

	curve := ecdh.X25519()

	k, err := curve.NewPrivateKey(priv[:])
	if err != nil {
		return nil, common.ErrDecryptionFailed
	}
	ephPub := wrapped[:32]
	peer, err := curve.NewPublicKey(ephPub)
	if err != nil {
		return nil, common.ErrDecryptionFailed
	}

	shared, err := k.ECDH(peer)
	if err != nil {
		return nil, common.ErrDecryptionFailed
	}
	defer common.WipeByteArray(shared)

	key, err := wrappingKey(shared, ephPub, k.PublicKey().Bytes())
	if err != nil {
		return nil, common.ErrDecryptionFailed
	}
	defer common.WipeByteArray(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, common.ErrDecryptionFailed
	}

	nonce := wrapped[32 : 32+aead.NonceSize()]
	contentKey, err := aead.Open(nil, nonce, wrapped[32+aead.NonceSize():], nil)
	if err != nil {
		return nil, common.ErrDecryptionFailed
	}
	return contentKey, nil
}
