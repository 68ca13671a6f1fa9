// Package signer holds secp256k1 key material in memory and produces the
// compact signatures carried by credential tokens.
package signer

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// Algorithm is the token algorithm name of signatures produced by KeyManager.
const Algorithm = "ES256K"

var (
	// ErrKeyGeneration is returned when a key pair cannot be created or imported.
	ErrKeyGeneration = errors.New("key generation failed")

	// ErrSigning is returned when a signature cannot be produced.
	ErrSigning = errors.New("signing failed")
)

// Signer produces raw signatures over arbitrary payloads.
type Signer interface {
	Sign(payload []byte) ([]byte, error)
	PublicKey() []byte
}

// KeyManager owns one secp256k1 key pair. The private key never leaves it and
// is zeroed by Close.
type KeyManager struct {
	mu   sync.RWMutex
	priv *secp256k1.PrivateKey
	pub  []byte
}

// Generate creates a KeyManager holding a fresh key pair.
func Generate() (*KeyManager, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyGeneration, err)
	}

	return newKeyManager(priv), nil
}

// FromPrivateKeyHex imports an existing 32-byte private key.
func FromPrivateKeyHex(privHex string) (*KeyManager, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(privHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid private key hex: %w", ErrKeyGeneration, err)
	}
	if len(b) != secp256k1.PrivKeyBytesLen {
		return nil, fmt.Errorf("%w: private key must be %d bytes, got %d", ErrKeyGeneration, secp256k1.PrivKeyBytesLen, len(b))
	}

	priv := secp256k1.PrivKeyFromBytes(b)
	clear(b)
	if priv.Key.IsZero() {
		return nil, fmt.Errorf("%w: private key is out of range", ErrKeyGeneration)
	}

	return newKeyManager(priv), nil
}

func newKeyManager(priv *secp256k1.PrivateKey) *KeyManager {
	return &KeyManager{
		priv: priv,
		pub:  priv.PubKey().SerializeCompressed(),
	}
}

// Sign hashes payload with SHA-256 and returns the 64-byte r||s signature.
// Signatures are deterministic (RFC 6979).
func (k *KeyManager) Sign(payload []byte) ([]byte, error) {
	if k == nil {
		return nil, fmt.Errorf("%w: key manager is nil", ErrSigning)
	}

	k.mu.RLock()
	defer k.mu.RUnlock()

	if k.priv == nil {
		return nil, fmt.Errorf("%w: key manager has no key", ErrSigning)
	}

	hash := sha256.Sum256(payload)
	compact := ecdsa.SignCompact(k.priv, hash[:], true)

	// Drop the recovery code.
	return compact[1:], nil
}

// PublicKey returns a copy of the 33-byte compressed public key.
func (k *KeyManager) PublicKey() []byte {
	if k == nil {
		return nil
	}

	return append([]byte(nil), k.pub...)
}

// PublicKeyHex returns the compressed public key as 0x-prefixed hex.
func (k *KeyManager) PublicKeyHex() string {
	return "0x" + hex.EncodeToString(k.PublicKey())
}

// SharedSecret computes the ECDH secret with a peer public key.
func (k *KeyManager) SharedSecret(peer []byte) ([]byte, error) {
	if k == nil {
		return nil, fmt.Errorf("%w: key manager is nil", ErrSigning)
	}

	pub, err := secp256k1.ParsePubKey(peer)
	if err != nil {
		return nil, fmt.Errorf("failed to parse peer public key: %w", err)
	}

	k.mu.RLock()
	defer k.mu.RUnlock()

	if k.priv == nil {
		return nil, fmt.Errorf("%w: key manager has no key", ErrSigning)
	}

	return secp256k1.GenerateSharedSecret(k.priv, pub), nil
}

// Close zeroes the private key. Sign fails afterwards; PublicKey keeps working.
func (k *KeyManager) Close() error {
	if k == nil {
		return nil
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if k.priv != nil {
		k.priv.Zero()
		k.priv = nil
	}

	return nil
}

// String never exposes key material.
func (k *KeyManager) String() string {
	return fmt.Sprintf("KeyManager(%s)", k.PublicKeyHex())
}
