package jwt

import (
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	btcecdsa "github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/golang-jwt/jwt/v5"

	"github.com/pilacorp/go-trackback-agent/did/signer"
)

// SigningMethodES256K implements ES256K signing
type SigningMethodES256K struct{}

// Alg returns the algorithm name
func (m *SigningMethodES256K) Alg() string {
	return signer.Algorithm
}

// Sign signs signingString with a signer.Signer key.
func (m *SigningMethodES256K) Sign(signingString string, key interface{}) ([]byte, error) {
	s, ok := key.(signer.Signer)
	if !ok || s == nil {
		return nil, jwt.ErrInvalidKeyType
	}

	sig, err := s.Sign([]byte(signingString))
	if err != nil {
		return nil, err
	}
	if len(sig) != 64 {
		return nil, fmt.Errorf("%w: expected 64-byte signature, got %d", signer.ErrSigning, len(sig))
	}

	return sig, nil
}

// Verify verifies a 64-byte r||s signature with a *btcec.PublicKey.
func (m *SigningMethodES256K) Verify(signingString string, sig []byte, key interface{}) error {
	pub, ok := key.(*btcec.PublicKey)
	if !ok || pub == nil {
		return jwt.ErrInvalidKeyType
	}

	if len(sig) != 64 {
		return jwt.ErrTokenSignatureInvalid
	}

	var r, s btcec.ModNScalar
	if r.SetByteSlice(sig[:32]) || s.SetByteSlice(sig[32:]) {
		return jwt.ErrTokenSignatureInvalid
	}
	// Only the low-S form is accepted; n-s would be a second valid signature.
	if s.IsOverHalfOrder() {
		return jwt.ErrTokenSignatureInvalid
	}

	hash := sha256.Sum256([]byte(signingString))
	if !btcecdsa.NewSignature(&r, &s).Verify(hash[:], pub) {
		return jwt.ErrTokenSignatureInvalid
	}

	return nil
}

// ES256K is the ES256K signing method instance
var ES256K = &SigningMethodES256K{}

func init() {
	jwt.RegisterSigningMethod(ES256K.Alg(), func() jwt.SigningMethod {
		return ES256K
	})
}
