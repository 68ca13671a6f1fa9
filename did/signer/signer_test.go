package signer

import (
	"bytes"
	"crypto/sha256"
	"strings"
	"sync"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPrivateKeyHex = "c6f8cf675b77523c3d3157d322b3c7c4cc14874f290407398361be1a4c1ed7d0"

func verify(t *testing.T, pub, payload, sig []byte) bool {
	t.Helper()
	require.Len(t, sig, 64)

	var r, s secp256k1.ModNScalar
	require.False(t, r.SetByteSlice(sig[:32]))
	require.False(t, s.SetByteSlice(sig[32:]))

	key, err := secp256k1.ParsePubKey(pub)
	require.NoError(t, err)

	hash := sha256.Sum256(payload)
	return ecdsa.NewSignature(&r, &s).Verify(hash[:], key)
}

func TestGenerate(t *testing.T) {
	km, err := Generate()
	require.NoError(t, err)
	defer km.Close()

	pub := km.PublicKey()
	assert.Len(t, pub, 33)
	assert.Contains(t, []byte{0x02, 0x03}, pub[0])

	other, err := Generate()
	require.NoError(t, err)
	assert.NotEqual(t, pub, other.PublicKey())
}

func TestSign(t *testing.T) {
	km, err := FromPrivateKeyHex("0x" + testPrivateKeyHex)
	require.NoError(t, err)

	payload := []byte("header.payload")
	sig, err := km.Sign(payload)
	require.NoError(t, err)
	assert.True(t, verify(t, km.PublicKey(), payload, sig))
	assert.False(t, verify(t, km.PublicKey(), []byte("header.other"), sig))

	again, err := km.Sign(payload)
	require.NoError(t, err)
	assert.Equal(t, sig, again, "signatures are deterministic")
}

func TestFromPrivateKeyHexErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{name: "not hex", in: "zz"},
		{name: "too short", in: "abcd"},
		{name: "zero key", in: strings.Repeat("00", 32)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromPrivateKeyHex(tt.in)
			assert.ErrorIs(t, err, ErrKeyGeneration)
		})
	}
}

func TestSignWithoutKey(t *testing.T) {
	var nilKM *KeyManager
	_, err := nilKM.Sign([]byte("x"))
	assert.ErrorIs(t, err, ErrSigning)

	_, err = (&KeyManager{}).Sign([]byte("x"))
	assert.ErrorIs(t, err, ErrSigning)
}

func TestCloseZeroesKey(t *testing.T) {
	km, err := Generate()
	require.NoError(t, err)
	pub := km.PublicKey()

	priv := km.priv
	require.NoError(t, km.Close())
	assert.True(t, priv.Key.IsZero())

	_, err = km.Sign([]byte("x"))
	assert.ErrorIs(t, err, ErrSigning)
	_, err = km.SharedSecret(pub)
	assert.ErrorIs(t, err, ErrSigning)

	assert.Equal(t, pub, km.PublicKey())
	assert.NoError(t, km.Close(), "close is idempotent")
}

func TestPublicKeyIsACopy(t *testing.T) {
	km, err := Generate()
	require.NoError(t, err)

	pub := km.PublicKey()
	pub[1] ^= 0xff
	assert.False(t, bytes.Equal(pub, km.PublicKey()))
	assert.NotContains(t, km.String(), testPrivateKeyHex)
}

func TestSharedSecretAgrees(t *testing.T) {
	alice, err := Generate()
	require.NoError(t, err)
	bob, err := Generate()
	require.NoError(t, err)

	ab, err := alice.SharedSecret(bob.PublicKey())
	require.NoError(t, err)
	ba, err := bob.SharedSecret(alice.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, ab, ba)

	_, err = alice.SharedSecret([]byte{0x01})
	assert.Error(t, err)
}

func TestSignConcurrently(t *testing.T) {
	km, err := Generate()
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := km.Sign([]byte("payload"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}
