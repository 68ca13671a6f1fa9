package didcomm

import (
	"crypto/sha256"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/pilacorp/go-trackback-agent/didcomm/jwe"
)

// ephemeralSecret generates a one-time key pair and returns its compressed
// public key with the ECDH secret against the recipient.
func ephemeralSecret(recipient *secp256k1.PublicKey) ([]byte, []byte, error) {
	eph, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, nil, err
	}
	defer eph.Zero()

	return eph.PubKey().SerializeCompressed(), secp256k1.GenerateSharedSecret(eph, recipient), nil
}

// deriveKey binds the shared secret to the algorithm, the ephemeral key and the
// recipient key id.
func deriveKey(secret, epk []byte, kid string) []byte {
	h := sha256.New()
	h.Write([]byte{0, 0, 0, 1})
	h.Write(secret)
	h.Write([]byte(jwe.Enc))
	h.Write(epk)
	h.Write([]byte(kid))
	return h.Sum(nil)
}
