package didcomm

import (
	"fmt"

	"github.com/pilacorp/go-trackback-agent/did/signer"
	"github.com/pilacorp/go-trackback-agent/didcomm/crypto"
	"github.com/pilacorp/go-trackback-agent/didcomm/jwe"
)

var (
	// ErrMalformedEnvelope is returned for envelopes that cannot be decoded.
	ErrMalformedEnvelope = jwe.ErrMalformed

	// ErrDecryption is returned when the envelope was not sealed for km or was
	// modified.
	ErrDecryption = crypto.ErrDecryption
)

// Open decrypts an envelope produced by Seal with the recipient's key.
func Open(envelope []byte, km *signer.KeyManager) ([]byte, error) {
	p, err := jwe.Parse(envelope)
	if err != nil {
		return nil, err
	}

	secret, err := km.SharedSecret(p.EPK)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecryption, err)
	}

	plaintext, err := crypto.DecryptAESGCM(deriveKey(secret, p.EPK, p.Header.Kid), p.IV, p.Ciphertext, p.Tag, []byte(p.Protected))
	if err != nil {
		return nil, err
	}
	if p.Header.Zip == jwe.Zip {
		if plaintext, err = decompress(plaintext); err != nil {
			return nil, err
		}
	}

	log.WithField("kid", p.Header.Kid).Debug("message opened")

	return plaintext, nil
}
