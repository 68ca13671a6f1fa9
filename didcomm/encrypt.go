// Package didcomm seals messages, typically presentation tokens, for a DID
// whose document is published in the registry, and opens them with the
// recipient's KeyManager.
package didcomm

import (
	"context"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/pilacorp/go-trackback-agent/did"
	"github.com/pilacorp/go-trackback-agent/didcomm/crypto"
	"github.com/pilacorp/go-trackback-agent/didcomm/jwe"
	"github.com/pilacorp/go-trackback-agent/logger"
	"github.com/pilacorp/go-trackback-agent/registry"
)

// ErrUnknownRecipient is returned when the recipient key cannot be resolved.
var ErrUnknownRecipient = errors.New("unknown recipient")

// Resolver resolves DIDs. *registry.Registry implements it.
type Resolver interface {
	Resolve(ctx context.Context, id string) (*registry.ResolutionRecord, error)
}

var log = logger.New("didcomm")

// SealOpt configures Seal.
type SealOpt func(*sealOptions)

type sealOptions struct {
	compress bool
}

// WithCompression deflates the plaintext before encryption.
func WithCompression() SealOpt {
	return func(o *sealOptions) {
		o.compress = true
	}
}

// Seal encrypts plaintext for the default key of recipientDID.
func Seal(ctx context.Context, resolver Resolver, recipientDID string, plaintext []byte, opts ...SealOpt) ([]byte, error) {
	o := &sealOptions{}
	for _, opt := range opts {
		opt(o)
	}

	rec, err := resolver.Resolve(ctx, recipientDID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnknownRecipient, err)
	}

	kid := did.KeyID(recipientDID)
	vm, err := rec.DIDDocument.PublicKeyByID(kid)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnknownRecipient, err)
	}
	pubBytes, err := vm.PublicKeyBytes()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnknownRecipient, err)
	}
	pub, err := secp256k1.ParsePubKey(pubBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse recipient key: %w", ErrUnknownRecipient, err)
	}

	epk, secret, err := ephemeralSecret(pub)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ephemeral key: %w", err)
	}

	header := jwe.NewHeader(kid, epk)
	if o.compress {
		if plaintext, err = compress(plaintext); err != nil {
			return nil, fmt.Errorf("failed to compress message: %w", err)
		}
		header.Zip = jwe.Zip
	}

	protected, err := jwe.EncodeHeader(header)
	if err != nil {
		return nil, err
	}

	iv, ciphertext, tag, err := crypto.EncryptAESGCM(deriveKey(secret, epk, kid), plaintext, []byte(protected))
	if err != nil {
		return nil, err
	}

	log.WithField("kid", kid).Debug("message sealed")

	return jwe.Build(protected, iv, ciphertext, tag)
}
