// Package did provides the DID document model, DID derivation from secp256k1
// public keys and the structural checks applied before a document is published.
package did

import (
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gowebpki/jcs"
)

// ToDID converts a method and address to a DID.
func ToDID(method, address string) string {
	return strings.ToLower(fmt.Sprintf("%s:%s", method, address))
}

// KeyID returns the reference of the default signing key of a DID.
func KeyID(did string) string {
	return did + "#" + KeyFragment
}

// SplitKeyID separates a key reference into its DID and fragment.
func SplitKeyID(kid string) (string, string, error) {
	did, fragment, ok := strings.Cut(kid, "#")
	if !ok || did == "" || fragment == "" {
		return "", "", fmt.Errorf("invalid key reference %q", kid)
	}

	return did, fragment, nil
}

// Method returns the method prefix of a DID, e.g. "did:trackback" for
// "did:trackback:0xabc".
func Method(did string) (string, error) {
	i := strings.LastIndex(did, ":")
	if !strings.HasPrefix(did, "did:") || i <= len("did:") {
		return "", fmt.Errorf("invalid DID %q", did)
	}

	return did[:i], nil
}

// FromPublicKey derives the DID of a public key: the method followed by the
// lowercase Ethereum address of the key. The key may be compressed or not.
func FromPublicKey(method string, publicKey []byte) (string, error) {
	if method == "" {
		return "", fmt.Errorf("DID method is empty")
	}

	address, err := AddressFromPublicKey(publicKey)
	if err != nil {
		return "", err
	}

	return ToDID(method, address), nil
}

// AddressFromPublicKey converts a secp256k1 public key to an Ethereum address.
//
// Supports both compressed (33 bytes) and uncompressed (65 bytes) formats.
func AddressFromPublicKey(publicKey []byte) (string, error) {
	pub, err := unmarshalPublicKey(publicKey)
	if err != nil {
		return "", err
	}

	return strings.ToLower(crypto.PubkeyToAddress(*pub).Hex()), nil
}

// AddressFromPublicKeyHex is AddressFromPublicKey for a hex string, with or
// without the "0x" prefix.
func AddressFromPublicKeyHex(publicKeyHex string) (string, error) {
	publicKeyBytes, err := hex.DecodeString(strings.TrimPrefix(publicKeyHex, "0x"))
	if err != nil {
		return "", fmt.Errorf("failed to decode public key hex: %w", err)
	}

	return AddressFromPublicKey(publicKeyBytes)
}

func unmarshalPublicKey(b []byte) (*ecdsa.PublicKey, error) {
	switch {
	case len(b) == 33 && (b[0] == 0x02 || b[0] == 0x03):
		pub, err := crypto.DecompressPubkey(b)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress public key: %w", err)
		}
		return pub, nil
	case len(b) == 65 && b[0] == 0x04:
		pub, err := crypto.UnmarshalPubkey(b)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal public key: %w", err)
		}
		return pub, nil
	default:
		return nil, fmt.Errorf("unsupported public key format: expected 33 bytes (compressed) or 65 bytes (uncompressed), got %d bytes", len(b))
	}
}

// GenerateDIDDocument creates a document for did with a single secp256k1 key,
// referenced by both authentication and assertionMethod.
func GenerateDIDDocument(did, publicKeyHex string, services ...Service) *DIDDocument {
	kid := KeyID(did)

	doc := &DIDDocument{
		Context: append([]string(nil), DefaultContext...),
		ID:      did,
		PublicKey: []VerificationMethod{{
			ID:           kid,
			Type:         VerificationKeyType,
			Controller:   did,
			PublicKeyHex: publicKeyHex,
		}},
		Authentication:  []string{kid},
		AssertionMethod: []string{kid},
	}
	if len(services) > 0 {
		doc.Service = append([]Service(nil), services...)
	}

	return doc
}

// Validate checks that the document has a DID and that every key reference
// resolves to a publicKey entry.
func (d *DIDDocument) Validate() error {
	if d == nil {
		return fmt.Errorf("%w: document is nil", ErrInvalidDocument)
	}
	if !strings.HasPrefix(d.ID, "did:") {
		return fmt.Errorf("%w: id %q is not a DID", ErrInvalidDocument, d.ID)
	}

	seen := make(map[string]struct{}, len(d.PublicKey))
	for _, vm := range d.PublicKey {
		if vm.ID == "" {
			return fmt.Errorf("%w: publicKey entry without id", ErrInvalidDocument)
		}
		if _, dup := seen[vm.ID]; dup {
			return fmt.Errorf("%w: duplicate publicKey id %q", ErrInvalidDocument, vm.ID)
		}
		seen[vm.ID] = struct{}{}
	}

	for _, refs := range [][]string{d.Authentication, d.AssertionMethod} {
		for _, ref := range refs {
			if _, ok := seen[ref]; !ok {
				return fmt.Errorf("%w: reference %q does not resolve to a publicKey entry", ErrInvalidDocument, ref)
			}
		}
	}

	return nil
}

// PublicKeyByID returns the publicKey entry with the given id.
func (d *DIDDocument) PublicKeyByID(kid string) (*VerificationMethod, error) {
	for i := range d.PublicKey {
		if d.PublicKey[i].ID == kid {
			vm := d.PublicKey[i]
			return &vm, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, kid)
}

// PublicKeyBytes decodes the hex key material of the verification method.
func (vm *VerificationMethod) PublicKeyBytes() ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(vm.PublicKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to decode public key of %s: %w", vm.ID, err)
	}

	return b, nil
}

// Hash calculates the Keccak256 hash of the canonical JSON form of the document.
func (d *DIDDocument) Hash() (string, error) {
	docJSON, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("failed to marshal DID document: %w", err)
	}

	docToHash, err := jcs.Transform(docJSON)
	if err != nil {
		return "", fmt.Errorf("failed to transform DID document: %w", err)
	}

	return strings.ToLower(crypto.Keccak256Hash(docToHash).Hex()), nil
}
