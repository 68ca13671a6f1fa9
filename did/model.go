package did

import (
	"errors"

	"golang.org/x/exp/slices"
)

const (
	// DefaultMethod is the method prefix used when none is configured.
	DefaultMethod = "did:trackback"

	// KeyFragment names the single signing key of a generated document.
	KeyFragment = "key-1"

	// VerificationKeyType is the verification method type of secp256k1 keys.
	VerificationKeyType = "EcdsaSecp256k1VerificationKey2019"
)

// DefaultContext is the JSON-LD context of generated documents.
var DefaultContext = []string{
	"https://www.w3.org/ns/did/v1",
	"https://w3id.org/security/v1",
}

var (
	// ErrInvalidDocument is returned when a document breaks its structural rules.
	ErrInvalidDocument = errors.New("invalid DID document")

	// ErrKeyNotFound is returned when a key reference has no matching publicKey entry.
	ErrKeyNotFound = errors.New("verification method not found")
)

// DIDDocument is the published record of an identity's keys and service endpoints.
type DIDDocument struct {
	Context         []string             `json:"@context"`
	ID              string               `json:"id"`
	Controller      string               `json:"controller,omitempty"`
	PublicKey       []VerificationMethod `json:"publicKey"`
	Authentication  []string             `json:"authentication"`
	AssertionMethod []string             `json:"assertionMethod,omitempty"`
	Service         []Service            `json:"service,omitempty"`
}

// VerificationMethod is a public key entry of a DID document.
type VerificationMethod struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	Controller   string `json:"controller"`
	PublicKeyHex string `json:"publicKeyHex"`
}

// Service is a service endpoint advertised by a DID document.
type Service struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	ServiceEndpoint string `json:"serviceEndpoint"`
}

// Clone returns a deep copy of the document.
func (d *DIDDocument) Clone() *DIDDocument {
	if d == nil {
		return nil
	}

	return &DIDDocument{
		Context:         slices.Clone(d.Context),
		ID:              d.ID,
		Controller:      d.Controller,
		PublicKey:       slices.Clone(d.PublicKey),
		Authentication:  slices.Clone(d.Authentication),
		AssertionMethod: slices.Clone(d.AssertionMethod),
		Service:         slices.Clone(d.Service),
	}
}
