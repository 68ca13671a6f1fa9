// Package issuer implements the credential issuer: one identity controller
// holding a key pair and its DID document, able to publish the document and to
// issue credential and presentation tokens.
package issuer

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/pilacorp/go-trackback-agent/agent"
	"github.com/pilacorp/go-trackback-agent/config"
	"github.com/pilacorp/go-trackback-agent/credential/common/jsonmap"
	"github.com/pilacorp/go-trackback-agent/credential/common/jwt"
	"github.com/pilacorp/go-trackback-agent/credential/common/processor"
	"github.com/pilacorp/go-trackback-agent/credential/common/schema"
	"github.com/pilacorp/go-trackback-agent/credential/vc"
	"github.com/pilacorp/go-trackback-agent/credential/vp"
	"github.com/pilacorp/go-trackback-agent/did"
	"github.com/pilacorp/go-trackback-agent/did/signer"
	"github.com/pilacorp/go-trackback-agent/logger"
)

var (
	// ErrIssuerMismatch is returned when a credential names another issuer.
	ErrIssuerMismatch = errors.New("credential issuer does not match")

	// ErrEmptyPresentation is returned when a presentation would carry no credentials.
	ErrEmptyPresentation = vp.ErrEmptyPresentation

	// ErrMalformedCredential is returned when a credential fails shape or schema validation.
	ErrMalformedCredential = vc.ErrMalformedCredential
)

// CredentialIssuer owns one DID, its document and its KeyManager.
type CredentialIssuer struct {
	id  string
	km  *signer.KeyManager
	doc *did.DIDDocument
	log *logrus.Entry
}

// BuildOpt configures Build.
type BuildOpt func(*buildOptions)

type buildOptions struct {
	method   string
	services []did.Service
	km       *signer.KeyManager
}

// WithMethod sets the DID method prefix. Defaults to did.DefaultMethod.
func WithMethod(method string) BuildOpt {
	return func(o *buildOptions) {
		o.method = method
	}
}

// WithServices adds service endpoints to the generated document.
func WithServices(services ...did.Service) BuildOpt {
	return func(o *buildOptions) {
		o.services = append(o.services, services...)
	}
}

// WithKeyManager uses an existing key pair instead of generating one. The
// issuer takes ownership of km.
func WithKeyManager(km *signer.KeyManager) BuildOpt {
	return func(o *buildOptions) {
		o.km = km
	}
}

// Build generates a key pair, derives the DID from its public key and drafts
// the DID document. The returned issuer is not yet published.
func Build(ctx context.Context, opts ...BuildOpt) (*CredentialIssuer, error) {
	o := &buildOptions{method: did.DefaultMethod}
	for _, opt := range opts {
		opt(o)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	km := o.km
	if km == nil {
		var err error
		if km, err = signer.Generate(); err != nil {
			return nil, err
		}
	}

	id, err := deriveDID(o.method, km)
	if err != nil {
		if o.km == nil {
			_ = km.Close()
		}
		return nil, err
	}

	i := &CredentialIssuer{
		id:  id,
		km:  km,
		doc: did.GenerateDIDDocument(id, km.PublicKeyHex(), o.services...),
		log: logger.New("issuer").WithField("did", id),
	}
	i.log.Debug("issuer built")

	return i, nil
}

func deriveDID(method string, km *signer.KeyManager) (string, error) {
	id, err := did.FromPublicKey(method, km.PublicKey())
	if err != nil {
		return "", fmt.Errorf("%w: %w", signer.ErrKeyGeneration, err)
	}
	if _, err := did.Method(id); err != nil {
		return "", fmt.Errorf("invalid DID method %q: %w", method, err)
	}
	return id, nil
}

// BuildFromConfig is Build with the DID method taken from cfg. Options given
// explicitly take precedence.
func BuildFromConfig(ctx context.Context, cfg config.Config, opts ...BuildOpt) (*CredentialIssuer, error) {
	if cfg.DIDMethod != "" {
		opts = append([]BuildOpt{WithMethod(cfg.DIDMethod)}, opts...)
	}
	return Build(ctx, opts...)
}

// ID returns the DID of the issuer.
func (i *CredentialIssuer) ID() string {
	return i.id
}

// KeyManager returns the key pair of the issuer.
func (i *CredentialIssuer) KeyManager() *signer.KeyManager {
	return i.km
}

// ToDIDDocument returns a copy of the issuer's DID document.
func (i *CredentialIssuer) ToDIDDocument() *did.DIDDocument {
	return i.doc.Clone()
}

// Save publishes the issuer's DID document through the agent of actx, with
// the account of actx as the writing principal.
func (i *CredentialIssuer) Save(ctx context.Context, actx agent.Context, docMeta, resMeta map[string]interface{}) (*did.DIDDocument, error) {
	if err := actx.Validate(); err != nil {
		return nil, err
	}

	return actx.Agent.Procedure().Save(ctx, actx.Owner(), i.ToDIDDocument(), docMeta, resMeta)
}

// Close zeroes the issuer's private key.
func (i *CredentialIssuer) Close() error {
	return i.km.Close()
}

// CredentialOpt configures credential issuance.
type CredentialOpt func(*credentialOptions)

type credentialOptions struct {
	schemaLoader schema.Loader
	checkSchemas bool
	jsonld       bool
	jsonldOpts   []processor.ProcessorOpt
}

// WithSchemaValidation validates the credential against each of its
// credentialSchema entries, loaded with loader (nil fetches by URL).
func WithSchemaValidation(loader schema.Loader) CredentialOpt {
	return func(o *credentialOptions) {
		o.checkSchemas = true
		o.schemaLoader = loader
	}
}

// WithJSONLDValidation rejects credentials using terms their @context does not define.
func WithJSONLDValidation(opts ...processor.ProcessorOpt) CredentialOpt {
	return func(o *credentialOptions) {
		o.jsonld = true
		o.jsonldOpts = opts
	}
}

// CreateVerifiableCredential signs cred and returns the compact credential token.
// cred must name this issuer as its issuer.
func (i *CredentialIssuer) CreateVerifiableCredential(ctx context.Context, cred jsonmap.JSONMap, opts ...CredentialOpt) (string, error) {
	o := &credentialOptions{}
	for _, opt := range opts {
		opt(o)
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	issuer, err := vc.IssuerID(cred)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrIssuerMismatch, err)
	}
	if issuer != i.id {
		return "", fmt.Errorf("%w: credential names %s, issuer is %s", ErrIssuerMismatch, issuer, i.id)
	}

	if err := schema.ValidateCredential(cred); err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformedCredential, err)
	}
	if o.checkSchemas {
		if err := schema.ValidateCredentialSchemas(cred, o.schemaLoader); err != nil {
			return "", fmt.Errorf("%w: %w", ErrMalformedCredential, err)
		}
	}
	if o.jsonld {
		if err := processor.ValidateJSONLD(cred, o.jsonldOpts...); err != nil {
			return "", fmt.Errorf("%w: %w", ErrMalformedCredential, err)
		}
	}

	claims, err := vc.NewClaims(cred)
	if err != nil {
		return "", err
	}

	token, err := jwt.Sign(claims, did.KeyID(i.id), i.km)
	if err != nil {
		return "", err
	}

	i.log.WithField("jti", claims["jti"]).Debug("credential issued")

	return token, nil
}

// CreateVerifiablePresentation wraps previously issued credential tokens, in
// order, into a presentation token signed by s. A nil s signs with the
// issuer's own key. The holder is the DID of s under the issuer's method, so a
// verifier can only accept the presentation once that DID is published.
func (i *CredentialIssuer) CreateVerifiablePresentation(ctx context.Context, tokens []string, s signer.Signer, opts ...vp.PresentationOpt) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(tokens) == 0 {
		return "", ErrEmptyPresentation
	}

	for idx, t := range tokens {
		if _, err := jwt.Split(t); err != nil {
			return "", fmt.Errorf("credential %d: %w", idx, err)
		}
	}

	if s == nil {
		s = i.km
	}

	method, err := did.Method(i.id)
	if err != nil {
		return "", err
	}

	holder, err := did.FromPublicKey(method, s.PublicKey())
	if err != nil {
		return "", fmt.Errorf("%w: %w", signer.ErrSigning, err)
	}

	claims := vp.NewClaims(holder, tokens, opts...)

	token, err := jwt.Sign(claims, did.KeyID(holder), s)
	if err != nil {
		return "", err
	}

	i.log.WithField("holder", holder).WithField("credentials", len(tokens)).Debug("presentation created")

	return token, nil
}
