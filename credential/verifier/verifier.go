// Package verifier validates presentation and credential tokens against the
// DID documents of their signers.
//
// A token is never trusted before its own signature is checked: only the
// header key reference is read to locate the signer, whose document is
// resolved through the agent's registry. Presentations are checked top-down,
// outer signature first, then every embedded credential. All embedded
// credentials must verify. VerifyPresentation returns true only on complete
// success; every failure comes back as false with a typed error.
package verifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"

	"github.com/pilacorp/go-trackback-agent/agent"
	"github.com/pilacorp/go-trackback-agent/credential/common/jsonmap"
	"github.com/pilacorp/go-trackback-agent/credential/common/jwt"
	"github.com/pilacorp/go-trackback-agent/credential/vc"
	"github.com/pilacorp/go-trackback-agent/credential/vp"
	"github.com/pilacorp/go-trackback-agent/did"
	"github.com/pilacorp/go-trackback-agent/logger"
)

// MaxNestingDepth is how many levels of embedded tokens are followed. A
// presentation embeds credentials; credentials embed nothing.
const MaxNestingDepth = 1

const defaultConcurrency = 4

var (
	// ErrMalformedToken is returned for tokens that cannot be decoded.
	ErrMalformedToken = jwt.ErrMalformedToken

	// ErrInvalidSignature is returned when a signature does not verify.
	ErrInvalidSignature = jwt.ErrInvalidSignature

	// ErrInvalidClaims is returned when a signed token carries unacceptable
	// claims: expired, not yet valid, wrong audience, or a signer that is
	// not the claimed issuer or holder.
	ErrInvalidClaims = jwt.ErrInvalidClaims

	// ErrUnresolvableIssuer is returned when the signer's DID or key cannot be resolved.
	ErrUnresolvableIssuer = errors.New("unresolvable issuer")

	// ErrNestingTooDeep is returned when an embedded token is itself a presentation.
	ErrNestingTooDeep = errors.New("token nesting too deep")
)

// InvalidCredentialError reports the first embedded credential that failed.
type InvalidCredentialError struct {
	Index int
	Err   error
}

func (e *InvalidCredentialError) Error() string {
	return fmt.Sprintf("invalid credential at index %d: %v", e.Index, e.Err)
}

func (e *InvalidCredentialError) Unwrap() error {
	return e.Err
}

// CredentialVerifier verifies tokens. It holds no mutable state and is safe
// for concurrent use.
type CredentialVerifier struct {
	concurrency int
	leeway      time.Duration
	audience    string
	now         func() time.Time
	log         *logrus.Entry
}

// VerifierOpt configures a CredentialVerifier.
type VerifierOpt func(*CredentialVerifier)

// WithConcurrency bounds how many embedded credentials are verified at once.
func WithConcurrency(n int) VerifierOpt {
	return func(v *CredentialVerifier) {
		if n > 0 {
			v.concurrency = n
		}
	}
}

// WithLeeway allows clock skew on exp and nbf.
func WithLeeway(d time.Duration) VerifierOpt {
	return func(v *CredentialVerifier) {
		v.leeway = d
	}
}

// WithAudience requires presentations to be addressed to aud.
func WithAudience(aud string) VerifierOpt {
	return func(v *CredentialVerifier) {
		v.audience = aud
	}
}

// WithTimeFunc overrides the clock used for exp and nbf.
func WithTimeFunc(now func() time.Time) VerifierOpt {
	return func(v *CredentialVerifier) {
		v.now = now
	}
}

// New returns a CredentialVerifier.
func New(opts ...VerifierOpt) *CredentialVerifier {
	v := &CredentialVerifier{
		concurrency: defaultConcurrency,
		log:         logger.New("verifier"),
	}
	for _, opt := range opts {
		opt(v)
	}

	return v
}

// VerifyPresentation verifies a presentation token and every credential it
// embeds. It returns true, nil only when all signatures in the chain verify.
func (v *CredentialVerifier) VerifyPresentation(ctx context.Context, token string, actx agent.Context) (bool, error) {
	if err := actx.Validate(); err != nil {
		return false, err
	}

	if err := v.verifyPresentation(ctx, token, actx); err != nil {
		v.log.WithError(err).Warn("presentation rejected")
		return false, err
	}

	return true, nil
}

// VerifyCredential verifies a single credential token and returns the
// credential it carries. The signer must be the credential's issuer.
func (v *CredentialVerifier) VerifyCredential(ctx context.Context, token string, actx agent.Context) (jsonmap.JSONMap, error) {
	if err := actx.Validate(); err != nil {
		return nil, err
	}

	cred, err := v.verifyCredential(ctx, token, actx, 0)
	if err != nil {
		v.log.WithError(err).Warn("credential rejected")
		return nil, err
	}

	return cred, nil
}

func (v *CredentialVerifier) verifyPresentation(ctx context.Context, token string, actx agent.Context) error {
	opts := v.tokenOpts()
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	signerDID, claims, err := v.verifyToken(ctx, token, actx, opts)
	if err != nil {
		return err
	}

	p, err := vp.FromClaims(claims)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedToken, err)
	}
	if iss, _ := claims["iss"].(string); iss != signerDID {
		return fmt.Errorf("%w: holder %q is not the signer %q", ErrInvalidClaims, iss, signerDID)
	}
	if len(p.VerifiableCredential) == 0 {
		return fmt.Errorf("%w: %w", ErrMalformedToken, vp.ErrEmptyPresentation)
	}

	return v.verifyEmbedded(ctx, p.VerifiableCredential, actx, 1)
}

// verifyEmbedded checks every token concurrently and reports the failure with
// the lowest index, so the result does not depend on scheduling.
func (v *CredentialVerifier) verifyEmbedded(ctx context.Context, tokens []string, actx agent.Context, depth int) error {
	if depth > MaxNestingDepth {
		return ErrNestingTooDeep
	}

	errs := make([]error, len(tokens))

	// Per-token failures are collected, not returned, so one bad credential
	// does not cancel the others. Only cancellation of ctx stops the group.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.concurrency)
	for i, t := range tokens {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			_, errs[i] = v.verifyCredential(gctx, t, actx, depth)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for i, err := range errs {
		if err != nil {
			return &InvalidCredentialError{Index: i, Err: err}
		}
	}

	return nil
}

func (v *CredentialVerifier) verifyCredential(ctx context.Context, token string, actx agent.Context, depth int) (jsonmap.JSONMap, error) {
	signerDID, claims, err := v.verifyToken(ctx, token, actx, v.tokenOpts())
	if err != nil {
		return nil, err
	}

	if _, nested := claims[vp.ClaimKey]; nested {
		if depth+1 > MaxNestingDepth {
			return nil, fmt.Errorf("%w: embedded token is a presentation", ErrNestingTooDeep)
		}
		return nil, fmt.Errorf("%w: token is a presentation, not a credential", ErrMalformedToken)
	}

	cred, issuer, err := vc.FromClaims(claims)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedToken, err)
	}
	if issuer != signerDID {
		return nil, fmt.Errorf("%w: credential issuer %q is not the signer %q", ErrInvalidClaims, issuer, signerDID)
	}

	return cred, nil
}

// verifyToken runs decode, resolve and signature verification for one token
// and returns the signer DID with the verified claims.
func (v *CredentialVerifier) verifyToken(ctx context.Context, token string, actx agent.Context, opts []jwt.VerifyOpt) (string, gojwt.MapClaims, error) {
	header, _, err := jwt.Decode(token)
	if err != nil {
		return "", nil, err
	}

	signerDID, _, err := did.SplitKeyID(header.Kid)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrMalformedToken, err)
	}

	log := v.log.WithField("kid", header.Kid)

	rec, err := actx.Agent.Procedure().Resolve(ctx, signerDID)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %s: %w", ErrUnresolvableIssuer, signerDID, err)
	}

	vm, err := rec.DIDDocument.PublicKeyByID(header.Kid)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrUnresolvableIssuer, err)
	}
	if !slices.Contains(rec.DIDDocument.AssertionMethod, vm.ID) && !slices.Contains(rec.DIDDocument.Authentication, vm.ID) {
		return "", nil, fmt.Errorf("%w: key %s is not authorized to sign for %s", ErrUnresolvableIssuer, vm.ID, signerDID)
	}

	pub, err := jwt.ParsePublicKeyHex(vm.PublicKeyHex)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrUnresolvableIssuer, err)
	}

	claims, err := jwt.Verify(token, pub, opts...)
	if err != nil {
		return "", nil, err
	}

	log.Debug("token signature verified")

	return signerDID, claims, nil
}

func (v *CredentialVerifier) tokenOpts() []jwt.VerifyOpt {
	opts := []jwt.VerifyOpt{jwt.WithLeeway(v.leeway)}
	if v.now != nil {
		opts = append(opts, jwt.WithTimeFunc(v.now))
	}
	return opts
}
