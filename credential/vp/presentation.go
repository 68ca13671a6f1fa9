// Package vp maps presentations to and from the claim set of a presentation
// token. Embedded credentials travel as opaque compact tokens.
package vp

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
)

// ClaimKey is the claim holding the presentation document.
const ClaimKey = "vp"

const (
	credentialsContext = "https://www.w3.org/2018/credentials/v1"
	presentationType   = "VerifiablePresentation"
)

var (
	// ErrMalformedPresentation is returned when the vp claim cannot be decoded.
	ErrMalformedPresentation = errors.New("malformed presentation")

	// ErrEmptyPresentation is returned for a presentation without credentials.
	ErrEmptyPresentation = errors.New("presentation has no credentials")
)

// Presentation is the decoded vp claim.
type Presentation struct {
	Context              []interface{} `mapstructure:"@context"`
	ID                   string        `mapstructure:"id"`
	Type                 []string      `mapstructure:"type"`
	Holder               string        `mapstructure:"holder"`
	VerifiableCredential []string      `mapstructure:"verifiableCredential"`
}

// PresentationOpt configures NewClaims.
type PresentationOpt func(*presentationOptions)

type presentationOptions struct {
	id         string
	audience   string
	nonce      string
	expiration time.Time
	now        func() time.Time
}

// WithID sets the presentation id. Defaults to a fresh urn:uuid.
func WithID(id string) PresentationOpt {
	return func(o *presentationOptions) {
		o.id = id
	}
}

// WithAudience binds the presentation to one verifier through the aud claim.
func WithAudience(aud string) PresentationOpt {
	return func(o *presentationOptions) {
		o.audience = aud
	}
}

// WithNonce adds a verifier-supplied nonce claim.
func WithNonce(nonce string) PresentationOpt {
	return func(o *presentationOptions) {
		o.nonce = nonce
	}
}

// WithExpiration sets the exp claim.
func WithExpiration(t time.Time) PresentationOpt {
	return func(o *presentationOptions) {
		o.expiration = t
	}
}

// WithTimeFunc overrides the clock used for nbf.
func WithTimeFunc(now func() time.Time) PresentationOpt {
	return func(o *presentationOptions) {
		o.now = now
	}
}

// NewClaims builds the token claims of a presentation by holder wrapping the
// given credential tokens in order.
func NewClaims(holder string, tokens []string, opts ...PresentationOpt) jwt.MapClaims {
	o := &presentationOptions{now: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	if o.id == "" {
		o.id = "urn:uuid:" + uuid.NewString()
	}

	embedded := make([]interface{}, len(tokens))
	for i, t := range tokens {
		embedded[i] = t
	}

	claims := jwt.MapClaims{
		"iss": holder,
		"sub": holder,
		"jti": o.id,
		"nbf": o.now().Unix(),
		ClaimKey: map[string]interface{}{
			"@context":             []interface{}{credentialsContext},
			"id":                   o.id,
			"type":                 []interface{}{presentationType},
			"holder":               holder,
			"verifiableCredential": embedded,
		},
	}
	if o.audience != "" {
		claims["aud"] = o.audience
	}
	if o.nonce != "" {
		claims["nonce"] = o.nonce
	}
	if !o.expiration.IsZero() {
		claims["exp"] = o.expiration.Unix()
	}

	return claims
}

// FromClaims decodes the vp claim. A single embedded token or type is
// accepted in place of a list.
func FromClaims(claims jwt.MapClaims) (*Presentation, error) {
	raw, ok := claims[ClaimKey].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: %s claim is missing or not an object", ErrMalformedPresentation, ClaimKey)
	}

	var p Presentation
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &p,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPresentation, err)
	}

	if iss, _ := claims["iss"].(string); p.Holder != "" && iss != "" && iss != p.Holder {
		return nil, fmt.Errorf("%w: iss %q does not match holder %q", ErrMalformedPresentation, iss, p.Holder)
	}

	return &p, nil
}
