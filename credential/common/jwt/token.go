// Package jwt builds and checks the compact ES256K tokens that carry
// credentials and presentations.
package jwt

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/pilacorp/go-trackback-agent/credential/common/jsonmap"
	"github.com/pilacorp/go-trackback-agent/did/signer"
)

var (
	// ErrMalformedToken is returned when a token is not three base64url segments
	// of JSON.
	ErrMalformedToken = errors.New("malformed token")

	// ErrInvalidSignature is returned when the signature does not match the key.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrInvalidClaims is returned when a correctly signed token carries claims
	// that are not acceptable, e.g. it is expired.
	ErrInvalidClaims = errors.New("invalid claims")
)

// segmentEncoding rejects non-zero padding bits, so every token has exactly one
// encoding.
var segmentEncoding = base64.RawURLEncoding.Strict()

// Header is the decoded protected header of a token.
type Header struct {
	Alg string
	Typ string
	Kid string
}

// Sign assembles header.payload.signature. Header and claims are encoded in
// canonical JSON so the signed bytes do not depend on map iteration or
// encoder settings.
func Sign(claims jwt.MapClaims, kid string, s signer.Signer) (string, error) {
	header := jsonmap.JSONMap{
		"alg": ES256K.Alg(),
		"typ": "JWT",
		"kid": kid,
	}

	h, err := header.Canonicalize()
	if err != nil {
		return "", fmt.Errorf("failed to encode header: %w", err)
	}

	payload := jsonmap.JSONMap(claims)
	p, err := payload.Canonicalize()
	if err != nil {
		return "", fmt.Errorf("failed to encode claims: %w", err)
	}

	signingString := encodeSegment(h) + "." + encodeSegment(p)

	sig, err := ES256K.Sign(signingString, s)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signingString + "." + encodeSegment(sig), nil
}

// Split checks that token has exactly three non-empty base64url segments and
// returns them.
func Split(token string) ([3]string, error) {
	var out [3]string

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return out, fmt.Errorf("%w: expected 3 segments, got %d", ErrMalformedToken, len(parts))
	}

	for i, part := range parts {
		if part == "" {
			return out, fmt.Errorf("%w: segment %d is empty", ErrMalformedToken, i)
		}
		if _, err := segmentEncoding.DecodeString(part); err != nil {
			return out, fmt.Errorf("%w: segment %d: %w", ErrMalformedToken, i, err)
		}
		out[i] = part
	}

	return out, nil
}

// Decode reads the header and claims of a token without checking the
// signature. Nothing returned by Decode may be trusted until Verify succeeds.
func Decode(token string) (*Header, jwt.MapClaims, error) {
	if _, err := Split(token); err != nil {
		return nil, nil, err
	}

	claims := jwt.MapClaims{}
	t, _, err := jwt.NewParser(jwt.WithStrictDecoding()).ParseUnverified(token, claims)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrMalformedToken, err)
	}

	header := &Header{}
	header.Alg, _ = t.Header["alg"].(string)
	header.Typ, _ = t.Header["typ"].(string)
	header.Kid, _ = t.Header["kid"].(string)

	if header.Alg != ES256K.Alg() {
		return nil, nil, fmt.Errorf("%w: unsupported alg %q", ErrMalformedToken, header.Alg)
	}
	if header.Kid == "" {
		return nil, nil, fmt.Errorf("%w: kid not found in header", ErrMalformedToken)
	}

	return header, claims, nil
}

// VerifyOpt configures Verify.
type VerifyOpt func(*verifyOptions)

type verifyOptions struct {
	leeway   time.Duration
	audience string
	now      func() time.Time
}

// WithLeeway allows clock skew when checking exp and nbf.
func WithLeeway(d time.Duration) VerifyOpt {
	return func(o *verifyOptions) {
		o.leeway = d
	}
}

// WithAudience requires the aud claim to contain aud.
func WithAudience(aud string) VerifyOpt {
	return func(o *verifyOptions) {
		o.audience = aud
	}
}

// WithTimeFunc overrides the clock used for exp and nbf.
func WithTimeFunc(now func() time.Time) VerifyOpt {
	return func(o *verifyOptions) {
		o.now = now
	}
}

// Verify checks the signature of token against pub and then its time claims.
// It returns the verified claims.
func Verify(token string, pub *btcec.PublicKey, opts ...VerifyOpt) (jwt.MapClaims, error) {
	o := &verifyOptions{}
	for _, opt := range opts {
		opt(o)
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{ES256K.Alg()}),
		jwt.WithStrictDecoding(),
		jwt.WithLeeway(o.leeway),
	}
	if o.audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(o.audience))
	}
	if o.now != nil {
		parserOpts = append(parserOpts, jwt.WithTimeFunc(o.now))
	}

	claims := jwt.MapClaims{}
	_, err := jwt.NewParser(parserOpts...).ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return pub, nil
	})

	switch {
	case err == nil:
		return claims, nil
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return nil, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenMalformed), errors.Is(err, jwt.ErrTokenUnverifiable):
		return nil, fmt.Errorf("%w: %w", ErrMalformedToken, err)
	default:
		return nil, fmt.Errorf("%w: %w", ErrInvalidClaims, err)
	}
}

// ParsePublicKeyHex parses a hex secp256k1 public key, compressed or not.
func ParsePublicKeyHex(publicKeyHex string) (*btcec.PublicKey, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(publicKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to decode public key hex: %w", err)
	}

	pub, err := btcec.ParsePubKey(b)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	return pub, nil
}

func encodeSegment(b []byte) string {
	return segmentEncoding.EncodeToString(b)
}
