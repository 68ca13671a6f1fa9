// Package vc maps credentials to and from the claim set of a credential token.
package vc

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/pilacorp/go-trackback-agent/credential/common/jsonmap"
)

// ClaimKey is the claim holding the credential document.
const ClaimKey = "vc"

// ErrMalformedCredential is returned when a credential lacks a required field
// or a field has the wrong shape.
var ErrMalformedCredential = errors.New("malformed credential")

// IssuerID returns the issuer DID of a credential. The issuer may be a string
// or an object with an id.
func IssuerID(cred jsonmap.JSONMap) (string, error) {
	switch v := cred["issuer"].(type) {
	case string:
		if v != "" {
			return v, nil
		}
	case map[string]interface{}:
		if id, _ := v["id"].(string); id != "" {
			return id, nil
		}
	case jsonmap.JSONMap:
		if id, _ := v["id"].(string); id != "" {
			return id, nil
		}
	}

	return "", fmt.Errorf("%w: issuer is missing", ErrMalformedCredential)
}

// SubjectID returns the id of the first credential subject, if any.
func SubjectID(cred jsonmap.JSONMap) string {
	subject := cred["credentialSubject"]
	if list, ok := subject.([]interface{}); ok && len(list) > 0 {
		subject = list[0]
	}

	switch s := subject.(type) {
	case map[string]interface{}:
		id, _ := s["id"].(string)
		return id
	case jsonmap.JSONMap:
		id, _ := s["id"].(string)
		return id
	}

	return ""
}

// NewClaims builds the token claims of a credential:
// iss, sub, jti, nbf (issuanceDate), exp (expirationDate) and the credential
// itself under vc. A credential without id gets a fresh urn:uuid jti.
func NewClaims(cred jsonmap.JSONMap) (jwt.MapClaims, error) {
	normalized, err := cred.Normalize()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedCredential, err)
	}

	issuer, err := IssuerID(normalized)
	if err != nil {
		return nil, err
	}

	claims := jwt.MapClaims{
		"iss":    issuer,
		ClaimKey: map[string]interface{}(normalized),
	}

	if sub := SubjectID(normalized); sub != "" {
		claims["sub"] = sub
	}

	if id, _ := normalized.String("id"); id != "" {
		claims["jti"] = id
	} else {
		claims["jti"] = "urn:uuid:" + uuid.NewString()
	}

	for field, claim := range map[string]string{"issuanceDate": "nbf", "expirationDate": "exp"} {
		raw, ok := normalized[field]
		if !ok {
			continue
		}
		s, _ := raw.(string)
		ts, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, fmt.Errorf("%w: %s must be an RFC 3339 date-time: %w", ErrMalformedCredential, field, err)
		}
		claims[claim] = ts.Unix()
	}

	return claims, nil
}

// FromClaims extracts the credential and its issuer from verified token
// claims. The iss claim and the credential issuer must agree.
func FromClaims(claims jwt.MapClaims) (jsonmap.JSONMap, string, error) {
	raw, ok := claims[ClaimKey].(map[string]interface{})
	if !ok {
		return nil, "", fmt.Errorf("%w: %s claim is missing or not an object", ErrMalformedCredential, ClaimKey)
	}
	cred := jsonmap.JSONMap(raw)

	issuer, err := IssuerID(cred)
	if err != nil {
		return nil, "", err
	}

	if iss, _ := claims["iss"].(string); iss != "" && iss != issuer {
		return nil, "", fmt.Errorf("%w: iss %q does not match issuer %q", ErrMalformedCredential, iss, issuer)
	}

	return cred, issuer, nil
}
