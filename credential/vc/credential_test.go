package vc

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pilacorp/go-trackback-agent/credential/common/jsonmap"
)

const issuerDID = "did:trackback:0xb64b2b1168047d1745492c7025c5edba69e4f4f0"

func testCredential() jsonmap.JSONMap {
	return jsonmap.JSONMap{
		"@context":     []string{"https://www.w3.org/2018/credentials/v1"},
		"id":           "http://example.edu/credentials/3732",
		"type":         []string{"VerifiableCredential"},
		"issuer":       issuerDID,
		"issuanceDate": "2010-01-01T19:23:24Z",
		"credentialSubject": map[string]interface{}{
			"id":       "did:example:ebfeb1f712ebc6f1c276e12ec21",
			"alumniOf": "Example University",
		},
	}
}

func TestIssuerID(t *testing.T) {
	tests := []struct {
		name      string
		issuer    interface{}
		want      string
		expectErr bool
	}{
		{name: "string", issuer: issuerDID, want: issuerDID},
		{name: "object", issuer: map[string]interface{}{"id": issuerDID, "name": "Example University"}, want: issuerDID},
		{name: "jsonmap object", issuer: jsonmap.JSONMap{"id": issuerDID}, want: issuerDID},
		{name: "empty string", issuer: "", expectErr: true},
		{name: "object without id", issuer: map[string]interface{}{"name": "x"}, expectErr: true},
		{name: "missing", issuer: nil, expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := IssuerID(jsonmap.JSONMap{"issuer": tt.issuer})
			if tt.expectErr {
				assert.ErrorIs(t, err, ErrMalformedCredential)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewClaims(t *testing.T) {
	cred := testCredential()
	cred["expirationDate"] = "2030-01-01T00:00:00Z"

	claims, err := NewClaims(cred)
	require.NoError(t, err)

	issued, _ := time.Parse(time.RFC3339, "2010-01-01T19:23:24Z")
	expires, _ := time.Parse(time.RFC3339, "2030-01-01T00:00:00Z")

	assert.Equal(t, issuerDID, claims["iss"])
	assert.Equal(t, "did:example:ebfeb1f712ebc6f1c276e12ec21", claims["sub"])
	assert.Equal(t, "http://example.edu/credentials/3732", claims["jti"])
	assert.Equal(t, issued.Unix(), claims["nbf"])
	assert.Equal(t, expires.Unix(), claims["exp"])

	embedded, ok := claims[ClaimKey].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, []interface{}{"VerifiableCredential"}, embedded["type"])
}

func TestNewClaimsWithoutOptionalFields(t *testing.T) {
	cred := testCredential()
	delete(cred, "id")
	delete(cred, "issuanceDate")
	cred["credentialSubject"] = []interface{}{map[string]interface{}{"name": "no id"}}

	claims, err := NewClaims(cred)
	require.NoError(t, err)

	jti, _ := claims["jti"].(string)
	assert.True(t, strings.HasPrefix(jti, "urn:uuid:"))
	assert.NotContains(t, claims, "nbf")
	assert.NotContains(t, claims, "sub")
}

func TestNewClaimsErrors(t *testing.T) {
	cred := testCredential()
	cred["issuanceDate"] = "01/01/2010"
	_, err := NewClaims(cred)
	assert.ErrorIs(t, err, ErrMalformedCredential)

	cred = testCredential()
	delete(cred, "issuer")
	_, err = NewClaims(cred)
	assert.ErrorIs(t, err, ErrMalformedCredential)
}

func TestFromClaims(t *testing.T) {
	claims, err := NewClaims(testCredential())
	require.NoError(t, err)

	cred, issuer, err := FromClaims(claims)
	require.NoError(t, err)
	assert.Equal(t, issuerDID, issuer)
	assert.Equal(t, "http://example.edu/credentials/3732", cred["id"])

	claims["iss"] = "did:trackback:0x01"
	_, _, err = FromClaims(claims)
	assert.ErrorIs(t, err, ErrMalformedCredential)

	_, _, err = FromClaims(jwt.MapClaims{"vp": map[string]interface{}{}})
	assert.ErrorIs(t, err, ErrMalformedCredential)
}
