package vp

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const holderDID = "did:trackback:0xb64b2b1168047d1745492c7025c5edba69e4f4f0"

func TestNewClaims(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tokens := []string{"a.b.c", "d.e.f"}

	claims := NewClaims(holderDID, tokens,
		WithTimeFunc(func() time.Time { return now }),
		WithAudience("did:trackback:0x02"),
		WithNonce("n-0S6_WzA2Mj"),
		WithExpiration(now.Add(time.Hour)),
	)

	assert.Equal(t, holderDID, claims["iss"])
	assert.Equal(t, holderDID, claims["sub"])
	assert.Equal(t, now.Unix(), claims["nbf"])
	assert.Equal(t, now.Add(time.Hour).Unix(), claims["exp"])
	assert.Equal(t, "did:trackback:0x02", claims["aud"])
	assert.Equal(t, "n-0S6_WzA2Mj", claims["nonce"])

	jti, _ := claims["jti"].(string)
	assert.True(t, strings.HasPrefix(jti, "urn:uuid:"))

	p, err := FromClaims(claims)
	require.NoError(t, err)
	assert.Equal(t, holderDID, p.Holder)
	assert.Equal(t, jti, p.ID)
	assert.Equal(t, []string{"VerifiablePresentation"}, p.Type)
	assert.Equal(t, tokens, p.VerifiableCredential, "order is preserved")
}

func TestNewClaimsWithID(t *testing.T) {
	claims := NewClaims(holderDID, []string{"a.b.c"}, WithID("urn:uuid:fixed"))
	assert.Equal(t, "urn:uuid:fixed", claims["jti"])
	assert.NotContains(t, claims, "aud")
	assert.NotContains(t, claims, "exp")
}

func TestFromClaims(t *testing.T) {
	tests := []struct {
		name      string
		claims    jwt.MapClaims
		wantVCs   []string
		expectErr bool
	}{
		{
			name: "decoded JSON shape",
			claims: jwt.MapClaims{
				"iss": holderDID,
				"vp": map[string]interface{}{
					"@context":             []interface{}{"https://www.w3.org/2018/credentials/v1"},
					"type":                 []interface{}{"VerifiablePresentation"},
					"holder":               holderDID,
					"verifiableCredential": []interface{}{"a.b.c"},
				},
			},
			wantVCs: []string{"a.b.c"},
		},
		{
			name: "single credential instead of list",
			claims: jwt.MapClaims{
				"vp": map[string]interface{}{"type": "VerifiablePresentation", "verifiableCredential": "a.b.c"},
			},
			wantVCs: []string{"a.b.c"},
		},
		{name: "missing vp", claims: jwt.MapClaims{"vc": map[string]interface{}{}}, expectErr: true},
		{name: "vp not an object", claims: jwt.MapClaims{"vp": "a.b.c"}, expectErr: true},
		{
			name: "embedded credential is an object",
			claims: jwt.MapClaims{
				"vp": map[string]interface{}{"verifiableCredential": []interface{}{map[string]interface{}{"id": "x"}}},
			},
			expectErr: true,
		},
		{
			name: "iss differs from holder",
			claims: jwt.MapClaims{
				"iss": "did:trackback:0x01",
				"vp":  map[string]interface{}{"holder": holderDID, "verifiableCredential": []interface{}{"a.b.c"}},
			},
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := FromClaims(tt.claims)
			if tt.expectErr {
				assert.ErrorIs(t, err, ErrMalformedPresentation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantVCs, p.VerifiableCredential)
		})
	}
}
