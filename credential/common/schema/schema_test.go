package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xeipuuv/gojsonschema"

	"github.com/pilacorp/go-trackback-agent/credential/common/jsonmap"
)

func validCredential() jsonmap.JSONMap {
	return jsonmap.JSONMap{
		"@context":     []string{"https://www.w3.org/2018/credentials/v1"},
		"type":         []string{"VerifiableCredential", "UniversityDegreeCredential"},
		"issuer":       "did:trackback:0x01",
		"issuanceDate": "2010-01-01T19:23:24Z",
		"credentialSubject": map[string]interface{}{
			"id":     "did:trackback:0x02",
			"degree": map[string]interface{}{"type": "BachelorDegree", "name": "Bachelor of Science and Arts"},
		},
	}
}

func TestValidateCredential(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(m jsonmap.JSONMap)
		expectErr bool
	}{
		{name: "valid", mutate: func(jsonmap.JSONMap) {}},
		{name: "issuer object", mutate: func(m jsonmap.JSONMap) { m["issuer"] = map[string]interface{}{"id": "did:trackback:0x01", "name": "Uni"} }},
		{name: "single type string", mutate: func(m jsonmap.JSONMap) { m["type"] = "VerifiableCredential" }},
		{name: "missing context", mutate: func(m jsonmap.JSONMap) { delete(m, "@context") }, expectErr: true},
		{name: "missing subject", mutate: func(m jsonmap.JSONMap) { delete(m, "credentialSubject") }, expectErr: true},
		{name: "missing issuer", mutate: func(m jsonmap.JSONMap) { delete(m, "issuer") }, expectErr: true},
		{name: "empty issuer", mutate: func(m jsonmap.JSONMap) { m["issuer"] = "" }, expectErr: true},
		{name: "type without VerifiableCredential", mutate: func(m jsonmap.JSONMap) { m["type"] = []string{"Other"} }, expectErr: true},
		{name: "bad issuance date", mutate: func(m jsonmap.JSONMap) { m["issuanceDate"] = "yesterday" }, expectErr: true},
		{name: "schema entry without id", mutate: func(m jsonmap.JSONMap) { m["credentialSchema"] = map[string]interface{}{"type": "JsonSchema"} }, expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := validCredential()
			tt.mutate(m)

			err := ValidateCredential(m)
			if tt.expectErr {
				assert.ErrorIs(t, err, ErrSchemaViolation)
				return
			}
			assert.NoError(t, err)
		})
	}
}

const degreeSchema = `{
  "type": "object",
  "properties": {
    "credentialSubject": {
      "type": "object",
      "required": ["degree"]
    }
  }
}`

func TestValidateCredentialSchemas(t *testing.T) {
	var requested []string
	loader := func(id string) gojsonschema.JSONLoader {
		requested = append(requested, id)
		return gojsonschema.NewStringLoader(degreeSchema)
	}

	m := validCredential()
	require.NoError(t, ValidateCredentialSchemas(m, loader), "no credentialSchema")
	assert.Empty(t, requested)

	m["credentialSchema"] = []map[string]interface{}{{"id": "https://example.org/schemas/degree", "type": "JsonSchema"}}
	require.NoError(t, ValidateCredentialSchemas(m, loader))
	assert.Equal(t, []string{"https://example.org/schemas/degree"}, requested)

	delete(m["credentialSubject"].(map[string]interface{}), "degree")
	assert.ErrorIs(t, ValidateCredentialSchemas(m, loader), ErrSchemaViolation)

	m["credentialSchema"] = map[string]interface{}{"type": "JsonSchema"}
	assert.ErrorIs(t, ValidateCredentialSchemas(m, loader), ErrSchemaViolation)
}
