// Package jwe encodes the JSON serialization of an ECDH-ES + A256GCM envelope.
package jwe

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	Alg = "ECDH-ES"
	Enc = "A256GCM"
	Crv = "secp256k1"
	Typ = "application/didcomm-encrypted+json"

	// Zip marks a DEFLATE-compressed plaintext.
	Zip = "DEF"
)

// ErrMalformed is returned for envelopes that cannot be decoded.
var ErrMalformed = errors.New("malformed jwe")

// JWE is the flattened JSON serialization.
type JWE struct {
	Protected  string `json:"protected"`
	IV         string `json:"iv"`
	Ciphertext string `json:"ciphertext"`
	Tag        string `json:"tag"`
}

// Header is the protected header. EPK is the compressed ephemeral public key,
// base64url encoded.
type Header struct {
	Alg string `json:"alg"`
	Enc string `json:"enc"`
	Crv string `json:"crv"`
	Typ string `json:"typ"`
	Kid string `json:"kid"`
	EPK string `json:"epk"`
	Zip string `json:"zip,omitempty"`
}

// NewHeader returns the protected header for a message to kid.
func NewHeader(kid string, epk []byte) *Header {
	return &Header{
		Alg: Alg,
		Enc: Enc,
		Crv: Crv,
		Typ: Typ,
		Kid: kid,
		EPK: Encode(epk),
	}
}

// EncodeHeader returns the protected header segment, which doubles as the
// additional authenticated data of the cipher.
func EncodeHeader(h *Header) (string, error) {
	b, err := json.Marshal(h)
	if err != nil {
		return "", fmt.Errorf("failed to marshal jwe header: %w", err)
	}
	return Encode(b), nil
}

// Build serializes an envelope.
func Build(protected string, iv, ciphertext, tag []byte) ([]byte, error) {
	out, err := json.Marshal(JWE{
		Protected:  protected,
		IV:         Encode(iv),
		Ciphertext: Encode(ciphertext),
		Tag:        Encode(tag),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal jwe: %w", err)
	}
	return out, nil
}

// Parsed is a decoded envelope.
type Parsed struct {
	Protected  string
	Header     Header
	EPK        []byte
	IV         []byte
	Ciphertext []byte
	Tag        []byte
}

// Parse decodes an envelope and checks its algorithms.
func Parse(data []byte) (*Parsed, error) {
	var j JWE
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	p := &Parsed{Protected: j.Protected}

	rawHeader, err := decode("protected", j.Protected)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(rawHeader, &p.Header); err != nil {
		return nil, fmt.Errorf("%w: header: %w", ErrMalformed, err)
	}
	if p.Header.Alg != Alg || p.Header.Enc != Enc || p.Header.Crv != Crv {
		return nil, fmt.Errorf("%w: unsupported alg %q enc %q crv %q", ErrMalformed, p.Header.Alg, p.Header.Enc, p.Header.Crv)
	}

	if p.Header.Zip != "" && p.Header.Zip != Zip {
		return nil, fmt.Errorf("%w: unsupported zip %q", ErrMalformed, p.Header.Zip)
	}

	if p.EPK, err = decode("epk", p.Header.EPK); err != nil {
		return nil, err
	}
	if p.IV, err = decode("iv", j.IV); err != nil {
		return nil, err
	}
	if p.Ciphertext, err = decode("ciphertext", j.Ciphertext); err != nil {
		return nil, err
	}
	if p.Tag, err = decode("tag", j.Tag); err != nil {
		return nil, err
	}

	return p, nil
}

// Encode is unpadded base64url.
func Encode(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

func decode(field, s string) ([]byte, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: %s is empty", ErrMalformed, field)
	}
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformed, field, err)
	}
	return b, nil
}
