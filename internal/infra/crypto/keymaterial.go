package crypto

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"strings"

	"github.com/hedera-dev/hedera-hsm-signing/internal/domain"
)

// Key Vault tags secp256k1 keys with its own enum values, which generic JWK
// parsers reject.
var (
	jwkKeyTypeAliases = map[string]string{
		"EC-HSM": "EC",
		"EC":     "EC",
	}
	jwkCurveAliases = map[string]string{
		"P-256K":    "secp256k1",
		"SECP256K1": "secp256k1",
		"secp256k1": "secp256k1",
	}
)

// KeyMaterialCodec converts backend-native public keys into CanonicalPublicKey.
type KeyMaterialCodec struct{}

func NewKeyMaterialCodec() KeyMaterialCodec {
	return KeyMaterialCodec{}
}

func (KeyMaterialCodec) Normalize(native domain.NativeKey, curve domain.Curve) (domain.CanonicalPublicKey, error) {
	var (
		key domain.CanonicalPublicKey
		err error
	)
	switch native.Encoding {
	case domain.KeyEncodingJWK:
		key, err = normalizeJWK(native.Data)
	case domain.KeyEncodingPEM:
		key, err = normalizePEM(native.Data)
	case domain.KeyEncodingDER:
		key, err = parseSPKI(native.Data)
	case domain.KeyEncodingBase64Ed25519:
		key, err = normalizeBase64Ed25519(native.Data)
	default:
		return domain.CanonicalPublicKey{}, fmt.Errorf("%w: unknown key encoding %q", domain.ErrKeyFormat, native.Encoding)
	}
	if err != nil {
		return domain.CanonicalPublicKey{}, err
	}
	if key.Curve != curve {
		return domain.CanonicalPublicKey{}, fmt.Errorf("%w: backend key is %s, handle declares %s", domain.ErrKeyFormat, key.Curve, curve)
	}
	return key, nil
}

type jsonWebKey struct {
	Kid string        `json:"kid,omitempty"`
	Kty string        `json:"kty"`
	Crv string        `json:"crv"`
	X   jwkCoordinate `json:"x"`
	Y   jwkCoordinate `json:"y"`
}

// jwkCoordinate accepts either base64url text (padded or not) or a JSON array
// of byte values, which is how some vault SDKs hand back coordinates.
type jwkCoordinate []byte

func (c *jwkCoordinate) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var values []int
		if err := json.Unmarshal(data, &values); err != nil {
			return err
		}
		out := make([]byte, len(values))
		for i, v := range values {
			if v < 0 || v > 255 {
				return fmt.Errorf("coordinate byte %d out of range", v)
			}
			out[i] = byte(v)
		}
		*c = out
		return nil
	}
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return err
	}
	decoded, err := decodeBase64URL(text)
	if err != nil {
		return err
	}
	*c = decoded
	return nil
}

func (c jwkCoordinate) MarshalJSON() ([]byte, error) {
	return json.Marshal(base64.RawURLEncoding.EncodeToString(c))
}

// normalizeJWK rewrites the vault's proprietary kty/crv values to their standard
// names, then converts the resulting standard EC JWK to SPKI.
func normalizeJWK(data []byte) (domain.CanonicalPublicKey, error) {
	standard, err := RewriteVaultJWK(data)
	if err != nil {
		return domain.CanonicalPublicKey{}, err
	}
	var jwk struct {
		Kty string `json:"kty"`
		Crv string `json:"crv"`
		X   string `json:"x"`
		Y   string `json:"y"`
	}
	if err := json.Unmarshal(standard, &jwk); err != nil {
		return domain.CanonicalPublicKey{}, fmt.Errorf("%w: decode jwk: %v", domain.ErrKeyFormat, err)
	}
	x, err := base64.RawURLEncoding.DecodeString(jwk.X)
	if err != nil {
		return domain.CanonicalPublicKey{}, fmt.Errorf("%w: jwk x: %v", domain.ErrKeyFormat, err)
	}
	y, err := base64.RawURLEncoding.DecodeString(jwk.Y)
	if err != nil {
		return domain.CanonicalPublicKey{}, fmt.Errorf("%w: jwk y: %v", domain.ErrKeyFormat, err)
	}
	return jwkToSPKI(jsonWebKey{Kty: jwk.Kty, Crv: jwk.Crv, X: x, Y: y})
}

// RewriteVaultJWK returns a standard JWK document for a vault JWK: kty and crv
// use their standard names and x/y are unpadded base64url text.
func RewriteVaultJWK(data []byte) ([]byte, error) {
	var jwk jsonWebKey
	if err := json.Unmarshal(data, &jwk); err != nil {
		return nil, fmt.Errorf("%w: decode jwk: %v", domain.ErrKeyFormat, err)
	}
	kty, ok := jwkKeyTypeAliases[jwk.Kty]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported jwk kty %q", domain.ErrKeyFormat, jwk.Kty)
	}
	crv, ok := jwkCurveAliases[jwk.Crv]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported jwk crv %q", domain.ErrKeyFormat, jwk.Crv)
	}
	if len(jwk.X) == 0 || len(jwk.Y) == 0 {
		return nil, fmt.Errorf("%w: jwk coordinates missing", domain.ErrKeyFormat)
	}
	jwk.Kty = kty
	jwk.Crv = crv
	out, err := json.Marshal(jwk)
	if err != nil {
		return nil, fmt.Errorf("%w: encode jwk: %v", domain.ErrKeyFormat, err)
	}
	return out, nil
}

func jwkToSPKI(jwk jsonWebKey) (domain.CanonicalPublicKey, error) {
	if jwk.Kty != "EC" || jwk.Crv != "secp256k1" {
		return domain.CanonicalPublicKey{}, fmt.Errorf("%w: jwk %s/%s is not a secp256k1 key", domain.ErrKeyFormat, jwk.Kty, jwk.Crv)
	}
	x, err := leftPad(jwk.X, domain.ScalarSize)
	if err != nil {
		return domain.CanonicalPublicKey{}, fmt.Errorf("%w: jwk x: %v", domain.ErrKeyFormat, err)
	}
	y, err := leftPad(jwk.Y, domain.ScalarSize)
	if err != nil {
		return domain.CanonicalPublicKey{}, fmt.Errorf("%w: jwk y: %v", domain.ErrKeyFormat, err)
	}
	point := make([]byte, 0, 1+2*domain.ScalarSize)
	point = append(point, 0x04)
	point = append(point, x...)
	point = append(point, y...)
	return secp256k1PublicKey(point)
}

func normalizePEM(data []byte) (domain.CanonicalPublicKey, error) {
	block, rest := pem.Decode(bytes.TrimSpace(data))
	if block == nil {
		return domain.CanonicalPublicKey{}, fmt.Errorf("%w: no pem block", domain.ErrKeyFormat)
	}
	if block.Type != "PUBLIC KEY" {
		return domain.CanonicalPublicKey{}, fmt.Errorf("%w: unexpected pem block %q", domain.ErrKeyFormat, block.Type)
	}
	if len(bytes.TrimSpace(rest)) != 0 {
		return domain.CanonicalPublicKey{}, fmt.Errorf("%w: trailing data after pem block", domain.ErrKeyFormat)
	}
	return parseSPKI(block.Bytes)
}

func normalizeBase64Ed25519(data []byte) (domain.CanonicalPublicKey, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return domain.CanonicalPublicKey{}, fmt.Errorf("%w: decode ed25519 key: %v", domain.ErrKeyFormat, err)
	}
	return ed25519PublicKey(raw)
}

func decodeBase64URL(value string) ([]byte, error) {
	value = strings.TrimRight(strings.TrimSpace(value), "=")
	if strings.ContainsAny(value, "+/") {
		return base64.RawStdEncoding.DecodeString(value)
	}
	return base64.RawURLEncoding.DecodeString(value)
}

// leftPad strips leading zeros and left-pads value to exactly size bytes.
func leftPad(value []byte, size int) ([]byte, error) {
	trimmed := bytes.TrimLeft(value, "\x00")
	if len(trimmed) > size {
		return nil, fmt.Errorf("value is %d bytes, want at most %d", len(trimmed), size)
	}
	out := make([]byte, size)
	copy(out[size-len(trimmed):], trimmed)
	return out, nil
}
