package domain

import (
	"encoding/hex"
	"fmt"
	"strings"
)

type BackendKind string

const (
	BackendHSMVault      BackendKind = "hsm-vault"
	BackendCloudKMS      BackendKind = "cloud-kms"
	BackendSecretTransit BackendKind = "secret-transit"
)

type Curve string

const (
	CurveSecp256k1 Curve = "secp256k1"
	CurveEd25519   Curve = "ed25519"
)

const (
	// SignatureSize is the canonical signature width for every supported curve.
	SignatureSize = 64
	// ScalarSize is the width of each of r and s inside a secp256k1 RawSignature.
	ScalarSize = 32
)

func ParseBackendKind(value string) (BackendKind, error) {
	switch kind := BackendKind(strings.ToLower(strings.TrimSpace(value))); kind {
	case BackendHSMVault, BackendCloudKMS, BackendSecretTransit:
		return kind, nil
	default:
		return "", fmt.Errorf("%w: backend %q", ErrUnsupportedKey, value)
	}
}

func ParseCurve(value string) (Curve, error) {
	switch curve := Curve(strings.ToLower(strings.TrimSpace(value))); curve {
	case CurveSecp256k1, CurveEd25519:
		return curve, nil
	default:
		return "", fmt.Errorf("%w: curve %q", ErrUnsupportedKey, value)
	}
}

// DefaultCurve is the curve each backend is deployed with.
func DefaultCurve(kind BackendKind) Curve {
	if kind == BackendSecretTransit {
		return CurveEd25519
	}
	return CurveSecp256k1
}

// SigningKeyHandle identifies one remote key. It is immutable once built.
type SigningKeyHandle struct {
	Backend BackendKind
	KeyID   string
	Curve   Curve
}

func NewSigningKeyHandle(backend BackendKind, keyID string, curve Curve) (SigningKeyHandle, error) {
	if strings.TrimSpace(keyID) == "" {
		return SigningKeyHandle{}, fmt.Errorf("%w: key id is required", ErrUnsupportedKey)
	}
	if !Supported(backend, curve) {
		return SigningKeyHandle{}, fmt.Errorf("%w: %s does not serve %s keys", ErrUnsupportedKey, backend, curve)
	}
	return SigningKeyHandle{Backend: backend, KeyID: keyID, Curve: curve}, nil
}

// Supported reports whether the backend/curve pair is a deployed combination.
func Supported(backend BackendKind, curve Curve) bool {
	switch backend {
	case BackendHSMVault, BackendCloudKMS:
		return curve == CurveSecp256k1
	case BackendSecretTransit:
		return curve == CurveEd25519
	default:
		return false
	}
}

func (h SigningKeyHandle) String() string {
	return fmt.Sprintf("%s/%s:%s", h.Backend, h.Curve, h.KeyID)
}

// CanonicalPublicKey is a public key in SPKI DER form. Point holds the bare key:
// the 65-byte uncompressed point for secp256k1, the 32-byte key for ed25519.
type CanonicalPublicKey struct {
	Curve Curve
	DER   []byte
	Point []byte
}

func (k CanonicalPublicKey) Hex() string {
	return hex.EncodeToString(k.DER)
}

// Bytes returns the raw ed25519 key, or the SPKI DER for secp256k1.
func (k CanonicalPublicKey) Bytes() []byte {
	if k.Curve == CurveEd25519 {
		return append([]byte(nil), k.Point...)
	}
	return append([]byte(nil), k.DER...)
}

// Export returns the form the ledger client constructs keys from: a hex DER string
// for secp256k1 and raw bytes for ed25519.
func (k CanonicalPublicKey) Export() any {
	if k.Curve == CurveEd25519 {
		return k.Bytes()
	}
	return k.Hex()
}

func (k CanonicalPublicKey) IsZero() bool {
	return len(k.DER) == 0
}

// RawSignature is a curve-fixed 64-byte signature: r||s for secp256k1, the opaque
// blob for ed25519.
type RawSignature []byte

func (s RawSignature) Hex() string {
	return hex.EncodeToString(s)
}

// R returns the first half of a secp256k1 signature.
func (s RawSignature) R() []byte {
	if len(s) != SignatureSize {
		return nil
	}
	return s[:ScalarSize]
}

// S returns the second half of a secp256k1 signature.
func (s RawSignature) S() []byte {
	if len(s) != SignatureSize {
		return nil
	}
	return s[ScalarSize:]
}

type SigningRequest struct {
	Payload []byte
}
