package crypto

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"github.com/hedera-dev/hedera-hsm-signing/internal/domain"
)

var ErrVerificationFailed = errors.New("signature verification failed")

// Verifier checks canonical signatures the way the ledger does. The signing path
// never calls it; it backs the operator verify command and tests.
type Verifier struct {
	Digest DigestPolicy
}

func (v Verifier) Verify(pub domain.CanonicalPublicKey, backend domain.BackendKind, payload []byte, sig domain.RawSignature) error {
	if len(sig) != domain.SignatureSize {
		return fmt.Errorf("%w: signature is %d bytes", domain.ErrSignatureFormat, len(sig))
	}
	switch pub.Curve {
	case domain.CurveSecp256k1:
		digest, err := v.Digest.Prepare(payload, backend, pub.Curve)
		if err != nil {
			return err
		}
		return verifySecp256k1(pub.Point, digest, sig)
	case domain.CurveEd25519:
		if len(pub.Point) != ed25519.PublicKeySize {
			return fmt.Errorf("%w: ed25519 key length %d", domain.ErrKeyFormat, len(pub.Point))
		}
		if !ed25519.Verify(ed25519.PublicKey(pub.Point), payload, sig) {
			return ErrVerificationFailed
		}
		return nil
	default:
		return fmt.Errorf("%w: curve %q", domain.ErrUnsupportedKey, pub.Curve)
	}
}

func verifySecp256k1(point, digest []byte, sig domain.RawSignature) error {
	pubKey, err := secp256k1.ParsePubKey(point)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrKeyFormat, err)
	}
	var r, s secp256k1.ModNScalar
	if overflow := r.SetByteSlice(sig.R()); overflow || r.IsZero() {
		return fmt.Errorf("%w: r out of range", domain.ErrSignatureFormat)
	}
	if overflow := s.SetByteSlice(sig.S()); overflow || s.IsZero() {
		return fmt.Errorf("%w: s out of range", domain.ErrSignatureFormat)
	}
	if !ecdsa.NewSignature(&r, &s).Verify(digest, pubKey) {
		return ErrVerificationFailed
	}
	return nil
}
