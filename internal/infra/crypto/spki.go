package crypto

import (
	"crypto/ed25519"
	encasn1 "encoding/asn1"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"

	"github.com/hedera-dev/hedera-hsm-signing/internal/domain"
)

var (
	oidPublicKeyECDSA   = encasn1.ObjectIdentifier{1, 2, 840, 10045, 2, 1}
	oidNamedCurveK256   = encasn1.ObjectIdentifier{1, 3, 132, 0, 10}
	oidPublicKeyEd25519 = encasn1.ObjectIdentifier{1, 3, 101, 112}
)

// secp256k1PublicKey validates an encoded point (compressed or uncompressed) and
// returns its canonical SPKI form.
func secp256k1PublicKey(point []byte) (domain.CanonicalPublicKey, error) {
	pub, err := secp256k1.ParsePubKey(point)
	if err != nil {
		return domain.CanonicalPublicKey{}, fmt.Errorf("%w: secp256k1 point: %v", domain.ErrKeyFormat, err)
	}
	uncompressed := pub.SerializeUncompressed()
	der, err := marshalSPKI(oidPublicKeyECDSA, oidNamedCurveK256, uncompressed)
	if err != nil {
		return domain.CanonicalPublicKey{}, fmt.Errorf("%w: %v", domain.ErrKeyFormat, err)
	}
	return domain.CanonicalPublicKey{Curve: domain.CurveSecp256k1, DER: der, Point: uncompressed}, nil
}

func ed25519PublicKey(raw []byte) (domain.CanonicalPublicKey, error) {
	if len(raw) != ed25519.PublicKeySize {
		return domain.CanonicalPublicKey{}, fmt.Errorf("%w: ed25519 key length %d", domain.ErrKeyFormat, len(raw))
	}
	point := append([]byte(nil), raw...)
	der, err := marshalSPKI(oidPublicKeyEd25519, nil, point)
	if err != nil {
		return domain.CanonicalPublicKey{}, fmt.Errorf("%w: %v", domain.ErrKeyFormat, err)
	}
	return domain.CanonicalPublicKey{Curve: domain.CurveEd25519, DER: der, Point: point}, nil
}

// marshalSPKI builds SEQUENCE{SEQUENCE{algorithm, [parameters]}, BIT STRING key}.
func marshalSPKI(algorithm, namedCurve encasn1.ObjectIdentifier, key []byte) ([]byte, error) {
	var b cryptobyte.Builder
	b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
			b.AddASN1ObjectIdentifier(algorithm)
			if namedCurve != nil {
				b.AddASN1ObjectIdentifier(namedCurve)
			}
		})
		b.AddASN1BitString(key)
	})
	return b.Bytes()
}

// parseSPKI decodes a DER SubjectPublicKeyInfo and re-encodes it canonically.
// Only secp256k1 EC keys and ed25519 keys are accepted.
func parseSPKI(der []byte) (domain.CanonicalPublicKey, error) {
	var (
		input     = cryptobyte.String(der)
		spki      cryptobyte.String
		algorithm cryptobyte.String
		algOID    encasn1.ObjectIdentifier
		key       encasn1.BitString
	)
	if !input.ReadASN1(&spki, asn1.SEQUENCE) || !input.Empty() {
		return domain.CanonicalPublicKey{}, fmt.Errorf("%w: malformed spki", domain.ErrKeyFormat)
	}
	if !spki.ReadASN1(&algorithm, asn1.SEQUENCE) || !algorithm.ReadASN1ObjectIdentifier(&algOID) {
		return domain.CanonicalPublicKey{}, fmt.Errorf("%w: malformed spki algorithm", domain.ErrKeyFormat)
	}
	if !spki.ReadASN1BitString(&key) || !spki.Empty() || key.BitLength%8 != 0 {
		return domain.CanonicalPublicKey{}, fmt.Errorf("%w: malformed spki key", domain.ErrKeyFormat)
	}

	switch {
	case algOID.Equal(oidPublicKeyECDSA):
		var curveOID encasn1.ObjectIdentifier
		if !algorithm.ReadASN1ObjectIdentifier(&curveOID) || !algorithm.Empty() {
			return domain.CanonicalPublicKey{}, fmt.Errorf("%w: malformed ec parameters", domain.ErrKeyFormat)
		}
		if !curveOID.Equal(oidNamedCurveK256) {
			return domain.CanonicalPublicKey{}, fmt.Errorf("%w: unsupported named curve %s", domain.ErrKeyFormat, curveOID)
		}
		return secp256k1PublicKey(key.Bytes)
	case algOID.Equal(oidPublicKeyEd25519):
		if !algorithm.Empty() {
			return domain.CanonicalPublicKey{}, fmt.Errorf("%w: ed25519 key carries parameters", domain.ErrKeyFormat)
		}
		return ed25519PublicKey(key.Bytes)
	default:
		return domain.CanonicalPublicKey{}, fmt.Errorf("%w: unsupported key algorithm %s", domain.ErrKeyFormat, algOID)
	}
}
