package crypto

import (
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"

	"github.com/hedera-dev/hedera-hsm-signing/internal/domain"
)

// asn1SequenceTag is the first byte of every DER encoded ECDSA signature.
const asn1SequenceTag = 0x30

// SignatureCodec converts backend-native signatures into the 64-byte layout the
// ledger verifier expects.
type SignatureCodec struct {
	// RawWidth is the length at which a raw-or-DER signature is taken to be r||s
	// already. Zero means domain.SignatureSize.
	RawWidth int
}

func NewSignatureCodec(rawWidth int) SignatureCodec {
	return SignatureCodec{RawWidth: rawWidth}
}

func (c SignatureCodec) Normalize(native domain.NativeSignature, curve domain.Curve) (domain.RawSignature, error) {
	switch curve {
	case domain.CurveSecp256k1:
		return c.normalizeSecp256k1(native)
	case domain.CurveEd25519:
		return normalizeEd25519(native)
	default:
		return nil, fmt.Errorf("%w: unsupported curve %q", domain.ErrSignatureFormat, curve)
	}
}

func (c SignatureCodec) rawWidth() int {
	if c.RawWidth > 0 {
		return c.RawWidth
	}
	return domain.SignatureSize
}

func (c SignatureCodec) normalizeSecp256k1(native domain.NativeSignature) (domain.RawSignature, error) {
	switch native.Encoding {
	case domain.SignatureEncodingDER:
		return derToRaw(native.Data)
	case domain.SignatureEncodingRaw:
		return rawSignature(native.Data)
	case domain.SignatureEncodingRawOrDER:
		data := native.Data
		if len(data) == c.rawWidth() && data[0] != asn1SequenceTag {
			return rawSignature(data)
		}
		sig, err := derToRaw(data)
		if err != nil && len(data) == c.rawWidth() {
			// r may legitimately start with the SEQUENCE tag byte.
			return rawSignature(data)
		}
		return sig, err
	default:
		return nil, fmt.Errorf("%w: %q is not a secp256k1 signature encoding", domain.ErrSignatureFormat, native.Encoding)
	}
}

func normalizeEd25519(native domain.NativeSignature) (domain.RawSignature, error) {
	switch native.Encoding {
	case domain.SignatureEncodingComposite:
		return compositeToRaw(string(native.Data))
	case domain.SignatureEncodingRaw:
		return rawSignature(native.Data)
	default:
		return nil, fmt.Errorf("%w: %q is not an ed25519 signature encoding", domain.ErrSignatureFormat, native.Encoding)
	}
}

func rawSignature(data []byte) (domain.RawSignature, error) {
	if len(data) != domain.SignatureSize {
		return nil, fmt.Errorf("%w: raw signature is %d bytes, want %d", domain.ErrSignatureFormat, len(data), domain.SignatureSize)
	}
	return append(domain.RawSignature(nil), data...), nil
}

// derToRaw decodes SEQUENCE{INTEGER r, INTEGER s} and lays out r||s with each
// half exactly 32 bytes big-endian.
func derToRaw(der []byte) (domain.RawSignature, error) {
	var (
		input = cryptobyte.String(der)
		seq   cryptobyte.String
		r, s  cryptobyte.String
	)
	if !input.ReadASN1(&seq, asn1.SEQUENCE) || !input.Empty() {
		return nil, fmt.Errorf("%w: malformed der sequence", domain.ErrSignatureFormat)
	}
	if !seq.ReadASN1(&r, asn1.INTEGER) {
		return nil, fmt.Errorf("%w: missing r integer", domain.ErrSignatureFormat)
	}
	if !seq.ReadASN1(&s, asn1.INTEGER) {
		return nil, fmt.Errorf("%w: missing s integer", domain.ErrSignatureFormat)
	}
	if !seq.Empty() {
		return nil, fmt.Errorf("%w: trailing data in der sequence", domain.ErrSignatureFormat)
	}
	rBytes, err := fixedScalar(r)
	if err != nil {
		return nil, fmt.Errorf("%w: r: %v", domain.ErrSignatureFormat, err)
	}
	sBytes, err := fixedScalar(s)
	if err != nil {
		return nil, fmt.Errorf("%w: s: %v", domain.ErrSignatureFormat, err)
	}
	out := make(domain.RawSignature, 0, domain.SignatureSize)
	out = append(out, rBytes...)
	out = append(out, sBytes...)
	return out, nil
}

// fixedScalar strips ASN.1 sign padding from a positive INTEGER body and
// left-pads it to 32 bytes.
func fixedScalar(body []byte) ([]byte, error) {
	if len(body) == 0 {
		return nil, fmt.Errorf("empty integer")
	}
	if body[0]&0x80 != 0 {
		return nil, fmt.Errorf("negative integer")
	}
	return leftPad(body, domain.ScalarSize)
}

// compositeToRaw takes the last colon-delimited field of a transit signature
// ("1:1:<base64>" or "vault:v1:<base64>") and base64-decodes it.
func compositeToRaw(composite string) (domain.RawSignature, error) {
	composite = strings.TrimSpace(composite)
	if composite == "" {
		return nil, fmt.Errorf("%w: empty composite signature", domain.ErrSignatureFormat)
	}
	field := composite[strings.LastIndex(composite, ":")+1:]
	decoded, err := base64.StdEncoding.DecodeString(field)
	if err != nil {
		return nil, fmt.Errorf("%w: decode composite signature: %v", domain.ErrSignatureFormat, err)
	}
	return rawSignature(decoded)
}
