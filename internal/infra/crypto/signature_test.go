package crypto

import (
	"bytes"
	"encoding/asn1"
	"encoding/base64"
	"math/big"
	"math/rand"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hedera-dev/hedera-hsm-signing/internal/domain"
)

// referenceDER encodes (r, s) the way every ECDSA library does.
func referenceDER(t *testing.T, r, s []byte) []byte {
	t.Helper()
	der, err := asn1.Marshal(struct {
		R, S *big.Int
	}{new(big.Int).SetBytes(r), new(big.Int).SetBytes(s)})
	require.NoError(t, err)
	return der
}

func fixed32(b []byte) []byte {
	out := make([]byte, 32)
	copy(out[32-len(b):], b)
	return out
}

func TestSignatureCodec_ShortRAndSignPaddedS(t *testing.T) {
	r := bytes.Repeat([]byte{0x11}, 31)
	s := append([]byte{0x81}, bytes.Repeat([]byte{0x22}, 31)...)

	der := []byte{0x30, 2 + 31 + 2 + 33, 0x02, 31}
	der = append(der, r...)
	der = append(der, 0x02, 33, 0x00)
	der = append(der, s...)
	require.Equal(t, referenceDER(t, r, s), der)

	sig, err := NewSignatureCodec(0).Normalize(domain.NativeSignature{Encoding: domain.SignatureEncodingDER, Data: der}, domain.CurveSecp256k1)
	require.NoError(t, err)
	require.Len(t, sig, 64)
	assert.Equal(t, append([]byte{0x00}, r...), []byte(sig[:32]))
	assert.Equal(t, s, []byte(sig[32:]))
}

func TestSignatureCodec_DERRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	random := func(n int) []byte {
		b := make([]byte, n)
		rng.Read(b)
		return b
	}
	highBit := func(b []byte) []byte { b[0] |= 0x80; return b }
	lowBit := func(b []byte) []byte { b[0] &= 0x7f; return b }

	tests := []struct {
		name string
		r, s []byte
	}{
		{name: "both sign padded", r: highBit(random(32)), s: highBit(random(32))},
		{name: "neither padded", r: lowBit(random(32)), s: lowBit(random(32))},
		{name: "r elided", r: append([]byte{0x00}, highBit(random(31))...), s: highBit(random(32))},
		{name: "s elided twice", r: lowBit(random(32)), s: append([]byte{0x00, 0x00}, random(30)...)},
		{name: "tiny values", r: fixed32([]byte{0x01}), s: fixed32([]byte{0x7f})},
	}
	codec := NewSignatureCodec(0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			der := referenceDER(t, tt.r, tt.s)
			sig, err := codec.Normalize(domain.NativeSignature{Encoding: domain.SignatureEncodingDER, Data: der}, domain.CurveSecp256k1)
			require.NoError(t, err)
			require.Len(t, sig, domain.SignatureSize)
			assert.Equal(t, fixed32(bytes.TrimLeft(tt.r, "\x00")), sig.R())
			assert.Equal(t, fixed32(bytes.TrimLeft(tt.s, "\x00")), sig.S())

			again, err := codec.Normalize(domain.NativeSignature{Encoding: domain.SignatureEncodingRawOrDER, Data: sig}, domain.CurveSecp256k1)
			require.NoError(t, err)
			assert.Equal(t, sig, again)
		})
	}
}

func TestSignatureCodec_MalformedDER(t *testing.T) {
	r := bytes.Repeat([]byte{0x11}, 32)
	tests := []struct {
		name string
		der  []byte
	}{
		{name: "missing s", der: append([]byte{0x30, 34, 0x02, 32}, r...)},
		{name: "trailing bytes", der: append(referenceDER(t, r, r), 0x00)},
		{name: "extra integer", der: func() []byte {
			body := append([]byte{0x02, 32}, r...)
			body = append(body, body...)
			body = append(body, 0x02, 0x01, 0x01)
			return append([]byte{0x30, byte(len(body))}, body...)
		}()},
		{name: "negative r", der: []byte{0x30, 0x06, 0x02, 0x01, 0x80, 0x02, 0x01, 0x01}},
		{name: "oversized r", der: func() []byte {
			wide := append([]byte{0x01}, r...)
			body := append([]byte{0x02, 33}, wide...)
			body = append(body, 0x02, 0x01, 0x01)
			return append([]byte{0x30, byte(len(body))}, body...)
		}()},
		{name: "empty", der: nil},
		{name: "not a sequence", der: []byte{0x02, 0x01, 0x01}},
	}
	codec := NewSignatureCodec(0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig, err := codec.Normalize(domain.NativeSignature{Encoding: domain.SignatureEncodingDER, Data: tt.der}, domain.CurveSecp256k1)
			require.ErrorIs(t, err, domain.ErrSignatureFormat)
			assert.Nil(t, sig)
		})
	}
}

func TestSignatureCodec_HSMLayoutDetection(t *testing.T) {
	codec := NewSignatureCodec(0)

	raw := append(bytes.Repeat([]byte{0x42}, 32), bytes.Repeat([]byte{0x43}, 32)...)
	sig, err := codec.Normalize(domain.NativeSignature{Encoding: domain.SignatureEncodingRawOrDER, Data: raw}, domain.CurveSecp256k1)
	require.NoError(t, err)
	assert.Equal(t, raw, []byte(sig))
	raw[0] = 0x00
	assert.Equal(t, byte(0x42), sig[0], "normalized signature must not alias the input")

	tagged := append([]byte{asn1SequenceTag}, bytes.Repeat([]byte{0x44}, 63)...)
	sig, err = codec.Normalize(domain.NativeSignature{Encoding: domain.SignatureEncodingRawOrDER, Data: tagged}, domain.CurveSecp256k1)
	require.NoError(t, err)
	assert.Equal(t, tagged, []byte(sig))

	der := referenceDER(t, bytes.Repeat([]byte{0x91}, 32), bytes.Repeat([]byte{0x12}, 32))
	sig, err = codec.Normalize(domain.NativeSignature{Encoding: domain.SignatureEncodingRawOrDER, Data: der}, domain.CurveSecp256k1)
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{0x91}, 32), sig.R())
	assert.Equal(t, bytes.Repeat([]byte{0x12}, 32), sig.S())
}

func TestSignatureCodec_ConfiguredRawWidth(t *testing.T) {
	codec := NewSignatureCodec(96)
	raw := bytes.Repeat([]byte{0x42}, 64)
	_, err := codec.Normalize(domain.NativeSignature{Encoding: domain.SignatureEncodingRawOrDER, Data: raw}, domain.CurveSecp256k1)
	require.ErrorIs(t, err, domain.ErrSignatureFormat)
}

func TestSignatureCodec_Composite(t *testing.T) {
	blob := bytes.Repeat([]byte{0xab}, 64)
	encoded := base64.StdEncoding.EncodeToString(blob)

	codec := NewSignatureCodec(0)
	for _, composite := range []string{
		"1:1:" + encoded,
		"vault:v1:" + encoded,
		encoded,
		"a:b:c:d:" + encoded,
	} {
		sig, err := codec.Normalize(domain.NativeSignature{Encoding: domain.SignatureEncodingComposite, Data: []byte(composite)}, domain.CurveEd25519)
		require.NoError(t, err, composite)
		assert.Equal(t, blob, []byte(sig))
	}

	_, err := codec.Normalize(domain.NativeSignature{Encoding: domain.SignatureEncodingComposite, Data: []byte("1:1:not base64!")}, domain.CurveEd25519)
	require.ErrorIs(t, err, domain.ErrSignatureFormat)

	short := base64.StdEncoding.EncodeToString(blob[:63])
	_, err = codec.Normalize(domain.NativeSignature{Encoding: domain.SignatureEncodingComposite, Data: []byte("1:1:" + short)}, domain.CurveEd25519)
	require.ErrorIs(t, err, domain.ErrSignatureFormat)

	_, err = codec.Normalize(domain.NativeSignature{Encoding: domain.SignatureEncodingComposite, Data: nil}, domain.CurveEd25519)
	require.ErrorIs(t, err, domain.ErrSignatureFormat)
}

func TestSignatureCodec_RejectsEncodingForCurve(t *testing.T) {
	codec := NewSignatureCodec(0)
	_, err := codec.Normalize(domain.NativeSignature{Encoding: domain.SignatureEncodingDER, Data: []byte{0x30, 0x00}}, domain.CurveEd25519)
	require.ErrorIs(t, err, domain.ErrSignatureFormat)
	_, err = codec.Normalize(domain.NativeSignature{Encoding: domain.SignatureEncodingComposite, Data: []byte("1:1:AA==")}, domain.CurveSecp256k1)
	require.ErrorIs(t, err, domain.ErrSignatureFormat)
}

func TestSignatureCodec_VerifiesAgainstSecp256k1(t *testing.T) {
	priv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	pub, err := secp256k1PublicKey(priv.PubKey().SerializeUncompressed())
	require.NoError(t, err)

	payload := []byte("transfer 10 hbar")
	policy := NewDigestPolicy()
	digest, err := policy.Prepare(payload, domain.BackendCloudKMS, domain.CurveSecp256k1)
	require.NoError(t, err)

	codec := NewSignatureCodec(0)
	verifier := Verifier{Digest: policy}
	for i := 0; i < 16; i++ {
		der := ecdsa.Sign(priv, digest).Serialize()
		sig, err := codec.Normalize(domain.NativeSignature{Encoding: domain.SignatureEncodingDER, Data: der}, domain.CurveSecp256k1)
		require.NoError(t, err)
		require.NoError(t, verifier.Verify(pub, domain.BackendCloudKMS, payload, sig))
		require.ErrorIs(t, verifier.Verify(pub, domain.BackendCloudKMS, []byte("other"), sig), ErrVerificationFailed)
	}
}
