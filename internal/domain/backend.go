package domain

import "context"

type KeyEncoding string

const (
	// KeyEncodingJWK is an Azure Key Vault style JSON Web Key.
	KeyEncodingJWK KeyEncoding = "jwk"
	// KeyEncodingPEM is a PEM armored SPKI public key.
	KeyEncodingPEM KeyEncoding = "pem"
	// KeyEncodingDER is a bare SPKI DER public key.
	KeyEncodingDER KeyEncoding = "der"
	// KeyEncodingBase64Ed25519 is a standard base64 raw 32-byte ed25519 key.
	KeyEncodingBase64Ed25519 KeyEncoding = "base64-ed25519"
)

type SignatureEncoding string

const (
	// SignatureEncodingDER is an ASN.1 SEQUENCE{INTEGER r, INTEGER s}.
	SignatureEncodingDER SignatureEncoding = "der"
	// SignatureEncodingRawOrDER is either r||s or DER; the layout is detected.
	SignatureEncodingRawOrDER SignatureEncoding = "raw-or-der"
	// SignatureEncodingComposite is a colon delimited "<version>:<version>:<base64>" string.
	SignatureEncodingComposite SignatureEncoding = "composite"
	// SignatureEncodingRaw is an already fixed-width signature.
	SignatureEncodingRaw SignatureEncoding = "raw"
)

type NativeKey struct {
	Encoding KeyEncoding
	Data     []byte
}

type NativeSignature struct {
	Encoding SignatureEncoding
	Data     []byte
}

// BackendClient is a thin transport binding to one remote key-custody service.
// Implementations hold no business logic and never retry.
type BackendClient interface {
	Kind() BackendKind
	FetchPublicKey(ctx context.Context, keyID string) (NativeKey, error)
	Sign(ctx context.Context, keyID string, prepared []byte) (NativeSignature, error)
}

// Signer is the capability pair handed to the ledger transaction client.
type Signer interface {
	Handle() SigningKeyHandle
	PublicKey(ctx context.Context) (CanonicalPublicKey, error)
	Sign(ctx context.Context, payload []byte) (RawSignature, error)
}
