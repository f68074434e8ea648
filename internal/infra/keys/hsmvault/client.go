package hsmvault

import (
	"context"
	"fmt"

	"github.com/hedera-dev/hedera-hsm-signing/internal/config"
	"github.com/hedera-dev/hedera-hsm-signing/internal/domain"
	"github.com/hedera-dev/hedera-hsm-signing/internal/infra/azureclient"
)

const digestSize = 32

type keyVault interface {
	GetKey(ctx context.Context, keyID string) ([]byte, error)
	Sign(ctx context.Context, keyID, algorithm string, digest []byte) ([]byte, error)
}

// Client is the HSM-backed key vault variant. Keys are secp256k1 ("EC-HSM",
// "P-256K") and sign caller-supplied digests with ES256K.
type Client struct {
	vault keyVault
}

func New(vault keyVault) *Client {
	return &Client{vault: vault}
}

func NewFromConfig(cfg config.Config) (*Client, error) {
	vault, err := azureclient.NewFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return New(vault), nil
}

func (c *Client) Kind() domain.BackendKind {
	return domain.BackendHSMVault
}

func (c *Client) FetchPublicKey(ctx context.Context, keyID string) (domain.NativeKey, error) {
	jwk, err := c.vault.GetKey(ctx, keyID)
	if err != nil {
		return domain.NativeKey{}, err
	}
	return domain.NativeKey{Encoding: domain.KeyEncodingJWK, Data: jwk}, nil
}

// Sign returns whatever layout the vault produced; managed HSMs answer with raw
// r||s, some gateways with DER.
func (c *Client) Sign(ctx context.Context, keyID string, digest []byte) (domain.NativeSignature, error) {
	if len(digest) != digestSize {
		return domain.NativeSignature{}, fmt.Errorf("%w: ES256K signs %d-byte digests, got %d", domain.ErrUnsupportedKey, digestSize, len(digest))
	}
	sig, err := c.vault.Sign(ctx, keyID, azureclient.AlgorithmES256K, digest)
	if err != nil {
		return domain.NativeSignature{}, err
	}
	return domain.NativeSignature{Encoding: domain.SignatureEncodingRawOrDER, Data: sig}, nil
}
