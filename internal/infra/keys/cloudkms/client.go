package cloudkms

import (
	"context"
	"fmt"

	"github.com/hedera-dev/hedera-hsm-signing/internal/config"
	"github.com/hedera-dev/hedera-hsm-signing/internal/domain"
	"github.com/hedera-dev/hedera-hsm-signing/internal/infra/awsclient"
	"github.com/hedera-dev/hedera-hsm-signing/internal/infra/gcpclient"
)

const (
	ProviderGCP = "gcp"
	ProviderAWS = "aws"

	digestSize = 32
)

type provider interface {
	fetchPublicKey(ctx context.Context, keyID string) (domain.NativeKey, error)
	sign(ctx context.Context, keyID string, digest []byte) ([]byte, error)
}

// Client is the cloud KMS variant. Both providers sign a 32-byte digest and
// return DER; they differ in how the public key travels.
type Client struct {
	provider provider
}

func NewFromConfig(cfg config.Config) (*Client, error) {
	switch cfg.CloudKMSProvider {
	case ProviderGCP, "":
		client, err := gcpclient.NewFromConfig(cfg)
		if err != nil {
			return nil, err
		}
		return NewGCP(client), nil
	case ProviderAWS:
		client, err := awsclient.NewFromConfig(cfg)
		if err != nil {
			return nil, err
		}
		return NewAWS(client), nil
	default:
		return nil, fmt.Errorf("unsupported CLOUD_KMS_PROVIDER %q", cfg.CloudKMSProvider)
	}
}

func (c *Client) Kind() domain.BackendKind {
	return domain.BackendCloudKMS
}

func (c *Client) FetchPublicKey(ctx context.Context, keyID string) (domain.NativeKey, error) {
	return c.provider.fetchPublicKey(ctx, keyID)
}

func (c *Client) Sign(ctx context.Context, keyID string, digest []byte) (domain.NativeSignature, error) {
	if len(digest) != digestSize {
		return domain.NativeSignature{}, fmt.Errorf("%w: kms signs %d-byte digests, got %d", domain.ErrUnsupportedKey, digestSize, len(digest))
	}
	der, err := c.provider.sign(ctx, keyID, digest)
	if err != nil {
		return domain.NativeSignature{}, err
	}
	return domain.NativeSignature{Encoding: domain.SignatureEncodingDER, Data: der}, nil
}
