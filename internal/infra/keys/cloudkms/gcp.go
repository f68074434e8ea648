package cloudkms

import (
	"context"
	"fmt"

	"github.com/hedera-dev/hedera-hsm-signing/internal/domain"
	"github.com/hedera-dev/hedera-hsm-signing/internal/infra/gcpclient"
)

const gcpAlgorithmSecp256k1 = "EC_SIGN_SECP256K1_SHA256"

type gcpKMS interface {
	GetPublicKey(ctx context.Context, keyName string) (gcpclient.PublicKey, error)
	AsymmetricSign(ctx context.Context, keyName string, digest []byte) ([]byte, error)
}

type gcpProvider struct {
	kms gcpKMS
}

func NewGCP(kms gcpKMS) *Client {
	return &Client{provider: gcpProvider{kms: kms}}
}

func (p gcpProvider) fetchPublicKey(ctx context.Context, keyID string) (domain.NativeKey, error) {
	pub, err := p.kms.GetPublicKey(ctx, keyID)
	if err != nil {
		return domain.NativeKey{}, err
	}
	if pub.Algorithm != "" && pub.Algorithm != gcpAlgorithmSecp256k1 {
		return domain.NativeKey{}, fmt.Errorf("%w: kms key algorithm %s", domain.ErrKeyFormat, pub.Algorithm)
	}
	return domain.NativeKey{Encoding: domain.KeyEncodingPEM, Data: []byte(pub.PEM)}, nil
}

func (p gcpProvider) sign(ctx context.Context, keyID string, digest []byte) ([]byte, error) {
	return p.kms.AsymmetricSign(ctx, keyID, digest)
}
