package cloudkms

import (
	"context"
	"fmt"

	"github.com/hedera-dev/hedera-hsm-signing/internal/domain"
	"github.com/hedera-dev/hedera-hsm-signing/internal/infra/awsclient"
)

type awsKMS interface {
	GetPublicKey(ctx context.Context, keyID string) (awsclient.PublicKey, error)
	Sign(ctx context.Context, keyID string, digest []byte) ([]byte, error)
}

type awsProvider struct {
	kms awsKMS
}

func NewAWS(kms awsKMS) *Client {
	return &Client{provider: awsProvider{kms: kms}}
}

func (p awsProvider) fetchPublicKey(ctx context.Context, keyID string) (domain.NativeKey, error) {
	pub, err := p.kms.GetPublicKey(ctx, keyID)
	if err != nil {
		return domain.NativeKey{}, err
	}
	if pub.KeySpec != "" && pub.KeySpec != awsclient.KeySpecSecp256k1 {
		return domain.NativeKey{}, fmt.Errorf("%w: kms key spec %s", domain.ErrKeyFormat, pub.KeySpec)
	}
	return domain.NativeKey{Encoding: domain.KeyEncodingDER, Data: pub.DER}, nil
}

func (p awsProvider) sign(ctx context.Context, keyID string, digest []byte) ([]byte, error) {
	return p.kms.Sign(ctx, keyID, digest)
}
