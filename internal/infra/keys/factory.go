package keys

import (
	"fmt"

	"github.com/hedera-dev/hedera-hsm-signing/internal/config"
	"github.com/hedera-dev/hedera-hsm-signing/internal/domain"
	"github.com/hedera-dev/hedera-hsm-signing/internal/infra/keys/cloudkms"
	"github.com/hedera-dev/hedera-hsm-signing/internal/infra/keys/hsmvault"
	"github.com/hedera-dev/hedera-hsm-signing/internal/infra/keys/transit"
)

// NewBackendClient builds the backend variant for kind with credentials from cfg.
func NewBackendClient(cfg config.Config, kind domain.BackendKind) (domain.BackendClient, error) {
	var (
		client domain.BackendClient
		err    error
	)
	switch kind {
	case domain.BackendHSMVault:
		client, err = hsmvault.NewFromConfig(cfg)
	case domain.BackendCloudKMS:
		client, err = cloudkms.NewFromConfig(cfg)
	case domain.BackendSecretTransit:
		client, err = transit.NewFromConfig(cfg)
	default:
		return nil, fmt.Errorf("%w: backend %q", domain.ErrUnsupportedKey, kind)
	}
	if err != nil {
		return nil, fmt.Errorf("%s backend: %w", kind, err)
	}
	return client, nil
}
