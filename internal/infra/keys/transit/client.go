package transit

import (
	"context"
	"fmt"
	"strconv"

	"github.com/hedera-dev/hedera-hsm-signing/internal/config"
	"github.com/hedera-dev/hedera-hsm-signing/internal/domain"
	"github.com/hedera-dev/hedera-hsm-signing/internal/infra/vaultclient"
)

const keyTypeEd25519 = "ed25519"

type engine interface {
	ReadKey(ctx context.Context, name string) (vaultclient.TransitKey, error)
	Sign(ctx context.Context, name string, input []byte, version int) (string, error)
}

// Client is the secret-transit variant. Transit hashes internally for ed25519,
// so Sign receives the payload itself.
type Client struct {
	engine  engine
	version int
}

// New pins the client to one key version so the public key and signatures
// always agree. version 0 follows the key's latest version.
func New(engine engine, version int) *Client {
	return &Client{engine: engine, version: version}
}

func NewFromConfig(cfg config.Config) (*Client, error) {
	version, err := vaultclient.ParseVersion(cfg.VaultTransitKeyVersion)
	if err != nil {
		return nil, err
	}
	engine, err := vaultclient.NewFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return New(engine, version), nil
}

func (c *Client) Kind() domain.BackendKind {
	return domain.BackendSecretTransit
}

func (c *Client) FetchPublicKey(ctx context.Context, keyID string) (domain.NativeKey, error) {
	key, err := c.engine.ReadKey(ctx, keyID)
	if err != nil {
		return domain.NativeKey{}, err
	}
	if key.Type != "" && key.Type != keyTypeEd25519 {
		return domain.NativeKey{}, fmt.Errorf("%w: transit key type %s", domain.ErrKeyFormat, key.Type)
	}
	version := c.version
	if version == 0 {
		version = key.LatestVersion
	}
	pub, ok := key.PublicKeys[strconv.Itoa(version)]
	if !ok {
		return domain.NativeKey{}, fmt.Errorf("%w: transit key %q has no version %d", domain.ErrBackendRejected, keyID, version)
	}
	return domain.NativeKey{Encoding: domain.KeyEncodingBase64Ed25519, Data: []byte(pub)}, nil
}

func (c *Client) Sign(ctx context.Context, keyID string, payload []byte) (domain.NativeSignature, error) {
	sig, err := c.engine.Sign(ctx, keyID, payload, c.version)
	if err != nil {
		return domain.NativeSignature{}, err
	}
	return domain.NativeSignature{Encoding: domain.SignatureEncodingComposite, Data: []byte(sig)}, nil
}
