package crypto

import (
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/hedera-dev/hedera-hsm-signing/internal/domain"
)

// DigestPolicy decides who owns the hash step. The HSM vault and the cloud KMS
// sign a caller-supplied digest, which must be Keccak-256 to match the ledger's
// ECDSA verifier. The transit engine hashes internally for ed25519.
type DigestPolicy struct{}

func NewDigestPolicy() DigestPolicy {
	return DigestPolicy{}
}

// OwnsHash reports whether the caller must hash the payload before transmission.
func (DigestPolicy) OwnsHash(backend domain.BackendKind, curve domain.Curve) bool {
	return curve == domain.CurveSecp256k1 && (backend == domain.BackendHSMVault || backend == domain.BackendCloudKMS)
}

func (p DigestPolicy) Prepare(payload []byte, backend domain.BackendKind, curve domain.Curve) ([]byte, error) {
	if !domain.Supported(backend, curve) {
		return nil, fmt.Errorf("%w: %s does not serve %s keys", domain.ErrUnsupportedKey, backend, curve)
	}
	if p.OwnsHash(backend, curve) {
		return ethcrypto.Keccak256(payload), nil
	}
	return append([]byte(nil), payload...), nil
}
