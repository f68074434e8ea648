package usecase

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hedera-dev/hedera-hsm-signing/internal/domain"
	"github.com/hedera-dev/hedera-hsm-signing/internal/infra/crypto"
)

type fakeBackend struct {
	kind     domain.BackendKind
	key      domain.NativeKey
	fetchErr atomic.Pointer[error]
	gate     chan struct{}
	signFn   func(prepared []byte) (domain.NativeSignature, error)

	fetches  atomic.Int32
	signs    atomic.Int32
	prepared [][]byte
	mu       sync.Mutex
}

func (f *fakeBackend) Kind() domain.BackendKind {
	return f.kind
}

func (f *fakeBackend) FetchPublicKey(ctx context.Context, _ string) (domain.NativeKey, error) {
	f.fetches.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	if errp := f.fetchErr.Load(); errp != nil {
		return domain.NativeKey{}, *errp
	}
	return f.key, nil
}

func (f *fakeBackend) Sign(_ context.Context, _ string, prepared []byte) (domain.NativeSignature, error) {
	f.signs.Add(1)
	f.mu.Lock()
	f.prepared = append(f.prepared, prepared)
	f.mu.Unlock()
	return f.signFn(prepared)
}

type recordedOp struct {
	op  string
	err error
}

type fakeMetrics struct {
	mu  sync.Mutex
	ops []recordedOp
}

func (m *fakeMetrics) Observe(_ domain.BackendKind, op string, _ time.Time, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, recordedOp{op: op, err: err})
}

type secp256k1Backend struct {
	*fakeBackend
	priv *secp256k1.PrivateKey
}

func newSecp256k1Backend(t *testing.T, kind domain.BackendKind) secp256k1Backend {
	t.Helper()
	priv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	raw := priv.PubKey().SerializeUncompressed()
	jwk := fmt.Sprintf(`{"kty":"EC-HSM","crv":"P-256K","x":%q,"y":%q}`,
		base64.RawURLEncoding.EncodeToString(raw[1:33]),
		base64.RawURLEncoding.EncodeToString(raw[33:]),
	)
	backend := &fakeBackend{
		kind: kind,
		key:  domain.NativeKey{Encoding: domain.KeyEncodingJWK, Data: []byte(jwk)},
		signFn: func(prepared []byte) (domain.NativeSignature, error) {
			return domain.NativeSignature{Encoding: domain.SignatureEncodingDER, Data: ecdsa.Sign(priv, prepared).Serialize()}, nil
		},
	}
	return secp256k1Backend{fakeBackend: backend, priv: priv}
}

func newAdapter(t *testing.T, backend domain.BackendClient, curve domain.Curve, opts ...AdapterOption) *SigningAdapter {
	t.Helper()
	handle, err := domain.NewSigningKeyHandle(backend.Kind(), "hedera-operator", curve)
	require.NoError(t, err)
	adapter, err := NewSigningAdapter(handle, backend, crypto.NewDigestPolicy(), crypto.NewKeyMaterialCodec(), crypto.NewSignatureCodec(0), opts...)
	require.NoError(t, err)
	return adapter
}

func TestSigningAdapter_PublicKeyFetchedOnce(t *testing.T) {
	backend := newSecp256k1Backend(t, domain.BackendHSMVault)
	backend.gate = make(chan struct{})
	adapter := newAdapter(t, backend, domain.CurveSecp256k1)

	const callers = 32
	var wg sync.WaitGroup
	keys := make([]domain.CanonicalPublicKey, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			keys[i], errs[i] = adapter.PublicKey(context.Background())
		}(i)
	}
	close(backend.gate)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, keys[0].DER, keys[i].DER)
	}
	_, err := adapter.PublicKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), backend.fetches.Load())
}

func TestSigningAdapter_FailedFetchIsNotCached(t *testing.T) {
	backend := newSecp256k1Backend(t, domain.BackendHSMVault)
	unavailable := fmt.Errorf("%w: dial tcp: connection refused", domain.ErrBackendUnavailable)
	backend.fetchErr.Store(&unavailable)
	metrics := &fakeMetrics{}
	adapter := newAdapter(t, backend, domain.CurveSecp256k1, WithMetrics(metrics))

	_, err := adapter.PublicKey(context.Background())
	require.ErrorIs(t, err, domain.ErrBackendUnavailable)
	var opErr *domain.OpError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, domain.OpFetchPublicKey, opErr.Op)
	assert.Equal(t, domain.BackendHSMVault, opErr.Backend)
	assert.Equal(t, "hedera-operator", opErr.KeyID)

	backend.fetchErr.Store(nil)
	key, err := adapter.PublicKey(context.Background())
	require.NoError(t, err)
	assert.False(t, key.IsZero())
	assert.Equal(t, int32(2), backend.fetches.Load())
	require.Len(t, metrics.ops, 2)
	assert.Error(t, metrics.ops[0].err)
	assert.NoError(t, metrics.ops[1].err)
}

func TestSigningAdapter_SignSecp256k1(t *testing.T) {
	for _, kind := range []domain.BackendKind{domain.BackendHSMVault, domain.BackendCloudKMS} {
		t.Run(string(kind), func(t *testing.T) {
			backend := newSecp256k1Backend(t, kind)
			adapter := newAdapter(t, backend, domain.CurveSecp256k1)
			payload := []byte("CryptoTransfer 0.0.1001 -> 0.0.1002")

			sig, err := adapter.Sign(context.Background(), payload)
			require.NoError(t, err)
			require.Len(t, sig, domain.SignatureSize)
			require.Len(t, backend.prepared, 1)
			assert.Equal(t, ethcrypto.Keccak256(payload), backend.prepared[0])

			pub, err := adapter.PublicKey(context.Background())
			require.NoError(t, err)
			verifier := crypto.Verifier{Digest: crypto.NewDigestPolicy()}
			require.NoError(t, verifier.Verify(pub, kind, payload, sig))
			assert.Equal(t, int32(1), backend.fetches.Load(), "sign resolves the key through the memo")
		})
	}
}

func TestSigningAdapter_SignTransitEd25519(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	backend := &fakeBackend{
		kind: domain.BackendSecretTransit,
		key:  domain.NativeKey{Encoding: domain.KeyEncodingBase64Ed25519, Data: []byte(base64.StdEncoding.EncodeToString(pub))},
		signFn: func(prepared []byte) (domain.NativeSignature, error) {
			blob := ed25519.Sign(priv, prepared)
			return domain.NativeSignature{Encoding: domain.SignatureEncodingComposite, Data: []byte("vault:v1:" + base64.StdEncoding.EncodeToString(blob))}, nil
		},
	}
	adapter := newAdapter(t, backend, domain.CurveEd25519)
	payload := []byte("ConsensusSubmitMessage")

	sig, err := adapter.Sign(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, payload, backend.prepared[0])
	assert.True(t, ed25519.Verify(pub, payload, sig))

	key, err := adapter.PublicKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte(pub), key.Export())
}

func TestSigningAdapter_SignErrorsAreWrapped(t *testing.T) {
	backend := newSecp256k1Backend(t, domain.BackendCloudKMS)
	backend.signFn = func([]byte) (domain.NativeSignature, error) {
		return domain.NativeSignature{Encoding: domain.SignatureEncodingDER, Data: []byte{0x30, 0x03, 0x02, 0x01, 0x01}}, nil
	}
	adapter := newAdapter(t, backend, domain.CurveSecp256k1)

	sig, err := adapter.Sign(context.Background(), []byte("payload"))
	require.ErrorIs(t, err, domain.ErrSignatureFormat)
	assert.Nil(t, sig)
	var opErr *domain.OpError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, domain.OpSign, opErr.Op)

	backend.signFn = func([]byte) (domain.NativeSignature, error) {
		return domain.NativeSignature{}, fmt.Errorf("%w: status 403", domain.ErrBackendAuth)
	}
	_, err = adapter.Sign(context.Background(), []byte("payload"))
	require.ErrorIs(t, err, domain.ErrBackendAuth)
	assert.False(t, domain.IsRetryable(err))
}

func TestSigningAdapter_FetchFailureStopsSign(t *testing.T) {
	backend := newSecp256k1Backend(t, domain.BackendHSMVault)
	auth := fmt.Errorf("%w: status 401", domain.ErrBackendAuth)
	backend.fetchErr.Store(&auth)
	adapter := newAdapter(t, backend, domain.CurveSecp256k1)

	_, err := adapter.Sign(context.Background(), []byte("payload"))
	require.ErrorIs(t, err, domain.ErrBackendAuth)
	assert.Equal(t, int32(0), backend.signs.Load())
}

func TestNewSigningAdapter_RejectsMismatchedBackend(t *testing.T) {
	backend := newSecp256k1Backend(t, domain.BackendCloudKMS)
	handle, err := domain.NewSigningKeyHandle(domain.BackendHSMVault, "k", domain.CurveSecp256k1)
	require.NoError(t, err)
	_, err = NewSigningAdapter(handle, backend, crypto.NewDigestPolicy(), crypto.NewKeyMaterialCodec(), crypto.NewSignatureCodec(0))
	require.ErrorIs(t, err, domain.ErrUnsupportedKey)

	_, err = NewSigningAdapter(handle, nil, crypto.NewDigestPolicy(), crypto.NewKeyMaterialCodec(), crypto.NewSignatureCodec(0))
	require.Error(t, err)
}
