package hsmvault

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hedera-dev/hedera-hsm-signing/internal/config"
	"github.com/hedera-dev/hedera-hsm-signing/internal/domain"
)

type fakeVault struct {
	key       []byte
	sig       []byte
	err       error
	algorithm string
	digest    []byte
}

func (f *fakeVault) GetKey(context.Context, string) ([]byte, error) {
	return f.key, f.err
}

func (f *fakeVault) Sign(_ context.Context, _ string, algorithm string, digest []byte) ([]byte, error) {
	f.algorithm = algorithm
	f.digest = digest
	return f.sig, f.err
}

func TestClient_TagsNativeEncodings(t *testing.T) {
	vault := &fakeVault{key: []byte(`{"kty":"EC-HSM"}`), sig: bytes.Repeat([]byte{1}, 64)}
	client := New(vault)
	assert.Equal(t, domain.BackendHSMVault, client.Kind())

	key, err := client.FetchPublicKey(context.Background(), "hedera-operator")
	require.NoError(t, err)
	assert.Equal(t, domain.KeyEncodingJWK, key.Encoding)

	digest := bytes.Repeat([]byte{2}, 32)
	sig, err := client.Sign(context.Background(), "hedera-operator", digest)
	require.NoError(t, err)
	assert.Equal(t, domain.SignatureEncodingRawOrDER, sig.Encoding)
	assert.Equal(t, "ES256K", vault.algorithm)
	assert.Equal(t, digest, vault.digest)
}

func TestClient_RejectsNonDigestInput(t *testing.T) {
	vault := &fakeVault{}
	_, err := New(vault).Sign(context.Background(), "hedera-operator", []byte("raw payload"))
	require.ErrorIs(t, err, domain.ErrUnsupportedKey)
	assert.Nil(t, vault.digest)
}

func TestClient_PropagatesTransportErrors(t *testing.T) {
	_, err := New(&fakeVault{err: domain.ErrBackendAuth}).FetchPublicKey(context.Background(), "k")
	require.ErrorIs(t, err, domain.ErrBackendAuth)
}

func TestNewFromConfig(t *testing.T) {
	_, err := NewFromConfig(config.Config{})
	require.Error(t, err)
	_, err = NewFromConfig(config.Config{AzureVaultURL: "https://v.example", AzureAccessToken: "t"})
	require.NoError(t, err)
}
