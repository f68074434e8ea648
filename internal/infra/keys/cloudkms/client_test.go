package cloudkms

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hedera-dev/hedera-hsm-signing/internal/config"
	"github.com/hedera-dev/hedera-hsm-signing/internal/domain"
	"github.com/hedera-dev/hedera-hsm-signing/internal/infra/awsclient"
	"github.com/hedera-dev/hedera-hsm-signing/internal/infra/gcpclient"
)

type fakeGCP struct {
	pub    gcpclient.PublicKey
	digest []byte
}

func (f *fakeGCP) GetPublicKey(context.Context, string) (gcpclient.PublicKey, error) {
	return f.pub, nil
}

func (f *fakeGCP) AsymmetricSign(_ context.Context, _ string, digest []byte) ([]byte, error) {
	f.digest = digest
	return []byte{0x30, 0x00}, nil
}

type fakeAWS struct {
	pub awsclient.PublicKey
}

func (f *fakeAWS) GetPublicKey(context.Context, string) (awsclient.PublicKey, error) {
	return f.pub, nil
}

func (f *fakeAWS) Sign(context.Context, string, []byte) ([]byte, error) {
	return []byte{0x30, 0x00}, nil
}

func TestClient_GCPReturnsPEMAndDER(t *testing.T) {
	kms := &fakeGCP{pub: gcpclient.PublicKey{PEM: "-----BEGIN PUBLIC KEY-----", Algorithm: "EC_SIGN_SECP256K1_SHA256"}}
	client := NewGCP(kms)
	assert.Equal(t, domain.BackendCloudKMS, client.Kind())

	key, err := client.FetchPublicKey(context.Background(), "projects/p/locations/l/keyRings/r/cryptoKeys/k/cryptoKeyVersions/1")
	require.NoError(t, err)
	assert.Equal(t, domain.KeyEncodingPEM, key.Encoding)

	digest := bytes.Repeat([]byte{9}, 32)
	sig, err := client.Sign(context.Background(), "projects/p/locations/l/keyRings/r/cryptoKeys/k/cryptoKeyVersions/1", digest)
	require.NoError(t, err)
	assert.Equal(t, domain.SignatureEncodingDER, sig.Encoding)
	assert.Equal(t, digest, kms.digest)
}

func TestClient_GCPRejectsOtherAlgorithms(t *testing.T) {
	client := NewGCP(&fakeGCP{pub: gcpclient.PublicKey{PEM: "x", Algorithm: "EC_SIGN_P256_SHA256"}})
	_, err := client.FetchPublicKey(context.Background(), "k")
	require.ErrorIs(t, err, domain.ErrKeyFormat)
}

func TestClient_AWSReturnsDER(t *testing.T) {
	client := NewAWS(&fakeAWS{pub: awsclient.PublicKey{DER: []byte{0x30}, KeySpec: awsclient.KeySpecSecp256k1}})
	key, err := client.FetchPublicKey(context.Background(), "alias/hedera")
	require.NoError(t, err)
	assert.Equal(t, domain.KeyEncodingDER, key.Encoding)

	_, err = NewAWS(&fakeAWS{pub: awsclient.PublicKey{DER: []byte{0x30}, KeySpec: "ECC_NIST_P256"}}).FetchPublicKey(context.Background(), "alias/hedera")
	require.ErrorIs(t, err, domain.ErrKeyFormat)

	_, err = client.Sign(context.Background(), "alias/hedera", []byte("short"))
	require.ErrorIs(t, err, domain.ErrUnsupportedKey)
}

func TestNewFromConfig_SelectsProvider(t *testing.T) {
	client, err := NewFromConfig(config.Config{CloudKMSProvider: "gcp", GCPAccessToken: "t"})
	require.NoError(t, err)
	assert.IsType(t, gcpProvider{}, client.provider)

	client, err = NewFromConfig(config.Config{CloudKMSProvider: "aws", AWSRegion: "us-east-1", AWSAccessKeyID: "a", AWSSecretAccessKey: "s"})
	require.NoError(t, err)
	assert.IsType(t, awsProvider{}, client.provider)

	_, err = NewFromConfig(config.Config{CloudKMSProvider: "azure"})
	require.Error(t, err)
}
