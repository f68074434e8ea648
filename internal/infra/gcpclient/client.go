package gcpclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/hedera-dev/hedera-hsm-signing/internal/config"
	"github.com/hedera-dev/hedera-hsm-signing/internal/infra/transport"
)

const (
	service         = "gcp cloud kms"
	defaultEndpoint = "https://cloudkms.googleapis.com"
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

type Client struct {
	endpoint   string
	token      string
	httpClient *http.Client
}

// PublicKey is the publicKey resource of a CryptoKeyVersion.
type PublicKey struct {
	PEM       string
	Algorithm string
}

func New(endpoint, token string) *Client {
	return &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		token:      token,
		httpClient: transport.NewHTTPClient(0),
	}
}

func NewFromConfig(cfg config.Config) (*Client, error) {
	token := cfg.GCPAccessToken
	if token == "" {
		return nil, errors.New("GCP_ACCESS_TOKEN is required")
	}
	endpoint := cfg.GCPKMSEndpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	client := New(endpoint, token)
	client.httpClient = transport.NewHTTPClient(cfg.BackendTimeout())
	return client, nil
}

// GetPublicKey fetches the PEM public key of a key version. keyName is the full
// resource name projects/.../cryptoKeys/.../cryptoKeyVersions/N.
func (c *Client) GetPublicKey(ctx context.Context, keyName string) (PublicKey, error) {
	if err := checkKeyName(keyName); err != nil {
		return PublicKey{}, err
	}
	body, err := c.do(ctx, http.MethodGet, "/v1/"+keyName+"/publicKey", nil)
	if err != nil {
		return PublicKey{}, err
	}
	var resp struct {
		PEM       string `json:"pem"`
		Algorithm string `json:"algorithm"`
		PEMCRC32C string `json:"pemCrc32c"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return PublicKey{}, transport.DecodeError(service, err)
	}
	if resp.PEM == "" {
		return PublicKey{}, transport.DecodeError(service, errors.New("public key pem missing"))
	}
	if err := checkCRC32C([]byte(resp.PEM), resp.PEMCRC32C); err != nil {
		return PublicKey{}, err
	}
	return PublicKey{PEM: resp.PEM, Algorithm: resp.Algorithm}, nil
}

// AsymmetricSign signs a 32-byte digest. KMS only checks the digest length, so
// the digest goes in the sha256 slot whatever hash produced it.
func (c *Client) AsymmetricSign(ctx context.Context, keyName string, digest []byte) ([]byte, error) {
	if err := checkKeyName(keyName); err != nil {
		return nil, err
	}
	reqBody := map[string]any{
		"digest": map[string]string{
			"sha256": base64.StdEncoding.EncodeToString(digest),
		},
		"digestCrc32c": strconv.FormatUint(uint64(crc32.Checksum(digest, castagnoli)), 10),
	}
	body, err := c.do(ctx, http.MethodPost, "/v1/"+keyName+":asymmetricSign", reqBody)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Signature            string `json:"signature"`
		SignatureCRC32C      string `json:"signatureCrc32c"`
		VerifiedDigestCRC32C bool   `json:"verifiedDigestCrc32c"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, transport.DecodeError(service, err)
	}
	if resp.Signature == "" {
		return nil, transport.DecodeError(service, errors.New("signature missing"))
	}
	raw, err := base64.StdEncoding.DecodeString(resp.Signature)
	if err != nil {
		return nil, transport.DecodeError(service, err)
	}
	if err := checkCRC32C(raw, resp.SignatureCRC32C); err != nil {
		return nil, err
	}
	return raw, nil
}

func checkKeyName(keyName string) error {
	if keyName == "" {
		return errors.New("key name is required")
	}
	if !strings.HasPrefix(keyName, "projects/") || !strings.Contains(keyName, "/cryptoKeyVersions/") {
		return fmt.Errorf("key name %q is not a crypto key version", keyName)
	}
	return nil
}

// checkCRC32C verifies the integrity checksum KMS attaches to responses. An
// absent checksum is accepted.
func checkCRC32C(data []byte, want string) error {
	if want == "" {
		return nil
	}
	expected, err := strconv.ParseUint(want, 10, 32)
	if err != nil {
		return transport.DecodeError(service, fmt.Errorf("crc32c %q: %w", want, err))
	}
	if got := crc32.Checksum(data, castagnoli); uint64(got) != expected {
		return fmt.Errorf("%w: crc32c mismatch", transport.ErrCorruptResponse)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	if c == nil {
		return nil, errors.New("gcp client is nil")
	}
	if c.endpoint == "" || c.token == "" {
		return nil, errors.New("gcp client missing configuration")
	}
	var reader io.Reader = http.NoBody
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transport.RequestError(service, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transport.RequestError(service, err)
	}
	if err := transport.CheckStatus(service, resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}
