package awsclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hedera-dev/hedera-hsm-signing/internal/config"
	"github.com/hedera-dev/hedera-hsm-signing/internal/infra/transport"
)

const (
	service         = "aws kms"
	awsServiceKMS   = "kms"
	awsTargetPrefix = "TrentService."

	KeySpecSecp256k1      = "ECC_SECG_P256K1"
	SigningAlgorithmECDSA = "ECDSA_SHA_256"
	messageTypeDigest     = "DIGEST"
	contentTypeAmzJSON11  = "application/x-amz-json-1.1"
	amzDateFormat         = "20060102T150405Z"
)

type Client struct {
	endpoint     string
	region       string
	accessKey    string
	secretKey    string
	sessionToken string
	httpClient   *http.Client
	clock        func() time.Time
}

// PublicKey is the GetPublicKey result: DER SubjectPublicKeyInfo plus the key
// spec KMS reports for it.
type PublicKey struct {
	DER     []byte
	KeySpec string
}

func New(endpoint, region, accessKey, secretKey, sessionToken string) *Client {
	return &Client{
		endpoint:     strings.TrimRight(endpoint, "/"),
		region:       region,
		accessKey:    accessKey,
		secretKey:    secretKey,
		sessionToken: sessionToken,
		httpClient:   transport.NewHTTPClient(0),
		clock:        time.Now,
	}
}

func NewFromConfig(cfg config.Config) (*Client, error) {
	region := cfg.AWSRegion
	accessKey := cfg.AWSAccessKeyID
	secretKey := cfg.AWSSecretAccessKey
	if region == "" || accessKey == "" || secretKey == "" {
		return nil, errors.New("AWS_REGION, AWS_ACCESS_KEY_ID, and AWS_SECRET_ACCESS_KEY are required")
	}
	endpoint := cfg.AWSKMSEndpoint
	if endpoint == "" {
		endpoint = "https://kms." + region + ".amazonaws.com"
	}
	client := New(endpoint, region, accessKey, secretKey, cfg.AWSSessionToken)
	client.httpClient = transport.NewHTTPClient(cfg.BackendTimeout())
	return client, nil
}

func (c *Client) WithClock(clock func() time.Time) *Client {
	if c == nil {
		return nil
	}
	c.clock = clock
	return c
}

func (c *Client) GetPublicKey(ctx context.Context, keyID string) (PublicKey, error) {
	if keyID == "" {
		return PublicKey{}, errors.New("key id is required")
	}
	body, err := c.do(ctx, "GetPublicKey", map[string]string{"KeyId": keyID})
	if err != nil {
		return PublicKey{}, err
	}
	var resp struct {
		KeyID     string `json:"KeyId"`
		KeySpec   string `json:"KeySpec"`
		KeyUsage  string `json:"KeyUsage"`
		PublicKey string `json:"PublicKey"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return PublicKey{}, transport.DecodeError(service, err)
	}
	if resp.PublicKey == "" {
		return PublicKey{}, transport.DecodeError(service, errors.New("public key missing"))
	}
	if resp.KeyUsage != "" && resp.KeyUsage != "SIGN_VERIFY" {
		return PublicKey{}, transport.DecodeError(service, fmt.Errorf("key usage %s cannot sign", resp.KeyUsage))
	}
	der, err := base64.StdEncoding.DecodeString(resp.PublicKey)
	if err != nil {
		return PublicKey{}, transport.DecodeError(service, err)
	}
	return PublicKey{DER: der, KeySpec: resp.KeySpec}, nil
}

// Sign signs a precomputed 32-byte digest with ECDSA_SHA_256. KMS does not
// rehash DIGEST messages, so any 32-byte digest is signed as given.
func (c *Client) Sign(ctx context.Context, keyID string, digest []byte) ([]byte, error) {
	if keyID == "" {
		return nil, errors.New("key id is required")
	}
	body, err := c.do(ctx, "Sign", map[string]string{
		"KeyId":            keyID,
		"Message":          base64.StdEncoding.EncodeToString(digest),
		"MessageType":      messageTypeDigest,
		"SigningAlgorithm": SigningAlgorithmECDSA,
	})
	if err != nil {
		return nil, err
	}
	var resp struct {
		Signature string `json:"Signature"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, transport.DecodeError(service, err)
	}
	if resp.Signature == "" {
		return nil, transport.DecodeError(service, errors.New("signature missing"))
	}
	sig, err := base64.StdEncoding.DecodeString(resp.Signature)
	if err != nil {
		return nil, transport.DecodeError(service, err)
	}
	return sig, nil
}

func (c *Client) do(ctx context.Context, target string, payload any) ([]byte, error) {
	if c == nil {
		return nil, errors.New("aws client is nil")
	}
	if c.endpoint == "" || c.region == "" || c.accessKey == "" || c.secretKey == "" {
		return nil, errors.New("aws client missing configuration")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentTypeAmzJSON11)
	req.Header.Set("X-Amz-Target", awsTargetPrefix+target)

	if c.clock == nil {
		c.clock = time.Now
	}
	req.Header.Set("X-Amz-Date", c.clock().UTC().Format(amzDateFormat))
	if c.sessionToken != "" {
		req.Header.Set("X-Amz-Security-Token", c.sessionToken)
	}

	creds := credentials{region: c.region, accessKey: c.accessKey, secretKey: c.secretKey, sessionToken: c.sessionToken}
	if err := signRequest(req, body, awsServiceKMS, creds); err != nil {
		return nil, err
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
