package azureclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/hedera-dev/hedera-hsm-signing/internal/config"
	"github.com/hedera-dev/hedera-hsm-signing/internal/infra/transport"
)

const (
	service           = "azure key vault"
	defaultAPIVersion = "7.4"

	// AlgorithmES256K is Key Vault's name for ECDSA over secp256k1 on a
	// caller-supplied 32-byte digest.
	AlgorithmES256K = "ES256K"
)

type Client struct {
	vaultURL   string
	token      string
	apiVersion string
	httpClient *http.Client
}

func New(vaultURL, token, apiVersion string) *Client {
	if apiVersion == "" {
		apiVersion = defaultAPIVersion
	}
	return &Client{
		vaultURL:   strings.TrimRight(vaultURL, "/"),
		token:      token,
		apiVersion: apiVersion,
		httpClient: transport.NewHTTPClient(0),
	}
}

func NewFromConfig(cfg config.Config) (*Client, error) {
	if cfg.AzureVaultURL == "" || cfg.AzureAccessToken == "" {
		return nil, errors.New("AZURE_VAULT_URL and AZURE_ACCESS_TOKEN are required")
	}
	client := New(cfg.AzureVaultURL, cfg.AzureAccessToken, cfg.AzureAPIVersion)
	client.httpClient = transport.NewHTTPClient(cfg.BackendTimeout())
	return client, nil
}

// GetKey returns the JSON web key stored under keyID, exactly as the vault
// serializes it.
func (c *Client) GetKey(ctx context.Context, keyID string) ([]byte, error) {
	path, err := keyPath(keyID)
	if err != nil {
		return nil, err
	}
	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Key json.RawMessage `json:"key"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, transport.DecodeError(service, err)
	}
	if len(resp.Key) == 0 || string(resp.Key) == "null" {
		return nil, transport.DecodeError(service, errors.New("key bundle missing key"))
	}
	return resp.Key, nil
}

// Sign signs a precomputed digest and returns the signature bytes the vault
// produced.
func (c *Client) Sign(ctx context.Context, keyID, algorithm string, digest []byte) ([]byte, error) {
	path, err := keyPath(keyID)
	if err != nil {
		return nil, err
	}
	body, err := c.do(ctx, http.MethodPost, path+"/sign", map[string]string{
		"alg":   algorithm,
		"value": base64.RawURLEncoding.EncodeToString(digest),
	})
	if err != nil {
		return nil, err
	}
	var resp struct {
		Kid   string `json:"kid"`
		Value string `json:"value"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, transport.DecodeError(service, err)
	}
	if resp.Value == "" {
		return nil, transport.DecodeError(service, errors.New("sign result missing value"))
	}
	sig, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(resp.Value, "="))
	if err != nil {
		return nil, transport.DecodeError(service, err)
	}
	return sig, nil
}

// keyPath accepts "name", "name/version" or a full key identifier URL and
// returns "/keys/name[/version]".
func keyPath(keyID string) (string, error) {
	keyID = strings.TrimSpace(keyID)
	if keyID == "" {
		return "", errors.New("key id is required")
	}
	if strings.Contains(keyID, "://") {
		parsed, err := url.Parse(keyID)
		if err != nil {
			return "", fmt.Errorf("parse key id: %w", err)
		}
		keyID = strings.TrimPrefix(parsed.Path, "/keys/")
	}
	parts := strings.Split(strings.Trim(keyID, "/"), "/")
	if len(parts) > 2 || parts[0] == "" {
		return "", fmt.Errorf("invalid key id %q", keyID)
	}
	escaped := make([]string, 0, len(parts))
	for _, part := range parts {
		escaped = append(escaped, url.PathEscape(part))
	}
	return "/keys/" + strings.Join(escaped, "/"), nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	if c == nil {
		return nil, errors.New("azure client is nil")
	}
	if c.vaultURL == "" || c.token == "" {
		return nil, errors.New("azure client missing configuration")
	}
	var reader io.Reader = http.NoBody
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.vaultURL+path+"?api-version="+url.QueryEscape(c.apiVersion), reader)
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
