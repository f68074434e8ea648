package vaultclient

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
	"strconv"
	"strings"

	"github.com/hedera-dev/hedera-hsm-signing/internal/config"
	"github.com/hedera-dev/hedera-hsm-signing/internal/infra/transport"
)

const (
	service      = "vault transit"
	defaultMount = "transit"
)

type Client struct {
	addr       string
	token      string
	mount      string
	httpClient *http.Client
}

// TransitKey is the public part of a transit key: one base64 public key per
// version, keyed by the version number as Vault renders it ("1", "2", ...).
type TransitKey struct {
	Name          string
	Type          string
	LatestVersion int
	PublicKeys    map[string]string
}

func New(addr, token, mount string) *Client {
	if mount == "" {
		mount = defaultMount
	}
	return &Client{
		addr:       strings.TrimRight(addr, "/"),
		token:      token,
		mount:      strings.Trim(mount, "/"),
		httpClient: transport.NewHTTPClient(0),
	}
}

func NewFromConfig(cfg config.Config) (*Client, error) {
	if cfg.VaultAddr == "" || cfg.VaultToken == "" {
		return nil, errors.New("VAULT_ADDR and VAULT_TOKEN are required")
	}
	client := New(cfg.VaultAddr, cfg.VaultToken, cfg.VaultTransitMount)
	client.httpClient = transport.NewHTTPClient(cfg.BackendTimeout())
	return client, nil
}

func (c *Client) ReadKey(ctx context.Context, name string) (TransitKey, error) {
	if name == "" {
		return TransitKey{}, errors.New("transit key name is required")
	}
	body, err := c.do(ctx, http.MethodGet, "keys/"+url.PathEscape(name), nil)
	if err != nil {
		return TransitKey{}, err
	}
	var envelope struct {
		Data struct {
			Name          string                     `json:"name"`
			Type          string                     `json:"type"`
			LatestVersion int                        `json:"latest_version"`
			Keys          map[string]json.RawMessage `json:"keys"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return TransitKey{}, transport.DecodeError(service, err)
	}
	key := TransitKey{
		Name:          envelope.Data.Name,
		Type:          envelope.Data.Type,
		LatestVersion: envelope.Data.LatestVersion,
		PublicKeys:    make(map[string]string, len(envelope.Data.Keys)),
	}
	for version, raw := range envelope.Data.Keys {
		// symmetric keys list creation timestamps instead of objects
		var entry struct {
			PublicKey string `json:"public_key"`
		}
		if err := json.Unmarshal(raw, &entry); err != nil || entry.PublicKey == "" {
			continue
		}
		key.PublicKeys[version] = entry.PublicKey
	}
	if len(key.PublicKeys) == 0 {
		return TransitKey{}, transport.DecodeError(service, fmt.Errorf("transit key %q has no public keys", name))
	}
	return key, nil
}

// Sign asks transit to sign input with the named key. version 0 signs with the
// latest version. The composite "vault:vN:<base64>" signature is returned as is.
func (c *Client) Sign(ctx context.Context, name string, input []byte, version int) (string, error) {
	if name == "" {
		return "", errors.New("transit key name is required")
	}
	payload := map[string]any{
		"input": base64.StdEncoding.EncodeToString(input),
	}
	if version > 0 {
		payload["key_version"] = version
	}
	body, err := c.do(ctx, http.MethodPost, "sign/"+url.PathEscape(name), payload)
	if err != nil {
		return "", err
	}
	var envelope struct {
		Data struct {
			Signature  string `json:"signature"`
			KeyVersion int    `json:"key_version"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", transport.DecodeError(service, err)
	}
	if envelope.Data.Signature == "" {
		return "", transport.DecodeError(service, errors.New("signature missing"))
	}
	return envelope.Data.Signature, nil
}

// ParseVersion turns a configured key version into the number transit expects.
// An empty value or "latest" yields 0.
func ParseVersion(value string) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" || value == "latest" {
		return 0, nil
	}
	version, err := strconv.Atoi(value)
	if err != nil || version <= 0 {
		return 0, fmt.Errorf("invalid transit key version %q", value)
	}
	return version, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	if c == nil {
		return nil, errors.New("vault client is nil")
	}
	if c.addr == "" || c.token == "" {
		return nil, errors.New("vault addr or token missing")
	}
	var reader io.Reader = http.NoBody
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.addr+"/v1/"+c.mount+"/"+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Vault-Token", c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transport.RequestError(service, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transport.RequestError(service, err)
	}
	if err := transport.CheckStatus(service, resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}
