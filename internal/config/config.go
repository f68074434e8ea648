package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/hedera-dev/hedera-hsm-signing/internal/domain"
)

type Config struct {
	HTTPAddr    string
	PostgresDSN string
	LogLevel    string
	LogFormat   string
	LogFile     string

	SignerBackend    string
	SignerKeyID      string
	SignerCurve      string
	SignerAPIKey     string
	SignPolicyPath   string
	CloudKMSProvider string

	AzureVaultURL    string
	AzureAccessToken string
	AzureAPIVersion  string

	GCPKMSEndpoint string
	GCPAccessToken string

	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AWSSessionToken    string
	AWSKMSEndpoint     string

	VaultAddr              string
	VaultToken             string
	VaultTransitMount      string
	VaultTransitKeyVersion string

	HSMRawSignatureWidth  int
	BackendTimeoutSeconds int
	RetryAttempts         int
	RetryBaseMS           int
	RetryMaxMS            int

	RateLimitRequests      int
	RateLimitWindowSeconds int
	RateLimitFailClosed    bool
	RateLimitMaxKeys       int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

var defaults = map[string]any{
	"HTTP_ADDR":                 ":8080",
	"LOG_LEVEL":                 "info",
	"LOG_FORMAT":                "json",
	"CLOUD_KMS_PROVIDER":        "gcp",
	"AZURE_API_VERSION":         "7.4",
	"GCP_KMS_ENDPOINT":          "https://cloudkms.googleapis.com",
	"VAULT_TRANSIT_MOUNT":       "transit",
	"VAULT_TRANSIT_KEY_VERSION": "1",
	"HSM_RAW_SIGNATURE_WIDTH":   domain.SignatureSize,
	"BACKEND_TIMEOUT_SECONDS":   10,
	"RETRY_ATTEMPTS":            3,
	"RETRY_BASE_MS":             200,
	"RETRY_MAX_MS":              2000,
	"RATE_LIMIT_REQUESTS":       0,
	"RATE_LIMIT_WINDOW_SECONDS": 60,
	"RATE_LIMIT_MAX_KEYS":       10000,
}

// FromEnv reads configuration from the environment only.
func FromEnv() Config {
	return fromViper(newViper())
}

// Load layers the environment over an optional config file (yaml, toml or json,
// keys spelled like the environment variables).
func Load(file string) (Config, error) {
	v := newViper()
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", file, err)
		}
	}
	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()
	return v
}

func fromViper(v *viper.Viper) Config {
	return Config{
		HTTPAddr:               v.GetString("HTTP_ADDR"),
		PostgresDSN:            v.GetString("POSTGRES_DSN"),
		LogLevel:               v.GetString("LOG_LEVEL"),
		LogFormat:              v.GetString("LOG_FORMAT"),
		LogFile:                v.GetString("LOG_FILE"),
		SignerBackend:          v.GetString("SIGNER_BACKEND"),
		SignerKeyID:            v.GetString("SIGNER_KEY_ID"),
		SignerCurve:            v.GetString("SIGNER_CURVE"),
		SignerAPIKey:           v.GetString("SIGNER_API_KEY"),
		SignPolicyPath:         v.GetString("SIGN_POLICY_PATH"),
		CloudKMSProvider:       strings.ToLower(v.GetString("CLOUD_KMS_PROVIDER")),
		AzureVaultURL:          v.GetString("AZURE_VAULT_URL"),
		AzureAccessToken:       v.GetString("AZURE_ACCESS_TOKEN"),
		AzureAPIVersion:        v.GetString("AZURE_API_VERSION"),
		GCPKMSEndpoint:         v.GetString("GCP_KMS_ENDPOINT"),
		GCPAccessToken:         v.GetString("GCP_ACCESS_TOKEN"),
		AWSRegion:              v.GetString("AWS_REGION"),
		AWSAccessKeyID:         v.GetString("AWS_ACCESS_KEY_ID"),
		AWSSecretAccessKey:     v.GetString("AWS_SECRET_ACCESS_KEY"),
		AWSSessionToken:        v.GetString("AWS_SESSION_TOKEN"),
		AWSKMSEndpoint:         v.GetString("AWS_KMS_ENDPOINT"),
		VaultAddr:              v.GetString("VAULT_ADDR"),
		VaultToken:             v.GetString("VAULT_TOKEN"),
		VaultTransitMount:      v.GetString("VAULT_TRANSIT_MOUNT"),
		VaultTransitKeyVersion: v.GetString("VAULT_TRANSIT_KEY_VERSION"),
		HSMRawSignatureWidth:   positiveInt(v, "HSM_RAW_SIGNATURE_WIDTH"),
		BackendTimeoutSeconds:  positiveInt(v, "BACKEND_TIMEOUT_SECONDS"),
		RetryAttempts:          positiveInt(v, "RETRY_ATTEMPTS"),
		RetryBaseMS:            positiveInt(v, "RETRY_BASE_MS"),
		RetryMaxMS:             positiveInt(v, "RETRY_MAX_MS"),
		RateLimitRequests:      v.GetInt("RATE_LIMIT_REQUESTS"),
		RateLimitWindowSeconds: positiveInt(v, "RATE_LIMIT_WINDOW_SECONDS"),
		RateLimitFailClosed:    v.GetBool("RATE_LIMIT_FAIL_CLOSED"),
		RateLimitMaxKeys:       positiveInt(v, "RATE_LIMIT_MAX_KEYS"),
		RedisAddr:              v.GetString("REDIS_ADDR"),
		RedisPassword:          v.GetString("REDIS_PASSWORD"),
		RedisDB:                v.GetInt("REDIS_DB"),
	}
}

// positiveInt falls back to the registered default when the value is missing,
// malformed or not positive.
func positiveInt(v *viper.Viper, key string) int {
	if parsed := v.GetInt(key); parsed > 0 {
		return parsed
	}
	def, _ := defaults[key].(int)
	return def
}

// Handle builds the key handle the process signs with. The curve defaults to
// the one the backend is deployed with.
func (c Config) Handle() (domain.SigningKeyHandle, error) {
	backend, err := domain.ParseBackendKind(c.SignerBackend)
	if err != nil {
		return domain.SigningKeyHandle{}, err
	}
	curve := domain.DefaultCurve(backend)
	if c.SignerCurve != "" {
		curve, err = domain.ParseCurve(c.SignerCurve)
		if err != nil {
			return domain.SigningKeyHandle{}, err
		}
	}
	return domain.NewSigningKeyHandle(backend, c.SignerKeyID, curve)
}

// Validate rejects settings the signer cannot honour. Raw HSM signatures are
// always r||s at the ledger width.
func (c Config) Validate() error {
	if c.HSMRawSignatureWidth != domain.SignatureSize {
		return fmt.Errorf("HSM_RAW_SIGNATURE_WIDTH must be %d, got %d", domain.SignatureSize, c.HSMRawSignatureWidth)
	}
	return nil
}

func (c Config) BackendTimeout() time.Duration {
	return time.Duration(c.BackendTimeoutSeconds) * time.Second
}

func (c Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseMS) * time.Millisecond
}

func (c Config) RetryMaxDelay() time.Duration {
	return time.Duration(c.RetryMaxMS) * time.Millisecond
}
