package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hedera-dev/hedera-hsm-signing/internal/config"
	"github.com/hedera-dev/hedera-hsm-signing/internal/logging"
)

type rootOptions struct {
	configFile string
	backend    string
	keyID      string
	curve      string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "hsmsign",
		Short:         "Sign Hedera transactions with keys held in a remote HSM or KMS",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "config file (yaml, json or toml); environment variables still win")
	flags.StringVar(&opts.backend, "backend", "", "override SIGNER_BACKEND (hsm-vault, cloud-kms, secret-transit)")
	flags.StringVar(&opts.keyID, "key-id", "", "override SIGNER_KEY_ID")
	flags.StringVar(&opts.curve, "curve", "", "override SIGNER_CURVE")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log backend calls to stderr")

	cmd.AddCommand(
		newPubkeyCmd(opts),
		newSignCmd(opts),
		newVerifyCmd(opts),
		newServeCmd(opts),
		newAuditCmd(opts),
	)
	return cmd
}

func (o *rootOptions) loadConfig() (config.Config, error) {
	cfg := config.FromEnv()
	if o.configFile != "" {
		loaded, err := config.Load(o.configFile)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	if o.backend != "" {
		cfg.SignerBackend = o.backend
	}
	if o.keyID != "" {
		cfg.SignerKeyID = o.keyID
	}
	if o.curve != "" {
		cfg.SignerCurve = o.curve
	}
	return cfg, nil
}

// cliLogger stays quiet unless --verbose; serve always logs.
func (o *rootOptions) cliLogger(cfg config.Config, always bool) (*zap.Logger, error) {
	if !o.verbose && !always {
		return zap.NewNop(), nil
	}
	level := cfg.LogLevel
	if o.verbose {
		level = "debug"
	}
	return logging.New(level, cfg.LogFormat, cfg.LogFile)
}
