package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hedera-dev/hedera-hsm-signing/internal/app"
	"github.com/hedera-dev/hedera-hsm-signing/internal/domain"
	"github.com/hedera-dev/hedera-hsm-signing/internal/infra/crypto"
	"github.com/hedera-dev/hedera-hsm-signing/internal/infra/db"
	"github.com/hedera-dev/hedera-hsm-signing/internal/usecase"
)

type payloadFlags struct {
	hex  string
	text string
	file string
}

func (p *payloadFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&p.hex, "hex", "", "payload as hex (0x prefix allowed)")
	cmd.Flags().StringVar(&p.text, "text", "", "payload as utf-8 text")
	cmd.Flags().StringVar(&p.file, "file", "", "read payload bytes from file")
	cmd.MarkFlagsMutuallyExclusive("hex", "text", "file")
	cmd.MarkFlagsOneRequired("hex", "text", "file")
}

func (p *payloadFlags) read() ([]byte, error) {
	switch {
	case p.hex != "":
		payload, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(p.hex), "0x"))
		if err != nil {
			return nil, fmt.Errorf("--hex: %w", err)
		}
		return payload, nil
	case p.file != "":
		return os.ReadFile(p.file)
	default:
		return []byte(p.text), nil
	}
}

func newPubkeyCmd(opts *rootOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "pubkey",
		Short: "Print the canonical public key of the configured key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			signer, err := opts.signer()
			if err != nil {
				return err
			}
			key, err := signer.PublicKey(cmd.Context())
			if err != nil {
				return err
			}
			switch format {
			case "der":
				fmt.Fprintln(cmd.OutOrStdout(), key.Hex())
			case "raw":
				fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(key.Point))
			default:
				return fmt.Errorf("unknown format %q", format)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "der", "output: der (hex SPKI) or raw (hex point or ed25519 key)")
	return cmd
}

func newSignCmd(opts *rootOptions) *cobra.Command {
	var payload payloadFlags
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Sign a payload and print the 64-byte signature as hex",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := payload.read()
			if err != nil {
				return err
			}
			signer, err := opts.signer()
			if err != nil {
				return err
			}
			sig, err := signer.Sign(cmd.Context(), data)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sig.Hex())
			return nil
		},
	}
	payload.register(cmd)
	return cmd
}

func newVerifyCmd(opts *rootOptions) *cobra.Command {
	var (
		payload   payloadFlags
		signature string
		publicKey string
	)
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify a signature locally against the key's canonical public key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := payload.read()
			if err != nil {
				return err
			}
			sig, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(signature), "0x"))
			if err != nil {
				return fmt.Errorf("--signature: %w", err)
			}
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			handle, err := cfg.Handle()
			if err != nil {
				return err
			}

			var key domain.CanonicalPublicKey
			if publicKey != "" {
				der, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(publicKey), "0x"))
				if err != nil {
					return fmt.Errorf("--public-key: %w", err)
				}
				key, err = crypto.NewKeyMaterialCodec().Normalize(domain.NativeKey{Encoding: domain.KeyEncodingDER, Data: der}, handle.Curve)
				if err != nil {
					return err
				}
			} else {
				signer, err := opts.signer()
				if err != nil {
					return err
				}
				if key, err = signer.PublicKey(cmd.Context()); err != nil {
					return err
				}
			}

			verifier := crypto.Verifier{Digest: crypto.NewDigestPolicy()}
			if err := verifier.Verify(key, handle.Backend, data, domain.RawSignature(sig)); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "signature valid")
			return nil
		},
	}
	payload.register(cmd)
	cmd.Flags().StringVar(&signature, "signature", "", "64-byte signature as hex")
	cmd.Flags().StringVar(&publicKey, "public-key", "", "hex SPKI DER; fetched from the backend when empty")
	_ = cmd.MarkFlagRequired("signature")
	return cmd
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the signing HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			logger, err := opts.cliLogger(cfg, true)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			a, err := app.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			return a.Server().Run(ctx)
		},
	}
}

func newAuditCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "List recent sign audit events and check their hash chain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if cfg.PostgresDSN == "" {
				return errors.New("POSTGRES_DSN is required")
			}
			logger, err := opts.cliLogger(cfg, false)
			if err != nil {
				return err
			}
			store, err := db.NewStore(cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			events, err := db.NewSignAuditRepository(store.DB).ListRecent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, event := range events {
				fmt.Fprintf(out, "%d\t%s\t%s\t%s\t%s\t%s\n",
					event.Seq,
					event.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
					event.Backend,
					event.KeyID,
					event.Result,
					event.ErrorCode,
				)
			}
			if err := usecase.VerifySignAuditChain(events); err != nil {
				return err
			}
			fmt.Fprintf(out, "chain ok (%d events)\n", len(events))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "number of most recent events")
	return cmd
}

func (o *rootOptions) signer() (domain.Signer, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := o.cliLogger(cfg, false)
	if err != nil {
		return nil, err
	}
	return app.NewSigner(cfg, logger, nil)
}
