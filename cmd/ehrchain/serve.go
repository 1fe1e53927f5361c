package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ehrchain/api/server"
	"ehrchain/core/audit"
	"ehrchain/core/auth"
	"ehrchain/core/ehr"
	"ehrchain/core/genesis"
	"ehrchain/core/ledger"
	"ehrchain/core/notify"
	"ehrchain/core/record"
	"ehrchain/core/storage"
	"ehrchain/core/wallet"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ledger node and its HTTP API",
	Example: `  ehrchain serve
  EHR_BACKEND=badger EHR_DB_PATH=/var/lib/ehrchain ehrchain serve
  ehrchain serve --listen :9090`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("listen"); addr != "" {
			cfg.ListenAddr = addr
		}

		backend, err := storage.Open(cfg.Backend, cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open %s store: %w", cfg.Backend, err)
		}
		g, err := genesis.Block(cfg.Genesis())
		if err != nil {
			backend.Close()
			return err
		}
		l, err := ledger.Open(backend, ledger.Options{Genesis: g, CacheSize: cfg.CacheSize, Logger: log})
		if err != nil {
			backend.Close()
			return err
		}

		sealer, err := cfg.Sealer()
		if err != nil {
			l.Close()
			return err
		}
		secret := []byte(cfg.JWTSecret)
		if len(secret) == 0 {
			secret = make([]byte, 32)
			if _, err := rand.Read(secret); err != nil {
				l.Close()
				return err
			}
			log.Warn().Msg("EHR_JWT_SECRET not set; using a random secret, sessions will not survive a restart")
		}
		tokens := auth.NewTokens(secret, cfg.TokenTTL)
		zlAudit := audit.NewZerologLogger(log)

		svc, err := ehr.New(ehr.Options{
			Ledger:        l,
			Keystore:      wallet.NewKeystore(backend, sealer),
			Codec:         record.NewCodec(sealer),
			Tokens:        tokens,
			Trail:         audit.NewTrail(cfg.AuditRetention),
			Audit:         zlAudit,
			Notifier:      notify.NewLogNotifier(log),
			Logger:        log,
			GenesisHash:   g.BlockHash,
			AppendRetries: cfg.AppendRetries,
			KeyAlgorithm:  cfg.KeyAlgorithm,
		})
		if err != nil {
			l.Close()
			return err
		}
		defer svc.Close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if cfg.AdminName != "" {
			if err := svc.BootstrapAdmin(ctx, cfg.AdminName, cfg.AdminPassword); err != nil {
				return err
			}
		}
		if res := svc.Verify(ctx, 0, 0); !res.Valid {
			log.Error().Str("reason", res.Reason).Uint64("height", svc.Height()).Msg("ledger failed verification at startup")
		}

		srv := server.NewServer(svc, &auth.Authenticator{Tokens: tokens, AuditLogger: zlAudit}, server.Options{
			ListenAddr:      cfg.ListenAddr,
			TLSCert:         cfg.TLSCert,
			TLSKey:          cfg.TLSKey,
			DataDir:         cfg.DBPath,
			RateLimitPerMin: cfg.RateLimitPerMin,
			ReadTimeout:     cfg.ReadTimeout,
			WriteTimeout:    cfg.WriteTimeout,
			Logger:          log,
		})
		log.Info().
			Str("backend", cfg.Backend).
			Str("genesis", g.BlockHash).
			Uint64("height", svc.Height()).
			Bool("sealing", svc.Sealing()).
			Msg("node ready")
		return srv.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().String("listen", "", "listen address, overrides EHR_LISTEN_ADDR")
	rootCmd.AddCommand(serveCmd)
}
