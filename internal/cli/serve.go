package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/asteroid-belt/fieldsync/internal/auth"
	"github.com/asteroid-belt/fieldsync/internal/cache"
	"github.com/asteroid-belt/fieldsync/internal/conflict"
	"github.com/asteroid-belt/fieldsync/internal/ledger"
	"github.com/asteroid-belt/fieldsync/internal/log"
	"github.com/asteroid-belt/fieldsync/internal/registry"
	"github.com/asteroid-belt/fieldsync/internal/server"
	"github.com/asteroid-belt/fieldsync/internal/syncer"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sync API server",
	Long: `Run the HTTP API that field devices and operator tooling talk to.

The listen address comes from --addr, FIELDSYNC_ADDR, or the default :8743.
Set FIELDSYNC_AUTH_TOKEN and FIELDSYNC_JWT_SECRET to enforce authentication.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides FIELDSYNC_ADDR)")
}

func runServe(cmd *cobra.Command, args []string) error {
	h, err := open()
	if err != nil {
		return trackCLIError("serve", err)
	}
	defer h.close()

	cfg, database := h.cfg, h.db
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	jwtSecret := cfg.Server.JWTSecret
	if jwtSecret == "" {
		jwtSecret = cfg.Server.AuthToken
	}

	reg := registry.New(database, telemetryClient)
	cacheSvc := cache.New(database, telemetryClient, cfg.Sync.CompressThreshold)
	conflictSvc := conflict.New(database, telemetryClient)
	ledgerSvc := ledger.New(database, telemetryClient, cfg.Sync.RetryCeiling)
	syncSvc := syncer.New(database, reg, cacheSvc, conflictSvc, ledgerSvc, telemetryClient, cfg.Sync)

	router := server.NewRouter(server.Deps{
		DB:           database,
		Registry:     reg,
		Cache:        cacheSvc,
		Syncer:       syncSvc,
		Conflicts:    conflictSvc,
		Ledger:       ledgerSvc,
		TokenConfig:  auth.DefaultTokenConfig(jwtSecret),
		AuthToken:    cfg.Server.AuthToken,
		AllowOrigins: cfg.Server.AllowOrigins,
	})

	fmt.Printf("fieldsync API listening on %s\n", cfg.Server.Addr)
	log.Printf("serving on %s (db: %s)", cfg.Server.Addr, database.Path())

	if err := server.Run(cfg.Server, router); err != nil {
		return trackCLIError("serve", err)
	}
	return nil
}
