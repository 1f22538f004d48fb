// Package recovery wires configuration parsing for the recovery service
// entry point.
package recovery

import (
	"context"
	"flag"

	"github.com/louisbranch/recovery.space/internal/recovery/app"
)

// ParseConfig loads the service configuration from the environment and
// applies flag overrides.
func ParseConfig(fs *flag.FlagSet, args []string) (app.Config, error) {
	cfg, err := app.LoadConfigFromEnv()
	if err != nil {
		return app.Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "The recovery HTTP server address")
	fs.StringVar(&cfg.StoragePath, "storage-path", cfg.StoragePath, "SQLite file for token records; empty keeps records in memory")
	if err := fs.Parse(args); err != nil {
		return app.Config{}, err
	}
	return cfg, nil
}

// Run starts the recovery server.
func Run(ctx context.Context, cfg app.Config) error {
	return app.Run(ctx, cfg)
}
