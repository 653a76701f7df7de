// Package audit parses audit command flags and launches the audit runtime.
package audit

import (
	"context"
	"flag"
	"time"

	entrypoint "github.com/louisbranch/certtrail/internal/platform/cmd"
	auditserver "github.com/louisbranch/certtrail/internal/services/audit/app"
)

// Config holds audit command configuration.
type Config struct {
	Port          int           `env:"CERTTRAIL_AUDIT_PORT" envDefault:"8184"`
	DBPath        string        `env:"CERTTRAIL_AUDIT_DB_PATH" envDefault:"data/audit.db"`
	SweepInterval time.Duration `env:"CERTTRAIL_AUDIT_SWEEP_INTERVAL" envDefault:"24h"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The audit HTTP server port")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The audit SQLite database path")
	fs.DurationVar(&cfg.SweepInterval, "sweep-interval", cfg.SweepInterval, "Retention cleanup sweep interval")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the audit runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceAudit, func(context.Context) error {
		return auditserver.Run(ctx, auditserver.RuntimeConfig{
			Port:          cfg.Port,
			DBPath:        cfg.DBPath,
			SweepInterval: cfg.SweepInterval,
		})
	})
}
