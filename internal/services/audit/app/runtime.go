package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/louisbranch/certtrail/internal/platform/timeouts"
	"github.com/louisbranch/certtrail/internal/services/audit/retention"
	"github.com/louisbranch/certtrail/internal/services/audit/signing"
	"github.com/louisbranch/certtrail/internal/services/audit/storage/sqlite"
)

// RuntimeConfig controls audit service startup and loop behavior.
type RuntimeConfig struct {
	Port          int
	DBPath        string
	SweepInterval time.Duration
}

const (
	defaultAuditPort = 8184
	defaultAuditDB   = "data/audit.db"
)

// Run starts the audit service: storage, signing, retention scheduler, and
// the HTTP surface, shutting all of it down when ctx is cancelled.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.Port <= 0 {
		cfg.Port = defaultAuditPort
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = defaultAuditDB
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = retention.DefaultSweepInterval
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create audit storage dir: %w", err)
		}
	}

	policy, err := retention.PolicyFromEnv()
	if err != nil {
		return fmt.Errorf("load retention policy: %w", err)
	}

	signer, err := signing.ServiceFromEnv()
	if err != nil {
		return fmt.Errorf("configure signing: %w", err)
	}
	if signer.IsConfigured() {
		log.Printf("audit signing configured (key fingerprint %s)", signer.KeyFingerprint())
	} else {
		log.Printf("audit signing is not configured; entries will be unsigned")
	}

	store, err := sqlite.Open(cfg.DBPath,
		sqlite.WithSigner(signer),
		sqlite.WithArchivePolicy(policy),
	)
	if err != nil {
		return fmt.Errorf("open audit sqlite store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			log.Printf("close audit sqlite store: %v", closeErr)
		}
	}()

	retentionSvc := retention.NewService(policy, store)

	grant, err := LoadAdminGrantConfigFromEnv()
	if err != nil {
		return fmt.Errorf("load admin grant config: %w", err)
	}
	if grant == nil {
		log.Printf("admin grant verification is disabled")
	}

	server := NewServer(store, signer, retentionSvc, grant)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           server.Routes(),
		ReadHeaderTimeout: timeouts.ReadHeader,
	}

	go retentionSvc.RunScheduled(ctx, cfg.SweepInterval)

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("audit service listening on %s", httpServer.Addr)
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve audit http: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown audit http: %w", err)
	}
	return nil
}
