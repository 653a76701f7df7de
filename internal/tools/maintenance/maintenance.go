// Package maintenance provides one-shot audit trail maintenance commands:
// chain verification, integrity verification, retention cleanup, and
// compliance reporting.
package maintenance

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/louisbranch/certtrail/internal/services/audit/retention"
	"github.com/louisbranch/certtrail/internal/services/audit/signing"
	"github.com/louisbranch/certtrail/internal/services/audit/storage/sqlite"
)

var _ auditStore = (*sqlite.Store)(nil)

// Config holds maintenance command configuration.
type Config struct {
	DBPath      string
	Timeout     time.Duration
	VerifyChain bool
	Integrity   bool
	Cleanup     bool
	DryRun      bool
	BatchSize   int
	Compliance  bool
	StartID     int64
	EndID       int64
	Limit       int
	JSONOutput  bool
}

type envConfig struct {
	DBPath  string        `env:"CERTTRAIL_AUDIT_DB_PATH"`
	Timeout time.Duration `env:"CERTTRAIL_MAINTENANCE_TIMEOUT" envDefault:"10m"`
}

// ParseConfig parses flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var envCfg envConfig
	if err := env.Parse(&envCfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg := Config{
		DBPath:  envCfg.DBPath,
		Timeout: envCfg.Timeout,
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join("data", "audit.db")
	}

	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "path to audit sqlite database (default: CERTTRAIL_AUDIT_DB_PATH or data/audit.db)")
	fs.BoolVar(&cfg.VerifyChain, "verify-chain", false, "walk the hash chain and report the first break")
	fs.BoolVar(&cfg.Integrity, "integrity", false, "verify the hash chain and entry signatures")
	fs.BoolVar(&cfg.Cleanup, "cleanup", false, "run one retention cleanup sweep")
	fs.BoolVar(&cfg.DryRun, "dry-run", false, "report what the cleanup sweep would do without mutating storage")
	fs.IntVar(&cfg.BatchSize, "batch-size", 0, "cleanup batch size override (0 = policy default)")
	fs.BoolVar(&cfg.Compliance, "compliance", false, "print the retention compliance report")
	fs.Int64Var(&cfg.StartID, "start-id", 0, "first entry ID to verify (0 = oldest)")
	fs.Int64Var(&cfg.EndID, "end-id", 0, "last entry ID to verify (0 = newest)")
	fs.IntVar(&cfg.Limit, "limit", 0, "max entries to verify (0 = storage default)")
	fs.BoolVar(&cfg.JSONOutput, "json", false, "output JSON reports")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "overall timeout")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run executes the maintenance command.
func Run(ctx context.Context, cfg Config, out io.Writer, errOut io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}

	modes := 0
	for _, on := range []bool{cfg.VerifyChain, cfg.Integrity, cfg.Cleanup, cfg.Compliance} {
		if on {
			modes++
		}
	}
	if modes == 0 {
		return errors.New("one of -verify-chain, -integrity, -cleanup, or -compliance is required")
	}
	if modes > 1 {
		return errors.New("-verify-chain, -integrity, -cleanup, and -compliance are mutually exclusive")
	}
	if cfg.DryRun && !cfg.Cleanup {
		return errors.New("-dry-run requires -cleanup")
	}
	if cfg.BatchSize < 0 {
		return errors.New("-batch-size must be >= 0")
	}
	if (cfg.StartID != 0 || cfg.EndID != 0 || cfg.Limit != 0) && !cfg.VerifyChain && !cfg.Integrity {
		return errors.New("-start-id, -end-id, and -limit require -verify-chain or -integrity")
	}

	policy, err := retention.PolicyFromEnv()
	if err != nil {
		return fmt.Errorf("load retention policy: %w", err)
	}
	signer, err := signing.ServiceFromEnv()
	if err != nil {
		return fmt.Errorf("configure signing: %w", err)
	}

	store, err := sqlite.Open(cfg.DBPath,
		sqlite.WithSigner(signer),
		sqlite.WithArchivePolicy(policy),
	)
	if err != nil {
		return fmt.Errorf("open audit store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			fmt.Fprintf(errOut, "Error: close audit store: %v\n", closeErr)
		}
	}()

	switch {
	case cfg.VerifyChain:
		return runVerifyChain(ctx, store, cfg, out)
	case cfg.Integrity:
		return runVerifyIntegrity(ctx, store, cfg, out)
	case cfg.Cleanup:
		return runCleanup(ctx, retention.NewService(policy, store), cfg, out)
	default:
		return runCompliance(ctx, retention.NewService(policy, store), cfg, out)
	}
}

func runVerifyChain(ctx context.Context, store chainVerifier, cfg Config, out io.Writer) error {
	result, err := store.ValidateChain(ctx, cfg.StartID, cfg.EndID, cfg.Limit)
	if err != nil {
		return fmt.Errorf("validate chain: %w", err)
	}
	if cfg.JSONOutput {
		return writeJSON(out, map[string]any{
			"valid":             result.Valid,
			"entriesChecked":    result.EntriesChecked,
			"firstInvalidEntry": result.FirstInvalidEntry,
			"errorMessage":      result.ErrorMessage,
		})
	}
	if result.Valid {
		fmt.Fprintf(out, "chain valid: %d entries checked\n", result.EntriesChecked)
		return nil
	}
	fmt.Fprintf(out, "chain INVALID after %d entries: %s\n", result.EntriesChecked, result.ErrorMessage)
	if result.FirstInvalidEntry != 0 {
		fmt.Fprintf(out, "first invalid entry: %d\n", result.FirstInvalidEntry)
	}
	return errors.New("hash chain verification failed")
}

func runVerifyIntegrity(ctx context.Context, store chainVerifier, cfg Config, out io.Writer) error {
	result, err := store.ValidateIntegrity(ctx, cfg.StartID, cfg.EndID, cfg.Limit)
	if err != nil {
		return fmt.Errorf("validate integrity: %w", err)
	}
	if cfg.JSONOutput {
		invalid := make([]map[string]any, 0, len(result.Signatures.InvalidEntries))
		for _, v := range result.Signatures.InvalidEntries {
			invalid = append(invalid, map[string]any{
				"entryId":      v.EntryID,
				"errorMessage": v.ErrorMessage,
			})
		}
		return writeJSON(out, map[string]any{
			"overallValid": result.OverallValid,
			"hashChain": map[string]any{
				"valid":             result.HashChain.Valid,
				"entriesChecked":    result.HashChain.EntriesChecked,
				"firstInvalidEntry": result.HashChain.FirstInvalidEntry,
				"errorMessage":      result.HashChain.ErrorMessage,
			},
			"signatures": map[string]any{
				"valid":          result.Signatures.Valid,
				"entriesChecked": result.Signatures.EntriesChecked,
				"invalidEntries": invalid,
			},
		})
	}
	fmt.Fprintf(out, "hash chain: valid=%t checked=%d\n", result.HashChain.Valid, result.HashChain.EntriesChecked)
	if !result.HashChain.Valid {
		fmt.Fprintf(out, "  %s\n", result.HashChain.ErrorMessage)
	}
	fmt.Fprintf(out, "signatures: valid=%t checked=%d\n", result.Signatures.Valid, result.Signatures.EntriesChecked)
	for _, v := range result.Signatures.InvalidEntries {
		fmt.Fprintf(out, "  invalid signature on entry %d: %s\n", v.EntryID, v.ErrorMessage)
	}
	if !result.OverallValid {
		return errors.New("integrity verification failed")
	}
	fmt.Fprintln(out, "integrity OK")
	return nil
}

func runCleanup(ctx context.Context, svc *retention.Service, cfg Config, out io.Writer) error {
	result := svc.PerformCleanup(ctx, retention.CleanupOptions{
		DryRun:    cfg.DryRun,
		BatchSize: cfg.BatchSize,
	})
	if cfg.JSONOutput {
		if err := writeJSON(out, map[string]any{
			"runId":           result.RunID,
			"success":         result.Success,
			"dryRun":          result.DryRun,
			"archivedCount":   result.ArchivedCount,
			"deletedCount":    result.DeletedCount,
			"errorMessage":    result.ErrorMessage,
			"executionTimeMs": result.ExecutionTimeMs,
		}); err != nil {
			return err
		}
	} else {
		verb := "swept"
		if result.DryRun {
			verb = "would sweep"
		}
		fmt.Fprintf(out, "cleanup %s: %s archived=%d deleted=%d in %dms\n",
			result.RunID, verb, result.ArchivedCount, result.DeletedCount, result.ExecutionTimeMs)
		if result.ErrorMessage != "" {
			fmt.Fprintf(out, "  %s\n", result.ErrorMessage)
		}
	}
	if !result.Success {
		return errors.New("cleanup run failed")
	}
	return nil
}

func runCompliance(ctx context.Context, svc *retention.Service, cfg Config, out io.Writer) error {
	report, err := svc.GenerateComplianceReport(ctx)
	if err != nil {
		return fmt.Errorf("generate compliance report: %w", err)
	}
	if cfg.JSONOutput {
		return writeJSON(out, map[string]any{
			"complianceStatus": report.ComplianceStatus,
			"recommendations":  report.Recommendations,
			"pendingArchival":  report.Statistics.PendingArchival,
			"policy": map[string]any{
				"defaultDays":         report.Policy.DefaultRetentionDays,
				"securityDays":        report.Policy.SecurityEventRetentionDays,
				"certificateDays":     report.Policy.CertificateEventRetentionDays,
				"archiveBeforeDelete": report.Policy.ArchiveBeforeDelete,
			},
		})
	}
	fmt.Fprintf(out, "compliance status: %s\n", report.ComplianceStatus)
	fmt.Fprintf(out, "pending archival: %d\n", report.Statistics.PendingArchival)
	for _, rec := range report.Recommendations {
		fmt.Fprintf(out, "  - %s\n", rec)
	}
	return nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
