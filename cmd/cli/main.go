package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/secureaudit/secureaudit/pkg/models/domain"
	"github.com/secureaudit/secureaudit/pkg/services/analysis"
	auditservice "github.com/secureaudit/secureaudit/pkg/services/audit"
	"github.com/secureaudit/secureaudit/pkg/services/config"
	"github.com/secureaudit/secureaudit/pkg/services/findings"
	"github.com/secureaudit/secureaudit/pkg/services/report"
	"github.com/secureaudit/secureaudit/pkg/store/duckdb"
	auditrunstore "github.com/secureaudit/secureaudit/pkg/store/duckdb/auditrun"
	findingstore "github.com/secureaudit/secureaudit/pkg/store/duckdb/finding"
	snapshotstore "github.com/secureaudit/secureaudit/pkg/store/duckdb/snapshot"
	"github.com/spf13/cobra"
)

var (
	cfgPath        string
	runID          string
	frameworks     []string
	scanConfigPath string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "secureaudit",
		Short: "SecureAudit compliance auditing CLI",
	}

	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "Trigger a compliance scan and wait for it to finish",
		RunE:  runScan,
	}
	scanCmd.Flags().StringVarP(&cfgPath, "config", "c", "", "Path to the configuration file")
	scanCmd.Flags().StringVar(&runID, "run-id", "", "Audit run id (generated when omitted)")
	scanCmd.Flags().StringSliceVarP(&frameworks, "frameworks", "f",
		domain.SupportedFrameworks, "Compliance frameworks to audit")
	scanCmd.Flags().StringVar(&scanConfigPath, "scan-config", "", "Path to a scan configuration JSON file")

	rootCmd.AddCommand(scanCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func runScan(cmd *cobra.Command, _ []string) error {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	ctx := logger.WithContext(cmd.Context())

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	var scanConfig domain.ScanConfig
	if scanConfigPath != "" {
		scanConfig, err = os.ReadFile(scanConfigPath)
		if err != nil {
			return fmt.Errorf("failed to read scan config: %w", err)
		}
		if !json.Valid(scanConfig) {
			return fmt.Errorf("scan config %s is not valid JSON", scanConfigPath)
		}
	}

	db, err := duckdb.NewDB(duckdb.Settings{DbPath: cfg.Storage.DBPath})
	if err != nil {
		return fmt.Errorf("failed to create DuckDB instance: %w", err)
	}

	runStore, err := auditrunstore.NewStore(db)
	if err != nil {
		return err
	}
	fStore, err := findingstore.NewStore(db)
	if err != nil {
		return err
	}
	snapStore, err := snapshotstore.NewStore(db)
	if err != nil {
		return err
	}
	findingsSvc, err := findings.NewService(fStore)
	if err != nil {
		return err
	}

	var analyzer analysis.Analyzer
	if cfg.Analysis.Provider == "genai" {
		genaiAnalyzer, err := analysis.NewGenAIAnalyzer(ctx, cfg.Analysis.APIKey, cfg.Analysis.Model)
		if err != nil {
			return fmt.Errorf("failed to create genai analyzer: %w", err)
		}
		defer genaiAnalyzer.Close()
		analyzer = genaiAnalyzer
	} else {
		analyzer = analysis.NewRuleAnalyzer()
	}

	coordinator, err := auditservice.NewCoordinator(
		db, runStore, findingsSvc, snapStore, analyzer, report.NewLogReporter(),
		auditservice.Config{
			AnalysisTimeout:        cfg.Analysis.Timeout,
			MaxAnalysisAttempts:    cfg.Analysis.MaxAttempts,
			MaxPersistenceAttempts: 3,
			RetryBaseDelay:         cfg.Analysis.RetryDelay,
		},
	)
	if err != nil {
		return err
	}

	run, created, err := coordinator.StartAuditRun(ctx, runID, frameworks, scanConfig)
	if err != nil {
		return err
	}
	if !created {
		logger.Info().Str("status", string(run.Status)).Msg("audit run already exists")
	}

	final, err := waitForRun(ctx, coordinator, run.ID)
	if err != nil {
		return err
	}

	fmt.Printf("Audit run:        %s\n", final.ID)
	fmt.Printf("Status:           %s\n", final.Status)
	if final.Status == domain.RunStatusFailed {
		fmt.Printf("Error:            %s\n", final.ErrorMessage)
		return fmt.Errorf("audit run failed")
	}
	fmt.Printf("Findings:         %d\n", final.FindingsCount)
	fmt.Printf("Compliance score: %.1f\n", final.ComplianceScore)
	for _, fw := range final.Frameworks {
		fmt.Printf("  %-10s %.1f\n", fw, final.FrameworkScores[fw])
	}
	return nil
}

func waitForRun(ctx context.Context, svc auditservice.Service, id string) (*domain.AuditRun, error) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			run, err := svc.GetAuditRun(ctx, id)
			if err != nil {
				return nil, err
			}
			if run.Status.Terminal() {
				return run, nil
			}
		}
	}
}
