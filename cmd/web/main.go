package main

import (
	"fmt"
	"net"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/secureaudit/secureaudit/pkg/server"
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

var cfgPath string

func main() {
	var rootCmd = &cobra.Command{
		Use:   "web",
		Short: "Start the SecureAudit web server",
		RunE:  runServer,
	}

	rootCmd.Flags().StringVarP(&cfgPath, "config", "c", "",
		"Path to the configuration file (defaults and env vars apply when omitted)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, _ []string) error {
	if err := godotenv.Load(); err != nil {
		fmt.Printf("No .env file loaded: %v\n", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	ctx := logger.WithContext(cmd.Context())

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	db, err := duckdb.NewDB(duckdb.Settings{DbPath: cfg.Storage.DBPath})
	if err != nil {
		return fmt.Errorf("failed to create DuckDB instance: %w", err)
	}

	runStore, err := auditrunstore.NewStore(db)
	if err != nil {
		return fmt.Errorf("failed to create audit run store: %w", err)
	}
	fStore, err := findingstore.NewStore(db)
	if err != nil {
		return fmt.Errorf("failed to create finding store: %w", err)
	}
	snapStore, err := snapshotstore.NewStore(db)
	if err != nil {
		return fmt.Errorf("failed to create snapshot store: %w", err)
	}

	findingsSvc, err := findings.NewService(fStore)
	if err != nil {
		return fmt.Errorf("failed to create findings service: %w", err)
	}

	var analyzer analysis.Analyzer
	switch cfg.Analysis.Provider {
	case "genai":
		genaiAnalyzer, err := analysis.NewGenAIAnalyzer(ctx, cfg.Analysis.APIKey, cfg.Analysis.Model)
		if err != nil {
			return fmt.Errorf("failed to create genai analyzer: %w", err)
		}
		defer genaiAnalyzer.Close()
		analyzer = genaiAnalyzer
	default:
		analyzer = analysis.NewRuleAnalyzer()
	}

	coordinator, err := auditservice.NewCoordinator(
		db,
		runStore,
		findingsSvc,
		snapStore,
		analyzer,
		report.NewLogReporter(),
		auditservice.Config{
			AnalysisTimeout:        cfg.Analysis.Timeout,
			MaxAnalysisAttempts:    cfg.Analysis.MaxAttempts,
			MaxPersistenceAttempts: 3,
			RetryBaseDelay:         cfg.Analysis.RetryDelay,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to create audit coordinator: %w", err)
	}

	addr := net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)
	logger.Info().Str("provider", cfg.Analysis.Provider).Msg("analysis provider configured")

	api := server.NewWebAPI(logger, server.Config{
		Addr:            addr,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Dependencies: server.Dependencies{
			Audits:   coordinator,
			Findings: findingsSvc,
		},
	})

	return api.Start()
}
