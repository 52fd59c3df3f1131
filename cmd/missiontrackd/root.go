package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"missiontracker/internal/config"
	"missiontracker/internal/engine"
	"missiontracker/internal/fetch"
	"missiontracker/internal/oracle"
	"missiontracker/internal/store"
)

var (
	flagConfig   string
	flagDB       string
	flagPGDSN    string
	flagPGSchema string
	flagBaseURL  string
	flagVerbose  bool
	flagJSONLogs bool
)

var rootCmd = &cobra.Command{
	Use:   "missiontrackd",
	Short: "Mission tracking and rescan daemon",
	Long: `missiontrackd watches a remote work queue: it discovers new items,
ingests their detail pages under a concurrency bound, periodically rescans
active items for newly present participants, and maintains windowed
per-participant statistics.`,
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", envString("TRACKER_CONFIG", ""), "Optional YAML config file. Env: TRACKER_CONFIG")
	pf.StringVar(&flagDB, "db", envString("TRACKER_DB", "missiontracker.db"), "SQLite database path. Env: TRACKER_DB")
	pf.StringVar(&flagPGDSN, "pg-dsn", envString("PG_DSN", ""), "Postgres DSN (overrides --db). Env: PG_DSN")
	pf.StringVar(&flagPGSchema, "pg-schema", envString("PG_SCHEMA", "public"), "Target Postgres schema. Env: PG_SCHEMA")
	pf.StringVar(&flagBaseURL, "base-url", envString("TRACKER_BASE_URL", ""), "Remote site base URL. Env: TRACKER_BASE_URL")
	pf.BoolVar(&flagVerbose, "verbose", envBool("TRACKER_VERBOSE", false), "Debug logging. Env: TRACKER_VERBOSE")
	pf.BoolVar(&flagJSONLogs, "json-logs", envBool("JSON_LOGS", false), "Emit JSON log lines. Env: JSON_LOGS")
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if flagVerbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if flagJSONLogs {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func loadConfig() (*config.Config, error) {
	if flagConfig == "" {
		return &config.Config{}, nil
	}
	return config.LoadFile(flagConfig)
}

func openStore(ctx context.Context) (store.Store, error) {
	if flagPGDSN != "" {
		return store.NewPostgres(ctx, store.PostgresOptions{
			DSN:      flagPGDSN,
			Schema:   flagPGSchema,
			MaxConns: 2,
		})
	}
	return store.NewSQLite(flagDB)
}

// buildEngine assembles the full stack from flags and the optional config
// file. The caller owns closing the returned store.
func buildEngine(ctx context.Context, logger *slog.Logger, notifier engine.Notifier) (*engine.Engine, store.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if flagBaseURL != "" {
		cfg.BaseURL = flagBaseURL
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}

	session, err := engine.NewSession(st, logger, cfg.MaxItems, cfg.HistoryCap)
	if err != nil {
		st.Close()
		return nil, nil, err
	}

	htmlOracle, err := oracle.NewHTMLOracle(oracle.HTMLOracleOptions{
		CompletionKeywords: cfg.Oracle.CompletionKeywords,
		AcceptedLabels:     cfg.Oracle.AcceptedLabels,
		ProfileLinkPattern: cfg.Oracle.ProfileLinkPattern,
		ItemLinkPattern:    cfg.Oracle.ItemLinkPattern,
		RewardPattern:      cfg.Oracle.RewardPattern,
	})
	if err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("oracle config: %w", err)
	}

	fetchTimeout := cfg.FetchTimeout
	if fetchTimeout <= 0 {
		fetchTimeout = 10 * time.Second
	}
	fetcher := fetch.NewHTTPFetcher(fetchTimeout, envString("HTTP_USER_AGENT", ""))

	eng := engine.New(engine.Config{
		BaseURL:                cfg.BaseURL,
		ListingPath:            cfg.ListingPath,
		ItemPathFmt:            cfg.ItemPathFmt,
		RewardPathFmt:          cfg.RewardPathFmt,
		ProfilePathFmt:         cfg.ProfilePathFmt,
		CheckInterval:          cfg.CheckInterval,
		RescanInterval:         cfg.RescanInterval,
		SettleDelay:            cfg.SettleDelay,
		MaxConcurrent:          cfg.MaxConcurrent,
		RecencyWindow:          cfg.RecencyWindow,
		ProfileRefreshInterval: cfg.ProfileRefreshInterval,
		RetentionAge:           time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		MaxItems:               cfg.MaxItems,
		HistoryCap:             cfg.HistoryCap,
	}, session, fetcher, engine.Oracles{
		Completion: htmlOracle,
		Extraction: htmlOracle,
		Listing:    htmlOracle,
		Reward:     htmlOracle,
		Profile:    htmlOracle,
	}, notifier, logger)

	return eng, st, nil
}
