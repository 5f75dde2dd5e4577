package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"citnet/config"
	"citnet/providers/ads"
	"citnet/services"
	"citnet/storage"
)

var (
	rootCmd = &cobra.Command{
		Use:           "citnet",
		Short:         "Sample citation networks from ADS and generate Gephi-ready edges",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	dbPath string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Path to the SQLite database (overrides DB_PATH)")

	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(expandCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(clusterCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
}

// app bündelt die gemeinsam genutzten Abhängigkeiten eines Kommandos.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	store   *storage.Store
	metrics *services.Metrics
}

func newLogger(level string) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", level, err)
	}
	zcfg.Level = lvl
	return zcfg.Build()
}

// initApp loads the configuration, builds the logger and opens the store.
func initApp(reg prometheus.Registerer) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, store: store, metrics: services.NewMetrics(reg)}, nil
}

func (a *app) close() {
	_ = a.store.Close()
	_ = a.logger.Sync()
}

func (a *app) sampler() (*services.Sampler, error) {
	if a.cfg.ADSAPIKey == "" {
		return nil, fmt.Errorf("no ADS API key configured; set ADS_API_KEY or run 'citnet config set-key KEY'")
	}
	return services.NewSampler(a.cfg, a.store, ads.NewFetcher(a.cfg, a.logger), a.logger, a.metrics), nil
}
