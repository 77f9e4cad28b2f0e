package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/ryhazerus/apiwatch"
	"github.com/ryhazerus/apiwatch/internal/config"
	"github.com/ryhazerus/apiwatch/internal/logging"
	"github.com/ryhazerus/apiwatch/notify"
	redisqueue "github.com/ryhazerus/apiwatch/notify/redis"
	"github.com/ryhazerus/apiwatch/store"
	"github.com/spf13/cobra"
)

var cfgFile string

var (
	loader   *config.Loader
	cfg      *config.Config
	logger   *slog.Logger
	logLevel *slog.LevelVar
)

var rootCmd = &cobra.Command{
	Use:   "apiwatch",
	Short: "Quota tracker for external APIs",
	Long: `apiwatch counts requests against the rate limits of the external APIs you
use, warns before a quota runs out and forecasts when it will.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.apiwatch.yaml)")
}

func initConfig() error {
	loader = config.NewLoader(cfgFile)
	c, err := loader.Load()
	if err != nil {
		return err
	}
	cfg = c

	logger, logLevel, err = logging.New(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	if f := loader.ConfigFileUsed(); f != "" {
		logger.Debug("using config file", "path", f)
	}
	return nil
}

// app holds the tracker and what it was built from.
type app struct {
	tracker  *apiwatch.Tracker
	registry *prometheus.Registry
	redis    *redis.Client
}

// openApp builds a tracker from the loaded configuration.
func openApp() (*app, error) {
	s, err := store.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	a := &app{registry: prometheus.NewRegistry()}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var queue notify.Queue = notify.NewMemoryQueue(notify.DefaultMaxPerUser)
	if cfg.RedisAddr != "" {
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		queue = redisqueue.NewRedisQueue(a.redis, notify.DefaultMaxPerUser)
	}

	a.tracker = apiwatch.New(
		apiwatch.WithStore(s),
		apiwatch.WithQueue(queue),
		apiwatch.WithLogger(logger),
		apiwatch.WithMetrics(apiwatch.NewMetrics(a.registry)),
		apiwatch.WithLocation(cfg.Location),
		apiwatch.WithAlertCooldown(cfg.AlertCooldown),
		apiwatch.WithMaxAttempts(cfg.MaxAttempts),
	)
	return a, nil
}

func (a *app) Close() error {
	if a.redis != nil {
		a.redis.Close()
	}
	return a.tracker.Close()
}
