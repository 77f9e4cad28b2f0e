package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/ryhazerus/apiwatch/internal/config"
	"github.com/ryhazerus/apiwatch/internal/logging"
	"github.com/ryhazerus/apiwatch/internal/retention"
	"github.com/ryhazerus/apiwatch/internal/server"
	"github.com/spf13/cobra"
)

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(cfg.AuthTokens) == 0 {
			return fmt.Errorf("no API tokens configured; set auth.tokens in the config file or APIWATCH_AUTH_TOKENS=token=user")
		}
		addr := cfg.Listen
		if serveListen != "" {
			addr = serveListen
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		sched := retention.NewScheduler(a.tracker, retention.Config{
			RetentionDays: cfg.RetentionDays,
			Schedule:      cfg.RetentionSchedule,
		}, logger)
		if err := sched.Start(ctx); err != nil {
			return err
		}
		defer sched.Stop()

		srv := server.New(a.tracker, server.Options{
			Tokens:   cfg.AuthTokens,
			Gatherer: a.registry,
			Logger:   logger,
		})

		loader.Watch(func(c *config.Config, err error) {
			if err != nil {
				logger.Warn("config reload failed", "error", err)
				return
			}
			if lvl, err := logging.ParseLevel(c.LogLevel); err == nil {
				logLevel.Set(lvl)
			}
			srv.SetTokens(c.AuthTokens)
			logger.Info("config reloaded", "log_level", c.LogLevel, "tokens", len(c.AuthTokens))
		})

		fmt.Printf("Starting server at http://%s\n", addr)
		fmt.Printf("Authentication enabled with %d token(s)\n", len(cfg.AuthTokens))
		return srv.ListenAndServe(ctx, addr)
	},
}

func init() {
	serveCmd.Flags().StringVarP(&serveListen, "listen", "l", "", "address to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}
