package main

import (
	"fmt"

	"github.com/ryhazerus/apiwatch/internal/retention"
	"github.com/spf13/cobra"
)

var pruneDays int

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete usage samples older than the retention period",
	RunE: func(cmd *cobra.Command, args []string) error {
		days := cfg.RetentionDays
		if pruneDays > 0 {
			days = pruneDays
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		sched := retention.NewScheduler(a.tracker, retention.Config{RetentionDays: days}, logger)
		n, err := sched.RunOnce(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Deleted %d sample(s) older than %d days\n", n, days)
		return nil
	},
}

func init() {
	pruneCmd.Flags().IntVar(&pruneDays, "days", 0, "retention in days (overrides config)")
	rootCmd.AddCommand(pruneCmd)
}
