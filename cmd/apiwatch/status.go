package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusUser string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current usage of a user's resources",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		list, err := a.tracker.ListResources(cmd.Context(), statusUser)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Println("No resources tracked yet. Run 'apiwatch seed' first.")
			return nil
		}

		for _, r := range list {
			fmt.Printf("%s (%s)\n", r.ServiceName, r.ID)
			fmt.Println("─────────────────────────────")
			fmt.Printf("  Limit:     %d per %s\n", r.RateLimit, r.RateLimitPeriod)
			fmt.Printf("  Used:      %d\n", r.CurrentUsage)
			fmt.Printf("  Usage:     %.1f%% (%s)\n", r.UsagePercentage, r.Status)
			fmt.Printf("  Resets in: %s\n", r.TimeUntilReset)
			fmt.Println()
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVarP(&statusUser, "user", "u", "", "user whose resources to show")
	statusCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(statusCmd)
}
