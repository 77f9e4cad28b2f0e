package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	recordUser  string
	recordCount int64
)

var recordCmd = &cobra.Command{
	Use:   "record <resource-id>",
	Short: "Record usage against a resource",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.tracker.RecordUsage(cmd.Context(), recordUser, args[0], recordCount)
		if err != nil {
			return err
		}

		fmt.Printf("%d/%d (%.1f%%) %s\n", res.Usage, res.Limit, res.Percentage, res.Status)
		if res.Reset {
			fmt.Println("  window reset")
		}
		if res.Alerts > 0 {
			fmt.Printf("  %d alert(s) triggered\n", res.Alerts)
		}
		return nil
	},
}

func init() {
	recordCmd.Flags().StringVarP(&recordUser, "user", "u", "", "owner of the resource")
	recordCmd.Flags().Int64VarP(&recordCount, "count", "n", 1, "number of requests to record")
	recordCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(recordCmd)
}
