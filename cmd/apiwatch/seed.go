package main

import (
	"fmt"

	"github.com/ryhazerus/apiwatch/internal/seed"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed <file.yaml>",
	Short: "Create resources and alert rules from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := seed.ParseFile(args[0])
		if err != nil {
			return err
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := seed.Apply(cmd.Context(), a.tracker, f)
		if err != nil {
			return err
		}

		fmt.Printf("Seeded %d resource(s) and %d alert rule(s) for %s\n", res.Resources, res.Rules, f.User)
		for _, name := range res.Skipped {
			fmt.Printf("  skipped %s: already exists\n", name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
