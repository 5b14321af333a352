package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ashureev/antidoom/internal/quota"
)

func newUsageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "usage <phone>",
		Short: "Print today's quota counters for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			ctx := cmd.Context()
			repo, err := openRepository(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = repo.Close() }()

			engine := quota.NewDailyEngine(repo)
			out := make([]quota.Snapshot, 0, len(quota.DailyLimits))
			for _, limit := range quota.DailyLimits {
				snap, err := engine.Check(ctx, args[0], limit.Kind)
				if err != nil {
					return err
				}
				out = append(out, snap)
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database schema and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			// Opening a store applies its schema.
			repo, err := openRepository(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "schema ready (%s)\n", cfg.DBDriver)
			return repo.Close()
		},
	}
}
