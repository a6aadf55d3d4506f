package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/geofuse/geofuse/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "geofuse",
	Short: "Hybrid address resolution and validation engine",
	Long:  "Resolves free-form addresses through a tiered internal geocoder, cross-validates candidates geospatially, fuses per-signal confidences, flags anomalies, and attempts targeted self-healing.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
