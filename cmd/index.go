package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/geofuse/geofuse/internal/refindex"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Reference index maintenance",
}

var indexBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the reference index from the raw dataset and persist it",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		rows, err := refindex.LoadRows(cfg.Data.Dataset)
		if err != nil {
			return eris.Wrap(err, "load dataset")
		}
		store := refindex.Build(rows, region())

		db, err := refindex.OpenArtifact(cfg.Data.Artifact)
		if err != nil {
			return eris.Wrap(err, "open artifact")
		}
		defer func() { _ = db.Close() }()

		if err := store.SaveTo(ctx, db); err != nil {
			return eris.Wrap(err, "save artifact")
		}

		postal, places, localities, landmarks := store.Counts()
		zap.L().Info("index built",
			zap.String("dataset", cfg.Data.Dataset),
			zap.String("artifact", cfg.Data.Artifact),
			zap.Int("postal_codes", postal),
			zap.Int("places", places),
			zap.Int("localities", localities),
			zap.Int("landmarks", landmarks),
		)
		return nil
	},
}

func init() {
	indexCmd.AddCommand(indexBuildCmd)
	rootCmd.AddCommand(indexCmd)
}
