package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/geofuse/geofuse/internal/boundary"
	"github.com/geofuse/geofuse/internal/embed"
	"github.com/geofuse/geofuse/internal/engine"
	"github.com/geofuse/geofuse/internal/heal"
	"github.com/geofuse/geofuse/internal/quality"
	"github.com/geofuse/geofuse/internal/refindex"
	"github.com/geofuse/geofuse/internal/resilience"
	"github.com/geofuse/geofuse/internal/resolver"
	"github.com/geofuse/geofuse/internal/validate"
	"github.com/geofuse/geofuse/pkg/geocode"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <address> [address...]",
	Short: "Resolve one or more addresses and print the full report as JSON",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		eng := buildEngine(ctx)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		if len(args) == 1 {
			return enc.Encode(eng.Resolve(ctx, args[0]))
		}
		return enc.Encode(eng.BatchResolve(ctx, args))
	},
}

func init() {
	rootCmd.AddCommand(resolveCmd)
}

// buildEngine assembles the pipeline from local data. Missing data files
// degrade the affected tiers; without a configured geocoder endpoint the
// pipeline runs on internal resolution only.
func buildEngine(ctx context.Context) *engine.Engine {
	store := refindex.Load(ctx, cfg.Data.Artifact, cfg.Data.Dataset, region())
	bounds := boundary.Load(cfg.Data.Boundaries, cfg.Data.BoundaryNameField)
	// The CLI ships no query encoder; embed.Load warns and disables the
	// semantic tier if a corpus is configured anyway.
	corpus := embed.Load(cfg.Data.EmbeddingCorpus, nil)

	res := resolver.New(store,
		resolver.WithEmbeddings(corpus),
		resolver.WithTopK(cfg.Resolver.EmbeddingTopK),
	)

	var geocoder geocode.Client
	if cfg.Geocoder.BaseURL != "" {
		geocoder = geocode.NewClient(cfg.Geocoder.BaseURL,
			geocode.WithUserAgent(cfg.Geocoder.UserAgent),
			geocode.WithRateLimit(cfg.Geocoder.RateLimitPerSec),
			geocode.WithCacheTTL(time.Duration(cfg.Geocoder.CacheTTLHours)*time.Hour),
		)
	}

	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = cfg.Heal.RetryAttempts

	healer := heal.New(nil, geocoder, res,
		heal.WithStrategyTimeout(time.Duration(cfg.Heal.StrategyTimeoutSecs)*time.Second),
		heal.WithRateLimit(rate.Limit(cfg.Heal.RateLimitPerSec), 1),
		heal.WithRetry(retry),
	)

	return engine.New(engine.Params{
		Resolver:         res,
		Validator:        validate.New(store, bounds),
		Scorer:           quality.New(store),
		Geocoder:         geocoder,
		Healer:           healer,
		BatchConcurrency: cfg.Batch.Concurrency,
	})
}

func region() refindex.Region {
	return refindex.Region{
		MinLat: cfg.Resolver.Region.MinLat,
		MaxLat: cfg.Resolver.Region.MaxLat,
		MinLon: cfg.Resolver.Region.MinLon,
		MaxLon: cfg.Resolver.Region.MaxLon,
	}
}
