// Package engine wires the resolution pipeline end to end: clean, resolve,
// cross-validate against the external geocoder, score, fuse, detect
// anomalies, and heal flagged results. Output is plain structured data; no
// transport lives here.
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/geofuse/geofuse/internal/anomaly"
	"github.com/geofuse/geofuse/internal/fuse"
	"github.com/geofuse/geofuse/internal/heal"
	"github.com/geofuse/geofuse/internal/model"
	"github.com/geofuse/geofuse/internal/quality"
	"github.com/geofuse/geofuse/internal/resolver"
	"github.com/geofuse/geofuse/internal/validate"
)

// Report is the full pipeline output for one address.
type Report struct {
	TraceID        string           `json:"trace_id"`
	RawAddress     string           `json:"raw_address"`
	CleanedAddress string           `json:"cleaned_address"`
	Components     model.Components `json:"components"`

	Resolved   *model.Candidate  `json:"resolved,omitempty"`
	Candidates []model.Candidate `json:"candidates,omitempty"`
	External   *model.Candidate  `json:"external,omitempty"`

	Quality     quality.Assessment `json:"quality"`
	Consistency validate.Report    `json:"consistency"`
	Fused       fuse.Fused         `json:"fused"`
	Anomaly     anomaly.Report     `json:"anomaly"`
	Healing     *heal.Result       `json:"healing,omitempty"`

	LatencyMS float64 `json:"latency_ms"`
}

// Params collects the engine's collaborators. Cleaner, Geocoder, and Healer
// are optional; a missing collaborator degrades its stage rather than
// failing the pipeline.
type Params struct {
	Resolver  *resolver.Resolver
	Validator *validate.Validator
	Scorer    *quality.Scorer
	Cleaner   heal.Cleaner
	Geocoder  heal.Geocoder
	Healer    *heal.Orchestrator

	// BatchConcurrency bounds BatchResolve parallelism. Default: 4.
	BatchConcurrency int
}

// Engine runs the pipeline. Safe for concurrent use; all state is immutable
// after New.
type Engine struct {
	p Params
}

// New builds an Engine from its collaborators.
func New(p Params) *Engine {
	if p.BatchConcurrency <= 0 {
		p.BatchConcurrency = 4
	}
	return &Engine{p: p}
}

// Resolve runs one address through the full pipeline.
func (e *Engine) Resolve(ctx context.Context, raw string) Report {
	start := time.Now()
	rep := Report{
		TraceID:    uuid.NewString(),
		RawAddress: raw,
	}

	rep.CleanedAddress, rep.Components = e.cleanInput(ctx, raw)

	rep.Quality = e.p.Scorer.Assess(rep.CleanedAddress)
	rep.Components = mergeComponents(rep.Components, rep.Quality.Components)

	outcome, err := e.p.Resolver.Resolve(ctx, rep.CleanedAddress, rep.Components)
	if err != nil {
		zap.L().Warn("engine: resolution degraded",
			zap.String("trace_id", rep.TraceID), zap.Error(err))
	}
	rep.Resolved = outcome.Best
	rep.Candidates = outcome.Candidates

	rep.External = e.externalGeocode(ctx, rep.TraceID, rep.CleanedAddress)

	rep.Consistency = e.p.Validator.Validate(rep.Resolved, rep.External, rep.Components)

	extConf := 0.0
	if rep.External != nil {
		extConf = rep.External.Confidence
	}
	rep.Fused = fuse.Fuse(rep.Quality.Score, outcome.Confidence, extConf, rep.Consistency.MismatchKM)

	rep.LatencyMS = float64(time.Since(start).Microseconds()) / 1000

	rep.Anomaly = anomaly.Detect(anomaly.Signals{
		FusedConfidence:    rep.Fused.Value,
		DataQuality:        rep.Quality.Score,
		ExternalConfidence: extConf,
		MismatchKM:         rep.Consistency.MismatchKM,
		PostalCodeMismatch: rep.Consistency.PostalCodeMismatch,
		LatencyMS:          rep.LatencyMS,
	})

	if rep.Anomaly.Flagged && e.p.Healer != nil {
		healing := e.p.Healer.Heal(ctx, raw, rep.CleanedAddress, rep.Resolved, rep.External, rep.Anomaly.Reasons)
		rep.Healing = &healing
	}

	zap.L().Info("engine: resolved address",
		zap.String("trace_id", rep.TraceID),
		zap.Float64("fused_confidence", rep.Fused.Value),
		zap.Bool("flagged", rep.Anomaly.Flagged),
		zap.Float64("latency_ms", rep.LatencyMS),
	)
	return rep
}

// BatchResolve resolves addresses with bounded concurrency, preserving input
// order in the output.
func (e *Engine) BatchResolve(ctx context.Context, addresses []string) []Report {
	reports := make([]Report, len(addresses))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.p.BatchConcurrency)
	for i, addr := range addresses {
		i, addr := i, addr
		g.Go(func() error {
			reports[i] = e.Resolve(gctx, addr)
			return nil
		})
	}
	_ = g.Wait()
	return reports
}

// cleanInput runs the cleaning collaborator when one is configured. A failed
// or absent cleaner degrades to the raw text; component extraction then
// falls to the quality scorer.
func (e *Engine) cleanInput(ctx context.Context, raw string) (string, model.Components) {
	if e.p.Cleaner == nil {
		return raw, model.Components{}
	}
	cleaned, err := e.p.Cleaner.Clean(ctx, raw, false)
	if err != nil || cleaned.Text == "" {
		if err != nil {
			zap.L().Warn("engine: cleaning collaborator failed, using raw text", zap.Error(err))
		}
		return raw, model.Components{}
	}
	return cleaned.Text, cleaned.Components
}

// externalGeocode queries the external collaborator; failure means no
// external candidate, not a pipeline error.
func (e *Engine) externalGeocode(ctx context.Context, traceID, cleaned string) *model.Candidate {
	if e.p.Geocoder == nil {
		return nil
	}
	c, err := e.p.Geocoder.Geocode(ctx, cleaned)
	if err != nil {
		zap.L().Warn("engine: external geocoder failed",
			zap.String("trace_id", traceID), zap.Error(err))
		return nil
	}
	return c
}

// mergeComponents fills blanks in the cleaner-supplied components from the
// quality scorer's extraction. Cleaner values win.
func mergeComponents(primary, fallback model.Components) model.Components {
	if primary.PostalCode == "" {
		primary.PostalCode = fallback.PostalCode
	}
	if primary.City == "" {
		primary.City = fallback.City
	}
	if primary.State == "" {
		primary.State = fallback.State
	}
	return primary
}
