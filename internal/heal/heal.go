// Package heal recovers from flagged resolutions. Each anomaly reason maps to
// one recovery strategy; strategies run independently with their own timeout,
// and every attempt lands in an ordered, auditable action log whether or not
// it helped.
package heal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/geofuse/geofuse/internal/anomaly"
	"github.com/geofuse/geofuse/internal/model"
	"github.com/geofuse/geofuse/internal/resilience"
)

// defaultStrategyTimeout bounds one strategy's collaborator calls.
const defaultStrategyTimeout = 10 * time.Second

// defaultRateLimit caps collaborator calls across concurrent healings.
const defaultRateLimit = rate.Limit(10)

// Action is the audit record of one strategy invocation.
type Action struct {
	Strategy  string             `json:"strategy"`
	Reason    anomaly.ReasonCode `json:"reason"`
	Succeeded bool               `json:"succeeded"`
	Improved  bool               `json:"improved"`
	Notes     string             `json:"notes,omitempty"`

	// Result and Confidence are set only when the strategy improved on the
	// original.
	Result     *model.Candidate `json:"result,omitempty"`
	Confidence float64          `json:"confidence,omitempty"`
}

// Result is the outcome of one healing run.
type Result struct {
	Healed          bool             `json:"healed"`
	Actions         []Action         `json:"actions"`
	FinalResult     *model.Candidate `json:"final_result,omitempty"`
	FinalConfidence float64          `json:"final_confidence"`
	Summary         string           `json:"summary"`
}

// Orchestrator dispatches recovery strategies against the external
// collaborators. Collaborator calls go through a shared rate limiter and the
// retry policy; a failed or timed-out strategy becomes an unsuccessful
// action, never an error.
type Orchestrator struct {
	cleaner  Cleaner
	geocoder Geocoder
	resolver Resolver

	limiter *rate.Limiter
	retry   resilience.RetryConfig
	timeout time.Duration

	registry []strategy
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithStrategyTimeout sets the per-strategy timeout.
func WithStrategyTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithRateLimit sets the collaborator call rate limit.
func WithRateLimit(l rate.Limit, burst int) Option {
	return func(o *Orchestrator) { o.limiter = rate.NewLimiter(l, burst) }
}

// WithRetry overrides the collaborator retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(o *Orchestrator) { o.retry = cfg }
}

// New builds an Orchestrator over the collaborators and the internal
// resolver. The strategy registry order is fixed and determines the action
// log order.
func New(cleaner Cleaner, geocoder Geocoder, res Resolver, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cleaner:  cleaner,
		geocoder: geocoder,
		resolver: res,
		limiter:  rate.NewLimiter(defaultRateLimit, int(defaultRateLimit)),
		retry:    resilience.DefaultRetryConfig(),
		timeout:  defaultStrategyTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.registry = []strategy{
		{id: StrategyStrictReclean, reason: anomaly.ReasonLowIntegrity, run: o.strictReclean},
		{id: StrategyReverseReconcile, reason: anomaly.ReasonResolverMismatch, run: o.reverseReconcile},
		{id: StrategyPostalFallback, reason: anomaly.ReasonPostalCodeMismatch, run: o.postalFallback},
	}
	return o
}

// Heal runs every strategy whose reason was reported. Strategies execute
// concurrently but the action log keeps the fixed registry order. With no
// applicable reasons the result is not-healed with an empty action log.
func (o *Orchestrator) Heal(ctx context.Context, raw, cleaned string, a, b *model.Candidate, reasons []anomaly.ReasonCode) Result {
	in := input{raw: raw, cleaned: cleaned, a: a, b: b}

	selected := make([]strategy, 0, len(o.registry))
	for _, s := range o.registry {
		if hasReason(reasons, s.reason) {
			selected = append(selected, s)
		}
	}

	// Strategies are independent: no shared group context, so one failing or
	// timing out cannot cancel its siblings.
	actions := make([]Action, len(selected))
	var g errgroup.Group
	for i, s := range selected {
		i, s := i, s
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(ctx, o.timeout)
			defer cancel()
			actions[i] = runStrategy(sctx, s, in)
			return nil
		})
	}
	_ = g.Wait()

	res := Result{Actions: actions}
	for _, act := range actions {
		if act.Succeeded && act.Improved {
			res.Healed = true
			res.FinalResult = act.Result
			res.FinalConfidence = act.Confidence
		}
	}
	res.Summary = summarize(reasons, actions, res.Healed)

	zap.L().Info("heal: completed",
		zap.Int("reasons", len(reasons)),
		zap.Int("strategies", len(actions)),
		zap.Bool("healed", res.Healed),
	)
	return res
}

// runStrategy isolates one strategy: a panic or late timeout is recorded in
// the action, never propagated.
func runStrategy(ctx context.Context, s strategy, in input) (act Action) {
	defer func() {
		if r := recover(); r != nil {
			act = Action{
				Strategy: s.id,
				Reason:   s.reason,
				Notes:    fmt.Sprintf("strategy panicked: %v", r),
			}
			zap.L().Error("heal: strategy panicked", zap.String("strategy", s.id), zap.Any("panic", r))
		}
	}()
	return s.run(ctx, in)
}

func hasReason(reasons []anomaly.ReasonCode, want anomaly.ReasonCode) bool {
	for _, r := range reasons {
		if r == want {
			return true
		}
	}
	return false
}

// clean calls the cleaning collaborator under the rate limit and retry policy.
func (o *Orchestrator) clean(ctx context.Context, raw string, strict bool) (Cleaned, error) {
	if o.cleaner == nil {
		return Cleaned{}, fmt.Errorf("heal: no cleaner configured")
	}
	if err := o.limiter.Wait(ctx); err != nil {
		return Cleaned{}, err
	}
	return resilience.DoVal(ctx, o.retry, func(ctx context.Context) (Cleaned, error) {
		return o.cleaner.Clean(ctx, raw, strict)
	})
}

func (o *Orchestrator) geocode(ctx context.Context, query string) (*model.Candidate, error) {
	if o.geocoder == nil {
		return nil, fmt.Errorf("heal: no geocoder configured")
	}
	if err := o.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return resilience.DoVal(ctx, o.retry, func(ctx context.Context) (*model.Candidate, error) {
		return o.geocoder.Geocode(ctx, query)
	})
}

func (o *Orchestrator) reverseGeocode(ctx context.Context, lat, lon float64) (*model.Candidate, error) {
	if o.geocoder == nil {
		return nil, fmt.Errorf("heal: no geocoder configured")
	}
	if err := o.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return resilience.DoVal(ctx, o.retry, func(ctx context.Context) (*model.Candidate, error) {
		return o.geocoder.ReverseGeocode(ctx, lat, lon)
	})
}

// summarize renders the deterministic audit trail: every reason, every
// attempted strategy with its status, and the final verdict.
func summarize(reasons []anomaly.ReasonCode, actions []Action, healed bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "healing report: %d anomaly reason(s)\n", len(reasons))
	if len(reasons) > 0 {
		names := make([]string, len(reasons))
		for i, r := range reasons {
			names[i] = string(r)
		}
		fmt.Fprintf(&b, "reasons: %s\n", strings.Join(names, ", "))
	}
	fmt.Fprintf(&b, "strategies attempted: %d\n", len(actions))
	for i, act := range actions {
		status := "FAILED"
		if act.Succeeded {
			status = "SUCCESS"
		}
		fmt.Fprintf(&b, "action %d: %s (for %s) - %s\n", i+1, act.Strategy, act.Reason, status)
		if act.Notes != "" {
			fmt.Fprintf(&b, "  note: %s\n", act.Notes)
		}
	}
	if healed {
		b.WriteString("final status: HEALED")
	} else {
		b.WriteString("final status: NOT HEALED - manual review recommended")
	}
	return b.String()
}
