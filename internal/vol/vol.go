// Package vol implements the VolatilityEstimator (§4.3): it produces sigma,
// the one-second standard deviation of log returns of mid, by one of four
// selectable methods. The estimator is pure and stateless between calls —
// every call takes its own window of samples and returns a tagged result
// rather than mutating shared state (§9 Design Note: tagged result variants
// replace exception-style fallback control flow).
package vol

import (
	"context"
	"math"

	"perp-mm/pkg/types"
)

// Method selects which estimator Estimate dispatches to.
type Method string

const (
	MethodSimple   Method = "simple"
	MethodGARCH    Method = "garch"
	MethodGARCHT   Method = "garch_t"
	MethodExternal Method = "external"
)

// Kind tags the outcome of an estimation attempt.
type Kind string

const (
	KindOK           Kind = "OK"
	KindInsufficient Kind = "INSUFFICIENT"
	KindPoorFit      Kind = "POOR_FIT"
	KindTimeout      Kind = "TIMEOUT"
)

// Estimate is a successful sigma estimate with fit diagnostics.
type Estimate struct {
	Sigma    float64 // per-second std dev of log returns
	RSquared float64 // 0 for methods without a natural R^2 (simple, external)
}

// Result is the tagged outcome of one Estimate call (§9).
type Result struct {
	Kind        Kind
	Estimate    Estimate
	Diagnostics string
}

// Config tunes the GARCH-t fit and external-oracle fallback.
type Config struct {
	Method             Method
	StudentTNu         float64
	NelderMeadRestarts int
	MaxIterations      int
	MinSamples         int
}

// DefaultConfig mirrors the engine's configuration defaults.
func DefaultConfig() Config {
	return Config{
		Method:             MethodGARCHT,
		StudentTNu:         5,
		NelderMeadRestarts: 3,
		MaxIterations:      500,
		MinSamples:         30,
	}
}

// Estimator computes sigma from a window of top-of-book samples.
type Estimator struct {
	cfg Config
}

// New creates an Estimator with the given configuration.
func New(cfg Config) *Estimator {
	if cfg.MinSamples == 0 {
		cfg.MinSamples = 30
	}
	return &Estimator{cfg: cfg}
}

// Estimate dispatches to the configured method. samples must be in
// ascending timestamp order.
func (e *Estimator) Estimate(ctx context.Context, samples []types.TopOfBookSample) Result {
	if len(samples) < e.cfg.MinSamples {
		return Result{Kind: KindInsufficient, Diagnostics: "fewer than MinSamples top-of-book samples in window"}
	}

	returns, avgDt, err := logReturns(samples)
	if err != nil {
		return Result{Kind: KindInsufficient, Diagnostics: err.Error()}
	}
	if len(returns) < 2 {
		return Result{Kind: KindInsufficient, Diagnostics: "fewer than 2 log returns"}
	}

	switch e.cfg.Method {
	case MethodSimple:
		return simpleEstimate(returns, avgDt)
	case MethodGARCH:
		return garchEstimate(returns, avgDt, false, e.cfg)
	case MethodExternal:
		res := externalEstimate(ctx, returns)
		if res.Kind == KindTimeout {
			return garchEstimate(returns, avgDt, true, e.cfg)
		}
		return res
	case MethodGARCHT:
		fallthrough
	default:
		return garchEstimate(returns, avgDt, true, e.cfg)
	}
}

// logReturns computes r_i = ln(mid_i/mid_i-1) and the mean sampling
// interval in seconds, needed to scale sample-interval variance to
// per-second variance.
func logReturns(samples []types.TopOfBookSample) (returns []float64, avgDtSeconds float64, err error) {
	returns = make([]float64, 0, len(samples)-1)
	var totalDt float64
	count := 0
	for i := 1; i < len(samples); i++ {
		prev, _ := samples[i-1].Mid.Float64()
		cur, _ := samples[i].Mid.Float64()
		if prev <= 0 || cur <= 0 {
			continue
		}
		dtMs := samples[i].TSMillis - samples[i-1].TSMillis
		if dtMs <= 0 {
			continue
		}
		returns = append(returns, math.Log(cur/prev))
		totalDt += float64(dtMs) / 1000.0
		count++
	}
	if count == 0 {
		return nil, 0, errNoValidIntervals
	}
	return returns, totalDt / float64(count), nil
}

var errNoValidIntervals = &noIntervalsError{}

type noIntervalsError struct{}

func (*noIntervalsError) Error() string { return "vol: no valid sampling intervals" }

func simpleEstimate(returns []float64, avgDtSeconds float64) Result {
	mean := meanOf(returns)
	var sumSq float64
	for _, r := range returns {
		d := r - mean
		sumSq += d * d
	}
	variance := sumSq / float64(len(returns)-1)
	if avgDtSeconds <= 0 {
		return Result{Kind: KindInsufficient, Diagnostics: "non-positive average sampling interval"}
	}
	sigmaPerSec := math.Sqrt(variance / avgDtSeconds)
	if math.IsNaN(sigmaPerSec) || math.IsInf(sigmaPerSec, 0) {
		return Result{Kind: KindPoorFit, Diagnostics: "simple estimator produced non-finite sigma"}
	}
	return Result{Kind: KindOK, Estimate: Estimate{Sigma: sigmaPerSec}}
}

func meanOf(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
