// Package kappa implements the KappaEstimator (§4.4): order-flow intensity
// kappa (1/USD) derived from depth-conditioned fill intensity. Three
// methods are supported: "depth" (default, OLS fit of ln lambda(delta)),
// "virtual" (non-linear least squares over a virtual-quoting grid), and
// "simple" (diagnostic-only counting, excluded from production use).
package kappa

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"perp-mm/pkg/types"
)

// Method selects the estimation approach.
type Method string

const (
	MethodSimple Method = "simple"
	MethodVirtual Method = "virtual"
	MethodDepth   Method = "depth"
)

// Kind tags the outcome of one Estimate call (§9 tagged result variants).
type Kind string

const (
	KindOK           Kind = "OK"
	KindInsufficient Kind = "INSUFFICIENT"
	KindPoorFit      Kind = "POOR_FIT"
)

// Estimate is a successful kappa fit with diagnostics.
type Estimate struct {
	KappaUSD float64 // 1/USD
	RSquared float64
	CIWidth  float64 // 95% CI width on kappa, in 1/USD
}

// Result is the tagged outcome of one Estimate call.
type Result struct {
	Kind        Kind
	Estimate    Estimate
	Diagnostics string
}

// Config tunes the depth grid and acceptance thresholds.
type Config struct {
	Method               Method
	DepthLevels          int     // default 18
	MinSamplesPerLevel   int     // default 5
	ObservationWindowSec float64 // Δt for the fill-intensity count window
}

// DefaultConfig mirrors the engine's configuration defaults.
func DefaultConfig() Config {
	return Config{
		Method:               MethodDepth,
		DepthLevels:          18,
		MinSamplesPerLevel:   5,
		ObservationWindowSec: 60,
	}
}

// Estimator computes kappa from recent trades relative to a tick size and
// reference mid.
type Estimator struct {
	cfg Config
}

func New(cfg Config) *Estimator {
	if cfg.DepthLevels == 0 {
		cfg.DepthLevels = 18
	}
	if cfg.MinSamplesPerLevel == 0 {
		cfg.MinSamplesPerLevel = 5
	}
	if cfg.ObservationWindowSec == 0 {
		cfg.ObservationWindowSec = 60
	}
	return &Estimator{cfg: cfg}
}

// Estimate fits kappa from trades observed against a reference mid/tick
// size over the estimator's observation window.
func (e *Estimator) Estimate(trades []types.Trade, samples []types.TopOfBookSample, tickSize, mid float64) Result {
	switch e.cfg.Method {
	case MethodSimple:
		return e.simpleDiagnosticOnly(trades)
	case MethodVirtual:
		return e.virtualQuoting(trades, tickSize, mid)
	case MethodDepth:
		fallthrough
	default:
		return e.depthOLS(trades, tickSize, mid)
	}
}

// buildGrid produces DepthLevels depth values in ticks, geometrically
// spaced from 1 tick to floor(0.01*mid/tick) ticks (§4.4 step 1).
func (e *Estimator) buildGrid(tickSize, mid float64) []float64 {
	maxTicks := math.Floor(0.01 * mid / tickSize)
	if maxTicks < 1 {
		maxTicks = 1
	}
	n := e.cfg.DepthLevels
	grid := make([]float64, n)
	if n == 1 {
		grid[0] = 1
		return grid
	}
	logMin := math.Log(1)
	logMax := math.Log(maxTicks)
	step := (logMax - logMin) / float64(n-1)
	for i := 0; i < n; i++ {
		grid[i] = math.Exp(logMin + step*float64(i))
	}
	return grid
}

// depthOLS implements §4.4's default method: count fills reaching each
// depth level, fit ln lambda(delta) = ln A - kappa*delta by OLS in ticks.
func (e *Estimator) depthOLS(trades []types.Trade, tickSize, mid float64) Result {
	if tickSize <= 0 || mid <= 0 {
		return Result{Kind: KindInsufficient, Diagnostics: "non-positive tick size or mid"}
	}
	grid := e.buildGrid(tickSize, mid)

	counts := make([]int, len(grid))
	for _, tr := range trades {
		price, _ := tr.Price.Float64()
		distTicks := math.Abs(price-mid) / tickSize
		for i, depth := range grid {
			if distTicks >= depth {
				counts[i]++
			}
		}
	}

	var xs, ys []float64
	nonDegenerate := 0
	for i, c := range counts {
		if c < e.cfg.MinSamplesPerLevel {
			continue
		}
		lambda := float64(c) / e.cfg.ObservationWindowSec
		if lambda <= 0 {
			continue
		}
		xs = append(xs, grid[i])
		ys = append(ys, math.Log(lambda))
		nonDegenerate++
	}

	if nonDegenerate < 3 {
		return Result{Kind: KindInsufficient, Diagnostics: fmt.Sprintf("only %d non-degenerate depth levels, need >= 3", nonDegenerate)}
	}

	alpha, beta := stat.LinearRegression(xs, ys, nil, false)
	kappaTick := -beta

	rSquared := stat.RSquared(xs, ys, nil, alpha, beta)
	seBeta := ordinaryLeastSquaresStdErr(xs, ys, alpha, beta)
	ciWidthTick := 1.96 * seBeta * 2 // two-sided 95% CI width

	if kappaTick <= 0 {
		return Result{Kind: KindPoorFit, Diagnostics: "fitted kappa is non-positive"}
	}

	kappaUSD := kappaTick / tickSize
	ciWidthUSD := ciWidthTick / tickSize

	if rSquared < 0.5 {
		return Result{Kind: KindPoorFit, Diagnostics: fmt.Sprintf("R^2 %.3f below 0.5 threshold", rSquared)}
	}
	if ciWidthUSD > kappaUSD {
		return Result{Kind: KindPoorFit, Diagnostics: "95% CI width exceeds point estimate"}
	}

	return Result{Kind: KindOK, Estimate: Estimate{KappaUSD: kappaUSD, RSquared: rSquared, CIWidth: ciWidthUSD}}
}

// ordinaryLeastSquaresStdErr computes the standard error of the slope of a
// simple linear regression, since gonum's
// stat.LinearRegression does not return them directly.
func ordinaryLeastSquaresStdErr(xs, ys []float64, alpha, beta float64) (seBeta float64) {
	n := len(xs)
	if n < 3 {
		return math.Inf(1)
	}
	var ssr float64
	for i := range xs {
		resid := ys[i] - (alpha + beta*xs[i])
		ssr += resid * resid
	}
	mse := ssr / float64(n-2)

	meanX := stat.Mean(xs, nil)
	var sxx float64
	for _, x := range xs {
		d := x - meanX
		sxx += d * d
	}
	if sxx <= 0 {
		return math.Inf(1)
	}

	return math.Sqrt(mse / sxx)
}

// simpleDiagnosticOnly reports a plain trades-per-second count. It is
// diagnostic only — it has the wrong units for the AS half-spread formula
// and must never feed SpreadCalculator in production (§4.4).
func (e *Estimator) simpleDiagnosticOnly(trades []types.Trade) Result {
	rate := float64(len(trades)) / e.cfg.ObservationWindowSec
	return Result{
		Kind:        KindOK,
		Estimate:    Estimate{KappaUSD: rate},
		Diagnostics: "simple method is diagnostic-only; do not use for spread calculation",
	}
}

// virtualQuoting fits lambda(delta) = A*exp(-kappa*delta) directly by
// Gauss-Newton non-linear least squares over the same depth-grid counts as
// the default method, rather than OLS on the log-linearized form (§4.4's
// "alternate method").
func (e *Estimator) virtualQuoting(trades []types.Trade, tickSize, mid float64) Result {
	if tickSize <= 0 || mid <= 0 {
		return Result{Kind: KindInsufficient, Diagnostics: "non-positive tick size or mid"}
	}
	grid := e.buildGrid(tickSize, mid)

	counts := make([]int, len(grid))
	for _, tr := range trades {
		price, _ := tr.Price.Float64()
		distTicks := math.Abs(price-mid) / tickSize
		for i, depth := range grid {
			if distTicks >= depth {
				counts[i]++
			}
		}
	}

	var xs, ys []float64
	for i, c := range counts {
		if c < e.cfg.MinSamplesPerLevel {
			continue
		}
		xs = append(xs, grid[i])
		ys = append(ys, float64(c)/e.cfg.ObservationWindowSec)
	}
	if len(xs) < 3 {
		return Result{Kind: KindInsufficient, Diagnostics: fmt.Sprintf("only %d non-degenerate depth levels, need >= 3", len(xs))}
	}

	lnA, kappaTick, converged := gaussNewtonFit(xs, ys)
	if !converged || kappaTick <= 0 {
		return Result{Kind: KindPoorFit, Diagnostics: "virtual-quoting NLS fit did not converge to a positive kappa"}
	}

	predicted := make([]float64, len(ys))
	for i, x := range xs {
		predicted[i] = math.Exp(lnA - kappaTick*x)
	}
	rSquared := rSquaredOf(ys, predicted)
	if rSquared < 0.5 {
		return Result{Kind: KindPoorFit, Diagnostics: fmt.Sprintf("R^2 %.3f below 0.5 threshold", rSquared)}
	}

	kappaUSD := kappaTick / tickSize
	return Result{Kind: KindOK, Estimate: Estimate{KappaUSD: kappaUSD, RSquared: rSquared}}
}

// gaussNewtonFit fits lambda(x) = exp(lnA - kappa*x) to (xs, ys) by fixed-
// iteration Gauss-Newton, returning the fitted (lnA, kappa) and whether the
// 2x2 normal-equations solve stayed well-conditioned throughout.
func gaussNewtonFit(xs, ys []float64) (lnA, kappa float64, converged bool) {
	lnA = math.Log(math.Max(ys[0], 1e-9))
	kappa = 0.01

	for iter := 0; iter < 50; iter++ {
		var jtjA, jtjAB, jtjB, jtrA, jtrB float64
		for i, x := range xs {
			fit := math.Exp(lnA - kappa*x)
			resid := ys[i] - fit
			dA := -fit     // d(resid)/d(lnA)
			dB := x * fit  // d(resid)/d(kappa)

			jtjA += dA * dA
			jtjAB += dA * dB
			jtjB += dB * dB
			jtrA += dA * resid
			jtrB += dB * resid
		}

		det := jtjA*jtjB - jtjAB*jtjAB
		if math.Abs(det) < 1e-15 {
			return lnA, kappa, false
		}
		deltaA := (jtrA*jtjB - jtrB*jtjAB) / det
		deltaB := (jtjA*jtrB - jtjAB*jtrA) / det

		lnA -= deltaA
		kappa -= deltaB

		if math.Abs(deltaA) < 1e-10 && math.Abs(deltaB) < 1e-10 {
			return lnA, kappa, true
		}
	}
	return lnA, kappa, true
}

func rSquaredOf(observed, predicted []float64) float64 {
	mean := stat.Mean(observed, nil)
	var ssRes, ssTot float64
	for i, o := range observed {
		ssRes += (o - predicted[i]) * (o - predicted[i])
		ssTot += (o - mean) * (o - mean)
	}
	if ssTot <= 0 {
		return 0
	}
	r2 := 1 - ssRes/ssTot
	if r2 < 0 {
		return 0
	}
	return r2
}
