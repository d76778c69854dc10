package vol

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/optimize"
)

// garchParams unpacks the optimizer's raw parameter vector [omega, alpha, beta].
type garchParams struct {
	omega, alpha, beta float64
}

// garchEstimate fits a GARCH(1,1) model by MLE via Nelder-Mead with
// cfg.NelderMeadRestarts random restarts, picking the best log-likelihood
// (§4.3 methods 2 and 3). studentT selects Student-t innovations (the
// default, method 3) over Gaussian (method 2).
func garchEstimate(returns []float64, avgDtSeconds float64, studentT bool, cfg Config) Result {
	demeaned := demean(returns)
	sampleVar := varianceOf(demeaned)
	if sampleVar <= 0 {
		return Result{Kind: KindPoorFit, Diagnostics: "zero sample variance, cannot seed GARCH recursion"}
	}

	nu := cfg.StudentTNu
	if nu <= 2 {
		nu = 5
	}

	negLL := func(x []float64) float64 {
		p := garchParams{omega: x[0], alpha: x[1], beta: x[2]}
		if !validParams(p) {
			return math.Inf(1)
		}
		ll, ok := logLikelihood(demeaned, p, sampleVar, studentT, nu)
		if !ok {
			return math.Inf(1)
		}
		return -ll
	}

	restarts := cfg.NelderMeadRestarts
	if restarts <= 0 {
		restarts = 3
	}
	maxIter := cfg.MaxIterations
	if maxIter <= 0 {
		maxIter = 500
	}

	rng := rand.New(rand.NewSource(1))
	var bestParams garchParams
	bestNegLL := math.Inf(1)
	found := false

	for i := 0; i < restarts; i++ {
		x0 := []float64{
			sampleVar * (0.05 + 0.1*rng.Float64()),
			0.05 + 0.15*rng.Float64(),
			0.6 + 0.2*rng.Float64(),
		}

		problem := optimize.Problem{Func: negLL}
		result, err := optimize.Minimize(problem, x0, &optimize.Settings{
			MajorIterations: maxIter,
		}, &optimize.NelderMead{})
		if err != nil || result == nil {
			continue
		}
		if result.F < bestNegLL {
			p := garchParams{omega: result.X[0], alpha: result.X[1], beta: result.X[2]}
			if validParams(p) {
				bestNegLL = result.F
				bestParams = p
				found = true
			}
		}
	}

	if !found {
		return Result{Kind: KindPoorFit, Diagnostics: "no restart converged to valid GARCH parameters"}
	}

	sigma2 := oneStepAheadVariance(demeaned, bestParams, sampleVar)
	if sigma2 <= 0 {
		return Result{Kind: KindPoorFit, Diagnostics: "non-positive one-step-ahead variance"}
	}
	if avgDtSeconds <= 0 {
		return Result{Kind: KindInsufficient, Diagnostics: "non-positive average sampling interval"}
	}
	sigmaPerSec := math.Sqrt(sigma2 / avgDtSeconds)
	if math.IsNaN(sigmaPerSec) || math.IsInf(sigmaPerSec, 0) {
		return Result{Kind: KindPoorFit, Diagnostics: "GARCH fit produced non-finite sigma"}
	}

	rSquared := pseudoRSquared(demeaned, bestParams, sampleVar)
	return Result{Kind: KindOK, Estimate: Estimate{Sigma: sigmaPerSec, RSquared: rSquared}}
}

func validParams(p garchParams) bool {
	if p.omega <= 0 || p.alpha < 0 || p.beta < 0 {
		return false
	}
	return p.alpha+p.beta < 1
}

// logLikelihood evaluates the GARCH(1,1) log-likelihood of demeaned returns
// under Gaussian or Student-t innovations, recursing sigma2_t = omega +
// alpha*eps_{t-1}^2 + beta*sigma2_{t-1} seeded at the sample variance.
func logLikelihood(eps []float64, p garchParams, sigma2_0 float64, studentT bool, nu float64) (float64, bool) {
	sigma2 := sigma2_0
	var ll float64

	for t := 0; t < len(eps); t++ {
		if sigma2 <= 0 || math.IsNaN(sigma2) {
			return 0, false
		}
		if studentT {
			// Scale so the t_nu innovation has variance sigma2: eps/s ~ t_nu
			// where s = sigma / sqrt(nu/(nu-2)).
			s2 := sigma2 * (nu - 2) / nu
			s := math.Sqrt(s2)
			z := eps[t] / s
			logDensity := lgamma((nu+1)/2) - lgamma(nu/2) - 0.5*math.Log(nu*math.Pi) -
				math.Log(s) - ((nu + 1) / 2 * math.Log(1+z*z/nu))
			ll += logDensity
		} else {
			logDensity := -0.5 * (math.Log(2*math.Pi*sigma2) + eps[t]*eps[t]/sigma2)
			ll += logDensity
		}

		sigma2 = p.omega + p.alpha*eps[t]*eps[t] + p.beta*sigma2
	}
	if math.IsNaN(ll) || math.IsInf(ll, 0) {
		return 0, false
	}
	return ll, true
}

func lgamma(x float64) float64 {
	v, _ := math.Lgamma(x)
	return v
}

func oneStepAheadVariance(eps []float64, p garchParams, sigma2_0 float64) float64 {
	sigma2 := sigma2_0
	for _, e := range eps {
		sigma2 = p.omega + p.alpha*e*e + p.beta*sigma2
	}
	return sigma2
}

// pseudoRSquared compares the fitted conditional variance path to a
// constant-variance benchmark, giving a rough diagnostic of fit quality
// (1 - SSR_garch/SSR_constant on squared residuals).
func pseudoRSquared(eps []float64, p garchParams, sigma2_0 float64) float64 {
	sigma2 := sigma2_0
	var ssrGarch, ssrConst float64
	for _, e := range eps {
		ssrGarch += (e*e - sigma2) * (e*e - sigma2)
		ssrConst += (e*e - sigma2_0) * (e*e - sigma2_0)
		sigma2 = p.omega + p.alpha*e*e + p.beta*sigma2
	}
	if ssrConst <= 0 {
		return 0
	}
	r2 := 1 - ssrGarch/ssrConst
	if r2 < 0 {
		return 0
	}
	if r2 > 1 {
		return 1
	}
	return r2
}

func demean(xs []float64) []float64 {
	mean := meanOf(xs)
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = x - mean
	}
	return out
}

func varianceOf(xs []float64) float64 {
	mean := meanOf(xs)
	var sumSq float64
	for _, x := range xs {
		d := x - mean
		sumSq += d * d
	}
	if len(xs) < 2 {
		return 0
	}
	return sumSq / float64(len(xs)-1)
}
