package backtest

import "math"

// zScores are the two-sided critical values for the supported confidence
// levels. Config validation rejects anything else.
var zScores = map[float64]float64{
	0.90: 1.645,
	0.95: 1.96,
	0.99: 2.576,
}

// wilsonInterval is the closed-form Wilson score interval for a binomial
// proportion. Below 10 samples it returns the maximal interval: no
// conclusion can be drawn.
func wilsonInterval(winRate float64, n int, confidenceLevel float64) (low, high float64) {
	if n < 10 {
		return 0.0, 1.0
	}
	z, ok := zScores[confidenceLevel]
	if !ok {
		z = zScores[0.95]
	}

	nf := float64(n)
	p := winRate
	denom := 1 + z*z/nf
	center := (p + z*z/(2*nf)) / denom
	margin := z * math.Sqrt((p*(1-p)+z*z/(4*nf))/nf) / denom

	low = math.Max(0, center-margin)
	high = math.Min(1, center+margin)
	return low, high
}

// sharpeRatio is mean over stddev of per-step equity returns; zero when the
// returns have no variance.
func sharpeRatio(equity []float64) float64 {
	if len(equity) < 2 {
		return 0
	}
	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		if equity[i-1] == 0 {
			continue
		}
		returns = append(returns, (equity[i]-equity[i-1])/equity[i-1])
	}
	if len(returns) == 0 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns))
	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}
	return mean / std
}

// maxDrawdown is the largest peak-to-trough decline over the equity curve,
// as a fraction of the peak.
func maxDrawdown(equity []float64) float64 {
	peak, maxDD := 0.0, 0.0
	for _, v := range equity {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			if dd := (peak - v) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}
