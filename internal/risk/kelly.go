package risk

// KellyFraction returns the fraction of bankroll suggested by the Kelly
// criterion for a binary payout, scaled down by factor (half-Kelly at 0.5).
// Returns 0 when the edge is non-positive.
func KellyFraction(winProb, payoutRatio, factor float64) float64 {
	if payoutRatio <= 1 || winProb <= 0 || winProb >= 1 {
		return 0
	}
	b := payoutRatio - 1
	f := (winProb*b - (1 - winProb)) / b
	if f <= 0 {
		return 0
	}
	return f * factor
}
