package backtest

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"parity/internal/logger"
	"parity/internal/market"
)

// GenerateSyntheticTicks produces a bounded random walk with independent
// small Gaussian noise, floored at 50. Quotes are fixed to five decimal
// places so the derived last digit matches the broker's rendering.
func (e *Engine) GenerateSyntheticTicks(count int) []market.Tick {
	logger.Infof("generating %d synthetic ticks for backtesting", count)

	ticks := make([]market.Tick, 0, count)
	base := 100.0
	epoch := time.Now().Unix()

	for i := 0; i < count; i++ {
		base += e.rng.NormFloat64() * 0.001
		if base < 50.0 {
			base = 50.0
		}
		price := base + e.rng.NormFloat64()*0.01

		quote, err := decimal.NewFromString(fmt.Sprintf("%.5f", price))
		if err != nil {
			continue
		}
		ticks = append(ticks, market.NewTick(e.symbol, quote, epoch+int64(i), time.Unix(epoch+int64(i), 0)))
	}

	e.ticks = ticks
	return ticks
}

// SetTicks replaces the tick series, for replaying a known sequence.
func (e *Engine) SetTicks(ticks []market.Tick) {
	e.ticks = ticks
}

// SetRand overrides the noise source; test hook.
func (e *Engine) SetRand(rng *rand.Rand) {
	if rng != nil {
		e.rng = rng
	}
}
