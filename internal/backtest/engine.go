package backtest

import (
	"math/rand"

	"github.com/google/uuid"

	"parity/internal/config"
	"parity/internal/logger"
	"parity/internal/market"
	"parity/internal/risk"
	"parity/internal/strategy"
)

// Trade is one simulated contract outcome.
type Trade struct {
	TickIndex  int
	Side       strategy.Side
	Stake      float64
	Win        bool
	Profit     float64
	Balance    float64
	Confidence float64
	Reason     string
}

// Result is one backtest run, immutable once produced.
type Result struct {
	RunID              string
	TotalTrades        int
	Wins               int
	Losses             int
	WinRate            float64
	ConfidenceLevel    float64
	ConfidenceInterval [2]float64
	ExpectedValue      float64 // per-trade EV normalized by average stake
	TotalPnL           float64
	FinalBalance       float64
	ROI                float64
	SharpeRatio        float64
	MaxDrawdown        float64
	AvgStake           float64
	KellyFraction      float64 // full-Kelly optimum at the observed win rate
	HasEdge            bool
	EquityCurve        []float64
	Trades             []Trade
}

// Validation is the go/no-go verdict consumed once before live execution.
type Validation struct {
	Validated               bool
	Recommendation          string // "LIVE_DEMO" or "PAPER_ONLY"
	TotalTrades             int
	WinRate                 float64
	ConfidenceInterval      [2]float64
	ExpectedValue           float64
	MinSamplesMet           bool
	StatisticallySignificant bool
	PositiveEV              bool
	Result                  Result
}

const (
	RecommendLive      = "LIVE_DEMO"
	RecommendPaperOnly = "PAPER_ONLY"
)

// Engine replays synthetic or recorded ticks through a strategy plus the
// live risk clamp pipeline and measures whether an edge exists.
type Engine struct {
	cfg    config.BacktestConfig
	limits risk.Limits
	symbol string
	ticks  []market.Tick
	rng    *rand.Rand
}

func NewEngine(cfg config.BacktestConfig, limits risk.Limits, symbol string) *Engine {
	return &Engine{
		cfg:    cfg,
		limits: limits,
		symbol: symbol,
		rng:    rand.New(rand.NewSource(rand.Int63())),
	}
}

// Run replays the tick series in order. Outcomes come from the next tick's
// actual parity, never a coin flip, and stakes pass through the same clamp
// pipeline live trading uses. Stop gates are deliberately not applied here:
// validation needs the full sample, not an early halt.
func (e *Engine) Run(strat strategy.Strategy, payoutRatio, startingBalance float64) Result {
	logger.Infof("starting backtest simulation")

	if len(e.ticks) == 0 {
		e.GenerateSyntheticTicks(e.cfg.MinSamples)
	}

	balance := startingBalance
	var trades []Trade
	equity := []float64{balance}
	warmup := strat.Statistics().LookbackWindow

	for i, tick := range e.ticks {
		strat.AddTick(tick)
		if i < warmup {
			continue
		}

		decision := strat.Analyze(balance, payoutRatio)
		if decision.Skip() {
			continue
		}
		if i+1 >= len(e.ticks) {
			break
		}

		stake := risk.ClampStake(e.limits, balance, decision.StakeFraction)
		if stake > balance {
			continue
		}

		win := decision.Wins(e.ticks[i+1])
		profit := -stake
		if win {
			profit = stake * (payoutRatio - 1)
		}
		balance += profit

		trades = append(trades, Trade{
			TickIndex:  i,
			Side:       decision.Side,
			Stake:      stake,
			Win:        win,
			Profit:     profit,
			Balance:    balance,
			Confidence: decision.Confidence,
			Reason:     decision.Reason,
		})
		equity = append(equity, balance)
	}

	result := e.computeMetrics(trades, equity, startingBalance, payoutRatio)
	logger.Infof("backtest completed: %d trades, final balance $%.2f", len(trades), balance)
	return result
}

func (e *Engine) computeMetrics(trades []Trade, equity []float64, startingBalance, payoutRatio float64) Result {
	result := Result{
		RunID:              uuid.NewString(),
		ConfidenceLevel:    e.cfg.ConfidenceLevel,
		EquityCurve:        equity,
		Trades:             trades,
		FinalBalance:       startingBalance,
		ConfidenceInterval: [2]float64{0, 0},
		ExpectedValue:      payoutRatio - 1.0,
	}
	if len(trades) == 0 {
		return result
	}

	wins := 0
	totalPnL, totalStake := 0.0, 0.0
	winSum, lossSum := 0.0, 0.0
	for _, t := range trades {
		if t.Win {
			wins++
			winSum += t.Profit
		} else {
			lossSum += t.Profit
		}
		totalPnL += t.Profit
		totalStake += t.Stake
	}

	n := len(trades)
	winRate := float64(wins) / float64(n)
	avgStake := totalStake / float64(n)

	avgWin, avgLoss := 0.0, 0.0
	if wins > 0 {
		avgWin = winSum / float64(wins)
	}
	if n-wins > 0 {
		avgLoss = lossSum / float64(n-wins)
	}
	ev := winRate*avgWin + (1-winRate)*avgLoss
	normalizedEV := 0.0
	if avgStake > 0 {
		normalizedEV = ev / avgStake
	}

	low, high := wilsonInterval(winRate, n, e.cfg.ConfidenceLevel)

	result.TotalTrades = n
	result.Wins = wins
	result.Losses = n - wins
	result.WinRate = winRate
	result.ConfidenceInterval = [2]float64{low, high}
	result.ExpectedValue = normalizedEV
	result.TotalPnL = totalPnL
	result.FinalBalance = equity[len(equity)-1]
	result.ROI = (result.FinalBalance - startingBalance) / startingBalance
	result.SharpeRatio = sharpeRatio(equity)
	result.MaxDrawdown = maxDrawdown(equity)
	result.AvgStake = avgStake
	result.KellyFraction = risk.KellyFraction(winRate, payoutRatio, 1.0)
	result.HasEdge = low > 0.51 && normalizedEV > e.cfg.MinEdgeThreshold
	return result
}

// ValidateEdge runs a fresh backtest and applies the strict criteria: sample
// count, normalized EV, and a Wilson lower bound above 0.51 must all pass
// before live execution is recommended.
func (e *Engine) ValidateEdge(strat strategy.Strategy) (bool, Validation) {
	logger.Infof("validating strategy edge through backtesting")

	result := e.Run(strat, e.cfg.PayoutRatio, e.cfg.StartingBalance)

	minSamplesMet := result.TotalTrades >= e.cfg.MinSamples
	significant := result.ConfidenceInterval[0] > 0.51
	positiveEV := result.ExpectedValue > e.cfg.MinEdgeThreshold
	hasEdge := minSamplesMet && result.HasEdge && positiveEV && significant

	validation := Validation{
		Validated:               hasEdge,
		TotalTrades:             result.TotalTrades,
		WinRate:                 result.WinRate,
		ConfidenceInterval:      result.ConfidenceInterval,
		ExpectedValue:           result.ExpectedValue,
		MinSamplesMet:           minSamplesMet,
		StatisticallySignificant: significant,
		PositiveEV:              positiveEV,
		Result:                  result,
	}
	if hasEdge {
		validation.Recommendation = RecommendLive
		logger.Infof("strategy validation passed, edge detected")
	} else {
		validation.Recommendation = RecommendPaperOnly
		logger.Warnf("strategy validation failed, no significant edge")
	}
	return hasEdge, validation
}
