package backtest

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"parity/internal/logger"
)

// WriteReport renders the equity curve of a run to a standalone HTML chart.
func WriteReport(result Result, path string) error {
	if len(result.EquityCurve) == 0 {
		return fmt.Errorf("no equity curve to report for run %s", result.RunID)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title: "Backtest Equity Curve",
			Subtitle: fmt.Sprintf("run %s | %d trades | win rate %.1f%% | max drawdown %.1f%%",
				result.RunID, result.TotalTrades, result.WinRate*100, result.MaxDrawdown*100),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "trade"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "balance", Scale: opts.Bool(true)}),
	)

	xAxis := make([]string, len(result.EquityCurve))
	series := make([]opts.LineData, len(result.EquityCurve))
	for i, v := range result.EquityCurve {
		xAxis[i] = strconv.Itoa(i)
		series[i] = opts.LineData{Value: v}
	}
	line.SetXAxis(xAxis)
	line.AddSeries("equity", series, charts.WithLineStyleOpts(opts.LineStyle{Width: 2}))

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	defer f.Close()
	if err := line.Render(f); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	logger.Infof("backtest report written to %s", path)
	return nil
}

// Summary formats a validation for the multi-line startup log block.
func (v Validation) Summary() string {
	status := "FAILED (no significant edge)"
	if v.Validated {
		status = "PASSED (edge detected)"
	}
	return fmt.Sprintf(
		"Validation:      %s\n"+
			"Recommendation:  %s\n"+
			"Trades:          %d (min samples met: %v)\n"+
			"Win rate:        %.2f%%\n"+
			"Wilson %d%% CI:   [%.4f, %.4f]\n"+
			"Expected value:  %.4f per unit staked\n"+
			"Kelly fraction:  %.4f\n"+
			"Sharpe:          %.3f\n"+
			"Max drawdown:    %.2f%%\n"+
			"Final balance:   $%.2f (ROI %.2f%%)",
		status,
		v.Recommendation,
		v.TotalTrades, v.MinSamplesMet,
		v.WinRate*100,
		int(v.Result.ConfidenceLevel*100), v.ConfidenceInterval[0], v.ConfidenceInterval[1],
		v.ExpectedValue,
		v.Result.KellyFraction,
		v.Result.SharpeRatio,
		v.Result.MaxDrawdown*100,
		v.Result.FinalBalance, v.Result.ROI*100,
	)
}
