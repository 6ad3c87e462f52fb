package main

import (
	"fmt"
	"math"
	"time"

	"github.com/spf13/cobra"

	"github.com/quantfold/backtestd/internal/app"
	"github.com/quantfold/backtestd/internal/backtest"
	"github.com/quantfold/backtestd/internal/logger"
)

var (
	runSymbols   []string
	runFrom      string
	runTo        string
	runCapital   float64
	runBenchmark string
	runStrategy  string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a single backtest and print its results",
	Long:  "Run a backtest against historical data and print performance statistics when it finishes.",
	RunE:  runBacktest,
}

func init() {
	runCmd.Flags().StringSliceVar(&runSymbols, "symbols", nil, "Symbols to trade (required)")
	runCmd.Flags().StringVar(&runFrom, "from", "", "Start date YYYY-MM-DD (required)")
	runCmd.Flags().StringVar(&runTo, "to", "", "End date YYYY-MM-DD (required)")
	runCmd.Flags().Float64Var(&runCapital, "capital", 100000, "Initial capital")
	runCmd.Flags().StringVar(&runBenchmark, "benchmark", "", "Benchmark symbol")
	runCmd.Flags().StringVar(&runStrategy, "strategy", "momentum", "Strategy name")

	runCmd.MarkFlagRequired("symbols")
	runCmd.MarkFlagRequired("from")
	runCmd.MarkFlagRequired("to")

	rootCmd.AddCommand(runCmd)
}

func runBacktest(cmd *cobra.Command, args []string) error {
	log := logger.Must(debug)
	defer log.Sync()

	from, err := time.Parse("2006-01-02", runFrom)
	if err != nil {
		return fmt.Errorf("invalid from date (expected YYYY-MM-DD): %w", err)
	}
	to, err := time.Parse("2006-01-02", runTo)
	if err != nil {
		return fmt.Errorf("invalid to date (expected YYYY-MM-DD): %w", err)
	}

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}

	a, err := app.New(cfg, log)
	if err != nil {
		return fmt.Errorf("building service: %w", err)
	}

	run, err := a.Registry().Create(backtest.Config{
		Name:           fmt.Sprintf("cli %s", runStrategy),
		Symbols:        runSymbols,
		StartDate:      from.UTC(),
		EndDate:        to.UTC(),
		InitialCapital: runCapital,
		Benchmark:      runBenchmark,
		Commission:     cfg.Backtest.Commission,
		Slippage:       cfg.Backtest.Slippage,
		Strategy:       runStrategy,
	})
	if err != nil {
		return err
	}
	if err := a.Registry().Start(run.ID); err != nil {
		return err
	}

	for {
		sum, err := a.Registry().Status(run.ID)
		if err != nil {
			return err
		}
		if sum.Status.Terminal() {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	rec, err := a.Registry().Results(run.ID)
	if err != nil {
		sum, _ := a.Registry().Status(run.ID)
		return fmt.Errorf("backtest %s: %s", sum.Status, sum.ErrorMessage)
	}

	printResults(rec)
	return nil
}

func printResults(rec backtest.Record) {
	m := rec.Metrics

	fmt.Println("=== Backtest Results ===")
	fmt.Printf("Run:      %s\n", rec.ID)
	fmt.Printf("Symbols:  %v\n", rec.Config.Symbols)
	fmt.Printf("Period:   %s to %s\n",
		rec.Config.StartDate.Format("2006-01-02"),
		rec.Config.EndDate.Format("2006-01-02"))
	fmt.Printf("Days:     %d\n", len(rec.EquityCurve))
	fmt.Println()

	if m == nil {
		fmt.Println("No metrics available")
		return
	}
	if m.Degraded {
		fmt.Println("Metrics could not be computed for this run")
		return
	}

	fmt.Printf("Total return:   %8.2f%%\n", m.TotalReturn*100)
	fmt.Printf("Annual return:  %8.2f%%\n", m.AnnualReturn*100)
	fmt.Printf("Volatility:     %8.2f%%\n", m.Volatility*100)
	fmt.Printf("Sharpe ratio:   %8.2f\n", m.SharpeRatio)
	fmt.Printf("Max drawdown:   %8.2f%%\n", m.MaxDrawdown*100)
	fmt.Println()
	fmt.Printf("Trades:         %d (%d wins, %d losses)\n", m.TotalTrades, m.WinningTrades, m.LosingTrades)
	fmt.Printf("Win rate:       %8.2f%%\n", m.WinRate*100)
	if math.IsInf(m.ProfitFactor, 1) {
		fmt.Printf("Profit factor:  no losing trades\n")
	} else {
		fmt.Printf("Profit factor:  %8.2f\n", m.ProfitFactor)
	}
	if rec.Config.Benchmark != "" {
		fmt.Println()
		fmt.Printf("Benchmark:      %s (%.2f%%)\n", rec.Config.Benchmark, m.BenchmarkReturn*100)
		fmt.Printf("Alpha:          %8.2f%%\n", m.Alpha*100)
	}
}
