package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"fvgbot/internal/backtest"
	"fvgbot/internal/config"
	"fvgbot/internal/engine"
	"fvgbot/internal/indicator"
	"fvgbot/internal/logger"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		dataFile   string
		output     string
		equity     float64
		holdBars   int
	)

	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay historical candles through the FVG breakout engine",
		Long: `Runs the live entry/exit logic over a CSV of candles
(timestamp,open,high,low,close,volume) with simulated fills
and writes the trade ledger to a CSV file.

Example:
  backtest --data data/btc_1m.csv --out results.csv --hold-bars 3`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("data") {
				cfg.Backtest.DataFile = dataFile
			}
			if cmd.Flags().Changed("out") {
				cfg.Backtest.Output = output
			}
			if cmd.Flags().Changed("equity") {
				cfg.Backtest.InitialEquity = equity
			}
			if cmd.Flags().Changed("hold-bars") {
				cfg.Bot.HoldBars = holdBars
			}
			cfg.Bot.InitialEquity = cfg.Backtest.InitialEquity
			if cfg.Backtest.DataFile == "" {
				return fmt.Errorf("%w: не задан файл свечей (--data или backtest.data_file)", config.ErrInvalidConfig)
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			return run(cmd, cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to config file")
	cmd.Flags().StringVarP(&dataFile, "data", "d", "", "CSV file with historical candles")
	cmd.Flags().StringVarP(&output, "out", "o", "", "Output ledger CSV")
	cmd.Flags().Float64Var(&equity, "equity", 0, "Initial equity")
	cmd.Flags().IntVar(&holdBars, "hold-bars", 0, "Time exit after N bars (0 disables)")

	return cmd
}

func run(cmd *cobra.Command, cfg *config.Config) error {
	log := logger.NewWithWriter(cmd.ErrOrStderr(), cfg.Runtime.Log.Level)

	candles, err := backtest.LoadCandlesCSV(cfg.Backtest.DataFile)
	if err != nil {
		return err
	}

	res, err := backtest.Run(cmd.Context(), candles, backtest.Options{
		Params:     engine.ParamsFromConfig(cfg),
		Indicators: indicator.ParamsFromConfig(cfg.Bot),
	}, log)
	if err != nil {
		return err
	}

	if err := backtest.SaveLedger(cfg.Backtest.Output, res.Ledger); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%d trades, Total PnL: %.2f, Final Equity: %.2f\n", len(res.Trades), res.TotalPnL, res.FinalEquity)
	fmt.Fprintf(out, "Win rate: %.1f%%, Profit factor: %.2f, Max drawdown: %.2f%%\n", res.Metrics.WinRate, res.Metrics.ProfitFactor, res.Metrics.MaxDrawdown)
	if res.OpenPosition != nil {
		fmt.Fprintf(out, "Open position: entry %v at bar %d, size %v\n", res.OpenPosition.EntryPrice, res.OpenPosition.EntryIndex, res.OpenPosition.Size)
	}
	fmt.Fprintf(out, "Ledger written to %s\n", cfg.Backtest.Output)
	return nil
}
