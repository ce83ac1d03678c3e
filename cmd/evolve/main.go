// Command evolve runs the evolutionary search loop over a market-data
// file (Parquet or CSV) or a synthetic random walk, evaluating candidate
// strategies with a naive in-process backtest.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alphaforge/alphaforge/pkg/checkpoint"
	"github.com/alphaforge/alphaforge/pkg/config"
	"github.com/alphaforge/alphaforge/pkg/core"
	"github.com/alphaforge/alphaforge/pkg/datasets"
	"github.com/alphaforge/alphaforge/pkg/errors"
	"github.com/alphaforge/alphaforge/pkg/library"
	"github.com/alphaforge/alphaforge/pkg/logging"
	"github.com/alphaforge/alphaforge/pkg/population"
	"github.com/alphaforge/alphaforge/pkg/selection"
)

var (
	configPath  string
	dataPath    string
	generations int
	resume      bool
)

var rootCmd = &cobra.Command{
	Use:          "evolve",
	Short:        "Evolve trading-strategy factor graphs with multi-objective selection",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML config file (defaults apply when omitted)")
	rootCmd.Flags().StringVarP(&dataPath, "data", "d", "", "market data file, .parquet or .csv (synthetic when omitted)")
	rootCmd.Flags().IntVarP(&generations, "generations", "g", 0, "generations to run (overrides config)")
	rootCmd.Flags().BoolVar(&resume, "resume", false, "resume from the latest checkpoint")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if generations > 0 {
		cfg.MaxGenerations = generations
	}

	outputs := []logging.Output{logging.NewConsoleOutput(true)}
	if cfg.LogFile != "" {
		fileOut, err := logging.NewFileOutput(cfg.LogFile)
		if err != nil {
			return err
		}
		defer fileOut.Close()
		outputs = append(outputs, fileOut)
	}
	logging.SetLogger(logging.NewLogger(logging.Config{
		Severity: logging.ParseSeverity(cfg.LogLevel),
		Outputs:  outputs,
	}))

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	data, err := loadData(ctx, cfg)
	if err != nil {
		return err
	}

	evaluator := &backtestEvaluator{data: data, signalColumns: cfg.SignalColumns}
	opts := []population.Option{}

	var store *checkpoint.Store
	if cfg.CheckpointPath != "" {
		store, err = checkpoint.NewStore(cfg.CheckpointPath)
		if err != nil {
			return err
		}
		defer store.Close()
		opts = append(opts, population.WithCheckpointStore(store))
	}

	mgr, err := population.NewManager(cfg, library.Builtin(), evaluator, opts...)
	if err != nil {
		return err
	}

	if resume {
		if store == nil {
			return errors.New(errors.InvalidInput, "--resume requires checkpoint_path in config")
		}
		snap, err := store.Latest(ctx)
		if err != nil {
			return err
		}
		if err := mgr.Restore(snap); err != nil {
			return err
		}
		fmt.Printf("resumed at generation %d\n", snap.Generation)
	}

	if err := mgr.Run(ctx, cfg.MaxGenerations); err != nil {
		return err
	}

	report(mgr)
	return nil
}

func loadData(ctx context.Context, cfg *config.Config) (core.DataTable, error) {
	if dataPath == "" {
		return datasets.Synthetic(rand.New(rand.NewSource(cfg.Seed)), 1024), nil
	}
	switch filepath.Ext(dataPath) {
	case ".parquet":
		return datasets.LoadParquet(ctx, dataPath, cfg.BaseColumns)
	case ".csv":
		return datasets.LoadCSV(dataPath, cfg.BaseColumns)
	default:
		return nil, errors.WithFields(
			errors.New(errors.InvalidInput, "unsupported data format"),
			errors.Fields{"path": dataPath},
		)
	}
}

func report(mgr *population.Manager) {
	front := selection.ParetoFrontIDs(mgr.Population())
	fmt.Printf("finished generation %d, pareto front size %d\n", mgr.Generation(), len(front))

	byID := make(map[string]*core.Strategy)
	for _, s := range mgr.Population() {
		byID[s.ID] = s
	}
	for _, id := range front {
		s := byID[id]
		if s.Metrics == nil {
			continue
		}
		fmt.Printf("  %s gen=%d factors=%d sharpe=%.3f calmar=%.3f return=%.3f win=%.2f maxdd=%.3f\n",
			s.ID[:8], s.Generation, len(s.Factors),
			s.Metrics.SharpeRatio, s.Metrics.CalmarRatio, s.Metrics.TotalReturn,
			s.Metrics.WinRate, s.Metrics.MaxDrawdown)
	}
}
