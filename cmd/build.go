package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/assetforge/assetforge/internal/bundle"
	"github.com/assetforge/assetforge/internal/config"
	"github.com/assetforge/assetforge/internal/logging"
	"github.com/assetforge/assetforge/internal/optimize"
	"github.com/assetforge/assetforge/internal/registry"
	"github.com/assetforge/assetforge/internal/watcher"
	"github.com/assetforge/assetforge/internal/worker"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Run one full generation pass",
	Long: `Scan the watched paths, resolve join rules into output targets, and
generate every bundle once.

Examples:
  assetforge build                   # Build all bundles
  assetforge build --optimize        # Build with the optimizer chain
  assetforge build --strict          # Exit non-zero if any target failed`,
	RunE: runBuild,
}

var (
	buildOptimize bool
	buildStrict   bool
)

func init() {
	rootCmd.AddCommand(buildCmd)

	buildCmd.Flags().BoolVar(&buildOptimize, "optimize", false, "Run the optimizer chain over each bundle")
	buildCmd.Flags().BoolVar(&buildStrict, "strict", false, "Treat any failed target as a build failure")
}

func runBuild(cmd *cobra.Command, args []string) error {
	start := time.Now()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if buildOptimize {
		cfg.Optimize = true
	}
	log := newLogger()

	reg := registry.NewFileRegistry()
	if err := watcher.Scan(reg, cfg.Paths.Watched, cfg.Paths.Ignore); err != nil {
		return fmt.Errorf("failed to scan watched paths: %w", err)
	}

	joins := bundle.ResolveJoins(ctx, &cfg.Files, reg.Paths(), log)
	generator := bundle.NewGenerator(cfg, joins, builtinOptimizers(), log)

	stopWorkers, err := attachWorkerPool(ctx, cfg, generator, log)
	if err != nil {
		return err
	}
	defer stopWorkers()

	cycle := generator.Generate(ctx, reg.Snapshot())
	reportCycle(cycle, time.Since(start))

	if failed := cycle.Failed(); buildStrict && len(failed) > 0 {
		return fmt.Errorf("%d of %d targets failed", len(failed), len(cycle.Targets))
	}
	return nil
}

// attachWorkerPool spawns workers.count child processes running the worker
// subcommand and routes each target's optimize stage through the pool. The
// returned cleanup stops the workers; when workers are disabled the
// generator keeps its in-process chain and the cleanup is a no-op.
func attachWorkerPool(ctx context.Context, cfg *config.Config, generator *bundle.Generator, log logging.Logger) (func(), error) {
	if !cfg.Workers.Enabled {
		return func() {}, nil
	}

	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to locate executable for workers: %w", err)
	}
	workerArgs := []string{"worker"}
	if cfgFile != "" {
		workerArgs = append(workerArgs, "--config", cfgFile)
	}

	pool, err := worker.NewPool(ctx, cfg.Workers.Count, exe, workerArgs, log)
	if err != nil {
		return nil, fmt.Errorf("failed to start worker pool: %w", err)
	}
	generator.SetOptimizer(pool.Optimize)
	return pool.Close, nil
}

// builtinOptimizers returns the optimizer chain in registration order.
func builtinOptimizers() []optimize.Optimizer {
	return []optimize.Optimizer{
		optimize.NewScriptMinifier(),
		optimize.NewStylesheetMinifier(),
	}
}

func reportCycle(cycle *bundle.CycleResult, elapsed time.Duration) {
	for _, target := range cycle.Targets {
		if target.Err != nil {
			fmt.Fprintf(os.Stderr, "  ✗ %s: %v\n", target.Path, target.Err)
			continue
		}
		fmt.Printf("  ✓ %s (%d files, %d bytes, %v)\n", target.Path, target.Files, target.Bytes, target.Duration)
	}
	fmt.Printf("Generated %d targets in %v\n", len(cycle.Targets), elapsed)
}
