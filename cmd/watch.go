package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/assetforge/assetforge/internal/bundle"
	"github.com/assetforge/assetforge/internal/config"
	"github.com/assetforge/assetforge/internal/registry"
	"github.com/assetforge/assetforge/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Rebuild bundles on file changes",
	Long: `Run an initial generation pass, then watch the configured paths and run
a fresh pass after each batch of filesystem changes. An in-flight pass is
always allowed to finish; changes arriving meanwhile schedule one follow-up
pass rather than one per event.`,
	RunE: runWatch,
}

var watchDebounce time.Duration

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 100*time.Millisecond, "Delay before rebuilding after a change")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	log := newLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	fw, err := watcher.New(reg, cfg.Paths.Ignore, log)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	for _, root := range cfg.Paths.Watched {
		if err := fw.AddRecursive(root); err != nil {
			log.Warn(ctx, err, "cannot watch path", "path", root)
		}
	}

	// Coalesce change bursts into single passes. dirty marks pending work;
	// the generation loop clears it before each pass, so changes landing
	// mid-pass trigger exactly one follow-up.
	var dirty atomic.Bool
	kick := make(chan struct{}, 1)
	fw.SetHandler(func(path string, removed bool) {
		dirty.Store(true)
		select {
		case kick <- struct{}{}:
		default:
		}
	})

	go func() {
		_ = fw.Run(ctx)
	}()

	runPass := func() {
		start := time.Now()
		cycle := generator.Generate(ctx, reg.Snapshot())
		reportCycle(cycle, time.Since(start))
	}
	runPass()
	fmt.Println("Watching for changes...")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-kick:
			time.Sleep(watchDebounce)
			for dirty.Swap(false) {
				runPass()
			}
		}
	}
}
