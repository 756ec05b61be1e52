package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/assetforge/assetforge/internal/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a job worker process",
	Long: `Run a worker that loads its own config snapshot and plugin set, signals
readiness on stdout, then serves CompileJob and OptimizeJob messages read
from stdin, one at a time. Intended to be spawned by a coordinator, not
invoked by hand.`,
	Hidden: true,
	RunE:   runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	w := worker.New(os.Stdin, os.Stdout, worker.Options{Log: newLogger()})
	return w.Run(ctx)
}
