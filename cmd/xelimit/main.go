package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := &cobra.Command{
		Use:   "xelimit",
		Short: "Exclusion limits from binned two-dimensional likelihoods",
		Long: `xelimit computes expected sensitivities and observed exclusion limits
for a signal over backgrounds described by 2D templates, and runs toy
Monte Carlo to calibrate the test statistic.

Settings come from the environment (or a .env file):
  DATABASE_URL              postgres connection; enables result storage
  XELIMIT_OUTPUT_DIR        result workbooks and reports (default ./results)
  XELIMIT_CONFIDENCE_LEVEL  test size, 0.1 for 90% limits
  XELIMIT_PARALLEL          model files processed at once
  XELIMIT_SEED              base seed of toy streams
  LOG_LEVEL                 ERROR|WARN|INFO|DEBUG|TRACE`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newSensitivityCmd(),
		newLimitCmd(),
		newCombineCmd(),
		newToysCmd(),
		newServeCmd(),
		newMigrateCmd(),
	)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
