// Command billtrackctl runs one-off operator tasks against the billtrack
// database: migrations, income reports, a single delivery poll, token issue
// and orphan event replay.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	_ "time/tzdata"
)

var Version = "dev"

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "billtrackctl",
		Short:         "Operator tasks for the billtrack service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("config", os.Getenv("BILLTRACK_CONFIG"), "path to a YAML config file")

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(pollCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(replayOrphansCmd())
	return rootCmd
}
