package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	reconcileservice "billtrack/internal/reconcile/service"
)

func replayOrphansCmd() *cobra.Command {
	var batch int
	cmd := &cobra.Command{
		Use:   "replay-orphans",
		Short: "Retry orphaned callback events that are due now",
		Long: `Drains one batch of due events from the Redis orphan queue. Events that
still match no document are discarded, the same as in the server's retry worker.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := openEnv(ctx, cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			if e.redis == nil {
				return errors.New("redis.url is required: the in-memory queue lives in the server process")
			}
			worker := reconcileservice.NewRetryWorker(e.reconciler(), e.orphans,
				reconcileservice.WithBatchSize(batch),
				reconcileservice.WithWorkerLogger(e.log),
			)
			n, err := worker.DrainOnce(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "retried %d events\n", n)
			return nil
		},
	}
	cmd.Flags().IntVar(&batch, "batch", 100, "maximum events to retry")
	return cmd
}
