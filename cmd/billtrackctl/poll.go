package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"billtrack/internal/apilog"
	apilogstore "billtrack/internal/apilog/store"
	"billtrack/internal/delivery/channel"
	"billtrack/internal/delivery/poller"
)

func pollCmd() *cobra.Command {
	var batch int
	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Check every outstanding postal shipment once",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := openEnv(ctx, cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			if !e.cfg.Post.Enabled() {
				return errors.New("post.base_url is required for this command")
			}
			client := apilog.NewClient(apilogstore.NewPostgres(e.db), e.cfg.Post.Timeout, apilog.WithLogger(e.log))
			tracker := channel.NewPostSender(e.cfg.Post.BaseURL, e.cfg.Post.APIKey, client)

			p := poller.New(e.documents, tracker, e.reconciler(),
				poller.WithConcurrency(e.cfg.Poller.Concurrency),
				poller.WithBatchSize(batch),
				poller.WithLogger(e.log),
			)
			res, err := p.PollOnce(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "checked %d, delivered %d, returned %d, errors %d\n",
				res.Checked, res.Delivered, res.Returned, res.Errors)
			return nil
		},
	}
	cmd.Flags().IntVar(&batch, "batch", 200, "maximum shipments to check")
	return cmd
}
