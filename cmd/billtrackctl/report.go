package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	ledgermodels "billtrack/internal/ledger/models"
)

const dateLayout = "2006-01-02"

func reportCmd() *cobra.Command {
	var (
		startDate string
		endDate   string
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the income recorded between two dates (inclusive)",
		Example: `  billtrackctl report --start 2026-03-01 --end 2026-03-31
  billtrackctl report --start 2026-03-01 --end 2026-03-31 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := openEnv(ctx, cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			loc, err := e.cfg.Server.Location()
			if err != nil {
				return err
			}
			start, err := time.ParseInLocation(dateLayout, startDate, loc)
			if err != nil {
				return fmt.Errorf("--start must be YYYY-MM-DD: %w", err)
			}
			end, err := time.ParseInLocation(dateLayout, endDate, loc)
			if err != nil {
				return fmt.Errorf("--end must be YYYY-MM-DD: %w", err)
			}
			if end.Before(start) {
				return errors.New("--end must not be before --start")
			}

			records, err := e.ledger.ReportForPeriod(ctx, start, end.AddDate(0, 0, 1))
			if err != nil {
				return err
			}
			report := ledgermodels.NewReport(start, end, records)

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RECORDED\tBILL\tAMOUNT\tPAYMENT REF")
			for _, r := range report.Records {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
					r.RecordedAt.In(loc).Format(time.DateTime), r.BillNumber, r.Amount.StringFixed(2), r.PaymentReference)
			}
			fmt.Fprintf(tw, "\t%d records\t%s\t\n", report.Count, report.Total.StringFixed(2))
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&startDate, "start", "", "first day, YYYY-MM-DD")
	cmd.Flags().StringVar(&endDate, "end", "", "last day, YYYY-MM-DD")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}
