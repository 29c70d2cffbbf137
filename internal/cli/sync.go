package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ellenzeng3/lda-filing-bot/internal/app"
	"github.com/ellenzeng3/lda-filing-bot/internal/pipeline"
)

type syncOptions struct {
	period string
	year   int
	client string
	notify bool
	// notifySet records an explicit --notify, which must not be silently ignored.
	notifySet bool
}

func newSyncCommand(opts *rootOptions) *cobra.Command {
	so := &syncOptions{}
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Fetch, classify and store new filings for one period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			so.notifySet = cmd.Flags().Changed("notify")
			return runSync(ctx, cmd.OutOrStdout(), opts, so)
		},
	}
	addPeriodFlags(cmd, &so.period, &so.year)
	cmd.Flags().StringVar(&so.client, "client", "", "only store filings whose client is exactly this company")
	cmd.Flags().BoolVar(&so.notify, "notify", true, "send new relevant filings to the configured notifiers")
	return cmd
}

func runSync(ctx context.Context, out io.Writer, opts *rootOptions, so *syncOptions) error {
	period, year, err := resolvePeriod(so.period, so.year, opts.now())
	if err != nil {
		return err
	}
	cfg, log, closer, err := opts.load("ldabot-sync")
	if err != nil {
		return err
	}
	defer closer.Close()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	announce := so.notify && a.Notifier != nil
	if so.notify && so.notifySet && a.Notifier == nil {
		return errors.New("--notify needs SLACK_TOKEN or KAFKA_BROKERS")
	}

	report, runErr := a.Pipeline.Run(ctx, pipeline.Request{Period: period, Year: year, ClientName: so.client})
	printReport(out, report)
	if runErr != nil {
		return runErr
	}

	if announce {
		if err := a.Notifier.Notify(ctx, report.NewRelevant); err != nil {
			log.WithError(err).Warn("notification failed")
		}
	}
	return nil
}

func printReport(out io.Writer, r pipeline.Report) {
	fmt.Fprintf(out, "run %s %s: %s\n", r.RunID, r.Request, r.State)
	fmt.Fprintf(out, "  pages %d, fetched %d, new %d, new relevant %d\n", r.Pages, r.Fetched, r.NewRecords, len(r.NewRelevant))

	counts := make(map[pipeline.Status]int)
	for _, o := range r.Outcomes {
		counts[o.Status]++
	}
	statuses := make([]string, 0, len(counts))
	for s := range counts {
		statuses = append(statuses, string(s))
	}
	sort.Strings(statuses)
	for _, s := range statuses {
		fmt.Fprintf(out, "  %-18s %d\n", s, counts[pipeline.Status(s)])
	}

	if r.Partial {
		fmt.Fprintln(out, "  partial: the filings API failed mid-run; rerun to pick up the rest")
	}
	if r.OrderViolation {
		fmt.Fprintln(out, "  warning: results were not newest-first; early stop was disabled")
	}
	if r.Error != "" {
		fmt.Fprintf(out, "  error: %s\n", r.Error)
	}
}
