package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ellenzeng3/lda-filing-bot/internal/app"
	"github.com/ellenzeng3/lda-filing-bot/internal/export"
)

type exportOptions struct {
	period string
	year   int
	all    bool
	out    string
}

func newExportCommand(opts *rootOptions) *cobra.Command {
	eo := &exportOptions{}
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the stored filings for one period as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExport(cmd.Context(), cmd.OutOrStdout(), opts, eo)
		},
	}
	addPeriodFlags(cmd, &eo.period, &eo.year)
	cmd.Flags().BoolVar(&eo.all, "all", false, "include filings that are not technology-related")
	cmd.Flags().StringVarP(&eo.out, "out", "o", "", `output file; "-" for stdout (default lda_filings_<period>_<year>.csv)`)
	return cmd
}

func runExport(ctx context.Context, stdout io.Writer, opts *rootOptions, eo *exportOptions) error {
	period, year, err := resolvePeriod(eo.period, eo.year, opts.now())
	if err != nil {
		return err
	}
	cfg, _, closer, err := opts.load("ldabot-export")
	if err != nil {
		return err
	}
	defer closer.Close()

	store, err := app.OpenStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	filings, err := store.QueryByPeriod(ctx, period, year, !eo.all)
	if err != nil {
		return err
	}

	if eo.out == "-" {
		return export.Write(stdout, filings)
	}
	path := eo.out
	if path == "" {
		path = export.Filename(period, year)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := export.Write(f, filings); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "wrote %d filings to %s\n", len(filings), path)
	return nil
}
