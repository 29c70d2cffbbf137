// Package cli implements the ldabot command tree.
package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ellenzeng3/lda-filing-bot/internal/config"
	"github.com/ellenzeng3/lda-filing-bot/internal/domain"
	"github.com/ellenzeng3/lda-filing-bot/internal/logger"
)

type rootOptions struct {
	envFiles []string
	now      func() time.Time
}

// NewRootCommand builds the command tree.
func NewRootCommand(version string) *cobra.Command {
	return newRootCommand(version, time.Now)
}

func newRootCommand(version string, now func() time.Time) *cobra.Command {
	opts := &rootOptions{now: now}
	root := &cobra.Command{
		Use:   "ldabot",
		Short: "Watch LDA lobbying filings and report the technology-related ones",
		Long: `ldabot polls the Senate LDA filings API, stores every filing it has not seen,
flags the ones that concern technology policy or major technology companies,
and posts them to Slack or publishes them to Kafka.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", []string{".env"}, "dotenv files to load before the environment")

	root.AddCommand(newServeCommand(opts))
	root.AddCommand(newSyncCommand(opts))
	root.AddCommand(newExportCommand(opts))
	root.AddCommand(newTokenCommand(opts))
	return root
}

// Execute runs the root command against os.Args.
func Execute(version string) error {
	if err := NewRootCommand(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

func (o *rootOptions) load(service string) (config.Config, *logrus.Entry, io.Closer, error) {
	cfg, err := config.Load(o.envFiles...)
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	log, closer := logger.New(cfg.Log, service)
	return cfg, log, closer, nil
}

// addPeriodFlags registers --period/--year; zero values mean the quarter currently being filed.
func addPeriodFlags(cmd *cobra.Command, period *string, year *int) {
	cmd.Flags().StringVar(period, "period", "", "filing period (first_quarter..fourth_quarter); defaults to the current one")
	cmd.Flags().IntVar(year, "year", 0, "filing year; defaults to the current period's year")
}

func resolvePeriod(period string, year int, now time.Time) (domain.Period, int, error) {
	p, y := domain.CurrentPeriod(now)
	if period != "" {
		parsed, err := domain.ParsePeriod(period)
		if err != nil {
			return "", 0, err
		}
		p = parsed
	}
	if year != 0 {
		if year < 1999 || year > now.Year()+1 {
			return "", 0, fmt.Errorf("year %d out of range", year)
		}
		y = year
	}
	return p, y, nil
}
