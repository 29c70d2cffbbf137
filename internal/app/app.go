// Package app assembles the bot's components from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/slack-go/slack"

	"github.com/ellenzeng3/lda-filing-bot/internal/api"
	"github.com/ellenzeng3/lda-filing-bot/internal/auth"
	"github.com/ellenzeng3/lda-filing-bot/internal/classifier"
	"github.com/ellenzeng3/lda-filing-bot/internal/config"
	"github.com/ellenzeng3/lda-filing-bot/internal/domain"
	"github.com/ellenzeng3/lda-filing-bot/internal/lda"
	"github.com/ellenzeng3/lda-filing-bot/internal/notify"
	"github.com/ellenzeng3/lda-filing-bot/internal/persistence/memory"
	"github.com/ellenzeng3/lda-filing-bot/internal/persistence/postgres"
	"github.com/ellenzeng3/lda-filing-bot/internal/persistence/sqlite"
	"github.com/ellenzeng3/lda-filing-bot/internal/pipeline"
	"github.com/ellenzeng3/lda-filing-bot/internal/schedule"
	"github.com/ellenzeng3/lda-filing-bot/internal/slackbot"
	httptransport "github.com/ellenzeng3/lda-filing-bot/internal/transport/http"
)

// App owns the long-lived components shared by the CLI commands.
type App struct {
	Config   config.Config
	Logger   logrus.FieldLogger
	Store    domain.Store
	Pipeline *pipeline.Pipeline
	Runner   *pipeline.Runner
	// Notifier is nil when neither Slack nor Kafka is configured.
	Notifier notify.Notifier

	slack   *slack.Client
	closers []io.Closer
}

// New opens the store and builds the sync stack. A store that cannot be opened
// yields an error wrapping domain.ErrStorageUnavailable.
func New(ctx context.Context, cfg config.Config, logger logrus.FieldLogger) (*App, error) {
	store, err := OpenStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Logger: logger, Store: store}
	a.closers = append(a.closers, store)

	watchlist := classifier.DefaultWatchlist()
	if cfg.WatchlistPath != "" {
		if watchlist, err = classifier.LoadWatchlist(cfg.WatchlistPath); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("load watchlist: %w", err)
		}
	}

	client, err := lda.NewClient(lda.Config{
		BaseURL:    cfg.LDA.BaseURL,
		APIKey:     cfg.LDA.APIKey,
		UserAgent:  cfg.LDA.UserAgent,
		Ordering:   cfg.LDA.Ordering,
		MaxRetries: cfg.LDA.MaxRetries,
		Backoff:    cfg.LDA.Backoff,
		EarlyStop:  cfg.LDA.EarlyStop,
		MaxPages:   cfg.LDA.MaxPages,
	}, lda.NewHTTPClient(cfg.LDA.Timeout), lda.WithLogger(logger.WithField("component", "lda")))
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	if cfg.LDA.APIKey == "" {
		logger.Warn("LDA_API_KEY not set; requests are anonymous and heavily rate limited")
	}

	a.Pipeline = pipeline.New(store, client, classifier.New(watchlist),
		pipeline.WithLogger(logger.WithField("component", "pipeline")))
	a.Runner = pipeline.NewRunner(context.Background(), a.Pipeline,
		pipeline.WithRunnerLogger(logger.WithField("component", "runner")))

	if cfg.SlackEnabled() {
		var opts []slack.Option
		if cfg.Slack.APIURL != "" {
			opts = append(opts, slack.OptionAPIURL(cfg.Slack.APIURL))
		}
		a.slack = slack.New(cfg.Slack.Token, opts...)
	}
	a.Notifier = a.selectNotifier()
	return a, nil
}

// selectNotifier picks the delivery path for new relevant filings. With Kafka
// configured, Slack posts come from the relay consumer reading the same events,
// so only Kafka is used here.
func (a *App) selectNotifier() notify.Notifier {
	if a.Config.KafkaEnabled() {
		writer := notify.NewKafkaWriter(a.Config.Kafka.Brokers, a.Config.Kafka.Topic)
		a.closers = append(a.closers, writer)
		return notify.Multi{notify.NewKafka(writer)}
	}
	if a.slack != nil {
		return notify.Multi{a.SlackNotifier()}
	}
	return nil
}

// OpenStore opens the configured filings store.
func OpenStore(ctx context.Context, cfg config.StoreConfig) (domain.Store, error) {
	switch cfg.Driver {
	case "memory":
		return memory.New(), nil
	case "postgres":
		repo, err := postgres.Connect(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, err
		}
		return repo, nil
	case "sqlite", "":
		store, err := sqlite.Open(ctx, cfg.Path)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("%w: unknown driver %q", domain.ErrStorageUnavailable, cfg.Driver)
	}
}

// SlackNotifier posts to the configured channel. It is nil when Slack is disabled.
func (a *App) SlackNotifier() *notify.Slack {
	if a.slack == nil {
		return nil
	}
	return notify.NewSlack(a.slack, a.Config.Slack.Channel,
		notify.WithEmptyNotice(a.Config.Slack.PostEmpty),
		notify.WithSlackLogger(a.Logger.WithField("component", "slack")))
}

// Scheduler builds the recurring sync. It returns nil when scheduling is disabled.
func (a *App) Scheduler() (*schedule.Scheduler, error) {
	if !a.Config.Schedule.Enabled {
		return nil, nil
	}
	return schedule.New(a.Config.Schedule.Spec, a.Config.Schedule.Timezone, a.Runner, a.Notifier,
		schedule.WithLogger(a.Logger.WithField("component", "scheduler")))
}

// Handler returns the routed, authenticated and logged HTTP handler. The second
// value waits for background Slack work and may be called on shutdown.
func (a *App) Handler() (http.Handler, func()) {
	mux := http.NewServeMux()
	api.NewHandler(a.Runner, a.Store, a.Notifier, a.Logger.WithField("component", "api")).RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	wait := func() {}
	if a.slack != nil {
		events := slackbot.NewHandler(a.slack, a.Config.Slack.SigningSecret, a.Runner, a.Store,
			slackbot.WithLogger(a.Logger.WithField("component", "slackbot")),
			slackbot.WithNotifier(a.Notifier))
		mux.Handle("/slack/events", events)
		wait = events.Wait
	}

	authMiddleware := auth.NewMiddleware(
		auth.Config{Secret: a.Config.Auth.JWTSecret, Issuer: a.Config.Auth.JWTIssuer},
		auth.PublicPaths("/healthz", "/metrics", "/slack/events"),
	)
	return httptransport.LogRequests(a.Logger.WithField("component", "http"), authMiddleware.Wrap(mux)), wait
}

// Close waits for background runs and releases the store and producers.
func (a *App) Close() error {
	if a.Runner != nil {
		a.Runner.Wait()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
