package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"
	"github.com/slack-go/slack"

	"github.com/ellenzeng3/lda-filing-bot/internal/config"
	"github.com/ellenzeng3/lda-filing-bot/internal/consumer"
	"github.com/ellenzeng3/lda-filing-bot/internal/logger"
	"github.com/ellenzeng3/lda-filing-bot/internal/notify"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log, closer := logger.New(cfg.Log, "ldabot-consumer")
	defer closer.Close()

	if !cfg.KafkaEnabled() || !cfg.SlackEnabled() {
		log.Fatal("the relay needs KAFKA_BROKERS and SLACK_TOKEN")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slackNotifier := notify.NewSlack(slack.New(cfg.Slack.Token), cfg.Slack.Channel,
		notify.WithSlackLogger(log.WithField("component", "slack")))
	handler := consumer.NewRelayHandler(slackNotifier)

	metricsSrv := &http.Server{Addr: cfg.Kafka.MetricsAddress, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Infof("consumer metrics listening on %s", cfg.Kafka.MetricsAddress)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Warn("metrics server error")
		}
	}()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:         cfg.Kafka.Brokers,
		GroupID:         cfg.Kafka.GroupID,
		Topic:           cfg.Kafka.Topic,
		MinBytes:        1,
		MaxBytes:        10e6,
		CommitInterval:  time.Second,
		RetentionTime:   24 * time.Hour,
		ReadLagInterval: -1,
	})
	proc := consumer.NewProcessor(reader, handler, consumer.WithLogger(log.WithField("component", "consumer")))

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer reader.Close()

		log.WithField("topic", cfg.Kafka.Topic).WithField("group", cfg.Kafka.GroupID).Info("consumer started")
		if err := proc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Error("consumer stopped")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("consumer shutdown requested")
	case <-done:
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("metrics server shutdown error")
	}
	<-done
}
