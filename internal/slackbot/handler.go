// Package slackbot serves the Slack Events API endpoint that lets a channel request filing exports.
package slackbot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	"github.com/ellenzeng3/lda-filing-bot/internal/domain"
	"github.com/ellenzeng3/lda-filing-bot/internal/export"
	"github.com/ellenzeng3/lda-filing-bot/internal/notify"
	"github.com/ellenzeng3/lda-filing-bot/internal/pipeline"
)

const maxEventBytes = 1 << 20

// ChatAPI is the slice of the Slack Web API the bot calls.
type ChatAPI interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	PostEphemeralContext(ctx context.Context, channelID, userID string, options ...slack.MsgOption) (string, error)
	UploadFileV2Context(ctx context.Context, params slack.UploadFileV2Parameters) (*slack.FileSummary, error)
}

// Starter launches background syncs; *pipeline.Runner implements it.
type Starter interface {
	Start(req pipeline.Request, onDone func(*pipeline.Task)) *pipeline.Task
}

// Handler verifies and dispatches Slack events.
type Handler struct {
	api    ChatAPI
	secret string
	runner Starter
	store    domain.Store
	notifier notify.Notifier
	now      func() time.Time
	logger   logrus.FieldLogger

	wg sync.WaitGroup
}

// Option customises the handler.
type Option func(*Handler)

// WithLogger overrides the default logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithClock overrides time.Now, used to default the period.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// WithNotifier announces the new relevant filings a chat-triggered sync found,
// the same way scheduled syncs do.
func WithNotifier(n notify.Notifier) Option {
	return func(h *Handler) { h.notifier = n }
}

// NewHandler wires the events endpoint.
func NewHandler(api ChatAPI, signingSecret string, runner Starter, store domain.Store, opts ...Option) *Handler {
	h := &Handler{
		api:    api,
		secret: signingSecret,
		runner: runner,
		store:  store,
		now:    time.Now,
		logger: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP acknowledges within Slack's deadline; work continues in the background.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBytes))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	sv, err := slack.NewSecretsVerifier(r.Header, h.secret)
	if err != nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if _, err := sv.Write(body); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if err := sv.Ensure(); err != nil {
		h.logger.WithError(err).Warn("rejected slack request with bad signature")
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	event, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	switch event.Type {
	case slackevents.URLVerification:
		var challenge slackevents.ChallengeResponse
		if err := json.Unmarshal(body, &challenge); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(challenge.Challenge))
		return
	case slackevents.CallbackEvent:
		// Slack redelivers when the ack is slow; the first delivery already started the work.
		if r.Header.Get("X-Slack-Retry-Num") != "" {
			w.WriteHeader(http.StatusOK)
			return
		}
		if mention, ok := event.InnerEvent.Data.(*slackevents.AppMentionEvent); ok {
			h.wg.Add(1)
			go func() {
				defer h.wg.Done()
				h.handleMention(context.Background(), mention.Channel, mention.User, mention.Text)
			}()
		}
	}
	w.WriteHeader(http.StatusOK)
}

// Wait blocks until in-flight mentions have been acknowledged and their syncs have finished.
func (h *Handler) Wait() {
	h.wg.Wait()
}

func (h *Handler) handleMention(ctx context.Context, channel, user, text string) {
	log := h.logger.WithField("channel", channel).WithField("user", user)

	cmd, err := ParseCommand(text, h.now())
	if err != nil {
		h.ephemeral(ctx, channel, user, fmt.Sprintf("Sorry, I couldn't read that (%v). %s", err, Usage))
		return
	}

	h.ephemeral(ctx, channel, user, fmt.Sprintf("Posting %s filings for %s %d…", cmd.Scope(), cmd.Period, cmd.Year))

	req := pipeline.Request{Period: cmd.Period, Year: cmd.Year}
	h.wg.Add(1)
	h.runner.Start(req, func(t *pipeline.Task) {
		defer h.wg.Done()
		report, runErr := t.Result()
		if runErr != nil {
			log.WithError(runErr).Warn("sync for chat request failed")
			h.post(ctx, channel, fmt.Sprintf("Couldn't refresh filings for %s %d from the LDA API (%v). Showing what is already stored.", cmd.Period, cmd.Year, runErr))
		} else {
			if report.Partial {
				h.post(ctx, channel, fmt.Sprintf("The LDA API stopped responding partway through %s %d; this export may be incomplete.", cmd.Period, cmd.Year))
			}
			h.announce(ctx, report.NewRelevant, log)
		}
		h.deliver(ctx, channel, cmd, log)
	})
}

func (h *Handler) announce(ctx context.Context, filings []domain.Filing, log logrus.FieldLogger) {
	if h.notifier == nil || len(filings) == 0 {
		return
	}
	if err := h.notifier.Notify(ctx, filings); err != nil {
		log.WithError(err).Warn("notify new filings")
	}
}

func (h *Handler) deliver(ctx context.Context, channel string, cmd Command, log logrus.FieldLogger) {
	filings, err := h.store.QueryByPeriod(ctx, cmd.Period, cmd.Year, !cmd.All)
	if err != nil {
		log.WithError(err).Error("query filings for export")
		h.post(ctx, channel, fmt.Sprintf("Sorry, I couldn't read stored filings for %s %d.", cmd.Period, cmd.Year))
		return
	}
	if len(filings) == 0 {
		h.post(ctx, channel, fmt.Sprintf("No filings found for %s %d.", cmd.Period, cmd.Year))
		return
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, filings); err != nil {
		log.WithError(err).Error("render csv")
		h.post(ctx, channel, "Sorry, I couldn't build the CSV export.")
		return
	}
	name := export.Filename(cmd.Period, cmd.Year)
	_, err = h.api.UploadFileV2Context(ctx, slack.UploadFileV2Parameters{
		Channel:        channel,
		Filename:       name,
		FileSize:       buf.Len(),
		Reader:         &buf,
		Title:          name,
		InitialComment: fmt.Sprintf("%d %s filings for %s %d", len(filings), cmd.Scope(), cmd.Period, cmd.Year),
	})
	if err != nil {
		log.WithError(err).Error("upload csv")
		h.post(ctx, channel, "Sorry, uploading the CSV export failed.")
	}
}

func (h *Handler) post(ctx context.Context, channel, text string) {
	if _, _, err := h.api.PostMessageContext(ctx, channel, slack.MsgOptionText(text, false)); err != nil {
		h.logger.WithError(err).WithField("channel", channel).Warn("slack post failed")
	}
}

func (h *Handler) ephemeral(ctx context.Context, channel, user, text string) {
	if _, err := h.api.PostEphemeralContext(ctx, channel, user, slack.MsgOptionText(text, false)); err != nil {
		h.logger.WithError(err).WithField("channel", channel).Warn("slack ephemeral failed")
	}
}
