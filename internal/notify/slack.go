package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/slack-go/slack"

	"github.com/ellenzeng3/lda-filing-bot/internal/domain"
)

// DefaultChannel is where filings are posted when no channel is configured.
const DefaultChannel = "#lda-filings"

// MessagePoster is the slice of the Slack Web API used for posting.
type MessagePoster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// Slack posts one message per filing.
type Slack struct {
	api       MessagePoster
	channel   string
	postEmpty bool
	now       func() time.Time
	logger    logrus.FieldLogger
}

// SlackOption customises the Slack notifier.
type SlackOption func(*Slack)

// WithEmptyNotice posts a "no new filings" line when a batch is empty.
func WithEmptyNotice(enabled bool) SlackOption {
	return func(s *Slack) { s.postEmpty = enabled }
}

// WithClock overrides time.Now, used for the empty notice date.
func WithClock(now func() time.Time) SlackOption {
	return func(s *Slack) { s.now = now }
}

// WithSlackLogger overrides the logger.
func WithSlackLogger(l logrus.FieldLogger) SlackOption {
	return func(s *Slack) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSlack returns a Slack notifier for channel.
func NewSlack(api MessagePoster, channel string, opts ...SlackOption) *Slack {
	if channel == "" {
		channel = DefaultChannel
	}
	s := &Slack{api: api, channel: channel, now: time.Now, logger: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements Named.
func (s *Slack) Name() string { return "slack" }

// Notify implements Notifier. Every filing is attempted; failures are collected.
func (s *Slack) Notify(ctx context.Context, filings []domain.Filing) error {
	if len(filings) == 0 {
		if !s.postEmpty {
			return nil
		}
		day := s.now().In(domain.Eastern).Format("January 2, 2006")
		if _, _, err := s.api.PostMessageContext(ctx, s.channel,
			slack.MsgOptionText("No new tech-related filings found on "+day, false)); err != nil {
			return fmt.Errorf("%w: slack: %v", domain.ErrNotification, err)
		}
		return nil
	}

	var failed int
	var lastErr error
	for _, f := range filings {
		if _, _, err := s.api.PostMessageContext(ctx, s.channel, slack.MsgOptionText(Message(f), false)); err != nil {
			failed++
			lastErr = err
			s.logger.WithError(err).WithField("filing_id", f.ID).Warn("slack post failed")
		}
	}
	if failed > 0 {
		return fmt.Errorf("%w: slack: %d of %d posts failed: %v", domain.ErrNotification, failed, len(filings), lastErr)
	}
	return nil
}

// Message renders the chat text for one filing.
func Message(f domain.Filing) string {
	income := FormatNullDollars(f.Income)
	expenses := FormatNullDollars(f.Expenses)

	var amount string
	switch {
	case income != "" && expenses != "":
		amount = fmt.Sprintf("disclosed *%s* in income and *%s* in expenses", income, expenses)
	case income != "":
		amount = fmt.Sprintf("disclosed *%s* in income", income)
	case expenses != "":
		amount = fmt.Sprintf("disclosed *%s* in expenses", expenses)
	default:
		amount = "filed"
	}

	link := "LDA filing"
	if f.DocumentURL != "" {
		link = fmt.Sprintf("<%s|LDA filing>", f.DocumentURL)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*%s* %s in the %s for *%s*.", strings.TrimSpace(f.RegistrantName), amount, link, f.ClientName)
	if names := f.Lobbyists(); len(names) > 0 {
		b.WriteString("\n\n*Lobbyists:*")
		for _, n := range names {
			b.WriteString("\n• " + n)
		}
	}
	return b.String()
}
