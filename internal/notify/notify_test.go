package notify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/slack-go/slack"
	"github.com/stretchr/testify/require"

	"github.com/ellenzeng3/lda-filing-bot/internal/domain"
	"github.com/ellenzeng3/lda-filing-bot/internal/events"
)

type stubPoster struct {
	mu       sync.Mutex
	channels []string
	calls    int
	failOn   map[int]bool
}

func (s *stubPoster) PostMessageContext(_ context.Context, channelID string, _ ...slack.MsgOption) (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.channels = append(s.channels, channelID)
	if s.failOn[s.calls] {
		return "", "", errors.New("channel_not_found")
	}
	return channelID, "1700000000.000100", nil
}

type stubWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *stubWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

func amount(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func TestFormatDollars(t *testing.T) {
	cases := map[string]string{
		"15000":      "$15,000",
		"15000.00":   "$15,000",
		"15000.5":    "$15,000.50",
		"1234567.89": "$1,234,567.89",
		"0":          "$0",
		"999.999":    "$1,000",
		"12.05":      "$12.05",
		"-5":         "-$5",
		"-0.5":       "-$0.50",
		"-1234.56":   "-$1,234.56",
		"-0.004":     "$0",
	}
	for in, want := range cases {
		require.Equal(t, want, FormatDollars(decimal.RequireFromString(in)), in)
	}
	require.Empty(t, FormatNullDollars(decimal.NullDecimal{}))
}

func TestMessage(t *testing.T) {
	f := domain.Filing{
		RegistrantName: " Akin Gump ",
		ClientName:     "Google LLC",
		Income:         amount("40000"),
		Expenses:       amount("1250.5"),
		DocumentURL:    "https://lda.senate.gov/filings/public/filing/x/print/",
		LobbyistNames:  "Jane Doe, John Smith",
	}
	msg := Message(f)
	require.Equal(t, "*Akin Gump* disclosed *$40,000* in income and *$1,250.50* in expenses in the "+
		"<https://lda.senate.gov/filings/public/filing/x/print/|LDA filing> for *Google LLC*."+
		"\n\n*Lobbyists:*\n• Jane Doe\n• John Smith", msg)

	f.Expenses = decimal.NullDecimal{}
	f.DocumentURL = ""
	f.LobbyistNames = ""
	require.Equal(t, "*Akin Gump* disclosed *$40,000* in income in the LDA filing for *Google LLC*.", Message(f))

	f.Income, f.Expenses = decimal.NullDecimal{}, amount("10")
	require.True(t, strings.HasPrefix(Message(f), "*Akin Gump* disclosed *$10* in expenses"))
}

func TestSlackPostsEachFiling(t *testing.T) {
	poster := &stubPoster{failOn: map[int]bool{2: true}}
	n := NewSlack(poster, "")
	err := n.Notify(context.Background(), []domain.Filing{{ID: "a"}, {ID: "b"}, {ID: "c"}})
	require.ErrorIs(t, err, domain.ErrNotification)
	require.Equal(t, 3, poster.calls)
	require.Equal(t, DefaultChannel, poster.channels[0])
}

func TestSlackEmptyBatch(t *testing.T) {
	poster := &stubPoster{}
	require.NoError(t, NewSlack(poster, "#c").Notify(context.Background(), nil))
	require.Zero(t, poster.calls)

	clock := func() time.Time { return time.Date(2025, 7, 22, 14, 0, 0, 0, time.UTC) }
	require.NoError(t, NewSlack(poster, "#c", WithEmptyNotice(true), WithClock(clock)).Notify(context.Background(), nil))
	require.Equal(t, 1, poster.calls)
}

func TestKafkaPublishesEvents(t *testing.T) {
	w := &stubWriter{}
	k := NewKafka(w)
	err := k.Notify(context.Background(), []domain.Filing{{ID: "a", Income: amount("5")}, {ID: "b"}})
	require.NoError(t, err)
	require.Len(t, w.msgs, 2)
	require.Equal(t, "a", string(w.msgs[0].Key))

	var evt events.FilingIngested
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &evt))
	require.Equal(t, "a", evt.FilingID)
	require.True(t, evt.Income.Valid)
}

func TestKafkaWriteFailure(t *testing.T) {
	k := NewKafka(&stubWriter{err: errors.New("broker down")})
	require.ErrorIs(t, k.Notify(context.Background(), []domain.Filing{{ID: "a"}}), domain.ErrNotification)
	require.NoError(t, k.Notify(context.Background(), nil))
}

func TestNewKafkaWriterDefaultsTopic(t *testing.T) {
	w := NewKafkaWriter([]string{"localhost:9092"}, "")
	require.Equal(t, events.TopicFilingIngested, w.Topic)
	require.IsType(t, &kafka.Hash{}, w.Balancer)
	require.Equal(t, "custom", NewKafkaWriter(nil, "custom").Topic)
	require.NoError(t, w.Close())
}

func TestMultiJoinsErrors(t *testing.T) {
	var called []string
	ok := Func(func(context.Context, []domain.Filing) error { called = append(called, "ok"); return nil })
	bad := Func(func(context.Context, []domain.Filing) error { called = append(called, "bad"); return errors.New("boom") })

	err := Multi{bad, nil, ok}.Notify(context.Background(), []domain.Filing{{ID: "a"}})
	require.ErrorIs(t, err, domain.ErrNotification)
	require.Contains(t, err.Error(), "boom")
	require.Equal(t, []string{"bad", "ok"}, called)

	require.NoError(t, Multi{ok}.Notify(context.Background(), nil))
}
