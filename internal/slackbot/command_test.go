package slackbot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ellenzeng3/lda-filing-bot/internal/domain"
)

func TestParseCommand(t *testing.T) {
	now := time.Date(2025, 5, 2, 15, 0, 0, 0, time.UTC)

	cmd, err := ParseCommand("<@U0BOT> post", now)
	require.NoError(t, err)
	require.False(t, cmd.All)
	require.False(t, cmd.Explicit)
	require.Equal(t, domain.PeriodSecondQuarter, cmd.Period)
	require.Equal(t, 2025, cmd.Year)

	cmd, err = ParseCommand("<@U0BOT>   POST ALL Third_Quarter 2024 ", now)
	require.NoError(t, err)
	require.True(t, cmd.All)
	require.True(t, cmd.Explicit)
	require.Equal(t, domain.PeriodThirdQuarter, cmd.Period)
	require.Equal(t, 2024, cmd.Year)
	require.Equal(t, "all", cmd.Scope())
}

func TestParseCommandErrors(t *testing.T) {
	now := time.Date(2025, 5, 2, 15, 0, 0, 0, time.UTC)
	for _, text := range []string{
		"",
		"<@U0BOT>",
		"<@U0BOT> hello",
		"<@U0BOT> post q5 2025",
		"<@U0BOT> post first_quarter",
		"<@U0BOT> post first_quarter twenty",
		"<@U0BOT> post first_quarter 1850",
		"<@U0BOT> post all first_quarter 2025 extra",
	} {
		_, err := ParseCommand(text, now)
		require.Error(t, err, text)
	}
}
