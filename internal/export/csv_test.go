package export

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ellenzeng3/lda-filing-bot/internal/domain"
	"github.com/ellenzeng3/lda-filing-bot/internal/persistence/memory"
)

func TestCSVRoundTripMatchesStore(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	filings := []domain.Filing{
		{
			ID: "a", Period: domain.PeriodThirdQuarter, Year: 2025,
			RegistrantName: "Akin Gump", ClientName: "Google, LLC",
			Income:       decimal.NewNullDecimal(decimal.RequireFromString("40000")),
			Descriptions: `AI "frontier" models, privacy`, LobbyistNames: "Jane Doe, John Smith",
			DocumentURL: "https://lda.senate.gov/x", Relevant: true,
		},
		{
			ID: "b", Period: domain.PeriodThirdQuarter, Year: 2025,
			RegistrantName: "Solo Shop", ClientName: "Amazon",
			Expenses: decimal.NewNullDecimal(decimal.RequireFromString("12.5")),
			Descriptions: "line one\nline two", Relevant: true,
		},
		{ID: "c", Period: domain.PeriodThirdQuarter, Year: 2025, ClientName: "Nobody"},
	}
	for _, f := range filings {
		require.NoError(t, store.Upsert(ctx, f))
	}

	stored, err := store.QueryByPeriod(ctx, domain.PeriodThirdQuarter, 2025, false)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, stored))
	require.True(t, strings.HasPrefix(buf.String(),
		"registrant_name,client_name,filing_document_url,income,expenses,lobbying_descriptions,lobbyist_names,filing_period,filing_year\n"))

	rows, err := Read(&buf)
	require.NoError(t, err)
	require.Len(t, rows, len(stored))
	for i, f := range stored {
		require.Equal(t, RowOf(f), rows[i])
	}
	require.Equal(t, "", rows[0].Expenses)
	require.Equal(t, "", rows[1].Income)
	require.Equal(t, "", rows[2].DocumentURL)
	require.Equal(t, "2025", rows[2].Year)
}

func TestWriteEmptyHasHeaderOnly(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, nil))
	rows, err := Read(&buf)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestReadRejectsWrongHeader(t *testing.T) {
	_, err := Read(strings.NewReader("client_name,registrant_name,filing_document_url,income,expenses,lobbying_descriptions,lobbyist_names,filing_period,filing_year\n"))
	require.Error(t, err)
}

func TestFilename(t *testing.T) {
	require.Equal(t, "lda_filings_second_quarter_2025.csv", Filename(domain.PeriodSecondQuarter, 2025))
}
