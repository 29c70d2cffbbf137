package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ellenzeng3/lda-filing-bot/internal/domain"
)

func TestFilingIngestedWireFormat(t *testing.T) {
	f := domain.Filing{
		ID:             "f-1",
		Period:         domain.PeriodFirstQuarter,
		Year:           2025,
		RegistrantName: "Akin Gump",
		ClientName:     "Meta Platforms, Inc.",
		Income:         decimal.NewNullDecimal(decimal.NewFromInt(20000)),
		LobbyistNames:  "Jane Doe, John Smith",
		Relevant:       true,
	}
	evt := NewFilingIngested(f, time.Date(2025, 4, 22, 9, 0, 0, 0, time.UTC))

	body, err := json.Marshal(evt)
	require.NoError(t, err)

	var generic map[string]any
	require.NoError(t, json.Unmarshal(body, &generic))
	require.Equal(t, "f-1", generic["filing_uuid"])
	require.Equal(t, "20000", generic["income"])
	require.Nil(t, generic["expenses"])
	require.Equal(t, []any{"Jane Doe", "John Smith"}, generic["lobbyist_names"])

	var decoded FilingIngested
	require.NoError(t, json.Unmarshal(body, &decoded))
	back := decoded.Filing()
	require.Equal(t, f.ID, back.ID)
	require.Equal(t, f.LobbyistNames, back.LobbyistNames)
	require.True(t, back.Income.Decimal.Equal(f.Income.Decimal))
	require.False(t, back.Expenses.Valid)
}
