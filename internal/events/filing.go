// Package events defines the payloads the bot publishes to Kafka.
package events

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ellenzeng3/lda-filing-bot/internal/domain"
)

// TopicFilingIngested is the default topic for new relevant filings.
const TopicFilingIngested = "lda.filing.ingested"

// TypeFilingIngested is carried in the event_type message header.
const TypeFilingIngested = "filing.ingested"

// FilingIngested is emitted once per newly stored relevant, substantive filing.
type FilingIngested struct {
	FilingID       string              `json:"filing_uuid"`
	Period         string              `json:"filing_period"`
	Year           int                 `json:"filing_year"`
	RegistrantName string              `json:"registrant_name"`
	ClientName     string              `json:"client_name"`
	Income         decimal.NullDecimal `json:"income"`
	Expenses       decimal.NullDecimal `json:"expenses"`
	Descriptions   string              `json:"lobbying_descriptions,omitempty"`
	Lobbyists      []string            `json:"lobbyist_names"`
	DocumentURL    string              `json:"filing_document_url,omitempty"`
	PostedAt       *time.Time          `json:"posted_at,omitempty"`
	IngestedAt     time.Time           `json:"ingested_at"`
}

// NewFilingIngested builds the event for f.
func NewFilingIngested(f domain.Filing, at time.Time) FilingIngested {
	return FilingIngested{
		FilingID:       f.ID,
		Period:         string(f.Period),
		Year:           f.Year,
		RegistrantName: f.RegistrantName,
		ClientName:     f.ClientName,
		Income:         f.Income,
		Expenses:       f.Expenses,
		Descriptions:   f.Descriptions,
		Lobbyists:      f.Lobbyists(),
		DocumentURL:    f.DocumentURL,
		PostedAt:       f.PostedAt,
		IngestedAt:     at.UTC(),
	}
}

// Filing converts the event back into the canonical record. Relevant is implied by publication.
func (e FilingIngested) Filing() domain.Filing {
	return domain.Filing{
		ID:             e.FilingID,
		Period:         domain.Period(e.Period),
		Year:           e.Year,
		RegistrantName: e.RegistrantName,
		ClientName:     e.ClientName,
		Income:         e.Income,
		Expenses:       e.Expenses,
		Descriptions:   e.Descriptions,
		LobbyistNames:  strings.Join(e.Lobbyists, ", "),
		DocumentURL:    e.DocumentURL,
		PostedAt:       e.PostedAt,
		Relevant:       true,
	}
}
