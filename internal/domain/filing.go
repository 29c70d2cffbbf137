// Package domain defines the canonical filing record and the contracts shared by the sync pipeline.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Period is an LDA reporting quarter.
type Period string

const (
	PeriodFirstQuarter  Period = "first_quarter"
	PeriodSecondQuarter Period = "second_quarter"
	PeriodThirdQuarter  Period = "third_quarter"
	PeriodFourthQuarter Period = "fourth_quarter"
)

// Periods lists the quarters in calendar order.
var Periods = []Period{PeriodFirstQuarter, PeriodSecondQuarter, PeriodThirdQuarter, PeriodFourthQuarter}

// Valid reports whether p is one of the four quarter values.
func (p Period) Valid() bool {
	switch p {
	case PeriodFirstQuarter, PeriodSecondQuarter, PeriodThirdQuarter, PeriodFourthQuarter:
		return true
	}
	return false
}

// ParsePeriod accepts the API enum value, case-insensitively.
func ParsePeriod(s string) (Period, error) {
	p := Period(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("unknown filing period %q", s)
	}
	return p, nil
}

// Filing is the canonical lobbying-disclosure record stored by the bot.
type Filing struct {
	ID             string              `json:"filing_uuid"`
	Period         Period              `json:"filing_period"`
	Year           int                 `json:"filing_year"`
	RegistrantName string              `json:"registrant_name"`
	ClientName     string              `json:"client_name"`
	Income         decimal.NullDecimal `json:"income"`
	Expenses       decimal.NullDecimal `json:"expenses"`
	Descriptions   string              `json:"lobbying_descriptions"`
	LobbyistNames  string              `json:"lobbyist_names"`
	DocumentURL    string              `json:"filing_document_url,omitempty"`
	PostedAt       *time.Time          `json:"posted_at,omitempty"`
	Relevant       bool                `json:"relevant"`
}

// Substantive reports whether the filing discloses income or expenses.
// Filings with neither are placeholders and are never notified.
func (f Filing) Substantive() bool {
	return f.Income.Valid || f.Expenses.Valid
}

// Lobbyists splits LobbyistNames back into individual names.
func (f Filing) Lobbyists() []string {
	if strings.TrimSpace(f.LobbyistNames) == "" {
		return nil
	}
	parts := strings.Split(f.LobbyistNames, ", ")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// RawFiling is one untyped record as decoded from the filings API.
type RawFiling map[string]any

// ID returns the filing_uuid of the raw record, or "" when absent.
func (r RawFiling) ID() string {
	id, _ := r["filing_uuid"].(string)
	return strings.TrimSpace(id)
}

// IDSet is the set of filing identifiers already persisted.
type IDSet map[string]struct{}

// Has reports membership.
func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Add inserts id into the set.
func (s IDSet) Add(id string) {
	s[id] = struct{}{}
}
