// Package normalizer turns raw filings API payloads into canonical domain.Filing records.
// It is the only place untyped remote data becomes typed data.
package normalizer

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/ellenzeng3/lda-filing-bot/internal/domain"
)

// Normalize maps one raw payload to a Filing. Only a missing filing_uuid is an error;
// every other field degrades to its zero value. Relevant is left false for the classifier.
func Normalize(raw domain.RawFiling) (domain.Filing, error) {
	id := raw.ID()
	if id == "" {
		return domain.Filing{}, fmt.Errorf("%w: missing filing_uuid", domain.ErrMalformedRecord)
	}

	activities := objects(raw["lobbying_activities"])

	return domain.Filing{
		ID:             id,
		Period:         domain.Period(str(raw["filing_period"])),
		Year:           integer(raw["filing_year"]),
		RegistrantName: str(object(raw["registrant"])["name"]),
		ClientName:     str(object(raw["client"])["name"]),
		Income:         amount(raw["income"]),
		Expenses:       amount(raw["expenses"]),
		Descriptions:   descriptions(activities),
		LobbyistNames:  lobbyistNames(activities),
		DocumentURL:    str(raw["filing_document_url"]),
		PostedAt:       PostedAt(raw),
	}, nil
}

func descriptions(activities []map[string]any) string {
	parts := make([]string, 0, len(activities))
	for _, a := range activities {
		d := str(a["description"])
		if strings.TrimSpace(d) == "" {
			continue
		}
		parts = append(parts, d)
	}
	return strings.Join(parts, ", ")
}

func lobbyistNames(activities []map[string]any) string {
	caser := cases.Title(language.Und)
	seen := make(map[string]struct{})
	for _, a := range activities {
		for _, entry := range objects(a["lobbyists"]) {
			person := object(entry["lobbyist"])
			first := strings.TrimSpace(str(person["first_name"]))
			last := strings.TrimSpace(str(person["last_name"]))
			if first == "" || last == "" {
				continue
			}
			seen[caser.String(first)+" "+caser.String(last)] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// PostedAt reads the posting timestamp, preferring dt_posted. Unparseable values yield nil.
func PostedAt(raw domain.RawFiling) *time.Time {
	for _, key := range []string{"dt_posted", "posted_at"} {
		s := strings.TrimSpace(str(raw[key]))
		if s == "" {
			continue
		}
		if t, err := ParseTime(s); err == nil {
			return &t
		}
	}
	return nil
}

// ParseTime accepts the timestamp layouts the filings API has been seen to emit.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported time: %s", s)
}

func amount(v any) decimal.NullDecimal {
	switch x := v.(type) {
	case float64:
		return decimal.NewNullDecimal(decimal.NewFromFloat(x))
	case json.Number:
		if d, err := decimal.NewFromString(x.String()); err == nil {
			return decimal.NewNullDecimal(d)
		}
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(x), ",", "")
		if s == "" {
			break
		}
		if d, err := decimal.NewFromString(s); err == nil {
			return decimal.NewNullDecimal(d)
		}
	}
	return decimal.NullDecimal{}
}

func integer(v any) int {
	switch x := v.(type) {
	case float64:
		return int(x)
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return int(n)
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(x)); err == nil {
			return n
		}
	}
	return 0
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func object(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func objects(v any) []map[string]any {
	arr, _ := v.([]any)
	out := make([]map[string]any, 0, len(arr))
	for _, it := range arr {
		if m, ok := it.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}
