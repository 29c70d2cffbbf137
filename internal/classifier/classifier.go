// Package classifier decides whether a filing is relevant to the technology watchlist.
package classifier

import (
	"regexp"
	"strings"

	"github.com/ellenzeng3/lda-filing-bot/internal/domain"
)

var (
	dbaPattern         = regexp.MustCompile(`\b(d/b/a|dba|doing business as)\b`)
	punctuationPattern = regexp.MustCompile(`[^a-z0-9\s]`)
	suffixPattern      = regexp.MustCompile(`\b(inc|incorporated|llc|l l c|ltd|limited|corp|corporation|co|company|llp|lp|plc|gmbh|sa|ag)\b`)
	spacePattern       = regexp.MustCompile(`\s+`)
)

// NormalizeName canonicalizes an organization name for comparison.
func NormalizeName(s string) string {
	s = strings.ToLower(s)
	s = dbaPattern.ReplaceAllString(s, " ")
	s = punctuationPattern.ReplaceAllString(s, " ")
	s = suffixPattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(spacePattern.ReplaceAllString(s, " "))
}

// Classifier is an immutable relevance policy.
type Classifier struct {
	watch Watchlist
}

// New snapshots w; later edits to w do not affect the classifier.
func New(w Watchlist) *Classifier {
	return &Classifier{watch: w.clone()}
}

// Classify reports whether f matches a keyword in its descriptions or a watched
// company in its client or registrant name.
func (c *Classifier) Classify(f domain.Filing) bool {
	desc := strings.ToLower(f.Descriptions)
	for _, k := range c.watch.Keywords {
		if strings.Contains(desc, k) {
			return true
		}
	}
	client := NormalizeName(f.ClientName)
	registrant := NormalizeName(f.RegistrantName)
	for _, company := range c.watch.Companies {
		if strings.Contains(client, company) || strings.Contains(registrant, company) {
			return true
		}
	}
	return false
}

// IsExactCompany reports whether clientName names company, guarding short tokens
// against substring false positives.
func IsExactCompany(clientName, company string) bool {
	token := NormalizeName(company)
	if token == "" {
		return false
	}
	if len(token) <= 2 {
		return NormalizeName(clientName) == token
	}
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(token) + `\b`)
	return re.MatchString(strings.ToLower(clientName))
}
