package classifier

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Watchlist is the relevance policy: description keywords and company names.
type Watchlist struct {
	Keywords  []string `yaml:"keywords"`
	Companies []string `yaml:"companies"`
}

// DefaultWatchlist is the canonical technology policy.
func DefaultWatchlist() Watchlist {
	return Watchlist{
		Keywords: []string{
			"tech", "technology", "technologies", "privacy", "data", "data protection",
			"cybersecurity", "social media", "internet", "ai",
			"artificial intelligence", "platform", "gdpr",
		},
		Companies: []string{
			"amazon", "google", "meta", "facebook", "apple", "microsoft", "twitter",
			"tesla", "netflix", "ibm", "oracle", "intel", "nvidia", "databricks",
		},
	}
}

// LoadWatchlist reads a YAML watchlist. Empty sections fall back to the defaults.
func LoadWatchlist(path string) (Watchlist, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Watchlist{}, err
	}
	var w Watchlist
	if err := yaml.Unmarshal(b, &w); err != nil {
		return Watchlist{}, fmt.Errorf("parse watchlist %s: %w", path, err)
	}
	def := DefaultWatchlist()
	if len(w.Keywords) == 0 {
		w.Keywords = def.Keywords
	}
	if len(w.Companies) == 0 {
		w.Companies = def.Companies
	}
	return w, nil
}

func (w Watchlist) clone() Watchlist {
	out := Watchlist{
		Keywords:  make([]string, 0, len(w.Keywords)),
		Companies: make([]string, 0, len(w.Companies)),
	}
	for _, k := range w.Keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			out.Keywords = append(out.Keywords, k)
		}
	}
	for _, c := range w.Companies {
		if c = NormalizeName(c); c != "" {
			out.Companies = append(out.Companies, c)
		}
	}
	return out
}
