package lda

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ellenzeng3/lda-filing-bot/internal/domain"
	"github.com/ellenzeng3/lda-filing-bot/internal/normalizer"
	"github.com/ellenzeng3/lda-filing-bot/internal/observability"
)

// ErrPageLimit reports a fetch cut short by Config.MaxPages.
var ErrPageLimit = errors.New("lda page limit reached")

// Query selects the filings for one reporting period.
type Query struct {
	Period     domain.Period
	Year       int
	ClientName string
}

// Validate rejects queries the API cannot answer.
func (q Query) Validate() error {
	if !q.Period.Valid() {
		return fmt.Errorf("invalid filing period %q", q.Period)
	}
	if q.Year < 1999 {
		return fmt.Errorf("invalid filing year %d", q.Year)
	}
	return nil
}

// Result is the accumulation of one fetch. Records are newest first and exclude known ids.
type Result struct {
	Records        []domain.RawFiling
	Pages          int
	EarlyStopped   bool
	OrderViolation bool
}

// Fetch pages through the period until next is null or, with early stop on, the first known id.
// A transport failure returns everything read so far along with an error wrapping domain.ErrTransport.
func (c *Client) Fetch(ctx context.Context, q Query, known domain.IDSet) (Result, error) {
	var res Result
	if err := q.Validate(); err != nil {
		return res, err
	}
	next, err := c.firstPageURL(q)
	if err != nil {
		return res, fmt.Errorf("build query: %w", err)
	}

	log := c.logger.WithField("period", q.Period).WithField("year", q.Year)
	earlyStop := c.cfg.EarlyStop
	var prev *time.Time

	for n := 1; next != ""; n++ {
		if c.cfg.MaxPages > 0 && n > c.cfg.MaxPages {
			log.WithField("max_pages", c.cfg.MaxPages).Warn("page limit reached, stopping fetch")
			return res, fmt.Errorf("%w: %d pages", ErrPageLimit, c.cfg.MaxPages)
		}

		p, end, err := c.getPage(ctx, next, n == 1)
		if err != nil {
			log.WithError(err).WithField("page", n).WithField("accumulated", len(res.Records)).Warn("fetch stopped early")
			return res, fmt.Errorf("%w: page %d: %w", domain.ErrTransport, n, err)
		}
		if end {
			break
		}
		res.Pages++
		observability.FetchPages.Inc()

		for _, rec := range p.Results {
			if posted := normalizer.PostedAt(rec); posted != nil {
				if prev != nil && posted.After(*prev) && !res.OrderViolation {
					res.OrderViolation = true
					earlyStop = false
					observability.FetchOrderViolations.Inc()
					log.WithField("filing_id", rec.ID()).Warn("results not ordered newest first, disabling early stop")
				}
				prev = posted
			}

			if id := rec.ID(); id != "" && known.Has(id) {
				if earlyStop {
					res.EarlyStopped = true
					log.WithField("filing_id", id).WithField("pages", res.Pages).Debug("reached known filing")
					return res, nil
				}
				continue
			}
			res.Records = append(res.Records, rec)
		}

		if p.Next == nil {
			break
		}
		next = *p.Next
	}

	log.WithField("pages", res.Pages).WithField("records", len(res.Records)).Debug("fetch complete")
	return res, nil
}

// IsPartial reports whether err came back from Fetch alongside usable records.
func IsPartial(res Result, err error) bool {
	if err == nil || len(res.Records) == 0 {
		return false
	}
	return errors.Is(err, domain.ErrTransport) || errors.Is(err, ErrPageLimit)
}
