// Package notify delivers new relevant filings to chat and event sinks. Delivery is best effort.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/ellenzeng3/lda-filing-bot/internal/domain"
	"github.com/ellenzeng3/lda-filing-bot/internal/observability"
)

// Notifier publishes a batch of filings.
type Notifier interface {
	Notify(ctx context.Context, filings []domain.Filing) error
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, filings []domain.Filing) error

// Notify implements Notifier.
func (f Func) Notify(ctx context.Context, filings []domain.Filing) error { return f(ctx, filings) }

// Named labels a notifier for metrics.
type Named interface {
	Name() string
}

// Multi fans a batch out to every notifier and joins their errors.
type Multi []Notifier

// Notify implements Notifier. A failing notifier does not stop the others.
func (m Multi) Notify(ctx context.Context, filings []domain.Filing) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, filings); err != nil {
			name := "unknown"
			if named, ok := n.(Named); ok {
				name = named.Name()
			}
			observability.NotificationsFailed.WithLabelValues(name).Inc()
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", domain.ErrNotification, errors.Join(errs...))
}

var printer = message.NewPrinter(language.English)

// FormatDollars renders whole amounts as $15,000 and fractional ones as $15,000.50.
// Negative amounts lead with the sign: -$5, -$0.50.
func FormatDollars(d decimal.Decimal) string {
	r := d.Round(2)
	sign := ""
	if r.IsNegative() {
		sign = "-"
		r = r.Abs()
	}
	whole := r.Truncate(0)
	if r.Equal(whole) {
		return sign + printer.Sprintf("$%d", whole.IntPart())
	}
	cents := r.Sub(whole).Shift(2).IntPart()
	return sign + printer.Sprintf("$%d.%02d", whole.IntPart(), cents)
}

// FormatNullDollars returns "" when the amount is null.
func FormatNullDollars(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return FormatDollars(d.Decimal)
}
