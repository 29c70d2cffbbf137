package consumer

import (
	"context"

	"github.com/ellenzeng3/lda-filing-bot/internal/domain"
	"github.com/ellenzeng3/lda-filing-bot/internal/notify"
)

// NewRelayHandler forwards each event to n as a single-filing batch.
func NewRelayHandler(n notify.Notifier) Handler {
	return HandlerFunc(func(ctx context.Context, m Message) error {
		return n.Notify(ctx, []domain.Filing{m.Event.Filing()})
	})
}
