package dispatch

import (
	"context"

	"github.com/rs/xid"
	"github.com/rs/zerolog/log"

	"github.com/nudgekit/nudgekit/internal/domain"
)

// LogDispatcher writes nudges to the process log instead of a delivery
// provider. It stands in for channels without a configured provider (sms,
// push) and for local development.
type LogDispatcher struct{}

func NewLogDispatcher() *LogDispatcher {
	return &LogDispatcher{}
}

func (d *LogDispatcher) Send(_ context.Context, params domain.SendParams) (domain.DispatchResult, error) {
	log.Info().
		Str("channel", params.Channel).
		Str("recipient", params.Recipient).
		Str("subject", params.Subject).
		Str("body", params.Body).
		Msg("Nudge logged (no delivery provider configured for channel)")

	return domain.DispatchResult{MessageID: xid.New().String()}, nil
}
