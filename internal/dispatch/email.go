package dispatch

import (
	"context"
	"errors"

	"github.com/resend/resend-go/v2"

	"github.com/nudgekit/nudgekit/internal/domain"
)

// EmailDispatcher delivers nudges over email through Resend.
type EmailDispatcher struct {
	client      *resend.Client
	defaultFrom string
}

type EmailDispatcherDependencies struct {
	APIKey      string
	DefaultFrom string
}

func NewEmailDispatcher(deps EmailDispatcherDependencies) *EmailDispatcher {
	return &EmailDispatcher{
		client:      resend.NewClient(deps.APIKey),
		defaultFrom: deps.DefaultFrom,
	}
}

func (d *EmailDispatcher) Send(ctx context.Context, params domain.SendParams) (domain.DispatchResult, error) {
	from := params.From
	if from == "" {
		from = d.defaultFrom
	}

	request := &resend.SendEmailRequest{
		From:    from,
		To:      []string{params.Recipient},
		Subject: params.Subject,
		Text:    params.Body,
	}

	response, err := d.client.Emails.SendWithContext(ctx, request)
	if err != nil {
		return domain.DispatchResult{}, classifyDispatchError(ctx, ChannelEmail, err)
	}

	return domain.DispatchResult{MessageID: response.Id}, nil
}

// classifyDispatchError maps a provider error onto the dispatch taxonomy: a
// deadline is a Timeout, a cancelled context Unavailable, anything the
// provider refused Rejected.
func classifyDispatchError(ctx context.Context, channel string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &domain.DispatchError{Kind: domain.DispatchTimeout, Channel: channel, Err: err}
	case errors.Is(err, context.Canceled):
		return &domain.DispatchError{Kind: domain.DispatchUnavailable, Channel: channel, Err: err}
	default:
		return &domain.DispatchError{Kind: domain.DispatchRejected, Channel: channel, Err: err}
	}
}
