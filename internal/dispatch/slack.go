package dispatch

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"

	"github.com/nudgekit/nudgekit/internal/domain"
)

// SlackDispatcher posts nudges to a Slack channel or DM; the recipient field
// of the agent's channel config carries the Slack channel or user ID.
type SlackDispatcher struct {
	client *slack.Client
}

type SlackDispatcherDependencies struct {
	Token string
}

func NewSlackDispatcher(deps SlackDispatcherDependencies) *SlackDispatcher {
	return &SlackDispatcher{client: slack.New(deps.Token)}
}

func (d *SlackDispatcher) Send(ctx context.Context, params domain.SendParams) (domain.DispatchResult, error) {
	text := params.Body
	if params.Subject != "" {
		text = fmt.Sprintf("*%s*\n%s", params.Subject, params.Body)
	}

	_, timestamp, err := d.client.PostMessageContext(ctx, params.Recipient, slack.MsgOptionText(text, false))
	if err != nil {
		return domain.DispatchResult{}, classifyDispatchError(ctx, ChannelSlack, err)
	}

	return domain.DispatchResult{MessageID: timestamp}, nil
}
