package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nudgekit/nudgekit/internal/domain"
)

type recordingDispatcher struct {
	sent []domain.SendParams
}

func (d *recordingDispatcher) Send(_ context.Context, params domain.SendParams) (domain.DispatchResult, error) {
	d.sent = append(d.sent, params)

	return domain.DispatchResult{MessageID: "m1"}, nil
}

func TestRegistry(t *testing.T) {
	email := &recordingDispatcher{}
	sms := &recordingDispatcher{}

	registry := NewRegistry().
		Register(ChannelEmail, email).
		Register(ChannelSMS, sms)

	resolved, err := registry.Dispatcher(ChannelEmail)
	require.NoError(t, err)
	assert.Same(t, email, resolved)

	_, err = registry.Dispatcher("carrier_pigeon")
	assert.Error(t, err)

	assert.ElementsMatch(t, []string{ChannelEmail, ChannelSMS}, registry.Channels())
}

func TestClassifyDispatchError(t *testing.T) {
	var dispatchErr *domain.DispatchError

	deadlineCtx, cancel := context.WithDeadline(context.Background(), time.Unix(0, 0))
	defer cancel()

	err := classifyDispatchError(deadlineCtx, ChannelEmail, errors.New("request aborted"))
	require.ErrorAs(t, err, &dispatchErr)
	assert.Equal(t, domain.DispatchTimeout, dispatchErr.Kind)
	assert.Equal(t, ChannelEmail, dispatchErr.Channel)

	err = classifyDispatchError(context.Background(), ChannelSlack, context.Canceled)
	require.ErrorAs(t, err, &dispatchErr)
	assert.Equal(t, domain.DispatchUnavailable, dispatchErr.Kind)

	err = classifyDispatchError(context.Background(), ChannelEmail, errors.New("invalid recipient"))
	require.ErrorAs(t, err, &dispatchErr)
	assert.Equal(t, domain.DispatchRejected, dispatchErr.Kind)
}

func TestLogDispatcher(t *testing.T) {
	dispatcher := NewLogDispatcher()

	result, err := dispatcher.Send(context.Background(), domain.SendParams{
		Channel:   ChannelSMS,
		Recipient: "+15550001111",
		Body:      "Keep going!",
	})

	require.NoError(t, err)
	assert.NotEmpty(t, result.MessageID)
}
