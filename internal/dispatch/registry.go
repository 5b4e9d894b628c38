package dispatch

import (
	"fmt"

	"github.com/nudgekit/nudgekit/internal/domain"
)

const (
	ChannelEmail = "email"
	ChannelSlack = "slack"
	ChannelSMS   = "sms"
	ChannelPush  = "push"
)

// Registry resolves channel names from agent configs to dispatchers. Unknown
// channels fail per row at dispatch time, not per run.
type Registry struct {
	byChannel map[string]domain.ChannelDispatcher
}

func NewRegistry() *Registry {
	return &Registry{byChannel: map[string]domain.ChannelDispatcher{}}
}

func (r *Registry) Register(channel string, dispatcher domain.ChannelDispatcher) *Registry {
	r.byChannel[channel] = dispatcher

	return r
}

func (r *Registry) Dispatcher(channel string) (domain.ChannelDispatcher, error) {
	dispatcher, ok := r.byChannel[channel]
	if !ok {
		return nil, fmt.Errorf("no dispatcher registered for channel %q", channel)
	}

	return dispatcher, nil
}

// Channels returns the registered channel names.
func (r *Registry) Channels() []string {
	channels := make([]string, 0, len(r.byChannel))
	for channel := range r.byChannel {
		channels = append(channels, channel)
	}

	return channels
}
