package domain

import "context"

type SendParams struct {
	Channel   string
	Recipient string
	Subject   string
	Body      string
	From      string
}

type DispatchResult struct {
	MessageID string
}

// ChannelDispatcher delivers one rendered nudge over one channel. The engine
// depends only on this interface; concrete providers live behind it.
type ChannelDispatcher interface {
	Send(ctx context.Context, params SendParams) (DispatchResult, error)
}

// DispatcherRegistry resolves a dispatcher for a channel name from the
// agent's channel config.
type DispatcherRegistry interface {
	Dispatcher(channel string) (ChannelDispatcher, error)
}
