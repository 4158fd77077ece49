// Package transport connects the bot to a chat network.
//
// Information Hiding:
// - Network login, sync and media upload hidden behind Transport
// - Message content encoding hidden
package transport

import (
	"context"
	"time"
)

// Event is an inbound text message.
type Event struct {
	Room      string
	Sender    string
	Text      string
	Timestamp time.Time
}

// Transport delivers inbound messages and posts replies.
type Transport interface {
	// Events returns the inbound message stream. It is closed when Run
	// returns.
	Events() <-chan Event

	// Run syncs until ctx is cancelled or the connection fails.
	Run(ctx context.Context) error

	// UserID returns the bot's own user ID.
	UserID() string

	// SendText posts body, with an HTML rendering when html is non-empty.
	SendText(ctx context.Context, room, body, html string) error

	// SendImage uploads the file at path and posts it under filename.
	SendImage(ctx context.Context, room, path, filename string) error

	// DisplayName returns a user's display name.
	DisplayName(ctx context.Context, user string) (string, error)
}
