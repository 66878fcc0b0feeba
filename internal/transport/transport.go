// Package transport declares the delivery primitives the notification engine
// consumes. Concrete chat platforms live in sub-packages.
package transport

import (
	"context"
	"errors"
)

// ErrUnreachable marks a destination that cannot receive messages, for
// example a user who closed private messages to the bot.
var ErrUnreachable = errors.New("transport: destination unreachable")

// Broadcaster posts to the shared alert feed.
type Broadcaster interface {
	Broadcast(ctx context.Context, text string) error
}

// Group is a broadcaster made of destinations that are delivered to
// independently.
type Group interface {
	Broadcaster
	Members() []Broadcaster
}

// DirectMessenger delivers to one user's private chat.
type DirectMessenger interface {
	SendPrivate(ctx context.Context, userID int64, text string) error
}

// MentionResolver maps a user to the token that notifies them in the
// broadcast feed. An empty token with a nil error means not mentionable.
type MentionResolver interface {
	ResolveMention(ctx context.Context, userID int64) (string, error)
}

// Responder answers one interactive command invocation.
type Responder interface {
	RespondInitial(ctx context.Context, text string) error
	RespondFollowup(ctx context.Context, text string) error
}

// Push bundles the primitives used by the scheduled tasks.
type Push interface {
	Broadcaster
	DirectMessenger
	MentionResolver
}
