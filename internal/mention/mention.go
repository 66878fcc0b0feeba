// Package mention turns breaching operators into subscriber mention blocks.
package mention

import (
	"context"

	"github.com/rs/zerolog"

	"vo-performance-bot/internal/bundle"
	"vo-performance-bot/internal/subscription"
)

// TokenResolver maps a user ID to a mention token. An empty token means the
// user cannot be mentioned at the destination.
type TokenResolver interface {
	ResolveMention(ctx context.Context, userID int64) (string, error)
}

// Resolver collects, filters and resolves mentions.
type Resolver struct {
	tokens TokenResolver
	allow  map[int64]struct{}
	max    int
	logger zerolog.Logger
}

// NewResolver constructs a resolver. An empty allow list admits every user.
func NewResolver(tokens TokenResolver, allow []int64, max int, logger zerolog.Logger) *Resolver {
	r := &Resolver{
		tokens: tokens,
		max:    max,
		logger: logger.With().Str("component", "mention").Logger(),
	}
	if len(allow) > 0 {
		r.allow = make(map[int64]struct{}, len(allow))
		for _, id := range allow {
			r.allow[id] = struct{}{}
		}
	}
	return r
}

// Users returns the users subscribed to kind for any target entity, after
// applying the allow list. Each user appears once.
func (r *Resolver) Users(subs subscription.Set, targets []int64, kind subscription.Kind) []int64 {
	users := subs.Users(targets, kind)
	if r.allow == nil {
		return users
	}
	out := users[:0]
	for _, id := range users {
		if _, ok := r.allow[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// Blocks resolves one token per qualifying user and packs them into
// size-bounded blocks. Users that fail to resolve are skipped.
func (r *Resolver) Blocks(ctx context.Context, subs subscription.Set, targets []int64, kind subscription.Kind) []string {
	if r.tokens == nil {
		return nil
	}
	var tokens []string
	for _, userID := range r.Users(subs, targets, kind) {
		token, err := r.tokens.ResolveMention(ctx, userID)
		if err != nil {
			r.logger.Warn().Err(err).Int64("user_id", userID).Msg("mention lookup failed")
			continue
		}
		if token == "" {
			r.logger.Debug().Int64("user_id", userID).Msg("user not mentionable")
			continue
		}
		tokens = append(tokens, token)
	}
	return bundle.Pack(tokens, r.max)
}
