package dispatch

import (
	"context"

	"vo-performance-bot/internal/metrics"
	"vo-performance-bot/internal/transport"
)

// Session tracks one interactive invocation. The first successful message
// goes through RespondInitial; every later one is a follow-up.
type Session struct {
	r         transport.Responder
	metrics   metrics.Recorder
	responded bool
}

// NewSession wraps a responder for a single command invocation.
func NewSession(r transport.Responder, rec metrics.Recorder) *Session {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Session{r: r, metrics: rec}
}

// Responded reports whether the initial response has been sent.
func (s *Session) Responded() bool { return s.responded }

// Send delivers text using the primitive that matches the session state.
func (s *Session) Send(ctx context.Context, text string) error {
	var err error
	if s.responded {
		err = s.r.RespondFollowup(ctx, text)
	} else {
		err = s.r.RespondInitial(ctx, text)
	}
	if err != nil {
		s.metrics.SendFailed(ChannelResponse)
		return err
	}
	s.responded = true
	s.metrics.MessageSent(ChannelResponse)
	return nil
}

// SendAll delivers bundles in order, stopping at the first failure.
func (s *Session) SendAll(ctx context.Context, bundles []string) error {
	for _, b := range bundles {
		if err := s.Send(ctx, b); err != nil {
			return err
		}
	}
	return nil
}
