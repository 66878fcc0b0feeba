package commands

import (
	"context"
	"fmt"

	"vo-performance-bot/internal/bundle"
	"vo-performance-bot/internal/compose"
	"vo-performance-bot/internal/dispatch"
	"vo-performance-bot/internal/subscription"
)

const (
	notAllowedHere = compose.NotAllowedHere
	kindRequired   = "Choose a notification type: daily or alerts."
)

func (r *Router) help(ctx context.Context, _ Request, s *dispatch.Session) error {
	return s.Send(ctx, compose.Help)
}

func (r *Router) info(ctx context.Context, _ Request, s *dispatch.Session) error {
	latest, ok, err := r.deps.Performance.LatestDate(ctx)
	if err != nil {
		_ = s.Send(ctx, compose.DataUnavailable)
		return fmt.Errorf("latest date: %w", err)
	}
	if !ok {
		r.logger.Warn().Msg("could not retrieve latest data point date")
	}
	return s.Send(ctx, compose.Info(latest, ok))
}

func (r *Router) alerts(ctx context.Context, _ Request, s *dispatch.Session) error {
	report, _, ok, err := r.deps.Reports.AlertReport(ctx, false)
	if err != nil {
		_ = s.Send(ctx, compose.DataUnavailable)
		return err
	}
	if !ok {
		return s.Send(ctx, compose.DataUnavailable)
	}
	return s.SendAll(ctx, report.Messages(r.deps.MaxLength, r.today()))
}

func (r *Router) operator(ctx context.Context, req Request, s *dispatch.Session) error {
	ids := ParseIDs(req.Args)
	if len(ids) == 0 {
		return s.Send(ctx, compose.InvalidIDs)
	}
	blocks, ok, err := r.deps.Reports.OperatorBlocks(ctx, ids)
	if err != nil {
		_ = s.Send(ctx, compose.DataUnavailable)
		return err
	}
	if !ok {
		r.logger.Info().Ints64("ids", ids).Msg("no performance data for requested operators")
		return s.Send(ctx, compose.DataUnavailable)
	}
	return s.SendAll(ctx, bundle.Pack(blocks, r.deps.MaxLength))
}

func (r *Router) subscribe(ctx context.Context, req Request, s *dispatch.Session) error {
	kind, ids, ok := r.subscriptionArgs(ctx, req, s)
	if !ok {
		return nil
	}
	if r.deps.Prober != nil && !r.deps.Prober.Probe(ctx, req.UserID, compose.DMProbe) {
		if err := s.Send(ctx, compose.DMProbeFailed); err != nil {
			return err
		}
	}
	for _, id := range ids {
		if err := r.deps.Subscriptions.Add(ctx, req.UserID, id, kind); err != nil {
			_ = s.Send(ctx, compose.SubscriptionsFailed)
			return fmt.Errorf("add %s subscription %d: %w", kind, id, err)
		}
	}
	return r.acknowledge(ctx, req, s)
}

func (r *Router) unsubscribe(ctx context.Context, req Request, s *dispatch.Session) error {
	kind, ids, ok := r.subscriptionArgs(ctx, req, s)
	if !ok {
		return nil
	}
	for _, id := range ids {
		if err := r.deps.Subscriptions.Remove(ctx, req.UserID, id, kind); err != nil {
			_ = s.Send(ctx, compose.SubscriptionsFailed)
			return fmt.Errorf("remove %s subscription %d: %w", kind, id, err)
		}
	}
	return r.acknowledge(ctx, req, s)
}

func (r *Router) subscriptionArgs(ctx context.Context, req Request, s *dispatch.Session) (subscription.Kind, []int64, bool) {
	if len(req.Args) == 0 {
		_ = s.Send(ctx, kindRequired)
		return "", nil, false
	}
	kind, err := subscription.ParseKind(req.Args[0])
	if err != nil {
		_ = s.Send(ctx, kindRequired)
		return "", nil, false
	}
	ids := ParseIDs(req.Args[1:])
	if len(ids) == 0 {
		_ = s.Send(ctx, compose.InvalidIDs)
		return "", nil, false
	}
	return kind, ids, true
}

func (r *Router) acknowledge(ctx context.Context, req Request, s *dispatch.Session) error {
	if err := s.Send(ctx, compose.SubscriptionsUpdated); err != nil {
		return err
	}
	return r.sendSubscriptions(ctx, req, s)
}

func (r *Router) subscriptions(ctx context.Context, req Request, s *dispatch.Session) error {
	return r.sendSubscriptions(ctx, req, s)
}

func (r *Router) sendSubscriptions(ctx context.Context, req Request, s *dispatch.Session) error {
	set, err := r.deps.Subscriptions.ByUser(ctx, req.UserID)
	if err != nil {
		_ = s.Send(ctx, compose.DataUnavailable)
		return fmt.Errorf("list subscriptions: %w", err)
	}
	return s.Send(ctx, compose.Subscriptions(set, req.UserID))
}
