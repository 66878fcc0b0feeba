// Package dispatch delivers bundled notifications to the broadcast feed, to
// private digests and to interactive command replies.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"vo-performance-bot/internal/bundle"
	"vo-performance-bot/internal/compose"
	"vo-performance-bot/internal/metrics"
	"vo-performance-bot/internal/subscription"
	"vo-performance-bot/internal/transport"
)

// Channel labels used for metrics and logs.
const (
	ChannelBroadcast = "broadcast"
	ChannelPrivate   = "private"
	ChannelResponse  = "response"
)

// Options tune delivery.
type Options struct {
	MaxLength  int
	RatePerSec float64
	Burst      int
}

// Dispatcher fans bundles out to their destinations.
type Dispatcher struct {
	broadcast transport.Broadcaster
	private   transport.DirectMessenger
	max       int
	limiter   *rate.Limiter
	metrics   metrics.Recorder
	logger    zerolog.Logger
}

// New constructs a Dispatcher. Either destination may be nil when the caller
// never uses the matching mode.
func New(b transport.Broadcaster, dm transport.DirectMessenger, opts Options, rec metrics.Recorder, logger zerolog.Logger) *Dispatcher {
	limit := rate.Inf
	if opts.RatePerSec > 0 {
		limit = rate.Limit(opts.RatePerSec)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Dispatcher{
		broadcast: b,
		private:   dm,
		max:       opts.MaxLength,
		limiter:   rate.NewLimiter(limit, burst),
		metrics:   rec,
		logger:    logger.With().Str("component", "dispatch").Logger(),
	}
}

// MaxLength is the bundle size limit in runes.
func (d *Dispatcher) MaxLength() int { return d.max }

// CanDeliverPrivate reports whether a private destination is configured.
func (d *Dispatcher) CanDeliverPrivate() bool { return d.private != nil }

// Report is the content of one threshold report.
type Report struct {
	Alerts   []string
	Mentions []string
	Extra    string
}

// Bundles packs alerts, mentions and the trailing extra message in a single
// pass so the report uses as few messages as possible.
func (r Report) Bundles(max int) []string {
	blocks := make([]string, 0, len(r.Alerts)+len(r.Mentions)+1)
	blocks = append(blocks, r.Alerts...)
	blocks = append(blocks, r.Mentions...)
	if r.Extra != "" {
		blocks = append(blocks, r.Extra)
	}
	return bundle.Pack(blocks, max)
}

// Messages returns the bundles that answer for the report, or the dated
// no-alerts notice when the report is empty.
func (r Report) Messages(max int, today time.Time) []string {
	bundles := r.Bundles(max)
	if len(bundles) == 0 {
		bundles = []string{compose.NoAlerts(today)}
	}
	return bundles
}

// Broadcast posts the report to the shared feed in order. Every member of a
// transport.Group receives the whole sequence independently: a destination
// that fails stops receiving but the others continue. An error is returned
// only when no destination got the full report. The count is the largest
// number of messages any single destination received.
func (d *Dispatcher) Broadcast(ctx context.Context, report Report, today time.Time) (int, error) {
	if d.broadcast == nil {
		return 0, errors.New("dispatch: broadcast destination not configured")
	}
	bundles := report.Messages(d.max, today)

	dests := []transport.Broadcaster{d.broadcast}
	if g, ok := d.broadcast.(transport.Group); ok {
		dests = g.Members()
	}

	var (
		errs      []error
		delivered int
		best      int
	)
	for i, dest := range dests {
		sent, err := d.broadcastTo(ctx, dest, bundles)
		best = max(best, sent)
		if err != nil {
			d.logger.Error().Err(err).Int("destination", i).Int("sent", sent).Msg("broadcast destination failed")
			errs = append(errs, err)
			continue
		}
		delivered++
	}
	if delivered == 0 {
		return best, errors.Join(errs...)
	}
	d.logger.Info().Int("messages", len(bundles)).Int("destinations", delivered).Int("failed", len(errs)).Msg("broadcast delivered")
	return best, nil
}

func (d *Dispatcher) broadcastTo(ctx context.Context, dest transport.Broadcaster, bundles []string) (int, error) {
	for i, b := range bundles {
		if err := d.wait(ctx); err != nil {
			return i, err
		}
		if err := dest.Broadcast(ctx, b); err != nil {
			d.metrics.SendFailed(ChannelBroadcast)
			return i, fmt.Errorf("broadcast message %d/%d: %w", i+1, len(bundles), err)
		}
		d.metrics.MessageSent(ChannelBroadcast)
	}
	return len(bundles), nil
}

// Notice posts a single best-effort text to the shared feed.
func (d *Dispatcher) Notice(ctx context.Context, text string) error {
	if d.broadcast == nil {
		return errors.New("dispatch: broadcast destination not configured")
	}
	if err := d.broadcast.Broadcast(ctx, text); err != nil {
		d.metrics.SendFailed(ChannelBroadcast)
		return err
	}
	d.metrics.MessageSent(ChannelBroadcast)
	return nil
}

// DigestEntry is one operator's digest block.
type DigestEntry struct {
	EntityID int64
	Block    string
}

// DigestReport summarises a digest fan-out.
type DigestReport struct {
	Delivered []int64
	Failed    []int64
	Messages  int
}

// Queues assigns every entry to each of its daily subscribers, honouring the
// allow list when it is non-empty. Users and blocks come out in ascending order.
func Queues(entries []DigestEntry, subs subscription.Set, allow []int64) ([]int64, map[int64][]string) {
	var allowed map[int64]struct{}
	if len(allow) > 0 {
		allowed = make(map[int64]struct{}, len(allow))
		for _, id := range allow {
			allowed[id] = struct{}{}
		}
	}

	queues := make(map[int64][]string)
	var users []int64
	for _, e := range entries {
		for _, userID := range subs.Users([]int64{e.EntityID}, subscription.Daily) {
			if allowed != nil {
				if _, ok := allowed[userID]; !ok {
					continue
				}
			}
			if _, seen := queues[userID]; !seen {
				users = append(users, userID)
			}
			queues[userID] = append(queues[userID], e.Block)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
	return users, queues
}

// Digest delivers each recipient's queue one recipient at a time. A failure
// for one recipient is logged and does not affect the others.
func (d *Dispatcher) Digest(ctx context.Context, entries []DigestEntry, subs subscription.Set, allow []int64) (DigestReport, error) {
	var report DigestReport
	if d.private == nil {
		return report, errors.New("dispatch: private delivery not configured")
	}
	users, queues := Queues(entries, subs, allow)
	for _, userID := range users {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		sent, err := d.deliverPrivate(ctx, userID, bundle.Pack(queues[userID], d.max))
		report.Messages += sent
		if err != nil {
			d.metrics.SendFailed(ChannelPrivate)
			d.logger.Error().Err(err).Int64("user_id", userID).Msg("digest delivery failed; skipping recipient")
			report.Failed = append(report.Failed, userID)
			continue
		}
		report.Delivered = append(report.Delivered, userID)
	}
	d.logger.Info().
		Int("recipients", len(users)).
		Int("failed", len(report.Failed)).
		Int("messages", report.Messages).
		Msg("digest fan-out finished")
	return report, nil
}

func (d *Dispatcher) deliverPrivate(ctx context.Context, userID int64, bundles []string) (int, error) {
	for i, b := range bundles {
		if err := d.wait(ctx); err != nil {
			return i, err
		}
		if err := d.private.SendPrivate(ctx, userID, b); err != nil {
			return i, fmt.Errorf("%w: user %d: %w", transport.ErrUnreachable, userID, err)
		}
		d.metrics.MessageSent(ChannelPrivate)
	}
	return len(bundles), nil
}

// Probe sends a single private message and reports whether it was delivered.
func (d *Dispatcher) Probe(ctx context.Context, userID int64, text string) bool {
	if d.private == nil {
		return false
	}
	if err := d.private.SendPrivate(ctx, userID, text); err != nil {
		d.metrics.SendFailed(ChannelPrivate)
		d.logger.Warn().Err(err).Int64("user_id", userID).Msg("private message probe failed")
		return false
	}
	d.metrics.MessageSent(ChannelPrivate)
	return true
}

func (d *Dispatcher) wait(ctx context.Context) error {
	return d.limiter.Wait(ctx)
}
