package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"vo-performance-bot/internal/alerts"
	"vo-performance-bot/internal/compose"
	"vo-performance-bot/internal/config"
	"vo-performance-bot/internal/dispatch"
	"vo-performance-bot/internal/mention"
	"vo-performance-bot/internal/metrics"
	"vo-performance-bot/internal/performance"
	"vo-performance-bot/internal/scheduler"
	"vo-performance-bot/internal/storage"
	"vo-performance-bot/internal/subscription"
	"vo-performance-bot/internal/transport"
)

// Task names used by the scheduler, logs and metrics.
const (
	TaskAlerts = "alerts"
	TaskDigest = "digest"
)

// Transports groups the delivery primitives. Any of them may be nil when the
// caller only composes.
type Transports struct {
	Broadcast transport.Broadcaster
	Private   transport.DirectMessenger
	Mentions  transport.MentionResolver
}

// Service orchestrates the alert and digest cycles.
type Service struct {
	scheduler  *scheduler.Scheduler
	perf       storage.PerformanceRepository
	subs       storage.SubscriptionRepository
	dispatcher *dispatch.Dispatcher
	mentions   *mention.Resolver
	metrics    metrics.Recorder
	logger     zerolog.Logger

	thresholds alerts.Thresholds
	digestDays int
	extra      string
	allow      []int64
	location   *time.Location
	now        func() time.Time
	locker     storage.AdvisoryLocker
	lockKey    int64
}

// New constructs the notification service and its scheduler.
func New(cfg *config.Config, perf storage.PerformanceRepository, subs storage.SubscriptionRepository, tr Transports, rec metrics.Recorder, logger zerolog.Logger) (*Service, error) {
	if rec == nil {
		rec = metrics.Nop{}
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSchedulerSetup, err)
	}

	var tokens mention.TokenResolver
	if tr.Mentions != nil {
		tokens = tr.Mentions
	}

	var locker storage.AdvisoryLocker
	if l, ok := perf.(storage.AdvisoryLocker); ok {
		locker = l
	}

	s := &Service{
		perf: perf,
		subs: subs,
		dispatcher: dispatch.New(tr.Broadcast, tr.Private, dispatch.Options{
			MaxLength:  cfg.Notify.MaxMessageLength,
			RatePerSec: cfg.Notify.RatePerSecond,
			Burst:      cfg.Notify.Burst,
		}, rec, logger),
		mentions:   mention.NewResolver(tokens, cfg.Notify.AllowedUserIDs, cfg.Notify.MaxMessageLength, logger),
		metrics:    rec,
		logger:     logger.With().Str("component", "service").Logger(),
		thresholds: cfg.Thresholds(),
		digestDays: cfg.Notify.DigestDays,
		extra:      cfg.Notify.ExtraMessage,
		allow:      cfg.Notify.AllowedUserIDs,
		location:   loc,
		now:        time.Now,
		locker:     locker,
		lockKey:    cfg.Schedule.AdvisoryLockKey,
	}

	sched, err := scheduler.New(scheduler.Options{
		TimeOfDay: cfg.Schedule.AlertTime,
		Location:  loc,
		Grace:     cfg.Schedule.Grace,
		Period:    cfg.Schedule.Period,
		OnFailure: s.notifyFailure,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSchedulerSetup, err)
	}
	s.scheduler = sched
	return s, nil
}

// Dispatcher exposes the delivery engine for interactive commands.
func (s *Service) Dispatcher() *dispatch.Dispatcher { return s.dispatcher }

// SetClock replaces the time source used to date reports and digests.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// NextFire reports when the scheduled tasks fire first.
func (s *Service) NextFire() time.Time { return s.scheduler.Next() }

// Run starts both daily tasks from the same aligned instant and blocks until
// ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("%w: scheduler not configured", ErrSchedulerSetup)
	}
	return s.scheduler.Run(ctx,
		scheduler.Task{Name: TaskAlerts, Run: s.track(TaskAlerts, s.AlertCycle)},
		scheduler.Task{Name: TaskDigest, Run: s.track(TaskDigest, s.digestTask)},
	)
}

func (s *Service) track(task string, fn scheduler.TaskFunc) scheduler.TaskFunc {
	return func(ctx context.Context) error {
		err := fn(ctx)
		s.metrics.CycleFinished(task, err)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrPeriodicTask, task, err)
		}
		return nil
	}
}

func (s *Service) digestTask(ctx context.Context) error {
	_, err := s.DigestCycle(ctx)
	return err
}

// notifyFailure posts a best-effort notice to the shared feed when either
// periodic task fails.
func (s *Service) notifyFailure(ctx context.Context, task string, err error) {
	notice := compose.CycleFailed
	if task == TaskDigest {
		notice = compose.DigestFailed
	}
	if noticeErr := s.dispatcher.Notice(ctx, notice); noticeErr != nil {
		s.logger.Error().Err(noticeErr).AnErr("cause", err).Str("task", task).Msg("failed to post cycle failure notice")
	}
}

func (s *Service) today() time.Time {
	return s.now().In(s.location)
}

// AlertReport reads a fresh snapshot and composes the threshold report. When
// withMentions is set, subscribers of breaching operators are appended as
// mention blocks. An empty snapshot yields ok=false.
func (s *Service) AlertReport(ctx context.Context, withMentions bool) (dispatch.Report, []alerts.Result, bool, error) {
	snap, err := s.perf.All(ctx)
	if err != nil {
		return dispatch.Report{}, nil, false, fmt.Errorf("%w: %w", ErrRepositoryUnavailable, err)
	}
	if len(snap) == 0 {
		return dispatch.Report{}, nil, false, nil
	}

	results := alerts.EvaluateAll(snap, s.thresholds)
	for _, res := range results {
		s.metrics.Breaching(string(res.Horizon), len(res.Breaching))
	}
	report := dispatch.Report{
		Alerts: compose.ReportBlocks(results, s.dispatcher.MaxLength()),
		Extra:  s.extra,
	}

	if withMentions {
		subs, err := s.subs.ByKind(ctx, subscription.Alerts)
		if err != nil {
			s.logger.Warn().Err(err).Msg("alert subscriptions unavailable; posting without mentions")
		} else {
			report.Mentions = s.mentions.Blocks(ctx, subs, alerts.Breaching(results...), subscription.Alerts)
		}
	}
	return report, results, true, nil
}

// AlertCycle composes and broadcasts the daily threshold report.
func (s *Service) AlertCycle(ctx context.Context) error {
	unlock, proceed, err := s.acquireLock(ctx, s.lockKey)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Info().Msg("skip alert cycle because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	report, _, ok, err := s.AlertReport(ctx, true)
	if err != nil {
		return err
	}
	if !ok {
		s.logger.Warn().Msg("performance data unavailable; alert cycle skipped")
		return nil
	}
	sent, err := s.dispatcher.Broadcast(ctx, report, s.today())
	if err != nil {
		return fmt.Errorf("broadcast alerts after %d messages: %w", sent, err)
	}
	s.logger.Info().
		Int("alert_blocks", len(report.Alerts)).
		Int("mention_blocks", len(report.Mentions)).
		Int("messages", sent).
		Msg("alert cycle finished")
	return nil
}

// DigestEntries composes one digest block per operator with at least one
// daily subscriber, in ascending operator order.
func (s *Service) DigestEntries(ctx context.Context) ([]dispatch.DigestEntry, subscription.Set, error) {
	subs, err := s.subs.ByKind(ctx, subscription.Daily)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrRepositoryUnavailable, err)
	}
	ids := subs.EntityIDs(subscription.Daily)
	if len(ids) == 0 {
		return nil, subs, nil
	}
	snap, err := s.perf.ByIDs(ctx, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrRepositoryUnavailable, err)
	}
	return s.digestEntries(snap), subs, nil
}

func (s *Service) digestEntries(snap performance.Snapshot) []dispatch.DigestEntry {
	today := s.today()
	ids := snap.SortedIDs()
	entries := make([]dispatch.DigestEntry, 0, len(ids))
	for _, id := range ids {
		entries = append(entries, dispatch.DigestEntry{
			EntityID: id,
			Block:    compose.Digest(snap[id], today, s.digestDays),
		})
	}
	return entries
}

// DigestCycle delivers private digests to every daily subscriber.
func (s *Service) DigestCycle(ctx context.Context) (dispatch.DigestReport, error) {
	if !s.dispatcher.CanDeliverPrivate() {
		s.logger.Warn().Msg("no private transport configured; digest cycle skipped")
		return dispatch.DigestReport{}, nil
	}
	var lockKey int64
	if s.lockKey != 0 {
		lockKey = s.lockKey + 1
	}
	unlock, proceed, err := s.acquireLock(ctx, lockKey)
	if err != nil {
		return dispatch.DigestReport{}, err
	}
	if !proceed {
		s.logger.Info().Msg("skip digest cycle because advisory lock held elsewhere")
		return dispatch.DigestReport{}, nil
	}
	if unlock != nil {
		defer unlock()
	}

	entries, subs, err := s.DigestEntries(ctx)
	if err != nil {
		return dispatch.DigestReport{}, err
	}
	if len(subs) == 0 {
		s.logger.Warn().Msg("no daily subscriptions; digest cycle skipped")
		return dispatch.DigestReport{}, nil
	}
	if len(entries) == 0 {
		s.logger.Warn().Msg("no performance data for subscribed operators; digest cycle skipped")
		return dispatch.DigestReport{}, nil
	}

	report, err := s.dispatcher.Digest(ctx, entries, subs, s.allow)
	if err != nil {
		return report, err
	}
	if len(report.Failed) > 0 {
		s.logger.Warn().Err(ErrRecipientUnreachable).Ints64("users", report.Failed).Msg("some digest recipients were skipped")
	}
	return report, nil
}

// OperatorBlocks composes digest blocks for the requested operators in
// ascending ID order, followed by a notice listing IDs without data. ok is
// false when none of the IDs has data.
func (s *Service) OperatorBlocks(ctx context.Context, ids []int64) ([]string, bool, error) {
	snap, err := s.perf.ByIDs(ctx, ids)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrRepositoryUnavailable, err)
	}
	if len(snap) == 0 {
		return nil, false, nil
	}
	var blocks []string
	var missing []int64
	for _, entry := range s.digestEntries(snap) {
		blocks = append(blocks, entry.Block)
	}
	for _, id := range ids {
		if _, ok := snap[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		blocks = append(blocks, compose.MissingIDs(missing))
	}
	return blocks, true, nil
}

func (s *Service) acquireLock(ctx context.Context, key int64) (func(), bool, error) {
	if key == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
