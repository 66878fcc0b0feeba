package commands

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"vo-performance-bot/internal/compose"
	"vo-performance-bot/internal/config"
	"vo-performance-bot/internal/performance"
	"vo-performance-bot/internal/service"
	"vo-performance-bot/internal/storage"
	"vo-performance-bot/internal/subscription"
)

type replies struct {
	initial   []string
	followups []string
}

func (r *replies) RespondInitial(_ context.Context, text string) error {
	r.initial = append(r.initial, text)
	return nil
}

func (r *replies) RespondFollowup(_ context.Context, text string) error {
	r.followups = append(r.followups, text)
	return nil
}

func (r *replies) all() []string {
	return append(append([]string(nil), r.initial...), r.followups...)
}

type probe struct{ ok bool }

func (p probe) Probe(context.Context, int64, string) bool { return p.ok }

var fixedNow = time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)

func val(v string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(v))
}

type reportOptions struct {
	daily   []float64
	monthly []float64
	extra   string
}

func newRouter(t *testing.T, st storage.PerformanceRepository, subs storage.SubscriptionRepository, opts reportOptions, deps Deps) *Router {
	t.Helper()
	cfg := &config.Config{
		Schedule: config.ScheduleConfig{AlertTime: "09:00", Timezone: "UTC", Grace: time.Minute, Period: 24 * time.Hour},
		Alerts:   config.AlertsConfig{Thresholds24h: opts.daily, Thresholds30d: opts.monthly},
		Notify:   config.NotifyConfig{MaxMessageLength: 4000, DigestDays: 2, ExtraMessage: opts.extra},
	}
	svc, err := service.New(cfg, st, subs, service.Transports{}, nil, zerolog.Nop())
	require.NoError(t, err)
	svc.SetClock(func() time.Time { return fixedNow })

	deps.Performance = st
	deps.Subscriptions = subs
	deps.Reports = svc
	deps.Now = func() time.Time { return fixedNow }
	deps.Location = time.UTC
	if deps.MaxLength == 0 {
		deps.MaxLength = 4000
	}
	return NewRouter(deps, zerolog.Nop())
}

func newSeededRouter(t *testing.T, st *storage.MemoryStore, deps Deps) *Router {
	t.Helper()
	return newRouter(t, st, st, reportOptions{}, deps)
}

func seeded() *storage.MemoryStore {
	return storage.NewMemoryStore(
		performance.Record{
			ID: 1, Name: "Alpha", ValidatorCount: 5, Verified: true,
			Perf24h: performance.Series{"2024-05-01": val("0.80"), "2024-05-02": val("0.70")},
			Perf30d: performance.Series{"2024-05-02": val("0.995")},
		},
		performance.Record{
			ID: 2, Name: "Beta", ValidatorCount: 3, Verified: true,
			Perf24h: performance.Series{"2024-05-02": val("1")},
		},
	)
}

func TestParseIDs(t *testing.T) {
	require.Equal(t, []int64{3, 1, 7}, ParseIDs([]string{"3", "x", "1,7", "-2", "0", "3"}))
	require.Empty(t, ParseIDs([]string{"abc"}))
}

func TestUnknownCommandIgnored(t *testing.T) {
	r := newSeededRouter(t, seeded(), Deps{})
	resp := &replies{}
	require.NoError(t, r.Dispatch(context.Background(), Request{Name: "nope", Private: true}, resp))
	require.Empty(t, resp.all())
}

func TestCommandRejectedOutsideCommandChat(t *testing.T) {
	r := newSeededRouter(t, seeded(), Deps{CommandChatID: -100})
	resp := &replies{}
	require.NoError(t, r.Dispatch(context.Background(), Request{Name: "help", ChatID: -5}, resp))
	require.Equal(t, []string{compose.NotAllowedHere}, resp.initial)

	resp = &replies{}
	require.NoError(t, r.Dispatch(context.Background(), Request{Name: "/help", ChatID: -100}, resp))
	require.Equal(t, []string{compose.Help}, resp.initial)
}

func TestAlertsCommand(t *testing.T) {
	st := seeded()
	r := newRouter(t, st, st, reportOptions{daily: []float64{0.75}, monthly: []float64{0.99}, extra: "See the dashboard."}, Deps{})
	resp := &replies{}
	require.NoError(t, r.Dispatch(context.Background(), Request{Name: "alerts", Private: true}, resp))
	require.Len(t, resp.initial, 1)
	require.Empty(t, resp.followups)
	require.Equal(t, "24h < 75%:\n- Alpha - 70.00%    (ID: 1, Validators: 5)\nSee the dashboard.", resp.initial[0])
}

func TestAlertsCommandNoBreaches(t *testing.T) {
	st := seeded()
	r := newRouter(t, st, st, reportOptions{daily: []float64{0.5}}, Deps{})
	resp := &replies{}
	require.NoError(t, r.Dispatch(context.Background(), Request{Name: "alerts", Private: true}, resp))
	require.Equal(t, []string{"No performance alerts for 2024-05-02."}, resp.initial)
}

func TestAlertsCommandOnlyExtraMessage(t *testing.T) {
	st := seeded()
	r := newRouter(t, st, st, reportOptions{daily: []float64{0.5}, extra: "See the dashboard."}, Deps{})
	resp := &replies{}
	require.NoError(t, r.Dispatch(context.Background(), Request{Name: "alerts", Private: true}, resp))
	require.Equal(t, []string{"See the dashboard."}, resp.initial)
	require.Empty(t, resp.followups)
}

func TestAlertsCommandEmptyData(t *testing.T) {
	r := newSeededRouter(t, storage.NewMemoryStore(), Deps{})
	resp := &replies{}
	require.NoError(t, r.Dispatch(context.Background(), Request{Name: "alerts", Private: true}, resp))
	require.Equal(t, []string{compose.DataUnavailable}, resp.initial)
}

func TestOperatorCommand(t *testing.T) {
	r := newSeededRouter(t, seeded(), Deps{})
	resp := &replies{}
	req := Request{Name: "operator", Args: []string{"2", "9", "1"}, Private: true}
	require.NoError(t, r.Dispatch(context.Background(), req, resp))

	require.Len(t, resp.initial, 1)
	msg := resp.initial[0]
	require.Less(t, strings.Index(msg, "Alpha (ID: 1"), strings.Index(msg, "Beta (ID: 2"))
	require.Contains(t, msg, "- 2024-05-02: 70.00%\n- 2024-05-01: 80.00%")
	require.Contains(t, msg, "30d Performance: 99.50%")
	require.True(t, strings.HasSuffix(msg, "Data not found for operator IDs: 9"))
}

func TestOperatorCommandUnknownIDs(t *testing.T) {
	r := newSeededRouter(t, seeded(), Deps{})
	resp := &replies{}
	require.NoError(t, r.Dispatch(context.Background(), Request{Name: "operator", Args: []string{"9"}, Private: true}, resp))
	require.Equal(t, []string{compose.DataUnavailable}, resp.initial)
}

func TestOperatorCommandRequiresIDs(t *testing.T) {
	r := newSeededRouter(t, seeded(), Deps{})
	resp := &replies{}
	require.NoError(t, r.Dispatch(context.Background(), Request{Name: "operator", Args: []string{"abc"}, Private: true}, resp))
	require.Equal(t, []string{compose.InvalidIDs}, resp.initial)
}

func TestSubscribeFlow(t *testing.T) {
	st := seeded()
	r := newSeededRouter(t, st, Deps{Prober: probe{ok: true}})
	resp := &replies{}
	req := Request{Name: "subscribe", Args: []string{"daily", "1", "2"}, UserID: 77, Private: true}
	require.NoError(t, r.Dispatch(context.Background(), req, resp))

	require.Equal(t, []string{compose.SubscriptionsUpdated}, resp.initial)
	require.Equal(t, []string{"Operator ID Subscriptions:\n- Daily performance direct messages: 1, 2\n- Threshold alert mentions: None"}, resp.followups)

	set, err := st.ByKind(context.Background(), subscription.Daily)
	require.NoError(t, err)
	require.Equal(t, []int64{77}, set.Users([]int64{2}, subscription.Daily))
}

func TestSubscribeWarnsWhenProbeFails(t *testing.T) {
	r := newSeededRouter(t, seeded(), Deps{Prober: probe{ok: false}})
	resp := &replies{}
	req := Request{Name: "subscribe", Args: []string{"alerts", "1"}, UserID: 5, Private: true}
	require.NoError(t, r.Dispatch(context.Background(), req, resp))

	require.Equal(t, []string{compose.DMProbeFailed}, resp.initial)
	require.Equal(t, compose.SubscriptionsUpdated, resp.followups[0])
	require.Contains(t, resp.followups[1], "Threshold alert mentions: 1")
}

func TestUnsubscribe(t *testing.T) {
	st := seeded()
	require.NoError(t, st.Add(context.Background(), 5, 1, subscription.Alerts))
	r := newSeededRouter(t, st, Deps{})

	resp := &replies{}
	req := Request{Name: "unsubscribe", Args: []string{"alerts", "1"}, UserID: 5, Private: true}
	require.NoError(t, r.Dispatch(context.Background(), req, resp))
	require.Contains(t, resp.followups[0], "Threshold alert mentions: None")

	resp = &replies{}
	req.Args = []string{"weekly", "1"}
	require.NoError(t, r.Dispatch(context.Background(), req, resp))
	require.Equal(t, []string{kindRequired}, resp.initial)
}

type failingRepo struct{ *storage.MemoryStore }

func (failingRepo) All(context.Context) (performance.Snapshot, error) {
	return nil, errors.New("db down")
}

func (failingRepo) ByIDs(context.Context, []int64) (performance.Snapshot, error) {
	return nil, errors.New("db down")
}

func (failingRepo) LatestDate(context.Context) (string, bool, error) {
	return "", false, errors.New("db down")
}

func (failingRepo) ByUser(context.Context, int64) (subscription.Set, error) {
	return nil, errors.New("db down")
}

func TestInfoCommand(t *testing.T) {
	r := newSeededRouter(t, seeded(), Deps{})
	resp := &replies{}
	require.NoError(t, r.Dispatch(context.Background(), Request{Name: "info", Private: true}, resp))
	require.Equal(t, []string{compose.Info("2024-05-02", true)}, resp.initial)
}

func TestRepositoryFailureRepliesDataUnavailable(t *testing.T) {
	broken := failingRepo{seeded()}
	r := newRouter(t, broken, broken, reportOptions{daily: []float64{0.9}}, Deps{})

	for _, req := range []Request{
		{Name: "info", Private: true},
		{Name: "alerts", Private: true},
		{Name: "operator", Args: []string{"1"}, Private: true},
		{Name: "subscriptions", UserID: 5, Private: true},
	} {
		resp := &replies{}
		require.Error(t, r.Dispatch(context.Background(), req, resp), req.Name)
		require.Equal(t, []string{compose.DataUnavailable}, resp.initial, req.Name)
	}
}

func TestNamesSorted(t *testing.T) {
	r := newSeededRouter(t, seeded(), Deps{})
	require.Equal(t, []string{"alerts", "help", "info", "operator", "subscribe", "subscriptions", "unsubscribe"}, r.Names())
}
