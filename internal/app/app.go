package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"vo-performance-bot/internal/alerting"
	"vo-performance-bot/internal/api"
	"vo-performance-bot/internal/commands"
	"vo-performance-bot/internal/config"
	"vo-performance-bot/internal/fetcher"
	"vo-performance-bot/internal/metrics"
	"vo-performance-bot/internal/service"
	"vo-performance-bot/internal/storage"
	"vo-performance-bot/internal/transport/telegram"
	"vo-performance-bot/internal/version"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) openStore(ctx context.Context) (storage.Store, error) {
	store, err := storage.Open(ctx, a.Config.Database, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", service.ErrRepositoryUnavailable, err)
	}
	return store, nil
}

func (a *App) newSource() *fetcher.SSV {
	cfg := a.Config.Ingest
	ua := cfg.UserAgent
	if ua == "" {
		ua = version.UserAgent()
	}
	return fetcher.NewSSV(fetcher.SSVOptions{
		BaseURL:   cfg.BaseURL,
		Network:   cfg.Network,
		PerPage:   cfg.PerPage,
		Timeout:   cfg.RequestTimeout,
		UserAgent: ua,
	}, a.Logger)
}

// newBot returns nil when the Telegram transport is disabled. The broadcast
// chat is resolved only when the caller posts to it.
func (a *App) newBot(ctx context.Context, broadcast bool) (*telegram.Bot, error) {
	if !a.Config.Telegram.Enabled {
		return nil, nil
	}
	bot, err := telegram.New(a.Config.Telegram, a.Logger)
	if err != nil {
		return nil, err
	}
	if !broadcast {
		return bot, nil
	}
	if err := bot.ResolveBroadcast(ctx); err != nil {
		return nil, fmt.Errorf("resolve broadcast chat: %w", err)
	}
	return bot, nil
}

// transports wires the configured destinations. The broadcast side fans out
// to the bot and the webhook when both are enabled.
func (a *App) transports(bot *telegram.Bot) service.Transports {
	var dests alerting.Fanout
	var tr service.Transports
	if bot != nil {
		dests = append(dests, bot)
		tr.Private = bot
		tr.Mentions = bot
	}
	if a.Config.Webhook.Enabled {
		dests = append(dests, alerting.NewWebhookNotifier(a.Config.Webhook.URL, a.Config.Webhook.Timeout, a.Logger))
	}
	switch len(dests) {
	case 0:
	case 1:
		tr.Broadcast = dests[0]
	default:
		tr.Broadcast = dests
	}
	return tr
}

func (a *App) newRouter(store storage.Store, svc *service.Service, rec metrics.Recorder) (*commands.Router, error) {
	loc, err := a.Config.Location()
	if err != nil {
		return nil, err
	}
	return commands.NewRouter(commands.Deps{
		Performance:   store,
		Subscriptions: store,
		Reports:       svc,
		Prober:        svc.Dispatcher(),
		MaxLength:     a.Config.Notify.MaxMessageLength,
		CommandChatID: a.Config.Telegram.CommandChatID,
		Location:      loc,
		Metrics:       rec,
	}, a.Logger), nil
}

// Run executes the long-running bot: the command listener, both daily tasks
// and the optional admin API.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.NewCollector(reg, a.Config.HTTP.MetricsNamespace)

	bot, err := a.newBot(ctx, true)
	if err != nil {
		return err
	}
	tr := a.transports(bot)
	if tr.Broadcast == nil {
		return errors.New("no broadcast transport configured; enable telegram or webhook")
	}

	svc, err := service.New(a.Config, store, store, tr, rec, a.Logger)
	if err != nil {
		return err
	}

	router, err := a.newRouter(store, svc, rec)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.Run(gctx) })
	if bot != nil {
		g.Go(func() error { return bot.Listen(gctx, router) })
	}

	if addr := a.Config.HTTP.Addr; addr != "" {
		handler := api.NewRouter(api.Deps{
			Performance:    store,
			Thresholds:     a.Config.Thresholds(),
			Gatherer:       reg,
			AllowedOrigins: a.Config.HTTP.AllowedOrigins,
			NextFire:       svc.NextFire,
		}, a.Logger)
		srv := api.NewServer(addr, handler, a.Logger)
		g.Go(func() error { return srv.Run(gctx) })
	}

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.Logger.Warn().Err(err).Msg("systemd readiness notification failed")
	} else if sent {
		a.Logger.Debug().Msg("systemd notified ready")
	}

	a.Logger.Info().Time("next_fire", svc.NextFire()).Str("version", version.String()).Msg("starting vo performance bot")
	err = g.Wait()
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("bot terminated with error")
		return err
	}

	a.Logger.Info().Msg("vo performance bot stopped")
	return nil
}

// ExportOptions hold parameters for exporting stored series.
type ExportOptions struct {
	Horizon  string
	IDs      []int64
	CSVPath  string
	PNGPath  string
	MaxDates int
}

// IngestOptions configure one ingest run.
type IngestOptions struct {
	Date      string
	Overwrite bool
	DryRun    bool
}
