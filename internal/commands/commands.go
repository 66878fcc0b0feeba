// Package commands implements the interactive chat commands as an explicit
// name-to-handler table.
package commands

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"vo-performance-bot/internal/alerts"
	"vo-performance-bot/internal/dispatch"
	"vo-performance-bot/internal/metrics"
	"vo-performance-bot/internal/storage"
	"vo-performance-bot/internal/transport"
)

// Request is one parsed command invocation.
type Request struct {
	Name    string
	Args    []string
	UserID  int64
	ChatID  int64
	Private bool
}

// Handler executes one command. Replies go through the session so the
// first message uses the initial-response primitive.
type Handler interface {
	Handle(ctx context.Context, req Request, s *dispatch.Session) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req Request, s *dispatch.Session) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, req Request, s *dispatch.Session) error {
	return f(ctx, req, s)
}

// Command is an entry of the command table.
type Command struct {
	Description string
	Handler     Handler
}

// Prober sends the subscribe confirmation message.
type Prober interface {
	Probe(ctx context.Context, userID int64, text string) bool
}

// Reports composes the same alert report and operator blocks the scheduled
// tasks deliver.
type Reports interface {
	AlertReport(ctx context.Context, withMentions bool) (dispatch.Report, []alerts.Result, bool, error)
	OperatorBlocks(ctx context.Context, ids []int64) ([]string, bool, error)
}

// Deps are the collaborators shared by all handlers.
type Deps struct {
	Performance   storage.PerformanceRepository
	Subscriptions storage.SubscriptionRepository
	Reports       Reports
	Prober        Prober
	MaxLength     int
	CommandChatID int64
	Location      *time.Location
	Now           func() time.Time
	Metrics       metrics.Recorder
}

// Router owns the command table.
type Router struct {
	deps   Deps
	table  map[string]Command
	logger zerolog.Logger
}

// NewRouter builds the command table.
func NewRouter(deps Deps, logger zerolog.Logger) *Router {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Location == nil {
		deps.Location = time.Local
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop{}
	}
	r := &Router{deps: deps, logger: logger.With().Str("component", "commands").Logger()}
	r.table = map[string]Command{
		"help":          {Description: "Shows help information", Handler: HandlerFunc(r.help)},
		"info":          {Description: "Display bot information", Handler: HandlerFunc(r.info)},
		"alerts":        {Description: "List operators below the alert thresholds", Handler: HandlerFunc(r.alerts)},
		"operator":      {Description: "Show recent performance for operator IDs", Handler: HandlerFunc(r.operator)},
		"subscribe":     {Description: "Subscribe: daily|alerts <operator IDs>", Handler: HandlerFunc(r.subscribe)},
		"unsubscribe":   {Description: "Unsubscribe: daily|alerts <operator IDs>", Handler: HandlerFunc(r.unsubscribe)},
		"subscriptions": {Description: "List your subscriptions", Handler: HandlerFunc(r.subscriptions)},
	}
	return r
}

// Names returns the registered command names in sorted order.
func (r *Router) Names() []string {
	names := make([]string, 0, len(r.table))
	for name := range r.table {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe returns the description of a registered command.
func (r *Router) Describe(name string) string {
	return r.table[name].Description
}

// Allowed reports whether commands may run in the request's chat.
func (r *Router) Allowed(req Request) bool {
	return req.Private || r.deps.CommandChatID == 0 || req.ChatID == r.deps.CommandChatID
}

// Dispatch runs the named command against resp. Unknown commands are ignored.
func (r *Router) Dispatch(ctx context.Context, req Request, resp transport.Responder) error {
	req.Name = strings.ToLower(strings.TrimPrefix(req.Name, "/"))
	cmd, ok := r.table[req.Name]
	if !ok {
		return nil
	}
	logger := r.logger.With().Str("command", req.Name).Int64("user_id", req.UserID).Logger()
	logger.Info().Msg("command called")

	session := dispatch.NewSession(resp, r.deps.Metrics)
	if !r.Allowed(req) {
		return session.Send(ctx, notAllowedHere)
	}
	if err := cmd.Handler.Handle(ctx, req, session); err != nil {
		logger.Error().Err(err).Msg("command failed")
		return err
	}
	return nil
}

func (r *Router) today() time.Time {
	return r.deps.Now().In(r.deps.Location)
}

// ParseIDs keeps the positive integer arguments, in order and without
// duplicates.
func ParseIDs(args []string) []int64 {
	var ids []int64
	seen := make(map[int64]struct{})
	for _, raw := range args {
		for _, field := range strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ' ' }) {
			id, err := strconv.ParseInt(field, 10, 64)
			if err != nil || id <= 0 {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids
}
