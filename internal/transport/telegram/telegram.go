// Package telegram implements the delivery primitives and the command
// listener on top of the Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/rs/zerolog"
	tele "gopkg.in/telebot.v4"

	"vo-performance-bot/internal/commands"
	"vo-performance-bot/internal/config"
	"vo-performance-bot/internal/transport"
)

// Bot wraps a telebot client bound to one broadcast chat.
type Bot struct {
	bot       *tele.Bot
	broadcast *tele.Chat
	chatID    int64
	timeout   time.Duration
	logger    zerolog.Logger
}

// New constructs a Bot. The broadcast chat is resolved separately through
// ResolveBroadcast.
func New(cfg config.TelegramConfig, logger zerolog.Logger) (*Bot, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	logger = logger.With().Str("component", "telegram").Logger()
	b, err := tele.NewBot(tele.Settings{
		URL:    cfg.APIBase,
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
		OnError: func(err error, c tele.Context) {
			logger.Error().Err(err).Msg("telegram handler error")
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Bot{bot: b, chatID: cfg.BroadcastChatID, timeout: timeout, logger: logger}, nil
}

// ResolveBroadcast looks up the broadcast chat. Failure is fatal for the
// scheduled tasks.
func (b *Bot) ResolveBroadcast(ctx context.Context) error {
	if b.chatID == 0 {
		return errors.New("telegram.broadcast_chat_id is not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	chat, err := b.bot.ChatByID(b.chatID)
	if err != nil {
		return fmt.Errorf("resolve broadcast chat %d: %w", b.chatID, err)
	}
	b.broadcast = chat
	b.logger.Info().Int64("chat_id", chat.ID).Str("title", chat.Title).Msg("broadcast chat resolved")
	return nil
}

// maxMessageUnits is the Bot API text limit, counted in UTF-16 code units.
const maxMessageUnits = 4096

func sendOptions() *tele.SendOptions {
	return &tele.SendOptions{DisableWebPagePreview: true}
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}

// chunks splits text on line breaks so every piece fits within limit UTF-16
// units. Bundles are sized in runes, so astral-plane characters can push one
// past the API limit. A line longer than limit is cut at rune boundaries.
func chunks(text string, limit int) []string {
	if utf16Len(text) <= limit {
		return []string{text}
	}
	var (
		out    []string
		cur    strings.Builder
		curLen int
	)
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
		}
		cur.Reset()
		curLen = 0
	}
	for i, line := range strings.Split(text, "\n") {
		for utf16Len(line) > limit {
			head, rest := cutUnits(line, limit)
			flush()
			out = append(out, head)
			line = rest
		}
		n := utf16Len(line)
		if i > 0 && cur.Len() > 0 {
			if curLen+1+n > limit {
				flush()
			} else {
				cur.WriteByte('\n')
				curLen++
			}
		}
		cur.WriteString(line)
		curLen += n
	}
	flush()
	return out
}

// cutUnits splits s after the last rune that keeps the head within limit units.
func cutUnits(s string, limit int) (string, string) {
	n := 0
	for i, r := range s {
		w := utf16.RuneLen(r)
		if n+w > limit {
			return s[:i], s[i:]
		}
		n += w
	}
	return s, ""
}

func (b *Bot) send(to tele.Recipient, text string) error {
	for _, part := range chunks(text, maxMessageUnits) {
		if _, err := b.bot.Send(to, part, sendOptions()); err != nil {
			return err
		}
	}
	return nil
}

// Broadcast posts one bundle to the broadcast chat.
func (b *Bot) Broadcast(ctx context.Context, text string) error {
	if b.broadcast == nil {
		return errors.New("telegram broadcast chat not resolved")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.send(b.broadcast, text); err != nil {
		return fmt.Errorf("send to broadcast chat: %w", err)
	}
	return nil
}

// SendPrivate delivers one bundle to a user's private chat.
func (b *Bot) SendPrivate(ctx context.Context, userID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.send(&tele.User{ID: userID}, text); err != nil {
		if errors.Is(err, tele.ErrBlockedByUser) || errors.Is(err, tele.ErrChatNotFound) {
			return fmt.Errorf("%w: %w", transport.ErrUnreachable, err)
		}
		return err
	}
	return nil
}

// ResolveMention returns "@username" for members of the broadcast chat. Users
// without a username, or no longer in the chat, are not mentionable.
func (b *Bot) ResolveMention(ctx context.Context, userID int64) (string, error) {
	if b.broadcast == nil {
		return "", errors.New("telegram broadcast chat not resolved")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	member, err := b.bot.ChatMemberOf(b.broadcast, &tele.User{ID: userID})
	if err != nil {
		return "", fmt.Errorf("lookup member %d: %w", userID, err)
	}
	if member.Role == tele.Left || member.Role == tele.Kicked || member.User == nil {
		return "", nil
	}
	if member.User.Username == "" {
		return "", nil
	}
	return "@" + member.User.Username, nil
}

// Router is the command table the listener dispatches to.
type Router interface {
	Names() []string
	Describe(name string) string
	Dispatch(ctx context.Context, req commands.Request, resp transport.Responder) error
}

// Listen registers every command and polls for updates until ctx is done.
func (b *Bot) Listen(ctx context.Context, router Router) error {
	menu := make([]tele.Command, 0, len(router.Names()))
	for _, name := range router.Names() {
		menu = append(menu, tele.Command{Text: name, Description: router.Describe(name)})
		b.bot.Handle("/"+name, func(c tele.Context) error {
			return router.Dispatch(ctx, requestFrom(name, c), responder{c: c})
		})
	}
	if err := b.bot.SetCommands(menu); err != nil {
		b.logger.Warn().Err(err).Msg("failed to publish command menu")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		b.logger.Info().Msg("polling started")
		b.bot.Start()
	}()

	<-ctx.Done()
	b.bot.Stop()
	select {
	case <-done:
		b.logger.Info().Msg("polling stopped")
	case <-time.After(b.timeout + 2*time.Second):
		b.logger.Warn().Msg("telegram stop grace elapsed; continuing shutdown")
	}
	return ctx.Err()
}

func requestFrom(name string, c tele.Context) commands.Request {
	req := commands.Request{Name: name, Args: c.Args()}
	if chat := c.Chat(); chat != nil {
		req.ChatID = chat.ID
		req.Private = chat.Type == tele.ChatPrivate
	}
	if sender := c.Sender(); sender != nil {
		req.UserID = sender.ID
	}
	return req
}

// responder answers in the chat the command came from: the initial message
// replies to the command, follow-ups are plain messages.
type responder struct {
	c tele.Context
}

func (r responder) RespondInitial(_ context.Context, text string) error {
	parts := chunks(text, maxMessageUnits)
	if err := r.c.Reply(parts[0], sendOptions()); err != nil {
		return err
	}
	for _, part := range parts[1:] {
		if err := r.c.Send(part, sendOptions()); err != nil {
			return err
		}
	}
	return nil
}

func (r responder) RespondFollowup(_ context.Context, text string) error {
	for _, part := range chunks(text, maxMessageUnits) {
		if err := r.c.Send(part, sendOptions()); err != nil {
			return err
		}
	}
	return nil
}

var (
	_ transport.Push      = (*Bot)(nil)
	_ transport.Responder = responder{}
)
