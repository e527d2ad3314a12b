package notify

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// maxMessage keeps messages below Telegram's 4096 character limit.
const maxMessage = 3900

// Summary describes one finished run.
type Summary struct {
	Command string
	Input   string
	Output  string
	Stats   map[string]int
	Elapsed time.Duration
	Err     error
}

func (s Summary) Text() string {
	var sb strings.Builder
	if s.Err != nil {
		fmt.Fprintf(&sb, "❌ tutorgen %s falló: %v\n", s.Command, s.Err)
	} else {
		fmt.Fprintf(&sb, "✅ tutorgen %s terminado\n", s.Command)
	}
	if s.Input != "" {
		fmt.Fprintf(&sb, "entrada: %s\n", s.Input)
	}
	if s.Output != "" {
		fmt.Fprintf(&sb, "salida: %s\n", s.Output)
	}
	keys := make([]string, 0, len(s.Stats))
	for k := range s.Stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s: %d\n", k, s.Stats[k])
	}
	if s.Elapsed > 0 {
		fmt.Fprintf(&sb, "duración: %s\n", s.Elapsed.Round(time.Second))
	}
	return strings.TrimRight(sb.String(), "\n")
}

type Notifier interface {
	Notify(ctx context.Context, s Summary) error
}

type Noop struct{}

func (Noop) Notify(context.Context, Summary) error { return nil }

// Telegram posts run summaries to one chat.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

type Option func(*options)

type options struct {
	endpoint string
	client   *http.Client
}

func WithEndpoint(endpoint string) Option { return func(o *options) { o.endpoint = endpoint } }

func WithHTTPClient(c *http.Client) Option { return func(o *options) { o.client = c } }

// NewTelegram authenticates the bot token with getMe.
func NewTelegram(token string, chatID int64, opts ...Option) (*Telegram, error) {
	o := options{endpoint: tgbotapi.APIEndpoint, client: &http.Client{Timeout: 30 * time.Second}}
	for _, fn := range opts {
		fn(&o)
	}
	bot, err := tgbotapi.NewBotAPIWithClient(token, o.endpoint, o.client)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &Telegram{bot: bot, chatID: chatID}, nil
}

func (t *Telegram) Notify(ctx context.Context, s Summary) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	text := s.Text()
	if r := []rune(text); len(r) > maxMessage {
		text = string(r[:maxMessage]) + "…"
	}
	if _, err := t.bot.Send(tgbotapi.NewMessage(t.chatID, text)); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}
