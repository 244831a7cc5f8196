package capability

import (
	"context"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// AnnounceCapability posts a distribution notice for a published run to
// a Telegram chat.
type AnnounceCapability struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

func NewAnnounceCapability(token string, chatID int64) (*AnnounceCapability, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &AnnounceCapability{bot: bot, chatID: chatID}, nil
}

func (c *AnnounceCapability) Name() string {
	return "announce"
}

func (c *AnnounceCapability) Description() string {
	return "Announce published content to the configured Telegram chat."
}

func (c *AnnounceCapability) Descriptor() Descriptor {
	return Descriptor{
		Timeout: 15 * time.Second,
		// A retry would post the announcement twice.
		Idempotent: false,
		Fallbacks:  []string{"announce_discord"},
	}
}

func (c *AnnounceCapability) Invoke(ctx context.Context, params map[string]any) (Result, error) {
	var args struct {
		Text string `json:"text"`
	}
	if err := decodeParams(params, &args); err != nil {
		return Result{}, Permanentf("invalid input: %v", err)
	}
	if strings.TrimSpace(args.Text) == "" {
		return Result{}, Permanentf("announcement text must not be empty")
	}

	msg := tgbotapi.NewMessage(c.chatID, args.Text)
	if _, err := c.bot.Send(msg); err != nil {
		return Result{}, WrapTransient(err, "telegram send failed")
	}
	return Result{Output: "Announced on Telegram"}, nil
}
