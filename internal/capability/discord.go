package capability

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

// DiscordAnnounceCapability is the fallback announcement channel when
// the Telegram announce fails.
type DiscordAnnounceCapability struct {
	session   *discordgo.Session
	channelID string
}

func NewDiscordAnnounceCapability(token, channelID string) (*DiscordAnnounceCapability, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	return &DiscordAnnounceCapability{session: session, channelID: channelID}, nil
}

func (c *DiscordAnnounceCapability) Name() string {
	return "announce_discord"
}

func (c *DiscordAnnounceCapability) Description() string {
	return "Announce published content to the configured Discord channel."
}

func (c *DiscordAnnounceCapability) Descriptor() Descriptor {
	return Descriptor{
		Timeout:    15 * time.Second,
		Idempotent: false,
	}
}

func (c *DiscordAnnounceCapability) Invoke(ctx context.Context, params map[string]any) (Result, error) {
	var args struct {
		Text string `json:"text"`
	}
	if err := decodeParams(params, &args); err != nil {
		return Result{}, Permanentf("invalid input: %v", err)
	}
	if strings.TrimSpace(args.Text) == "" {
		return Result{}, Permanentf("announcement text must not be empty")
	}

	if _, err := c.session.ChannelMessageSend(c.channelID, args.Text); err != nil {
		return Result{}, WrapTransient(err, "discord send failed")
	}
	return Result{Output: "Announced on Discord"}, nil
}
