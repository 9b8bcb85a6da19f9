package gateway

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"barfly/internal/domain"
)

// Discord implements domain.DeliveryGateway for Discord. Thread IDs are
// channel IDs; CreateThreadAndSend opens (or reuses) the recipient's DM
// channel.
type Discord struct {
	session *discordgo.Session
	logger  *slog.Logger
}

// DiscordConfig configures the Discord gateway.
type DiscordConfig struct {
	Token  string
	Logger *slog.Logger
}

func NewDiscord(cfg DiscordConfig) (*Discord, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages

	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("discord connect: %w", err)
	}
	cfg.Logger.Info("discord gateway connected", "user", session.State.User.Username)

	return &Discord{session: session, logger: cfg.Logger}, nil
}

func (d *Discord) Name() string { return "discord" }

func (d *Discord) SendToThread(ctx context.Context, threadID, text string) (*domain.SendReceipt, error) {
	msg, err := d.session.ChannelMessageSend(threadID, text, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("discord send: %w", err)
	}
	return &domain.SendReceipt{MessageID: msg.ID, ThreadID: threadID}, nil
}

func (d *Discord) CreateThreadAndSend(ctx context.Context, from, to, text string) (*domain.SendReceipt, error) {
	ch, err := d.session.UserChannelCreate(to, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("discord open DM with %s: %w", to, err)
	}
	return d.SendToThread(ctx, ch.ID, text)
}

func (d *Discord) StartTyping(ctx context.Context, threadID string) error {
	return d.session.ChannelTyping(threadID, discordgo.WithContext(ctx))
}

// StopTyping is a no-op: Discord's typing indicator clears when the message
// arrives or after ten seconds.
func (d *Discord) StopTyping(ctx context.Context, threadID string) error { return nil }

// Close disconnects the session.
func (d *Discord) Close() error {
	return d.session.Close()
}
