// Package gateway implements the delivery gateway on the supported chat
// surfaces. Gateways send exactly once per call; retry policy belongs to the
// delivery orchestrator.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"barfly/internal/domain"
)

// Telegram implements domain.DeliveryGateway for Telegram Bot. Thread IDs are
// chat IDs; for a bot, the direct-message chat with a user has the user's ID.
type Telegram struct {
	bot       *tgbotapi.BotAPI
	parseMode string
	logger    *slog.Logger
}

type TelegramConfig struct {
	Token     string
	ParseMode string
	Logger    *slog.Logger
}

func NewTelegram(cfg TelegramConfig) (*Telegram, error) {
	if cfg.ParseMode == "" {
		cfg.ParseMode = "Markdown"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	cfg.Logger.Info("telegram gateway connected",
		"username", bot.Self.UserName,
		"id", bot.Self.ID,
	)
	return &Telegram{bot: bot, parseMode: cfg.ParseMode, logger: cfg.Logger}, nil
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) SendToThread(ctx context.Context, threadID, text string) (*domain.SendReceipt, error) {
	chatID, err := strconv.ParseInt(threadID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID %q: %w", threadID, err)
	}
	return t.send(chatID, text)
}

// CreateThreadAndSend opens the direct-message chat with the recipient. The
// bot cannot initiate a chat Telegram-side, so "creating" the thread is
// addressing the recipient's ID directly.
func (t *Telegram) CreateThreadAndSend(ctx context.Context, from, to, text string) (*domain.SendReceipt, error) {
	chatID, err := strconv.ParseInt(to, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid recipient ID %q: %w", to, err)
	}
	return t.send(chatID, text)
}

func (t *Telegram) StartTyping(ctx context.Context, threadID string) error {
	chatID, err := strconv.ParseInt(threadID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID %q: %w", threadID, err)
	}
	_, err = t.bot.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))
	return err
}

// StopTyping is a no-op: Telegram's typing indicator expires on its own after
// a few seconds or on the next message.
func (t *Telegram) StopTyping(ctx context.Context, threadID string) error { return nil }

// send tries the configured parse mode first; on a parse error it retries the
// same content as plain text. Other errors go back to the caller.
func (t *Telegram) send(chatID int64, text string) (*domain.SendReceipt, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = t.parseMode

	sent, err := t.bot.Send(msg)
	if err != nil && t.parseMode != "" && strings.Contains(err.Error(), "can't parse entities") {
		t.logger.Warn("telegram parse error, retrying as plain text",
			"parse_mode", t.parseMode, "err", err)
		sent, err = t.bot.Send(tgbotapi.NewMessage(chatID, text))
	}
	if err != nil {
		return nil, fmt.Errorf("telegram send: %w", err)
	}
	return &domain.SendReceipt{
		MessageID: strconv.Itoa(sent.MessageID),
		ThreadID:  strconv.FormatInt(chatID, 10),
	}, nil
}
