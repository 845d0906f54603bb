package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/mixelka/mailwatch/internal/formatter"
)

// Notifier delivers user-visible alerts
type Notifier interface {
	Notify(ctx context.Context, title, text string) error
}

// LogNotifier writes notifications to the log
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a notifier that only logs
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With("component", "notifier")}
}

// Notify logs the notification at info level
func (n *LogNotifier) Notify(_ context.Context, title, text string) error {
	n.logger.Info("notification", "title", title, "text", text)
	return nil
}

// TelegramConfig configuration for Telegram notifications
type TelegramConfig struct {
	Token     string
	ChatID    int64
	TopicID   int    // forum topic (message_thread_id), 0 for none
	ServerURL string // API endpoint override, used by tests
}

// TelegramNotifier sends notifications to a Telegram chat
type TelegramNotifier struct {
	bot       *bot.Bot
	chatID    int64
	topicID   int
	formatter *formatter.TelegramFormatter
	logger    *slog.Logger
}

// NewTelegramNotifier creates a new Telegram notifier
func NewTelegramNotifier(cfg TelegramConfig, logger *slog.Logger) (*TelegramNotifier, error) {
	opts := []bot.Option{
		bot.WithSkipGetMe(),
	}
	if cfg.ServerURL != "" {
		opts = append(opts, bot.WithServerURL(cfg.ServerURL))
	}

	tgBot, err := bot.New(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return &TelegramNotifier{
		bot:       tgBot,
		chatID:    cfg.ChatID,
		topicID:   cfg.TopicID,
		formatter: formatter.NewTelegramFormatter(),
		logger:    logger.With("component", "telegram_notifier"),
	}, nil
}

// Notify sends a formatted message to the configured chat/topic
func (n *TelegramNotifier) Notify(ctx context.Context, title, text string) error {
	params := &bot.SendMessageParams{
		ChatID:    n.chatID,
		Text:      n.formatter.FormatNotification(title, text),
		ParseMode: models.ParseModeHTML,
	}

	if n.topicID != 0 {
		params.MessageThreadID = n.topicID
	}

	msg, err := n.bot.SendMessage(ctx, params)
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}

	n.logger.Debug("notification sent", "chat_id", n.chatID, "telegram_msg_id", msg.ID)
	return nil
}
