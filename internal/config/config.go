package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config application configuration
type Config struct {
	// Mailbox
	MailAccount     string        `env:"MAIL_ACCOUNT,required"`
	MailPassword    string        `env:"MAIL_PASSWORD,required"` // plain, enc:<base64> or keyring:<key>
	IMAPHost        string        `env:"IMAP_HOST"`              // resolved from the account domain when empty
	IMAPPort        int           `env:"IMAP_PORT" envDefault:"993"`
	IMAPTLS         bool          `env:"IMAP_TLS" envDefault:"true"`
	IMAPDialTimeout time.Duration `env:"IMAP_DIAL_TIMEOUT" envDefault:"30s"`

	// Outgoing mail (optional)
	SMTPHost string `env:"SMTP_HOST"`
	SMTPPort int    `env:"SMTP_PORT" envDefault:"465"`

	// Watcher
	Enabled        bool          `env:"WATCHER_ENABLED" envDefault:"true"`
	PollInterval   time.Duration `env:"POLL_INTERVAL" envDefault:"5m"`
	PollCron       string        `env:"POLL_CRON"` // overrides POLL_INTERVAL, e.g. "*/5 * * * *"
	CommandPrefix  string        `env:"COMMAND_PREFIX" envDefault:"/movie"`
	AllowedSenders []string      `env:"ALLOWED_SENDERS" envSeparator:","`
	NotifyEnabled  bool          `env:"NOTIFY_ENABLED" envDefault:"false"`
	PageSize       int           `env:"PAGE_SIZE" envDefault:"20"`

	// Telegram notifications (optional)
	TelegramToken   string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID  int64  `env:"TELEGRAM_CHAT_ID"`
	TelegramTopicID int    `env:"TELEGRAM_TOPIC_ID"`

	// Media index integration (optional)
	MediaIndexURL    string `env:"MEDIA_INDEX_URL"` // e.g., http://emby.local:8096/emby
	MediaIndexAPIKey string `env:"MEDIA_INDEX_API_KEY"`

	// Database
	DatabasePath string `env:"DATABASE_PATH" envDefault:"./data/mailwatch.db"`

	// HTTP
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	// Security
	EncryptionKey string `env:"ENCRYPTION_KEY"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"` // "json" or "text"
}

// TelegramEnabled returns true if Telegram notifications are configured
func (c *Config) TelegramEnabled() bool {
	return c.TelegramToken != "" && c.TelegramChatID != 0
}

// MediaIndexEnabled returns true if the media index integration is configured
func (c *Config) MediaIndexEnabled() bool {
	return c.MediaIndexURL != "" && c.MediaIndexAPIKey != ""
}

// IMAPServer returns host:port of the IMAP server, empty if the host must be resolved
func (c *Config) IMAPServer() string {
	if c.IMAPHost == "" {
		return ""
	}
	return c.IMAPHost + ":" + strconv.Itoa(c.IMAPPort)
}

// SMTPServer returns host:port of the SMTP server, empty if the host must be resolved
func (c *Config) SMTPServer() string {
	if c.SMTPHost == "" {
		return ""
	}
	return c.SMTPHost + ":" + strconv.Itoa(c.SMTPPort)
}

// Schedule returns the cron expression for the poll job
func (c *Config) Schedule() string {
	if c.PollCron != "" {
		return c.PollCron
	}
	return "@every " + c.PollInterval.String()
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	return Parse()
}

// Parse parses configuration from the current environment without touching .env files
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.PollCron == "" && c.PollInterval < time.Second {
		return fmt.Errorf("POLL_INTERVAL must be at least 1s, got %s", c.PollInterval)
	}
	if c.CommandPrefix == "" {
		return fmt.Errorf("COMMAND_PREFIX must not be empty")
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("PAGE_SIZE must be positive, got %d", c.PageSize)
	}

	// Validate encryption key length (32 bytes for AES-256)
	if c.EncryptionKey != "" && len(c.EncryptionKey) != 32 {
		return fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes, got %d", len(c.EncryptionKey))
	}

	return nil
}
