package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mixelka/mailwatch/internal/command"
	"github.com/mixelka/mailwatch/internal/dispatch"
	"github.com/mixelka/mailwatch/internal/email"
	"github.com/mixelka/mailwatch/internal/mailer"
	"github.com/mixelka/mailwatch/internal/notify"
	"github.com/mixelka/mailwatch/internal/parser"
	"github.com/mixelka/mailwatch/internal/plugin"
	"github.com/mixelka/mailwatch/pkg/models"
)

// DefaultName is the plugin name used when Config.Name is empty
const DefaultName = "mailwatch"

const previewLength = 200

// Mailbox is one open mailbox session with INBOX selected
type Mailbox interface {
	SearchUnseen(ctx context.Context) ([]uint32, error)
	Fetch(ctx context.Context, uid uint32) email.FetchResult
	MarkAsRead(ctx context.Context, uid uint32) error
	Close() error
}

// Dialer opens a mailbox session
type Dialer func(ctx context.Context, cfg email.ClientConfig) (Mailbox, error)

// DialIMAP returns a Dialer backed by the IMAP client
func DialIMAP(logger *slog.Logger) Dialer {
	return func(ctx context.Context, cfg email.ClientConfig) (Mailbox, error) {
		c, err := email.Open(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// Dispatcher executes authorized commands
type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request) (string, error)
}

// Journal records processed messages
type Journal interface {
	SaveMessage(ctx context.Context, rec *models.MessageRecord) error
	RecentMessages(ctx context.Context, limit int) ([]*models.MessageRecord, error)
}

// Sender delivers outgoing mail
type Sender interface {
	IsConfigured() bool
	Send(ctx context.Context, m mailer.Mail) mailer.SendResult
}

// Emitter publishes events
type Emitter interface {
	Emit(ctx context.Context, eventType string, payload map[string]any) error
}

// Config is the watcher's settings
type Config struct {
	Name           string
	Account        string
	Password       string
	Server         string // host:port
	TLS            bool
	DialTimeout    time.Duration
	SMTPServer     string // informational, sending goes through Sender
	Enabled        bool
	Schedule       string // cron expression or "@every <duration>"
	Prefix         string
	AllowedSenders []string
	Notify         bool
	PageSize       int
}

func (c Config) clientConfig() email.ClientConfig {
	return email.ClientConfig{
		Account:     c.Account,
		Password:    c.Password,
		Server:      c.Server,
		TLS:         c.TLS,
		DialTimeout: c.DialTimeout,
	}
}

func (c *Config) normalize() error {
	if c.Name == "" {
		c.Name = DefaultName
	}
	if c.Prefix == "" {
		c.Prefix = command.DefaultPrefix
	}
	if c.PageSize <= 0 {
		c.PageSize = 20
	}
	if c.Account == "" {
		return errors.New("mail account is required")
	}
	if c.Server == "" {
		return errors.New("mailbox server is required")
	}
	if c.Schedule == "" {
		return errors.New("poll schedule is required")
	}
	return nil
}

// Deps are the collaborators of a Watcher. Only Dialer and Logger are required.
type Deps struct {
	Dialer     Dialer
	Dispatcher Dispatcher
	Journal    Journal
	Notifier   notify.Notifier
	Sender     Sender
	Events     Emitter
	Logger     *slog.Logger

	// Source re-reads configuration on Reload
	Source func() (Config, error)
}

// PollReport summarizes one poll cycle
type PollReport struct {
	Seen      int   // unseen messages found
	Processed int   // fetched, parsed and marked read
	Failed    int   // skipped because fetch, parse or mark failed
	Commands  int   // commands dispatched successfully
	Err       error // connect, login, select or search failure
}

// Watcher polls a mailbox and turns command mails into actions
type Watcher struct {
	deps   Deps
	html   *parser.HTMLParser
	logger *slog.Logger

	mu      sync.RWMutex
	config  Config
	policy  *command.Policy
	running bool

	// serializes polls
	pollMu sync.Mutex
}

// New creates a stopped, unconfigured watcher
func New(deps Deps) *Watcher {
	return &Watcher{
		deps:   deps,
		html:   parser.NewHTMLParser(),
		logger: deps.Logger.With("component", "watcher"),
	}
}

// Init validates and applies cfg
func (w *Watcher) Init(cfg Config) error {
	if err := cfg.normalize(); err != nil {
		return fmt.Errorf("invalid watcher config: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.config = cfg
	w.policy = command.NewPolicy(cfg.AllowedSenders)

	if w.policy.Len() == 0 {
		w.logger.Warn("allow-list is empty, commands will be rejected", "account", cfg.Account)
	}
	return nil
}

// Name returns the plugin name
func (w *Watcher) Name() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.config.Name == "" {
		return DefaultName
	}
	return w.config.Name
}

// Start moves the watcher to running when it is enabled.
// The mailbox is probed once; a failed probe is logged and retried by the next poll.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	cfg := w.config
	if cfg.Account == "" {
		w.mu.Unlock()
		return errors.New("watcher is not initialized")
	}
	if !cfg.Enabled {
		w.mu.Unlock()
		w.logger.Info("watcher disabled")
		return nil
	}
	w.running = true
	w.mu.Unlock()

	mb, err := w.deps.Dialer(ctx, cfg.clientConfig())
	if err != nil {
		w.logger.Error("mailbox probe failed", "account", cfg.Account, "error", err)
	} else {
		mb.Close()
	}

	w.logger.Info("watcher started", "account", cfg.Account, "schedule", cfg.Schedule, "prefix", cfg.Prefix)
	return nil
}

// Stop moves the watcher to stopped. A poll in progress runs to completion.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		w.running = false
		w.logger.Info("watcher stopped")
	}
	return nil
}

// State reports whether the watcher is running
func (w *Watcher) State() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// Reload re-reads configuration from the source and applies it
func (w *Watcher) Reload(ctx context.Context) error {
	if w.deps.Source == nil {
		return errors.New("no configuration source")
	}

	cfg, err := w.deps.Source()
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	wasRunning := w.State()
	if err := w.Init(cfg); err != nil {
		return err
	}

	switch {
	case wasRunning && !cfg.Enabled:
		return w.Stop()
	case !wasRunning && cfg.Enabled:
		return w.Start(ctx)
	}
	return nil
}

// Schedule returns the poll schedule
func (w *Watcher) Schedule() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.config.Schedule
}

// Run is the scheduled job: one poll, nothing returned
func (w *Watcher) Run(ctx context.Context) {
	if !w.State() {
		return
	}
	w.Poll(ctx)
}

// DescribeConfig returns the settings form with current values
func (w *Watcher) DescribeConfig() []plugin.SettingField {
	cfg, policy := w.snapshot()

	password := ""
	if cfg.Password != "" {
		password = "********"
	}

	return []plugin.SettingField{
		{Key: "enabled", Label: "Enabled", Type: "bool", Value: cfg.Enabled},
		{Key: "account", Label: "Mail account", Type: "text", Value: cfg.Account, Required: true},
		{Key: "password", Label: "Password", Type: "password", Value: password, Required: true,
			Help: "plain, enc:<base64> or keyring:<name>"},
		{Key: "imap_server", Label: "IMAP server", Type: "text", Value: cfg.Server,
			Help: "host:port, detected from the account domain when empty"},
		{Key: "smtp_server", Label: "SMTP server", Type: "text", Value: cfg.SMTPServer},
		{Key: "schedule", Label: "Poll schedule", Type: "text", Value: cfg.Schedule,
			Help: "cron expression or @every <duration>"},
		{Key: "prefix", Label: "Command subject prefix", Type: "text", Value: cfg.Prefix},
		{Key: "allowed_senders", Label: "Allowed senders", Type: "list", Value: policy.Addresses()},
		{Key: "notify", Label: "Notify on new mail", Type: "bool", Value: cfg.Notify},
		{Key: "page_size", Label: "Messages on page", Type: "number", Value: cfg.PageSize},
	}
}

// Page returns the most recent processed messages, newest first
func (w *Watcher) Page(ctx context.Context) ([]plugin.Row, error) {
	if w.deps.Journal == nil {
		return nil, nil
	}

	w.mu.RLock()
	limit := w.config.PageSize
	w.mu.RUnlock()

	recs, err := w.deps.Journal.RecentMessages(ctx, limit)
	if err != nil {
		return nil, err
	}

	rows := make([]plugin.Row, 0, len(recs))
	for _, r := range recs {
		from := r.FromAddr
		if r.FromName != "" {
			from = r.FromName + " <" + r.FromAddr + ">"
		}
		cmd := ""
		if r.Verb != "" {
			cmd = strings.TrimSpace("/" + r.Verb + " " + r.Argument)
		}
		rows = append(rows, plugin.Row{
			"uid":       r.UID,
			"date":      r.ReceivedAt.Format(time.RFC3339),
			"from":      from,
			"subject":   r.Subject,
			"preview":   r.Preview,
			"command":   cmd,
			"outcome":   r.Outcome,
			"detail":    r.Detail,
			"processed": r.ProcessedAt.Format(time.RFC3339),
		})
	}
	return rows, nil
}

// SendMail composes and sends an HTML message. It never returns an error;
// failures are reported in the result.
func (w *Watcher) SendMail(ctx context.Context, to, subject, html string, attachments ...mailer.Attachment) mailer.SendResult {
	if w.deps.Sender == nil || !w.deps.Sender.IsConfigured() {
		return mailer.SendResult{OK: false, Message: "mail sending is not configured"}
	}
	return w.deps.Sender.Send(ctx, mailer.Mail{
		To:          []string{to},
		Subject:     subject,
		HTML:        html,
		Attachments: attachments,
	})
}

func (w *Watcher) snapshot() (Config, *command.Policy) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.config, w.policy
}
