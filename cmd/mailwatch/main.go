package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"

	"github.com/mixelka/mailwatch/internal/command"
	"github.com/mixelka/mailwatch/internal/config"
	"github.com/mixelka/mailwatch/internal/database"
	"github.com/mixelka/mailwatch/internal/dispatch"
	"github.com/mixelka/mailwatch/internal/email"
	"github.com/mixelka/mailwatch/internal/events"
	"github.com/mixelka/mailwatch/internal/mailer"
	"github.com/mixelka/mailwatch/internal/mediaindex"
	"github.com/mixelka/mailwatch/internal/notify"
	"github.com/mixelka/mailwatch/internal/plugin"
	"github.com/mixelka/mailwatch/internal/secret"
	"github.com/mixelka/mailwatch/internal/server"
	"github.com/mixelka/mailwatch/internal/watcher"
)

func main() {
	if len(os.Args) > 1 {
		if err := runCommand(os.Args[1], os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup logger
	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting mailwatch")

	// Connect to database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Run migrations
	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database migrations completed")

	source := watcherConfigSource(logger)
	wcfg, err := source()
	if err != nil {
		logger.Error("failed to prepare watcher config", "error", err)
		os.Exit(1)
	}

	// Create components
	bus := events.NewBus(logger)
	subscribeEventLog(bus, logger)

	var notifier notify.Notifier = notify.NewLogNotifier(logger)
	if cfg.TelegramEnabled() {
		tg, err := notify.NewTelegramNotifier(notify.TelegramConfig{
			Token:   cfg.TelegramToken,
			ChatID:  cfg.TelegramChatID,
			TopicID: cfg.TelegramTopicID,
		}, logger)
		if err != nil {
			logger.Error("failed to create telegram notifier", "error", err)
			os.Exit(1)
		}
		notifier = tg
		logger.Info("telegram notifications enabled", "chat_id", cfg.TelegramChatID)
	}

	sender := mailer.NewSender(mailer.Config{
		Server:   wcfg.SMTPServer,
		Account:  wcfg.Account,
		Password: wcfg.Password,
		Security: smtpSecurity(cfg.SMTPPort),
	}, logger)

	index := mediaindex.NewClient(mediaindex.Config{
		BaseURL: cfg.MediaIndexURL,
		APIKey:  cfg.MediaIndexAPIKey,
	})
	if cfg.MediaIndexEnabled() {
		logger.Info("media index integration enabled", "url", cfg.MediaIndexURL)
	}

	dispatcher := dispatch.NewDispatcher(logger)
	dispatcher.Register(command.VerbSearch, &dispatch.SearchAction{
		Index:    index,
		Replier:  sender,
		Events:   bus,
		Notifier: notifier,
		Logger:   logger,
	})
	dispatcher.Register(command.VerbDownload, &dispatch.DownloadAction{
		Events:   bus,
		Notifier: notifier,
		Logger:   logger,
	})

	w := watcher.New(watcher.Deps{
		Dialer:     watcher.DialIMAP(logger),
		Dispatcher: dispatcher,
		Journal:    db,
		Notifier:   notifier,
		Sender:     sender,
		Events:     bus,
		Logger:     logger,
		Source:     source,
	})
	if err := w.Init(wcfg); err != nil {
		logger.Error("failed to init watcher", "error", err)
		os.Exit(1)
	}

	host := plugin.NewHost(logger)
	if err := host.Register(w); err != nil {
		logger.Error("failed to register watcher", "error", err)
		os.Exit(1)
	}

	if err := host.Start(ctx); err != nil {
		logger.Error("failed to start plugins", "error", err)
		os.Exit(1)
	}

	srv := server.New(cfg.HTTPAddr, host, logger)
	srv.Start()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	logger.Info("mailwatch is running, press Ctrl+C to stop")
	sig := <-sigCh

	logger.Info("received shutdown signal", "signal", sig)
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to stop http server", "error", err)
	}
	if err := host.Stop(); err != nil {
		logger.Error("failed to stop plugins", "error", err)
	}

	logger.Info("mailwatch stopped")
}

// watcherConfigSource reads the environment into a watcher config.
// It is also used by reloads.
func watcherConfigSource(logger *slog.Logger) func() (watcher.Config, error) {
	return func() (watcher.Config, error) {
		cfg, err := config.Load()
		if err != nil {
			return watcher.Config{}, err
		}

		password, err := secret.NewResolver(cfg.EncryptionKey).Resolve(cfg.MailPassword)
		if err != nil {
			return watcher.Config{}, fmt.Errorf("failed to resolve mail password: %w", err)
		}

		imapServer := cfg.IMAPServer()
		if imapServer == "" {
			if imapServer, err = email.ResolveIMAPServer(cfg.MailAccount, cfg.IMAPPort); err != nil {
				return watcher.Config{}, fmt.Errorf("failed to detect IMAP server: %w", err)
			}
			logger.Info("detected IMAP server", "server", imapServer)
		}

		smtpServer := cfg.SMTPServer()
		if smtpServer == "" {
			if smtpServer, err = email.ResolveSMTPServer(cfg.MailAccount, cfg.SMTPPort); err != nil {
				// sending is optional
				logger.Warn("SMTP server not detected, replies disabled", "error", err)
				smtpServer = ""
			}
		}

		return watcher.Config{
			Account:        cfg.MailAccount,
			Password:       password,
			Server:         imapServer,
			TLS:            cfg.IMAPTLS,
			DialTimeout:    cfg.IMAPDialTimeout,
			SMTPServer:     smtpServer,
			Enabled:        cfg.Enabled,
			Schedule:       cfg.Schedule(),
			Prefix:         cfg.CommandPrefix,
			AllowedSenders: cfg.AllowedSenders,
			Notify:         cfg.NotifyEnabled,
			PageSize:       cfg.PageSize,
		}, nil
	}
}

// subscribeEventLog records every command event; the download client
// and other consumers subscribe to the same types.
func subscribeEventLog(bus *events.Bus, logger *slog.Logger) {
	logger = logger.With("component", "events")
	for _, typ := range []string{events.TypeDownloadAdd, events.TypeSearchDone, events.TypeCommandDenied} {
		bus.Subscribe(typ, func(_ context.Context, ev events.Event) error {
			logger.Info("event", "type", ev.Type, "event_id", ev.ID, "payload", ev.Payload)
			return nil
		})
	}
}

func smtpSecurity(port int) string {
	switch port {
	case 587:
		return mailer.SecurityStartTLS
	case 25:
		return mailer.SecurityNone
	default:
		return mailer.SecurityTLS
	}
}

// runCommand handles the maintenance subcommands
func runCommand(name string, args []string) error {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	switch name {
	case "encrypt":
		if len(args) != 1 {
			return errors.New("usage: mailwatch encrypt <secret>")
		}
		key := os.Getenv("ENCRYPTION_KEY")
		if len(key) != 32 {
			return errors.New("ENCRYPTION_KEY must be set to exactly 32 bytes")
		}
		enc, err := secret.Encrypt(key, args[0])
		if err != nil {
			return err
		}
		fmt.Println(enc)
		return nil

	case "keyring-set":
		if len(args) != 2 {
			return errors.New("usage: mailwatch keyring-set <name> <secret>")
		}
		if err := secret.KeyringSet(args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("stored; set MAIL_PASSWORD=keyring:%s\n", args[0])
		return nil

	default:
		return fmt.Errorf("unknown command %q (known: encrypt, keyring-set)", name)
	}
}

func setupLogger(level, format string) *slog.Logger {
	var handler slog.Handler
	logLevel := parseLevel(level)

	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: logLevel,
		})
	} else {
		// Pretty colored output for console
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      logLevel,
			TimeFormat: time.DateTime,
		})
	}

	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
