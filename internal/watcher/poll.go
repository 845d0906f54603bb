package watcher

import (
	"context"
	"errors"
	"time"

	"github.com/mixelka/mailwatch/internal/command"
	"github.com/mixelka/mailwatch/internal/dispatch"
	"github.com/mixelka/mailwatch/internal/email"
	"github.com/mixelka/mailwatch/internal/events"
	"github.com/mixelka/mailwatch/internal/formatter"
	"github.com/mixelka/mailwatch/pkg/models"
)

// Poll runs one cycle: connect, list unseen messages and process each one.
// Errors never escape; they are logged and summarized in the report.
// Concurrent calls wait for the running poll.
func (w *Watcher) Poll(ctx context.Context) PollReport {
	w.pollMu.Lock()
	defer w.pollMu.Unlock()

	cfg, policy := w.snapshot()
	logger := w.logger.With("account", cfg.Account)
	start := time.Now()

	var report PollReport

	mb, err := w.deps.Dialer(ctx, cfg.clientConfig())
	if err != nil {
		report.Err = err
		if email.IsAuthError(err) {
			logger.Error("authentication failed, will retry on next poll", "error", err)
		} else {
			logger.Error("failed to open mailbox", "error", err)
		}
		return report
	}
	defer func() {
		if err := mb.Close(); err != nil {
			logger.Debug("failed to close mailbox", "error", err)
		}
	}()

	uids, err := mb.SearchUnseen(ctx)
	if err != nil {
		report.Err = err
		logger.Error("failed to search unseen messages", "error", err)
		return report
	}

	report.Seen = len(uids)
	for _, uid := range uids {
		w.processMessage(ctx, mb, cfg, policy, uid, &report)
	}

	if report.Seen > 0 || report.Failed > 0 {
		logger.Info("poll finished",
			"seen", report.Seen,
			"processed", report.Processed,
			"failed", report.Failed,
			"commands", report.Commands,
			"duration", time.Since(start),
		)
	} else {
		logger.Debug("poll finished, no new messages", "duration", time.Since(start))
	}

	return report
}

// processMessage handles one UID. A message that was fetched and parsed is
// marked read whatever happens to its command.
func (w *Watcher) processMessage(ctx context.Context, mb Mailbox, cfg Config, policy *command.Policy, uid uint32, report *PollReport) {
	logger := w.logger.With("uid", uid)

	res := mb.Fetch(ctx, uid)
	if !res.OK() {
		report.Failed++
		if errors.Is(res.Err, email.ErrVanished) {
			logger.Warn("message vanished before fetch", "error", res.Err)
		} else {
			logger.Error("failed to fetch message", "error", res.Err)
		}
		return
	}

	msg, err := email.ParseMessage(uid, res.Raw)
	if err != nil {
		report.Failed++
		logger.Error("failed to parse message", "error", err)
		return
	}
	for _, p := range msg.Problems {
		logger.Warn("message decoded with problems", "error", p)
	}

	rec := &models.MessageRecord{
		Account:    cfg.Account,
		UID:        uid,
		MessageID:  msg.MessageID,
		FromAddr:   msg.From.Address,
		FromName:   msg.From.Name,
		Subject:    msg.Subject,
		Preview:    w.preview(msg),
		Outcome:    models.OutcomeRead,
		ReceivedAt: msg.Date,
	}

	if command.HasPrefix(msg.Subject, cfg.Prefix) {
		if w.handleCommand(ctx, policy, msg, rec) {
			report.Commands++
		}
	}

	if err := mb.MarkAsRead(ctx, uid); err != nil {
		report.Failed++
		logger.Error("failed to mark message as read", "error", err)
	} else {
		report.Processed++
	}

	w.record(ctx, rec)

	if cfg.Notify {
		w.notifyMessage(ctx, msg, rec.Preview)
	}
}

// handleCommand authorizes, parses and dispatches the command in msg.
// It reports whether an action ran successfully.
func (w *Watcher) handleCommand(ctx context.Context, policy *command.Policy, msg *email.InboundMessage, rec *models.MessageRecord) bool {
	logger := w.logger.With("uid", msg.UID, "from", msg.From.Address)

	if err := policy.Authorize(msg.From.Address); err != nil {
		rec.Outcome = models.OutcomeUnauthorized
		logger.Warn("command from unauthorized sender dropped", "subject", msg.Subject)
		w.emit(ctx, events.TypeCommandDenied, map[string]any{
			"sender":  msg.From.Address,
			"subject": msg.Subject,
		})
		return false
	}

	cmd, ok := command.Parse(msg.BodyText)
	if !ok {
		rec.Outcome = models.OutcomeNoCommand
		logger.Debug("no command in message body")
		return false
	}
	rec.Verb = cmd.Verb
	rec.Argument = cmd.Argument

	if w.deps.Dispatcher == nil {
		rec.Outcome = models.OutcomeUnknownVerb
		logger.Info("no dispatcher configured, command dropped", "verb", cmd.Verb)
		return false
	}

	summary, err := w.deps.Dispatcher.Dispatch(ctx, dispatch.Request{
		Command:   cmd,
		Sender:    msg.From,
		MessageID: msg.MessageID,
		Subject:   msg.Subject,
	})
	switch {
	case errors.Is(err, dispatch.ErrUnknownVerb):
		rec.Outcome = models.OutcomeUnknownVerb
		logger.Info("unknown command verb dropped", "verb", cmd.Verb)
		return false
	case err != nil:
		rec.Outcome = models.OutcomeFailed
		rec.Detail = err.Error()
		logger.Error("command failed", "verb", cmd.Verb, "error", err)
		return false
	}

	rec.Outcome = models.OutcomeDispatched
	rec.Detail = summary
	logger.Info("command executed", "verb", cmd.Verb, "argument", cmd.Argument, "result", summary)
	return true
}

func (w *Watcher) preview(msg *email.InboundMessage) string {
	text := msg.BodyText
	if text == "" && msg.BodyHTML != "" {
		var err error
		if text, err = w.html.Text(msg.BodyHTML); err != nil {
			w.logger.Debug("failed to render html preview", "uid", msg.UID, "error", err)
		}
	}
	return formatter.Preview(text, previewLength)
}

func (w *Watcher) record(ctx context.Context, rec *models.MessageRecord) {
	if w.deps.Journal == nil {
		return
	}
	if err := w.deps.Journal.SaveMessage(ctx, rec); err != nil {
		w.logger.Error("failed to journal message", "uid", rec.UID, "error", err)
	}
}

func (w *Watcher) notifyMessage(ctx context.Context, msg *email.InboundMessage, preview string) {
	if w.deps.Notifier == nil {
		return
	}
	text := formatter.FormatMail(msg.From.String(), msg.Subject, msg.Date, preview)
	if err := w.deps.Notifier.Notify(ctx, "New mail", text); err != nil {
		w.logger.Warn("notification failed", "uid", msg.UID, "error", err)
	}
}

func (w *Watcher) emit(ctx context.Context, eventType string, payload map[string]any) {
	if w.deps.Events == nil {
		return
	}
	if err := w.deps.Events.Emit(ctx, eventType, payload); err != nil {
		w.logger.Warn("event not delivered", "type", eventType, "error", err)
	}
}
