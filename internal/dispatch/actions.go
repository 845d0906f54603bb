package dispatch

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/mixelka/mailwatch/internal/events"
	"github.com/mixelka/mailwatch/internal/mailer"
	"github.com/mixelka/mailwatch/internal/mediaindex"
	"github.com/mixelka/mailwatch/internal/notify"
)

// Searcher queries the media index
type Searcher interface {
	Search(ctx context.Context, query string) ([]mediaindex.Item, error)
}

// Emitter publishes events
type Emitter interface {
	Emit(ctx context.Context, eventType string, payload map[string]any) error
}

// Replier sends mail back to a sender
type Replier interface {
	IsConfigured() bool
	Send(ctx context.Context, m mailer.Mail) mailer.SendResult
}

// SearchAction looks the argument up in the media index and mails the results back
type SearchAction struct {
	Index    Searcher
	Replier  Replier // optional
	Events   Emitter // optional
	Notifier notify.Notifier
	Logger   *slog.Logger
}

// Run implements Action
func (a *SearchAction) Run(ctx context.Context, req Request) (string, error) {
	items, err := a.Index.Search(ctx, req.Command.Argument)
	if errors.Is(err, mediaindex.ErrNotConfigured) {
		a.reply(ctx, req, "<p>Search is unavailable: media index not configured.</p>\n")
		return "", err
	}
	if err != nil {
		return "", err
	}

	a.Logger.Info("search finished", "query", req.Command.Argument, "results", len(items))
	summary := fmt.Sprintf("%d result(s) for %q", len(items), req.Command.Argument)

	if a.Events != nil {
		err := a.Events.Emit(ctx, events.TypeSearchDone, map[string]any{
			"query":       req.Command.Argument,
			"results":     len(items),
			"requestedBy": req.Sender.Address,
		})
		if err != nil {
			a.Logger.Warn("search event not delivered", "error", err)
		}
	}

	if res, sent := a.reply(ctx, req, renderResults(req.Command.Argument, items)); sent {
		if !res.OK {
			return summary, fmt.Errorf("failed to reply with results: %s", res.Message)
		}
		summary += ", replied"
	}

	a.notify(ctx, "Search: "+req.Command.Argument, summary+"\nrequested by "+req.Sender.Address)
	return summary, nil
}

// reply mails body back to the sender; sent is false without a configured replier
func (a *SearchAction) reply(ctx context.Context, req Request, body string) (res mailer.SendResult, sent bool) {
	if a.Replier == nil || !a.Replier.IsConfigured() {
		return mailer.SendResult{}, false
	}
	return a.Replier.Send(ctx, mailer.Mail{
		To:      []string{req.Sender.Address},
		Subject: "Re: " + req.Subject,
		HTML:    body,
	}), true
}

func (a *SearchAction) notify(ctx context.Context, title, text string) {
	if a.Notifier == nil {
		return
	}
	if err := a.Notifier.Notify(ctx, title, text); err != nil {
		a.Logger.Warn("notification failed", "error", err)
	}
}

func renderResults(query string, items []mediaindex.Item) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("<p>Search results for <b>%s</b>:</p>\n", html.EscapeString(query)))
	if len(items) == 0 {
		sb.WriteString("<p>Nothing found.</p>\n")
		return sb.String()
	}

	sb.WriteString("<table>\n<tr><th>Title</th><th>Type</th></tr>\n")
	for _, it := range items {
		sb.WriteString(fmt.Sprintf("<tr><td>%s</td><td>%s</td></tr>\n",
			html.EscapeString(it.Title()), html.EscapeString(it.Type)))
	}
	sb.WriteString("</table>\n")
	return sb.String()
}

// DownloadAction forwards a download request to the event bus
type DownloadAction struct {
	Events   Emitter
	Notifier notify.Notifier
	Logger   *slog.Logger
}

// Run implements Action
func (a *DownloadAction) Run(ctx context.Context, req Request) (string, error) {
	err := a.Events.Emit(ctx, events.TypeDownloadAdd, map[string]any{
		"url":         req.Command.Argument,
		"requestedBy": req.Sender.Address,
	})
	if err != nil {
		return "", err
	}

	a.Logger.Info("download requested", "url", req.Command.Argument, "requested_by", req.Sender.Address)

	if a.Notifier != nil {
		text := req.Command.Argument + "\nrequested by " + req.Sender.Address
		if err := a.Notifier.Notify(ctx, "Download queued", text); err != nil {
			a.Logger.Warn("notification failed", "error", err)
		}
	}

	return "download queued", nil
}
