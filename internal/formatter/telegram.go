package formatter

import (
	"fmt"
	"strings"
	"time"
)

// TelegramFormatter formats notifications as Telegram HTML
type TelegramFormatter struct {
	maxLength int
}

// NewTelegramFormatter creates a new Telegram formatter
func NewTelegramFormatter() *TelegramFormatter {
	return &TelegramFormatter{
		maxLength: 4000, // Leave room for markup
	}
}

// FormatNotification formats a titled notification
func (f *TelegramFormatter) FormatNotification(title, text string) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("<b>%s</b>\n", f.escapeHTML(title)))
	if text != "" {
		sb.WriteString("\n")
		body := f.truncate(text, f.maxLength-sb.Len()-50)
		sb.WriteString(f.escapeHTML(body))
	}

	return sb.String()
}

// FormatMail formats a short summary of a received message
func FormatMail(from, subject string, received time.Time, preview string) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("From: %s\n", from))
	sb.WriteString(fmt.Sprintf("Subject: %s\n", subject))
	if !received.IsZero() {
		sb.WriteString(fmt.Sprintf("Date: %s\n", received.Format("02.01.2006 15:04")))
	}
	if preview != "" {
		sb.WriteString("\n")
		sb.WriteString(preview)
	}

	return sb.String()
}

// escapeHTML escapes HTML special characters for Telegram
func (f *TelegramFormatter) escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

// truncate truncates text to maxLen characters
func (f *TelegramFormatter) truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = 100
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "\n\n... (truncated)"
}

// Preview shortens s to at most n runes on a single paragraph
func Preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
