package formatter

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatNotificationEscapes(t *testing.T) {
	f := NewTelegramFormatter()
	got := f.FormatNotification("Download <queued>", "url: http://x/?a=1&b=2")

	assert.Equal(t, "<b>Download &lt;queued&gt;</b>\n\nurl: http://x/?a=1&amp;b=2", got)
}

func TestFormatNotificationTruncates(t *testing.T) {
	f := NewTelegramFormatter()
	got := f.FormatNotification("t", strings.Repeat("я", 5000))

	assert.Less(t, len([]rune(got)), 4100)
	assert.Contains(t, got, "(truncated)")
}

func TestFormatMail(t *testing.T) {
	at := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
	got := FormatMail("boss@example.com", "/movie", at, "/search dune")

	assert.Equal(t, "From: boss@example.com\nSubject: /movie\nDate: 01.03.2024 10:30\n\n/search dune", got)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "a b c", Preview(" a\n b\t c ", 10))
	assert.Equal(t, "abc…", Preview("abcdef", 3))
}
