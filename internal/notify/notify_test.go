package notify

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTelegramNotifier(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
		texts []string
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))

		mu.Lock()
		paths = append(paths, r.URL.Path)
		texts = append(texts, r.FormValue("text"))
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"ok":true,"result":{"message_id":42,"date":0,"chat":{"id":-100200,"type":"supergroup"}}}`)
	}))
	defer srv.Close()

	n, err := NewTelegramNotifier(TelegramConfig{
		Token:     "123:abc",
		ChatID:    -100200,
		TopicID:   7,
		ServerURL: srv.URL,
	}, discardLogger())
	require.NoError(t, err)

	require.NoError(t, n.Notify(context.Background(), "Download queued", "http://example.com/a.torrent"))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, paths, 1)
	assert.True(t, strings.HasSuffix(paths[0], "/sendMessage"))
	assert.Contains(t, texts[0], "<b>Download queued</b>")
}

func TestTelegramNotifierAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`)
	}))
	defer srv.Close()

	n, err := NewTelegramNotifier(TelegramConfig{Token: "123:abc", ChatID: 1, ServerURL: srv.URL}, discardLogger())
	require.NoError(t, err)

	assert.Error(t, n.Notify(context.Background(), "t", "x"))
}

func TestLogNotifier(t *testing.T) {
	assert.NoError(t, NewLogNotifier(discardLogger()).Notify(context.Background(), "t", "x"))
}
