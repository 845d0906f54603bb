package watcher

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/emersion/go-imap/backend/memory"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-imap/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startIMAP(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := server.New(memory.New())
	s.AllowInsecureAuth = true
	go s.Serve(ln)

	t.Cleanup(func() { s.Close() })
	return ln.Addr().String()
}

func appendRaw(t *testing.T, addr string, raw []byte) {
	t.Helper()

	c, err := client.Dial(addr)
	require.NoError(t, err)
	defer c.Logout()

	require.NoError(t, c.Login("username", "password"))
	require.NoError(t, c.Append("INBOX", nil, time.Now(), bytes.NewBuffer(raw)))
}

func TestPollAgainstIMAPServer(t *testing.T) {
	addr := startIMAP(t)
	ctx := context.Background()

	dispatcher := &fakeDispatcher{}
	journal := &fakeJournal{}
	w := New(Deps{
		Dialer:     DialIMAP(discardLogger()),
		Dispatcher: dispatcher,
		Journal:    journal,
		Logger:     discardLogger(),
	})
	require.NoError(t, w.Init(Config{
		Account:        "username",
		Password:       "password",
		Server:         addr,
		DialTimeout:    5 * time.Second,
		Enabled:        true,
		Schedule:       "@every 1m",
		AllowedSenders: []string{"boss@example.com"},
	}))

	// drain whatever the backend seeds INBOX with
	w.Poll(ctx)
	before := len(journal.recs)

	appendRaw(t, addr, rawMessage("Boss <boss@example.com>", "/movie", "/search inception 2010"))
	appendRaw(t, addr, rawMessage("mallory@example.com", "/movie", "/download http://evil"))

	report := w.Poll(ctx)
	require.NoError(t, report.Err)
	assert.Equal(t, 2, report.Seen)
	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 1, report.Commands)

	require.Len(t, dispatcher.requests, 1)
	assert.Equal(t, "inception 2010", dispatcher.requests[0].Command.Argument)
	assert.Len(t, journal.recs, before+2)

	report = w.Poll(ctx)
	require.NoError(t, report.Err)
	assert.Zero(t, report.Seen)
	assert.Len(t, dispatcher.requests, 1)
}

func TestPollAgainstIMAPServerBadCredentials(t *testing.T) {
	addr := startIMAP(t)

	w := New(Deps{Dialer: DialIMAP(discardLogger()), Logger: discardLogger()})
	require.NoError(t, w.Init(Config{
		Account:     "username",
		Password:    "wrong",
		Server:      addr,
		DialTimeout: 5 * time.Second,
		Schedule:    "@every 1m",
	}))

	report := w.Poll(context.Background())
	require.Error(t, report.Err)
	assert.Contains(t, report.Err.Error(), "authentication failed")
}
