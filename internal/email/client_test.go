package email

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-imap/backend/memory"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-imap/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startServer runs an in-memory IMAP server; its INBOX holds one seen message.
func startServer(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := server.New(memory.New())
	s.AllowInsecureAuth = true
	go s.Serve(ln)

	t.Cleanup(func() { s.Close() })
	return ln.Addr().String()
}

func appendMessage(t *testing.T, addr, body string) {
	t.Helper()

	c, err := client.Dial(addr)
	require.NoError(t, err)
	defer c.Logout()

	require.NoError(t, c.Login("username", "password"))
	require.NoError(t, c.Append("INBOX", nil, time.Now(), bytes.NewBufferString(body)))
}

func testConfig(addr string) ClientConfig {
	return ClientConfig{
		Account:     "username",
		Password:    "password",
		Server:      addr,
		DialTimeout: 5 * time.Second,
	}
}

// markAllRead clears whatever the backend seeds INBOX with.
func markAllRead(t *testing.T, addr string) {
	t.Helper()

	ctx := context.Background()
	c, err := Open(ctx, testConfig(addr), discardLogger())
	require.NoError(t, err)
	defer c.Close()

	uids, err := c.SearchUnseen(ctx)
	require.NoError(t, err)
	for _, uid := range uids {
		require.NoError(t, c.MarkAsRead(ctx, uid))
	}
}

func TestClientUnseenLifecycle(t *testing.T) {
	addr := startServer(t)
	markAllRead(t, addr)
	appendMessage(t, addr, string(crlf("From: boss@example.com\nSubject: /movie\n\n/search inception 2010\n")))

	ctx := context.Background()
	c, err := Open(ctx, testConfig(addr), discardLogger())
	require.NoError(t, err)
	defer c.Close()

	all, err := c.SearchAll(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, all)

	unseen, err := c.SearchUnseen(ctx)
	require.NoError(t, err)
	require.Len(t, unseen, 1)

	res := c.Fetch(ctx, unseen[0])
	require.True(t, res.OK(), "fetch error: %v", res.Err)
	assert.True(t, strings.Contains(string(res.Raw), "/search inception 2010"))

	// BODY.PEEK must not set \Seen
	unseen2, err := c.SearchUnseen(ctx)
	require.NoError(t, err)
	assert.Equal(t, unseen, unseen2)

	require.NoError(t, c.MarkAsRead(ctx, unseen[0]))

	unseen3, err := c.SearchUnseen(ctx)
	require.NoError(t, err)
	assert.Empty(t, unseen3)
}

func TestClientFetchVanished(t *testing.T) {
	addr := startServer(t)

	ctx := context.Background()
	c, err := Open(ctx, testConfig(addr), discardLogger())
	require.NoError(t, err)
	defer c.Close()

	res := c.Fetch(ctx, 4242)
	require.False(t, res.OK())
	assert.True(t, IsFetchError(res.Err))
	assert.ErrorIs(t, res.Err, ErrVanished)
}

func TestClientBadCredentials(t *testing.T) {
	addr := startServer(t)

	cfg := testConfig(addr)
	cfg.Password = "wrong"

	_, err := Open(context.Background(), cfg, discardLogger())
	require.Error(t, err)
	assert.True(t, IsAuthError(err))
}

func TestClientUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	_, err = Open(context.Background(), testConfig(addr), discardLogger())
	require.Error(t, err)
	assert.False(t, IsAuthError(err))
}

func TestClientCloseTwice(t *testing.T) {
	addr := startServer(t)

	c, err := Open(context.Background(), testConfig(addr), discardLogger())
	require.NoError(t, err)

	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())

	_, err = c.SearchUnseen(context.Background())
	assert.Error(t, err)
}
