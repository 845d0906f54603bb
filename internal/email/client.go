package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
)

// ClientConfig configuration for IMAP client
type ClientConfig struct {
	Account     string
	Password    string
	Server      string // host:port
	TLS         bool   // implicit TLS; plain TCP when false
	DialTimeout time.Duration
	TLSConfig   *tls.Config
}

// Client is one authenticated IMAP session with INBOX selected
type Client struct {
	config ClientConfig
	client *client.Client
	logger *slog.Logger
	mu     sync.Mutex
	closed bool
}

// Open connects, logs in and selects INBOX.
// A rejected login is reported as *AuthError.
func Open(ctx context.Context, cfg ClientConfig, logger *slog.Logger) (*Client, error) {
	c := &Client{
		config: cfg,
		logger: logger.With("account", cfg.Account),
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	if err := c.selectINBOX(); err != nil {
		c.Close()
		return nil, err
	}

	return c, nil
}

func (c *Client) connect(ctx context.Context) error {
	c.logger.Debug("connecting to IMAP server", "server", c.config.Server)

	timeout := c.config.DialTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	dialer := &net.Dialer{Timeout: timeout}
	var (
		conn net.Conn
		err  error
	)
	if c.config.TLS {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: c.config.TLSConfig}
		conn, err = tlsDialer.DialContext(ctx, "tcp", c.config.Server)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", c.config.Server)
	}
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.config.Server, err)
	}

	imapClient, err := client.New(conn)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create IMAP client: %w", err)
	}
	imapClient.Timeout = timeout

	if err := imapClient.Login(c.config.Account, c.config.Password); err != nil {
		imapClient.Logout()
		return &AuthError{Account: c.config.Account, Err: err}
	}

	c.client = imapClient
	c.logger.Debug("connected to IMAP server")
	return nil
}

func (c *Client) selectINBOX() error {
	if _, err := c.client.Select("INBOX", false); err != nil {
		return fmt.Errorf("failed to select INBOX: %w", err)
	}
	return nil
}

// SearchUnseen returns the UIDs of messages without the \Seen flag, ascending
func (c *Client) SearchUnseen(ctx context.Context) ([]uint32, error) {
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	return c.search(ctx, criteria)
}

// SearchAll returns the UIDs of every message in INBOX, ascending
func (c *Client) SearchAll(ctx context.Context) ([]uint32, error) {
	return c.search(ctx, imap.NewSearchCriteria())
}

func (c *Client) search(ctx context.Context, criteria *imap.SearchCriteria) ([]uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.usable(ctx); err != nil {
		return nil, err
	}

	uids, err := c.client.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	return uids, nil
}

// Fetch retrieves the full message without setting \Seen.
// Failures are returned inside the result as *FetchError.
func (c *Client) Fetch(ctx context.Context, uid uint32) FetchResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.usable(ctx); err != nil {
		return FetchResult{UID: uid, Err: &FetchError{UID: uid, Err: err}}
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)

	go func() {
		done <- c.client.UidFetch(seqSet, items, messages)
	}()

	var raw []byte
	var readErr error
	for msg := range messages {
		body := msg.GetBody(section)
		if body == nil || raw != nil {
			continue
		}
		raw, readErr = io.ReadAll(body)
	}

	if err := <-done; err != nil {
		return FetchResult{UID: uid, Err: &FetchError{UID: uid, Err: err}}
	}
	if readErr != nil {
		return FetchResult{UID: uid, Err: &FetchError{UID: uid, Err: readErr}}
	}
	if raw == nil {
		return FetchResult{UID: uid, Err: &FetchError{UID: uid, Err: ErrVanished}}
	}

	return FetchResult{UID: uid, Raw: raw}
}

// MarkAsRead marks a message as read (adds \Seen flag)
func (c *Client) MarkAsRead(ctx context.Context, uid uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.usable(ctx); err != nil {
		return err
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)

	item := imap.FormatFlagsOp(imap.AddFlags, true)
	flags := []interface{}{imap.SeenFlag}

	if err := c.client.UidStore(seqSet, item, flags, nil); err != nil {
		return fmt.Errorf("failed to mark as read: %w", err)
	}

	return nil
}

func (c *Client) usable(ctx context.Context) error {
	if c.closed || c.client == nil {
		return fmt.Errorf("not connected")
	}
	return ctx.Err()
}

// Close logs out; a server that does not answer is disconnected after a short wait.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	imapClient := c.client
	c.client = nil
	c.mu.Unlock()

	if imapClient == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() {
		done <- imapClient.Logout()
	}()

	select {
	case err := <-done:
		if err != nil && err != client.ErrAlreadyLoggedOut {
			return fmt.Errorf("failed to logout: %w", err)
		}
		return nil
	case <-time.After(2 * time.Second):
		return imapClient.Terminate()
	}
}
