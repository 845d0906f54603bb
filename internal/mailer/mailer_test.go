package mailer

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-smtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSendUnreachableEndpoint(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	for _, security := range []string{SecurityTLS, SecurityStartTLS, SecurityNone} {
		t.Run(security, func(t *testing.T) {
			s := NewSender(Config{
				Server:   addr,
				Account:  "watcher@example.com",
				Password: "secret",
				Security: security,
				Timeout:  5 * time.Second,
			}, discardLogger())

			res := s.Send(context.Background(), Mail{To: []string{"boss@example.com"}, Subject: "hi", HTML: "<p>hi</p>"})
			assert.False(t, res.OK)
			assert.NotEmpty(t, res.Message)
		})
	}
}

func TestSendNotConfigured(t *testing.T) {
	s := NewSender(Config{}, discardLogger())
	res := s.Send(context.Background(), Mail{To: []string{"a@example.com"}})
	assert.False(t, res.OK)
	assert.NotEmpty(t, res.Message)

	var nilSender *Sender
	assert.False(t, nilSender.IsConfigured())
}

func TestSendNoRecipients(t *testing.T) {
	s := NewSender(Config{Server: "127.0.0.1:1", Account: "a@example.com"}, discardLogger())
	res := s.Send(context.Background(), Mail{})
	assert.False(t, res.OK)
	assert.Equal(t, "no recipients", res.Message)
}

func TestComposeWithAttachment(t *testing.T) {
	raw, err := Compose("watcher@example.com", Mail{
		To:      []string{"boss@example.com"},
		Subject: "Результаты поиска",
		HTML:    "<p>Inception (2010)</p>",
		Attachments: []Attachment{
			{Name: "results.csv", Data: []byte("name,year\nInception,2010\n")},
		},
	})
	require.NoError(t, err)

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	require.NoError(t, err)

	subject, err := mr.Header.Subject()
	require.NoError(t, err)
	assert.Equal(t, "Результаты поиска", subject)

	var html, attName string
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)

		switch h := p.Header.(type) {
		case *mail.InlineHeader:
			b, _ := io.ReadAll(p.Body)
			html = string(b)
		case *mail.AttachmentHeader:
			attName, _ = h.Filename()
		}
	}

	assert.Equal(t, "<p>Inception (2010)</p>", html)
	assert.Equal(t, "results.csv", attName)
}

type recordedMail struct {
	from string
	to   []string
	data string
}

type backend struct {
	mu   sync.Mutex
	mail []recordedMail
}

func (b *backend) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &session{backend: b}, nil
}

type session struct {
	backend *backend
	current recordedMail
}

func (s *session) Mail(from string, _ *smtp.MailOptions) error {
	s.current.from = from
	return nil
}

func (s *session) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.current.to = append(s.current.to, to)
	return nil
}

func (s *session) Data(r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.current.data = string(b)

	s.backend.mu.Lock()
	s.backend.mail = append(s.backend.mail, s.current)
	s.backend.mu.Unlock()
	return nil
}

func (s *session) Reset()        { s.current = recordedMail{} }
func (s *session) Logout() error { return nil }

func TestSendDelivers(t *testing.T) {
	be := &backend{}
	srv := smtp.NewServer(be)
	srv.Domain = "localhost"
	srv.AllowInsecureAuth = true

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go srv.Serve(ln)
	defer srv.Close()

	s := NewSender(Config{
		Server:   ln.Addr().String(),
		Account:  "watcher@example.com",
		Security: SecurityNone,
		Timeout:  5 * time.Second,
	}, discardLogger())

	res := s.Send(context.Background(), Mail{
		To:      []string{"boss@example.com"},
		Subject: "search results",
		HTML:    "<p>found</p>",
	})
	require.True(t, res.OK, res.Message)

	be.mu.Lock()
	defer be.mu.Unlock()
	require.Len(t, be.mail, 1)
	assert.Equal(t, "watcher@example.com", be.mail[0].from)
	assert.Equal(t, []string{"boss@example.com"}, be.mail[0].to)
	assert.True(t, strings.Contains(be.mail[0].data, "<p>found</p>"))
}
