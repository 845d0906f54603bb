package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path/filepath"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"
)

// Security modes of the submission connection
const (
	SecurityTLS      = "tls"      // implicit TLS, port 465
	SecurityStartTLS = "starttls" // port 587
	SecurityNone     = "none"
)

// Config for the SMTP sender
type Config struct {
	Server    string // host:port
	Account   string // sender address and login
	Password  string
	Security  string
	Timeout   time.Duration
	TLSConfig *tls.Config
}

// Attachment is a file attached to an outgoing message
type Attachment struct {
	Name        string
	ContentType string // detected from the name when empty
	Data        []byte
}

// Mail is an outgoing HTML message
type Mail struct {
	To          []string
	Subject     string
	HTML        string
	Attachments []Attachment
}

// SendResult is the outcome of a send; Message is always human readable
type SendResult struct {
	OK      bool
	Message string
}

// Sender submits mail over SMTP
type Sender struct {
	config Config
	logger *slog.Logger
}

// NewSender creates a new SMTP sender
func NewSender(cfg Config, logger *slog.Logger) *Sender {
	if cfg.Security == "" {
		cfg.Security = SecurityTLS
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Sender{
		config: cfg,
		logger: logger.With("component", "mailer"),
	}
}

// IsConfigured returns true if a submission server is known
func (s *Sender) IsConfigured() bool {
	return s != nil && s.config.Server != "" && s.config.Account != ""
}

// Send composes and transmits m. It never returns an error value:
// every failure is reported as SendResult{OK: false}.
func (s *Sender) Send(ctx context.Context, m Mail) SendResult {
	if !s.IsConfigured() {
		return SendResult{Message: "mail sending is not configured"}
	}
	if len(m.To) == 0 {
		return SendResult{Message: "no recipients"}
	}

	raw, err := Compose(s.config.Account, m)
	if err != nil {
		return s.fail(m, err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- s.deliver(m.To, raw)
	}()

	select {
	case err := <-done:
		if err != nil {
			return s.fail(m, err)
		}
	case <-ctx.Done():
		return s.fail(m, fmt.Errorf("failed to send: %w", ctx.Err()))
	}

	s.logger.Info("mail sent", "to", m.To, "subject", m.Subject)
	return SendResult{OK: true, Message: fmt.Sprintf("mail sent to %d recipient(s)", len(m.To))}
}

func (s *Sender) fail(m Mail, err error) SendResult {
	s.logger.Error("failed to send mail", "to", m.To, "error", err)
	return SendResult{Message: err.Error()}
}

func (s *Sender) deliver(to []string, raw []byte) error {
	c, err := s.dial()
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", s.config.Server, err)
	}
	defer c.Close()

	c.CommandTimeout = s.config.Timeout
	c.SubmissionTimeout = s.config.Timeout

	if s.config.Password != "" {
		auth := sasl.NewPlainClient("", s.config.Account, s.config.Password)
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("failed to authenticate: %w", err)
		}
	}

	if err := c.SendMail(s.config.Account, to, bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("failed to send: %w", err)
	}

	if err := c.Quit(); err != nil {
		s.logger.Debug("quit failed after successful send", "error", err)
	}
	return nil
}

func (s *Sender) dial() (*smtp.Client, error) {
	switch s.config.Security {
	case SecurityTLS:
		return smtp.DialTLS(s.config.Server, s.config.TLSConfig)
	case SecurityStartTLS:
		return smtp.DialStartTLS(s.config.Server, s.config.TLSConfig)
	case SecurityNone:
		return smtp.Dial(s.config.Server)
	default:
		return nil, fmt.Errorf("unknown security mode %q", s.config.Security)
	}
}

// Compose builds a MIME message with an HTML body and optional attachments
func Compose(from string, m Mail) ([]byte, error) {
	var h mail.Header
	h.SetDate(time.Now())
	h.SetSubject(m.Subject)
	h.SetAddressList("From", []*mail.Address{{Address: from}})

	to := make([]*mail.Address, 0, len(m.To))
	for _, addr := range m.To {
		to = append(to, &mail.Address{Address: addr})
	}
	h.SetAddressList("To", to)
	h.SetMessageID(uuid.NewString() + "@" + domainOf(from))

	var buf bytes.Buffer

	if len(m.Attachments) == 0 {
		h.SetContentType("text/html", map[string]string{"charset": "utf-8"})
		h.Set("Content-Transfer-Encoding", "quoted-printable")

		w, err := mail.CreateSingleInlineWriter(&buf, h)
		if err != nil {
			return nil, fmt.Errorf("failed to create message: %w", err)
		}
		if _, err := io.WriteString(w, m.HTML); err != nil {
			return nil, fmt.Errorf("failed to write body: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("failed to close message: %w", err)
		}
		return buf.Bytes(), nil
	}

	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}

	if err := writeHTMLPart(mw, m.HTML); err != nil {
		return nil, err
	}

	for _, att := range m.Attachments {
		if err := writeAttachment(mw, att); err != nil {
			return nil, err
		}
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close message: %w", err)
	}
	return buf.Bytes(), nil
}

func writeHTMLPart(mw *mail.Writer, html string) error {
	iw, err := mw.CreateInline()
	if err != nil {
		return fmt.Errorf("failed to create inline part: %w", err)
	}

	var ph mail.InlineHeader
	ph.SetContentType("text/html", map[string]string{"charset": "utf-8"})
	ph.Set("Content-Transfer-Encoding", "quoted-printable")

	pw, err := iw.CreatePart(ph)
	if err != nil {
		return fmt.Errorf("failed to create html part: %w", err)
	}
	if _, err := io.WriteString(pw, html); err != nil {
		return fmt.Errorf("failed to write html part: %w", err)
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("failed to close html part: %w", err)
	}
	return iw.Close()
}

func writeAttachment(mw *mail.Writer, att Attachment) error {
	if att.Name == "" {
		return errors.New("attachment without a name")
	}

	ct := att.ContentType
	if ct == "" {
		ct = mime.TypeByExtension(filepath.Ext(att.Name))
	}
	if ct == "" {
		ct = "application/octet-stream"
	}

	var ah mail.AttachmentHeader
	ah.Set("Content-Type", ct)
	ah.SetFilename(att.Name)
	ah.Set("Content-Transfer-Encoding", "base64")

	aw, err := mw.CreateAttachment(ah)
	if err != nil {
		return fmt.Errorf("failed to create attachment %s: %w", att.Name, err)
	}
	if _, err := aw.Write(att.Data); err != nil {
		return fmt.Errorf("failed to write attachment %s: %w", att.Name, err)
	}
	return aw.Close()
}

func domainOf(addr string) string {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == '@' {
			return addr[i+1:]
		}
	}
	return "localhost"
}
