package email

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	netmail "net/mail"
	"strings"
	"time"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
)

// Address represents an email address
type Address struct {
	Name    string
	Address string
}

// String returns the address in "Name <addr>" form
func (a Address) String() string {
	if a.Name == "" {
		return a.Address
	}
	return fmt.Sprintf("%s <%s>", a.Name, a.Address)
}

// InboundMessage is one fetched and decoded email
type InboundMessage struct {
	UID       uint32
	MessageID string
	From      Address
	Subject   string
	Date      time.Time
	BodyText  string // first text/plain part, empty when there is none
	BodyHTML  string // first text/html part, used for previews only

	// Problems holds best-effort decoding failures; the message is still usable.
	Problems []error
}

// FetchResult is the outcome of fetching a single message by UID
type FetchResult struct {
	UID uint32
	Raw []byte
	Err error
}

// OK reports whether the fetch produced a message
func (r FetchResult) OK() bool {
	return r.Err == nil
}

var wordDecoder = &mime.WordDecoder{CharsetReader: charsetReader}

// ParseMessage decodes a raw RFC 5322 message.
// Only a header block that cannot be read at all is an error; everything
// else degrades to empty or undecoded values recorded in Problems.
func ParseMessage(uid uint32, raw []byte) (*InboundMessage, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
		return nil, fmt.Errorf("failed to read message header: %w", err)
	}
	if mr == nil {
		return nil, fmt.Errorf("failed to read message header: %w", err)
	}
	defer mr.Close()

	msg := &InboundMessage{UID: uid}
	if err != nil {
		msg.Problems = append(msg.Problems, &DecodeError{Field: "body", Err: err})
	}

	h := mr.Header
	msg.Subject = decodeSubject(h, msg)
	msg.From = decodeFrom(h, msg)
	msg.MessageID, _ = h.MessageID()
	if date, err := h.Date(); err == nil {
		msg.Date = date
	}

	readParts(mr, msg)

	return msg, nil
}

func decodeSubject(h mail.Header, msg *InboundMessage) string {
	subject, err := h.Subject()
	if err == nil {
		return subject
	}

	msg.Problems = append(msg.Problems, &DecodeError{Field: "Subject", Err: err})
	return h.Get("Subject")
}

func decodeFrom(h mail.Header, msg *InboundMessage) Address {
	addrs, err := h.AddressList("From")
	if err == nil && len(addrs) > 0 {
		return Address{Name: addrs[0].Name, Address: addrs[0].Address}
	}

	raw := h.Get("From")
	if raw == "" {
		return Address{}
	}
	if err != nil {
		msg.Problems = append(msg.Problems, &DecodeError{Field: "From", Err: err})
	}

	// Undecodable display name: the bare address is still usable
	if addr, perr := netmail.ParseAddress(raw); perr == nil {
		name := addr.Name
		if dec, derr := wordDecoder.DecodeHeader(name); derr == nil {
			name = dec
		}
		return Address{Name: name, Address: addr.Address}
	}
	if i, j := strings.LastIndex(raw, "<"), strings.LastIndex(raw, ">"); i >= 0 && j > i {
		return Address{Name: strings.TrimSpace(raw[:i]), Address: strings.TrimSpace(raw[i+1 : j])}
	}
	return Address{Address: strings.TrimSpace(raw)}
}

// readParts walks the MIME tree depth-first keeping the first plain and html parts
func readParts(mr *mail.Reader, msg *InboundMessage) {
	var gotText, gotHTML bool
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return
		}
		if err != nil {
			if part == nil || !(message.IsUnknownCharset(err) || message.IsUnknownEncoding(err)) {
				msg.Problems = append(msg.Problems, &DecodeError{Field: "body", Err: err})
				return
			}
			msg.Problems = append(msg.Problems, &DecodeError{Field: "body", Err: err})
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}

		ct, _, cterr := h.ContentType()
		if cterr != nil {
			ct = "text/plain"
		}

		switch {
		case !gotText && strings.HasPrefix(ct, "text/plain"):
			body, err := io.ReadAll(part.Body)
			if err != nil {
				msg.Problems = append(msg.Problems, &DecodeError{Field: "text/plain", Err: err})
				continue
			}
			msg.BodyText = string(body)
			gotText = true
		case !gotHTML && strings.HasPrefix(ct, "text/html"):
			body, err := io.ReadAll(part.Body)
			if err != nil {
				msg.Problems = append(msg.Problems, &DecodeError{Field: "text/html", Err: err})
				continue
			}
			msg.BodyHTML = string(body)
			gotHTML = true
		}

		if gotText && gotHTML {
			return
		}
	}
}

// DecodeHeader decodes an RFC 2047 header value using its declared charset,
// falling back to the raw value when the charset is unknown.
func DecodeHeader(value string) (string, error) {
	dec, err := wordDecoder.DecodeHeader(value)
	if err != nil {
		return value, &DecodeError{Field: "header", Err: err}
	}
	return dec, nil
}

// IsDecodeError reports whether err (or any error in its chain) is a DecodeError.
func IsDecodeError(err error) bool {
	var decErr *DecodeError
	return errors.As(err, &decErr)
}
