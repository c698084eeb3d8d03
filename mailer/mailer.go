// Package mailer delivers the rendered document back to the sender set
// over SMTP.
package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"time"

	gomail "github.com/emersion/go-message/mail"
)

// AuthError reports failed SMTP authentication, distinct from generic
// transport failures so operators can tell a bad password from a flaky
// server.
type AuthError struct {
	Username string
	Err      error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("smtp authentication failed for %s: %v", e.Username, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// Attachment is a single file attached to an outbound message.
type Attachment struct {
	Filename string
	Data     []byte
}

// Sender delivers one message to a recipient set.
type Sender interface {
	Send(ctx context.Context, recipients []string, subject, body string, attachment Attachment) error
}

// Options configures the SMTP sender.
type Options struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// SMTP sends mail over a STARTTLS connection.
type SMTP struct {
	opts Options
}

func NewSMTP(opts Options) (*SMTP, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("smtp host is empty")
	}
	if opts.Port <= 0 || opts.Port > 65535 {
		return nil, fmt.Errorf("smtp port must be between 1 and 65535")
	}
	if opts.From == "" {
		return nil, fmt.Errorf("smtp sender address is empty")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &SMTP{opts: opts}, nil
}

func (s *SMTP) Send(ctx context.Context, recipients []string, subject, body string, attachment Attachment) error {
	if len(recipients) == 0 {
		return fmt.Errorf("recipient set is empty")
	}

	raw, err := compose(s.opts.From, recipients, subject, body, attachment)
	if err != nil {
		return fmt.Errorf("compose message: %w", err)
	}

	addr := net.JoinHostPort(s.opts.Host, fmt.Sprintf("%d", s.opts.Port))
	conn, err := net.DialTimeout("tcp", addr, s.opts.Timeout)
	if err != nil {
		return fmt.Errorf("dial smtp %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(s.opts.Timeout))
	}

	client, err := smtp.NewClient(conn, s.opts.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if err := client.StartTLS(&tls.Config{ServerName: s.opts.Host}); err != nil {
		return fmt.Errorf("smtp starttls: %w", err)
	}

	auth := smtp.PlainAuth("", s.opts.Username, s.opts.Password, s.opts.Host)
	if err := client.Auth(auth); err != nil {
		return &AuthError{Username: s.opts.Username, Err: err}
	}

	if err := client.Mail(s.opts.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	for _, rcpt := range recipients {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp rcpt %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		return fmt.Errorf("write message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close message body: %w", err)
	}

	return client.Quit()
}

// compose builds the MIME message: a text part plus the document
// attachment.
func compose(from string, recipients []string, subject, body string, attachment Attachment) ([]byte, error) {
	var header gomail.Header
	header.SetDate(time.Now())
	header.SetSubject(subject)
	header.SetAddressList("From", []*gomail.Address{{Address: from}})

	to := make([]*gomail.Address, 0, len(recipients))
	for _, rcpt := range recipients {
		to = append(to, &gomail.Address{Address: rcpt})
	}
	header.SetAddressList("To", to)

	var buf bytes.Buffer
	mw, err := gomail.CreateWriter(&buf, header)
	if err != nil {
		return nil, err
	}

	var textHeader gomail.InlineHeader
	textHeader.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	tw, err := mw.CreateSingleInline(textHeader)
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(tw, body); err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}

	if len(attachment.Data) > 0 {
		var attHeader gomail.AttachmentHeader
		attHeader.SetContentType("application/pdf", nil)
		attHeader.SetFilename(attachment.Filename)
		aw, err := mw.CreateAttachment(attHeader)
		if err != nil {
			return nil, err
		}
		if _, err := aw.Write(attachment.Data); err != nil {
			return nil, err
		}
		if err := aw.Close(); err != nil {
			return nil, err
		}
	}

	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
