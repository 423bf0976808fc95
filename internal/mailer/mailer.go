// Package mailer dispatches transactional email (one-time codes, reset
// links). Dispatch failure is always surfaced to the caller, never
// swallowed: persistence succeeding while the email never left must read as
// an error.
package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"
)

// ErrDispatchFailed wraps any SMTP-level failure.
var ErrDispatchFailed = errors.New("email dispatch failed")

// Sender is the black-box send capability the auth service consumes.
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// SMTPSender sends over authenticated SMTP with STARTTLS and conservative
// connection timeouts so a stalled relay fails the request instead of
// hanging it.
type SMTPSender struct {
	addr     string // host:port
	username string
	password string
	from     string
	timeout  time.Duration
}

// NewSMTPSender validates the relay configuration.
func NewSMTPSender(addr, username, password, from string, timeout time.Duration) (*SMTPSender, error) {
	if addr == "" || from == "" {
		return nil, errors.New("smtp address and from are required")
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return nil, fmt.Errorf("smtp address must be host:port: %w", err)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SMTPSender{
		addr:     addr,
		username: username,
		password: password,
		from:     from,
		timeout:  timeout,
	}, nil
}

// Send delivers one message. The context deadline, if any, tightens the
// dial timeout further.
func (s *SMTPSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	host, _, _ := net.SplitHostPort(s.addr)

	dialer := net.Dialer{Timeout: s.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDispatchFailed, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(s.timeout))
	}

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("%w: %v", ErrDispatchFailed, err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: host}); err != nil {
			return fmt.Errorf("%w: %v", ErrDispatchFailed, err)
		}
	}
	if s.username != "" {
		auth := smtp.PlainAuth("", s.username, s.password, host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("%w: %v", ErrDispatchFailed, err)
		}
	}

	if err := client.Mail(s.from); err != nil {
		return fmt.Errorf("%w: %v", ErrDispatchFailed, err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("%w: %v", ErrDispatchFailed, err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDispatchFailed, err)
	}
	if _, err := w.Write(buildMessage(s.from, to, subject, htmlBody)); err != nil {
		_ = w.Close()
		return fmt.Errorf("%w: %v", ErrDispatchFailed, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrDispatchFailed, err)
	}

	if err := client.Quit(); err != nil {
		return fmt.Errorf("%w: %v", ErrDispatchFailed, err)
	}
	return nil
}

func buildMessage(from, to, subject, htmlBody string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(htmlBody)
	b.WriteString("\r\n")
	return []byte(b.String())
}
