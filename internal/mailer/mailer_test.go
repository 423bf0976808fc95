package mailer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"
)

func TestNewSMTPSenderValidation(t *testing.T) {
	if _, err := NewSMTPSender("", "u", "p", "from@x.com", 0); err == nil {
		t.Fatal("expected error for empty address")
	}
	if _, err := NewSMTPSender("smtp.example.com", "u", "p", "from@x.com", 0); err == nil {
		t.Fatal("expected error for address without port")
	}
	if _, err := NewSMTPSender("smtp.example.com:587", "u", "p", "", 0); err == nil {
		t.Fatal("expected error for empty from")
	}
	if _, err := NewSMTPSender("smtp.example.com:587", "u", "p", "from@x.com", 0); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestBuildMessageHeaders(t *testing.T) {
	msg := string(buildMessage("from@x.com", "to@y.com", "Your code", "<p>123456</p>"))

	for _, want := range []string{
		"From: from@x.com\r\n",
		"To: to@y.com\r\n",
		"Subject: Your code\r\n",
		"Content-Type: text/html",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}

	headerEnd := strings.Index(msg, "\r\n\r\n")
	if headerEnd < 0 {
		t.Fatal("message has no header/body separator")
	}
	if !strings.Contains(msg[headerEnd:], "<p>123456</p>") {
		t.Error("body missing from message")
	}
}

// scriptedRelay speaks just enough SMTP to accept one message and then fail
// the closing QUIT.
func scriptedRelay(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		br := bufio.NewReader(conn)
		fmt.Fprintf(conn, "220 relay ready\r\n")
		for {
			line, err := br.ReadString('\n')
			if err != nil {
				return
			}
			switch {
			case strings.HasPrefix(line, "EHLO"), strings.HasPrefix(line, "HELO"):
				fmt.Fprintf(conn, "250 relay\r\n")
			case strings.HasPrefix(line, "MAIL"), strings.HasPrefix(line, "RCPT"):
				fmt.Fprintf(conn, "250 ok\r\n")
			case strings.HasPrefix(line, "DATA"):
				fmt.Fprintf(conn, "354 go\r\n")
				for {
					l, err := br.ReadString('\n')
					if err != nil {
						return
					}
					if l == ".\r\n" {
						break
					}
				}
				fmt.Fprintf(conn, "250 accepted\r\n")
			case strings.HasPrefix(line, "QUIT"):
				fmt.Fprintf(conn, "421 closing early\r\n")
				return
			default:
				fmt.Fprintf(conn, "250 ok\r\n")
			}
		}
	}()
	return ln
}

func TestSendWrapsQuitFailure(t *testing.T) {
	ln := scriptedRelay(t)

	s, err := NewSMTPSender(ln.Addr().String(), "", "", "from@x.com", 2*time.Second)
	if err != nil {
		t.Fatalf("sender: %v", err)
	}

	err = s.Send(context.Background(), "to@y.com", "Your code", "<p>hi</p>")
	if err == nil {
		t.Fatal("expected an error from the failed QUIT")
	}
	if !errors.Is(err, ErrDispatchFailed) {
		t.Fatalf("every relay failure must wrap ErrDispatchFailed, got %v", err)
	}
}
