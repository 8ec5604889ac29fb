package alerting

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"
)

func TestSMTPNotifierBuildsMessage(t *testing.T) {
	n := NewSMTPNotifier(SMTPOptions{Host: "mail.example.com", Port: 2525, Username: "user", Password: "pw", From: "alerts@example.com"}, testLogger())
	n.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
		gotAuth smtp.Auth
	)
	n.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg, gotAuth = addr, to, string(msg), a
		return nil
	}

	if err := n.Send(context.Background(), "user@example.com", "Price Alert Triggered: ethereum", "body text"); err != nil {
		t.Fatalf("send should succeed: %v", err)
	}
	if gotAddr != "mail.example.com:2525" {
		t.Fatalf("unexpected addr %s", gotAddr)
	}
	if len(gotTo) != 1 || gotTo[0] != "user@example.com" {
		t.Fatalf("unexpected recipients %v", gotTo)
	}
	if gotAuth == nil {
		t.Fatal("credentials should enable PLAIN auth")
	}
	for _, want := range []string{
		"From: alerts@example.com\r\n",
		"To: user@example.com\r\n",
		"Subject: Price Alert Triggered: ethereum\r\n",
		"Content-Type: text/plain; charset=UTF-8\r\n",
		"\r\n\r\nbody text",
	} {
		if !strings.Contains(gotMsg, want) {
			t.Fatalf("message missing %q:\n%s", want, gotMsg)
		}
	}
}

func TestSMTPNotifierTransportFailure(t *testing.T) {
	n := NewSMTPNotifier(SMTPOptions{Host: "mail.example.com", From: "alerts@example.com"}, testLogger())
	boom := errors.New("connection refused")
	n.sendMail = func(string, smtp.Auth, string, []string, []byte) error { return boom }

	err := n.Send(context.Background(), "user@example.com", "s", "b")
	var de *DeliveryError
	if !errors.As(err, &de) {
		t.Fatalf("expected *DeliveryError, got %v", err)
	}
	if de.To != "user@example.com" || !errors.Is(err, boom) {
		t.Fatalf("unexpected delivery error %+v", de)
	}
}

func TestSMTPNotifierTimeout(t *testing.T) {
	n := NewSMTPNotifier(SMTPOptions{Host: "mail.example.com", From: "alerts@example.com", Timeout: 20 * time.Millisecond}, testLogger())
	release := make(chan struct{})
	defer close(release)
	n.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		<-release
		return nil
	}

	err := n.Send(context.Background(), "user@example.com", "s", "b")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("hung transport should time out, got %v", err)
	}
}

func TestSMTPNotifierRejectsMissingConfig(t *testing.T) {
	n := NewSMTPNotifier(SMTPOptions{}, testLogger())
	if err := n.Send(context.Background(), "user@example.com", "s", "b"); err == nil {
		t.Fatal("missing host should fail")
	}
	n = NewSMTPNotifier(SMTPOptions{Host: "h", From: "f@example.com"}, testLogger())
	if err := n.Send(context.Background(), " ", "s", "b"); err == nil {
		t.Fatal("empty recipient should fail")
	}
}
