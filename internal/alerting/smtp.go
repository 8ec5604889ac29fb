package alerting

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPOptions parameterise the SMTP notifier.
type SMTPOptions struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// SMTPNotifier sends plain-text email.
type SMTPNotifier struct {
	opts     SMTPOptions
	sendMail sendMailFunc
	now      func() time.Time
	logger   zerolog.Logger
}

// NewSMTPNotifier creates an SMTP notifier.
func NewSMTPNotifier(opts SMTPOptions, logger zerolog.Logger) *SMTPNotifier {
	if opts.Port == 0 {
		opts.Port = 587
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	return &SMTPNotifier{
		opts:     opts,
		sendMail: smtp.SendMail,
		now:      time.Now,
		logger:   logger.With().Str("component", "alert_smtp").Logger(),
	}
}

// Send delivers the message, giving up once ctx or the configured timeout expires.
func (n *SMTPNotifier) Send(ctx context.Context, to, subject, body string) error {
	if strings.TrimSpace(to) == "" {
		return &DeliveryError{Channel: "smtp", To: to, Err: errors.New("empty recipient")}
	}
	if n.opts.Host == "" || n.opts.From == "" {
		return &DeliveryError{Channel: "smtp", To: to, Err: errors.New("smtp host and from address are required")}
	}

	var auth smtp.Auth
	if n.opts.Username != "" {
		auth = smtp.PlainAuth("", n.opts.Username, n.opts.Password, n.opts.Host)
	}
	addr := net.JoinHostPort(n.opts.Host, strconv.Itoa(n.opts.Port))
	msg := n.buildMessage(to, subject, body)

	ctx, cancel := context.WithTimeout(ctx, n.opts.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- n.sendMail(addr, auth, n.opts.From, []string{to}, msg)
	}()

	select {
	case err := <-done:
		if err != nil {
			return &DeliveryError{Channel: "smtp", To: to, Err: err}
		}
	case <-ctx.Done():
		return &DeliveryError{Channel: "smtp", To: to, Err: ctx.Err()}
	}

	n.logger.Info().Str("to", to).Str("subject", subject).Msg("email sent")
	return nil
}

func (n *SMTPNotifier) buildMessage(to, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", n.opts.From)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Date: %s\r\n", n.now().UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

var _ Notifier = (*SMTPNotifier)(nil)
