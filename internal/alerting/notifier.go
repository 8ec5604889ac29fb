package alerting

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// Notifier delivers one plain-text message to one recipient.
type Notifier interface {
	Send(ctx context.Context, to, subject, body string) error
}

// DeliveryError reports that a message could not be handed to its transport.
type DeliveryError struct {
	Channel string
	To      string
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver %s message to %s: %v", e.Channel, e.To, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// LogNotifier writes messages to the logger instead of delivering them.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a log-only notifier.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "alert_log").Logger()}
}

// Send logs the message at info level.
func (n *LogNotifier) Send(_ context.Context, to, subject, body string) error {
	n.logger.Info().
		Str("to", to).
		Str("subject", subject).
		Str("body", body).
		Msg("alert notification")
	return nil
}

// MultiNotifier fans a message out to every configured notifier.
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a fan-out notifier.
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Send tries every notifier and joins their failures.
func (m *MultiNotifier) Send(ctx context.Context, to, subject, body string) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Send(ctx, to, subject, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ Notifier = (*LogNotifier)(nil)
	_ Notifier = (*MultiNotifier)(nil)
)
