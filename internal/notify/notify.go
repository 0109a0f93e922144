// Package notify delivers payment reminders to client contact channels.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Dan9191/cobranca-service/internal/config"
	"github.com/Dan9191/cobranca-service/internal/models"
)

// ErrNoDestination is returned when a reminder has no address for a channel
var ErrNoDestination = errors.New("no destination for channel")

// Notifier sends one reminder
type Notifier interface {
	Notify(ctx context.Context, r models.Reminder) error
}

// Channel is a named notifier
type Channel struct {
	Name     string
	Notifier Notifier
}

// Multi fans a reminder out to every channel
type Multi struct {
	channels []Channel
	closers  []func() error
	log      *logrus.Logger
}

// NewMulti combines channels into one notifier
func NewMulti(log *logrus.Logger, channels ...Channel) *Multi {
	return &Multi{channels: channels, log: log}
}

// Notify sends on every channel. Channels without a destination are skipped;
// when no channel could take the reminder ErrNoDestination is returned.
func (m *Multi) Notify(ctx context.Context, r models.Reminder) error {
	var (
		errs      []error
		delivered int
	)
	for _, ch := range m.channels {
		err := ch.Notifier.Notify(ctx, r)
		switch {
		case err == nil:
			delivered++
		case errors.Is(err, ErrNoDestination):
			m.log.WithFields(logrus.Fields{
				"channel":        ch.Name,
				"installment_id": r.InstallmentID,
			}).Debug("No destination, channel skipped")
		default:
			errs = append(errs, fmt.Errorf("%s: %w", ch.Name, err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	if delivered == 0 {
		return ErrNoDestination
	}
	return nil
}

// Close releases channel resources such as broker connections
func (m *Multi) Close() error {
	var errs []error
	for _, c := range m.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FromConfig builds the channels listed in NOTIFY_CHANNELS
func FromConfig(cfg *config.Config, log *logrus.Logger) (*Multi, error) {
	m := NewMulti(log)
	for _, name := range cfg.NotifyChannels {
		switch name {
		case "log":
			m.channels = append(m.channels, Channel{Name: name, Notifier: NewLogNotifier(log)})
		case "email":
			m.channels = append(m.channels, Channel{Name: name, Notifier: NewSender(cfg, log)})
		case "whatsapp":
			m.channels = append(m.channels, Channel{Name: name, Notifier: NewTwilioClient(cfg, log)})
		case "amqp":
			pub, err := NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, log)
			if err != nil {
				m.Close()
				return nil, fmt.Errorf("failed to start amqp channel: %w", err)
			}
			m.channels = append(m.channels, Channel{Name: name, Notifier: pub})
			m.closers = append(m.closers, pub.Close)
		default:
			m.Close()
			return nil, fmt.Errorf("unknown notification channel %q", name)
		}
	}
	if len(m.channels) == 0 {
		return nil, fmt.Errorf("no notification channel configured")
	}
	return m, nil
}

// LogNotifier writes reminders to the application log
type LogNotifier struct {
	log *logrus.Logger
}

// NewLogNotifier creates a log-only notifier
func NewLogNotifier(log *logrus.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

// Notify logs the reminder
func (n *LogNotifier) Notify(_ context.Context, r models.Reminder) error {
	n.log.WithFields(logrus.Fields{
		"installment_id": r.InstallmentID,
		"charge_id":      r.ChargeID,
		"client":         r.ClientName,
		"phone":          r.ClientPhone,
		"kind":           r.Kind,
		"offset_days":    r.OffsetDays,
	}).Info(r.Message)
	return nil
}
