package notify

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/jordan-wright/email"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/cobranca-service/internal/config"
	"github.com/Dan9191/cobranca-service/internal/models"
)

// Sender handles sending reminder emails via SMTP
type Sender struct {
	cfg    *config.Config
	logger *logrus.Logger
	send   func(e *email.Email) error
}

// NewSender creates a new email sender
func NewSender(cfg *config.Config, logger *logrus.Logger) *Sender {
	s := &Sender{
		cfg:    cfg,
		logger: logger,
	}
	s.send = s.sendSMTP
	return s
}

// Notify emails the reminder to the client address of the charge
func (s *Sender) Notify(_ context.Context, r models.Reminder) error {
	if r.ClientEmail == "" {
		return ErrNoDestination
	}

	e := s.message(r)
	if err := s.send(e); err != nil {
		s.logger.Errorf("Failed to send email to %s: %v", r.ClientEmail, err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Infof("Email sent to %s: %s", r.ClientEmail, e.Subject)
	return nil
}

func (s *Sender) message(r models.Reminder) *email.Email {
	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = []string{r.ClientEmail}
	if r.Kind == models.ReminderOverdue {
		e.Subject = "Overdue Payment Notification"
	} else {
		e.Subject = "Upcoming Payment Reminder"
	}

	body := fmt.Sprintf("Dear %s,\n\n", r.ClientName)
	if r.Kind == models.ReminderOverdue {
		body += fmt.Sprintf(
			"Installment %d of %s was due on %s and is now %d day(s) overdue.\n"+
				"Please make the payment as soon as possible.\n",
			r.Number, r.Amount.StringFixed(2), r.DueDate.Format("2006-01-02"), -r.OffsetDays,
		)
	} else {
		body += fmt.Sprintf(
			"This is a reminder that installment %d of %s is due on %s.\n",
			r.Number, r.Amount.StringFixed(2), r.DueDate.Format("2006-01-02"),
		)
	}
	body += "\n" + r.Message + "\n\nBest regards"
	e.Text = []byte(body)
	return e
}

func (s *Sender) sendSMTP(e *email.Email) error {
	addr := fmt.Sprintf("%s:%s", s.cfg.SMTPHost, s.cfg.SMTPPort)
	var auth smtp.Auth
	if s.cfg.SMTPUsername != "" {
		auth = smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	}
	return e.Send(addr, auth)
}
