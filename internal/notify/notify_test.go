package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jordan-wright/email"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dan9191/cobranca-service/internal/config"
	"github.com/Dan9191/cobranca-service/internal/models"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func sampleReminder(kind models.ReminderKind, offset int) models.Reminder {
	return models.Reminder{
		InstallmentID: 7,
		ChargeID:      3,
		Number:        2,
		ClientName:    "Maria",
		ClientEmail:   "maria@example.com",
		ClientPhone:   "+5511988887777",
		Amount:        decimal.RequireFromString("100"),
		DueDate:       time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
		Kind:          kind,
		OffsetDays:    offset,
		Message:       "reminder text",
	}
}

type notifierFunc func(ctx context.Context, r models.Reminder) error

func (f notifierFunc) Notify(ctx context.Context, r models.Reminder) error { return f(ctx, r) }

func TestMulti_FansOutAndJoinsErrors(t *testing.T) {
	var calls []string
	ok := notifierFunc(func(context.Context, models.Reminder) error { calls = append(calls, "ok"); return nil })
	skip := notifierFunc(func(context.Context, models.Reminder) error { calls = append(calls, "skip"); return ErrNoDestination })
	fail := notifierFunc(func(context.Context, models.Reminder) error { calls = append(calls, "fail"); return errors.New("smtp down") })

	m := NewMulti(quietLogger(), Channel{"a", ok}, Channel{"b", skip}, Channel{"c", fail})
	err := m.Notify(context.Background(), sampleReminder(models.ReminderUpcoming, 2))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "c: smtp down")
	assert.Equal(t, []string{"ok", "skip", "fail"}, calls, "a failing channel must not stop the others")

	m = NewMulti(quietLogger(), Channel{"a", ok}, Channel{"b", skip})
	assert.NoError(t, m.Notify(context.Background(), sampleReminder(models.ReminderUpcoming, 2)))

	m = NewMulti(quietLogger(), Channel{"b", skip})
	assert.ErrorIs(t, m.Notify(context.Background(), sampleReminder(models.ReminderUpcoming, 2)), ErrNoDestination)
}

func TestFromConfig(t *testing.T) {
	m, err := FromConfig(&config.Config{NotifyChannels: []string{"log", "email"}}, quietLogger())
	require.NoError(t, err)
	assert.Len(t, m.channels, 2)
	assert.NoError(t, m.Close())

	_, err = FromConfig(&config.Config{NotifyChannels: []string{"fax"}}, quietLogger())
	assert.Error(t, err)
	_, err = FromConfig(&config.Config{}, quietLogger())
	assert.Error(t, err)
}

func TestSender_Message(t *testing.T) {
	s := NewSender(&config.Config{SenderEmail: "cobranca@example.com"}, quietLogger())
	var sent *email.Email
	s.send = func(e *email.Email) error { sent = e; return nil }

	require.NoError(t, s.Notify(context.Background(), sampleReminder(models.ReminderOverdue, -9)))
	require.NotNil(t, sent)
	assert.Equal(t, []string{"maria@example.com"}, sent.To)
	assert.Equal(t, "cobranca@example.com", sent.From)
	assert.Equal(t, "Overdue Payment Notification", sent.Subject)
	assert.Contains(t, string(sent.Text), "9 day(s) overdue")

	require.NoError(t, s.Notify(context.Background(), sampleReminder(models.ReminderUpcoming, 2)))
	assert.Equal(t, "Upcoming Payment Reminder", sent.Subject)
	assert.Contains(t, string(sent.Text), "due on 2024-01-31")

	r := sampleReminder(models.ReminderUpcoming, 2)
	r.ClientEmail = ""
	assert.ErrorIs(t, s.Notify(context.Background(), r), ErrNoDestination)

	s.send = func(*email.Email) error { return errors.New("connection refused") }
	assert.Error(t, s.Notify(context.Background(), sampleReminder(models.ReminderUpcoming, 2)))
}

func newTwilioTestClient(t *testing.T, handler http.HandlerFunc) *TwilioClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewTwilioClient(&config.Config{
		TwilioBaseURL:      srv.URL,
		TwilioAccountSID:   "AC123",
		TwilioAuthToken:    "token",
		TwilioWhatsAppFrom: "whatsapp:+14155238886",
	}, quietLogger())
}

func TestTwilioClient_Sends(t *testing.T) {
	c := newTwilioTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2010-04-01/Accounts/AC123/Messages", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "AC123", user)
		assert.Equal(t, "token", pass)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "whatsapp:+5511988887777", r.PostForm.Get("To"))
		assert.Equal(t, "whatsapp:+14155238886", r.PostForm.Get("From"))
		assert.Equal(t, "reminder text", r.PostForm.Get("Body"))

		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `<?xml version='1.0' encoding='UTF-8'?>
<TwilioResponse><Message><Sid>SM0001</Sid><Status>queued</Status></Message></TwilioResponse>`)
	})

	assert.NoError(t, c.Notify(context.Background(), sampleReminder(models.ReminderUpcoming, 2)))
}

func TestTwilioClient_RestException(t *testing.T) {
	c := newTwilioTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `<?xml version='1.0' encoding='UTF-8'?>
<TwilioResponse><RestException><Code>21211</Code><Message>The 'To' number is not a valid phone number.</Message><Status>400</Status></RestException></TwilioResponse>`)
	})

	err := c.Notify(context.Background(), sampleReminder(models.ReminderUpcoming, 2))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "21211")
	assert.Contains(t, err.Error(), "not a valid phone number")
}

func TestTwilioClient_BadResponses(t *testing.T) {
	c := newTwilioTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, "upstream failure")
	})
	err := c.Notify(context.Background(), sampleReminder(models.ReminderUpcoming, 2))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")

	c = newTwilioTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<TwilioResponse><Message><Status>queued</Status></Message></TwilioResponse>`)
	})
	err = c.Notify(context.Background(), sampleReminder(models.ReminderUpcoming, 2))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "sid not found"))

	r := sampleReminder(models.ReminderUpcoming, 2)
	r.ClientPhone = ""
	assert.ErrorIs(t, c.Notify(context.Background(), r), ErrNoDestination)
}

func TestEncodeReminder(t *testing.T) {
	now := time.Date(2024, 1, 29, 9, 0, 0, 0, time.UTC)
	body, err := encodeReminder(sampleReminder(models.ReminderOverdue, -9), now)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, "overdue", decoded["kind"])
	assert.Equal(t, float64(-9), decoded["offset_days"])
	assert.Equal(t, "+5511988887777", decoded["client_phone"])
	assert.Equal(t, "2024-01-29T09:00:00Z", decoded["timestamp"])
}
