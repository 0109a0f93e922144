package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/cobranca-service/internal/config"
	"github.com/Dan9191/cobranca-service/internal/models"
)

// TwilioClient sends WhatsApp reminders through the Twilio Messages API.
// The XML flavour of the API is used; responses are parsed with etree.
type TwilioClient struct {
	baseURL    string
	accountSID string
	authToken  string
	from       string
	client     *http.Client
	log        *logrus.Logger
}

// NewTwilioClient initializes a new Twilio client
func NewTwilioClient(cfg *config.Config, log *logrus.Logger) *TwilioClient {
	return &TwilioClient{
		baseURL:    strings.TrimRight(cfg.TwilioBaseURL, "/"),
		accountSID: cfg.TwilioAccountSID,
		authToken:  cfg.TwilioAuthToken,
		from:       cfg.TwilioWhatsAppFrom,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		log: log,
	}
}

// Notify sends the reminder text to the client phone of the charge
func (c *TwilioClient) Notify(ctx context.Context, r models.Reminder) error {
	if r.ClientPhone == "" {
		return ErrNoDestination
	}

	body, status, err := c.sendRequest(ctx, r.ClientPhone, r.Message)
	if err != nil {
		return err
	}

	sid, err := c.parseXMLResponse(body, status)
	if err != nil {
		return err
	}

	c.log.WithFields(logrus.Fields{
		"installment_id": r.InstallmentID,
		"message_sid":    sid,
	}).Infof("WhatsApp reminder queued for %s", r.ClientPhone)
	return nil
}

// sendRequest posts a message to Twilio and returns the raw XML body
func (c *TwilioClient) sendRequest(ctx context.Context, to, text string) ([]byte, int, error) {
	form := url.Values{}
	form.Set("From", c.from)
	form.Set("To", "whatsapp:"+to)
	form.Set("Body", text)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages", c.baseURL, c.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/xml")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}

	c.log.Debugf("Twilio XML response: %s", string(body))
	return body, resp.StatusCode, nil
}

// parseXMLResponse extracts the message SID, or the RestException details on failure
func (c *TwilioClient) parseXMLResponse(rawBody []byte, status int) (string, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(rawBody); err != nil {
		if status >= 300 {
			return "", fmt.Errorf("unexpected status code: %d", status)
		}
		return "", fmt.Errorf("failed to parse XML: %w", err)
	}

	if exc := doc.FindElement("//RestException"); exc != nil || status >= 300 {
		code, msg := "", ""
		if exc != nil {
			if el := exc.FindElement("./Code"); el != nil {
				code = el.Text()
			}
			if el := exc.FindElement("./Message"); el != nil {
				msg = el.Text()
			}
		}
		return "", fmt.Errorf("twilio rejected message (status %d, code %s): %s", status, code, msg)
	}

	sid := doc.FindElement("//Message/Sid")
	if sid == nil || sid.Text() == "" {
		return "", fmt.Errorf("message sid not found in XML")
	}
	return sid.Text(), nil
}
