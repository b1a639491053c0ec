package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/phillip/giftpots-go/models"
)

// email request payload for ZeptoMail API
type emailRequest struct {
	From     emailAddress  `json:"from"`
	To       []toRecipient `json:"to"`
	Subject  string        `json:"subject"`
	HtmlBody string        `json:"htmlbody"`
}

type emailAddress struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

type toRecipient struct {
	Email emailAddress `json:"email_address"`
}

// Mailer sends HTML email through the ZeptoMail HTTP API.
type Mailer struct {
	apiURL   string
	apiKey   string
	from     string
	fromName string
	client   *http.Client
}

func NewMailer(apiURL, apiKey, from, fromName string) *Mailer {
	return &Mailer{
		apiURL:   apiURL,
		apiKey:   apiKey,
		from:     from,
		fromName: fromName,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (m *Mailer) Send(ctx context.Context, to, toName, subject, body string) error {
	payload := emailRequest{
		From:     emailAddress{Address: m.from, Name: m.fromName},
		To:       []toRecipient{{Email: emailAddress{Address: to, Name: toName}}},
		Subject:  subject,
		HtmlBody: body,
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "marshal email payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.apiURL, bytes.NewReader(jsonData))
	if err != nil {
		return errors.Wrap(err, "build email request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", m.apiKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "send email")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return errors.Errorf("zeptomail API error: %s", resp.Status)
	}
	log.WithField("to", to).Debug("email sent")
	return nil
}

// ContributionPaid emails the donor a thank-you receipt. Sessions without an
// email address (manual UPI) are skipped.
func (m *Mailer) ContributionPaid(ctx context.Context, s *models.ContributionSession) error {
	if strings.TrimSpace(s.DonorEmail) == "" {
		return nil
	}
	name := s.DonorName
	if name == "" {
		name = "friend"
	}
	// donor_name is stored HTML-escaped already
	body := fmt.Sprintf(
		`<p>Dear %s,</p><p>Thank you for your gift of <strong>%s</strong>. It has been received with love.</p><p>Reference: %s</p>`,
		name, FormatRupees(s.GrandTotal()), s.ID,
	)
	return m.Send(ctx, s.DonorEmail, name, "Thank you for your wedding gift", body)
}

// FormatRupees renders paise as ₹1,234.50.
func FormatRupees(paise int64) string {
	neg := paise < 0
	if neg {
		paise = -paise
	}
	rupees := fmt.Sprintf("%d", paise/100)
	var b strings.Builder
	for i, r := range rupees {
		if i > 0 && (len(rupees)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := fmt.Sprintf("₹%s.%02d", b.String(), paise%100)
	if neg {
		out = "-" + out
	}
	return out
}
