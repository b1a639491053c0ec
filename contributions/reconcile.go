package contributions

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/phillip/giftpots-go/apperr"
	"github.com/phillip/giftpots-go/gateway"
	"github.com/phillip/giftpots-go/metrics"
	"github.com/phillip/giftpots-go/models"
)

type Channel string

const (
	ChannelWebhook  Channel = "webhook"
	ChannelCallback Channel = "callback"
	ChannelUPI      Channel = "upi"
)

type Outcome string

const (
	OutcomeApplied          Outcome = "applied"
	OutcomeAlreadyProcessed Outcome = "already_processed"
	OutcomeAmountMismatch   Outcome = "amount_mismatch"
)

// Webhook results, all acknowledged with 200 so the gateway stops retrying.
const (
	WebhookOK               = "ok"
	WebhookAlreadyProcessed = "already_processed"
	WebhookAmountMismatch   = "amount_mismatch"
	WebhookIgnored          = "ignored"
)

// Evidence is what a confirmation channel knows about a payment.
type Evidence struct {
	Channel   Channel
	PaymentID string
	// Amount, when set, must equal the session's grand total.
	Amount *int64
	// Donor details supplied by the UPI blessing form.
	Donor          *Donor
	TransactionRef string
}

// applyPaidTransition moves a non-terminal session to paid exactly once.
// The returned session is the freshest read, after the write when applied.
func (s *Service) applyPaidTransition(ctx context.Context, sessionID string, ev Evidence) (Outcome, *models.ContributionSession, error) {
	var (
		outcome Outcome
		sess    *models.ContributionSession
	)
	err := s.repo.WithTransaction(ctx, func(ctx context.Context) error {
		cur, err := s.repo.Session(ctx, sessionID)
		if err != nil {
			return err
		}
		sess = cur
		if cur.Terminal() {
			outcome = OutcomeAlreadyProcessed
			return nil
		}
		if ev.Amount != nil && *ev.Amount != cur.GrandTotal() {
			outcome = OutcomeAmountMismatch
			return nil
		}

		now := s.now()
		fields := map[string]interface{}{"paid_at": now}
		if ev.PaymentID != "" {
			fields["gateway_payment_id"] = ev.PaymentID
		}
		if ev.Donor != nil {
			fields["donor_name"] = ev.Donor.Name
			fields["donor_phone"] = ev.Donor.Phone
			fields["donor_message"] = ev.Donor.Message
			fields["submitted_at"] = now
		}
		if ev.TransactionRef != "" {
			fields["transaction_ref"] = ev.TransactionRef
		}

		applied, err := s.writeFinancialStatus(ctx, sessionID, statusWrite{
			Status: models.StatusPaid,
			Fields: fields,
			From:   []string{models.StatusCreated, models.StatusPending},
		})
		if err != nil {
			return err
		}
		if !applied {
			outcome = OutcomeAlreadyProcessed
			return nil
		}
		outcome = OutcomeApplied
		sess, err = s.repo.Session(ctx, sessionID)
		return err
	})
	if err != nil {
		return "", nil, err
	}

	metrics.Reconciliations.WithLabelValues(string(ev.Channel), string(outcome)).Inc()
	entry := log.WithFields(log.Fields{
		"session_id": sessionID,
		"channel":    ev.Channel,
		"outcome":    outcome,
	})
	switch outcome {
	case OutcomeApplied:
		entry.Info("contribution marked paid")
		s.notifyPaid(ctx, sess)
	case OutcomeAmountMismatch:
		entry.WithFields(log.Fields{
			"expected": sess.GrandTotal(),
			"received": *ev.Amount,
		}).Warn("payment amount does not match session, leaving it untouched")
	default:
		entry.WithField("status", sess.Status).Info("session already settled")
	}
	return outcome, sess, nil
}

// ---------------- WEBHOOK ----------------

type webhookBody struct {
	ID      string `json:"id"`
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID      string `json:"id"`
				OrderID string `json:"order_id"`
				Amount  *int64 `json:"amount"`
			} `json:"entity"`
		} `json:"payment"`
		Order struct {
			Entity struct {
				ID         string `json:"id"`
				AmountPaid *int64 `json:"amount_paid"`
			} `json:"entity"`
		} `json:"order"`
	} `json:"payload"`
}

func paymentEvent(name string) bool {
	switch name {
	case "payment.captured", "order.paid", "event.captured":
		return true
	}
	return false
}

// HandleWebhook verifies and applies a gateway webhook. The raw body is
// stored for audit before any reconciliation decision.
func (s *Service) HandleWebhook(ctx context.Context, body []byte, signature, eventID string) (string, error) {
	if !gateway.VerifyWebhookSignature(body, signature, s.opts.WebhookSecret) {
		metrics.SignatureFailures.WithLabelValues(string(ChannelWebhook)).Inc()
		log.Warn("rejected webhook with invalid signature")
		return "", apperr.InvalidSignature()
	}

	var wh webhookBody
	if err := json.Unmarshal(body, &wh); err != nil {
		return "", apperr.Validation("malformed webhook payload")
	}
	metrics.WebhookEvents.WithLabelValues(wh.Event).Inc()

	if eventID == "" {
		eventID = wh.ID
	}
	if eventID == "" {
		eventID = uuid.NewString()
	}
	if err := s.repo.InsertWebhookEvent(ctx, &models.WebhookEvent{
		ID:             uuid.NewString(),
		GatewayEventID: eventID,
		EventType:      wh.Event,
		Payload:        string(body),
		ReceivedAt:     s.now(),
	}); err != nil {
		return "", err
	}

	if !paymentEvent(wh.Event) {
		return WebhookIgnored, nil
	}

	payment := wh.Payload.Payment.Entity
	orderID := payment.OrderID
	if orderID == "" {
		orderID = wh.Payload.Order.Entity.ID
	}
	if orderID == "" {
		log.WithField("event", wh.Event).Warn("webhook carries no order id")
		return WebhookIgnored, nil
	}

	sess, err := s.repo.SessionByOrderID(ctx, orderID)
	if err != nil {
		return "", err
	}
	if sess == nil {
		log.WithField("order_id", orderID).Warn("webhook for unknown order")
		return WebhookIgnored, nil
	}

	// A missing amount can never match a positive total.
	var amount int64
	switch {
	case payment.Amount != nil:
		amount = *payment.Amount
	case wh.Payload.Order.Entity.AmountPaid != nil:
		amount = *wh.Payload.Order.Entity.AmountPaid
	}

	outcome, _, err := s.applyPaidTransition(ctx, sess.ID, Evidence{
		Channel:   ChannelWebhook,
		PaymentID: payment.ID,
		Amount:    &amount,
	})
	if err != nil {
		return "", err
	}
	switch outcome {
	case OutcomeAlreadyProcessed:
		return WebhookAlreadyProcessed, nil
	case OutcomeAmountMismatch:
		return WebhookAmountMismatch, nil
	}
	return WebhookOK, nil
}

// ---------------- PAYMENT LINK CALLBACK ----------------

type CallbackResult struct {
	SessionID string
	DonorName string
	Success   bool
}

// HandleLinkCallback never fails: every problem becomes an unsuccessful
// result so the browser can still be redirected.
func (s *Service) HandleLinkCallback(ctx context.Context, sessionID string, cb gateway.LinkCallback, signature string) CallbackResult {
	// Only the reference id is covered by the signature. The session_id the
	// callback URL carries is a hint and must agree with it.
	if sessionID != "" && sessionID != cb.ReferenceID {
		metrics.SignatureFailures.WithLabelValues(string(ChannelCallback)).Inc()
		log.WithFields(log.Fields{
			"session_id":   sessionID,
			"reference_id": cb.ReferenceID,
			"link_id":      cb.LinkID,
		}).Warn("rejected payment link callback with mismatched session")
		return CallbackResult{SessionID: sessionID}
	}
	sessionID = cb.ReferenceID
	res := CallbackResult{SessionID: sessionID}
	entry := log.WithFields(log.Fields{"session_id": sessionID, "link_id": cb.LinkID})

	if sessionID != "" {
		if sess, err := s.repo.Session(ctx, sessionID); err == nil {
			res.DonorName = sess.DonorName
		}
	}

	if !gateway.VerifyLinkSignature(cb, signature, s.opts.KeySecret) {
		metrics.SignatureFailures.WithLabelValues(string(ChannelCallback)).Inc()
		entry.Warn("rejected payment link callback with invalid signature")
		return res
	}
	if cb.Status != "paid" || sessionID == "" {
		entry.WithField("link_status", cb.Status).Info("payment link not paid")
		return res
	}

	_, sess, err := s.applyPaidTransition(ctx, sessionID, Evidence{
		Channel:   ChannelCallback,
		PaymentID: cb.PaymentID,
	})
	if err != nil {
		entry.WithError(err).Error("failed to apply payment link callback")
		return res
	}
	res.DonorName = sess.DonorName
	res.Success = sess.Status == models.StatusPaid
	return res
}

// ---------------- UPI BLESSING ----------------

type BlessingRequest struct {
	SessionID      string `json:"session_id"`
	Name           string `json:"donor_name"`
	Phone          string `json:"donor_phone"`
	Message        string `json:"donor_message"`
	TransactionRef string `json:"utr"`
}

type BlessingResult struct {
	Status    string `json:"status"`
	SessionID string `json:"session_id"`
	DonorName string `json:"donor_name"`
}

// ConfirmBlessing records the donor's self-reported UPI transfer.
func (s *Service) ConfirmBlessing(ctx context.Context, req BlessingRequest) (*BlessingResult, error) {
	sessionID := strings.TrimSpace(req.SessionID)
	donor := Donor{
		Name:    html.EscapeString(strings.TrimSpace(req.Name)),
		Phone:   strings.TrimSpace(req.Phone),
		Message: html.EscapeString(strings.TrimSpace(req.Message)),
	}
	if sessionID == "" || donor.Name == "" || donor.Phone == "" || donor.Message == "" {
		return nil, apperr.Validation("session_id, name, phone, and blessing message are required")
	}

	outcome, sess, err := s.applyPaidTransition(ctx, sessionID, Evidence{
		Channel:        ChannelUPI,
		Donor:          &donor,
		TransactionRef: strings.TrimSpace(req.TransactionRef),
	})
	if err != nil {
		return nil, err
	}
	if outcome != OutcomeApplied {
		return nil, apperr.InvalidState(fmt.Sprintf("session already %s", sess.Status), sess.Status)
	}
	return &BlessingResult{Status: models.StatusPaid, SessionID: sessionID, DonorName: donor.Name}, nil
}
