package contributions

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/phillip/giftpots-go/apperr"
	"github.com/phillip/giftpots-go/gateway"
	"github.com/phillip/giftpots-go/metrics"
	"github.com/phillip/giftpots-go/models"
)

// CallbackPath is where the gateway redirects the donor's browser after a
// payment-link checkout.
const CallbackPath = "/api/razorpay/payment-link/callback"

type OrderResult struct {
	OrderID   string           `json:"order_id"`
	Amount    int64            `json:"amount"`
	Currency  string           `json:"currency"`
	KeyID     string           `json:"key_id"`
	SessionID string           `json:"session_id"`
	Prefill   gateway.Customer `json:"prefill"`
}

type PaymentLinkResult struct {
	URL       string `json:"payment_link_url"`
	LinkID    string `json:"payment_link_id"`
	SessionID string `json:"session_id"`
}

// ---------------- ORDER ----------------

func (s *Service) CreateOrder(ctx context.Context, sessionID string) (*OrderResult, error) {
	sess, err := s.payableSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	order, err := s.gateway.CreateOrder(ctx, gateway.OrderRequest{
		Amount:   sess.GrandTotal(),
		Currency: gateway.CurrencyINR,
		Notes: map[string]string{
			"session_id": sess.ID,
			"donor_name": sess.DonorName,
		},
	})
	if err != nil {
		metrics.GatewayErrors.WithLabelValues("create_order").Inc()
		return nil, asGatewayErr(err, "create order")
	}

	if err := s.markPending(ctx, sess.ID, order.ID); err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"session_id": sess.ID,
		"order_id":   order.ID,
		"amount":     sess.GrandTotal(),
	}).Info("gateway order created")

	return &OrderResult{
		OrderID:   order.ID,
		Amount:    sess.GrandTotal(),
		Currency:  gateway.CurrencyINR,
		KeyID:     s.opts.KeyID,
		SessionID: sess.ID,
		Prefill: gateway.Customer{
			Name:    sess.DonorName,
			Email:   sess.DonorEmail,
			Contact: sess.DonorPhone,
		},
	}, nil
}

// ---------------- PAYMENT LINK ----------------

// CreatePaymentLink opens a hosted checkout page. callbackBase overrides the
// configured application URL when non-empty.
func (s *Service) CreatePaymentLink(ctx context.Context, sessionID, callbackBase string) (*PaymentLinkResult, error) {
	sess, err := s.payableSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	base := strings.TrimRight(callbackBase, "/")
	if base == "" {
		base = strings.TrimRight(s.opts.AppURL, "/")
	}
	callback := fmt.Sprintf("%s%s?session_id=%s", base, CallbackPath, url.QueryEscape(sess.ID))

	link, err := s.gateway.CreatePaymentLink(ctx, gateway.PaymentLinkRequest{
		Amount:      sess.GrandTotal(),
		Currency:    gateway.CurrencyINR,
		Description: s.opts.LinkDescription,
		ReferenceID: sess.ID,
		Customer: gateway.Customer{
			Name:    sess.DonorName,
			Email:   sess.DonorEmail,
			Contact: sess.DonorPhone,
		},
		CallbackURL: callback,
		Notes:       map[string]string{"session_id": sess.ID},
	})
	if err != nil {
		metrics.GatewayErrors.WithLabelValues("create_payment_link").Inc()
		return nil, asGatewayErr(err, "create payment link")
	}

	orderRef := link.OrderID
	if orderRef == "" {
		orderRef = link.ID
	}
	if err := s.markPending(ctx, sess.ID, orderRef); err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"session_id": sess.ID,
		"link_id":    link.ID,
	}).Info("payment link created")

	return &PaymentLinkResult{URL: link.ShortURL, LinkID: link.ID, SessionID: sess.ID}, nil
}

// payableSession loads a session that may still be sent to the gateway and
// re-checks that its stored total matches its allocations.
func (s *Service) payableSession(ctx context.Context, sessionID string) (*models.ContributionSession, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, apperr.Validation("session_id is required")
	}
	sess, err := s.repo.Session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != models.StatusCreated {
		return nil, apperr.InvalidState(fmt.Sprintf("session is already %s", sess.Status), sess.Status)
	}

	allocs, err := s.repo.SessionAllocations(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	var sum int64
	for _, a := range allocs {
		sum += a.Amount
	}
	if len(allocs) == 0 || sum != sess.TotalAmount {
		log.WithFields(log.Fields{
			"session_id":  sessionID,
			"stored":      sess.TotalAmount,
			"allocations": sum,
		}).Error("session total does not match its allocations")
		return nil, apperr.Inconsistent("session total does not match its allocations")
	}
	return sess, nil
}

func (s *Service) markPending(ctx context.Context, sessionID, orderID string) error {
	applied, err := s.writeFinancialStatus(ctx, sessionID, statusWrite{
		Status: models.StatusPending,
		Fields: map[string]interface{}{"gateway_order_id": orderID},
		From:   []string{models.StatusCreated},
	})
	if err != nil {
		return err
	}
	if !applied {
		cur, err := s.repo.Session(ctx, sessionID)
		if err != nil {
			return err
		}
		return apperr.InvalidState(fmt.Sprintf("session is already %s", cur.Status), cur.Status)
	}
	return nil
}

func asGatewayErr(err error, msg string) error {
	if _, ok := apperr.As(err); ok {
		return err
	}
	return apperr.Gateway(err, msg)
}
