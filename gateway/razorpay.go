package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	razorpay "github.com/razorpay/razorpay-go"
	log "github.com/sirupsen/logrus"

	"github.com/phillip/giftpots-go/apperr"
)

type RazorpayConfig struct {
	KeyID     string
	KeySecret string
	// BaseURL overrides the API host. Empty keeps the SDK default.
	BaseURL   string
	Timeout   time.Duration
}

// Razorpay adapts the official SDK client to Gateway.
type Razorpay struct {
	client *razorpay.Client
}

func NewRazorpay(cfg RazorpayConfig) *Razorpay {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	client := razorpay.NewClient(cfg.KeyID, cfg.KeySecret)
	if cfg.BaseURL != "" {
		client.Request.BaseURL = strings.TrimSuffix(strings.TrimRight(cfg.BaseURL, "/"), "/v1")
	}
	client.Request.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	return &Razorpay{client: client}
}

func (r *Razorpay) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	data := map[string]interface{}{
		"amount":          req.Amount,
		"currency":        req.Currency,
		"payment_capture": 1,
	}
	if len(req.Notes) > 0 {
		data["notes"] = req.Notes
	}

	body, err := call(ctx, "create order", func() (map[string]interface{}, error) {
		return r.client.Order.Create(data, nil)
	})
	if err != nil {
		return nil, err
	}

	order := &Order{
		ID:       stringField(body, "id"),
		Amount:   intField(body, "amount"),
		Currency: stringField(body, "currency"),
	}
	if order.ID == "" {
		return nil, apperr.Gateway(errors.New("empty order id"), "create order")
	}
	return order, nil
}

func (r *Razorpay) CreatePaymentLink(ctx context.Context, req PaymentLinkRequest) (*PaymentLink, error) {
	data := map[string]interface{}{
		"amount":          req.Amount,
		"currency":        req.Currency,
		"reference_id":    req.ReferenceID,
		"customer":        req.Customer,
		"callback_url":    req.CallbackURL,
		"callback_method": "get",
	}
	if req.Description != "" {
		data["description"] = req.Description
	}
	if len(req.Notes) > 0 {
		data["notes"] = req.Notes
	}

	body, err := call(ctx, "create payment link", func() (map[string]interface{}, error) {
		return r.client.PaymentLink.Create(data, nil)
	})
	if err != nil {
		return nil, err
	}

	link := &PaymentLink{
		ID:       stringField(body, "id"),
		ShortURL: stringField(body, "short_url"),
		OrderID:  stringField(body, "order_id"),
	}
	if link.ID == "" || link.ShortURL == "" {
		return nil, apperr.Gateway(errors.New("incomplete payment link response"), "create payment link")
	}
	return link, nil
}

type callResult struct {
	body map[string]interface{}
	err  error
}

// call runs a blocking SDK request, giving up when ctx ends. The HTTP
// client timeout still bounds the abandoned request.
func call(ctx context.Context, op string, fn func() (map[string]interface{}, error)) (map[string]interface{}, error) {
	done := make(chan callResult, 1)
	go func() {
		body, err := fn()
		done <- callResult{body: body, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, apperr.Gateway(ctx.Err(), op)
	case res := <-done:
		if res.err != nil {
			log.WithError(res.err).WithField("operation", op).Warn("razorpay returned an error")
			return nil, apperr.Gateway(res.err, op)
		}
		return res.body, nil
	}
}

func stringField(body map[string]interface{}, key string) string {
	s, _ := body[key].(string)
	return s
}

// intField reads a JSON number, which the SDK decodes as float64.
func intField(body map[string]interface{}, key string) int64 {
	switch v := body[key].(type) {
	case float64:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}
