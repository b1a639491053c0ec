// Package gateway talks to the card/UPI payment gateway (Razorpay): it mints
// orders and redirect payment links, and verifies webhook and callback
// signatures.
package gateway

import "context"

const CurrencyINR = "INR"

type Customer struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Contact string `json:"contact,omitempty"`
}

type OrderRequest struct {
	Amount   int64
	Currency string
	Notes    map[string]string
}

type Order struct {
	ID       string
	Amount   int64
	Currency string
}

type PaymentLinkRequest struct {
	Amount      int64
	Currency    string
	Description string
	ReferenceID string
	Customer    Customer
	CallbackURL string
	Notes       map[string]string
}

type PaymentLink struct {
	ID       string
	ShortURL string
	// OrderID is set once the gateway has attached an order to the link.
	OrderID string
}

// Gateway failures come back as *apperr.Error with KindGateway.
type Gateway interface {
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)
	CreatePaymentLink(ctx context.Context, req PaymentLinkRequest) (*PaymentLink, error)
}
