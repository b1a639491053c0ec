package models

import "time"

// Session statuses. paid and failed are terminal.
const (
	StatusCreated = "created"
	StatusPending = "pending"
	StatusPaid    = "paid"
	StatusFailed  = "failed"
)

const (
	MethodGateway = "gateway"
	MethodUPI     = "upi"
)

// ContributionSession is one donor checkout attempt. TotalAmount always equals
// the sum of its allocations; FeeAmount is the optional gateway surcharge.
type ContributionSession struct {
	ID               string     `bson:"_id" json:"id"`
	DonorName        string     `bson:"donor_name" json:"donor_name"`
	DonorEmail       string     `bson:"donor_email" json:"donor_email"`
	DonorPhone       string     `bson:"donor_phone" json:"donor_phone"`
	DonorMessage     string     `bson:"donor_message" json:"donor_message"`
	TotalAmount      int64      `bson:"total_amount" json:"total_amount"`
	FeeAmount        int64      `bson:"fee_amount" json:"fee_amount"`
	Status           string     `bson:"status" json:"status"` // created, pending, paid, failed
	PaymentMethod    string     `bson:"payment_method" json:"payment_method"`
	GatewayOrderID   string     `bson:"gateway_order_id,omitempty" json:"gateway_order_id,omitempty"`
	GatewayPaymentID string     `bson:"gateway_payment_id,omitempty" json:"gateway_payment_id,omitempty"`
	TransactionRef   string     `bson:"transaction_ref,omitempty" json:"transaction_ref,omitempty"` // UPI UTR
	CreatedAt        time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `bson:"updated_at" json:"updated_at"`
	SubmittedAt      *time.Time `bson:"submitted_at,omitempty" json:"submitted_at,omitempty"`
	PaidAt           *time.Time `bson:"paid_at,omitempty" json:"paid_at,omitempty"`

	// Enriched fields
	Allocations []Allocation `bson:"-" json:"allocations,omitempty"`
}

func (s *ContributionSession) GrandTotal() int64 {
	return s.TotalAmount + s.FeeAmount
}

func (s *ContributionSession) Terminal() bool {
	return s.Status == StatusPaid || s.Status == StatusFailed
}

// Allocation pledges part of a session to one pot. Status mirrors the parent
// session's financial state and is only ever written together with it.
type Allocation struct {
	ID        string    `bson:"_id" json:"id"`
	SessionID string    `bson:"session_id" json:"session_id"`
	PotID     string    `bson:"pot_id" json:"pot_id"`
	PotItemID string    `bson:"pot_item_id,omitempty" json:"pot_item_id,omitempty"`
	Amount    int64     `bson:"amount" json:"amount"`
	Status    string    `bson:"status" json:"status"` // pending, paid, failed
	Position  int       `bson:"position" json:"position"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`

	// Enriched fields
	PotTitle string `bson:"-" json:"pot_title,omitempty"`
}
