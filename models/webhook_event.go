package models

import "time"

// WebhookEvent is the append-only audit copy of an inbound gateway webhook.
// It is never read back for reconciliation decisions.
type WebhookEvent struct {
	ID             string    `bson:"_id" json:"id"`
	GatewayEventID string    `bson:"gateway_event_id" json:"gateway_event_id"`
	EventType      string    `bson:"event_type" json:"event_type"`
	Payload        string    `bson:"payload" json:"payload"`
	ReceivedAt     time.Time `bson:"received_at" json:"received_at"`
}
