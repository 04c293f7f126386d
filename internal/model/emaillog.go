package model

import "time"

// DeliveryStatus tracks an email log row. The only permitted transition is
// pending → sent or pending → failed; rows are never otherwise mutated.
type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
)

// EmailLog is an append-only record of one outreach email.
type EmailLog struct {
	ID                  string         `json:"id"`
	BuildingIdentityKey string         `json:"building_identity_key"`
	Subject             string         `json:"subject"`
	Body                string         `json:"body"`
	SentAt              time.Time      `json:"sent_at"`
	DeliveryStatus      DeliveryStatus `json:"delivery_status"`
	// ThreadID is the opaque transport thread identifier used to correlate
	// inbound replies during the reconciliation sweep.
	ThreadID string `json:"thread_id,omitempty"`
	Replied  bool   `json:"replied"`
}
