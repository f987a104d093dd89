// Package nats provides NATS message broker integration for the EDI service.
package nats

import (
	"time"

	"github.com/telhawk-systems/edi-stack/edi/internal/models"
)

// IncomingAcceptedEvent is published to edi.incoming.accepted when an
// incoming document passed validation. Business processing consumes it.
type IncomingAcceptedEvent struct {
	MessageID      string                  `json:"message_id"`
	DocumentType   models.DocumentType     `json:"document_type"`
	SenderNumber   string                  `json:"sender_number"`
	SenderRole     string                  `json:"sender_role"`
	BusinessReason string                  `json:"business_reason"`
	CreatedAt      time.Time               `json:"created_at"`
	ReceivedAt     time.Time               `json:"received_at"`
	Message        *models.IncomingMessage `json:"message"`
}

// IncomingRejectedEvent is published to edi.incoming.rejected.
type IncomingRejectedEvent struct {
	MessageID    string                   `json:"message_id"`
	DocumentType models.DocumentType      `json:"document_type"`
	SenderNumber string                   `json:"sender_number"`
	Errors       []models.ValidationError `json:"errors"`
	RejectedAt   time.Time                `json:"rejected_at"`
}

// BundleCreatedEvent is published per receiver to
// edi.bundles.created.<actor number> so actors can be notified that a
// document is waiting.
type BundleCreatedEvent struct {
	BundleID       string                `json:"bundle_id"`
	MessageID      string                `json:"message_id"`
	Receiver       models.Actor          `json:"receiver"`
	DocumentType   models.DocumentType   `json:"document_type"`
	Category       models.Category       `json:"category"`
	BusinessReason models.BusinessReason `json:"business_reason"`
	MessageCount   int                   `json:"message_count"`
	CreatedAt      time.Time             `json:"created_at"`
}

// BundleDequeuedEvent is published to edi.bundles.dequeued.
type BundleDequeuedEvent struct {
	BundleID   string       `json:"bundle_id"`
	MessageID  string       `json:"message_id"`
	Receiver   models.Actor `json:"receiver"`
	DequeuedAt time.Time    `json:"dequeued_at"`
}

// BundlingRequest is received on edi.bundling.run to trigger a bundler run
// outside the schedule.
type BundlingRequest struct {
	RequestedBy string `json:"requested_by,omitempty"`
}

// BundlingResponse is the reply to a BundlingRequest.
type BundlingResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Report  any    `json:"report,omitempty"`
	TookMs  int64  `json:"took_ms"`
}

// EnqueueResponse is the reply to an edi.outgoing.enqueue request.
type EnqueueResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
}
