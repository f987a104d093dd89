package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/telhawk-systems/edi-stack/common/messaging"
	"github.com/telhawk-systems/edi-stack/edi/internal/models"
	"github.com/telhawk-systems/edi-stack/edi/internal/validation"
)

// Publisher publishes EDI events to NATS subjects.
type Publisher struct {
	client messaging.Publisher
	now    func() time.Time
}

// NewPublisher creates a new NATS publisher.
func NewPublisher(client messaging.Publisher) *Publisher {
	return &Publisher{client: client, now: time.Now}
}

// IncomingAccepted publishes an accepted incoming message.
func (p *Publisher) IncomingAccepted(ctx context.Context, msg *models.IncomingMessage) error {
	event := &IncomingAcceptedEvent{
		MessageID:      msg.MessageID,
		DocumentType:   msg.DocumentType,
		SenderNumber:   msg.SenderNumber,
		SenderRole:     msg.SenderRoleCode,
		BusinessReason: msg.BusinessReason,
		CreatedAt:      msg.CreatedAt,
		ReceivedAt:     p.now().UTC(),
		Message:        msg,
	}
	return p.publish(ctx, messaging.SubjectIncomingAccepted, msg.SenderNumber, "incoming.accepted", event)
}

// IncomingRejected publishes the validation errors of a rejected message.
func (p *Publisher) IncomingRejected(ctx context.Context, msg *models.IncomingMessage, result *validation.Result) error {
	event := &IncomingRejectedEvent{
		MessageID:    msg.MessageID,
		DocumentType: msg.DocumentType,
		SenderNumber: msg.SenderNumber,
		Errors:       result.Errors,
		RejectedAt:   p.now().UTC(),
	}
	return p.publish(ctx, messaging.SubjectIncomingRejected, msg.SenderNumber, "incoming.rejected", event)
}

// BundlesCreated publishes one event per bundle on the receiver's subject.
// Publishing stops at the first failure.
func (p *Publisher) BundlesCreated(ctx context.Context, bundles []*models.Bundle) error {
	for _, b := range bundles {
		event := &BundleCreatedEvent{
			BundleID:       b.ID.String(),
			MessageID:      b.MessageID,
			Receiver:       b.Receiver,
			DocumentType:   b.DocumentType,
			Category:       b.Category(),
			BusinessReason: b.BusinessReason,
			MessageCount:   len(b.MessageIDs),
			CreatedAt:      b.CreatedAt,
		}
		subject := messaging.ActorSubject(messaging.SubjectBundlesCreated, b.Receiver.Number)
		if err := p.publish(ctx, subject, b.Receiver.Number, "bundles.created", event); err != nil {
			return fmt.Errorf("publish bundle %s: %w", b.ID, err)
		}
	}
	return nil
}

// BundleDequeued publishes the acknowledgement of a bundle.
func (p *Publisher) BundleDequeued(ctx context.Context, bundle *models.Bundle) error {
	event := &BundleDequeuedEvent{
		BundleID:  bundle.ID.String(),
		MessageID: bundle.MessageID,
		Receiver:  bundle.Receiver,
	}
	if bundle.DequeuedAt != nil {
		event.DequeuedAt = *bundle.DequeuedAt
	} else {
		event.DequeuedAt = p.now().UTC()
	}
	return p.publish(ctx, messaging.SubjectBundlesDequeued, bundle.Receiver.Number, "bundles.dequeued", event)
}

// publish marshals data to JSON and publishes it with the request id, actor
// and event type headers.
func (p *Publisher) publish(ctx context.Context, subject, actorNumber, eventType string, data any) error {
	bytes, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return p.client.PublishMsg(ctx, messaging.NewEvent(ctx, subject, actorNumber, eventType, bytes))
}
