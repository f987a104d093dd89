// Package models defines the EDI domain types shared across the service.
package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxIdentifierLength bounds message and transaction ids.
const MaxIdentifierLength = 36

// Actor is a market participant acting in one role.
type Actor struct {
	Number string    `json:"number" validate:"required"`
	Role   ActorRole `json:"role" validate:"required,known"`
}

// ActorIdentity is the authenticated caller. Roles are role names such as
// "electricalsupplier".
type ActorIdentity struct {
	ActorNumber string   `json:"actor_number"`
	Roles       []string `json:"roles"`
}

// HasRole reports whether the identity holds role (case-insensitive).
func (a ActorIdentity) HasRole(role string) bool {
	for _, r := range a.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// IncomingMessage is the parsed header and series of an inbound document.
type IncomingMessage struct {
	DocumentType     DocumentType `json:"document_type"`
	MessageID        string       `json:"message_id"`
	SenderNumber     string       `json:"sender_number"`
	SenderRoleCode   string       `json:"sender_role"`
	ReceiverNumber   string       `json:"receiver_number"`
	ReceiverRoleCode string       `json:"receiver_role"`
	MessageType      string       `json:"message_type"`
	BusinessReason   string       `json:"business_reason"`
	BusinessType     string       `json:"business_type"`
	CreatedAt        time.Time    `json:"created_at"`
	Series           []Series     `json:"series"`
}

// TransactionIDs returns the series transaction ids in series order.
func (m *IncomingMessage) TransactionIDs() []string {
	ids := make([]string, 0, len(m.Series))
	for _, s := range m.Series {
		ids = append(ids, s.TransactionID)
	}
	return ids
}

// AllSeriesDelegated reports whether every series is sent on behalf of the
// sender. A message without series is not delegated.
func (m *IncomingMessage) AllSeriesDelegated() bool {
	if len(m.Series) == 0 {
		return false
	}
	for _, s := range m.Series {
		if !s.IsDelegated {
			return false
		}
	}
	return true
}

// Series is one transaction of an incoming message.
type Series struct {
	TransactionID            string   `json:"transaction_id"`
	IsDelegated              bool     `json:"is_delegated"`
	GridArea                 string   `json:"grid_area,omitempty"`
	MeteringPointID          string   `json:"metering_point_id,omitempty"`
	MeteringPointType        string   `json:"metering_point_type,omitempty"`
	SettlementMethod         string   `json:"settlement_method,omitempty"`
	SettlementVersion        string   `json:"settlement_version,omitempty"`
	EnergySupplierNumber     string   `json:"energy_supplier_number,omitempty"`
	BalanceResponsibleNumber string   `json:"balance_responsible_number,omitempty"`
	ChargeTypes              []string `json:"charge_types,omitempty"`
	Resolution               string   `json:"resolution,omitempty"`
	PeriodStart              string   `json:"period_start,omitempty"`
	PeriodEnd                string   `json:"period_end,omitempty"`
	PointCount               int      `json:"point_count,omitempty"`
}

// OutgoingMessage is one record waiting to be delivered to an actor.
type OutgoingMessage struct {
	ID                 uuid.UUID       `json:"id"`
	ExternalID         string          `json:"external_id"`
	DocumentType       DocumentType    `json:"document_type"`
	Receiver           Actor           `json:"receiver"`
	BusinessReason     BusinessReason  `json:"business_reason"`
	RelatedToMessageID string          `json:"related_to_message_id,omitempty"`
	Record             json.RawMessage `json:"record"`
	CreatedAt          time.Time       `json:"created_at"`
	AssignedBundleID   *uuid.UUID      `json:"assigned_bundle_id,omitempty"`
	DequeuedAt         *time.Time      `json:"dequeued_at,omitempty"`
}

// IsPublished reports whether the message has been assigned to a bundle.
func (m *OutgoingMessage) IsPublished() bool {
	return m.AssignedBundleID != nil
}

// IsDequeued reports whether the receiver acknowledged the message.
func (m *OutgoingMessage) IsDequeued() bool {
	return m.DequeuedAt != nil
}

// BundleKey groups outgoing messages that may share a document.
type BundleKey struct {
	Receiver           Actor
	DocumentType       DocumentType
	BusinessReason     BusinessReason
	RelatedToMessageID string
}

// Key returns the bundle grouping key of m.
func (m *OutgoingMessage) Key() BundleKey {
	return BundleKey{
		Receiver:           m.Receiver,
		DocumentType:       m.DocumentType,
		BusinessReason:     m.BusinessReason,
		RelatedToMessageID: m.RelatedToMessageID,
	}
}

// Bundle is a set of outgoing messages delivered as one document.
type Bundle struct {
	ID                 uuid.UUID      `json:"id"`
	MessageID          string         `json:"message_id"`
	Receiver           Actor          `json:"receiver"`
	DocumentType       DocumentType   `json:"document_type"`
	BusinessReason     BusinessReason `json:"business_reason"`
	RelatedToMessageID string         `json:"related_to_message_id,omitempty"`
	MessageIDs         []uuid.UUID    `json:"message_ids"`
	MaxSize            int            `json:"max_size"`
	CreatedAt          time.Time      `json:"created_at"`
	DequeuedAt         *time.Time     `json:"dequeued_at,omitempty"`
}

// Category returns the queue category of the bundle.
func (b *Bundle) Category() Category {
	return b.DocumentType.Category()
}

// IsDequeued reports whether the bundle has been acknowledged.
func (b *Bundle) IsDequeued() bool {
	return b.DequeuedAt != nil
}

// MarketDocumentHeader is the header of an outgoing document.
type MarketDocumentHeader struct {
	MessageID          string         `json:"message_id" validate:"required,max=36"`
	DocumentType       DocumentType   `json:"document_type" validate:"required,known"`
	Sender             Actor          `json:"sender"`
	Receiver           Actor          `json:"receiver"`
	BusinessReason     BusinessReason `json:"business_reason" validate:"required,known"`
	CreatedAt          time.Time      `json:"created_at" validate:"required"`
	RelatedToMessageID string         `json:"related_to_message_id,omitempty" validate:"omitempty,max=36"`
}
