package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/telhawk-systems/edi-stack/edi/internal/models"
)

var (
	ErrDuplicateMessageID     = errors.New("message id already registered for sender")
	ErrDuplicateTransactionID = errors.New("transaction id already registered for sender")
	ErrDuplicateOutgoing      = errors.New("outgoing message already enqueued")
	ErrAlreadyBundled         = errors.New("outgoing message already assigned to a bundle")
	ErrBundleNotFound         = errors.New("bundle not found")
)

// IdentifierStore persists message and transaction ids per sender.
type IdentifierStore interface {
	MessageIDExists(ctx context.Context, senderNumber, messageID string) (bool, error)
	TransactionIDExists(ctx context.Context, senderNumber, transactionID string) (bool, error)

	// ReserveIdentifiers registers the message id and all transaction ids
	// atomically. A concurrent registration of any of them fails with
	// ErrDuplicateMessageID or ErrDuplicateTransactionID and reserves nothing.
	ReserveIdentifiers(ctx context.Context, senderNumber, messageID string, transactionIDs []string) error
}

// OutgoingStore holds outgoing messages and assigns them to bundles.
type OutgoingStore interface {
	// AddOutgoingMessage stores msg. A message with the same ExternalID
	// fails with ErrDuplicateOutgoing.
	AddOutgoingMessage(ctx context.Context, msg *models.OutgoingMessage) error

	// ListUnbundled returns up to limit unbundled messages, oldest first.
	ListUnbundled(ctx context.Context, limit int) ([]*models.OutgoingMessage, error)

	// AssignBundle stores bundle and assigns its messages to it in one
	// transaction. If any message is already bundled nothing is written and
	// ErrAlreadyBundled is returned.
	AssignBundle(ctx context.Context, bundle *models.Bundle) error

	// AcquireBundlingLock serialises bundler runs. acquired is false when
	// another run holds the lock.
	AcquireBundlingLock(ctx context.Context) (release func(), acquired bool, err error)
}

// QueueStore reads and acknowledges bundles.
type QueueStore interface {
	// OldestBundle returns the oldest undequeued bundle of receiver with one
	// of documentTypes, ordered by (created_at, id).
	OldestBundle(ctx context.Context, receiver models.Actor, documentTypes []models.DocumentType) (*models.Bundle, error)
	GetBundle(ctx context.Context, id uuid.UUID) (*models.Bundle, error)

	// BundleMessages returns the messages of a bundle in bundle order.
	BundleMessages(ctx context.Context, bundleID uuid.UUID) ([]*models.OutgoingMessage, error)

	// MarkDequeued marks the bundle and its messages dequeued. dequeued is
	// false when the bundle was already dequeued.
	MarkDequeued(ctx context.Context, bundleID uuid.UUID, at time.Time) (dequeued bool, err error)
}

// Repository is the full persistence surface of the service.
type Repository interface {
	IdentifierStore
	OutgoingStore
	QueueStore
	Close()
}
