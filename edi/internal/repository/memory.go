package repository

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/telhawk-systems/edi-stack/edi/internal/models"
)

type identifierKey struct {
	sender string
	id     string
}

type InMemoryRepository struct {
	mu sync.RWMutex

	messageIDs     map[identifierKey]struct{}
	transactionIDs map[identifierKey]struct{}

	outgoing   map[uuid.UUID]*models.OutgoingMessage
	externalID map[string]uuid.UUID
	bundles    map[uuid.UUID]*models.Bundle

	bundling sync.Mutex
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		messageIDs:     make(map[identifierKey]struct{}),
		transactionIDs: make(map[identifierKey]struct{}),
		outgoing:       make(map[uuid.UUID]*models.OutgoingMessage),
		externalID:     make(map[string]uuid.UUID),
		bundles:        make(map[uuid.UUID]*models.Bundle),
	}
}

func (r *InMemoryRepository) Close() {}

func (r *InMemoryRepository) MessageIDExists(ctx context.Context, senderNumber, messageID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.messageIDs[identifierKey{senderNumber, messageID}]
	return exists, nil
}

func (r *InMemoryRepository) TransactionIDExists(ctx context.Context, senderNumber, transactionID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.transactionIDs[identifierKey{senderNumber, transactionID}]
	return exists, nil
}

func (r *InMemoryRepository) ReserveIdentifiers(ctx context.Context, senderNumber, messageID string, transactionIDs []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.messageIDs[identifierKey{senderNumber, messageID}]; exists {
		return ErrDuplicateMessageID
	}
	seen := make(map[string]struct{}, len(transactionIDs))
	for _, id := range transactionIDs {
		if _, exists := r.transactionIDs[identifierKey{senderNumber, id}]; exists {
			return ErrDuplicateTransactionID
		}
		if _, dup := seen[id]; dup {
			return ErrDuplicateTransactionID
		}
		seen[id] = struct{}{}
	}

	r.messageIDs[identifierKey{senderNumber, messageID}] = struct{}{}
	for id := range seen {
		r.transactionIDs[identifierKey{senderNumber, id}] = struct{}{}
	}
	return nil
}

func (r *InMemoryRepository) AddOutgoingMessage(ctx context.Context, msg *models.OutgoingMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.externalID[msg.ExternalID]; exists {
		return ErrDuplicateOutgoing
	}
	stored := *msg
	r.outgoing[msg.ID] = &stored
	r.externalID[msg.ExternalID] = msg.ID
	return nil
}

func (r *InMemoryRepository) ListUnbundled(ctx context.Context, limit int) ([]*models.OutgoingMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*models.OutgoingMessage
	for _, msg := range r.outgoing {
		if msg.AssignedBundleID == nil {
			c := *msg
			result = append(result, &c)
		}
	}
	slices.SortFunc(result, func(a, b *models.OutgoingMessage) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *InMemoryRepository) AssignBundle(ctx context.Context, bundle *models.Bundle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range bundle.MessageIDs {
		msg, ok := r.outgoing[id]
		if !ok || msg.AssignedBundleID != nil {
			return ErrAlreadyBundled
		}
	}

	stored := *bundle
	stored.MessageIDs = slices.Clone(bundle.MessageIDs)
	r.bundles[bundle.ID] = &stored
	for _, id := range bundle.MessageIDs {
		bundleID := bundle.ID
		r.outgoing[id].AssignedBundleID = &bundleID
	}
	return nil
}

func (r *InMemoryRepository) AcquireBundlingLock(ctx context.Context) (func(), bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if !r.bundling.TryLock() {
		return nil, false, nil
	}
	return r.bundling.Unlock, true, nil
}

func (r *InMemoryRepository) OldestBundle(ctx context.Context, receiver models.Actor, documentTypes []models.DocumentType) (*models.Bundle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var head *models.Bundle
	for _, b := range r.bundles {
		if b.DequeuedAt != nil || b.Receiver != receiver || !slices.Contains(documentTypes, b.DocumentType) {
			continue
		}
		if head == nil || bundleBefore(b, head) {
			head = b
		}
	}
	if head == nil {
		return nil, ErrBundleNotFound
	}
	return copyBundle(head), nil
}

func bundleBefore(a, b *models.Bundle) bool {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c < 0
	}
	return a.ID.String() < b.ID.String()
}

func (r *InMemoryRepository) GetBundle(ctx context.Context, id uuid.UUID) (*models.Bundle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.bundles[id]
	if !ok {
		return nil, ErrBundleNotFound
	}
	return copyBundle(b), nil
}

func (r *InMemoryRepository) BundleMessages(ctx context.Context, bundleID uuid.UUID) ([]*models.OutgoingMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.bundles[bundleID]
	if !ok {
		return nil, ErrBundleNotFound
	}
	result := make([]*models.OutgoingMessage, 0, len(b.MessageIDs))
	for _, id := range b.MessageIDs {
		c := *r.outgoing[id]
		result = append(result, &c)
	}
	return result, nil
}

func (r *InMemoryRepository) MarkDequeued(ctx context.Context, bundleID uuid.UUID, at time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bundles[bundleID]
	if !ok {
		return false, ErrBundleNotFound
	}
	if b.DequeuedAt != nil {
		return false, nil
	}
	ts := at
	b.DequeuedAt = &ts
	for _, id := range b.MessageIDs {
		r.outgoing[id].DequeuedAt = &ts
	}
	return true, nil
}

func copyBundle(b *models.Bundle) *models.Bundle {
	c := *b
	c.MessageIDs = slices.Clone(b.MessageIDs)
	return &c
}
