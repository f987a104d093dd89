package repository

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/edi-stack/edi/internal/models"
)

var supplier = models.Actor{Number: "5790000701414", Role: models.RoleEnergySupplier}

func newOutgoing(t *testing.T, createdAt time.Time) *models.OutgoingMessage {
	t.Helper()
	return &models.OutgoingMessage{
		ID:             uuid.Must(uuid.NewV7()),
		ExternalID:     uuid.NewString(),
		DocumentType:   models.DocumentNotifyAggregatedMeasureData,
		Receiver:       supplier,
		BusinessReason: models.ReasonBalanceFixing,
		Record:         json.RawMessage(`{"transaction_id":"t"}`),
		CreatedAt:      createdAt,
	}
}

func newBundle(receiver models.Actor, createdAt time.Time, ids ...uuid.UUID) *models.Bundle {
	return &models.Bundle{
		ID:             uuid.Must(uuid.NewV7()),
		MessageID:      uuid.NewString(),
		Receiver:       receiver,
		DocumentType:   models.DocumentNotifyAggregatedMeasureData,
		BusinessReason: models.ReasonBalanceFixing,
		MessageIDs:     ids,
		MaxSize:        10,
		CreatedAt:      createdAt,
	}
}

func TestInMemory_IdentifiersScopedBySender(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository()

	require.NoError(t, repo.ReserveIdentifiers(ctx, "S1", "M1", []string{"T1", "T2"}))

	exists, err := repo.MessageIDExists(ctx, "S1", "M1")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.MessageIDExists(ctx, "S2", "M1")
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = repo.TransactionIDExists(ctx, "S1", "T2")
	require.NoError(t, err)
	assert.True(t, exists)

	assert.NoError(t, repo.ReserveIdentifiers(ctx, "S2", "M1", []string{"T1"}))
	assert.ErrorIs(t, repo.ReserveIdentifiers(ctx, "S1", "M1", []string{"T9"}), ErrDuplicateMessageID)
	assert.ErrorIs(t, repo.ReserveIdentifiers(ctx, "S1", "M2", []string{"T1"}), ErrDuplicateTransactionID)

	// Failed reservations leave nothing behind.
	exists, _ = repo.MessageIDExists(ctx, "S1", "M2")
	assert.False(t, exists)
}

func TestInMemory_ReserveRace(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if repo.ReserveIdentifiers(ctx, "S1", "M1", []string{"T1"}) == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestInMemory_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	repo := NewInMemoryRepository()
	_, err := repo.MessageIDExists(ctx, "S1", "M1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInMemory_OutgoingAndBundling(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	first := newOutgoing(t, base)
	second := newOutgoing(t, base.Add(time.Minute))
	require.NoError(t, repo.AddOutgoingMessage(ctx, second))
	require.NoError(t, repo.AddOutgoingMessage(ctx, first))

	dup := newOutgoing(t, base)
	dup.ExternalID = first.ExternalID
	assert.ErrorIs(t, repo.AddOutgoingMessage(ctx, dup), ErrDuplicateOutgoing)

	pending, err := repo.ListUnbundled(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first.ID, pending[0].ID)

	limited, err := repo.ListUnbundled(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	bundle := newBundle(supplier, base.Add(time.Hour), first.ID, second.ID)
	require.NoError(t, repo.AssignBundle(ctx, bundle))

	again := newBundle(supplier, base.Add(time.Hour), first.ID)
	assert.ErrorIs(t, repo.AssignBundle(ctx, again), ErrAlreadyBundled)
	_, err = repo.GetBundle(ctx, again.ID)
	assert.ErrorIs(t, err, ErrBundleNotFound)

	pending, err = repo.ListUnbundled(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	messages, err := repo.BundleMessages(ctx, bundle.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, first.ID, messages[0].ID)
	assert.Equal(t, bundle.ID, *messages[0].AssignedBundleID)
}

func TestInMemory_QueueOrderAndDequeue(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	types := models.CategoryAggregations.DocumentTypes()

	_, err := repo.OldestBundle(ctx, supplier, types)
	assert.ErrorIs(t, err, ErrBundleNotFound)

	var bundles []*models.Bundle
	for i := 0; i < 2; i++ {
		msg := newOutgoing(t, base)
		require.NoError(t, repo.AddOutgoingMessage(ctx, msg))
		b := newBundle(supplier, base.Add(time.Duration(2-i)*time.Minute), msg.ID)
		require.NoError(t, repo.AssignBundle(ctx, b))
		bundles = append(bundles, b)
	}

	head, err := repo.OldestBundle(ctx, supplier, types)
	require.NoError(t, err)
	assert.Equal(t, bundles[1].ID, head.ID)

	_, err = repo.OldestBundle(ctx, models.Actor{Number: supplier.Number, Role: models.RoleGridOperator}, types)
	assert.ErrorIs(t, err, ErrBundleNotFound)

	_, err = repo.OldestBundle(ctx, supplier, models.CategoryMeasureData.DocumentTypes())
	assert.ErrorIs(t, err, ErrBundleNotFound)

	dequeued, err := repo.MarkDequeued(ctx, head.ID, base.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, dequeued)

	dequeued, err = repo.MarkDequeued(ctx, head.ID, base.Add(2*time.Hour))
	require.NoError(t, err)
	assert.False(t, dequeued)

	stored, err := repo.GetBundle(ctx, head.ID)
	require.NoError(t, err)
	assert.Equal(t, base.Add(time.Hour), *stored.DequeuedAt)

	messages, err := repo.BundleMessages(ctx, head.ID)
	require.NoError(t, err)
	assert.True(t, messages[0].IsDequeued())

	next, err := repo.OldestBundle(ctx, supplier, types)
	require.NoError(t, err)
	assert.Equal(t, bundles[0].ID, next.ID)

	_, err = repo.MarkDequeued(ctx, uuid.New(), base)
	assert.ErrorIs(t, err, ErrBundleNotFound)
}

func TestInMemory_BundlingLock(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository()

	release, ok, err := repo.AcquireBundlingLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = repo.AcquireBundlingLock(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	release()
	release2, ok, err := repo.AcquireBundlingLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	release2()
}
