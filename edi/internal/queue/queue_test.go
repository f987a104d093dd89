package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/edi-stack/edi/internal/cache"
	"github.com/telhawk-systems/edi-stack/edi/internal/documents"
	"github.com/telhawk-systems/edi-stack/edi/internal/models"
	"github.com/telhawk-systems/edi-stack/edi/internal/repository"
)

var (
	platform = models.Actor{Number: "5790001330583", Role: models.RoleMeteringPointAdministrator}
	supplier = models.Actor{Number: "5790000701414", Role: models.RoleEnergySupplier}
	other    = models.Actor{Number: "5790000701421", Role: models.RoleEnergySupplier}
	base     = time.Date(2026, 2, 1, 6, 0, 0, 0, time.UTC)
)

type fakeArchiver struct {
	mu    sync.Mutex
	calls []models.Format
}

func (f *fakeArchiver) ArchiveOutgoing(_ context.Context, _ *models.Bundle, sender models.Actor, format models.Format, _ []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, format)
	return nil
}

type fakeNotifier struct {
	dequeued []uuid.UUID
}

func (f *fakeNotifier) BundleDequeued(_ context.Context, bundle *models.Bundle) error {
	f.dequeued = append(f.dequeued, bundle.ID)
	return nil
}

type env struct {
	repo     *repository.InMemoryRepository
	svc      *Service
	archive  *fakeArchiver
	notifier *fakeNotifier
	mr       *miniredis.Miniredis
}

func newEnv(t *testing.T) *env {
	t.Helper()
	schemas, err := documents.NewSchemaValidator()
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	e := &env{
		repo:     repository.NewInMemoryRepository(),
		archive:  &fakeArchiver{},
		notifier: &fakeNotifier{},
		mr:       mr,
	}
	e.svc = NewService(e.repo, documents.NewGenerator(documents.DefaultRegistry(), schemas), platform,
		WithCache(cache.NewDocumentCache(client, time.Hour, true)),
		WithArchive(e.archive),
		WithNotifier(e.notifier),
		WithClock(func() time.Time { return base.Add(time.Hour) }),
	)
	return e
}

func aggregatedRecord(t *testing.T) json.RawMessage {
	t.Helper()
	q := decimal.RequireFromString("42.1")
	raw, err := json.Marshal(models.AggregatedMeasureDataRecord{
		TransactionID:     uuid.NewString(),
		GridArea:          "543",
		MeteringPointType: models.MeteringPointConsumption,
		MeasurementUnit:   models.UnitKilowattHour,
		Resolution:        models.ResolutionHourly,
		Period:            models.Period{Start: base, End: base.Add(time.Hour)},
		Points:            []models.Point{{Position: 1, Quantity: &q, Quality: models.QualityCalculated}},
	})
	require.NoError(t, err)
	return raw
}

func measureDataRecord(t *testing.T) json.RawMessage {
	t.Helper()
	q := decimal.RequireFromString("0.5")
	raw, err := json.Marshal(models.MeasureDataRecord{
		TransactionID:     uuid.NewString(),
		MeteringPointID:   "571313180000000005",
		MeteringPointType: models.MeteringPointConsumption,
		MeasurementUnit:   models.UnitKilowattHour,
		Resolution:        models.ResolutionQuarterHourly,
		Period:            models.Period{Start: base, End: base.Add(15 * time.Minute)},
		Points:            []models.Point{{Position: 1, Quantity: &q, Quality: models.QualityMeasured}},
	})
	require.NoError(t, err)
	return raw
}

func rejectRecord(t *testing.T) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(models.RejectedRequestRecord{
		TransactionID:                  uuid.NewString(),
		OriginalTransactionIDReference: uuid.NewString(),
		RejectReasons:                  []models.RejectReason{{ErrorCode: "D18", ErrorMessage: "Period not allowed"}},
	})
	require.NoError(t, err)
	return raw
}

// addBundle stores messages with the given records and bundles them.
func (e *env) addBundle(t *testing.T, receiver models.Actor, dt models.DocumentType, createdAt time.Time, records ...json.RawMessage) *models.Bundle {
	t.Helper()
	ctx := context.Background()
	bundle := &models.Bundle{
		ID:             uuid.New(),
		MessageID:      uuid.NewString(),
		Receiver:       receiver,
		DocumentType:   dt,
		BusinessReason: models.ReasonBalanceFixing,
		MaxSize:        10,
		CreatedAt:      createdAt,
	}
	for _, rec := range records {
		msg := &models.OutgoingMessage{
			ID:             uuid.New(),
			ExternalID:     uuid.NewString(),
			DocumentType:   dt,
			Receiver:       receiver,
			BusinessReason: models.ReasonBalanceFixing,
			Record:         rec,
			CreatedAt:      createdAt,
		}
		require.NoError(t, e.repo.AddOutgoingMessage(ctx, msg))
		bundle.MessageIDs = append(bundle.MessageIDs, msg.ID)
	}
	require.NoError(t, e.repo.AssignBundle(ctx, bundle))
	return bundle
}

func TestPeek_Empty(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.Peek(context.Background(), supplier, models.CategoryAll, models.FormatXML)
	assert.ErrorIs(t, err, ErrNoContent)
}

func TestPeek_IsRepeatableAndDoesNotMutate(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	b := e.addBundle(t, supplier, models.DocumentNotifyAggregatedMeasureData, base, aggregatedRecord(t), aggregatedRecord(t))

	for _, format := range []models.Format{models.FormatXML, models.FormatEbix, models.FormatJSON} {
		first, err := e.svc.Peek(ctx, supplier, models.CategoryAggregations, format)
		require.NoError(t, err)
		second, err := e.svc.Peek(ctx, supplier, models.CategoryAggregations, format)
		require.NoError(t, err)

		assert.Equal(t, b.ID, first.BundleID)
		assert.Equal(t, b.MessageID, first.MessageID)
		assert.Equal(t, first.BundleID, second.BundleID)
		assert.Equal(t, first.Document, second.Document)
		assert.Equal(t, documents.ContentType(format), first.ContentType)
		assert.Contains(t, string(first.Document), b.MessageID)
	}

	stored, err := e.repo.GetBundle(ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsDequeued())
	assert.Equal(t, []models.Format{models.FormatXML, models.FormatEbix, models.FormatJSON}, e.archive.calls,
		"each format is archived on first rendering only")
}

func TestPeek_WithoutCacheStillDeterministic(t *testing.T) {
	e := newEnv(t)
	e.mr.Close()
	ctx := context.Background()
	e.addBundle(t, supplier, models.DocumentNotifyAggregatedMeasureData, base, aggregatedRecord(t))

	first, err := e.svc.Peek(ctx, supplier, models.CategoryAll, models.FormatJSON)
	require.NoError(t, err)
	second, err := e.svc.Peek(ctx, supplier, models.CategoryAll, models.FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, first.Document, second.Document)
}

func TestPeekDequeue_FIFO(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	newer := e.addBundle(t, supplier, models.DocumentNotifyAggregatedMeasureData, base.Add(time.Minute), aggregatedRecord(t))
	older := e.addBundle(t, supplier, models.DocumentNotifyAggregatedMeasureData, base, aggregatedRecord(t))

	head, err := e.svc.Peek(ctx, supplier, models.CategoryAggregations, models.FormatXML)
	require.NoError(t, err)
	assert.Equal(t, older.ID, head.BundleID)

	assert.ErrorIs(t, e.svc.Dequeue(ctx, supplier, newer.ID), ErrBundleNotFound, "only the head can be dequeued")

	require.NoError(t, e.svc.Dequeue(ctx, supplier, older.ID))

	head, err = e.svc.Peek(ctx, supplier, models.CategoryAggregations, models.FormatXML)
	require.NoError(t, err)
	assert.Equal(t, newer.ID, head.BundleID)

	require.NoError(t, e.svc.Dequeue(ctx, supplier, newer.ID))
	_, err = e.svc.Peek(ctx, supplier, models.CategoryAggregations, models.FormatXML)
	assert.ErrorIs(t, err, ErrNoContent)
}

func TestPeek_Categories(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	measure := e.addBundle(t, supplier, models.DocumentNotifyValidatedMeasureData, base, measureDataRecord(t))
	agg := e.addBundle(t, supplier, models.DocumentNotifyAggregatedMeasureData, base.Add(time.Minute), aggregatedRecord(t))

	res, err := e.svc.Peek(ctx, supplier, models.CategoryAggregations, models.FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, agg.ID, res.BundleID)

	res, err = e.svc.Peek(ctx, supplier, models.CategoryMeasureData, models.FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, measure.ID, res.BundleID)

	res, err = e.svc.Peek(ctx, supplier, models.CategoryAll, models.FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, measure.ID, res.BundleID)

	// The aggregations head can be dequeued even though "all" shows the
	// measure data bundle first.
	require.NoError(t, e.svc.Dequeue(ctx, supplier, agg.ID))
	_, err = e.svc.Peek(ctx, supplier, models.CategoryAggregations, models.FormatJSON)
	assert.ErrorIs(t, err, ErrNoContent)
}

func TestDequeue_Idempotent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	b := e.addBundle(t, supplier, models.DocumentNotifyAggregatedMeasureData, base, aggregatedRecord(t))

	require.NoError(t, e.svc.Dequeue(ctx, supplier, b.ID))
	require.NoError(t, e.svc.Dequeue(ctx, supplier, b.ID))
	assert.Equal(t, []uuid.UUID{b.ID}, e.notifier.dequeued)

	stored, err := e.repo.GetBundle(ctx, b.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.DequeuedAt)
	assert.Equal(t, base.Add(time.Hour), *stored.DequeuedAt)

	msgs, err := e.repo.BundleMessages(ctx, b.ID)
	require.NoError(t, err)
	for _, msg := range msgs {
		assert.True(t, msg.IsDequeued())
	}
}

func TestDequeue_Rejected(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	b := e.addBundle(t, supplier, models.DocumentNotifyAggregatedMeasureData, base, aggregatedRecord(t))

	tests := []struct {
		name   string
		actor  models.Actor
		bundle uuid.UUID
	}{
		{"unknown bundle", supplier, uuid.New()},
		{"other actor", other, b.ID},
		{"same number other role", models.Actor{Number: supplier.Number, Role: models.RoleGridOperator}, b.ID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, e.svc.Dequeue(ctx, tt.actor, tt.bundle), ErrBundleNotFound)
		})
	}

	stored, err := e.repo.GetBundle(ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsDequeued())
}

func TestDequeue_ConcurrentCallsBothSucceed(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	b := e.addBundle(t, supplier, models.DocumentNotifyAggregatedMeasureData, base, aggregatedRecord(t))

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = e.svc.Dequeue(ctx, supplier, b.ID)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
}

func TestPeek_InvalidRequest(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.svc.Peek(ctx, supplier, models.Category("inbox"), models.FormatXML)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = e.svc.Peek(ctx, supplier, models.CategoryAll, models.Format("Pdf"))
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestPeek_FormatNotSupportedForDocumentType(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.addBundle(t, supplier, models.DocumentRejectRequestAggregatedMeasureData, base, rejectRecord(t))

	_, err := e.svc.Peek(ctx, supplier, models.CategoryAggregations, models.FormatEbix)
	assert.ErrorIs(t, err, documents.ErrNoWriter)

	res, err := e.svc.Peek(ctx, supplier, models.CategoryAggregations, models.FormatXML)
	require.NoError(t, err)
	assert.Equal(t, models.DocumentRejectRequestAggregatedMeasureData, res.DocumentType)
}

type failingQueueStore struct {
	repository.QueueStore
	err error
}

func (s failingQueueStore) OldestBundle(context.Context, models.Actor, []models.DocumentType) (*models.Bundle, error) {
	return nil, s.err
}

func TestPeek_StoreFailure(t *testing.T) {
	boom := errors.New("connection refused")
	svc := NewService(failingQueueStore{QueueStore: repository.NewInMemoryRepository(), err: boom}, nil, platform)

	_, err := svc.Peek(context.Background(), supplier, models.CategoryAll, models.FormatXML)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrNoContent)
}
