package nats

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/edi-stack/common/messaging"
	"github.com/telhawk-systems/edi-stack/common/middleware"
	"github.com/telhawk-systems/edi-stack/edi/internal/bundling"
	"github.com/telhawk-systems/edi-stack/edi/internal/models"
	"github.com/telhawk-systems/edi-stack/edi/internal/service"
	"github.com/telhawk-systems/edi-stack/edi/internal/validation"
)

type fakeSubscription struct {
	subject      string
	unsubscribed bool
}

func (s *fakeSubscription) Unsubscribe() error { s.unsubscribed = true; return nil }
func (s *fakeSubscription) Subject() string    { return s.subject }
func (s *fakeSubscription) IsValid() bool      { return !s.unsubscribed }

type fakeClient struct {
	mu         sync.Mutex
	published  []*messaging.Message
	handlers   map[string]messaging.MessageHandler
	subs       []*fakeSubscription
	publishErr error
	subErr     map[string]error
}

func newFakeClient() *fakeClient {
	return &fakeClient{handlers: make(map[string]messaging.MessageHandler), subErr: make(map[string]error)}
}

func (f *fakeClient) Publish(ctx context.Context, subject string, data []byte) error {
	return f.PublishMsg(ctx, &messaging.Message{Subject: subject, Data: data})
}

func (f *fakeClient) PublishMsg(_ context.Context, msg *messaging.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeClient) Request(context.Context, string, []byte, time.Duration) (*messaging.Message, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeClient) Subscribe(subject string, handler messaging.MessageHandler) (messaging.Subscription, error) {
	return f.QueueSubscribe(subject, "", handler)
}

func (f *fakeClient) QueueSubscribe(subject, _ string, handler messaging.MessageHandler) (messaging.Subscription, error) {
	if err := f.subErr[subject]; err != nil {
		return nil, err
	}
	f.handlers[subject] = handler
	sub := &fakeSubscription{subject: subject}
	f.subs = append(f.subs, sub)
	return sub, nil
}

func (f *fakeClient) Close() error      { return nil }
func (f *fakeClient) Drain() error      { return nil }
func (f *fakeClient) IsConnected() bool { return true }

func (f *fakeClient) deliver(t *testing.T, subject string, data []byte, reply string) error {
	t.Helper()
	handler, ok := f.handlers[subject]
	require.True(t, ok, "no handler for %s", subject)
	return handler(context.Background(), &messaging.Message{Subject: subject, Data: data, Reply: reply})
}

func (f *fakeClient) replyTo(t *testing.T, subject string, v any) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.published {
		if m.Subject == subject {
			require.NoError(t, json.Unmarshal(m.Data, v))
			return
		}
	}
	t.Fatalf("no message published to %s", subject)
}

type fakeIntake struct {
	requests []*service.EnqueueRequest
	created  bool
	err      error
}

func (f *fakeIntake) EnqueueOutgoing(_ context.Context, req *service.EnqueueRequest) (*models.OutgoingMessage, bool, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, false, f.err
	}
	if !f.created {
		return nil, false, nil
	}
	return &models.OutgoingMessage{ID: uuid.MustParse("0190a6a4-0000-7000-8000-000000000001"), ExternalID: req.ExternalID}, true, nil
}

type fakeBundler struct {
	runs int
	err  error
}

func (f *fakeBundler) Run(context.Context) (*bundling.Report, error) {
	f.runs++
	if f.err != nil {
		return nil, f.err
	}
	return &bundling.Report{BundlesCreated: 2, MessagesBundled: 5}, nil
}

func TestHandler_StartStop(t *testing.T) {
	client := newFakeClient()
	h := NewHandler(client, &fakeIntake{}, &fakeBundler{}, nil)

	require.NoError(t, h.Start(context.Background()))
	assert.Contains(t, client.handlers, messaging.SubjectOutgoingEnqueue)
	assert.Contains(t, client.handlers, messaging.SubjectBundlingRequests)

	require.NoError(t, h.Stop())
	for _, sub := range client.subs {
		assert.True(t, sub.unsubscribed, sub.subject)
	}
}

func TestHandler_StartWithoutBundler(t *testing.T) {
	client := newFakeClient()
	h := NewHandler(client, &fakeIntake{}, nil, nil)

	require.NoError(t, h.Start(context.Background()))
	assert.NotContains(t, client.handlers, messaging.SubjectBundlingRequests)
}

func TestHandler_StartFailureUnsubscribes(t *testing.T) {
	client := newFakeClient()
	client.subErr[messaging.SubjectBundlingRequests] = errors.New("nats: connection closed")
	h := NewHandler(client, &fakeIntake{}, &fakeBundler{}, nil)

	err := h.Start(context.Background())
	require.Error(t, err)
	require.Len(t, client.subs, 1)
	assert.True(t, client.subs[0].unsubscribed)
}

func TestHandler_Enqueue(t *testing.T) {
	tests := []struct {
		name        string
		intake      *fakeIntake
		body        string
		wantErr     bool
		wantSuccess bool
		wantDup     bool
	}{
		{
			name:        "created",
			intake:      &fakeIntake{created: true},
			body:        `{"external_id":"calc-1","document_type":"NotifyAggregatedMeasureData","record":{}}`,
			wantSuccess: true,
		},
		{
			name:        "duplicate",
			intake:      &fakeIntake{},
			body:        `{"external_id":"calc-1","document_type":"NotifyAggregatedMeasureData","record":{}}`,
			wantSuccess: true,
			wantDup:     true,
		},
		{
			name:   "invalid request is dropped",
			intake: &fakeIntake{err: service.ErrInvalidRequest},
			body:   `{"external_id":""}`,
		},
		{
			name:   "malformed JSON is dropped",
			intake: &fakeIntake{},
			body:   `{`,
		},
		{
			name:    "store failure",
			intake:  &fakeIntake{err: errors.New("connection reset")},
			body:    `{"external_id":"calc-1"}`,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newFakeClient()
			h := NewHandler(client, tt.intake, nil, nil)
			require.NoError(t, h.Start(context.Background()))

			err := client.deliver(t, messaging.SubjectOutgoingEnqueue, []byte(tt.body), "_INBOX.reply")
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}

			var resp EnqueueResponse
			client.replyTo(t, "_INBOX.reply", &resp)
			assert.Equal(t, tt.wantSuccess, resp.Success)
			assert.Equal(t, tt.wantDup, resp.Duplicate)
			if tt.wantSuccess && !tt.wantDup {
				assert.NotEmpty(t, resp.MessageID)
			}
		})
	}
}

func TestHandler_EnqueueWithoutReply(t *testing.T) {
	client := newFakeClient()
	intake := &fakeIntake{created: true}
	h := NewHandler(client, intake, nil, nil)
	require.NoError(t, h.Start(context.Background()))

	require.NoError(t, client.deliver(t, messaging.SubjectOutgoingEnqueue, []byte(`{"external_id":"calc-1"}`), ""))
	assert.Len(t, intake.requests, 1)
	assert.Empty(t, client.published)
}

func TestHandler_BundlingRequest(t *testing.T) {
	client := newFakeClient()
	bundler := &fakeBundler{}
	h := NewHandler(client, &fakeIntake{}, bundler, nil)
	require.NoError(t, h.Start(context.Background()))

	require.NoError(t, client.deliver(t, messaging.SubjectBundlingRequests, []byte(`{"requested_by":"operator"}`), "_INBOX.run"))
	assert.Equal(t, 1, bundler.runs)

	var resp struct {
		Success bool            `json:"success"`
		Report  bundling.Report `json:"report"`
	}
	client.replyTo(t, "_INBOX.run", &resp)
	assert.True(t, resp.Success)
	assert.Equal(t, 2, resp.Report.BundlesCreated)
}

func TestHandler_BundlingRequestFailure(t *testing.T) {
	client := newFakeClient()
	h := NewHandler(client, &fakeIntake{}, &fakeBundler{err: errors.New("lock query failed")}, nil)
	require.NoError(t, h.Start(context.Background()))

	err := client.deliver(t, messaging.SubjectBundlingRequests, nil, "_INBOX.run")
	assert.Error(t, err)

	var resp BundlingResponse
	client.replyTo(t, "_INBOX.run", &resp)
	assert.False(t, resp.Success)
	assert.Equal(t, "lock query failed", resp.Error)
}

func testBundle(receiver string) *models.Bundle {
	return &models.Bundle{
		ID:             uuid.MustParse("0190a6a4-0000-7000-8000-0000000000aa"),
		MessageID:      "0190a6a4-0000-7000-8000-0000000000bb",
		Receiver:       models.Actor{Number: receiver, Role: models.RoleEnergySupplier},
		DocumentType:   models.DocumentNotifyAggregatedMeasureData,
		BusinessReason: models.ReasonBalanceFixing,
		MessageIDs:     []uuid.UUID{uuid.New(), uuid.New()},
		CreatedAt:      time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestPublisher_BundlesCreated(t *testing.T) {
	client := newFakeClient()
	p := NewPublisher(client)

	err := p.BundlesCreated(context.Background(), []*models.Bundle{testBundle("5790000000001"), testBundle("5790000000002")})
	require.NoError(t, err)
	require.Len(t, client.published, 2)

	msg := client.published[0]
	assert.Equal(t, "edi.bundles.created.5790000000001", msg.Subject)
	assert.Equal(t, "5790000000001", msg.Metadata[messaging.HeaderActorNumber])
	assert.Equal(t, "bundles.created", msg.Metadata[messaging.HeaderEventType])
	assert.Equal(t, "edi.bundles.created.5790000000002", client.published[1].Subject)

	var event BundleCreatedEvent
	require.NoError(t, json.Unmarshal(msg.Data, &event))
	assert.Equal(t, models.CategoryAggregations, event.Category)
	assert.Equal(t, 2, event.MessageCount)
}

func TestPublisher_BundlesCreatedStopsOnFailure(t *testing.T) {
	client := newFakeClient()
	client.publishErr = errors.New("nats: connection closed")
	p := NewPublisher(client)

	err := p.BundlesCreated(context.Background(), []*models.Bundle{testBundle("5790000000001")})
	assert.ErrorContains(t, err, "connection closed")
}

func TestPublisher_BundleDequeued(t *testing.T) {
	client := newFakeClient()
	p := NewPublisher(client)
	b := testBundle("5790000000001")
	at := time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC)
	b.DequeuedAt = &at

	require.NoError(t, p.BundleDequeued(context.Background(), b))
	require.Len(t, client.published, 1)
	assert.Equal(t, messaging.SubjectBundlesDequeued, client.published[0].Subject)

	var event BundleDequeuedEvent
	require.NoError(t, json.Unmarshal(client.published[0].Data, &event))
	assert.Equal(t, at, event.DequeuedAt)
	assert.Equal(t, b.ID.String(), event.BundleID)
}

func TestPublisher_IncomingEvents(t *testing.T) {
	client := newFakeClient()
	p := NewPublisher(client)
	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-42")
	msg := &models.IncomingMessage{
		DocumentType: models.DocumentRequestAggregatedMeasureData,
		MessageID:    "msg-1",
		SenderNumber: "5790000701414",
		Series:       []models.Series{{TransactionID: "tx-1"}},
	}

	require.NoError(t, p.IncomingAccepted(ctx, msg))
	require.NoError(t, p.IncomingRejected(ctx, msg, validation.NewResult([]models.ValidationError{models.DuplicateMessageIDDetected("msg-1")})))
	require.Len(t, client.published, 2)

	accepted := client.published[0]
	assert.Equal(t, messaging.SubjectIncomingAccepted, accepted.Subject)
	assert.Equal(t, "req-42", accepted.Metadata[messaging.HeaderRequestID])
	var acceptedEvent IncomingAcceptedEvent
	require.NoError(t, json.Unmarshal(accepted.Data, &acceptedEvent))
	assert.Equal(t, "msg-1", acceptedEvent.MessageID)
	require.NotNil(t, acceptedEvent.Message)
	assert.Equal(t, []string{"tx-1"}, acceptedEvent.Message.TransactionIDs())

	rejected := client.published[1]
	assert.Equal(t, messaging.SubjectIncomingRejected, rejected.Subject)
	var rejectedEvent IncomingRejectedEvent
	require.NoError(t, json.Unmarshal(rejected.Data, &rejectedEvent))
	require.Len(t, rejectedEvent.Errors, 1)
	assert.Equal(t, models.CodeMessageIDNotUnique, rejectedEvent.Errors[0].Code)
}
