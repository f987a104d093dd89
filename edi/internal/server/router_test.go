package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/edi-stack/common/logging"
	"github.com/telhawk-systems/edi-stack/common/middleware"
	"github.com/telhawk-systems/edi-stack/edi/internal/auth"
	"github.com/telhawk-systems/edi-stack/edi/internal/authorization"
	"github.com/telhawk-systems/edi-stack/edi/internal/bundling"
	"github.com/telhawk-systems/edi-stack/edi/internal/codelists"
	"github.com/telhawk-systems/edi-stack/edi/internal/documents"
	"github.com/telhawk-systems/edi-stack/edi/internal/handlers"
	"github.com/telhawk-systems/edi-stack/edi/internal/models"
	"github.com/telhawk-systems/edi-stack/edi/internal/queue"
	"github.com/telhawk-systems/edi-stack/edi/internal/repository"
	"github.com/telhawk-systems/edi-stack/edi/internal/service"
	"github.com/telhawk-systems/edi-stack/edi/internal/validation"
)

const supplierNumber = "5790000701414"

const requestDocument = `{
  "RequestAggregatedMeasureData_MarketDocument": {
    "mRID": "msg-0001",
    "businessSector.type": {"value": "23"},
    "createdDateTime": "2026-04-01T10:00:00Z",
    "process.processType": {"value": "D04"},
    "receiver_MarketParticipant.mRID": {"codingScheme": "A10", "value": "5790001330583"},
    "receiver_MarketParticipant.marketRole.type": {"value": "DDZ"},
    "sender_MarketParticipant.mRID": {"codingScheme": "A10", "value": "5790000701414"},
    "sender_MarketParticipant.marketRole.type": {"value": "DDQ"},
    "type": {"value": "E74"},
    "Series": [{"mRID": "tx-1", "meteringGridArea_Domain.mRID": {"codingScheme": "NDK", "value": "804"}}]
  }
}`

type testServer struct {
	*httptest.Server
	svc           *service.Service
	supplierToken string
	operatorToken string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	lists := codelists.Default()
	repo := repository.NewInMemoryRepository()
	logger := logging.NewWithWriter(io.Discard, 0, "json")

	validator := validation.NewValidator(repo,
		authorization.NewSenderAuthorizer(lists),
		authorization.NewReceiverValidator(lists),
		lists)
	svc := service.NewService(repo, validator, lists, nil, nil, logger)

	schemas, err := documents.NewSchemaValidator()
	require.NoError(t, err)
	q := queue.NewService(repo, documents.NewGenerator(documents.DefaultRegistry(), schemas), lists.PlatformActor(),
		queue.WithLogger(logger))
	bundler := bundling.NewBundler(repo, nil, bundling.DefaultConfig(), logger)

	tokens := auth.NewTokenManager("router-test-secret-of-enough-length", time.Hour)
	h := handlers.NewHandler(svc, q, bundler, lists, handlers.WithLogger(logger))

	ts := httptest.NewServer(NewRouter(h, auth.NewMiddleware(tokens), logger.Logger))
	t.Cleanup(ts.Close)

	supplierToken, err := tokens.Generate(supplierNumber, []string{"electricalsupplier"})
	require.NoError(t, err)
	operatorToken, err := tokens.Generate(lists.PlatformNumber(), []string{"systemoperator"})
	require.NoError(t, err)

	return &testServer{Server: ts, svc: svc, supplierToken: supplierToken, operatorToken: operatorToken}
}

func (s *testServer) do(t *testing.T, method, path, token, contentType string, body []byte) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, s.URL+path, bytes.NewReader(body))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestRouter_IncomingRoundTrip(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodPost, "/api/incoming/RequestAggregatedMeasureData", s.supplierToken, "application/json", []byte(requestDocument))
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(middleware.RequestIDHeader))

	resp = s.do(t, http.MethodPost, "/api/incoming/RequestAggregatedMeasureData", s.supplierToken, "application/json", []byte(requestDocument))
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var rejected handlers.ReceiveResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rejected))
	codes := make([]string, 0, len(rejected.Errors))
	for _, e := range rejected.Errors {
		codes = append(codes, e.Code)
	}
	assert.Equal(t, []string{models.CodeMessageIDNotUnique, models.CodeTransactionIDNotUnique}, codes)
}

func TestRouter_QueueRoundTrip(t *testing.T) {
	s := newTestServer(t)

	record, err := json.Marshal(map[string]any{
		"transaction_id":      "tx-1",
		"grid_area":           "804",
		"metering_point_type": "Consumption",
		"measurement_unit":    "KilowattHour",
		"resolution":          "Hourly",
		"period":              map[string]string{"start": "2026-03-01T23:00:00Z", "end": "2026-03-02T00:00:00Z"},
		"points":              []map[string]any{{"position": 1, "quantity": "12.5", "quality": "Measured"}},
	})
	require.NoError(t, err)
	_, created, err := s.svc.EnqueueOutgoing(context.Background(), &service.EnqueueRequest{
		ExternalID:     "calc-1",
		DocumentType:   models.DocumentNotifyAggregatedMeasureData,
		Receiver:       models.Actor{Number: supplierNumber, Role: models.RoleEnergySupplier},
		BusinessReason: models.ReasonBalanceFixing,
		Record:         record,
	})
	require.NoError(t, err)
	require.True(t, created)

	resp := s.do(t, http.MethodGet, "/api/peek/aggregations?format=json", s.supplierToken, "", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode, "nothing is peekable before bundling")

	resp = s.do(t, http.MethodPost, "/api/bundling/run", s.supplierToken, "", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/api/bundling/run", s.operatorToken, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var report bundling.Report
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	assert.Equal(t, 1, report.BundlesCreated)

	resp = s.do(t, http.MethodGet, "/api/peek/aggregations?format=json", s.supplierToken, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	bundleID := resp.Header.Get(handlers.HeaderBundleID)
	require.NotEmpty(t, bundleID)
	assert.NotEmpty(t, resp.Header.Get(handlers.HeaderMessageID))
	first, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	resp = s.do(t, http.MethodGet, "/api/peek/aggregations?format=json", s.supplierToken, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	second, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, first, second, "peek is repeatable")

	resp = s.do(t, http.MethodDelete, "/api/dequeue/"+bundleID, s.supplierToken, "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp = s.do(t, http.MethodDelete, "/api/dequeue/"+bundleID, s.supplierToken, "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "dequeue is idempotent")

	resp = s.do(t, http.MethodGet, "/api/peek/aggregations?format=json", s.supplierToken, "", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestRouter_Routing(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name       string
		method     string
		path       string
		token      string
		wantStatus int
	}{
		{"health", http.MethodGet, "/healthz", "", http.StatusOK},
		{"metrics", http.MethodGet, "/metrics", "", http.StatusOK},
		{"api requires token", http.MethodGet, "/api/peek/all", "", http.StatusUnauthorized},
		{"wrong method", http.MethodPost, "/api/peek/all", s.supplierToken, http.StatusMethodNotAllowed},
		{"unknown route", http.MethodGet, "/api/unknown", s.supplierToken, http.StatusNotFound},
		{"archive disabled", http.MethodGet, "/api/archive/messages", s.supplierToken, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := s.do(t, tt.method, tt.path, tt.token, "", nil)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}
}
