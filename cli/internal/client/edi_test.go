package client

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEDIClient(t *testing.T) {
	c := NewEDIClient("http://localhost:8090", "tok")

	assert.Equal(t, "http://localhost:8090", c.baseURL)
	assert.Equal(t, "tok", c.token)
	assert.Equal(t, 30*time.Second, c.client.Timeout)
}

func TestSend(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantErr     bool
		wantSuccess bool
		wantCodes   []string
	}{
		{
			name:        "accepted",
			status:      http.StatusAccepted,
			body:        `{"success":true,"message_id":"msg-1"}`,
			wantSuccess: true,
		},
		{
			name:      "rejected",
			status:    http.StatusBadRequest,
			body:      `{"success":false,"message_id":"msg-1","errors":[{"code":"00101","message":"duplicate"}]}`,
			wantCodes: []string{"00101"},
		},
		{
			name:    "unauthorized",
			status:  http.StatusUnauthorized,
			body:    `{"error":"missing bearer token"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/api/incoming/RequestAggregatedMeasureData", r.URL.Path)
				assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
				body, _ := io.ReadAll(r.Body)
				assert.Equal(t, `{"doc":1}`, string(body))

				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			resp, err := NewEDIClient(server.URL, "tok").Send("RequestAggregatedMeasureData", "application/json", []byte(`{"doc":1}`))
			if tt.wantErr {
				require.Error(t, err)
				var apiErr *APIError
				require.ErrorAs(t, err, &apiErr)
				assert.Equal(t, tt.status, apiErr.StatusCode)
				assert.Equal(t, "missing bearer token", apiErr.Message)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSuccess, resp.Success)
			assert.Equal(t, "msg-1", resp.MessageID)
			var codes []string
			for _, e := range resp.Errors {
				codes = append(codes, e.Code)
			}
			assert.Equal(t, tt.wantCodes, codes)
		})
	}
}

func TestPeek(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/peek/aggregations", r.URL.Path)
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Equal(t, "DDQ", r.URL.Query().Get("role"))

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Bundle-Id", "b-1")
		w.Header().Set("X-Message-Id", "m-1")
		_, _ = w.Write([]byte(`{"doc":true}`))
	}))
	defer server.Close()

	doc, err := NewEDIClient(server.URL, "tok").Peek("aggregations", "json", "DDQ")
	require.NoError(t, err)
	assert.Equal(t, "b-1", doc.BundleID)
	assert.Equal(t, "m-1", doc.MessageID)
	assert.Equal(t, "application/json", doc.ContentType)
	assert.JSONEq(t, `{"doc":true}`, string(doc.Document))
}

func TestPeek_Empty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.RawQuery)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	_, err := NewEDIClient(server.URL, "tok").Peek("all", "", "")
	assert.ErrorIs(t, err, ErrNoContent)
}

func TestPeek_NotAcceptable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotAcceptable)
		_, _ = w.Write([]byte(`{"error":"format not supported"}`))
	}))
	defer server.Close()

	_, err := NewEDIClient(server.URL, "tok").Peek("aggregations", "ebix", "")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotAcceptable, apiErr.StatusCode)
	assert.Contains(t, apiErr.Error(), "format not supported")
}

func TestDequeue(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{name: "dequeued", status: http.StatusOK},
		{name: "not found", status: http.StatusNotFound, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodDelete, r.Method)
				assert.Equal(t, "/api/dequeue/b-1", r.URL.Path)
				assert.Equal(t, "GridOperator", r.URL.Query().Get("role"))
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			err := NewEDIClient(server.URL, "tok").Dequeue("b-1", "GridOperator")
			if tt.wantErr {
				var apiErr *APIError
				require.ErrorAs(t, err, &apiErr)
				assert.Equal(t, "request failed with status 404", apiErr.Error())
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestRunBundling(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/bundling/run", r.URL.Path)
		_, _ = w.Write([]byte(`{"bundles_created":2,"messages_bundled":7,"messages_deferred":1,"conflicts":0,"skipped":false}`))
	}))
	defer server.Close()

	report, err := NewEDIClient(server.URL, "tok").RunBundling()
	require.NoError(t, err)
	assert.Equal(t, 2, report.BundlesCreated)
	assert.Equal(t, 7, report.MessagesBundled)
	assert.Equal(t, 1, report.MessagesDeferred)
}

func TestSearchArchive(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "msg-1", q.Get("message_id"))
		assert.Equal(t, "2024-01-01T00:00:00Z", q.Get("from"))
		assert.Empty(t, q.Get("to"))
		assert.Equal(t, "5", q.Get("limit"))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"messages": []map[string]any{{"id": "a-1", "message_id": "msg-1", "direction": "incoming"}},
			"count":    1,
		})
	}))
	defer server.Close()

	messages, err := NewEDIClient(server.URL, "tok").SearchArchive(ArchiveQuery{MessageID: "msg-1", From: from, Limit: 5})
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "a-1", messages[0].ID)
	assert.Equal(t, "incoming", messages[0].Direction)
}

func TestSearchArchive_Disabled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"message archive is not enabled"}`))
	}))
	defer server.Close()

	_, err := NewEDIClient(server.URL, "tok").SearchArchive(ArchiveQuery{})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
}

func TestActorStats(t *testing.T) {
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"actor_number":      "5790000701414",
			"totals":            map[string]int64{"received": 12, "peeked": 3},
			"requests_last_24h": 15,
		})
	}))
	defer server.Close()

	c := NewEDIClient(server.URL, "tok")
	stats, err := c.ActorStats("")
	require.NoError(t, err)
	assert.Equal(t, "5790000701414", stats.ActorNumber)
	assert.Equal(t, int64(12), stats.Totals["received"])
	assert.Equal(t, int64(15), stats.RequestsLast24h)

	_, err = c.ActorStats("5790000000005")
	require.NoError(t, err)
	assert.Equal(t, []string{"/api/actors/me/stats", "/api/actors/5790000000005/stats"}, paths)
}

func TestActorStats_Forbidden(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"actors may only read their own statistics"}`))
	}))
	defer server.Close()

	_, err := NewEDIClient(server.URL, "tok").ActorStats("other")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "own statistics")
}
