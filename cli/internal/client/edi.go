package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// ErrNoContent is returned by Peek when the queue is empty.
var ErrNoContent = errors.New("no bundle ready")

// APIError is a non-success answer from the gateway.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Message)
}

// EDIClient talks to the gateway API as one actor.
type EDIClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewEDIClient creates an EDIClient authenticating with token.
func NewEDIClient(baseURL, token string) *EDIClient {
	return &EDIClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// ValidationError is one rejection reason of an incoming document.
type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Target  string `json:"target,omitempty"`
}

// ReceiveResponse is the answer to a submitted document.
type ReceiveResponse struct {
	Success   bool              `json:"success"`
	MessageID string            `json:"message_id,omitempty"`
	Errors    []ValidationError `json:"errors,omitempty"`
}

// Send submits an incoming document. A rejected document is not an error;
// the response lists the validation errors.
func (c *EDIClient) Send(documentType, contentType string, body []byte) (*ReceiveResponse, error) {
	httpReq, err := c.newRequest(http.MethodPost, "/api/incoming/"+url.PathEscape(documentType), nil, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusBadRequest {
		return nil, apiError(resp)
	}

	var out ReceiveResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &out, nil
}

// PeekedDocument is the bundle at the head of a queue.
type PeekedDocument struct {
	BundleID    string
	MessageID   string
	ContentType string
	Document    []byte
}

// Peek returns the bundle at the head of the category queue rendered in
// format. role may be empty when the token carries a single role.
func (c *EDIClient) Peek(category, format, role string) (*PeekedDocument, error) {
	query := url.Values{}
	if format != "" {
		query.Set("format", format)
	}
	if role != "" {
		query.Set("role", role)
	}

	httpReq, err := c.newRequest(http.MethodGet, "/api/peek/"+url.PathEscape(category), query, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNoContent:
		return nil, ErrNoContent
	default:
		return nil, apiError(resp)
	}

	doc, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	return &PeekedDocument{
		BundleID:    resp.Header.Get("X-Bundle-Id"),
		MessageID:   resp.Header.Get("X-Message-Id"),
		ContentType: resp.Header.Get("Content-Type"),
		Document:    doc,
	}, nil
}

// Dequeue acknowledges a peeked bundle.
func (c *EDIClient) Dequeue(bundleID, role string) error {
	query := url.Values{}
	if role != "" {
		query.Set("role", role)
	}
	httpReq, err := c.newRequest(http.MethodDelete, "/api/dequeue/"+url.PathEscape(bundleID), query, nil)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	return nil
}

// BundlingReport is the outcome of a bundling run.
type BundlingReport struct {
	BundlesCreated   int  `json:"bundles_created"`
	MessagesBundled  int  `json:"messages_bundled"`
	MessagesDeferred int  `json:"messages_deferred"`
	Conflicts        int  `json:"conflicts"`
	Skipped          bool `json:"skipped"`
}

// RunBundling triggers a bundling run. Only the platform operator may call it.
func (c *EDIClient) RunBundling() (*BundlingReport, error) {
	httpReq, err := c.newRequest(http.MethodPost, "/api/bundling/run", nil, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}

	var report BundlingReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &report, nil
}

// ArchivedMessage is one archived document.
type ArchivedMessage struct {
	ID             string    `json:"id"`
	Direction      string    `json:"direction"`
	MessageID      string    `json:"message_id"`
	DocumentType   string    `json:"document_type"`
	BusinessReason string    `json:"business_reason,omitempty"`
	SenderNumber   string    `json:"sender_number"`
	SenderRole     string    `json:"sender_role"`
	ReceiverNumber string    `json:"receiver_number"`
	ReceiverRole   string    `json:"receiver_role"`
	Format         string    `json:"format"`
	BundleID       string    `json:"bundle_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	ArchivedAt     time.Time `json:"archived_at"`
	Document       string    `json:"document"`
	Signature      string    `json:"signature,omitempty"`
	Verified       bool      `json:"verified,omitempty"`
}

// ArchiveQuery filters an archive search. Zero values are not sent.
type ArchiveQuery struct {
	MessageID      string
	SenderNumber   string
	ReceiverNumber string
	DocumentType   string
	From           time.Time
	To             time.Time
	Limit          int
}

func (q ArchiveQuery) values() url.Values {
	v := url.Values{}
	set := func(key, val string) {
		if val != "" {
			v.Set(key, val)
		}
	}
	set("message_id", q.MessageID)
	set("sender_number", q.SenderNumber)
	set("receiver_number", q.ReceiverNumber)
	set("document_type", q.DocumentType)
	if !q.From.IsZero() {
		v.Set("from", q.From.UTC().Format(time.RFC3339))
	}
	if !q.To.IsZero() {
		v.Set("to", q.To.UTC().Format(time.RFC3339))
	}
	if q.Limit > 0 {
		v.Set("limit", fmt.Sprintf("%d", q.Limit))
	}
	return v
}

// SearchArchive lists archived documents matching q.
func (c *EDIClient) SearchArchive(q ArchiveQuery) ([]ArchivedMessage, error) {
	httpReq, err := c.newRequest(http.MethodGet, "/api/archive/messages", q.values(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}

	var out struct {
		Messages []ArchivedMessage `json:"messages"`
		Count    int               `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return out.Messages, nil
}

// ActorStats is the activity summary of one actor.
type ActorStats struct {
	ActorNumber      string            `json:"actor_number"`
	LastSeenAt       *time.Time        `json:"last_seen_at,omitempty"`
	LastSeenIP       string            `json:"last_seen_ip,omitempty"`
	Totals           map[string]int64  `json:"totals"`
	RequestsLastHour int64             `json:"requests_last_hour"`
	RequestsLast24h  int64             `json:"requests_last_24h"`
	UniqueIPsToday   int64             `json:"unique_ips_today"`
	Instances        map[string]string `json:"instances,omitempty"`
}

// ActorStats fetches activity statistics. An empty actor number asks for
// the caller's own.
func (c *EDIClient) ActorStats(actorNumber string) (*ActorStats, error) {
	if actorNumber == "" {
		actorNumber = "me"
	}
	httpReq, err := c.newRequest(http.MethodGet, "/api/actors/"+url.PathEscape(actorNumber)+"/stats", nil, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}

	var stats ActorStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &stats, nil
}

func (c *EDIClient) newRequest(method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequest(method, u, body)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// apiError reads the {"error": "..."} body the gateway answers with.
func apiError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return &APIError{StatusCode: resp.StatusCode, Message: body.Error}
}
