// Package archive stores accepted incoming documents and rendered outgoing
// documents in OpenSearch and searches them.
package archive

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"

	"github.com/telhawk-systems/edi-stack/common/audit"
	"github.com/telhawk-systems/edi-stack/edi/internal/models"
)

type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

const defaultSearchLimit = 100

// ErrUnavailable is returned when OpenSearch answers with an error status.
var ErrUnavailable = errors.New("archive unavailable")

// Config holds OpenSearch connection settings for the archive.
type Config struct {
	URL           string
	Username      string
	Password      string
	TLSSkipVerify bool
	Index         string
	// SigningKey enables HMAC signatures on archived entries when set.
	SigningKey string
}

func DefaultConfig() Config {
	return Config{
		URL:           "https://localhost:9200",
		Username:      "admin",
		Password:      "admin",
		TLSSkipVerify: true,
		Index:         "edi-archived-messages",
	}
}

// ArchivedMessage is one archived document with its routing metadata.
type ArchivedMessage struct {
	ID             string    `json:"id"`
	Direction      Direction `json:"direction"`
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
	// Verified is set on search results when the signature checks out.
	Verified bool `json:"verified,omitempty"`
}

// SearchCriteria filters archive searches. Empty fields do not filter.
// ActorNumber limits results to documents the actor sent or received.
type SearchCriteria struct {
	MessageID      string
	SenderNumber   string
	ReceiverNumber string
	DocumentType   string
	ActorNumber    string
	From           *time.Time
	To             *time.Time
	Limit          int
}

// Archive is an OpenSearch backed message archive.
type Archive struct {
	client *opensearch.Client
	index  string
	signer *audit.DocumentSigner
	now    func() time.Time
}

// NewArchive creates an archive client. Call Initialize before use.
func NewArchive(cfg Config) (*Archive, error) {
	httpClient := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.TLSSkipVerify,
			},
		},
	}

	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: httpClient.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create opensearch client: %w", err)
	}

	index := cfg.Index
	if index == "" {
		index = DefaultConfig().Index
	}
	a := &Archive{client: client, index: index, now: time.Now}
	if cfg.SigningKey != "" {
		a.signer = audit.NewDocumentSigner(cfg.SigningKey)
	}
	return a, nil
}

// Initialize verifies the connection and creates the index when missing.
func (a *Archive) Initialize(ctx context.Context) error {
	info, err := a.client.Info(a.client.Info.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to connect to opensearch: %w", err)
	}
	defer info.Body.Close()
	if info.IsError() {
		return fmt.Errorf("%w: %s", ErrUnavailable, info.Status())
	}

	exists, err := a.client.Indices.Exists([]string{a.index}, a.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to check archive index: %w", err)
	}
	defer exists.Body.Close()
	if exists.StatusCode == http.StatusOK {
		return nil
	}

	body, err := json.Marshal(indexDefinition())
	if err != nil {
		return err
	}
	res, err := a.client.Indices.Create(a.index,
		a.client.Indices.Create.WithContext(ctx),
		a.client.Indices.Create.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return fmt.Errorf("failed to create archive index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		detail, _ := io.ReadAll(res.Body)
		return fmt.Errorf("%w: create index: %s - %s", ErrUnavailable, res.Status(), string(detail))
	}
	return nil
}

func indexDefinition() map[string]any {
	keyword := map[string]string{"type": "keyword"}
	return map[string]any{
		"settings": map[string]any{
			"number_of_shards":   1,
			"number_of_replicas": 0,
		},
		"mappings": map[string]any{
			"properties": map[string]any{
				"id":              keyword,
				"direction":       keyword,
				"message_id":      keyword,
				"document_type":   keyword,
				"business_reason": keyword,
				"sender_number":   keyword,
				"sender_role":     keyword,
				"receiver_number": keyword,
				"receiver_role":   keyword,
				"format":          keyword,
				"bundle_id":       keyword,
				"created_at":      map[string]string{"type": "date"},
				"archived_at":     map[string]string{"type": "date"},
				"document":        map[string]any{"type": "text", "index": false},
				"signature":       map[string]any{"type": "keyword", "index": false},
			},
		},
	}
}

// ArchiveIncoming stores an accepted incoming document.
func (a *Archive) ArchiveIncoming(ctx context.Context, msg *models.IncomingMessage, format models.Format, body []byte) error {
	return a.Store(ctx, &ArchivedMessage{
		ID:             "in:" + msg.SenderNumber + ":" + msg.MessageID,
		Direction:      DirectionIncoming,
		MessageID:      msg.MessageID,
		DocumentType:   string(msg.DocumentType),
		BusinessReason: msg.BusinessReason,
		SenderNumber:   msg.SenderNumber,
		SenderRole:     msg.SenderRoleCode,
		ReceiverNumber: msg.ReceiverNumber,
		ReceiverRole:   msg.ReceiverRoleCode,
		Format:         format.Code(),
		CreatedAt:      msg.CreatedAt,
		Document:       string(body),
	})
}

// ArchiveOutgoing stores the rendering of a bundle in one format. Archiving
// the same bundle and format again replaces the entry.
func (a *Archive) ArchiveOutgoing(ctx context.Context, bundle *models.Bundle, sender models.Actor, format models.Format, doc []byte) error {
	return a.Store(ctx, &ArchivedMessage{
		ID:             "out:" + bundle.ID.String() + ":" + format.Code(),
		Direction:      DirectionOutgoing,
		MessageID:      bundle.MessageID,
		DocumentType:   string(bundle.DocumentType),
		BusinessReason: bundle.BusinessReason.Code(),
		SenderNumber:   sender.Number,
		SenderRole:     sender.Role.Code(),
		ReceiverNumber: bundle.Receiver.Number,
		ReceiverRole:   bundle.Receiver.Role.Code(),
		Format:         format.Code(),
		BundleID:       bundle.ID.String(),
		CreatedAt:      bundle.CreatedAt,
		Document:       string(doc),
	})
}

// Store indexes msg under msg.ID.
func (a *Archive) Store(ctx context.Context, msg *ArchivedMessage) error {
	if msg.ArchivedAt.IsZero() {
		msg.ArchivedAt = a.now().UTC()
	}
	msg.Verified = false
	if a.signer != nil {
		msg.Signature = a.signer.Sign(msg.ID, string(msg.Direction), msg.ArchivedAt, []byte(msg.Document))
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal archived message: %w", err)
	}

	res, err := a.client.Index(a.index, bytes.NewReader(body),
		a.client.Index.WithContext(ctx),
		a.client.Index.WithDocumentID(msg.ID),
	)
	if err != nil {
		return fmt.Errorf("failed to archive message: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		detail, _ := io.ReadAll(res.Body)
		return fmt.Errorf("%w: %s - %s", ErrUnavailable, res.Status(), string(detail))
	}
	return nil
}

// Verify reports whether msg carries a valid signature. It is always false
// when the archive has no signing key.
func (a *Archive) Verify(msg *ArchivedMessage) bool {
	if a.signer == nil || msg.Signature == "" {
		return false
	}
	return a.signer.Verify(msg.ID, string(msg.Direction), msg.ArchivedAt, []byte(msg.Document), msg.Signature)
}

// Search returns archived messages matching criteria, newest first.
func (a *Archive) Search(ctx context.Context, criteria SearchCriteria) ([]*ArchivedMessage, error) {
	limit := criteria.Limit
	if limit <= 0 || limit > 1000 {
		limit = defaultSearchLimit
	}

	body, err := json.Marshal(map[string]any{
		"query": buildQuery(criteria),
		"size":  limit,
		"sort": []map[string]any{
			{"created_at": map[string]string{"order": "desc"}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search body: %w", err)
	}

	res, err := a.client.Search(
		a.client.Search.WithContext(ctx),
		a.client.Search.WithIndex(a.index),
		a.client.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search archive: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		detail, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("%w: %s - %s", ErrUnavailable, res.Status(), string(detail))
	}

	var result struct {
		Hits struct {
			Hits []struct {
				Source ArchivedMessage `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	messages := make([]*ArchivedMessage, 0, len(result.Hits.Hits))
	for i := range result.Hits.Hits {
		msg := &result.Hits.Hits[i].Source
		msg.Verified = a.Verify(msg)
		messages = append(messages, msg)
	}
	return messages, nil
}

func buildQuery(c SearchCriteria) map[string]any {
	var filter []map[string]any
	term := func(field, value string) {
		if value != "" {
			filter = append(filter, map[string]any{"term": map[string]string{field: value}})
		}
	}
	term("message_id", c.MessageID)
	term("sender_number", c.SenderNumber)
	term("receiver_number", c.ReceiverNumber)
	term("document_type", c.DocumentType)

	if c.From != nil || c.To != nil {
		r := map[string]string{}
		if c.From != nil {
			r["gte"] = c.From.UTC().Format(time.RFC3339)
		}
		if c.To != nil {
			r["lte"] = c.To.UTC().Format(time.RFC3339)
		}
		filter = append(filter, map[string]any{"range": map[string]any{"created_at": r}})
	}

	if c.ActorNumber != "" {
		filter = append(filter, map[string]any{
			"bool": map[string]any{
				"should": []map[string]any{
					{"term": map[string]string{"sender_number": c.ActorNumber}},
					{"term": map[string]string{"receiver_number": c.ActorNumber}},
				},
				"minimum_should_match": 1,
			},
		})
	}

	if len(filter) == 0 {
		return map[string]any{"match_all": map[string]any{}}
	}
	return map[string]any{"bool": map[string]any{"filter": filter}}
}
