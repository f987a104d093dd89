// Package queue exposes each actor's bundles one at a time through Peek
// and Dequeue.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/telhawk-systems/edi-stack/common/logging"
	"github.com/telhawk-systems/edi-stack/edi/internal/documents"
	"github.com/telhawk-systems/edi-stack/edi/internal/metrics"
	"github.com/telhawk-systems/edi-stack/edi/internal/models"
	"github.com/telhawk-systems/edi-stack/edi/internal/repository"
)

var (
	// ErrNoContent is returned by Peek when the actor has nothing queued in
	// the category.
	ErrNoContent = errors.New("no bundle ready")
	// ErrBundleNotFound is returned by Dequeue for a bundle that is unknown,
	// owned by another actor, or not at the head of its queue.
	ErrBundleNotFound = repository.ErrBundleNotFound
	// ErrInvalidRequest is returned for unknown categories or formats.
	ErrInvalidRequest = errors.New("invalid queue request")
)

// DocumentCache holds rendered bundles per format.
type DocumentCache interface {
	Get(ctx context.Context, bundleID uuid.UUID, format models.Format) ([]byte, bool, error)
	Set(ctx context.Context, bundleID uuid.UUID, format models.Format, doc []byte) error
	Invalidate(ctx context.Context, bundleID uuid.UUID) error
}

// Archiver stores the first rendering of a bundle in each format.
type Archiver interface {
	ArchiveOutgoing(ctx context.Context, bundle *models.Bundle, sender models.Actor, format models.Format, doc []byte) error
}

// Notifier is told about dequeued bundles.
type Notifier interface {
	BundleDequeued(ctx context.Context, bundle *models.Bundle) error
}

// PeekResult is the bundle currently at the head of a queue, rendered.
type PeekResult struct {
	BundleID     uuid.UUID
	MessageID    string
	DocumentType models.DocumentType
	Format       models.Format
	ContentType  string
	Document     []byte
}

// Service serves peek and dequeue requests.
type Service struct {
	store     repository.QueueStore
	generator *documents.Generator
	sender    models.Actor
	cache     DocumentCache
	archive   Archiver
	notifier  Notifier
	logger    *logging.Logger
	now       func() time.Time
}

// Option configures optional collaborators of the Service.
type Option func(*Service)

func WithCache(c DocumentCache) Option      { return func(s *Service) { s.cache = c } }
func WithArchive(a Archiver) Option         { return func(s *Service) { s.archive = a } }
func WithNotifier(n Notifier) Option        { return func(s *Service) { s.notifier = n } }
func WithLogger(l *logging.Logger) Option   { return func(s *Service) { s.logger = l } }
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// NewService creates a queue service. sender is the actor written as the
// sender of every outgoing document.
func NewService(store repository.QueueStore, generator *documents.Generator, sender models.Actor, opts ...Option) *Service {
	s := &Service{
		store:     store,
		generator: generator,
		sender:    sender,
		logger:    logging.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Peek returns the oldest undequeued bundle of actor in category rendered
// in format. Peek does not change queue state; repeated calls return the
// same bundle and the same bytes until it is dequeued.
func (s *Service) Peek(ctx context.Context, actor models.Actor, category models.Category, format models.Format) (*PeekResult, error) {
	if !category.Valid() {
		return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidRequest, category)
	}
	if !format.Valid() {
		return nil, fmt.Errorf("%w: unknown format %q", ErrInvalidRequest, format)
	}

	head, err := s.store.OldestBundle(ctx, actor, category.DocumentTypes())
	if errors.Is(err, repository.ErrBundleNotFound) {
		metrics.PeeksTotal.WithLabelValues(category.Code(), format.Code(), "empty").Inc()
		return nil, ErrNoContent
	}
	if err != nil {
		return nil, fmt.Errorf("find queue head: %w", err)
	}

	doc, err := s.document(ctx, head, format)
	if err != nil {
		metrics.PeeksTotal.WithLabelValues(category.Code(), format.Code(), "error").Inc()
		return nil, err
	}

	metrics.PeeksTotal.WithLabelValues(category.Code(), format.Code(), "ok").Inc()
	return &PeekResult{
		BundleID:     head.ID,
		MessageID:    head.MessageID,
		DocumentType: head.DocumentType,
		Format:       format,
		ContentType:  documents.ContentType(format),
		Document:     doc,
	}, nil
}

// document returns the cached rendering of bundle or renders, caches and
// archives it.
func (s *Service) document(ctx context.Context, bundle *models.Bundle, format models.Format) ([]byte, error) {
	log := s.logger.WithContext(ctx).With(
		logging.BundleID(bundle.ID.String()),
		logging.Format(format.Code()),
	)

	if s.cache != nil {
		doc, ok, err := s.cache.Get(ctx, bundle.ID, format)
		if err != nil {
			log.Warn("document cache read failed", logging.Error(err))
		}
		if ok {
			return doc, nil
		}
	}

	doc, err := s.render(ctx, bundle, format)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, bundle.ID, format, doc); err != nil {
			log.Warn("document cache write failed", logging.Error(err))
		} else if cached, ok, err := s.cache.Get(ctx, bundle.ID, format); err == nil && ok {
			// A concurrent peek may have cached first.
			doc = cached
		}
	}

	if s.archive != nil {
		if err := s.archive.ArchiveOutgoing(ctx, bundle, s.sender, format, doc); err != nil {
			metrics.ArchiveErrors.WithLabelValues("outgoing").Inc()
			log.Warn("failed to archive outgoing document", logging.Error(err))
		}
	}
	return doc, nil
}

func (s *Service) render(ctx context.Context, bundle *models.Bundle, format models.Format) ([]byte, error) {
	start := time.Now()
	messages, err := s.store.BundleMessages(ctx, bundle.ID)
	if err != nil {
		return nil, fmt.Errorf("load bundle messages: %w", err)
	}

	records := make([]json.RawMessage, 0, len(messages))
	for _, msg := range messages {
		records = append(records, msg.Record)
	}

	header := models.MarketDocumentHeader{
		MessageID:          bundle.MessageID,
		DocumentType:       bundle.DocumentType,
		Sender:             s.sender,
		Receiver:           bundle.Receiver,
		BusinessReason:     bundle.BusinessReason,
		CreatedAt:          bundle.CreatedAt,
		RelatedToMessageID: bundle.RelatedToMessageID,
	}

	doc, err := s.generator.Generate(ctx, format, header, records)
	if err != nil {
		return nil, fmt.Errorf("render bundle %s as %s: %w", bundle.ID, format.Code(), err)
	}
	metrics.DocumentRenderDuration.WithLabelValues(format.Code()).Observe(time.Since(start).Seconds())
	return doc, nil
}

// Dequeue acknowledges bundleID for actor. Dequeuing an already dequeued
// bundle succeeds without change. A bundle that is unknown, belongs to
// another actor, or is not the head of its category fails with
// ErrBundleNotFound.
func (s *Service) Dequeue(ctx context.Context, actor models.Actor, bundleID uuid.UUID) error {
	bundle, err := s.store.GetBundle(ctx, bundleID)
	if errors.Is(err, repository.ErrBundleNotFound) {
		metrics.DequeuesTotal.WithLabelValues("not_found").Inc()
		return ErrBundleNotFound
	}
	if err != nil {
		return fmt.Errorf("load bundle: %w", err)
	}
	if bundle.Receiver != actor {
		metrics.DequeuesTotal.WithLabelValues("not_found").Inc()
		return ErrBundleNotFound
	}
	if bundle.IsDequeued() {
		metrics.DequeuesTotal.WithLabelValues("repeat").Inc()
		return nil
	}

	head, err := s.store.OldestBundle(ctx, actor, bundle.Category().DocumentTypes())
	if err != nil && !errors.Is(err, repository.ErrBundleNotFound) {
		return fmt.Errorf("find queue head: %w", err)
	}
	if head == nil || head.ID != bundle.ID {
		// The head moves when a concurrent call dequeued this bundle.
		if current, err := s.store.GetBundle(ctx, bundleID); err == nil && current.IsDequeued() {
			metrics.DequeuesTotal.WithLabelValues("repeat").Inc()
			return nil
		}
		metrics.DequeuesTotal.WithLabelValues("not_head").Inc()
		return ErrBundleNotFound
	}

	at := s.now().UTC()
	dequeued, err := s.store.MarkDequeued(ctx, bundle.ID, at)
	if err != nil {
		return fmt.Errorf("mark bundle dequeued: %w", err)
	}
	if !dequeued {
		metrics.DequeuesTotal.WithLabelValues("repeat").Inc()
		return nil
	}
	metrics.DequeuesTotal.WithLabelValues("ok").Inc()
	bundle.DequeuedAt = &at

	log := s.logger.WithContext(ctx)
	log.Info("bundle dequeued",
		logging.ActorNumber(actor.Number),
		logging.BundleID(bundle.ID.String()),
		logging.DocumentType(string(bundle.DocumentType)),
		logging.Count(len(bundle.MessageIDs)),
	)

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, bundle.ID); err != nil {
			log.Warn("document cache invalidation failed", logging.Error(err))
		}
	}
	if s.notifier != nil {
		if err := s.notifier.BundleDequeued(ctx, bundle); err != nil {
			log.Warn("failed to publish bundle dequeued event", logging.Error(err))
		}
	}
	return nil
}
