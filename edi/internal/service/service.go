// Package service implements the receive flow for incoming documents and
// the intake of outgoing messages.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/telhawk-systems/edi-stack/common/logging"
	"github.com/telhawk-systems/edi-stack/edi/internal/documents"
	"github.com/telhawk-systems/edi-stack/edi/internal/incoming"
	"github.com/telhawk-systems/edi-stack/edi/internal/metrics"
	"github.com/telhawk-systems/edi-stack/edi/internal/models"
	"github.com/telhawk-systems/edi-stack/edi/internal/repository"
	"github.com/telhawk-systems/edi-stack/edi/internal/validation"
)

var (
	// ErrInvalidRequest is returned for outgoing messages that cannot be
	// enqueued.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrUnsupportedDocument is returned when a document type or format is
	// not accepted inbound.
	ErrUnsupportedDocument = incoming.ErrUnsupportedDocument
)

// Delegations answers whether one actor may act for another.
type Delegations interface {
	IsDelegate(delegate, delegatedBy, roleCode, gridArea string) bool
}

// Archiver stores accepted incoming documents.
type Archiver interface {
	ArchiveIncoming(ctx context.Context, msg *models.IncomingMessage, format models.Format, body []byte) error
}

// EventPublisher announces validated incoming messages.
type EventPublisher interface {
	IncomingAccepted(ctx context.Context, msg *models.IncomingMessage) error
	IncomingRejected(ctx context.Context, msg *models.IncomingMessage, result *validation.Result) error
}

// Service receives incoming documents and enqueues outgoing messages.
type Service struct {
	repo        repository.Repository
	validator   *validation.Validator
	delegations Delegations
	archive     Archiver
	publisher   EventPublisher
	logger      *logging.Logger
	now         func() time.Time
}

// NewService creates the service. archive and publisher may be nil.
func NewService(repo repository.Repository, validator *validation.Validator, delegations Delegations,
	archive Archiver, publisher EventPublisher, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		repo:        repo,
		validator:   validator,
		delegations: delegations,
		archive:     archive,
		publisher:   publisher,
		logger:      logger,
		now:         time.Now,
	}
}

// ReceiveResult is the outcome of receiving one incoming document.
type ReceiveResult struct {
	Message *models.IncomingMessage
	*validation.Result
}

// ReceiveIncoming parses, validates and accepts an incoming document sent
// by actor. A document that fails parsing or validation yields an
// unsuccessful result, not an error. Identifiers of an accepted document
// are reserved, so a second submission of the same ids is rejected.
func (s *Service) ReceiveIncoming(ctx context.Context, actor models.ActorIdentity, documentType models.DocumentType,
	format models.Format, body []byte) (*ReceiveResult, error) {
	start := time.Now()
	metrics.IncomingBytesTotal.Add(float64(len(body)))
	log := s.logger.WithContext(ctx).With(
		logging.ActorNumber(actor.ActorNumber),
		logging.DocumentType(string(documentType)),
		logging.Format(format.Code()),
	)

	msg, err := incoming.Parse(documentType, format, body)
	if err != nil {
		var parseErr *incoming.ParseError
		if errors.As(err, &parseErr) {
			log.Info("incoming document rejected", logging.Error(err))
			return s.reject(ctx, nil, documentType, []models.ValidationError{models.SchemaValidationError(parseErr.Error())}), nil
		}
		return nil, err
	}
	log = log.With(logging.MessageID(msg.MessageID))

	s.markDelegated(msg, actor)

	result, err := s.validator.Validate(ctx, msg, actor)
	metrics.ValidationDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("validate incoming message: %w", err)
	}
	if !result.Success {
		log.Info("incoming document rejected", "codes", result.Codes())
		return s.reject(ctx, msg, documentType, result.Errors), nil
	}

	if err := s.repo.ReserveIdentifiers(ctx, msg.SenderNumber, msg.MessageID, msg.TransactionIDs()); err != nil {
		errs, lookupErr := s.duplicateErrors(ctx, msg, err)
		if lookupErr != nil {
			return nil, fmt.Errorf("reserve identifiers: %w", lookupErr)
		}
		log.Warn("identifiers registered concurrently", logging.Error(err))
		return s.reject(ctx, msg, documentType, errs), nil
	}

	if s.archive != nil {
		if err := s.archive.ArchiveIncoming(ctx, msg, format, body); err != nil {
			metrics.ArchiveErrors.WithLabelValues("incoming").Inc()
			log.Warn("failed to archive incoming document", logging.Error(err))
		}
	}

	if s.publisher != nil {
		// Identifiers are already reserved; failing here would turn a retry
		// into a duplicate rejection.
		if err := s.publisher.IncomingAccepted(ctx, msg); err != nil {
			metrics.EventPublishErrors.WithLabelValues("incoming_accepted").Inc()
			log.Warn("failed to publish accepted message event", logging.Error(err))
		}
	}

	metrics.IncomingTotal.WithLabelValues(string(documentType), "accepted").Inc()
	log.Info("incoming document accepted", logging.Count(len(msg.Series)))
	return &ReceiveResult{Message: msg, Result: result}, nil
}

func (s *Service) reject(ctx context.Context, msg *models.IncomingMessage, documentType models.DocumentType, errs []models.ValidationError) *ReceiveResult {
	result := validation.NewResult(errs)
	metrics.IncomingTotal.WithLabelValues(string(documentType), "rejected").Inc()
	for _, e := range errs {
		metrics.ValidationErrors.WithLabelValues(e.Code).Inc()
	}
	if msg != nil && s.publisher != nil {
		if err := s.publisher.IncomingRejected(ctx, msg, result); err != nil {
			s.logger.WithContext(ctx).Warn("failed to publish rejected message event", logging.Error(err))
		}
	}
	return &ReceiveResult{Message: msg, Result: result}
}

// markDelegated flags the series the actor sends on behalf of the sender.
func (s *Service) markDelegated(msg *models.IncomingMessage, actor models.ActorIdentity) {
	if s.delegations == nil || strings.EqualFold(actor.ActorNumber, msg.SenderNumber) {
		return
	}
	for i := range msg.Series {
		series := &msg.Series[i]
		series.IsDelegated = s.delegations.IsDelegate(actor.ActorNumber, msg.SenderNumber, msg.SenderRoleCode, series.GridArea)
	}
}

// duplicateErrors turns a lost reservation race into the validation errors
// the sender would have received had the other submission committed first.
func (s *Service) duplicateErrors(ctx context.Context, msg *models.IncomingMessage, reserveErr error) ([]models.ValidationError, error) {
	switch {
	case errors.Is(reserveErr, repository.ErrDuplicateMessageID):
		return []models.ValidationError{models.DuplicateMessageIDDetected(msg.MessageID)}, nil
	case errors.Is(reserveErr, repository.ErrDuplicateTransactionID):
		var errs []models.ValidationError
		for _, id := range msg.TransactionIDs() {
			exists, err := s.repo.TransactionIDExists(ctx, msg.SenderNumber, id)
			if err != nil {
				return nil, err
			}
			if exists {
				errs = append(errs, models.DuplicateTransactionIDDetected(id))
			}
		}
		if len(errs) == 0 {
			// The competing submission rolled back; report every id.
			for _, id := range msg.TransactionIDs() {
				errs = append(errs, models.DuplicateTransactionIDDetected(id))
			}
		}
		return errs, nil
	default:
		return nil, reserveErr
	}
}

// EnqueueRequest is a business-processing result to deliver to an actor.
type EnqueueRequest struct {
	ExternalID         string                `json:"external_id" validate:"required,max=64"`
	DocumentType       models.DocumentType   `json:"document_type" validate:"required,known"`
	Receiver           models.Actor          `json:"receiver"`
	BusinessReason     models.BusinessReason `json:"business_reason" validate:"required,known"`
	RelatedToMessageID string                `json:"related_to_message_id,omitempty" validate:"omitempty,max=36"`
	Record             json.RawMessage       `json:"record" validate:"required"`
}

// EnqueueOutgoing stores req as an outgoing message waiting to be bundled.
// A request whose ExternalID was already enqueued is ignored and created is
// false.
func (s *Service) EnqueueOutgoing(ctx context.Context, req *EnqueueRequest) (msg *models.OutgoingMessage, created bool, err error) {
	if err := models.Validate(req); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if req.DocumentType.Category() == "" {
		return nil, false, fmt.Errorf("%w: %s is not delivered to actors", ErrInvalidRequest, req.DocumentType)
	}
	if err := documents.ValidateRecord(req.DocumentType, req.Record); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, false, fmt.Errorf("generate message id: %w", err)
	}
	msg = &models.OutgoingMessage{
		ID:                 id,
		ExternalID:         req.ExternalID,
		DocumentType:       req.DocumentType,
		Receiver:           req.Receiver,
		BusinessReason:     req.BusinessReason,
		RelatedToMessageID: req.RelatedToMessageID,
		Record:             req.Record,
		CreatedAt:          s.now().UTC(),
	}

	if err := s.repo.AddOutgoingMessage(ctx, msg); err != nil {
		if errors.Is(err, repository.ErrDuplicateOutgoing) {
			metrics.OutgoingDuplicates.Inc()
			s.logger.WithContext(ctx).Debug("outgoing message already enqueued", "external_id", req.ExternalID)
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("store outgoing message: %w", err)
	}

	metrics.OutgoingEnqueued.WithLabelValues(string(req.DocumentType)).Inc()
	return msg, true, nil
}
