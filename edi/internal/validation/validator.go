// Package validation runs the header and transaction checks of an incoming
// message and aggregates their errors into a Result.
package validation

import (
	"context"
	"errors"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	cerrors "github.com/telhawk-systems/edi-stack/common/errors"
	"github.com/telhawk-systems/edi-stack/edi/internal/authorization"
	"github.com/telhawk-systems/edi-stack/edi/internal/models"
)

const component = "IncomingMessageValidator"

// ErrNilMessage is returned when Validate is called without a message.
var ErrNilMessage = errors.New("validation: message is nil")

// Result is the outcome of validating one message. Success is true exactly
// when Errors is empty.
type Result struct {
	Success bool                     `json:"success"`
	Errors  []models.ValidationError `json:"errors,omitempty"`
}

// NewResult builds a Result from errs.
func NewResult(errs []models.ValidationError) *Result {
	return &Result{Success: len(errs) == 0, Errors: errs}
}

// Codes returns the error codes in result order.
func (r *Result) Codes() []string {
	codes := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		codes = append(codes, e.Code)
	}
	return codes
}

// IdentifierChecker looks up persisted identifiers for a sender.
type IdentifierChecker interface {
	MessageIDExists(ctx context.Context, senderNumber, messageID string) (bool, error)
	TransactionIDExists(ctx context.Context, senderNumber, transactionID string) (bool, error)
}

// CodeRules lists the codes allowed per incoming document type.
type CodeRules interface {
	MessageTypeAllowed(dt models.DocumentType, code string) bool
	BusinessReasonAllowed(dt models.DocumentType, code string) bool
	BusinessTypeAllowed(dt models.DocumentType, code string) bool
}

// Validator validates incoming messages.
type Validator struct {
	identifiers IdentifierChecker
	sender      *authorization.SenderAuthorizer
	receiver    *authorization.ReceiverValidator
	rules       CodeRules
}

func NewValidator(identifiers IdentifierChecker, sender *authorization.SenderAuthorizer,
	receiver *authorization.ReceiverValidator, rules CodeRules) *Validator {
	return &Validator{
		identifiers: identifiers,
		sender:      sender,
		receiver:    receiver,
		rules:       rules,
	}
}

// check slots, in result order
const (
	slotAuthorization = iota
	slotReceiver
	slotMessageID
	slotMessageType
	slotBusinessReason
	slotBusinessType
	slotCount
)

// Validate runs the header checks concurrently, then the transaction id
// checks in series order. Validation failures are reported in the Result;
// an error is returned only for a nil message, cancellation, or a store
// failure, in which case no Result is returned.
func (v *Validator) Validate(ctx context.Context, msg *models.IncomingMessage, actor models.ActorIdentity) (*Result, error) {
	if msg == nil {
		return nil, ErrNilMessage
	}

	var slots [slotCount][]models.ValidationError
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slots[slotAuthorization] = v.sender.Authorize(msg.SenderNumber, msg.SenderRoleCode, actor, msg.AllSeriesDelegated())
		return nil
	})
	g.Go(func() error {
		slots[slotReceiver] = v.receiver.Validate(msg.ReceiverNumber, msg.ReceiverRoleCode)
		return nil
	})
	g.Go(func() error {
		errs, err := v.checkMessageID(gctx, msg.SenderNumber, msg.MessageID)
		slots[slotMessageID] = errs
		return err
	})
	g.Go(func() error {
		if !v.rules.MessageTypeAllowed(msg.DocumentType, msg.MessageType) {
			slots[slotMessageType] = []models.ValidationError{models.NotSupportedMessageType(msg.MessageType)}
		}
		return nil
	})
	g.Go(func() error {
		if !v.rules.BusinessReasonAllowed(msg.DocumentType, msg.BusinessReason) {
			slots[slotBusinessReason] = []models.ValidationError{models.NotSupportedProcessType(msg.BusinessReason)}
		}
		return nil
	})
	g.Go(func() error {
		if !v.rules.BusinessTypeAllowed(msg.DocumentType, msg.BusinessType) {
			slots[slotBusinessType] = []models.ValidationError{models.InvalidBusinessType(msg.BusinessType)}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, failure(ctx, err, "checkMessageID")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var errs []models.ValidationError
	for _, slot := range slots {
		errs = append(errs, slot...)
	}

	seriesErrs, err := v.checkTransactionIDs(ctx, msg)
	if err != nil {
		return nil, failure(ctx, err, "checkTransactionIDs")
	}
	errs = append(errs, seriesErrs...)

	return NewResult(errs), nil
}

func (v *Validator) checkMessageID(ctx context.Context, senderNumber, messageID string) ([]models.ValidationError, error) {
	switch {
	case messageID == "":
		return []models.ValidationError{models.EmptyMessageID()}, nil
	case utf8.RuneCountInString(messageID) > models.MaxIdentifierLength:
		return []models.ValidationError{models.InvalidMessageIDSize(messageID)}, nil
	}

	exists, err := v.identifiers.MessageIDExists(ctx, senderNumber, messageID)
	if err != nil {
		return nil, err
	}
	if exists {
		return []models.ValidationError{models.DuplicateMessageIDDetected(messageID)}, nil
	}
	return nil, nil
}

// checkTransactionIDs runs sequentially: each series must see the ids
// staged by the series before it.
func (v *Validator) checkTransactionIDs(ctx context.Context, msg *models.IncomingMessage) ([]models.ValidationError, error) {
	var errs []models.ValidationError
	staged := make(map[string]struct{}, len(msg.Series))

	for _, series := range msg.Series {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		id := series.TransactionID
		if id == "" {
			errs = append(errs, models.EmptyTransactionID())
			continue
		}
		if utf8.RuneCountInString(id) > models.MaxIdentifierLength {
			errs = append(errs, models.InvalidTransactionIDSize(id))
			continue
		}

		exists, err := v.identifiers.TransactionIDExists(ctx, msg.SenderNumber, id)
		if err != nil {
			return nil, err
		}
		if exists {
			errs = append(errs, models.DuplicateTransactionIDDetected(id))
			continue
		}

		if _, dup := staged[id]; dup {
			errs = append(errs, models.DuplicateTransactionIDDetected(id))
			continue
		}
		staged[id] = struct{}{}
	}
	return errs, nil
}

// failure returns cancellation as-is and everything else as a transient
// store error.
func failure(ctx context.Context, err error, operation string) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.Canceled) || cerrors.IsTransient(err) {
		return err
	}
	return cerrors.WrapTransient(err, component, operation)
}
