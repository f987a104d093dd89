// Package documents renders outgoing market documents in CIM XML, ebIX XML
// and CIM JSON, and checks rendered documents against their schemas.
package documents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/telhawk-systems/edi-stack/edi/internal/models"
)

var (
	// ErrNotSupported is returned when a format cannot express the input,
	// such as mixed settlement versions in one ebIX document.
	ErrNotSupported = errors.New("not supported by document format")

	// ErrInvalidInput is returned when the header or a record fails
	// argument validation. Nothing is written.
	ErrInvalidInput = errors.New("invalid document input")

	// ErrNoWriter is returned when no writer handles a format and type.
	ErrNoWriter = errors.New("no writer for document type and format")

	// ErrSchemaValidation is returned when a rendered document does not
	// match its schema.
	ErrSchemaValidation = errors.New("document failed schema validation")
)

// DocumentWriter renders one document type in one format.
type DocumentWriter interface {
	HandlesFormat(format models.Format) bool
	HandlesType(documentType models.DocumentType) bool
	Write(ctx context.Context, header models.MarketDocumentHeader, records []json.RawMessage) ([]byte, error)
}

type writeFunc func(header models.MarketDocumentHeader, records []json.RawMessage) ([]byte, error)

// writer binds a write function to the format and type it serves.
type writer struct {
	format       models.Format
	documentType models.DocumentType
	write        writeFunc
}

func (w *writer) HandlesFormat(format models.Format) bool { return w.format == format }

func (w *writer) HandlesType(documentType models.DocumentType) bool {
	return w.documentType == documentType
}

func (w *writer) Write(ctx context.Context, header models.MarketDocumentHeader, records []json.RawMessage) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := models.Validate(header); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrInvalidInput, err)
	}
	if header.DocumentType != w.documentType {
		return nil, fmt.Errorf("%w: header document type %s, writer handles %s", ErrInvalidInput, header.DocumentType, w.documentType)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no records", ErrInvalidInput)
	}
	return w.write(header, records)
}

// decodeRecords unmarshals and validates every record.
func decodeRecords[T any](records []json.RawMessage) ([]T, error) {
	result := make([]T, 0, len(records))
	for i, raw := range records {
		var rec T
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrInvalidInput, i, err)
		}
		if err := models.Validate(rec); err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrInvalidInput, i, err)
		}
		result = append(result, rec)
	}
	return result, nil
}

// ValidateRecord checks that raw decodes into a valid record of
// documentType.
func ValidateRecord(documentType models.DocumentType, raw json.RawMessage) error {
	records := []json.RawMessage{raw}
	var err error
	switch documentType {
	case models.DocumentNotifyAggregatedMeasureData:
		_, err = decodeRecords[models.AggregatedMeasureDataRecord](records)
	case models.DocumentNotifyWholesaleServices:
		_, err = decodeRecords[models.WholesaleServicesRecord](records)
	case models.DocumentNotifyValidatedMeasureData:
		_, err = decodeRecords[models.MeasureDataRecord](records)
	case models.DocumentRejectRequestAggregatedMeasureData, models.DocumentRejectRequestWholesaleSettlement:
		_, err = decodeRecords[models.RejectedRequestRecord](records)
	default:
		err = fmt.Errorf("%w: %s is not an outgoing document type", ErrInvalidInput, documentType)
	}
	return err
}

// Registry picks the writer for a format and document type.
type Registry struct {
	writers []DocumentWriter
}

func NewRegistry(writers ...DocumentWriter) *Registry {
	return &Registry{writers: writers}
}

// DefaultRegistry returns a registry with every built-in writer.
func DefaultRegistry() *Registry {
	var writers []DocumentWriter
	writers = append(writers, CIMXMLWriters()...)
	writers = append(writers, EbixWriters()...)
	writers = append(writers, JSONWriters()...)
	return NewRegistry(writers...)
}

// Writer returns the first writer handling format and documentType.
func (r *Registry) Writer(format models.Format, documentType models.DocumentType) (DocumentWriter, error) {
	for _, w := range r.writers {
		if w.HandlesFormat(format) && w.HandlesType(documentType) {
			return w, nil
		}
	}
	return nil, fmt.Errorf("%w: %s as %s", ErrNoWriter, documentType, format)
}

// Supports reports whether a writer exists for format and documentType.
func (r *Registry) Supports(format models.Format, documentType models.DocumentType) bool {
	_, err := r.Writer(format, documentType)
	return err == nil
}

// Generator renders documents and passes them through the schema gate.
type Generator struct {
	registry *Registry
	schemas  *SchemaValidator
}

func NewGenerator(registry *Registry, schemas *SchemaValidator) *Generator {
	return &Generator{registry: registry, schemas: schemas}
}

// Generate renders a document and validates it. A document failing its
// schema is never returned.
func (g *Generator) Generate(ctx context.Context, format models.Format, header models.MarketDocumentHeader, records []json.RawMessage) ([]byte, error) {
	w, err := g.registry.Writer(format, header.DocumentType)
	if err != nil {
		return nil, err
	}
	doc, err := w.Write(ctx, header, records)
	if err != nil {
		return nil, err
	}
	if err := g.schemas.Validate(format, header.DocumentType, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// ContentType returns the media type of documents in format.
func ContentType(format models.Format) string {
	if format == models.FormatJSON {
		return "application/json"
	}
	return "application/xml"
}

// partyScheme returns the CIM coding scheme of a party number: A10 for
// 13-digit GLN, A01 for 16-character EIC.
func partyScheme(number string) string {
	if len(number) == 16 {
		return "A01"
	}
	return "A10"
}

// ebixAgency returns the ebIX scheme agency of a party number: 9 for GLN,
// 305 for EIC.
func ebixAgency(number string) string {
	if len(number) == 16 {
		return "305"
	}
	return "9"
}

const (
	createdLayout = "2006-01-02T15:04:05Z"
	periodLayout  = "2006-01-02T15:04Z"

	productEnergyActive = "8716867000030"
	productTariff       = "5790001330590"

	businessSectorElectricity = "23"
	gridAreaScheme            = "NDK"
	rejectReasonCode          = "A02"
)
