package documents

import (
	"bytes"
	"embed"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/telhawk-systems/edi-stack/edi/internal/models"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

// SchemaError lists the violations of one rendered document.
type SchemaError struct {
	DocumentType models.DocumentType
	Format       models.Format
	Violations   []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.DocumentType, e.Format.Code(), strings.Join(e.Violations, "; "))
}

func (e *SchemaError) Unwrap() error { return ErrSchemaValidation }

// SchemaValidator checks rendered documents: JSON against the embedded JSON
// schemas, XML for well-formedness, root element, namespace and the
// mandatory header and series elements.
type SchemaValidator struct {
	json map[models.DocumentType]*gojsonschema.Schema
}

// NewSchemaValidator compiles the embedded JSON schemas.
func NewSchemaValidator() (*SchemaValidator, error) {
	v := &SchemaValidator{json: make(map[models.DocumentType]*gojsonschema.Schema, len(cimDocuments))}
	for dt, doc := range cimDocuments {
		raw, err := schemaFS.ReadFile("schemas/" + doc.root + ".schema.json")
		if err != nil {
			return nil, fmt.Errorf("failed to read schema for %s: %w", dt, err)
		}
		schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
		if err != nil {
			return nil, fmt.Errorf("failed to compile schema for %s: %w", dt, err)
		}
		v.json[dt] = schema
	}
	return v, nil
}

// Validate returns a *SchemaError when doc does not match the schema of
// documentType in format.
func (v *SchemaValidator) Validate(format models.Format, documentType models.DocumentType, doc []byte) error {
	var violations []string
	var err error

	switch format {
	case models.FormatJSON:
		violations, err = v.validateJSON(documentType, doc)
	case models.FormatXML:
		cim, ok := cimDocuments[documentType]
		if !ok {
			return fmt.Errorf("%w: %s", ErrNoWriter, documentType)
		}
		violations = validateXML(doc, cim.root, cim.namespace, cimHeaderElements, "Series", []string{"mRID"})
	case models.FormatEbix:
		ebix, ok := ebixDocuments[documentType]
		if !ok {
			return fmt.Errorf("%w: %s", ErrNoWriter, documentType)
		}
		violations = validateXML(doc, ebix.root, ebix.namespace, ebixHeaderElements, "PayloadEnergyTimeSeries", []string{"Identification"})
	default:
		return fmt.Errorf("%w: format %s", ErrNoWriter, format)
	}
	if err != nil {
		return err
	}

	if len(violations) > 0 {
		return &SchemaError{DocumentType: documentType, Format: format, Violations: violations}
	}
	return nil
}

func (v *SchemaValidator) validateJSON(documentType models.DocumentType, doc []byte) ([]string, error) {
	schema, ok := v.json[documentType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoWriter, documentType)
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		// Unparseable input is a violation, not an infrastructure error.
		return []string{err.Error()}, nil
	}
	if result.Valid() {
		return nil, nil
	}
	violations := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		violations = append(violations, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
	}
	return violations, nil
}

var (
	cimHeaderElements = []string{
		"mRID",
		"type",
		"process.processType",
		"businessSector.type",
		"sender_MarketParticipant.mRID",
		"sender_MarketParticipant.marketRole.type",
		"receiver_MarketParticipant.mRID",
		"receiver_MarketParticipant.marketRole.type",
		"createdDateTime",
	}
	ebixHeaderElements = []string{
		"HeaderEnergyDocument",
		"ProcessEnergyContext",
	}
)

// validateXML walks doc once. Series elements must each contain the
// seriesRequired children and at least one series must exist.
func validateXML(doc []byte, root, namespace string, headerRequired []string, series string, seriesRequired []string) []string {
	var violations []string
	dec := xml.NewDecoder(bytes.NewReader(doc))

	depth := 0
	headerSeen := map[string]bool{}
	var seriesSeen map[string]bool
	seriesCount := 0

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			line, col := dec.InputPos()
			return append(violations, fmt.Sprintf("malformed XML at line %d, column %d: %v", line, col, err))
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			switch depth {
			case 1:
				if t.Name.Local != root {
					violations = append(violations, fmt.Sprintf("root element %q, expected %q", t.Name.Local, root))
				}
				if t.Name.Space != namespace {
					violations = append(violations, fmt.Sprintf("namespace %q, expected %q", t.Name.Space, namespace))
				}
			case 2:
				headerSeen[t.Name.Local] = true
				if t.Name.Local == series {
					seriesCount++
					seriesSeen = map[string]bool{}
				}
			case 3:
				if seriesSeen != nil {
					seriesSeen[t.Name.Local] = true
				}
			}
		case xml.EndElement:
			if depth == 2 && t.Name.Local == series && seriesSeen != nil {
				for _, name := range seriesRequired {
					if !seriesSeen[name] {
						violations = append(violations, fmt.Sprintf("%s %d is missing %s", series, seriesCount, name))
					}
				}
				seriesSeen = nil
			}
			depth--
		}
	}

	for _, name := range headerRequired {
		if !headerSeen[name] {
			violations = append(violations, "missing header element "+name)
		}
	}
	if seriesCount == 0 {
		violations = append(violations, "document has no "+series)
	}
	return slices.Compact(violations)
}
