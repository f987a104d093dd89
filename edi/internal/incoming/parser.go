// Package incoming parses inbound CIM JSON and CIM XML request documents.
package incoming

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/telhawk-systems/edi-stack/edi/internal/models"
)

var (
	// ErrMalformedDocument is the cause of every ParseError.
	ErrMalformedDocument = errors.New("malformed document")
	// ErrUnsupportedDocument is returned for document types or formats
	// that are not accepted inbound.
	ErrUnsupportedDocument = errors.New("unsupported incoming document")
)

// ParseError describes a structural problem in an incoming document. Line
// and Column are 1-based and zero when unknown.
type ParseError struct {
	Format models.Format
	Line   int
	Column int
	Reason string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("invalid %s document at line %d, column %d: %s", e.Format.Code(), e.Line, e.Column, e.Reason)
	}
	return fmt.Sprintf("invalid %s document: %s", e.Format.Code(), e.Reason)
}

func (e *ParseError) Unwrap() error { return ErrMalformedDocument }

// roots maps incoming document types to their root element name.
var roots = map[models.DocumentType]string{
	models.DocumentRequestAggregatedMeasureData: "RequestAggregatedMeasureData_MarketDocument",
	models.DocumentRequestWholesaleSettlement:   "RequestWholesaleSettlement_MarketDocument",
	models.DocumentForwardMeteredData:           "NotifyValidatedMeasureData_MarketDocument",
}

// Supports reports whether documentType is accepted inbound.
func Supports(documentType models.DocumentType) bool {
	_, ok := roots[documentType]
	return ok
}

// Parse reads body as an incoming document of documentType. Only CIM XML
// and CIM JSON are accepted.
func Parse(documentType models.DocumentType, format models.Format, body []byte) (*models.IncomingMessage, error) {
	root, ok := roots[documentType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDocument, documentType)
	}

	var doc marketDocument
	var err error
	switch format {
	case models.FormatJSON:
		err = decodeJSON(body, root, &doc)
	case models.FormatXML:
		err = decodeXML(body, root, &doc)
	default:
		return nil, fmt.Errorf("%w: format %s", ErrUnsupportedDocument, format)
	}
	if err != nil {
		return nil, err
	}
	return doc.toMessage(documentType, format)
}

type codedValue struct {
	Value        string `json:"value" xml:",chardata"`
	CodingScheme string `json:"codingScheme,omitempty" xml:"codingScheme,attr,omitempty"`
}

func (c *codedValue) value() string {
	if c == nil {
		return ""
	}
	return c.Value
}

type marketDocument struct {
	MRID                   string       `json:"mRID" xml:"mRID"`
	Type                   codedValue   `json:"type" xml:"type"`
	ProcessType            codedValue   `json:"process.processType" xml:"process.processType"`
	BusinessSectorType     codedValue   `json:"businessSector.type" xml:"businessSector.type"`
	SenderMRID             codedValue   `json:"sender_MarketParticipant.mRID" xml:"sender_MarketParticipant.mRID"`
	SenderMarketRoleType   codedValue   `json:"sender_MarketParticipant.marketRole.type" xml:"sender_MarketParticipant.marketRole.type"`
	ReceiverMRID           codedValue   `json:"receiver_MarketParticipant.mRID" xml:"receiver_MarketParticipant.mRID"`
	ReceiverMarketRoleType codedValue   `json:"receiver_MarketParticipant.marketRole.type" xml:"receiver_MarketParticipant.marketRole.type"`
	CreatedDateTime        string       `json:"createdDateTime" xml:"createdDateTime"`
	Series                 []seriesData `json:"Series" xml:"Series"`
}

type chargeType struct {
	MRID string     `json:"mRID" xml:"mRID"`
	Type codedValue `json:"type" xml:"type"`
}

type periodData struct {
	Resolution   string `json:"resolution" xml:"resolution"`
	TimeInterval struct {
		Start codedValue `json:"start" xml:"start"`
		End   codedValue `json:"end" xml:"end"`
	} `json:"timeInterval" xml:"timeInterval"`
	Points []struct{} `json:"Point" xml:"Point"`
}

type seriesData struct {
	MRID                      string       `json:"mRID" xml:"mRID"`
	MarketEvaluationPointMRID *codedValue  `json:"marketEvaluationPoint.mRID" xml:"marketEvaluationPoint.mRID"`
	MarketEvaluationPointType *codedValue  `json:"marketEvaluationPoint.type" xml:"marketEvaluationPoint.type"`
	SettlementMethod          *codedValue  `json:"marketEvaluationPoint.settlementMethod" xml:"marketEvaluationPoint.settlementMethod"`
	SettlementVersion         *codedValue  `json:"settlement_Series.version" xml:"settlement_Series.version"`
	Start                     string       `json:"start_DateAndOrTime.dateTime" xml:"start_DateAndOrTime.dateTime"`
	End                       string       `json:"end_DateAndOrTime.dateTime" xml:"end_DateAndOrTime.dateTime"`
	GridArea                  *codedValue  `json:"meteringGridArea_Domain.mRID" xml:"meteringGridArea_Domain.mRID"`
	EnergySupplier            *codedValue  `json:"energySupplier_MarketParticipant.mRID" xml:"energySupplier_MarketParticipant.mRID"`
	BalanceResponsible        *codedValue  `json:"balanceResponsibleParty_MarketParticipant.mRID" xml:"balanceResponsibleParty_MarketParticipant.mRID"`
	AggregationResolution     *codedValue  `json:"aggregationSeries_Period.resolution" xml:"aggregationSeries_Period.resolution"`
	ChargeTypes               []chargeType `json:"ChargeType" xml:"ChargeType"`
	Period                    *periodData  `json:"Period" xml:"Period"`
}

func (d *marketDocument) toMessage(documentType models.DocumentType, format models.Format) (*models.IncomingMessage, error) {
	var createdAt time.Time
	if d.CreatedDateTime != "" {
		t, err := time.Parse(time.RFC3339, d.CreatedDateTime)
		if err != nil {
			return nil, &ParseError{Format: format, Reason: fmt.Sprintf("createdDateTime %q is not a valid timestamp", d.CreatedDateTime)}
		}
		createdAt = t.UTC()
	}

	msg := &models.IncomingMessage{
		DocumentType:     documentType,
		MessageID:        d.MRID,
		SenderNumber:     d.SenderMRID.Value,
		SenderRoleCode:   d.SenderMarketRoleType.Value,
		ReceiverNumber:   d.ReceiverMRID.Value,
		ReceiverRoleCode: d.ReceiverMarketRoleType.Value,
		MessageType:      d.Type.Value,
		BusinessReason:   d.ProcessType.Value,
		BusinessType:     d.BusinessSectorType.Value,
		CreatedAt:        createdAt,
		Series:           make([]models.Series, 0, len(d.Series)),
	}

	for _, s := range d.Series {
		series := models.Series{
			TransactionID:            s.MRID,
			GridArea:                 s.GridArea.value(),
			MeteringPointID:          s.MarketEvaluationPointMRID.value(),
			MeteringPointType:        s.MarketEvaluationPointType.value(),
			SettlementMethod:         s.SettlementMethod.value(),
			SettlementVersion:        s.SettlementVersion.value(),
			EnergySupplierNumber:     s.EnergySupplier.value(),
			BalanceResponsibleNumber: s.BalanceResponsible.value(),
			Resolution:               s.AggregationResolution.value(),
			PeriodStart:              s.Start,
			PeriodEnd:                s.End,
		}
		for _, ct := range s.ChargeTypes {
			series.ChargeTypes = append(series.ChargeTypes, ct.Type.Value)
		}
		if p := s.Period; p != nil {
			if p.Resolution != "" {
				series.Resolution = p.Resolution
			}
			if series.PeriodStart == "" {
				series.PeriodStart = p.TimeInterval.Start.Value
			}
			if series.PeriodEnd == "" {
				series.PeriodEnd = p.TimeInterval.End.Value
			}
			series.PointCount = len(p.Points)
		}
		msg.Series = append(msg.Series, series)
	}
	return msg, nil
}

func decodeJSON(body []byte, root string, doc *marketDocument) error {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return jsonParseError(body, err)
	}
	inner, ok := envelope[root]
	if !ok || len(envelope) != 1 {
		return &ParseError{Format: models.FormatJSON, Reason: fmt.Sprintf("expected a single %s root object", root)}
	}
	if err := json.Unmarshal(inner, doc); err != nil {
		// Offsets inside inner are relative to the root object.
		return jsonParseError(inner, err)
	}
	return nil
}

func jsonParseError(body []byte, err error) *ParseError {
	var offset int64 = -1
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr):
		offset = syntaxErr.Offset
	case errors.As(err, &typeErr):
		offset = typeErr.Offset
	}

	pe := &ParseError{Format: models.FormatJSON, Reason: err.Error()}
	if offset >= 0 {
		pe.Line, pe.Column = position(body, offset)
	}
	return pe
}

// position converts a byte offset into a 1-based line and column.
func position(body []byte, offset int64) (line, column int) {
	if offset > int64(len(body)) {
		offset = int64(len(body))
	}
	prefix := body[:offset]
	line = bytes.Count(prefix, []byte("\n")) + 1
	column = int(offset) - (bytes.LastIndexByte(prefix, '\n') + 1)
	if column == 0 {
		column = 1
	}
	return line, column
}

func decodeXML(body []byte, root string, doc *marketDocument) error {
	dec := xml.NewDecoder(bytes.NewReader(body))
	fail := func(reason string) error {
		line, column := dec.InputPos()
		return &ParseError{Format: models.FormatXML, Line: line, Column: column, Reason: reason}
	}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return &ParseError{Format: models.FormatXML, Reason: "document has no root element"}
		}
		if err != nil {
			return fail(err.Error())
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name.Local != root {
			return fail(fmt.Sprintf("root element is %s, expected %s", start.Name.Local, root))
		}
		if err := dec.DecodeElement(doc, &start); err != nil {
			return fail(err.Error())
		}
		break
	}

	// Only whitespace, comments and processing instructions may follow.
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fail(err.Error())
		}
		switch t := tok.(type) {
		case xml.StartElement:
			return fail("content after root element")
		case xml.CharData:
			if len(bytes.TrimSpace(t)) > 0 {
				return fail("content after root element")
			}
		}
	}
}
