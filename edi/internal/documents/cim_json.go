package documents

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/telhawk-systems/edi-stack/edi/internal/models"
)

// JSONWriters returns the CIM JSON writer of every outgoing document type.
func JSONWriters() []DocumentWriter {
	return []DocumentWriter{
		&writer{models.FormatJSON, models.DocumentNotifyAggregatedMeasureData, writeJSONAggregatedMeasureData},
		&writer{models.FormatJSON, models.DocumentNotifyWholesaleServices, writeJSONWholesaleServices},
		&writer{models.FormatJSON, models.DocumentNotifyValidatedMeasureData, writeJSONValidatedMeasureData},
		&writer{models.FormatJSON, models.DocumentRejectRequestAggregatedMeasureData, writeJSONReject},
		&writer{models.FormatJSON, models.DocumentRejectRequestWholesaleSettlement, writeJSONReject},
	}
}

type jsonValue struct {
	Value string `json:"value"`
}

type jsonCoded struct {
	CodingScheme string `json:"codingScheme"`
	Value        string `json:"value"`
}

type jsonPosition struct {
	Value int `json:"value"`
}

func codedValue(code string) *jsonValue {
	if code == "" {
		return nil
	}
	return &jsonValue{Value: code}
}

func party(number string) *jsonCoded {
	if number == "" {
		return nil
	}
	return &jsonCoded{CodingScheme: partyScheme(number), Value: number}
}

type jsonHeader struct {
	MRID                   string     `json:"mRID"`
	BusinessSectorType     jsonValue  `json:"businessSector.type"`
	CreatedDateTime        string     `json:"createdDateTime"`
	ProcessType            jsonValue  `json:"process.processType"`
	ReasonCode             *jsonValue `json:"reason.code,omitempty"`
	ReceiverMRID           jsonCoded  `json:"receiver_MarketParticipant.mRID"`
	ReceiverMarketRoleType jsonValue  `json:"receiver_MarketParticipant.marketRole.type"`
	SenderMRID             jsonCoded  `json:"sender_MarketParticipant.mRID"`
	SenderMarketRoleType   jsonValue  `json:"sender_MarketParticipant.marketRole.type"`
	Type                   jsonValue  `json:"type"`
}

func newJSONHeader(h models.MarketDocumentHeader) jsonHeader {
	return jsonHeader{
		MRID:                   h.MessageID,
		BusinessSectorType:     jsonValue{businessSectorElectricity},
		CreatedDateTime:        h.CreatedAt.UTC().Format(createdLayout),
		ProcessType:            jsonValue{h.BusinessReason.Code()},
		ReceiverMRID:           *party(h.Receiver.Number),
		ReceiverMarketRoleType: jsonValue{h.Receiver.Role.Code()},
		SenderMRID:             *party(h.Sender.Number),
		SenderMarketRoleType:   jsonValue{h.Sender.Role.Code()},
		Type:                   jsonValue{h.DocumentType.Code()},
	}
}

type jsonTimeInterval struct {
	Start jsonValue `json:"start"`
	End   jsonValue `json:"end"`
}

type jsonPoint struct {
	Position jsonPosition `json:"position"`
	Quantity json.Number  `json:"quantity,omitempty"`
	Quality  *jsonValue   `json:"quality,omitempty"`
}

type jsonPeriod[P any] struct {
	Resolution   string           `json:"resolution"`
	TimeInterval jsonTimeInterval `json:"timeInterval"`
	Point        []P              `json:"Point"`
}

func newJSONPeriod[P any](resolution models.Resolution, period models.Period, points []P) jsonPeriod[P] {
	return jsonPeriod[P]{
		Resolution: resolution.Code(),
		TimeInterval: jsonTimeInterval{
			Start: jsonValue{period.Start.UTC().Format(periodLayout)},
			End:   jsonValue{period.End.UTC().Format(periodLayout)},
		},
		Point: points,
	}
}

func newJSONPoints(points []models.Point) []jsonPoint {
	result := make([]jsonPoint, 0, len(points))
	for _, p := range points {
		jp := jsonPoint{
			Position: jsonPosition{p.Position},
			Quantity: json.Number(formatQuantity(p.Quantity)),
		}
		if code, ok := cimQuality(p.Quality); ok {
			jp.Quality = &jsonValue{code}
		}
		result = append(result, jp)
	}
	return result
}

// marshalDocument wraps body in its root element.
func marshalDocument(documentType models.DocumentType, body any) ([]byte, error) {
	doc, ok := cimDocuments[documentType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoWriter, documentType)
	}
	return json.Marshal(map[string]any{doc.root: body})
}

type jsonAggregatedSeries struct {
	MRID                         string                `json:"mRID"`
	Version                      string                `json:"version"`
	SettlementVersion            *jsonValue            `json:"settlement_Series.version,omitempty"`
	OriginalTransactionReference string                `json:"originalTransactionIDReference_Series.mRID,omitempty"`
	MarketEvaluationPointType    jsonValue             `json:"marketEvaluationPoint.type"`
	SettlementMethod             *jsonValue            `json:"marketEvaluationPoint.settlementMethod,omitempty"`
	GridArea                     jsonCoded             `json:"meteringGridArea_Domain.mRID"`
	EnergySupplier               *jsonCoded            `json:"energySupplier_MarketParticipant.mRID,omitempty"`
	BalanceResponsible           *jsonCoded            `json:"balanceResponsibleParty_MarketParticipant.mRID,omitempty"`
	Product                      string                `json:"product"`
	MeasureUnit                  jsonValue             `json:"quantity_Measure_Unit.name"`
	Period                       jsonPeriod[jsonPoint] `json:"Period"`
}

func writeJSONAggregatedMeasureData(header models.MarketDocumentHeader, raw []json.RawMessage) ([]byte, error) {
	records, err := decodeRecords[models.AggregatedMeasureDataRecord](raw)
	if err != nil {
		return nil, err
	}

	series := make([]jsonAggregatedSeries, 0, len(records))
	for _, r := range records {
		series = append(series, jsonAggregatedSeries{
			MRID:                         r.TransactionID,
			Version:                      strconv.FormatInt(r.CalculationResultVersion, 10),
			SettlementVersion:            codedValue(r.SettlementVersion.Code()),
			OriginalTransactionReference: r.OriginalTransactionIDReference,
			MarketEvaluationPointType:    jsonValue{r.MeteringPointType.Code()},
			SettlementMethod:             codedValue(r.SettlementMethod.Code()),
			GridArea:                     jsonCoded{CodingScheme: gridAreaScheme, Value: r.GridArea},
			EnergySupplier:               party(r.EnergySupplierNumber),
			BalanceResponsible:           party(r.BalanceResponsibleNumber),
			Product:                      productEnergyActive,
			MeasureUnit:                  jsonValue{r.MeasurementUnit.Code()},
			Period:                       newJSONPeriod(r.Resolution, r.Period, newJSONPoints(r.Points)),
		})
	}

	return marshalDocument(header.DocumentType, struct {
		jsonHeader
		Series []jsonAggregatedSeries `json:"Series"`
	}{newJSONHeader(header), series})
}

type jsonWholesalePoint struct {
	Position jsonPosition `json:"position"`
	Quantity json.Number  `json:"energySum_Quantity.quantity,omitempty"`
	Price    json.Number  `json:"price.amount,omitempty"`
	Amount   json.Number  `json:"amount,omitempty"`
	Quality  *jsonValue   `json:"quality,omitempty"`
}

type jsonWholesaleSeries struct {
	MRID                         string                         `json:"mRID"`
	Version                      string                         `json:"version"`
	SettlementVersion            *jsonValue                     `json:"settlement_Series.version,omitempty"`
	OriginalTransactionReference string                         `json:"originalTransactionIDReference_Series.mRID,omitempty"`
	ChargeType                   *jsonValue                     `json:"chargeType.type,omitempty"`
	ChargeCode                   string                         `json:"chargeType.mRID,omitempty"`
	ChargeOwner                  *jsonCoded                     `json:"chargeType.chargeTypeOwner_MarketParticipant.mRID,omitempty"`
	GridArea                     jsonCoded                      `json:"meteringGridArea_Domain.mRID"`
	EnergySupplier               *jsonCoded                     `json:"energySupplier_MarketParticipant.mRID,omitempty"`
	MarketEvaluationPointType    *jsonValue                     `json:"marketEvaluationPoint.type,omitempty"`
	SettlementMethod             *jsonValue                     `json:"marketEvaluationPoint.settlementMethod,omitempty"`
	Product                      string                         `json:"product"`
	MeasureUnit                  jsonValue                      `json:"quantity_Measure_Unit.name"`
	PriceMeasureUnit             *jsonValue                     `json:"price_Measure_Unit.name,omitempty"`
	Currency                     jsonValue                      `json:"currency_Unit.name"`
	Period                       jsonPeriod[jsonWholesalePoint] `json:"Period"`
}

func writeJSONWholesaleServices(header models.MarketDocumentHeader, raw []json.RawMessage) ([]byte, error) {
	records, err := decodeRecords[models.WholesaleServicesRecord](raw)
	if err != nil {
		return nil, err
	}

	series := make([]jsonWholesaleSeries, 0, len(records))
	for _, r := range records {
		points := make([]jsonWholesalePoint, 0, len(r.Points))
		for _, p := range r.Points {
			jp := jsonWholesalePoint{
				Position: jsonPosition{p.Position},
				Quantity: json.Number(formatQuantity(p.Quantity)),
				Price:    json.Number(formatPrice(p.Price)),
				Amount:   json.Number(formatAmount(p.Amount)),
			}
			if code, ok := cimQuality(p.Quality); ok {
				jp.Quality = &jsonValue{code}
			}
			points = append(points, jp)
		}

		series = append(series, jsonWholesaleSeries{
			MRID:                         r.TransactionID,
			Version:                      strconv.FormatInt(r.CalculationVersion, 10),
			SettlementVersion:            codedValue(r.SettlementVersion.Code()),
			OriginalTransactionReference: r.OriginalTransactionIDReference,
			ChargeType:                   codedValue(r.ChargeType.Code()),
			ChargeCode:                   r.ChargeCode,
			ChargeOwner:                  party(r.ChargeOwner),
			GridArea:                     jsonCoded{CodingScheme: gridAreaScheme, Value: r.GridArea},
			EnergySupplier:               party(r.EnergySupplierNumber),
			MarketEvaluationPointType:    codedValue(r.MeteringPointType.Code()),
			SettlementMethod:             codedValue(r.SettlementMethod.Code()),
			Product:                      productTariff,
			MeasureUnit:                  jsonValue{r.MeasurementUnit.Code()},
			PriceMeasureUnit:             codedValue(r.PriceMeasurementUnit.Code()),
			Currency:                     jsonValue{r.Currency},
			Period:                       newJSONPeriod(r.Resolution, r.Period, points),
		})
	}

	return marshalDocument(header.DocumentType, struct {
		jsonHeader
		Series []jsonWholesaleSeries `json:"Series"`
	}{newJSONHeader(header), series})
}

type jsonMeasureDataSeries struct {
	MRID                         string                `json:"mRID"`
	OriginalTransactionReference string                `json:"originalTransactionIDReference_Series.mRID,omitempty"`
	MeteringPoint                jsonCoded             `json:"marketEvaluationPoint.mRID"`
	MarketEvaluationPointType    jsonValue             `json:"marketEvaluationPoint.type"`
	Product                      string                `json:"product"`
	MeasureUnit                  jsonValue             `json:"quantity_Measure_Unit.name"`
	Period                       jsonPeriod[jsonPoint] `json:"Period"`
}

func writeJSONValidatedMeasureData(header models.MarketDocumentHeader, raw []json.RawMessage) ([]byte, error) {
	records, err := decodeRecords[models.MeasureDataRecord](raw)
	if err != nil {
		return nil, err
	}

	series := make([]jsonMeasureDataSeries, 0, len(records))
	for _, r := range records {
		series = append(series, jsonMeasureDataSeries{
			MRID:                         r.TransactionID,
			OriginalTransactionReference: r.OriginalTransactionIDReference,
			MeteringPoint:                jsonCoded{CodingScheme: "A10", Value: r.MeteringPointID},
			MarketEvaluationPointType:    jsonValue{r.MeteringPointType.Code()},
			Product:                      productOrDefault(r.Product),
			MeasureUnit:                  jsonValue{r.MeasurementUnit.Code()},
			Period:                       newJSONPeriod(r.Resolution, r.Period, newJSONPoints(r.Points)),
		})
	}

	return marshalDocument(header.DocumentType, struct {
		jsonHeader
		Series []jsonMeasureDataSeries `json:"Series"`
	}{newJSONHeader(header), series})
}

type jsonReason struct {
	Code jsonValue `json:"code"`
	Text string    `json:"text"`
}

type jsonRejectSeries struct {
	MRID                         string       `json:"mRID"`
	OriginalTransactionReference string       `json:"originalTransactionIDReference_Series.mRID"`
	Reason                       []jsonReason `json:"Reason"`
}

func writeJSONReject(header models.MarketDocumentHeader, raw []json.RawMessage) ([]byte, error) {
	records, err := decodeRecords[models.RejectedRequestRecord](raw)
	if err != nil {
		return nil, err
	}

	series := make([]jsonRejectSeries, 0, len(records))
	for _, r := range records {
		reasons := make([]jsonReason, 0, len(r.RejectReasons))
		for _, reason := range r.RejectReasons {
			reasons = append(reasons, jsonReason{Code: jsonValue{reason.ErrorCode}, Text: reason.ErrorMessage})
		}
		series = append(series, jsonRejectSeries{
			MRID:                         r.TransactionID,
			OriginalTransactionReference: r.OriginalTransactionIDReference,
			Reason:                       reasons,
		})
	}

	h := newJSONHeader(header)
	h.ReasonCode = &jsonValue{rejectReasonCode}
	return marshalDocument(header.DocumentType, struct {
		jsonHeader
		Series []jsonRejectSeries `json:"Series"`
	}{h, series})
}
