package documents

import (
	"encoding/json"
	"strconv"

	"github.com/telhawk-systems/edi-stack/edi/internal/models"
)

const xsiNamespace = "http://www.w3.org/2001/XMLSchema-instance"

// cimDocument describes the CIM envelope of one document type.
type cimDocument struct {
	root      string
	namespace string
	schema    string
}

var cimDocuments = map[models.DocumentType]cimDocument{
	models.DocumentNotifyAggregatedMeasureData: {
		root:      "NotifyAggregatedMeasureData_MarketDocument",
		namespace: "urn:ediel.org:measure:notifyaggregatedmeasuredata:0:1",
		schema:    "urn-ediel-org-measure-notifyaggregatedmeasuredata-0-1.xsd",
	},
	models.DocumentNotifyWholesaleServices: {
		root:      "NotifyWholesaleServices_MarketDocument",
		namespace: "urn:ediel.org:measure:notifywholesaleservices:0:1",
		schema:    "urn-ediel-org-measure-notifywholesaleservices-0-1.xsd",
	},
	models.DocumentNotifyValidatedMeasureData: {
		root:      "NotifyValidatedMeasureData_MarketDocument",
		namespace: "urn:ediel.org:measure:notifyvalidatedmeasuredata:0:1",
		schema:    "urn-ediel-org-measure-notifyvalidatedmeasuredata-0-1.xsd",
	},
	models.DocumentRejectRequestAggregatedMeasureData: {
		root:      "RejectRequestAggregatedMeasureData_MarketDocument",
		namespace: "urn:ediel.org:measure:rejectrequestaggregatedmeasuredata:0:1",
		schema:    "urn-ediel-org-measure-rejectrequestaggregatedmeasuredata-0-1.xsd",
	},
	models.DocumentRejectRequestWholesaleSettlement: {
		root:      "RejectRequestWholesaleSettlement_MarketDocument",
		namespace: "urn:ediel.org:measure:rejectrequestwholesalesettlement:0:1",
		schema:    "urn-ediel-org-measure-rejectrequestwholesalesettlement-0-1.xsd",
	},
}

// CIMXMLWriters returns the CIM XML writer of every outgoing document type.
func CIMXMLWriters() []DocumentWriter {
	return []DocumentWriter{
		&writer{models.FormatXML, models.DocumentNotifyAggregatedMeasureData, writeCIMAggregatedMeasureData},
		&writer{models.FormatXML, models.DocumentNotifyWholesaleServices, writeCIMWholesaleServices},
		&writer{models.FormatXML, models.DocumentNotifyValidatedMeasureData, writeCIMValidatedMeasureData},
		&writer{models.FormatXML, models.DocumentRejectRequestAggregatedMeasureData, writeCIMReject},
		&writer{models.FormatXML, models.DocumentRejectRequestWholesaleSettlement, writeCIMReject},
	}
}

func startCIMDocument(header models.MarketDocumentHeader) (*xmlWriter, cimDocument) {
	doc := cimDocuments[header.DocumentType]
	w := newXMLWriter("cim")
	w.start(doc.root,
		attr("xmlns:xsi", xsiNamespace),
		attr("xmlns:cim", doc.namespace),
		attr("xsi:schemaLocation", doc.namespace+" "+doc.schema),
	)
	w.element("mRID", header.MessageID)
	w.element("type", header.DocumentType.Code())
	w.element("process.processType", header.BusinessReason.Code())
	w.element("businessSector.type", businessSectorElectricity)
	w.element("sender_MarketParticipant.mRID", header.Sender.Number, attr("codingScheme", partyScheme(header.Sender.Number)))
	w.element("sender_MarketParticipant.marketRole.type", header.Sender.Role.Code())
	w.element("receiver_MarketParticipant.mRID", header.Receiver.Number, attr("codingScheme", partyScheme(header.Receiver.Number)))
	w.element("receiver_MarketParticipant.marketRole.type", header.Receiver.Role.Code())
	w.element("createdDateTime", header.CreatedAt.UTC().Format(createdLayout))
	return w, doc
}

func (w *xmlWriter) cimParty(local, number string) {
	w.optional(local, number, attr("codingScheme", partyScheme(number)))
}

func (w *xmlWriter) cimPeriod(resolution models.Resolution, period models.Period) {
	w.element("resolution", resolution.Code())
	w.start("timeInterval")
	w.element("start", period.Start.UTC().Format(periodLayout))
	w.element("end", period.End.UTC().Format(periodLayout))
	w.end("timeInterval")
}

func (w *xmlWriter) cimPoint(p models.Point) {
	w.start("Point")
	w.element("position", strconv.Itoa(p.Position))
	w.optional("quantity", formatQuantity(p.Quantity))
	if code, ok := cimQuality(p.Quality); ok {
		w.element("quality", code)
	}
	w.end("Point")
}

func writeCIMAggregatedMeasureData(header models.MarketDocumentHeader, raw []json.RawMessage) ([]byte, error) {
	records, err := decodeRecords[models.AggregatedMeasureDataRecord](raw)
	if err != nil {
		return nil, err
	}

	w, doc := startCIMDocument(header)
	for _, r := range records {
		w.start("Series")
		w.element("mRID", r.TransactionID)
		w.element("version", strconv.FormatInt(r.CalculationResultVersion, 10))
		if r.SettlementVersion != "" {
			w.element("settlement_Series.version", r.SettlementVersion.Code())
		}
		w.optional("originalTransactionIDReference_Series.mRID", r.OriginalTransactionIDReference)
		w.element("marketEvaluationPoint.type", r.MeteringPointType.Code())
		if r.SettlementMethod != "" {
			w.element("marketEvaluationPoint.settlementMethod", r.SettlementMethod.Code())
		}
		w.element("meteringGridArea_Domain.mRID", r.GridArea, attr("codingScheme", gridAreaScheme))
		w.cimParty("energySupplier_MarketParticipant.mRID", r.EnergySupplierNumber)
		w.cimParty("balanceResponsibleParty_MarketParticipant.mRID", r.BalanceResponsibleNumber)
		w.element("product", productEnergyActive)
		w.element("quantity_Measure_Unit.name", r.MeasurementUnit.Code())
		w.start("Period")
		w.cimPeriod(r.Resolution, r.Period)
		for _, p := range r.Points {
			w.cimPoint(p)
		}
		w.end("Period")
		w.end("Series")
	}
	w.end(doc.root)
	return w.finish()
}

func writeCIMWholesaleServices(header models.MarketDocumentHeader, raw []json.RawMessage) ([]byte, error) {
	records, err := decodeRecords[models.WholesaleServicesRecord](raw)
	if err != nil {
		return nil, err
	}

	w, doc := startCIMDocument(header)
	for _, r := range records {
		w.start("Series")
		w.element("mRID", r.TransactionID)
		w.element("version", strconv.FormatInt(r.CalculationVersion, 10))
		if r.SettlementVersion != "" {
			w.element("settlement_Series.version", r.SettlementVersion.Code())
		}
		w.optional("originalTransactionIDReference_Series.mRID", r.OriginalTransactionIDReference)
		if r.ChargeType != "" {
			w.element("chargeType.type", r.ChargeType.Code())
		}
		w.optional("chargeType.mRID", r.ChargeCode)
		w.cimParty("chargeType.chargeTypeOwner_MarketParticipant.mRID", r.ChargeOwner)
		w.element("meteringGridArea_Domain.mRID", r.GridArea, attr("codingScheme", gridAreaScheme))
		w.cimParty("energySupplier_MarketParticipant.mRID", r.EnergySupplierNumber)
		if r.MeteringPointType != "" {
			w.element("marketEvaluationPoint.type", r.MeteringPointType.Code())
		}
		if r.SettlementMethod != "" {
			w.element("marketEvaluationPoint.settlementMethod", r.SettlementMethod.Code())
		}
		w.element("product", productTariff)
		w.element("quantity_Measure_Unit.name", r.MeasurementUnit.Code())
		if r.PriceMeasurementUnit != "" {
			w.element("price_Measure_Unit.name", r.PriceMeasurementUnit.Code())
		}
		w.element("currency_Unit.name", r.Currency)
		w.start("Period")
		w.cimPeriod(r.Resolution, r.Period)
		for _, p := range r.Points {
			w.start("Point")
			w.element("position", strconv.Itoa(p.Position))
			w.optional("energySum_Quantity.quantity", formatQuantity(p.Quantity))
			w.optional("price.amount", formatPrice(p.Price))
			w.optional("amount", formatAmount(p.Amount))
			if code, ok := cimQuality(p.Quality); ok {
				w.element("quality", code)
			}
			w.end("Point")
		}
		w.end("Period")
		w.end("Series")
	}
	w.end(doc.root)
	return w.finish()
}

func writeCIMValidatedMeasureData(header models.MarketDocumentHeader, raw []json.RawMessage) ([]byte, error) {
	records, err := decodeRecords[models.MeasureDataRecord](raw)
	if err != nil {
		return nil, err
	}

	w, doc := startCIMDocument(header)
	for _, r := range records {
		w.start("Series")
		w.element("mRID", r.TransactionID)
		w.optional("originalTransactionIDReference_Series.mRID", r.OriginalTransactionIDReference)
		w.element("marketEvaluationPoint.mRID", r.MeteringPointID, attr("codingScheme", "A10"))
		w.element("marketEvaluationPoint.type", r.MeteringPointType.Code())
		w.element("product", productOrDefault(r.Product))
		w.element("quantity_Measure_Unit.name", r.MeasurementUnit.Code())
		w.start("Period")
		w.cimPeriod(r.Resolution, r.Period)
		for _, p := range r.Points {
			w.cimPoint(p)
		}
		w.end("Period")
		w.end("Series")
	}
	w.end(doc.root)
	return w.finish()
}

func writeCIMReject(header models.MarketDocumentHeader, raw []json.RawMessage) ([]byte, error) {
	records, err := decodeRecords[models.RejectedRequestRecord](raw)
	if err != nil {
		return nil, err
	}

	w, doc := startCIMDocument(header)
	w.element("reason.code", rejectReasonCode)
	for _, r := range records {
		w.start("Series")
		w.element("mRID", r.TransactionID)
		w.element("originalTransactionIDReference_Series.mRID", r.OriginalTransactionIDReference)
		for _, reason := range r.RejectReasons {
			w.start("Reason")
			w.element("code", reason.ErrorCode)
			w.element("text", reason.ErrorMessage)
			w.end("Reason")
		}
		w.end("Series")
	}
	w.end(doc.root)
	return w.finish()
}

func productOrDefault(product string) string {
	if product == "" {
		return productEnergyActive
	}
	return product
}
