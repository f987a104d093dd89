package documents

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/telhawk-systems/edi-stack/edi/internal/models"
)

type ebixDocument struct {
	root      string
	namespace string
}

var ebixDocuments = map[models.DocumentType]ebixDocument{
	models.DocumentNotifyAggregatedMeasureData: {
		root:      "DK_AggregatedMeteredDataTimeSeries",
		namespace: "un:unece:260:data:EEM-DK_AggregatedMeteredDataTimeSeries:v3",
	},
	models.DocumentNotifyWholesaleServices: {
		root:      "DK_NotifyWholesaleServices",
		namespace: "un:unece:260:data:EEM-DK_NotifyWholesaleServices:v3",
	},
	models.DocumentNotifyValidatedMeasureData: {
		root:      "DK_MeteredDataTimeSeries",
		namespace: "un:unece:260:data:EEM-DK_MeteredDataTimeSeries:v3",
	},
}

// ebIX code list agencies
const (
	agencyUNECE = "6"
	agencyGS1   = "9"
	agencyEbix  = "260"
	agencyDK    = "DK"
)

// EbixWriters returns the ebIX writers. Reject documents have no ebIX form.
func EbixWriters() []DocumentWriter {
	return []DocumentWriter{
		&writer{models.FormatEbix, models.DocumentNotifyAggregatedMeasureData, writeEbixAggregatedMeasureData},
		&writer{models.FormatEbix, models.DocumentNotifyWholesaleServices, writeEbixWholesaleServices},
		&writer{models.FormatEbix, models.DocumentNotifyValidatedMeasureData, writeEbixValidatedMeasureData},
	}
}

// singleSettlementVersion returns the settlement version shared by all
// records. ebIX carries it once in the header.
func singleSettlementVersion(versions []models.SettlementVersion) (models.SettlementVersion, error) {
	var found models.SettlementVersion
	for i, v := range versions {
		if i > 0 && v != found {
			return "", fmt.Errorf("%w: ebIX cannot mix settlement versions in one document", ErrNotSupported)
		}
		found = v
	}
	return found, nil
}

func (w *xmlWriter) ebixCode(local, value, agency string) {
	w.element(local, value, attr("listAgencyIdentifier", agency))
}

func (w *xmlWriter) ebixParty(local, number string) {
	if number == "" {
		return
	}
	w.start(local)
	w.element("Identification", number, attr("schemeAgencyIdentifier", ebixAgency(number)))
	w.end(local)
}

func startEbixDocument(header models.MarketDocumentHeader, settlementVersion models.SettlementVersion) (*xmlWriter, ebixDocument) {
	doc := ebixDocuments[header.DocumentType]
	w := newXMLWriter("ns0")
	w.start(doc.root, attr("xmlns:ns0", doc.namespace))

	w.start("HeaderEnergyDocument")
	w.element("Identification", header.MessageID)
	w.ebixCode("DocumentType", header.DocumentType.Code(), agencyEbix)
	w.element("Creation", header.CreatedAt.UTC().Format(createdLayout))
	w.ebixParty("SenderEnergyParty", header.Sender.Number)
	w.ebixParty("RecipientEnergyParty", header.Receiver.Number)
	w.end("HeaderEnergyDocument")

	w.start("ProcessEnergyContext")
	w.ebixCode("EnergyBusinessProcess", header.BusinessReason.Code(), agencyEbix)
	w.ebixCode("EnergyBusinessProcessRole", header.Receiver.Role.Code(), agencyEbix)
	w.ebixCode("EnergyIndustryClassification", businessSectorElectricity, agencyUNECE)
	if settlementVersion != "" {
		w.ebixCode("ProcessVariant", settlementVersion.Code(), agencyEbix)
	}
	w.end("ProcessEnergyContext")
	return w, doc
}

func (w *xmlWriter) ebixPeriod(resolution models.Resolution, period models.Period) {
	w.start("ObservationTimeSeriesPeriod")
	w.element("ResolutionDuration", resolution.Code())
	w.element("Start", period.Start.UTC().Format(periodLayout))
	w.element("End", period.End.UTC().Format(periodLayout))
	w.end("ObservationTimeSeriesPeriod")
}

func (w *xmlWriter) ebixProduct(product string, unit models.MeasurementUnit) {
	w.start("IncludedProductCharacteristic")
	w.element("Identification", product, attr("listAgencyIdentifier", agencyGS1))
	w.ebixCode("UnitType", unit.Code(), agencyEbix)
	w.end("IncludedProductCharacteristic")
}

func (w *xmlWriter) ebixObservation(p models.Point, writeMeasured bool) {
	w.start("IntervalEnergyObservation")
	w.element("Position", strconv.Itoa(p.Position))
	code, missing := ebixPointQuality(p.Quantity, p.Quality, writeMeasured)
	if missing {
		w.element("QuantityMissing", "true")
	} else {
		w.element("EnergyQuantity", formatQuantity(p.Quantity))
		if code != "" {
			w.ebixCode("QuantityQuality", code, agencyEbix)
		}
	}
	w.end("IntervalEnergyObservation")
}

func writeEbixAggregatedMeasureData(header models.MarketDocumentHeader, raw []json.RawMessage) ([]byte, error) {
	records, err := decodeRecords[models.AggregatedMeasureDataRecord](raw)
	if err != nil {
		return nil, err
	}
	versions := make([]models.SettlementVersion, len(records))
	for i, r := range records {
		versions[i] = r.SettlementVersion
	}
	version, err := singleSettlementVersion(versions)
	if err != nil {
		return nil, err
	}

	w, doc := startEbixDocument(header, version)
	for _, r := range records {
		w.start("PayloadEnergyTimeSeries")
		w.element("Identification", r.TransactionID)
		w.ebixCode("Function", "9", agencyUNECE)
		w.ebixPeriod(r.Resolution, r.Period)
		w.ebixProduct(productEnergyActive, r.MeasurementUnit)
		w.start("DetailMeasurementMeteringPointCharacteristic")
		w.ebixCode("TypeOfMeteringPoint", r.MeteringPointType.Code(), agencyEbix)
		if r.SettlementMethod != "" {
			w.ebixCode("SettlementMethod", r.SettlementMethod.Code(), agencyEbix)
		}
		w.end("DetailMeasurementMeteringPointCharacteristic")
		w.start("MeteringGridAreaUsedDomainLocation")
		w.element("Identification", r.GridArea, attr("schemeAgencyIdentifier", agencyEbix), attr("schemeIdentifier", agencyDK))
		w.end("MeteringGridAreaUsedDomainLocation")
		w.ebixParty("BalanceResponsibleEnergyParty", r.BalanceResponsibleNumber)
		w.ebixParty("BalanceSupplierEnergyParty", r.EnergySupplierNumber)
		for _, p := range r.Points {
			w.ebixObservation(p, false)
		}
		w.optional("OriginalBusinessDocument", r.OriginalTransactionIDReference)
		w.end("PayloadEnergyTimeSeries")
	}
	w.end(doc.root)
	return w.finish()
}

func writeEbixWholesaleServices(header models.MarketDocumentHeader, raw []json.RawMessage) ([]byte, error) {
	records, err := decodeRecords[models.WholesaleServicesRecord](raw)
	if err != nil {
		return nil, err
	}
	versions := make([]models.SettlementVersion, len(records))
	for i, r := range records {
		versions[i] = r.SettlementVersion
	}
	version, err := singleSettlementVersion(versions)
	if err != nil {
		return nil, err
	}

	w, doc := startEbixDocument(header, version)
	for _, r := range records {
		w.start("PayloadEnergyTimeSeries")
		w.element("Identification", r.TransactionID)
		w.ebixCode("Function", "9", agencyUNECE)
		w.ebixPeriod(r.Resolution, r.Period)
		w.ebixProduct(productTariff, r.MeasurementUnit)
		if r.MeteringPointType != "" || r.SettlementMethod != "" {
			w.start("DetailMeasurementMeteringPointCharacteristic")
			if r.MeteringPointType != "" {
				w.ebixCode("TypeOfMeteringPoint", r.MeteringPointType.Code(), agencyEbix)
			}
			if r.SettlementMethod != "" {
				w.ebixCode("SettlementMethod", r.SettlementMethod.Code(), agencyEbix)
			}
			w.end("DetailMeasurementMeteringPointCharacteristic")
		}
		w.start("MeteringGridAreaUsedDomainLocation")
		w.element("Identification", r.GridArea, attr("schemeAgencyIdentifier", agencyEbix), attr("schemeIdentifier", agencyDK))
		w.end("MeteringGridAreaUsedDomainLocation")
		w.ebixParty("BalanceSupplierEnergyParty", r.EnergySupplierNumber)
		if r.ChargeType != "" || r.ChargeCode != "" {
			w.start("ChargeTypeInformation")
			if r.ChargeType != "" {
				w.ebixCode("ChargeType", r.ChargeType.Code(), agencyEbix)
			}
			w.optional("PartyChargeTypeID", r.ChargeCode)
			w.ebixParty("ChargeTypeOwnerEnergyParty", r.ChargeOwner)
			w.end("ChargeTypeInformation")
		}
		w.element("Currency", r.Currency, attr("listAgencyIdentifier", agencyUNECE))
		for _, p := range r.Points {
			w.start("PriceTimeFrameObservation")
			w.element("Position", strconv.Itoa(p.Position))
			code, missing := ebixPointQuality(p.Quantity, p.Quality, false)
			if missing {
				w.element("QuantityMissing", "true")
			} else {
				w.element("EnergyQuantity", formatQuantity(p.Quantity))
				if code != "" {
					w.ebixCode("QuantityQuality", code, agencyEbix)
				}
			}
			w.optional("EnergyPrice", formatPrice(p.Price))
			w.optional("EnergySum", formatAmount(p.Amount))
			w.end("PriceTimeFrameObservation")
		}
		w.optional("OriginalBusinessDocument", r.OriginalTransactionIDReference)
		w.end("PayloadEnergyTimeSeries")
	}
	w.end(doc.root)
	return w.finish()
}

func writeEbixValidatedMeasureData(header models.MarketDocumentHeader, raw []json.RawMessage) ([]byte, error) {
	records, err := decodeRecords[models.MeasureDataRecord](raw)
	if err != nil {
		return nil, err
	}

	w, doc := startEbixDocument(header, "")
	for _, r := range records {
		w.start("PayloadEnergyTimeSeries")
		w.element("Identification", r.TransactionID)
		w.ebixCode("Function", "9", agencyUNECE)
		w.ebixPeriod(r.Resolution, r.Period)
		w.ebixProduct(productOrDefault(r.Product), r.MeasurementUnit)
		w.start("DetailMeasurementMeteringPointCharacteristic")
		w.ebixCode("TypeOfMeteringPoint", r.MeteringPointType.Code(), agencyEbix)
		w.end("DetailMeasurementMeteringPointCharacteristic")
		w.start("MeteringPointDomainLocation")
		w.element("Identification", r.MeteringPointID, attr("schemeAgencyIdentifier", agencyGS1))
		w.end("MeteringPointDomainLocation")
		// Meter readings carry their Measured quality explicitly.
		for _, p := range r.Points {
			w.ebixObservation(p, true)
		}
		w.optional("OriginalBusinessDocument", r.OriginalTransactionIDReference)
		w.end("PayloadEnergyTimeSeries")
	}
	w.end(doc.root)
	return w.finish()
}
