package models

import "fmt"

// UnknownCodeError is returned when a code or name does not belong to an
// enumeration.
type UnknownCodeError struct {
	Kind   string
	Value  string
	ByName bool
}

func (e *UnknownCodeError) Error() string {
	lookup := "code"
	if e.ByName {
		lookup = "name"
	}
	return fmt.Sprintf("unknown %s %s %q", e.Kind, lookup, e.Value)
}

// codeTable is an ordered name/code table. Codes shared by several names
// resolve to the first declared name.
type codeTable[T ~string] struct {
	kind   string
	names  []T
	codes  map[T]string
	byCode map[string]T
}

func newCodeTable[T ~string](kind string, pairs ...any) codeTable[T] {
	t := codeTable[T]{
		kind:   kind,
		codes:  make(map[T]string, len(pairs)/2),
		byCode: make(map[string]T, len(pairs)/2),
	}
	for i := 0; i+1 < len(pairs); i += 2 {
		name := pairs[i].(T)
		code := pairs[i+1].(string)
		t.names = append(t.names, name)
		t.codes[name] = code
		if _, dup := t.byCode[code]; !dup {
			t.byCode[code] = name
		}
	}
	return t
}

func (t codeTable[T]) fromCode(code string) (T, error) {
	if v, ok := t.byCode[code]; ok {
		return v, nil
	}
	return "", &UnknownCodeError{Kind: t.kind, Value: code}
}

func (t codeTable[T]) fromName(name string) (T, error) {
	if _, ok := t.codes[T(name)]; ok {
		return T(name), nil
	}
	return "", &UnknownCodeError{Kind: t.kind, Value: name, ByName: true}
}

func (t codeTable[T]) code(v T) string {
	return t.codes[v]
}

func (t codeTable[T]) valid(v T) bool {
	_, ok := t.codes[v]
	return ok
}

// ActorRole is a market role. The code is the role code used on the wire.
type ActorRole string

const (
	RoleMeteredDataResponsible     ActorRole = "MeteredDataResponsible"
	RoleEnergySupplier             ActorRole = "EnergySupplier"
	RoleGridOperator               ActorRole = "GridOperator"
	RoleBalanceResponsibleParty    ActorRole = "BalanceResponsibleParty"
	RoleMeteringPointAdministrator ActorRole = "MeteringPointAdministrator"
	RoleSystemOperator             ActorRole = "SystemOperator"
	RoleDanishEnergyAgency         ActorRole = "DanishEnergyAgency"
)

var actorRoles = newCodeTable[ActorRole]("actor role",
	RoleMeteredDataResponsible, "MDR",
	RoleEnergySupplier, "DDQ",
	RoleGridOperator, "DDM",
	RoleBalanceResponsibleParty, "DDK",
	RoleMeteringPointAdministrator, "DDZ",
	RoleSystemOperator, "EZ",
	RoleDanishEnergyAgency, "STS",
)

func ActorRoleFromCode(code string) (ActorRole, error) { return actorRoles.fromCode(code) }
func ActorRoleFromName(name string) (ActorRole, error) { return actorRoles.fromName(name) }
func (r ActorRole) Code() string                       { return actorRoles.code(r) }
func (r ActorRole) Valid() bool                        { return actorRoles.valid(r) }

// DocumentType identifies a market document, incoming or outgoing.
// The code is the document type code written in the header.
type DocumentType string

const (
	DocumentNotifyAggregatedMeasureData        DocumentType = "NotifyAggregatedMeasureData"
	DocumentNotifyWholesaleServices            DocumentType = "NotifyWholesaleServices"
	DocumentNotifyValidatedMeasureData         DocumentType = "NotifyValidatedMeasureData"
	DocumentRejectRequestAggregatedMeasureData DocumentType = "RejectRequestAggregatedMeasureData"
	DocumentRejectRequestWholesaleSettlement   DocumentType = "RejectRequestWholesaleSettlement"
	DocumentRequestAggregatedMeasureData       DocumentType = "RequestAggregatedMeasureData"
	DocumentRequestWholesaleSettlement         DocumentType = "RequestWholesaleSettlement"
	DocumentForwardMeteredData                 DocumentType = "ForwardMeteredData"
)

var documentTypes = newCodeTable[DocumentType]("document type",
	DocumentNotifyAggregatedMeasureData, "E31",
	DocumentNotifyWholesaleServices, "E31",
	DocumentNotifyValidatedMeasureData, "E66",
	DocumentRejectRequestAggregatedMeasureData, "ERR",
	DocumentRejectRequestWholesaleSettlement, "ERR",
	DocumentRequestAggregatedMeasureData, "E74",
	DocumentRequestWholesaleSettlement, "D21",
	DocumentForwardMeteredData, "E66",
)

func DocumentTypeFromCode(code string) (DocumentType, error) { return documentTypes.fromCode(code) }
func DocumentTypeFromName(name string) (DocumentType, error) { return documentTypes.fromName(name) }
func (d DocumentType) Code() string                          { return documentTypes.code(d) }
func (d DocumentType) Valid() bool                           { return documentTypes.valid(d) }

// Category returns the queue category an outgoing document is delivered in.
func (d DocumentType) Category() Category {
	switch d {
	case DocumentNotifyValidatedMeasureData:
		return CategoryMeasureData
	case DocumentNotifyAggregatedMeasureData, DocumentNotifyWholesaleServices,
		DocumentRejectRequestAggregatedMeasureData, DocumentRejectRequestWholesaleSettlement:
		return CategoryAggregations
	default:
		return ""
	}
}

// BusinessReason is the process type of a document.
type BusinessReason string

const (
	ReasonPreliminaryAggregation BusinessReason = "PreliminaryAggregation"
	ReasonBalanceFixing          BusinessReason = "BalanceFixing"
	ReasonWholesaleFixing        BusinessReason = "WholesaleFixing"
	ReasonCorrection             BusinessReason = "Correction"
	ReasonPeriodicMetering       BusinessReason = "PeriodicMetering"
	ReasonMoveIn                 BusinessReason = "MoveIn"
)

var businessReasons = newCodeTable[BusinessReason]("business reason",
	ReasonPreliminaryAggregation, "D03",
	ReasonBalanceFixing, "D04",
	ReasonWholesaleFixing, "D05",
	ReasonCorrection, "D32",
	ReasonPeriodicMetering, "E23",
	ReasonMoveIn, "E65",
)

func BusinessReasonFromCode(code string) (BusinessReason, error) {
	return businessReasons.fromCode(code)
}
func BusinessReasonFromName(name string) (BusinessReason, error) {
	return businessReasons.fromName(name)
}
func (b BusinessReason) Code() string { return businessReasons.code(b) }
func (b BusinessReason) Valid() bool  { return businessReasons.valid(b) }

// SettlementVersion identifies a correction settlement.
type SettlementVersion string

const (
	SettlementFirstCorrection  SettlementVersion = "FirstCorrection"
	SettlementSecondCorrection SettlementVersion = "SecondCorrection"
	SettlementThirdCorrection  SettlementVersion = "ThirdCorrection"
)

var settlementVersions = newCodeTable[SettlementVersion]("settlement version",
	SettlementFirstCorrection, "D01",
	SettlementSecondCorrection, "D02",
	SettlementThirdCorrection, "D03",
)

func SettlementVersionFromCode(code string) (SettlementVersion, error) {
	return settlementVersions.fromCode(code)
}
func SettlementVersionFromName(name string) (SettlementVersion, error) {
	return settlementVersions.fromName(name)
}
func (s SettlementVersion) Code() string { return settlementVersions.code(s) }
func (s SettlementVersion) Valid() bool  { return settlementVersions.valid(s) }

// Quality is the quality of a measured point. The code is the CIM code;
// ebIX mapping lives with the ebIX writers.
type Quality string

const (
	QualityMissing      Quality = "Missing"
	QualityEstimated    Quality = "Estimated"
	QualityMeasured     Quality = "Measured"
	QualityIncomplete   Quality = "Incomplete"
	QualityCalculated   Quality = "Calculated"
	QualityNotAvailable Quality = "NotAvailable"
)

var qualities = newCodeTable[Quality]("quality",
	QualityMissing, "A02",
	QualityEstimated, "A03",
	QualityMeasured, "A04",
	QualityIncomplete, "A05",
	QualityCalculated, "A06",
	QualityNotAvailable, "A02",
)

func QualityFromCode(code string) (Quality, error) { return qualities.fromCode(code) }
func QualityFromName(name string) (Quality, error) { return qualities.fromName(name) }
func (q Quality) Code() string                     { return qualities.code(q) }
func (q Quality) Valid() bool                      { return qualities.valid(q) }

// MeteringPointType classifies the metering point of a series.
type MeteringPointType string

const (
	MeteringPointConsumption MeteringPointType = "Consumption"
	MeteringPointProduction  MeteringPointType = "Production"
	MeteringPointExchange    MeteringPointType = "Exchange"
)

var meteringPointTypes = newCodeTable[MeteringPointType]("metering point type",
	MeteringPointConsumption, "E17",
	MeteringPointProduction, "E18",
	MeteringPointExchange, "E20",
)

func MeteringPointTypeFromCode(code string) (MeteringPointType, error) {
	return meteringPointTypes.fromCode(code)
}
func MeteringPointTypeFromName(name string) (MeteringPointType, error) {
	return meteringPointTypes.fromName(name)
}
func (m MeteringPointType) Code() string { return meteringPointTypes.code(m) }
func (m MeteringPointType) Valid() bool  { return meteringPointTypes.valid(m) }

// SettlementMethod is the settlement method of consumption series.
type SettlementMethod string

const (
	SettlementMethodNonProfiled SettlementMethod = "NonProfiled"
	SettlementMethodFlex        SettlementMethod = "Flex"
)

var settlementMethods = newCodeTable[SettlementMethod]("settlement method",
	SettlementMethodNonProfiled, "E02",
	SettlementMethodFlex, "D01",
)

func SettlementMethodFromCode(code string) (SettlementMethod, error) {
	return settlementMethods.fromCode(code)
}
func SettlementMethodFromName(name string) (SettlementMethod, error) {
	return settlementMethods.fromName(name)
}
func (s SettlementMethod) Code() string { return settlementMethods.code(s) }
func (s SettlementMethod) Valid() bool  { return settlementMethods.valid(s) }

// Resolution is the time distance between two points.
type Resolution string

const (
	ResolutionQuarterHourly Resolution = "QuarterHourly"
	ResolutionHourly        Resolution = "Hourly"
	ResolutionDaily         Resolution = "Daily"
	ResolutionMonthly       Resolution = "Monthly"
)

var resolutions = newCodeTable[Resolution]("resolution",
	ResolutionQuarterHourly, "PT15M",
	ResolutionHourly, "PT1H",
	ResolutionDaily, "P1D",
	ResolutionMonthly, "P1M",
)

func ResolutionFromCode(code string) (Resolution, error) { return resolutions.fromCode(code) }
func ResolutionFromName(name string) (Resolution, error) { return resolutions.fromName(name) }
func (r Resolution) Code() string                        { return resolutions.code(r) }
func (r Resolution) Valid() bool                         { return resolutions.valid(r) }

// MeasurementUnit is the unit of point quantities.
type MeasurementUnit string

const (
	UnitKilowattHour MeasurementUnit = "KilowattHour"
	UnitMegawattHour MeasurementUnit = "MegawattHour"
	UnitKilowatt     MeasurementUnit = "Kilowatt"
	UnitPieces       MeasurementUnit = "Pieces"
)

var measurementUnits = newCodeTable[MeasurementUnit]("measurement unit",
	UnitKilowattHour, "KWH",
	UnitMegawattHour, "MWH",
	UnitKilowatt, "KWT",
	UnitPieces, "H87",
)

func MeasurementUnitFromCode(code string) (MeasurementUnit, error) {
	return measurementUnits.fromCode(code)
}
func MeasurementUnitFromName(name string) (MeasurementUnit, error) {
	return measurementUnits.fromName(name)
}
func (m MeasurementUnit) Code() string { return measurementUnits.code(m) }
func (m MeasurementUnit) Valid() bool  { return measurementUnits.valid(m) }

// ChargeType is the type of a wholesale charge.
type ChargeType string

const (
	ChargeSubscription ChargeType = "Subscription"
	ChargeFee          ChargeType = "Fee"
	ChargeTariff       ChargeType = "Tariff"
)

var chargeTypes = newCodeTable[ChargeType]("charge type",
	ChargeSubscription, "D01",
	ChargeFee, "D02",
	ChargeTariff, "D03",
)

func ChargeTypeFromCode(code string) (ChargeType, error) { return chargeTypes.fromCode(code) }
func ChargeTypeFromName(name string) (ChargeType, error) { return chargeTypes.fromName(name) }
func (c ChargeType) Code() string                        { return chargeTypes.code(c) }
func (c ChargeType) Valid() bool                         { return chargeTypes.valid(c) }

// Format is a document wire format. The code is the query parameter value.
type Format string

const (
	FormatXML  Format = "Xml"
	FormatEbix Format = "Ebix"
	FormatJSON Format = "Json"
)

var formats = newCodeTable[Format]("format",
	FormatXML, "xml",
	FormatEbix, "ebix",
	FormatJSON, "json",
)

func FormatFromCode(code string) (Format, error) { return formats.fromCode(code) }
func FormatFromName(name string) (Format, error) { return formats.fromName(name) }
func (f Format) Code() string                    { return formats.code(f) }
func (f Format) Valid() bool                     { return formats.valid(f) }

// Category partitions an actor's queue.
type Category string

const (
	CategoryAggregations Category = "Aggregations"
	CategoryMeasureData  Category = "MeasureData"
	CategoryAll          Category = "All"
)

var categories = newCodeTable[Category]("category",
	CategoryAggregations, "aggregations",
	CategoryMeasureData, "measuredata",
	CategoryAll, "all",
)

func CategoryFromCode(code string) (Category, error) { return categories.fromCode(code) }
func CategoryFromName(name string) (Category, error) { return categories.fromName(name) }
func (c Category) Code() string                      { return categories.code(c) }
func (c Category) Valid() bool                       { return categories.valid(c) }

// DocumentTypes returns the outgoing document types delivered in c.
func (c Category) DocumentTypes() []DocumentType {
	switch c {
	case CategoryAggregations:
		return []DocumentType{
			DocumentNotifyAggregatedMeasureData,
			DocumentNotifyWholesaleServices,
			DocumentRejectRequestAggregatedMeasureData,
			DocumentRejectRequestWholesaleSettlement,
		}
	case CategoryMeasureData:
		return []DocumentType{DocumentNotifyValidatedMeasureData}
	case CategoryAll:
		return append(CategoryAggregations.DocumentTypes(), CategoryMeasureData.DocumentTypes()...)
	default:
		return nil
	}
}
