package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Point is one position of a time series.
type Point struct {
	Position int              `json:"position" validate:"min=1"`
	Quantity *decimal.Decimal `json:"quantity,omitempty"`
	Quality  Quality          `json:"quality,omitempty" validate:"omitempty,known"`
}

// Period is the half-open interval covered by a series.
type Period struct {
	Start time.Time `json:"start" validate:"required"`
	End   time.Time `json:"end" validate:"required,gtfield=Start"`
}

// AggregatedMeasureDataRecord is the record of a NotifyAggregatedMeasureData
// series.
type AggregatedMeasureDataRecord struct {
	TransactionID                  string            `json:"transaction_id" validate:"required,max=36"`
	GridArea                       string            `json:"grid_area" validate:"required"`
	MeteringPointType              MeteringPointType `json:"metering_point_type" validate:"required,known"`
	SettlementMethod               SettlementMethod  `json:"settlement_method,omitempty" validate:"omitempty,known"`
	SettlementVersion              SettlementVersion `json:"settlement_version,omitempty" validate:"omitempty,known"`
	EnergySupplierNumber           string            `json:"energy_supplier_number,omitempty"`
	BalanceResponsibleNumber       string            `json:"balance_responsible_number,omitempty"`
	MeasurementUnit                MeasurementUnit   `json:"measurement_unit" validate:"required,known"`
	Resolution                     Resolution        `json:"resolution" validate:"required,known"`
	CalculationResultVersion       int64             `json:"calculation_result_version"`
	OriginalTransactionIDReference string            `json:"original_transaction_id_reference,omitempty" validate:"omitempty,max=36"`
	Period                         Period            `json:"period"`
	Points                         []Point           `json:"points" validate:"required,min=1,dive"`
}

// WholesalePoint is one position of a wholesale series.
type WholesalePoint struct {
	Position int              `json:"position" validate:"min=1"`
	Quantity *decimal.Decimal `json:"quantity,omitempty"`
	Price    *decimal.Decimal `json:"price,omitempty"`
	Amount   *decimal.Decimal `json:"amount,omitempty"`
	Quality  Quality          `json:"quality,omitempty" validate:"omitempty,known"`
}

// WholesaleServicesRecord is the record of a NotifyWholesaleServices series.
type WholesaleServicesRecord struct {
	TransactionID                  string            `json:"transaction_id" validate:"required,max=36"`
	GridArea                       string            `json:"grid_area" validate:"required"`
	EnergySupplierNumber           string            `json:"energy_supplier_number" validate:"required"`
	ChargeType                     ChargeType        `json:"charge_type,omitempty" validate:"omitempty,known"`
	ChargeCode                     string            `json:"charge_code,omitempty"`
	ChargeOwner                    string            `json:"charge_owner,omitempty"`
	MeteringPointType              MeteringPointType `json:"metering_point_type,omitempty" validate:"omitempty,known"`
	SettlementMethod               SettlementMethod  `json:"settlement_method,omitempty" validate:"omitempty,known"`
	SettlementVersion              SettlementVersion `json:"settlement_version,omitempty" validate:"omitempty,known"`
	MeasurementUnit                MeasurementUnit   `json:"measurement_unit" validate:"required,known"`
	PriceMeasurementUnit           MeasurementUnit   `json:"price_measurement_unit,omitempty" validate:"omitempty,known"`
	Currency                       string            `json:"currency" validate:"required,len=3"`
	Resolution                     Resolution        `json:"resolution" validate:"required,known"`
	CalculationVersion             int64             `json:"calculation_version"`
	OriginalTransactionIDReference string            `json:"original_transaction_id_reference,omitempty" validate:"omitempty,max=36"`
	Period                         Period            `json:"period"`
	Points                         []WholesalePoint  `json:"points" validate:"dive"`
}

// MeasureDataRecord is the record of a NotifyValidatedMeasureData series.
type MeasureDataRecord struct {
	TransactionID                  string            `json:"transaction_id" validate:"required,max=36"`
	MeteringPointID                string            `json:"metering_point_id" validate:"required"`
	MeteringPointType              MeteringPointType `json:"metering_point_type" validate:"required,known"`
	Product                        string            `json:"product,omitempty"`
	MeasurementUnit                MeasurementUnit   `json:"measurement_unit" validate:"required,known"`
	Resolution                     Resolution        `json:"resolution" validate:"required,known"`
	OriginalTransactionIDReference string            `json:"original_transaction_id_reference,omitempty" validate:"omitempty,max=36"`
	Period                         Period            `json:"period"`
	Points                         []Point           `json:"points" validate:"required,min=1,dive"`
}

// RejectReason is one reason a request was rejected.
type RejectReason struct {
	ErrorCode    string `json:"error_code" validate:"required"`
	ErrorMessage string `json:"error_message" validate:"required"`
}

// RejectedRequestRecord is the record of a reject document.
type RejectedRequestRecord struct {
	TransactionID                  string         `json:"transaction_id" validate:"required,max=36"`
	OriginalTransactionIDReference string         `json:"original_transaction_id_reference" validate:"required,max=36"`
	RejectReasons                  []RejectReason `json:"reject_reasons" validate:"required,min=1,dive"`
}
