package documents

import (
	"github.com/shopspring/decimal"

	"github.com/telhawk-systems/edi-stack/edi/internal/models"
)

// cimQuality returns the CIM quality code of q. Measured is the normal case
// and is not written.
func cimQuality(q models.Quality) (string, bool) {
	if q == "" || q == models.QualityMeasured {
		return "", false
	}
	return q.Code(), true
}

// ebix quality codes
const (
	ebixQualityEstimated = "56"
	ebixQualityMeasured  = "E01"
)

// ebixQualityCode maps q to ebIX. Missing and NotAvailable have no ebIX code.
func ebixQualityCode(q models.Quality) (string, bool) {
	switch q {
	case models.QualityEstimated, models.QualityCalculated, models.QualityIncomplete:
		return ebixQualityEstimated, true
	case models.QualityMeasured:
		return ebixQualityMeasured, true
	default:
		return "", false
	}
}

// ebixPointQuality decides what an ebIX point carries besides its quantity.
// A point without quantity gets QuantityMissing instead of a quality. When
// writeMeasured is false, Measured is treated as the unmarked normal case.
func ebixPointQuality(quantity *decimal.Decimal, q models.Quality, writeMeasured bool) (code string, missing bool) {
	if quantity == nil {
		return "", true
	}
	if q == models.QualityMeasured && !writeMeasured {
		return "", false
	}
	code, _ = ebixQualityCode(q)
	return code, false
}

func formatQuantity(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.StringFixed(3)
}

func formatPrice(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.StringFixed(6)
}

func formatAmount(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.StringFixed(2)
}
