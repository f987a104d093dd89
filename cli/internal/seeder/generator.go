// Package seeder generates outgoing market messages for development queues.
package seeder

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/shopspring/decimal"
)

// Document types the seeder can generate.
const (
	DocumentAggregatedMeasureData = "NotifyAggregatedMeasureData"
	DocumentWholesaleServices     = "NotifyWholesaleServices"
	DocumentValidatedMeasureData  = "NotifyValidatedMeasureData"
)

// DocumentTypes lists every generated document type.
var DocumentTypes = []string{
	DocumentAggregatedMeasureData,
	DocumentWholesaleServices,
	DocumentValidatedMeasureData,
}

// Receiver is the actor a message is queued for.
type Receiver struct {
	Number string `json:"number"`
	Role   string `json:"role"`
}

// EnqueueRequest is the payload published on the outgoing enqueue subject.
type EnqueueRequest struct {
	ExternalID         string          `json:"external_id"`
	DocumentType       string          `json:"document_type"`
	Receiver           Receiver        `json:"receiver"`
	BusinessReason     string          `json:"business_reason"`
	RelatedToMessageID string          `json:"related_to_message_id,omitempty"`
	Record             json.RawMessage `json:"record"`
}

type period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type point struct {
	Position int             `json:"position"`
	Quantity decimal.Decimal `json:"quantity"`
}

type wholesalePoint struct {
	Position int             `json:"position"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Amount   decimal.Decimal `json:"amount"`
}

// receiver roles and business reasons per document type
var (
	receiverRoles = map[string][]string{
		DocumentAggregatedMeasureData: {"EnergySupplier", "BalanceResponsibleParty", "GridOperator"},
		DocumentWholesaleServices:     {"EnergySupplier", "GridOperator"},
		DocumentValidatedMeasureData:  {"EnergySupplier", "GridOperator"},
	}
	businessReasons = map[string][]string{
		DocumentAggregatedMeasureData: {"BalanceFixing", "PreliminaryAggregation"},
		DocumentWholesaleServices:     {"WholesaleFixing", "Correction"},
		DocumentValidatedMeasureData:  {"PeriodicMetering"},
	}
)

// Generator produces random but well-formed outgoing messages.
type Generator struct {
	faker     *gofakeit.Faker
	receivers []string
	now       func() time.Time
}

// NewGenerator creates a Generator. receivers are the actor numbers
// messages are addressed to; seed 0 picks a random seed.
func NewGenerator(receivers []string, seed int64) *Generator {
	return &Generator{
		faker:     gofakeit.New(seed),
		receivers: receivers,
		now:       time.Now,
	}
}

// Generate builds one request of documentType.
func (g *Generator) Generate(documentType string) (*EnqueueRequest, error) {
	roles, ok := receiverRoles[documentType]
	if !ok {
		return nil, fmt.Errorf("unsupported document type %q", documentType)
	}
	if len(g.receivers) == 0 {
		return nil, fmt.Errorf("no receivers configured")
	}

	// the previous day, in hourly positions
	end := g.now().UTC().Truncate(24 * time.Hour)
	p := period{Start: end.Add(-24 * time.Hour), End: end}

	var record any
	switch documentType {
	case DocumentAggregatedMeasureData:
		record = map[string]any{
			"transaction_id":             g.faker.UUID(),
			"grid_area":                  g.faker.Numerify("###"),
			"metering_point_type":        g.faker.RandomString([]string{"Consumption", "Production", "Exchange"}),
			"measurement_unit":           "KilowattHour",
			"resolution":                 "Hourly",
			"calculation_result_version": g.faker.Number(1, 10),
			"period":                     p,
			"points":                     g.points(24),
		}
	case DocumentWholesaleServices:
		record = map[string]any{
			"transaction_id":         g.faker.UUID(),
			"grid_area":              g.faker.Numerify("###"),
			"energy_supplier_number": g.faker.RandomString(g.receivers),
			"charge_type":            g.faker.RandomString([]string{"Subscription", "Fee", "Tariff"}),
			"charge_code":            g.faker.LetterN(5),
			"charge_owner":           g.faker.Numerify("579000#######"),
			"measurement_unit":       "KilowattHour",
			"currency":               "DKK",
			"resolution":             "Hourly",
			"calculation_version":    g.faker.Number(1, 10),
			"period":                 p,
			"points":                 g.wholesalePoints(24),
		}
	case DocumentValidatedMeasureData:
		record = map[string]any{
			"transaction_id":      g.faker.UUID(),
			"metering_point_id":   g.faker.Numerify("571313###########"),
			"metering_point_type": g.faker.RandomString([]string{"Consumption", "Production"}),
			"measurement_unit":    "KilowattHour",
			"resolution":          "Hourly",
			"period":              p,
			"points":              g.points(24),
		}
	}

	raw, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}

	return &EnqueueRequest{
		ExternalID:   g.faker.UUID(),
		DocumentType: documentType,
		Receiver: Receiver{
			Number: g.faker.RandomString(g.receivers),
			Role:   g.faker.RandomString(roles),
		},
		BusinessReason: g.faker.RandomString(businessReasons[documentType]),
		Record:         raw,
	}, nil
}

func (g *Generator) points(n int) []point {
	out := make([]point, n)
	for i := range out {
		out[i] = point{
			Position: i + 1,
			Quantity: decimal.NewFromFloat(g.faker.Float64Range(0, 5000)).Round(3),
		}
	}
	return out
}

func (g *Generator) wholesalePoints(n int) []wholesalePoint {
	out := make([]wholesalePoint, n)
	for i := range out {
		qty := decimal.NewFromFloat(g.faker.Float64Range(0, 500)).Round(3)
		price := decimal.NewFromFloat(g.faker.Float64Range(0, 2)).Round(6)
		out[i] = wholesalePoint{
			Position: i + 1,
			Quantity: qty,
			Price:    price,
			Amount:   qty.Mul(price).Round(6),
		}
	}
	return out
}
