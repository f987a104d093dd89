package incoming

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/edi-stack/edi/internal/models"
)

const aggregatedJSON = `{
  "RequestAggregatedMeasureData_MarketDocument": {
    "mRID": "msg-0001",
    "businessSector.type": {"value": "23"},
    "createdDateTime": "2026-04-01T10:00:00Z",
    "process.processType": {"value": "D04"},
    "receiver_MarketParticipant.mRID": {"codingScheme": "A10", "value": "5790001330583"},
    "receiver_MarketParticipant.marketRole.type": {"value": "DDZ"},
    "sender_MarketParticipant.mRID": {"codingScheme": "A10", "value": "5790000701414"},
    "sender_MarketParticipant.marketRole.type": {"value": "DDQ"},
    "type": {"value": "E74"},
    "Series": [
      {
        "mRID": "tx-1",
        "marketEvaluationPoint.type": {"value": "E17"},
        "marketEvaluationPoint.settlementMethod": {"value": "D01"},
        "start_DateAndOrTime.dateTime": "2026-03-01T23:00:00Z",
        "end_DateAndOrTime.dateTime": "2026-03-31T22:00:00Z",
        "meteringGridArea_Domain.mRID": {"codingScheme": "NDK", "value": "804"},
        "energySupplier_MarketParticipant.mRID": {"codingScheme": "A10", "value": "5790000701414"}
      },
      {
        "mRID": "tx-2",
        "settlement_Series.version": {"value": "D01"}
      }
    ]
  }
}`

const aggregatedXML = `<?xml version="1.0" encoding="UTF-8"?>
<cim:RequestAggregatedMeasureData_MarketDocument xmlns:cim="urn:ediel.org:measure:requestaggregatedmeasuredata:0:1">
  <cim:mRID>msg-0001</cim:mRID>
  <cim:type>E74</cim:type>
  <cim:process.processType>D04</cim:process.processType>
  <cim:businessSector.type>23</cim:businessSector.type>
  <cim:sender_MarketParticipant.mRID codingScheme="A10">5790000701414</cim:sender_MarketParticipant.mRID>
  <cim:sender_MarketParticipant.marketRole.type>DDQ</cim:sender_MarketParticipant.marketRole.type>
  <cim:receiver_MarketParticipant.mRID codingScheme="A10">5790001330583</cim:receiver_MarketParticipant.mRID>
  <cim:receiver_MarketParticipant.marketRole.type>DDZ</cim:receiver_MarketParticipant.marketRole.type>
  <cim:createdDateTime>2026-04-01T10:00:00Z</cim:createdDateTime>
  <cim:Series>
    <cim:mRID>tx-1</cim:mRID>
    <cim:marketEvaluationPoint.type>E17</cim:marketEvaluationPoint.type>
    <cim:marketEvaluationPoint.settlementMethod>D01</cim:marketEvaluationPoint.settlementMethod>
    <cim:start_DateAndOrTime.dateTime>2026-03-01T23:00:00Z</cim:start_DateAndOrTime.dateTime>
    <cim:end_DateAndOrTime.dateTime>2026-03-31T22:00:00Z</cim:end_DateAndOrTime.dateTime>
    <cim:meteringGridArea_Domain.mRID codingScheme="NDK">804</cim:meteringGridArea_Domain.mRID>
    <cim:energySupplier_MarketParticipant.mRID codingScheme="A10">5790000701414</cim:energySupplier_MarketParticipant.mRID>
  </cim:Series>
  <cim:Series>
    <cim:mRID>tx-2</cim:mRID>
    <cim:settlement_Series.version>D01</cim:settlement_Series.version>
  </cim:Series>
</cim:RequestAggregatedMeasureData_MarketDocument>
`

func TestParse_RequestAggregatedMeasureData(t *testing.T) {
	for _, tt := range []struct {
		format models.Format
		body   string
	}{
		{models.FormatJSON, aggregatedJSON},
		{models.FormatXML, aggregatedXML},
	} {
		t.Run(tt.format.Code(), func(t *testing.T) {
			msg, err := Parse(models.DocumentRequestAggregatedMeasureData, tt.format, []byte(tt.body))
			require.NoError(t, err)

			assert.Equal(t, models.DocumentRequestAggregatedMeasureData, msg.DocumentType)
			assert.Equal(t, "msg-0001", msg.MessageID)
			assert.Equal(t, "E74", msg.MessageType)
			assert.Equal(t, "D04", msg.BusinessReason)
			assert.Equal(t, "23", msg.BusinessType)
			assert.Equal(t, "5790000701414", msg.SenderNumber)
			assert.Equal(t, "DDQ", msg.SenderRoleCode)
			assert.Equal(t, "5790001330583", msg.ReceiverNumber)
			assert.Equal(t, "DDZ", msg.ReceiverRoleCode)
			assert.Equal(t, time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC), msg.CreatedAt)

			require.Len(t, msg.Series, 2)
			first := msg.Series[0]
			assert.Equal(t, "tx-1", first.TransactionID)
			assert.Equal(t, "804", first.GridArea)
			assert.Equal(t, "E17", first.MeteringPointType)
			assert.Equal(t, "D01", first.SettlementMethod)
			assert.Equal(t, "5790000701414", first.EnergySupplierNumber)
			assert.Equal(t, "2026-03-01T23:00:00Z", first.PeriodStart)
			assert.False(t, first.IsDelegated)
			assert.Empty(t, first.SettlementVersion)

			assert.Equal(t, "tx-2", msg.Series[1].TransactionID)
			assert.Equal(t, "D01", msg.Series[1].SettlementVersion)
			assert.Equal(t, []string{"tx-1", "tx-2"}, msg.TransactionIDs())
		})
	}
}

func TestParse_RequestWholesaleSettlementChargeTypes(t *testing.T) {
	body := `{"RequestWholesaleSettlement_MarketDocument": {
		"mRID": "w-1",
		"type": {"value": "D21"},
		"Series": [{
			"mRID": "tx",
			"aggregationSeries_Period.resolution": {"value": "PT1H"},
			"ChargeType": [{"mRID": "40000", "type": {"value": "D03"}}, {"mRID": "41000", "type": {"value": "D01"}}]
		}]
	}}`

	msg, err := Parse(models.DocumentRequestWholesaleSettlement, models.FormatJSON, []byte(body))
	require.NoError(t, err)
	require.Len(t, msg.Series, 1)
	assert.Equal(t, []string{"D03", "D01"}, msg.Series[0].ChargeTypes)
	assert.Equal(t, "PT1H", msg.Series[0].Resolution)
	assert.True(t, msg.CreatedAt.IsZero())
}

func TestParse_ForwardMeteredDataPeriod(t *testing.T) {
	body := `<NotifyValidatedMeasureData_MarketDocument>
  <mRID>f-1</mRID>
  <type>E66</type>
  <Series>
    <mRID>tx</mRID>
    <marketEvaluationPoint.mRID codingScheme="A10">571313180000000005</marketEvaluationPoint.mRID>
    <Period>
      <resolution>PT15M</resolution>
      <timeInterval><start>2026-03-01T23:00Z</start><end>2026-03-02T00:00Z</end></timeInterval>
      <Point><position>1</position><quantity>1.5</quantity></Point>
      <Point><position>2</position><quantity>1.5</quantity></Point>
      <Point><position>3</position></Point>
    </Period>
  </Series>
</NotifyValidatedMeasureData_MarketDocument>`

	msg, err := Parse(models.DocumentForwardMeteredData, models.FormatXML, []byte(body))
	require.NoError(t, err)
	require.Len(t, msg.Series, 1)
	s := msg.Series[0]
	assert.Equal(t, "571313180000000005", s.MeteringPointID)
	assert.Equal(t, "PT15M", s.Resolution)
	assert.Equal(t, "2026-03-01T23:00Z", s.PeriodStart)
	assert.Equal(t, "2026-03-02T00:00Z", s.PeriodEnd)
	assert.Equal(t, 3, s.PointCount)
}

func TestParse_MalformedDocuments(t *testing.T) {
	dt := models.DocumentRequestAggregatedMeasureData

	tests := []struct {
		name       string
		format     models.Format
		body       string
		wantLine   int
		wantReason string
	}{
		{"json syntax", models.FormatJSON, "{\n  \"RequestAggregatedMeasureData_MarketDocument\": {\n    \"mRID\": ,\n  }\n}", 3, "invalid character"},
		{"json wrong root", models.FormatJSON, `{"RequestWholesaleSettlement_MarketDocument": {}}`, 0, "expected a single"},
		{"json extra root", models.FormatJSON, `{"RequestAggregatedMeasureData_MarketDocument": {}, "x": 1}`, 0, "expected a single"},
		{"json wrong type", models.FormatJSON, `{"RequestAggregatedMeasureData_MarketDocument": {"Series": "tx"}}`, 1, "cannot unmarshal"},
		{"json not an object", models.FormatJSON, `[]`, 1, "cannot unmarshal"},
		{"xml syntax", models.FormatXML, "<RequestAggregatedMeasureData_MarketDocument>\n<mRID>x</mRID>\n<Series>\n</RequestAggregatedMeasureData_MarketDocument>", 4, "element <Series> closed by"},
		{"xml wrong root", models.FormatXML, `<RequestWholesaleSettlement_MarketDocument/>`, 1, "root element is RequestWholesaleSettlement_MarketDocument"},
		{"xml empty", models.FormatXML, ``, 0, "no root element"},
		{"xml trailing element", models.FormatXML, `<RequestAggregatedMeasureData_MarketDocument/><x/>`, 1, "content after root element"},
		{"bad timestamp", models.FormatJSON, `{"RequestAggregatedMeasureData_MarketDocument": {"createdDateTime": "yesterday"}}`, 0, "not a valid timestamp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Parse(dt, tt.format, []byte(tt.body))
			assert.Nil(t, msg)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedDocument)

			var pe *ParseError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.format, pe.Format)
			assert.Equal(t, tt.wantLine, pe.Line)
			assert.Contains(t, pe.Reason, tt.wantReason)
		})
	}
}

func TestParse_Unsupported(t *testing.T) {
	_, err := Parse(models.DocumentNotifyAggregatedMeasureData, models.FormatJSON, []byte(`{}`))
	assert.ErrorIs(t, err, ErrUnsupportedDocument)

	_, err = Parse(models.DocumentRequestAggregatedMeasureData, models.FormatEbix, []byte(`<x/>`))
	assert.ErrorIs(t, err, ErrUnsupportedDocument)

	assert.True(t, Supports(models.DocumentForwardMeteredData))
	assert.False(t, Supports(models.DocumentRejectRequestWholesaleSettlement))
}

func TestParseError_Message(t *testing.T) {
	assert.Equal(t, "invalid xml document at line 2, column 7: boom",
		(&ParseError{Format: models.FormatXML, Line: 2, Column: 7, Reason: "boom"}).Error())
	assert.Equal(t, "invalid json document: boom",
		(&ParseError{Format: models.FormatJSON, Reason: "boom"}).Error())
}

func TestPosition(t *testing.T) {
	body := []byte("ab\ncd\nef")
	line, col := position(body, 4)
	assert.Equal(t, 2, line)
	assert.Equal(t, 1, col)

	line, col = position(body, 100)
	assert.Equal(t, 3, line)
	assert.Equal(t, 2, col)
}
