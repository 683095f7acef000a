package analytics_test

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/billing-engine/analytics"
	"github.com/warp/billing-engine/ledger"
)

func TestWriteCSV_ExactFormat(t *testing.T) {
	// GIVEN: One rollup row
	// WHEN: Exporting
	// THEN: Text fields quoted, numeric fields bare, fixed header

	rows := []analytics.CaseRow{
		{
			Name:      "Smith v. Smith",
			Label:     "Pierce GAL",
			Charges:   ledger.NewMoneyFromInt(2000),
			Payments:  ledger.NewMoneyFromInt(750),
			Balance:   ledger.NewMoneyFromInt(1250),
			Hours:     decimal.NewFromFloat(2.5),
			Rate:      ledger.NewMoneyFromInt(125),
			TimeValue: ledger.NewMoney(312.5),
		},
	}

	var buf strings.Builder
	require.NoError(t, analytics.WriteCSV(&buf, rows))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Case Name,Label,Charges,Payments,Balance,Hours,Hourly Rate,Time Value", lines[0])
	assert.Equal(t, `"Smith v. Smith","Pierce GAL",2000,750,1250,2.5,125,312.5`, lines[1])
}

func TestWriteCSV_EmbeddedQuotesDoubled(t *testing.T) {
	rows := []analytics.CaseRow{
		{Name: `In re "Baby" Jones`, Label: ""},
	}

	var buf strings.Builder
	require.NoError(t, analytics.WriteCSV(&buf, rows))

	assert.Contains(t, buf.String(), `"In re ""Baby"" Jones","",0,0,0,0,0,0`)
}

func TestWriteCSV_NoRows_HeaderOnly(t *testing.T) {
	var buf strings.Builder
	require.NoError(t, analytics.WriteCSV(&buf, nil))

	assert.Equal(t, "Case Name,Label,Charges,Payments,Balance,Hours,Hourly Rate,Time Value\n", buf.String())
}
