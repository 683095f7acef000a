/*
csv.go - Flat-file export of the per-card rollup

One row per card, comma-delimited. Text fields are always
double-quoted, numeric fields never are - the exact format downstream
spreadsheets were built against, so encoding/csv's minimal quoting is
deliberately not used here.
*/
package analytics

import (
	"fmt"
	"io"
	"strings"
)

const csvHeader = "Case Name,Label,Charges,Payments,Balance,Hours,Hourly Rate,Time Value"

// WriteCSV writes the rows in the export format.
func WriteCSV(w io.Writer, rows []CaseRow) error {
	if _, err := fmt.Fprintln(w, csvHeader); err != nil {
		return err
	}
	for _, r := range rows {
		_, err := fmt.Fprintf(w, "%s,%s,%s,%s,%s,%s,%s,%s\n",
			quote(r.Name),
			quote(r.Label),
			r.Charges.Value.String(),
			r.Payments.Value.String(),
			r.Balance.Value.String(),
			r.Hours.String(),
			r.Rate.Value.String(),
			r.TimeValue.Value.String(),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
