/*
Package analytics builds board-wide rollups of billing data: one row
per card, summary stats, per-label breakdowns, and CSV export.

Everything here is a pure function of loaded records; per-card load
failures degrade to an empty record so one bad blob never takes down
the whole report.
*/
package analytics

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/warp/billing-engine/board"
	"github.com/warp/billing-engine/ledger"
)

// CaseRow is the per-card rollup line.
type CaseRow struct {
	CardID    ledger.CardID
	Name      string
	Label     string // primary billing label, "" when none
	Charges   ledger.Money
	Payments  ledger.Money
	Balance   ledger.Money
	Hours     decimal.Decimal
	Rate      ledger.Money
	TimeValue ledger.Money
}

// Filter narrows a report. Zero values mean "no filtering".
type Filter struct {
	Label  string
	Status Status
}

type Status string

const (
	StatusAny    Status = ""
	StatusActive Status = "active" // balance > 0
	StatusPaid   Status = "paid"   // balance <= 0
)

// Stats are the board-wide summary numbers.
type Stats struct {
	Cases       int
	Revenue     ledger.Money // total charges
	Paid        ledger.Money // total payments
	Outstanding ledger.Money // sum of positive balances only
	Hours       decimal.Decimal
	TimeValue   ledger.Money
}

// LabelStats aggregates the rows sharing one label.
type LabelStats struct {
	Label    string
	Count    int
	Charges  ledger.Money
	Payments ledger.Money
	Balance  ledger.Money
	Hours    decimal.Decimal
}

// Collect builds one row per card from the catalog and record store.
func Collect(ctx context.Context, cards board.Catalog, records ledger.RecordStore, rc *ledger.Reconciler) ([]CaseRow, error) {
	all, err := cards.ListCards(ctx)
	if err != nil {
		return nil, err
	}

	rows := make([]CaseRow, 0, len(all))
	for _, card := range all {
		rec, err := records.LoadRecord(ctx, card.ID)
		if err != nil {
			rec = ledger.NewRecord()
		}

		labels := card.LabelNames()
		rate, label := rc.RateFor(&rec, labels)
		if label == "" {
			// Cards without a rate label may still carry a flat-fee label.
			if rule, ok := rc.PrimaryChargeLabel(labels); ok {
				label = rule.Label
			}
		}

		row := CaseRow{
			CardID:   card.ID,
			Name:     card.Name,
			Label:    label,
			Charges:  rec.TotalCharges(),
			Payments: rec.TotalPayments(),
			Balance:  rec.Balance(),
			Hours:    rec.TrackedHours,
			Rate:     rate,
		}
		row.TimeValue = rate.Mul(row.Hours)
		rows = append(rows, row)
	}
	return rows, nil
}

// Apply filters rows by label and payment status.
func Apply(rows []CaseRow, f Filter) []CaseRow {
	out := make([]CaseRow, 0, len(rows))
	for _, r := range rows {
		if f.Label != "" && r.Label != f.Label {
			continue
		}
		if f.Status == StatusActive && !r.Balance.IsPositive() {
			continue
		}
		if f.Status == StatusPaid && r.Balance.IsPositive() {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Summarize computes board-wide stats over the given rows.
func Summarize(rows []CaseRow) Stats {
	s := Stats{Cases: len(rows)}
	for _, r := range rows {
		s.Revenue = s.Revenue.Add(r.Charges)
		s.Paid = s.Paid.Add(r.Payments)
		if r.Balance.IsPositive() {
			s.Outstanding = s.Outstanding.Add(r.Balance)
		}
		s.Hours = s.Hours.Add(r.Hours)
		s.TimeValue = s.TimeValue.Add(r.TimeValue)
	}
	return s
}

// ByLabel aggregates rows per label, in first-appearance order.
// Unlabeled rows are skipped.
func ByLabel(rows []CaseRow) []LabelStats {
	index := map[string]int{}
	var out []LabelStats
	for _, r := range rows {
		if r.Label == "" {
			continue
		}
		i, ok := index[r.Label]
		if !ok {
			i = len(out)
			index[r.Label] = i
			out = append(out, LabelStats{Label: r.Label})
		}
		out[i].Count++
		out[i].Charges = out[i].Charges.Add(r.Charges)
		out[i].Payments = out[i].Payments.Add(r.Payments)
		out[i].Balance = out[i].Balance.Add(r.Balance)
		out[i].Hours = out[i].Hours.Add(r.Hours)
	}
	return out
}
