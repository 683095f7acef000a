/*
reconcile.go - Label-driven auto-charge reconciliation

PURPOSE:
  Keeps the set of automatic charges on a record consistent with the
  card's current label set. Runs on record load, on every label change,
  and from the periodic sweep.

CONTRACT:
  Given the card's current labels L and record R:
  1. The PRIMARY billing label is the first entry of the auto-charge
     table present in L. The table is an ordered priority list, and the
     whole list is one mutually-exclusive group: when two billing
     labels are present at once (e.g. two county variants of the same
     case type), only the first in table order is charged. This is a
     deliberate simplification carried from the source system.
  2. If the primary label has no existing (type==label, auto==true)
     charge, one is appended, dated today, with the table's amount.
  3. When RetractOnRemoval is set, automatic charges for table labels
     other than the primary (removed labels, or lower-priority group
     members) are removed. When unset, automatic charges are permanent
     once applied.
  4. Reconciliation is idempotent: running it twice with an unchanged
     label set produces no additional mutation and no duplicate
     charges.

RATE-DERIVED CHARGES:
  The hourly-rate table works the same way (ordered, first match wins)
  but produces a charge amount of hours * rate instead of a flat fee.
  Rate-derived charges carry the hours they were computed from.

CONFIGURATION:
  Both tables vary across deployments and are injected, never
  hard-coded. See config package.
*/
package ledger

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// RULE TABLES - Ordered priority lists
// =============================================================================

// AutoChargeRule maps a label to a flat fee applied once per card.
type AutoChargeRule struct {
	Label  string
	Amount Money
}

// RateRule maps a label to an hourly billing rate.
type RateRule struct {
	Label string
	Rate  Money
}

// =============================================================================
// RECONCILER
// =============================================================================

// Reconciler applies the auto-charge contract to billing records.
// Table order is priority order.
type Reconciler struct {
	AutoCharges []AutoChargeRule
	HourlyRates []RateRule

	// RetractOnRemoval controls whether removing a label retracts its
	// automatic charge. Some source variants retracted, some left the
	// charge permanent; this resolves that divergence as configuration.
	RetractOnRemoval bool

	// DefaultRate applies when no rate label matches and the record has
	// no override. Zero means no hourly billing without a label.
	DefaultRate Money

	// Now is the clock for newly created charges. Defaults to Today.
	Now func() Date
}

// Result reports what a reconciliation pass changed.
type Result struct {
	Added   []Charge
	Removed []Charge
}

// Changed reports whether the pass mutated the record.
func (res Result) Changed() bool {
	return len(res.Added) > 0 || len(res.Removed) > 0
}

// PrimaryChargeLabel returns the highest-priority auto-charge label
// present in the label set.
func (rc *Reconciler) PrimaryChargeLabel(labels []string) (AutoChargeRule, bool) {
	for _, rule := range rc.AutoCharges {
		if containsLabel(labels, rule.Label) {
			return rule, true
		}
	}
	return AutoChargeRule{}, false
}

// PrimaryRateLabel returns the highest-priority rate label present in
// the label set.
func (rc *Reconciler) PrimaryRateLabel(labels []string) (RateRule, bool) {
	for _, rule := range rc.HourlyRates {
		if containsLabel(labels, rule.Label) {
			return rule, true
		}
	}
	return RateRule{}, false
}

// Reconcile applies the contract above to the record in place and
// reports what changed. Idempotent for an unchanged label set.
func (rc *Reconciler) Reconcile(rec *BillingRecord, labels []string) Result {
	var res Result

	primary, hasPrimary := rc.PrimaryChargeLabel(labels)

	if hasPrimary {
		if _, exists := rec.AutoCharge(primary.Label); !exists {
			charge := Charge{
				ID:     newEntryID(),
				Type:   primary.Label,
				Date:   rc.today(),
				Amount: primary.Amount,
				Auto:   true,
			}
			rec.Charges = append(rec.Charges, charge)
			res.Added = append(res.Added, charge)
		}
	}

	if rc.RetractOnRemoval {
		kept := rec.Charges[:0]
		for _, c := range rec.Charges {
			if c.Auto && rc.isTableLabel(c.Type) && (!hasPrimary || c.Type != primary.Label) {
				res.Removed = append(res.Removed, c)
				continue
			}
			kept = append(kept, c)
		}
		rec.Charges = kept
	}

	return res
}

// RateFor resolves the hourly rate for a card: per-record override for
// the primary rate label first, then the rate table, then DefaultRate.
// The returned label names the rate's origin ("" for the default).
func (rc *Reconciler) RateFor(rec *BillingRecord, labels []string) (Money, string) {
	if rule, ok := rc.PrimaryRateLabel(labels); ok {
		if rec.HourlyRates != nil {
			if override, ok := rec.HourlyRates[rule.Label]; ok {
				return override, rule.Label
			}
		}
		return rule.Rate, rule.Label
	}
	return rc.DefaultRate, ""
}

// HourlyCharge builds a rate-derived charge (amount = hours * rate) for
// the card's primary rate label. The charge is NOT appended here; pass
// it to AddCharge so normal validation applies.
func (rc *Reconciler) HourlyCharge(rec *BillingRecord, labels []string, hours decimal.Decimal) (Charge, error) {
	if !hours.IsPositive() {
		return Charge{}, &ValidationError{Field: "hours", Message: "hours must be positive"}
	}
	rate, label := rc.RateFor(rec, labels)
	if !rate.IsPositive() {
		return Charge{}, &ValidationError{Field: "rate", Message: "no hourly rate configured for this card"}
	}
	chargeType := "Hourly"
	if label != "" {
		chargeType = label + " Hourly"
	}
	h := hours
	return Charge{
		Type:   chargeType,
		Date:   rc.today(),
		Amount: rate.Mul(hours),
		Hours:  &h,
	}, nil
}

func (rc *Reconciler) isTableLabel(label string) bool {
	for _, rule := range rc.AutoCharges {
		if rule.Label == label {
			return true
		}
	}
	return false
}

func (rc *Reconciler) today() Date {
	if rc.Now != nil {
		return rc.Now()
	}
	return Today()
}

func containsLabel(labels []string, name string) bool {
	for _, l := range labels {
		if l == name {
			return true
		}
	}
	return false
}
