/*
record.go - Billing record mutation and totals

PURPOSE:
  Implements the ledger operations on a BillingRecord: append charges and
  payments with validation, delete entries by id, and compute the derived
  totals. These are in-memory operations; persistence is the caller's
  concern (load, mutate, save - see store.go).

INVARIANTS:
  1. Amounts are strictly positive at creation time. Entries with
     non-positive amounts are rejected with ValidationError, not stored.
  2. Charges carry a non-empty type/category; payments don't need one.
  3. Entry ids are unique within their list and stable for the lifetime
     of the entry. They are assigned here, never by the caller.
  4. Balance = sum(charges) - sum(payments). May be negative
     (overpayment) or positive (amount owed).

DELETION:
  Deleting an unknown entry id is a no-op, not an error. The entry may
  have been removed by a concurrent writer; totals are unaffected.
*/
package ledger

import (
	"github.com/google/uuid"
)

// EntryList names one of the two entry lists on a record.
type EntryList string

const (
	ListCharges  EntryList = "charges"
	ListPayments EntryList = "payments"
)

// NewRecord returns a structurally-valid empty record. Used as the lazy
// default when no record exists for a card yet.
func NewRecord() BillingRecord {
	return BillingRecord{
		Charges:  []Charge{},
		Payments: []Payment{},
	}
}

// Normalize repairs nil slices after deserialization so callers never see
// a nil list. Records written by earlier variants omitted empty lists.
func (r *BillingRecord) Normalize() {
	if r.Charges == nil {
		r.Charges = []Charge{}
	}
	if r.Payments == nil {
		r.Payments = []Payment{}
	}
}

// MergeLegacy builds a unified record from the legacy split form, where
// charges and payments were stored under separate keys.
func MergeLegacy(charges []Charge, payments []Payment) BillingRecord {
	r := NewRecord()
	r.Charges = append(r.Charges, charges...)
	r.Payments = append(r.Payments, payments...)
	for i := range r.Charges {
		if r.Charges[i].ID == "" {
			r.Charges[i].ID = newEntryID()
		}
	}
	for i := range r.Payments {
		if r.Payments[i].ID == "" {
			r.Payments[i].ID = newEntryID()
		}
	}
	return r
}

// =============================================================================
// APPEND OPERATIONS
// =============================================================================

// AddCharge validates and appends a charge. The entry's id is always
// generated fresh; a zero date defaults to today. Returns the stored
// entry. On validation failure the record is unchanged.
func (r *BillingRecord) AddCharge(c Charge) (Charge, error) {
	if c.Type == "" {
		return Charge{}, &ValidationError{Field: "type", Message: "charge type is required"}
	}
	if !c.Amount.IsPositive() {
		return Charge{}, &ValidationError{Field: "amount", Message: "amount must be positive"}
	}
	if c.Date.IsZero() {
		c.Date = Today()
	}
	c.ID = newEntryID()
	r.Charges = append(r.Charges, c)
	return c, nil
}

// AddPayment validates and appends a payment. Same validation pattern as
// AddCharge, minus the type requirement.
func (r *BillingRecord) AddPayment(p Payment) (Payment, error) {
	if !p.Amount.IsPositive() {
		return Payment{}, &ValidationError{Field: "amount", Message: "amount must be positive"}
	}
	if p.Date.IsZero() {
		p.Date = Today()
	}
	p.ID = newEntryID()
	r.Payments = append(r.Payments, p)
	return p, nil
}

// =============================================================================
// DELETION
// =============================================================================

// DeleteEntry removes the entry with the given id from the named list.
// Returns true if an entry was removed; false (no error) if not found.
func (r *BillingRecord) DeleteEntry(list EntryList, id EntryID) bool {
	switch list {
	case ListCharges:
		for i, c := range r.Charges {
			if c.ID == id {
				r.Charges = append(r.Charges[:i], r.Charges[i+1:]...)
				return true
			}
		}
	case ListPayments:
		for i, p := range r.Payments {
			if p.ID == id {
				r.Payments = append(r.Payments[:i], r.Payments[i+1:]...)
				return true
			}
		}
	}
	return false
}

// =============================================================================
// DERIVED TOTALS
// =============================================================================

// TotalCharges sums all charge amounts.
func (r *BillingRecord) TotalCharges() Money {
	total := Money{}
	for _, c := range r.Charges {
		total = total.Add(c.Amount)
	}
	return total
}

// TotalPayments sums all payment amounts.
func (r *BillingRecord) TotalPayments() Money {
	total := Money{}
	for _, p := range r.Payments {
		total = total.Add(p.Amount)
	}
	return total
}

// Balance is total charges minus total payments. Positive = amount owed,
// negative = credit/overpayment.
func (r *BillingRecord) Balance() Money {
	return r.TotalCharges().Sub(r.TotalPayments())
}

// AutoCharge returns the automatic charge for the given label, if any.
// At most one exists per (label, auto=true) pair - see reconcile.go.
func (r *BillingRecord) AutoCharge(label string) (Charge, bool) {
	for _, c := range r.Charges {
		if c.Auto && c.Type == label {
			return c, true
		}
	}
	return Charge{}, false
}

func newEntryID() EntryID {
	return EntryID(uuid.NewString())
}
