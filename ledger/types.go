/*
Package ledger provides the core billing ledger engine.

PURPOSE:
  This package contains the types and operations for a per-card billing
  record: charges, payments, balance computation, and label-driven
  auto-charge reconciliation. It has no knowledge of HTTP, storage
  backends, or the time-tracking API - those live in their own packages
  and operate on the types defined here.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: A currency amount backed by decimal.Decimal
  - Date: A calendar date (day granularity, serialized as YYYY-MM-DD)
  - Charge/Payment: The two ledger entry kinds
  - BillingRecord: One record per card, holding both entry lists

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal to avoid floating-point errors
  2. Stable IDs: Every entry gets a unique id at creation, used for deletion
  3. Whole-record persistence: Records are read, mutated, and written back
     wholesale; there are no partial field-level writes

SEE ALSO:
  - record.go: Record mutation and totals
  - reconcile.go: Label-driven auto-charge reconciliation
  - summary.go: Read-only presentation feed
  - store.go: Persistence interface
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Currency amount backed by decimal
// =============================================================================

type Money struct {
	Value decimal.Decimal
}

func NewMoney(v float64) Money {
	return Money{Value: decimal.NewFromFloat(v)}
}

func NewMoneyFromInt(v int) Money {
	return Money{Value: decimal.NewFromInt(int64(v))}
}

// ParseMoney parses a decimal string like "2000" or "126.50".
// Invalid input yields zero.
func ParseMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{Value: decimal.Zero}
	}
	return Money{Value: d}
}

func (m Money) Add(o Money) Money              { return Money{Value: m.Value.Add(o.Value)} }
func (m Money) Sub(o Money) Money              { return Money{Value: m.Value.Sub(o.Value)} }
func (m Money) Neg() Money                     { return Money{Value: m.Value.Neg()} }
func (m Money) Mul(d decimal.Decimal) Money    { return Money{Value: m.Value.Mul(d)} }
func (m Money) IsPositive() bool               { return m.Value.IsPositive() }
func (m Money) IsNegative() bool               { return m.Value.IsNegative() }
func (m Money) IsZero() bool                   { return m.Value.IsZero() }
func (m Money) GreaterThan(o Money) bool       { return m.Value.GreaterThan(o.Value) }
func (m Money) LessThan(o Money) bool          { return m.Value.LessThan(o.Value) }
func (m Money) Equal(o Money) bool             { return m.Value.Equal(o.Value) }
func (m Money) Float64() float64               { f, _ := m.Value.Float64(); return f }

// String renders with two decimal places, e.g. "2000.00".
func (m Money) String() string { return m.Value.StringFixed(2) }

func (m Money) MarshalJSON() ([]byte, error) { return m.Value.MarshalJSON() }

func (m *Money) UnmarshalJSON(data []byte) error { return m.Value.UnmarshalJSON(data) }

// =============================================================================
// DATE - Calendar date, day granularity
// =============================================================================

type Date struct {
	Time time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// Today returns the current date in the caller's local calendar.
func Today() Date {
	now := time.Now()
	return NewDate(now.Year(), now.Month(), now.Day())
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

func (d Date) IsZero() bool        { return d.Time.IsZero() }
func (d Date) Before(o Date) bool  { return d.normalize().Before(o.normalize()) }
func (d Date) After(o Date) bool   { return d.normalize().After(o.normalize()) }
func (d Date) Equal(o Date) bool   { return d.normalize().Equal(o.normalize()) }
func (d Date) String() string      { return d.Time.Format("2006-01-02") }

func (d Date) normalize() time.Time {
	return time.Date(d.Time.Year(), d.Time.Month(), d.Time.Day(), 0, 0, 0, 0, time.UTC)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON accepts both "2006-01-02" and full RFC3339 timestamps.
// Records written by earlier variants stored full ISO timestamps.
func (d *Date) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "" || s == "null" {
		d.Time = time.Time{}
		return nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		d.Time = t
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type CardID string
type EntryID string

// =============================================================================
// LEDGER ENTRIES
// =============================================================================

// Charge is a billing entry against a card. Auto marks system-generated
// charges created by reconciliation; Hours, when set, marks a rate-derived
// charge (amount = hours * rate) instead of a flat fee.
type Charge struct {
	ID          EntryID          `json:"id"`
	Type        string           `json:"type"`
	Date        Date             `json:"date"`
	Amount      Money            `json:"amount"`
	Auto        bool             `json:"auto,omitempty"`
	Description string           `json:"description,omitempty"`
	Hours       *decimal.Decimal `json:"hours,omitempty"`
}

// IsHourly reports whether the charge was derived from tracked time.
func (c Charge) IsHourly() bool { return c.Hours != nil }

// Payment is a payment entry against a card.
type Payment struct {
	ID     EntryID `json:"id"`
	Date   Date    `json:"date"`
	Amount Money   `json:"amount"`
	Note   string  `json:"note,omitempty"`
}

// =============================================================================
// BILLING RECORD - One per card
// =============================================================================

// BillingRecord is the per-card billing state. It is persisted as a single
// value in the card's shared key-value storage and always written back
// wholesale (last write wins, see store.go).
type BillingRecord struct {
	Charges  []Charge  `json:"charges"`
	Payments []Payment `json:"payments"`

	// HourlyRates holds per-card rate overrides keyed by rate label.
	// When absent, the configured rate table applies.
	HourlyRates map[string]Money `json:"hourlyRates,omitempty"`

	// TrackedHours is the hours total last pulled from the time-tracking
	// API. Zero when never synced.
	TrackedHours decimal.Decimal `json:"togglHours"`

	// LastSync records when TrackedHours was last refreshed.
	LastSync time.Time `json:"lastTogglSync,omitempty"`
}
