/*
store.go - Persistence interface for billing records

PURPOSE:
  Defines the interface between the ledger and the per-card shared
  key-value storage. Implementations may use SQLite or in-memory maps;
  the contract is the same either way.

CONTRACT:
  - Whole-record persistence: records are read, locally mutated, and
    written back wholesale. There are no partial or field-level writes,
    no transactions, and no optimistic-concurrency tokens.
  - Lazy defaults: a missing record loads as a structurally-valid empty
    record ({charges:[], payments:[]}). LoadRecord never fails on
    missing data.
  - Legacy form: records may exist as split 'charges'/'payments' keys
    written by earlier variants; implementations merge them on load.

KNOWN LIMITATION (accepted, not a defect to fix):
  Two concurrent read-modify-write cycles against the same record race,
  and the later write wins, silently dropping the earlier mutation.
  Single-card traffic is effectively sequential in practice, so this
  matches the source system's semantics. Callers must not assume
  stronger guarantees.

ERROR HANDLING:
  Implementations wrap backend failures in *StorageError. Callers log
  and fall back to defaults on read failure; a failed write leaves the
  prior stored state as the effective state. No automatic retries.

IMPLEMENTATIONS:
  - store/memory: in-memory, for tests and development
  - store/sqlite: SQLite-backed, also owns the card catalog
*/
package ledger

import "context"

// Storage key for the unified record, plus the legacy split keys.
const (
	KeyBillingData = "billingData"
	KeyCharges     = "charges"
	KeyPayments    = "payments"
)

// RecordStore persists one BillingRecord per card.
type RecordStore interface {
	// LoadRecord returns the card's record, or an empty default if none
	// exists. Only backend failures produce an error (*StorageError).
	LoadRecord(ctx context.Context, cardID CardID) (BillingRecord, error)

	// SaveRecord persists the full record, replacing whatever was
	// stored. Last write wins.
	SaveRecord(ctx context.Context, cardID CardID, rec BillingRecord) error
}
