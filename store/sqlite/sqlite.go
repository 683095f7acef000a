/*
Package sqlite provides a SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements ledger.RecordStore and board.Catalog using SQLite. This
  plays the role the host platform's per-card shared storage played in
  the source system: a key-value blob per (card, key), read and written
  wholesale.

KEY TABLES:
  cards:        Card catalog (id, name, label set)
  card_storage: Per-card key-value blobs. The unified record lives
                under the 'billingData' key; earlier variants wrote
                split 'charges'/'payments' keys, which LoadRecord
                merges transparently.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety within the process. Record writes
  replace the whole blob - last write wins, matching the storage
  contract in ledger/store.go.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/billing.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - ledger/store.go: Interface definition and storage contract
  - store/memory: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/billing-engine/board"
	"github.com/warp/billing-engine/ledger"
)

// Store implements ledger.RecordStore and board.Catalog using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS cards (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		labels_json TEXT NOT NULL DEFAULT '[]',
		created_at TEXT NOT NULL
	);

	-- Per-card shared key-value storage (the 'billingData' blob and
	-- legacy split keys). Value is a JSON document written wholesale.
	CREATE TABLE IF NOT EXISTS card_storage (
		card_id TEXT NOT NULL,
		key TEXT NOT NULL,
		value_json TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (card_id, key)
	);

	CREATE INDEX IF NOT EXISTS idx_card_storage_key ON card_storage(key);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// RECORD STORE
// =============================================================================

// LoadRecord returns the card's billing record. Resolution order:
//  1. unified 'billingData' key
//  2. legacy split 'charges'/'payments' keys, merged
//  3. empty default record
func (s *Store) LoadRecord(ctx context.Context, cardID ledger.CardID) (ledger.BillingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, err := s.getValue(ctx, cardID, ledger.KeyBillingData)
	if err != nil {
		return ledger.BillingRecord{}, &ledger.StorageError{Op: "load", CardID: cardID, Key: ledger.KeyBillingData, Err: err}
	}
	if raw != nil {
		var rec ledger.BillingRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return ledger.BillingRecord{}, &ledger.StorageError{Op: "load", CardID: cardID, Key: ledger.KeyBillingData, Err: err}
		}
		rec.Normalize()
		return rec, nil
	}

	rec, found, err := s.loadLegacy(ctx, cardID)
	if err != nil {
		return ledger.BillingRecord{}, err
	}
	if found {
		return rec, nil
	}

	return ledger.NewRecord(), nil
}

// SaveRecord persists the full record under the unified key, replacing
// whatever was stored. Last write wins.
func (s *Store) SaveRecord(ctx context.Context, cardID ledger.CardID, rec ledger.BillingRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return &ledger.StorageError{Op: "save", CardID: cardID, Key: ledger.KeyBillingData, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO card_storage (card_id, key, value_json, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(card_id, key) DO UPDATE SET
			value_json = excluded.value_json,
			updated_at = excluded.updated_at
	`, string(cardID), ledger.KeyBillingData, string(raw), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return &ledger.StorageError{Op: "save", CardID: cardID, Key: ledger.KeyBillingData, Err: err}
	}
	return nil
}

// loadLegacy merges split-key records written by earlier variants.
func (s *Store) loadLegacy(ctx context.Context, cardID ledger.CardID) (ledger.BillingRecord, bool, error) {
	rawCharges, err := s.getValue(ctx, cardID, ledger.KeyCharges)
	if err != nil {
		return ledger.BillingRecord{}, false, &ledger.StorageError{Op: "load", CardID: cardID, Key: ledger.KeyCharges, Err: err}
	}
	rawPayments, err := s.getValue(ctx, cardID, ledger.KeyPayments)
	if err != nil {
		return ledger.BillingRecord{}, false, &ledger.StorageError{Op: "load", CardID: cardID, Key: ledger.KeyPayments, Err: err}
	}
	if rawCharges == nil && rawPayments == nil {
		return ledger.BillingRecord{}, false, nil
	}

	var charges []ledger.Charge
	var payments []ledger.Payment
	if rawCharges != nil {
		if err := json.Unmarshal(rawCharges, &charges); err != nil {
			return ledger.BillingRecord{}, false, &ledger.StorageError{Op: "load", CardID: cardID, Key: ledger.KeyCharges, Err: err}
		}
	}
	if rawPayments != nil {
		if err := json.Unmarshal(rawPayments, &payments); err != nil {
			return ledger.BillingRecord{}, false, &ledger.StorageError{Op: "load", CardID: cardID, Key: ledger.KeyPayments, Err: err}
		}
	}
	return ledger.MergeLegacy(charges, payments), true, nil
}

func (s *Store) getValue(ctx context.Context, cardID ledger.CardID, key string) ([]byte, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value_json FROM card_storage WHERE card_id = ? AND key = ?`,
		string(cardID), key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(value), nil
}

// SetValue writes an arbitrary per-card key. Used by tests and by
// migrations seeding legacy-form data.
func (s *Store) SetValue(ctx context.Context, cardID ledger.CardID, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return &ledger.StorageError{Op: "save", CardID: cardID, Key: key, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO card_storage (card_id, key, value_json, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(card_id, key) DO UPDATE SET
			value_json = excluded.value_json,
			updated_at = excluded.updated_at
	`, string(cardID), key, string(raw), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return &ledger.StorageError{Op: "save", CardID: cardID, Key: key, Err: err}
	}
	return nil
}

// =============================================================================
// CARD CATALOG
// =============================================================================

func (s *Store) ListCards(ctx context.Context) ([]board.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, labels_json FROM cards ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}
	defer rows.Close()

	var cards []board.Card
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		cards = append(cards, card)
	}
	return cards, rows.Err()
}

func (s *Store) GetCard(ctx context.Context, id ledger.CardID) (board.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, labels_json FROM cards WHERE id = ?`, string(id))

	card, err := scanCard(row)
	if errors.Is(err, sql.ErrNoRows) {
		return board.Card{}, ledger.ErrCardNotFound
	}
	if err != nil {
		return board.Card{}, err
	}
	return card, nil
}

func (s *Store) SaveCard(ctx context.Context, card board.Card) error {
	labels, err := json.Marshal(card.Labels)
	if err != nil {
		return fmt.Errorf("failed to encode labels: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cards (id, name, labels_json, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			labels_json = excluded.labels_json
	`, string(card.ID), card.Name, string(labels), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save card: %w", err)
	}
	return nil
}

func (s *Store) SetLabels(ctx context.Context, id ledger.CardID, labels []board.Label) error {
	raw, err := json.Marshal(labels)
	if err != nil {
		return fmt.Errorf("failed to encode labels: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE cards SET labels_json = ? WHERE id = ?`, string(raw), string(id))
	if err != nil {
		return fmt.Errorf("failed to update labels: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrCardNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCard(row rowScanner) (board.Card, error) {
	var id, name, labelsJSON string
	if err := row.Scan(&id, &name, &labelsJSON); err != nil {
		return board.Card{}, err
	}
	var labels []board.Label
	if err := json.Unmarshal([]byte(labelsJSON), &labels); err != nil {
		return board.Card{}, fmt.Errorf("failed to decode labels for card %s: %w", id, err)
	}
	return board.Card{ID: ledger.CardID(id), Name: name, Labels: labels}, nil
}
