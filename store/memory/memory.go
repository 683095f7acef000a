// Package memory provides in-memory Store and Catalog implementations
// for tests and development.
package memory

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/warp/billing-engine/board"
	"github.com/warp/billing-engine/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Store implements ledger.RecordStore and board.Catalog with maps.
// Values round-trip through JSON so serialization behaves exactly like
// the persistent store, and the same per-card keyed-blob model applies:
// the unified record under 'billingData', legacy split
// 'charges'/'payments' keys merged on load.
type Store struct {
	mu    sync.RWMutex
	kv    map[ledger.CardID]map[string][]byte
	cards map[ledger.CardID]board.Card
	order []ledger.CardID
}

func New() *Store {
	return &Store{
		kv:    make(map[ledger.CardID]map[string][]byte),
		cards: make(map[ledger.CardID]board.Card),
	}
}

// LoadRecord resolves like the persistent store: unified key first, then
// the legacy split keys merged, then an empty default.
func (s *Store) LoadRecord(_ context.Context, cardID ledger.CardID) (ledger.BillingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if raw, ok := s.kv[cardID][ledger.KeyBillingData]; ok {
		var rec ledger.BillingRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return ledger.BillingRecord{}, &ledger.StorageError{Op: "load", CardID: cardID, Key: ledger.KeyBillingData, Err: err}
		}
		rec.Normalize()
		return rec, nil
	}

	rawCharges, hasCharges := s.kv[cardID][ledger.KeyCharges]
	rawPayments, hasPayments := s.kv[cardID][ledger.KeyPayments]
	if hasCharges || hasPayments {
		var charges []ledger.Charge
		var payments []ledger.Payment
		if hasCharges {
			if err := json.Unmarshal(rawCharges, &charges); err != nil {
				return ledger.BillingRecord{}, &ledger.StorageError{Op: "load", CardID: cardID, Key: ledger.KeyCharges, Err: err}
			}
		}
		if hasPayments {
			if err := json.Unmarshal(rawPayments, &payments); err != nil {
				return ledger.BillingRecord{}, &ledger.StorageError{Op: "load", CardID: cardID, Key: ledger.KeyPayments, Err: err}
			}
		}
		return ledger.MergeLegacy(charges, payments), nil
	}

	return ledger.NewRecord(), nil
}

func (s *Store) SaveRecord(ctx context.Context, cardID ledger.CardID, rec ledger.BillingRecord) error {
	return s.SetValue(ctx, cardID, ledger.KeyBillingData, rec)
}

// SetValue writes an arbitrary per-card key. Used by tests seeding
// legacy-form data.
func (s *Store) SetValue(_ context.Context, cardID ledger.CardID, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return &ledger.StorageError{Op: "save", CardID: cardID, Key: key, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.kv[cardID] == nil {
		s.kv[cardID] = make(map[string][]byte)
	}
	s.kv[cardID][key] = raw
	return nil
}

// =============================================================================
// CARD CATALOG
// =============================================================================

func (s *Store) ListCards(_ context.Context) ([]board.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cards := make([]board.Card, 0, len(s.order))
	for _, id := range s.order {
		cards = append(cards, s.cards[id])
	}
	return cards, nil
}

func (s *Store) GetCard(_ context.Context, id ledger.CardID) (board.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	card, ok := s.cards[id]
	if !ok {
		return board.Card{}, ledger.ErrCardNotFound
	}
	return card, nil
}

func (s *Store) SaveCard(_ context.Context, card board.Card) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.cards[card.ID]; !exists {
		s.order = append(s.order, card.ID)
	}
	s.cards[card.ID] = card
	return nil
}

func (s *Store) SetLabels(_ context.Context, id ledger.CardID, labels []board.Label) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	card, ok := s.cards[id]
	if !ok {
		return ledger.ErrCardNotFound
	}
	card.Labels = labels
	s.cards[id] = card
	return nil
}
