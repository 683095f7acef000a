/*
Package board models the host task-board surface the ledger is attached
to: cards and their label sets. The label set is the sole input to
auto-charge reconciliation; everything else about the board (lists,
members, UI) is out of scope.
*/
package board

import (
	"context"

	"github.com/warp/billing-engine/ledger"
)

// Label is a tag on a card, used purely as a billing trigger.
type Label struct {
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// Card is the task-tracking unit billing data is attached to.
// One billing record per card.
type Card struct {
	ID     ledger.CardID `json:"id"`
	Name   string        `json:"name"`
	Labels []Label       `json:"labels"`
}

// LabelNames returns the card's label names in declaration order.
func (c Card) LabelNames() []string {
	names := make([]string, len(c.Labels))
	for i, l := range c.Labels {
		names[i] = l.Name
	}
	return names
}

// Catalog is the card metadata surface. Label changes flow through
// SetLabels so callers can reconcile afterwards.
type Catalog interface {
	// ListCards returns all cards on the board.
	ListCards(ctx context.Context) ([]Card, error)

	// GetCard returns a card by id, or ErrCardNotFound.
	GetCard(ctx context.Context, id ledger.CardID) (Card, error)

	// SaveCard creates or replaces a card.
	SaveCard(ctx context.Context, card Card) error

	// SetLabels replaces a card's label set.
	SetLabels(ctx context.Context, id ledger.CardID, labels []Label) error
}
