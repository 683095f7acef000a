/*
Package billing orchestrates the ledger, storage, reconciliation, and
time-tracking sync for cards.

PURPOSE:
  Wraps the pure ledger core with the load-mutate-save cycle against
  per-card storage. Every mutation here is a whole-record
  read-modify-write; see ledger/store.go for the (accepted) last-write-
  wins race this implies.

RECONCILE-ON-LOAD:
  Loading a record through this service always reconciles it against
  the card's current label set first, so callers never observe a record
  that is stale with respect to the labels.

ERROR POLICY (per taxonomy in ledger/errors.go):
  - Validation failures reject the input; nothing is persisted.
  - Storage read failures: read-only paths serve a reconciled empty
    view, which is NEVER written back - the stored ledger stays intact
    through transient read errors. Mutation paths surface the error
    instead of rebuilding a record from scratch.
  - Storage write failures are retried once, then surfaced; the prior
    stored state remains effective.
  - Time-tracking failures surface to the caller and never touch the
    ledger. There is no automatic retry; the user re-triggers sync.
*/
package billing

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/billing-engine/board"
	"github.com/warp/billing-engine/ledger"
	"github.com/warp/billing-engine/toggl"
)

// Service ties the ledger core to storage, the card catalog, and the
// optional time-tracking client.
type Service struct {
	Records    ledger.RecordStore
	Cards      board.Catalog
	Reconciler *ledger.Reconciler

	// Toggl is nil when no API token is configured; sync operations
	// then fail with a user-visible error and everything else works.
	Toggl      *toggl.Client
	SyncWindow time.Duration

	Log *zap.Logger
}

// New creates a service. Pass zap.NewNop() when logging is unwanted.
func New(records ledger.RecordStore, cards board.Catalog, rc *ledger.Reconciler, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		Records:    records,
		Cards:      cards,
		Reconciler: rc,
		SyncWindow: 365 * 24 * time.Hour,
		Log:        log,
	}
}

// =============================================================================
// RECORD ACCESS
// =============================================================================

// Record loads the card's billing record, reconciled against its
// current labels. A storage read failure degrades to a reconciled empty
// view: served to the caller, never written back, so the stored ledger
// survives transient read errors untouched.
func (s *Service) Record(ctx context.Context, cardID ledger.CardID) (ledger.BillingRecord, error) {
	card, err := s.Cards.GetCard(ctx, cardID)
	if err != nil {
		return ledger.BillingRecord{}, err
	}
	rec, err := s.loadReconciled(ctx, card)
	if err != nil {
		s.Log.Warn("record load failed, serving empty fallback view",
			zap.String("card", string(card.ID)), zap.Error(err))
		rec = ledger.NewRecord()
		s.Reconciler.Reconcile(&rec, card.LabelNames())
	}
	return rec, nil
}

// loadReconciled loads and reconciles the record, persisting any
// reconciliation changes. Read failures surface as-is; callers that
// mutate must stop there rather than operate on a fabricated record.
func (s *Service) loadReconciled(ctx context.Context, card board.Card) (ledger.BillingRecord, error) {
	rec, err := s.Records.LoadRecord(ctx, card.ID)
	if err != nil {
		return ledger.BillingRecord{}, err
	}

	res := s.Reconciler.Reconcile(&rec, card.LabelNames())
	if res.Changed() {
		s.Log.Info("reconciled record",
			zap.String("card", string(card.ID)),
			zap.Int("added", len(res.Added)),
			zap.Int("removed", len(res.Removed)))
		if err := s.save(ctx, card.ID, rec); err != nil {
			// Keep serving the reconciled view; storage retains the
			// prior state until the next successful write.
			s.Log.Error("failed to persist reconciled record",
				zap.String("card", string(card.ID)), zap.Error(err))
		}
	}
	return rec, nil
}

// loadForUpdate resolves the card and loads its reconciled record for a
// mutation. Unlike Record, a read failure aborts: mutating an empty
// stand-in and saving it would overwrite the real stored ledger.
func (s *Service) loadForUpdate(ctx context.Context, cardID ledger.CardID) (ledger.BillingRecord, error) {
	card, err := s.Cards.GetCard(ctx, cardID)
	if err != nil {
		return ledger.BillingRecord{}, err
	}
	return s.loadReconciled(ctx, card)
}

// save persists the record, retrying once on failure.
func (s *Service) save(ctx context.Context, cardID ledger.CardID, rec ledger.BillingRecord) error {
	err := s.Records.SaveRecord(ctx, cardID, rec)
	if err == nil {
		return nil
	}
	s.Log.Warn("record save failed, retrying once",
		zap.String("card", string(cardID)), zap.Error(err))
	return s.Records.SaveRecord(ctx, cardID, rec)
}

// =============================================================================
// MUTATIONS
// =============================================================================

// AddCharge validates, appends, and persists a charge. Returns the
// stored entry with its generated id.
func (s *Service) AddCharge(ctx context.Context, cardID ledger.CardID, charge ledger.Charge) (ledger.Charge, error) {
	rec, err := s.loadForUpdate(ctx, cardID)
	if err != nil {
		return ledger.Charge{}, err
	}
	stored, err := rec.AddCharge(charge)
	if err != nil {
		return ledger.Charge{}, err
	}
	if err := s.save(ctx, cardID, rec); err != nil {
		return ledger.Charge{}, err
	}
	return stored, nil
}

// AddPayment validates, appends, and persists a payment.
func (s *Service) AddPayment(ctx context.Context, cardID ledger.CardID, payment ledger.Payment) (ledger.Payment, error) {
	rec, err := s.loadForUpdate(ctx, cardID)
	if err != nil {
		return ledger.Payment{}, err
	}
	stored, err := rec.AddPayment(payment)
	if err != nil {
		return ledger.Payment{}, err
	}
	if err := s.save(ctx, cardID, rec); err != nil {
		return ledger.Payment{}, err
	}
	return stored, nil
}

// DeleteEntry removes an entry by id. Unknown ids are a no-op and
// report removed=false without error.
func (s *Service) DeleteEntry(ctx context.Context, cardID ledger.CardID, list ledger.EntryList, id ledger.EntryID) (bool, error) {
	rec, err := s.loadForUpdate(ctx, cardID)
	if err != nil {
		return false, err
	}
	removed := rec.DeleteEntry(list, id)
	if !removed {
		return false, nil
	}
	if err := s.save(ctx, cardID, rec); err != nil {
		return false, err
	}
	return true, nil
}

// SetLabels replaces the card's label set and reconciles immediately,
// the same path the platform's label-change signal takes.
func (s *Service) SetLabels(ctx context.Context, cardID ledger.CardID, labels []board.Label) (ledger.BillingRecord, error) {
	if err := s.Cards.SetLabels(ctx, cardID, labels); err != nil {
		return ledger.BillingRecord{}, err
	}
	return s.Record(ctx, cardID)
}

// Reconcile runs a manual reconciliation pass for one card.
func (s *Service) Reconcile(ctx context.Context, cardID ledger.CardID) (ledger.BillingRecord, error) {
	return s.Record(ctx, cardID)
}

// SetHourlyRate stores a per-card rate override for the card's primary
// rate label.
func (s *Service) SetHourlyRate(ctx context.Context, cardID ledger.CardID, rate ledger.Money) error {
	if !rate.IsPositive() {
		return &ledger.ValidationError{Field: "rate", Message: "rate must be positive"}
	}
	card, err := s.Cards.GetCard(ctx, cardID)
	if err != nil {
		return err
	}
	rule, ok := s.Reconciler.PrimaryRateLabel(card.LabelNames())
	if !ok {
		return &ledger.ValidationError{Field: "labels", Message: "card has no rate label"}
	}

	rec, err := s.loadReconciled(ctx, card)
	if err != nil {
		return err
	}
	if rec.HourlyRates == nil {
		rec.HourlyRates = map[string]ledger.Money{}
	}
	rec.HourlyRates[rule.Label] = rate
	return s.save(ctx, cardID, rec)
}

// =============================================================================
// READ-ONLY FEEDS
// =============================================================================

// Summary returns the derived totals and breakdown for a card.
func (s *Service) Summary(ctx context.Context, cardID ledger.CardID) (ledger.Summary, error) {
	rec, err := s.Record(ctx, cardID)
	if err != nil {
		return ledger.Summary{}, err
	}
	return ledger.Summarize(&rec), nil
}

// Badge returns the balance badge for a card.
func (s *Service) Badge(ctx context.Context, cardID ledger.CardID) (ledger.Badge, error) {
	rec, err := s.Record(ctx, cardID)
	if err != nil {
		return ledger.Badge{}, err
	}
	return ledger.BadgeFor(&rec), nil
}

// =============================================================================
// TIME-TRACKING SYNC
// =============================================================================

// SyncResult reports the outcome of a time-tracking sync.
type SyncResult struct {
	Hours     decimal.Decimal
	Rate      ledger.Money
	RateLabel string
	TimeValue ledger.Money
	Matched   int
	SyncedAt  time.Time
}

// SyncHours pulls time entries from the time-tracking API, matches them
// to the card by name, and stores the hours total on the record. The
// ledger's charges and payments are untouched; deriving a charge from
// the hours is a separate, explicit step (ApplyHourlyCharge).
func (s *Service) SyncHours(ctx context.Context, cardID ledger.CardID) (SyncResult, error) {
	if s.Toggl == nil {
		return SyncResult{}, &toggl.APIError{Endpoint: "/me", Message: "api token not configured"}
	}
	card, err := s.Cards.GetCard(ctx, cardID)
	if err != nil {
		return SyncResult{}, err
	}

	end := time.Now()
	start := end.Add(-s.SyncWindow)
	entries, err := s.Toggl.TimeEntries(ctx, start, end)
	if err != nil {
		return SyncResult{}, err
	}

	// Project names improve matching but are not required for it.
	var projects []toggl.Project
	if ws, wsErr := s.Toggl.DefaultWorkspace(ctx); wsErr == nil {
		if ps, pErr := s.Toggl.Projects(ctx, ws.ID); pErr == nil {
			projects = ps
		}
	}

	matched := toggl.MatchEntries(card.Name, entries, projects)
	hours := toggl.TotalHours(matched)

	rec, err := s.loadReconciled(ctx, card)
	if err != nil {
		return SyncResult{}, err
	}
	rec.TrackedHours = hours
	rec.LastSync = time.Now().UTC()
	if err := s.save(ctx, cardID, rec); err != nil {
		return SyncResult{}, err
	}

	rate, label := s.Reconciler.RateFor(&rec, card.LabelNames())
	result := SyncResult{
		Hours:     hours,
		Rate:      rate,
		RateLabel: label,
		TimeValue: rate.Mul(hours),
		Matched:   len(matched),
		SyncedAt:  rec.LastSync,
	}
	s.Log.Info("synced tracked hours",
		zap.String("card", string(cardID)),
		zap.Int("matched", result.Matched),
		zap.String("hours", hours.StringFixed(2)))
	return result, nil
}

// ApplyHourlyCharge converts the card's tracked hours into a
// rate-derived charge.
func (s *Service) ApplyHourlyCharge(ctx context.Context, cardID ledger.CardID) (ledger.Charge, error) {
	card, err := s.Cards.GetCard(ctx, cardID)
	if err != nil {
		return ledger.Charge{}, err
	}
	rec, err := s.loadReconciled(ctx, card)
	if err != nil {
		return ledger.Charge{}, err
	}

	charge, err := s.Reconciler.HourlyCharge(&rec, card.LabelNames(), rec.TrackedHours)
	if err != nil {
		return ledger.Charge{}, err
	}
	stored, err := rec.AddCharge(charge)
	if err != nil {
		return ledger.Charge{}, err
	}
	if err := s.save(ctx, cardID, rec); err != nil {
		return ledger.Charge{}, err
	}
	return stored, nil
}

// ProvisionTracking creates the time-tracking client and project for a
// card (named after its primary rate label and the card name), matching
// the source system's card provisioning flow.
func (s *Service) ProvisionTracking(ctx context.Context, cardID ledger.CardID) error {
	if s.Toggl == nil {
		return &toggl.APIError{Endpoint: "/me", Message: "api token not configured"}
	}
	card, err := s.Cards.GetCard(ctx, cardID)
	if err != nil {
		return err
	}
	rule, ok := s.Reconciler.PrimaryRateLabel(card.LabelNames())
	if !ok {
		return &ledger.ValidationError{Field: "labels", Message: "card has no rate label"}
	}

	ws, err := s.Toggl.DefaultWorkspace(ctx)
	if err != nil {
		return err
	}
	client, err := s.Toggl.GetOrCreateClient(ctx, ws.ID, rule.Label)
	if err != nil {
		return err
	}
	_, err = s.Toggl.GetOrCreateProject(ctx, ws.ID, card.Name, client.ID, rule.Rate.Float64())
	return err
}

// =============================================================================
// BOARD-WIDE SWEEP
// =============================================================================

// ReconcileAll reconciles every card on the board sequentially. Per-card
// failures are logged and swallowed so the sweep always completes; the
// error return covers only catalog listing.
func (s *Service) ReconcileAll(ctx context.Context) (changed int, err error) {
	cards, err := s.Cards.ListCards(ctx)
	if err != nil {
		return 0, err
	}
	for _, card := range cards {
		rec, err := s.Records.LoadRecord(ctx, card.ID)
		if err != nil {
			s.Log.Warn("sweep: record load failed",
				zap.String("card", string(card.ID)), zap.Error(err))
			continue
		}
		res := s.Reconciler.Reconcile(&rec, card.LabelNames())
		if !res.Changed() {
			continue
		}
		if err := s.save(ctx, card.ID, rec); err != nil {
			s.Log.Warn("sweep: record save failed",
				zap.String("card", string(card.ID)), zap.Error(err))
			continue
		}
		changed++
	}
	return changed, nil
}

// IsExternalAPIError reports whether err came from the time-tracking
// subsystem.
func IsExternalAPIError(err error) bool {
	return errors.Is(err, ledger.ErrExternalAPI)
}
