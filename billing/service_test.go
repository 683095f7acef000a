package billing_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/board"
	"github.com/warp/billing-engine/ledger"
	"github.com/warp/billing-engine/store/memory"
	"github.com/warp/billing-engine/toggl"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func testReconciler() *ledger.Reconciler {
	return &ledger.Reconciler{
		AutoCharges: []ledger.AutoChargeRule{
			{Label: "Pierce GAL", Amount: ledger.NewMoneyFromInt(2000)},
			{Label: "Kitsap GAL", Amount: ledger.NewMoneyFromInt(4000)},
		},
		HourlyRates: []ledger.RateRule{
			{Label: "Pierce GAL", Rate: ledger.NewMoneyFromInt(125)},
		},
		RetractOnRemoval: true,
		DefaultRate:      ledger.NewMoneyFromInt(100),
	}
}

func newTestService(t *testing.T) (*billing.Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	svc := billing.New(store, store, testReconciler(), nil)
	return svc, store
}

func seedCard(t *testing.T, store *memory.Store, id ledger.CardID, name string, labels ...string) {
	t.Helper()
	card := board.Card{ID: id, Name: name}
	for _, l := range labels {
		card.Labels = append(card.Labels, board.Label{Name: l})
	}
	require.NoError(t, store.SaveCard(context.Background(), card))
}

// flakyStore fails SaveRecord a configured number of times, then
// delegates. Exercises the save-retry policy.
type flakyStore struct {
	*memory.Store
	failures int
	attempts int
}

// brokenReadStore fails LoadRecord a configured number of times, then
// delegates. Exercises the read-failure policy.
type brokenReadStore struct {
	*memory.Store
	failures int
}

func (b *brokenReadStore) LoadRecord(ctx context.Context, cardID ledger.CardID) (ledger.BillingRecord, error) {
	if b.failures > 0 {
		b.failures--
		return ledger.BillingRecord{}, &ledger.StorageError{Op: "load", CardID: cardID, Key: ledger.KeyBillingData, Err: errors.New("backend unavailable")}
	}
	return b.Store.LoadRecord(ctx, cardID)
}

func (f *flakyStore) SaveRecord(ctx context.Context, cardID ledger.CardID, rec ledger.BillingRecord) error {
	f.attempts++
	if f.failures > 0 {
		f.failures--
		return &ledger.StorageError{Op: "save", CardID: cardID, Key: ledger.KeyBillingData, Err: errors.New("backend unavailable")}
	}
	return f.Store.SaveRecord(ctx, cardID, rec)
}

// =============================================================================
// RECONCILE-ON-LOAD
// =============================================================================

func TestRecord_ReconcilesAgainstLabelsAndPersists(t *testing.T) {
	// GIVEN: A labeled card with no stored record
	// WHEN: Loading its record
	// THEN: The auto charge is applied and the result written back

	svc, store := newTestService(t)
	ctx := context.Background()
	seedCard(t, store, "c1", "Smith v. Smith", "Pierce GAL")

	rec, err := svc.Record(ctx, "c1")

	require.NoError(t, err)
	require.Len(t, rec.Charges, 1)
	assert.True(t, rec.Charges[0].Auto)

	stored, err := store.LoadRecord(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, stored.Charges, 1, "reconciled record should be persisted")
}

func TestRecord_TransientReadFailure_StoredLedgerSurvives(t *testing.T) {
	// GIVEN: A card with a stored auto charge and a manual payment
	// WHEN: A read-only load happens during a transient storage failure
	// THEN: A fallback view is served and the stored ledger is untouched

	base := memory.New()
	store := &brokenReadStore{Store: base}
	svc := billing.New(store, base, testReconciler(), nil)
	ctx := context.Background()
	seedCard(t, base, "c1", "Smith v. Smith", "Pierce GAL")
	_, err := svc.AddPayment(ctx, "c1", ledger.Payment{Amount: ledger.NewMoneyFromInt(500)})
	require.NoError(t, err)

	store.failures = 1
	rec, err := svc.Record(ctx, "c1")

	require.NoError(t, err)
	assert.Len(t, rec.Charges, 1, "fallback view still reflects the labels")
	assert.Empty(t, rec.Payments)

	stored, err := base.LoadRecord(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, stored.Payments, 1, "stored payment must survive a transient read failure")
	require.Len(t, stored.Charges, 1)

	rec, err = svc.Record(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, rec.Payments, 1, "real record served once storage recovers")
}

func TestAddCharge_ReadFailure_SurfacesErrorNothingOverwritten(t *testing.T) {
	// Mutations must not rebuild a record from scratch when the load
	// fails; the error surfaces and storage keeps the prior state.
	base := memory.New()
	store := &brokenReadStore{Store: base}
	svc := billing.New(store, base, testReconciler(), nil)
	ctx := context.Background()
	seedCard(t, base, "c1", "Smith v. Smith", "Pierce GAL")
	_, err := svc.AddPayment(ctx, "c1", ledger.Payment{Amount: ledger.NewMoneyFromInt(500)})
	require.NoError(t, err)

	store.failures = 1
	_, err = svc.AddCharge(ctx, "c1", ledger.Charge{Type: "Testimony", Amount: ledger.NewMoneyFromInt(300)})

	assert.ErrorIs(t, err, ledger.ErrStorage)
	stored, loadErr := base.LoadRecord(ctx, "c1")
	require.NoError(t, loadErr)
	assert.Len(t, stored.Payments, 1)
	assert.Len(t, stored.Charges, 1, "no fabricated record written")
}

func TestRecord_UnknownCard_NotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Record(context.Background(), "nope")

	assert.ErrorIs(t, err, ledger.ErrCardNotFound)
}

func TestSetLabels_ReconcilesImmediately(t *testing.T) {
	// GIVEN: A card charged for one billing label
	// WHEN: Swapping to a different billing label
	// THEN: The returned record reflects the swap in one call

	svc, store := newTestService(t)
	ctx := context.Background()
	seedCard(t, store, "c1", "Smith v. Smith", "Pierce GAL")
	_, err := svc.Record(ctx, "c1")
	require.NoError(t, err)

	rec, err := svc.SetLabels(ctx, "c1", []board.Label{{Name: "Kitsap GAL"}})

	require.NoError(t, err)
	require.Len(t, rec.Charges, 1)
	assert.Equal(t, "Kitsap GAL", rec.Charges[0].Type)
	assert.True(t, rec.Balance().Equal(ledger.NewMoneyFromInt(4000)))
}

// =============================================================================
// MUTATIONS
// =============================================================================

func TestAddCharge_PersistsAlongsideAutoCharge(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	seedCard(t, store, "c1", "Smith v. Smith", "Pierce GAL")

	stored, err := svc.AddCharge(ctx, "c1", ledger.Charge{Type: "Testimony", Amount: ledger.NewMoneyFromInt(300)})

	require.NoError(t, err)
	assert.NotEmpty(t, stored.ID)

	rec, err := svc.Record(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, rec.Charges, 2)
	assert.True(t, rec.Balance().Equal(ledger.NewMoneyFromInt(2300)))
}

func TestAddPayment_InvalidAmount_NothingPersisted(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	seedCard(t, store, "c1", "Smith v. Smith")

	_, err := svc.AddPayment(ctx, "c1", ledger.Payment{Amount: ledger.NewMoneyFromInt(-5)})

	assert.True(t, ledger.IsClientError(err))
	rec, err := store.LoadRecord(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, rec.Payments)
}

func TestDeleteEntry_UnknownID_NoOp(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	seedCard(t, store, "c1", "Smith v. Smith", "Pierce GAL")
	_, err := svc.Record(ctx, "c1")
	require.NoError(t, err)

	removed, err := svc.DeleteEntry(ctx, "c1", ledger.ListCharges, "no-such-id")

	require.NoError(t, err)
	assert.False(t, removed)
	rec, err := svc.Record(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, rec.Charges, 1, "record unchanged")
}

func TestDeleteEntry_RemovesAndPersists(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	seedCard(t, store, "c1", "Smith v. Smith")
	stored, err := svc.AddCharge(ctx, "c1", ledger.Charge{Type: "Retainer", Amount: ledger.NewMoneyFromInt(500)})
	require.NoError(t, err)

	removed, err := svc.DeleteEntry(ctx, "c1", ledger.ListCharges, stored.ID)

	require.NoError(t, err)
	assert.True(t, removed)
	rec, err := svc.Record(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, rec.Charges)
}

func TestSave_RetriesOnceThenSucceeds(t *testing.T) {
	// GIVEN: A store whose first save attempt fails
	// WHEN: Adding a charge
	// THEN: The retry succeeds and the charge is persisted

	base := memory.New()
	store := &flakyStore{Store: base, failures: 1}
	svc := billing.New(store, base, testReconciler(), nil)
	ctx := context.Background()
	seedCard(t, base, "c1", "Smith v. Smith")

	_, err := svc.AddCharge(ctx, "c1", ledger.Charge{Type: "Retainer", Amount: ledger.NewMoneyFromInt(500)})

	require.NoError(t, err)
	assert.Equal(t, 2, store.attempts)
	rec, err := base.LoadRecord(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, rec.Charges, 1)
}

func TestSave_BothAttemptsFail_ErrorSurfacesStoredStateIntact(t *testing.T) {
	base := memory.New()
	store := &flakyStore{Store: base, failures: 2}
	svc := billing.New(store, base, testReconciler(), nil)
	ctx := context.Background()
	seedCard(t, base, "c1", "Smith v. Smith")

	_, err := svc.AddCharge(ctx, "c1", ledger.Charge{Type: "Retainer", Amount: ledger.NewMoneyFromInt(500)})

	assert.ErrorIs(t, err, ledger.ErrStorage)
	rec, loadErr := base.LoadRecord(ctx, "c1")
	require.NoError(t, loadErr)
	assert.Empty(t, rec.Charges, "prior stored state remains effective")
}

func TestSetHourlyRate_StoresOverrideForPrimaryRateLabel(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	seedCard(t, store, "c1", "Smith v. Smith", "Pierce GAL")

	require.NoError(t, svc.SetHourlyRate(ctx, "c1", ledger.NewMoneyFromInt(150)))

	rec, err := svc.Record(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, rec.HourlyRates["Pierce GAL"].Equal(ledger.NewMoneyFromInt(150)))
}

func TestSetHourlyRate_NoRateLabel_Rejected(t *testing.T) {
	svc, store := newTestService(t)
	seedCard(t, store, "c1", "Smith v. Smith", "Urgent")

	err := svc.SetHourlyRate(context.Background(), "c1", ledger.NewMoneyFromInt(150))

	assert.True(t, ledger.IsClientError(err))
}

// =============================================================================
// TIME-TRACKING SYNC
// =============================================================================

func togglServer(t *testing.T, entries []toggl.TimeEntry) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasPrefix(r.URL.Path, "/me/time_entries"):
			json.NewEncoder(w).Encode(entries)
		case r.URL.Path == "/me/workspaces":
			json.NewEncoder(w).Encode([]toggl.Workspace{{ID: 11, Name: "Main"}})
		case strings.HasSuffix(r.URL.Path, "/projects"):
			json.NewEncoder(w).Encode([]toggl.Project{})
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestSyncHours_StoresHoursWithoutTouchingLedger(t *testing.T) {
	// GIVEN: Two matching entries totaling 2.5h on a Pierce GAL card
	// WHEN: Syncing
	// THEN: Hours and sync time land on the record; charges unchanged

	srv := togglServer(t, []toggl.TimeEntry{
		{ID: 1, Description: "Smith v. Smith hearing", Duration: 3600},
		{ID: 2, Description: "smith v. smith drafting", Duration: 5400},
		{ID: 3, Description: "unrelated", Duration: 7200},
	})
	defer srv.Close()

	svc, store := newTestService(t)
	ctx := context.Background()
	seedCard(t, store, "c1", "Smith v. Smith", "Pierce GAL")
	svc.Toggl = toggl.New("test-token")
	svc.Toggl.BaseURL = srv.URL

	res, err := svc.SyncHours(ctx, "c1")

	require.NoError(t, err)
	assert.True(t, res.Hours.Equal(decimal.NewFromFloat(2.5)))
	assert.Equal(t, 2, res.Matched)
	assert.Equal(t, "Pierce GAL", res.RateLabel)
	assert.True(t, res.TimeValue.Equal(ledger.NewMoney(312.50)))

	rec, err := svc.Record(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, rec.TrackedHours.Equal(decimal.NewFromFloat(2.5)))
	assert.False(t, rec.LastSync.IsZero())
	assert.Len(t, rec.Charges, 1, "sync only stores hours, never charges")
}

func TestSyncHours_APIFailure_LedgerUntouched(t *testing.T) {
	// A failing time-tracking call surfaces but never mutates the record.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	svc, store := newTestService(t)
	ctx := context.Background()
	seedCard(t, store, "c1", "Smith v. Smith", "Pierce GAL")
	_, err := svc.Record(ctx, "c1")
	require.NoError(t, err)
	svc.Toggl = toggl.New("test-token")
	svc.Toggl.BaseURL = srv.URL

	_, err = svc.SyncHours(ctx, "c1")

	assert.True(t, billing.IsExternalAPIError(err))
	rec, loadErr := svc.Record(ctx, "c1")
	require.NoError(t, loadErr)
	assert.True(t, rec.TrackedHours.IsZero())
	assert.True(t, rec.LastSync.IsZero())
}

func TestSyncHours_NoClientConfigured_Error(t *testing.T) {
	svc, store := newTestService(t)
	seedCard(t, store, "c1", "Smith v. Smith")

	_, err := svc.SyncHours(context.Background(), "c1")

	assert.True(t, billing.IsExternalAPIError(err))
}

func TestApplyHourlyCharge_ConvertsTrackedHours(t *testing.T) {
	// GIVEN: A card with 4h synced at the Pierce GAL rate of 125
	// WHEN: Applying the hourly charge
	// THEN: A 500 charge carrying the hours is appended

	srv := togglServer(t, []toggl.TimeEntry{
		{ID: 1, Description: "Smith v. Smith", Duration: 4 * 3600},
	})
	defer srv.Close()

	svc, store := newTestService(t)
	ctx := context.Background()
	seedCard(t, store, "c1", "Smith v. Smith", "Pierce GAL")
	svc.Toggl = toggl.New("test-token")
	svc.Toggl.BaseURL = srv.URL
	_, err := svc.SyncHours(ctx, "c1")
	require.NoError(t, err)

	stored, err := svc.ApplyHourlyCharge(ctx, "c1")

	require.NoError(t, err)
	assert.Equal(t, "Pierce GAL Hourly", stored.Type)
	assert.True(t, stored.Amount.Equal(ledger.NewMoneyFromInt(500)))
	assert.True(t, stored.IsHourly())

	rec, err := svc.Record(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, rec.Balance().Equal(ledger.NewMoneyFromInt(2500)))
}

func TestApplyHourlyCharge_NoTrackedHours_Rejected(t *testing.T) {
	svc, store := newTestService(t)
	seedCard(t, store, "c1", "Smith v. Smith", "Pierce GAL")

	_, err := svc.ApplyHourlyCharge(context.Background(), "c1")

	assert.True(t, ledger.IsClientError(err))
}

// =============================================================================
// BOARD-WIDE SWEEP
// =============================================================================

func TestReconcileAll_SweepsEveryCardCountingChanges(t *testing.T) {
	// GIVEN: Two labeled cards needing charges and one settled card
	// WHEN: Sweeping
	// THEN: Two records change; the sweep completes

	svc, store := newTestService(t)
	ctx := context.Background()
	seedCard(t, store, "c1", "Smith v. Smith", "Pierce GAL")
	seedCard(t, store, "c2", "In re Jones", "Kitsap GAL")
	seedCard(t, store, "c3", "Doe v. Doe")

	changed, err := svc.ReconcileAll(ctx)

	require.NoError(t, err)
	assert.Equal(t, 2, changed)

	rec, err := svc.Record(ctx, "c2")
	require.NoError(t, err)
	assert.True(t, rec.Balance().Equal(ledger.NewMoneyFromInt(4000)))
}

func TestReconcileAll_Idempotent(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	seedCard(t, store, "c1", "Smith v. Smith", "Pierce GAL")

	_, err := svc.ReconcileAll(ctx)
	require.NoError(t, err)

	changed, err := svc.ReconcileAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, changed)
}
