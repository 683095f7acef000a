package ledger_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/billing-engine/ledger"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func charge(chargeType string, amount float64) ledger.Charge {
	return ledger.Charge{Type: chargeType, Amount: ledger.NewMoney(amount)}
}

func payment(amount float64) ledger.Payment {
	return ledger.Payment{Amount: ledger.NewMoney(amount)}
}

// =============================================================================
// APPEND + VALIDATION
// =============================================================================

func TestAddCharge_ValidEntry_ReflectedInTotalsOnce(t *testing.T) {
	// GIVEN: An empty record
	// WHEN: Adding a valid charge
	// THEN: TotalCharges reflects the amount exactly once

	rec := ledger.NewRecord()

	stored, err := rec.AddCharge(charge("Retainer", 500))
	require.NoError(t, err)

	assert.NotEmpty(t, stored.ID, "entry id should be generated")
	assert.False(t, stored.Date.IsZero(), "date should default to today")
	assert.True(t, rec.TotalCharges().Equal(ledger.NewMoney(500)))
	assert.Len(t, rec.Charges, 1)
}

func TestAddCharge_MissingType_Rejected(t *testing.T) {
	rec := ledger.NewRecord()

	_, err := rec.AddCharge(ledger.Charge{Amount: ledger.NewMoney(100)})

	assert.Error(t, err)
	assert.True(t, ledger.IsClientError(err), "should classify as client error")
	assert.Empty(t, rec.Charges, "record should be unchanged")
}

func TestAddCharge_NonPositiveAmount_Rejected(t *testing.T) {
	rec := ledger.NewRecord()

	for _, amount := range []float64{0, -5} {
		_, err := rec.AddCharge(charge("Retainer", amount))

		var verr *ledger.ValidationError
		assert.ErrorAs(t, err, &verr)
		assert.Equal(t, "amount", verr.Field)
	}
	assert.Empty(t, rec.Charges)
}

func TestAddPayment_NegativeAmount_RejectedRecordUnchanged(t *testing.T) {
	// GIVEN: A record with an existing payment
	// WHEN: Adding a payment with amount -5
	// THEN: ValidationError, record unchanged

	rec := ledger.NewRecord()
	_, err := rec.AddPayment(payment(200))
	require.NoError(t, err)

	_, err = rec.AddPayment(payment(-5))

	assert.ErrorIs(t, err, ledger.ErrValidation)
	assert.Len(t, rec.Payments, 1)
	assert.True(t, rec.TotalPayments().Equal(ledger.NewMoney(200)))
}

func TestAddPayment_NoTypeRequired(t *testing.T) {
	rec := ledger.NewRecord()

	stored, err := rec.AddPayment(ledger.Payment{Amount: ledger.NewMoney(50), Note: "check #102"})

	require.NoError(t, err)
	assert.NotEmpty(t, stored.ID)
	assert.Equal(t, "check #102", stored.Note)
}

func TestAddCharge_IDsUniqueWithinList(t *testing.T) {
	rec := ledger.NewRecord()

	seen := map[ledger.EntryID]bool{}
	for i := 0; i < 20; i++ {
		stored, err := rec.AddCharge(charge("Added Fees", 10))
		require.NoError(t, err)
		assert.False(t, seen[stored.ID], "entry ids must be unique")
		seen[stored.ID] = true
	}
}

// =============================================================================
// BALANCE
// =============================================================================

func TestBalance_ChargesMinusPayments(t *testing.T) {
	// GIVEN: Charges of 500 and payments of 200
	// THEN: Balance is 300

	rec := ledger.NewRecord()
	_, err := rec.AddCharge(charge("Retainer", 500))
	require.NoError(t, err)
	_, err = rec.AddPayment(payment(200))
	require.NoError(t, err)

	assert.True(t, rec.Balance().Equal(ledger.NewMoney(300)))
}

func TestBalance_AlwaysEqualsTotalsDifference(t *testing.T) {
	rec := ledger.NewRecord()
	for _, amount := range []float64{100, 250.50, 33.33} {
		_, err := rec.AddCharge(charge("Testimony", amount))
		require.NoError(t, err)
	}
	for _, amount := range []float64{75, 400} {
		_, err := rec.AddPayment(payment(amount))
		require.NoError(t, err)
	}

	expected := rec.TotalCharges().Sub(rec.TotalPayments())
	assert.True(t, rec.Balance().Equal(expected))
}

func TestBalance_OverpaymentGoesNegative(t *testing.T) {
	rec := ledger.NewRecord()
	_, err := rec.AddCharge(charge("Retainer", 100))
	require.NoError(t, err)
	_, err = rec.AddPayment(payment(150))
	require.NoError(t, err)

	assert.True(t, rec.Balance().IsNegative(), "overpayment yields a credit balance")
	assert.True(t, rec.Balance().Equal(ledger.NewMoney(-50)))
}

// =============================================================================
// DELETION
// =============================================================================

func TestDeleteEntry_RemovesByID(t *testing.T) {
	rec := ledger.NewRecord()
	first, err := rec.AddCharge(charge("Retainer", 500))
	require.NoError(t, err)
	_, err = rec.AddCharge(charge("Testimony", 300))
	require.NoError(t, err)

	removed := rec.DeleteEntry(ledger.ListCharges, first.ID)

	assert.True(t, removed)
	assert.Len(t, rec.Charges, 1)
	assert.True(t, rec.TotalCharges().Equal(ledger.NewMoney(300)))
}

func TestDeleteEntry_UnknownID_NoOpDoesNotAlterTotals(t *testing.T) {
	// GIVEN: A record with entries
	// WHEN: Deleting an id that doesn't exist
	// THEN: No error, no mutation, totals unchanged

	rec := ledger.NewRecord()
	_, err := rec.AddCharge(charge("Retainer", 500))
	require.NoError(t, err)
	before := rec.Balance()

	removed := rec.DeleteEntry(ledger.ListCharges, "no-such-id")

	assert.False(t, removed)
	assert.Len(t, rec.Charges, 1)
	assert.True(t, rec.Balance().Equal(before))
}

func TestDeleteEntry_Payments(t *testing.T) {
	rec := ledger.NewRecord()
	stored, err := rec.AddPayment(payment(75))
	require.NoError(t, err)

	assert.True(t, rec.DeleteEntry(ledger.ListPayments, stored.ID))
	assert.Empty(t, rec.Payments)
}

// =============================================================================
// NORMALIZATION + LEGACY MERGE
// =============================================================================

func TestNormalize_RepairsNilSlices(t *testing.T) {
	var rec ledger.BillingRecord
	rec.Normalize()

	assert.NotNil(t, rec.Charges)
	assert.NotNil(t, rec.Payments)
}

func TestMergeLegacy_UnifiesSplitLists(t *testing.T) {
	// GIVEN: Legacy split-key data without entry ids
	// WHEN: Merging into a unified record
	// THEN: All entries present, ids assigned, totals correct

	charges := []ledger.Charge{
		{Type: "Retainer", Amount: ledger.NewMoney(500), Date: ledger.NewDate(2025, 3, 10)},
	}
	payments := []ledger.Payment{
		{Amount: ledger.NewMoney(200), Date: ledger.NewDate(2025, 4, 1)},
	}

	rec := ledger.MergeLegacy(charges, payments)

	require.Len(t, rec.Charges, 1)
	require.Len(t, rec.Payments, 1)
	assert.NotEmpty(t, rec.Charges[0].ID, "merged entries get ids for deletion")
	assert.NotEmpty(t, rec.Payments[0].ID)
	assert.True(t, rec.Balance().Equal(ledger.NewMoney(300)))
}
