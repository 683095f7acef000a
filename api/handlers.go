/*
handlers.go - HTTP API handlers for the billing engine

PURPOSE:
  Exposes the billing ledger via REST. Handles HTTP request/response,
  JSON serialization, and delegates to the billing service.

ENDPOINTS:
  Cards:
    GET    /api/cards                     List all cards
    POST   /api/cards                     Create/replace a card
    GET    /api/cards/{id}                Get card details
    PUT    /api/cards/{id}/labels         Replace label set (reconciles)

  Billing:
    GET    /api/cards/{id}/record         Full billing record + totals
    GET    /api/cards/{id}/summary        Derived totals and breakdown
    GET    /api/cards/{id}/badge          Balance badge model
    POST   /api/cards/{id}/charges        Add a charge
    DELETE /api/cards/{id}/charges/{entryID}
    POST   /api/cards/{id}/payments       Add a payment
    DELETE /api/cards/{id}/payments/{entryID}
    POST   /api/cards/{id}/reconcile      Manual reconciliation pass
    PUT    /api/cards/{id}/rate           Per-card hourly rate override

  Time tracking:
    POST   /api/cards/{id}/sync           Pull hours from the API
    POST   /api/cards/{id}/hourly-charge  Convert tracked hours to a charge
    POST   /api/cards/{id}/provision      Create tracking client/project

  Analytics:
    GET    /api/analytics                 Board rollup (?label=&status=)
    GET    /api/analytics/export          CSV download

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Card not found
  - 502: Time-tracking API unreachable/unauthorized/malformed
  - 500: Storage and internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/warp/billing-engine/analytics"
	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/board"
	"github.com/warp/billing-engine/ledger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *billing.Service
	Log     *zap.Logger
}

// NewHandler creates a new handler around the billing service.
func NewHandler(service *billing.Service, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{Service: service, Log: log}
}

// =============================================================================
// CARD HANDLERS
// =============================================================================

// ListCards returns all cards.
func (h *Handler) ListCards(w http.ResponseWriter, r *http.Request) {
	cards, err := h.Service.Cards.ListCards(r.Context())
	if err != nil {
		h.writeError(w, err, "Failed to list cards")
		return
	}
	dtos := make([]CardDTO, len(cards))
	for i, c := range cards {
		dtos[i] = toCardDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateCard creates or replaces a card and reconciles it immediately.
func (h *Handler) CreateCard(w http.ResponseWriter, r *http.Request) {
	var req CreateCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeValidation(w, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Name == "" {
		h.writeValidation(w, "id and name are required", nil)
		return
	}

	card := board.Card{
		ID:     ledger.CardID(req.ID),
		Name:   req.Name,
		Labels: fromLabelDTOs(req.Labels),
	}
	if err := h.Service.Cards.SaveCard(r.Context(), card); err != nil {
		h.writeError(w, err, "Failed to save card")
		return
	}
	// New labels may imply an auto-charge; reconcile now rather than
	// waiting for the sweep.
	if _, err := h.Service.Reconcile(r.Context(), card.ID); err != nil {
		h.Log.Warn("reconcile after card create failed",
			zap.String("card", req.ID), zap.Error(err))
	}
	writeJSON(w, http.StatusCreated, toCardDTO(card))
}

// GetCard returns a single card.
func (h *Handler) GetCard(w http.ResponseWriter, r *http.Request) {
	id := ledger.CardID(chi.URLParam(r, "id"))
	card, err := h.Service.Cards.GetCard(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "Failed to get card")
		return
	}
	writeJSON(w, http.StatusOK, toCardDTO(card))
}

// SetLabels replaces a card's label set and returns the reconciled record.
func (h *Handler) SetLabels(w http.ResponseWriter, r *http.Request) {
	id := ledger.CardID(chi.URLParam(r, "id"))
	var req SetLabelsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeValidation(w, "Invalid request body", err)
		return
	}

	rec, err := h.Service.SetLabels(r.Context(), id, fromLabelDTOs(req.Labels))
	if err != nil {
		h.writeError(w, err, "Failed to update labels")
		return
	}
	reconcileRuns.Inc()
	writeJSON(w, http.StatusOK, toRecordDTO(rec))
}

// =============================================================================
// RECORD HANDLERS
// =============================================================================

// GetRecord returns the full billing record with derived totals.
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	id := ledger.CardID(chi.URLParam(r, "id"))
	rec, err := h.Service.Record(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "Failed to load record")
		return
	}
	writeJSON(w, http.StatusOK, toRecordDTO(rec))
}

// GetSummary returns the read-only presentation feed for a card.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	id := ledger.CardID(chi.URLParam(r, "id"))
	summary, err := h.Service.Summary(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "Failed to summarize record")
		return
	}

	dto := SummaryDTO{
		TotalCharges:  summary.TotalCharges.Float64(),
		TotalPayments: summary.TotalPayments.Float64(),
		Balance:       summary.Balance.Float64(),
	}
	for _, c := range summary.ByCategory {
		dto.ByCategory = append(dto.ByCategory, CategoryDTO{
			Type:  c.Type,
			Total: c.Total.Float64(),
			Count: c.Count,
		})
	}
	writeJSON(w, http.StatusOK, dto)
}

// GetBadge returns the balance badge model.
func (h *Handler) GetBadge(w http.ResponseWriter, r *http.Request) {
	id := ledger.CardID(chi.URLParam(r, "id"))
	badge, err := h.Service.Badge(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "Failed to build badge")
		return
	}
	writeJSON(w, http.StatusOK, BadgeDTO{Text: badge.Text, Color: badge.Color})
}

// =============================================================================
// CHARGE / PAYMENT HANDLERS
// =============================================================================

// AddCharge appends a charge to the card's record.
func (h *Handler) AddCharge(w http.ResponseWriter, r *http.Request) {
	id := ledger.CardID(chi.URLParam(r, "id"))
	var req AddChargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeValidation(w, "Invalid request body", err)
		return
	}

	charge := ledger.Charge{
		Type:        req.Type,
		Amount:      ledger.NewMoney(req.Amount),
		Description: req.Description,
	}
	if req.Date != "" {
		date, err := ledger.ParseDate(req.Date)
		if err != nil {
			h.writeValidation(w, "Invalid date format (use YYYY-MM-DD)", err)
			return
		}
		charge.Date = date
	}

	stored, err := h.Service.AddCharge(r.Context(), id, charge)
	if err != nil {
		h.writeError(w, err, "Failed to add charge")
		return
	}
	writeJSON(w, http.StatusCreated, toChargeDTO(stored))
}

// AddPayment appends a payment to the card's record.
func (h *Handler) AddPayment(w http.ResponseWriter, r *http.Request) {
	id := ledger.CardID(chi.URLParam(r, "id"))
	var req AddPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeValidation(w, "Invalid request body", err)
		return
	}

	payment := ledger.Payment{
		Amount: ledger.NewMoney(req.Amount),
		Note:   req.Note,
	}
	if req.Date != "" {
		date, err := ledger.ParseDate(req.Date)
		if err != nil {
			h.writeValidation(w, "Invalid date format (use YYYY-MM-DD)", err)
			return
		}
		payment.Date = date
	}

	stored, err := h.Service.AddPayment(r.Context(), id, payment)
	if err != nil {
		h.writeError(w, err, "Failed to add payment")
		return
	}
	writeJSON(w, http.StatusCreated, toPaymentDTO(stored))
}

// DeleteCharge removes a charge by entry id. Unknown ids report
// removed=false with 200, matching the no-op deletion contract.
func (h *Handler) DeleteCharge(w http.ResponseWriter, r *http.Request) {
	h.deleteEntry(w, r, ledger.ListCharges)
}

// DeletePayment removes a payment by entry id.
func (h *Handler) DeletePayment(w http.ResponseWriter, r *http.Request) {
	h.deleteEntry(w, r, ledger.ListPayments)
}

func (h *Handler) deleteEntry(w http.ResponseWriter, r *http.Request, list ledger.EntryList) {
	id := ledger.CardID(chi.URLParam(r, "id"))
	entryID := ledger.EntryID(chi.URLParam(r, "entryID"))

	removed, err := h.Service.DeleteEntry(r.Context(), id, list, entryID)
	if err != nil {
		h.writeError(w, err, "Failed to delete entry")
		return
	}
	writeJSON(w, http.StatusOK, DeleteResultDTO{Removed: removed})
}

// =============================================================================
// RECONCILIATION / RATE HANDLERS
// =============================================================================

// Reconcile runs a manual reconciliation pass and returns the record.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	id := ledger.CardID(chi.URLParam(r, "id"))
	rec, err := h.Service.Reconcile(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "Failed to reconcile")
		return
	}
	reconcileRuns.Inc()
	writeJSON(w, http.StatusOK, toRecordDTO(rec))
}

// SetHourlyRate stores a per-card rate override.
func (h *Handler) SetHourlyRate(w http.ResponseWriter, r *http.Request) {
	id := ledger.CardID(chi.URLParam(r, "id"))
	var req SetRateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeValidation(w, "Invalid request body", err)
		return
	}
	if err := h.Service.SetHourlyRate(r.Context(), id, ledger.NewMoney(req.Rate)); err != nil {
		h.writeError(w, err, "Failed to set rate")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// TIME-TRACKING HANDLERS
// =============================================================================

// SyncHours pulls hours from the time-tracking API for a card.
func (h *Handler) SyncHours(w http.ResponseWriter, r *http.Request) {
	id := ledger.CardID(chi.URLParam(r, "id"))
	result, err := h.Service.SyncHours(r.Context(), id)
	if err != nil {
		syncFailures.Inc()
		h.writeError(w, err, "Sync failed")
		return
	}
	syncRuns.Inc()

	hours, _ := result.Hours.Float64()
	writeJSON(w, http.StatusOK, SyncResultDTO{
		Hours:     hours,
		Rate:      result.Rate.Float64(),
		RateLabel: result.RateLabel,
		TimeValue: result.TimeValue.Float64(),
		Matched:   result.Matched,
		SyncedAt:  result.SyncedAt.Format(time.RFC3339),
	})
}

// ApplyHourlyCharge converts the card's tracked hours into a charge.
func (h *Handler) ApplyHourlyCharge(w http.ResponseWriter, r *http.Request) {
	id := ledger.CardID(chi.URLParam(r, "id"))
	charge, err := h.Service.ApplyHourlyCharge(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "Failed to apply hourly charge")
		return
	}
	writeJSON(w, http.StatusCreated, toChargeDTO(charge))
}

// ProvisionTracking creates the tracking client/project for a card.
func (h *Handler) ProvisionTracking(w http.ResponseWriter, r *http.Request) {
	id := ledger.CardID(chi.URLParam(r, "id"))
	if err := h.Service.ProvisionTracking(r.Context(), id); err != nil {
		h.writeError(w, err, "Failed to provision tracking")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// ANALYTICS HANDLERS
// =============================================================================

// GetAnalytics returns the board rollup, optionally filtered by
// ?label= and ?status=active|paid.
func (h *Handler) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	rows, err := h.collectRows(r)
	if err != nil {
		h.writeError(w, err, "Failed to build analytics")
		return
	}

	stats := analytics.Summarize(rows)
	dto := AnalyticsDTO{
		Cases:       stats.Cases,
		Revenue:     stats.Revenue.Float64(),
		Paid:        stats.Paid.Float64(),
		Outstanding: stats.Outstanding.Float64(),
		TimeValue:   stats.TimeValue.Float64(),
	}
	dto.Hours, _ = stats.Hours.Float64()

	for _, ls := range analytics.ByLabel(rows) {
		hours, _ := ls.Hours.Float64()
		dto.ByLabel = append(dto.ByLabel, LabelStatsDTO{
			Label:    ls.Label,
			Count:    ls.Count,
			Charges:  ls.Charges.Float64(),
			Payments: ls.Payments.Float64(),
			Balance:  ls.Balance.Float64(),
			Hours:    hours,
		})
	}
	for _, row := range rows {
		dto.Rows = append(dto.Rows, toCaseRowDTO(row))
	}
	writeJSON(w, http.StatusOK, dto)
}

// ExportCSV streams the board rollup as a CSV download.
func (h *Handler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	rows, err := h.collectRows(r)
	if err != nil {
		h.writeError(w, err, "Failed to build export")
		return
	}

	filename := fmt.Sprintf("case-analytics-%s.csv", time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	if err := analytics.WriteCSV(w, rows); err != nil {
		h.Log.Error("csv export failed mid-stream", zap.Error(err))
	}
}

func (h *Handler) collectRows(r *http.Request) ([]analytics.CaseRow, error) {
	rows, err := analytics.Collect(r.Context(), h.Service.Cards, h.Service.Records, h.Service.Reconciler)
	if err != nil {
		return nil, err
	}
	filter := analytics.Filter{
		Label:  r.URL.Query().Get("label"),
		Status: analytics.Status(r.URL.Query().Get("status")),
	}
	return analytics.Apply(rows, filter), nil
}

// =============================================================================
// DTO CONVERSION
// =============================================================================

func toCardDTO(c board.Card) CardDTO {
	dto := CardDTO{ID: string(c.ID), Name: c.Name, Labels: []LabelDTO{}}
	for _, l := range c.Labels {
		dto.Labels = append(dto.Labels, LabelDTO{Name: l.Name, Color: l.Color})
	}
	return dto
}

func fromLabelDTOs(dtos []LabelDTO) []board.Label {
	labels := make([]board.Label, len(dtos))
	for i, d := range dtos {
		labels[i] = board.Label{Name: d.Name, Color: d.Color}
	}
	return labels
}

func toChargeDTO(c ledger.Charge) ChargeDTO {
	dto := ChargeDTO{
		ID:          string(c.ID),
		Type:        c.Type,
		Date:        c.Date.String(),
		Amount:      c.Amount.Float64(),
		Auto:        c.Auto,
		Description: c.Description,
	}
	if c.Hours != nil {
		hours, _ := c.Hours.Float64()
		dto.Hours = &hours
	}
	return dto
}

func toPaymentDTO(p ledger.Payment) PaymentDTO {
	return PaymentDTO{
		ID:     string(p.ID),
		Date:   p.Date.String(),
		Amount: p.Amount.Float64(),
		Note:   p.Note,
	}
}

func toRecordDTO(rec ledger.BillingRecord) RecordDTO {
	dto := RecordDTO{
		Charges:       []ChargeDTO{},
		Payments:      []PaymentDTO{},
		TotalCharges:  rec.TotalCharges().Float64(),
		TotalPayments: rec.TotalPayments().Float64(),
		Balance:       rec.Balance().Float64(),
	}
	dto.TrackedHours, _ = rec.TrackedHours.Float64()
	if !rec.LastSync.IsZero() {
		dto.LastSync = rec.LastSync.Format(time.RFC3339)
	}
	for _, c := range rec.Charges {
		dto.Charges = append(dto.Charges, toChargeDTO(c))
	}
	for _, p := range rec.Payments {
		dto.Payments = append(dto.Payments, toPaymentDTO(p))
	}
	return dto
}

func toCaseRowDTO(row analytics.CaseRow) CaseRowDTO {
	dto := CaseRowDTO{
		CardID:    string(row.CardID),
		Name:      row.Name,
		Label:     row.Label,
		Charges:   row.Charges.Float64(),
		Payments:  row.Payments.Float64(),
		Balance:   row.Balance.Float64(),
		Rate:      row.Rate.Float64(),
		TimeValue: row.TimeValue.Float64(),
	}
	dto.Hours, _ = row.Hours.Float64()
	return dto
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeValidation(w http.ResponseWriter, msg string, err error) {
	resp := ErrorResponse{Error: msg}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, http.StatusBadRequest, resp)
}

func (h *Handler) writeError(w http.ResponseWriter, err error, msg string) {
	status := http.StatusInternalServerError
	switch {
	case ledger.IsClientError(err):
		status = http.StatusBadRequest
	case ledger.IsNotFound(err):
		status = http.StatusNotFound
	case errors.Is(err, ledger.ErrExternalAPI):
		status = http.StatusBadGateway
	}
	if status >= 500 {
		h.Log.Error(msg, zap.Error(err))
	}
	writeJSON(w, status, ErrorResponse{Error: msg, Details: err.Error()})
}
