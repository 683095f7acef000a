/*
dto.go - Request/response data structures

JSON shapes for the HTTP API. Amounts cross the wire as float64 for
frontend convenience; precision-sensitive math happens on
decimal-backed Money inside the engine, never on these values.
*/
package api

// =============================================================================
// REQUESTS
// =============================================================================

type CreateCardRequest struct {
	ID     string     `json:"id"`
	Name   string     `json:"name"`
	Labels []LabelDTO `json:"labels"`
}

type SetLabelsRequest struct {
	Labels []LabelDTO `json:"labels"`
}

type AddChargeRequest struct {
	Type        string  `json:"type"`
	Date        string  `json:"date,omitempty"` // YYYY-MM-DD, defaults to today
	Amount      float64 `json:"amount"`
	Description string  `json:"description,omitempty"`
}

type AddPaymentRequest struct {
	Date   string  `json:"date,omitempty"`
	Amount float64 `json:"amount"`
	Note   string  `json:"note,omitempty"`
}

type SetRateRequest struct {
	Rate float64 `json:"rate"`
}

// =============================================================================
// RESPONSES
// =============================================================================

type LabelDTO struct {
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

type CardDTO struct {
	ID     string     `json:"id"`
	Name   string     `json:"name"`
	Labels []LabelDTO `json:"labels"`
}

type ChargeDTO struct {
	ID          string   `json:"id"`
	Type        string   `json:"type"`
	Date        string   `json:"date"`
	Amount      float64  `json:"amount"`
	Auto        bool     `json:"auto"`
	Description string   `json:"description,omitempty"`
	Hours       *float64 `json:"hours,omitempty"`
}

type PaymentDTO struct {
	ID     string  `json:"id"`
	Date   string  `json:"date"`
	Amount float64 `json:"amount"`
	Note   string  `json:"note,omitempty"`
}

type RecordDTO struct {
	Charges       []ChargeDTO  `json:"charges"`
	Payments      []PaymentDTO `json:"payments"`
	TrackedHours  float64      `json:"trackedHours"`
	LastSync      string       `json:"lastSync,omitempty"`
	TotalCharges  float64      `json:"totalCharges"`
	TotalPayments float64      `json:"totalPayments"`
	Balance       float64      `json:"balance"`
}

type CategoryDTO struct {
	Type  string  `json:"type"`
	Total float64 `json:"total"`
	Count int     `json:"count"`
}

type SummaryDTO struct {
	TotalCharges  float64       `json:"totalCharges"`
	TotalPayments float64       `json:"totalPayments"`
	Balance       float64       `json:"balance"`
	ByCategory    []CategoryDTO `json:"byCategory"`
}

type BadgeDTO struct {
	Text  string `json:"text"`
	Color string `json:"color"`
}

type SyncResultDTO struct {
	Hours     float64 `json:"hours"`
	Rate      float64 `json:"rate"`
	RateLabel string  `json:"rateLabel,omitempty"`
	TimeValue float64 `json:"timeValue"`
	Matched   int     `json:"matched"`
	SyncedAt  string  `json:"syncedAt"`
}

type DeleteResultDTO struct {
	Removed bool `json:"removed"`
}

type CaseRowDTO struct {
	CardID    string  `json:"cardId"`
	Name      string  `json:"name"`
	Label     string  `json:"label,omitempty"`
	Charges   float64 `json:"charges"`
	Payments  float64 `json:"payments"`
	Balance   float64 `json:"balance"`
	Hours     float64 `json:"hours"`
	Rate      float64 `json:"rate"`
	TimeValue float64 `json:"timeValue"`
}

type LabelStatsDTO struct {
	Label    string  `json:"label"`
	Count    int     `json:"count"`
	Charges  float64 `json:"charges"`
	Payments float64 `json:"payments"`
	Balance  float64 `json:"balance"`
	Hours    float64 `json:"hours"`
}

type AnalyticsDTO struct {
	Cases       int             `json:"cases"`
	Revenue     float64         `json:"revenue"`
	Paid        float64         `json:"paid"`
	Outstanding float64         `json:"outstanding"`
	Hours       float64         `json:"hours"`
	TimeValue   float64         `json:"timeValue"`
	ByLabel     []LabelStatsDTO `json:"byLabel"`
	Rows        []CaseRowDTO    `json:"rows"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
