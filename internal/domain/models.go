// Package domain contains all core types used across the application.
// Keeping domain types in one place makes the fraud scoring rules easy to reason about.
package domain

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	apperrors "cardshield/fraud-api/internal/errors"
)

// ─── Constants ───────────────────────────────────────────────────────────────

// Where the card was presented.
const (
	LocationOnline        = "online"
	LocationLocal         = "local"
	LocationDomestic      = "domestic"
	LocationInternational = "international"
)

// Transaction types accepted by the scorer.
const (
	TypePurchase   = "purchase"
	TypeWithdrawal = "withdrawal"
	TypeTransfer   = "transfer"
	TypeRefund     = "refund"
)

// MerchantUnknown is the merchant name the demo form uses for an unidentified payee.
const MerchantUnknown = "unknown"

// Risk level labels that correspond to score bands.
const (
	RiskHigh    = "high"    // > 70
	RiskMedium  = "medium"  // 51-70
	RiskLow     = "low"     // 31-50
	RiskMinimal = "minimal" // 0-30
)

// ─── Scoring thresholds ───────────────────────────────────────────────────────

const (
	MaxRisk        = 100.0
	FraudThreshold = 50.0 // strictly above -> fraud
	HighThreshold  = 70.0
	LowThreshold   = 30.0
)

// ─── Core domain types ────────────────────────────────────────────────────────

// TransactionRequest is the payload submitted by the dashboard form or a
// stream producer. Hour may be given directly or derived from Time ("HH:MM").
type TransactionRequest struct {
	TransactionID string          `json:"transaction_id,omitempty"`
	CardNumber    string          `json:"card_number,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Merchant      string          `json:"merchant"`
	Location      string          `json:"location"`
	Hour          *int            `json:"hour,omitempty"`
	Time          string          `json:"time,omitempty"`
	Type          string          `json:"type"`
}

// Transaction is a validated, normalized transaction ready for scoring.
// It is immutable once built.
type Transaction struct {
	ID         string          `json:"transaction_id"`
	CardNumber string          `json:"card_number"` // always masked
	Amount     decimal.Decimal `json:"amount"`
	Merchant   string          `json:"merchant"`
	Location   string          `json:"location"`
	Hour       int             `json:"hour"`
	Type       string          `json:"type"`
}

// RiskBreakdown holds the four risk factors and their capped sum.
// Total == min(100, Amount+Location+Time+Pattern).
type RiskBreakdown struct {
	AmountRisk   float64 `json:"amount_risk"`
	LocationRisk float64 `json:"location_risk"`
	TimeRisk     float64 `json:"time_risk"`
	PatternRisk  float64 `json:"pattern_risk"`
	TotalRisk    float64 `json:"total_risk"`
}

// IsFraud reports the fraud verdict. A total of exactly 50 is not fraud.
func (b RiskBreakdown) IsFraud() bool {
	return b.TotalRisk > FraudThreshold
}

// RiskPercentages is the rounded view shown as bars on the dashboard.
type RiskPercentages struct {
	Amount   int `json:"amount"`
	Location int `json:"location"`
	Time     int `json:"time"`
	Pattern  int `json:"pattern"`
	Total    int `json:"total"`
}

// Analysis is the verdict derived from a RiskBreakdown.
type Analysis struct {
	RiskBreakdown
	IsFraud     bool            `json:"is_fraud"`
	RiskLevel   string          `json:"risk_level"`
	Message     string          `json:"message"`
	Confidence  float64         `json:"confidence"`
	Percentages RiskPercentages `json:"percentages"`
}

// ScoredTransaction is the canonical record kept in history and returned by the API.
type ScoredTransaction struct {
	Transaction Transaction `json:"transaction"`
	Analysis    Analysis    `json:"analysis"`
	ProcessedAt time.Time   `json:"processed_at"`
}

// Statistics are the running counters behind the dashboard tiles.
type Statistics struct {
	Total         int     `json:"total"`
	Fraud         int     `json:"fraud"`
	Legitimate    int     `json:"legitimate"`
	DetectionRate float64 `json:"detection_rate"` // percent, one decimal
}

// NewStatistics derives the detection rate from the raw counters.
func NewStatistics(total, fraud int) Statistics {
	s := Statistics{Total: total, Fraud: fraud, Legitimate: total - fraud}
	if total > 0 {
		s.DetectionRate = RoundTo(float64(fraud)/float64(total)*100, 1)
	}
	return s
}

// Alert is the short form of a fraud verdict shown in the alert feed.
type Alert struct {
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	Merchant      string          `json:"merchant"`
	Location      string          `json:"location"`
	RiskScore     int             `json:"risk_score"`
	ProcessedAt   time.Time       `json:"processed_at"`
}

// AlertFrom builds the alert view of a scored transaction.
func AlertFrom(st *ScoredTransaction) Alert {
	return Alert{
		TransactionID: st.Transaction.ID,
		Amount:        st.Transaction.Amount,
		Merchant:      st.Transaction.Merchant,
		Location:      st.Transaction.Location,
		RiskScore:     st.Analysis.Percentages.Total,
		ProcessedAt:   st.ProcessedAt,
	}
}

// ─── Webhooks ─────────────────────────────────────────────────────────────────

// WebhookPayload is the body sent to configured alert URLs.
type WebhookPayload struct {
	Event       string            `json:"event"` // always "fraud_alert"
	TriggeredAt time.Time         `json:"triggered_at"`
	Transaction ScoredTransaction `json:"transaction"`
}

// ─── Validation & normalization ───────────────────────────────────────────────

// Validate checks that every required field is present. Unknown location or
// type values are accepted; they score 0.
func (r *TransactionRequest) Validate() error {
	ve := apperrors.ValidationErrs()

	if !r.Amount.IsPositive() {
		ve.Add("amount", "must be greater than 0")
	}
	if strings.TrimSpace(r.Merchant) == "" {
		ve.Add("merchant", "is required")
	}
	if strings.TrimSpace(r.Location) == "" {
		ve.Add("location", "is required")
	}
	if strings.TrimSpace(r.Type) == "" {
		ve.Add("type", "is required")
	}

	switch {
	case r.Hour != nil:
		if *r.Hour < 0 || *r.Hour > 23 {
			ve.Add("hour", "must be between 0 and 23")
		}
	case r.Time != "":
		if _, err := ParseHour(r.Time); err != nil {
			ve.Add("time", "must be formatted as HH:MM")
		}
	default:
		ve.Add("hour", "is required")
	}

	if err := ve.Err(); err != nil {
		return apperrors.ValidationFailedErr(err)
	}
	return nil
}

// Normalize turns a validated request into a Transaction: it resolves the
// hour, lowercases the categorical fields, masks the card number and assigns
// an ID when none was supplied.
func (r *TransactionRequest) Normalize() Transaction {
	hour := 0
	if r.Hour != nil {
		hour = *r.Hour
	} else if h, err := ParseHour(r.Time); err == nil {
		hour = h
	}

	id := r.TransactionID
	if id == "" {
		id = uuid.NewString()
	}

	return Transaction{
		ID:         id,
		CardNumber: MaskCardNumber(r.CardNumber),
		Amount:     r.Amount,
		Merchant:   strings.ToLower(strings.TrimSpace(r.Merchant)),
		Location:   strings.ToLower(strings.TrimSpace(r.Location)),
		Hour:       hour,
		Type:       strings.ToLower(strings.TrimSpace(r.Type)),
	}
}

// ParseHour extracts the hour from an "HH:MM" clock string.
func ParseHour(clock string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(clock), ":")
	if !ok {
		return 0, apperrors.E(apperrors.Invalid, "missing ':' in time", nil)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, apperrors.E(apperrors.Invalid, "hour out of range", err)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, apperrors.E(apperrors.Invalid, "minute out of range", err)
	}
	return h, nil
}

var nonDigits = regexp.MustCompile(`\D`)

const maskedNoCard = "**** **** **** ****"

// MaskCardNumber keeps only the last four digits of a card number.
func MaskCardNumber(card string) string {
	digits := nonDigits.ReplaceAllString(card, "")
	if len(digits) < 4 {
		return maskedNoCard
	}
	return "**** **** **** " + digits[len(digits)-4:]
}

// RoundTo rounds v half away from zero to the given number of decimals.
func RoundTo(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
