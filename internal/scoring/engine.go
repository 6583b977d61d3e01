// Package scoring implements the card fraud risk scoring engine.
//
// The engine is stateless: it reads nothing but the transaction and an
// injected random source, and never writes anywhere. Recording the result in
// history is the caller's job.
//
// Each factor contributes a non-negative value; the total is their sum capped
// at 100. Factors:
//  1. Amount: tiered, large amounts scale up to 30
//  2. Location: fixed per presentation channel
//  3. Time: night and evening bands
//  4. Pattern: unknown merchant or a sampled similarity score, plus the
//     transaction type
package scoring

import (
	"math"

	"github.com/shopspring/decimal"

	"cardshield/fraud-api/internal/domain"
)

// Engine is the stateless fraud risk scoring engine.
type Engine struct {
	rand RandomSource
}

// New creates an engine that samples pattern similarity from src.
// A nil src falls back to DefaultSource.
func New(src RandomSource) *Engine {
	if src == nil {
		src = DefaultSource()
	}
	return &Engine{rand: src}
}

// ─── Public API ───────────────────────────────────────────────────────────────

// Score computes the risk breakdown of a transaction. It never fails:
// unrecognized categorical values contribute 0.
func (e *Engine) Score(tx *domain.Transaction) domain.RiskBreakdown {
	b := domain.RiskBreakdown{
		AmountRisk:   amountRisk(tx.Amount),
		LocationRisk: locationRisk(tx.Location),
		TimeRisk:     timeRisk(tx.Hour),
		PatternRisk:  e.patternRisk(tx.Merchant) + typeRisk(tx.Type),
	}
	b.TotalRisk = math.Min(domain.MaxRisk, b.AmountRisk+b.LocationRisk+b.TimeRisk+b.PatternRisk)
	return b
}

// Analyze scores tx and derives the verdict, level and message.
func (e *Engine) Analyze(tx *domain.Transaction) domain.Analysis {
	return Verdict(e.Score(tx))
}

// Verdict derives the fraud decision and its presentation from a breakdown.
func Verdict(b domain.RiskBreakdown) domain.Analysis {
	level, message := Classify(b.TotalRisk)
	return domain.Analysis{
		RiskBreakdown: b,
		IsFraud:       b.IsFraud(),
		RiskLevel:     level,
		Message:       message,
		Confidence:    domain.RoundTo(100-math.Abs(b.TotalRisk-domain.FraudThreshold), 1),
		Percentages:   Percentages(b),
	}
}

// Classify returns the risk level and the reviewer message for a total score.
func Classify(total float64) (level, message string) {
	switch {
	case total > domain.HighThreshold:
		return domain.RiskHigh, "High risk - Multiple suspicious factors detected"
	case total > domain.FraudThreshold:
		return domain.RiskMedium, "Medium risk - Unusual transaction pattern"
	case total > domain.LowThreshold:
		return domain.RiskLow, "Low risk - Minor anomalies detected"
	default:
		return domain.RiskMinimal, "Very low risk - Normal transaction pattern"
	}
}

// Percentages rounds every factor to a whole percent for display.
func Percentages(b domain.RiskBreakdown) domain.RiskPercentages {
	return domain.RiskPercentages{
		Amount:   int(math.Round(b.AmountRisk)),
		Location: int(math.Round(b.LocationRisk)),
		Time:     int(math.Round(b.TimeRisk)),
		Pattern:  int(math.Round(b.PatternRisk)),
		Total:    int(math.Round(b.TotalRisk)),
	}
}

// ─── Factor 1: Amount ─────────────────────────────────────────────────────────

var (
	amountLarge  = decimal.NewFromInt(1000)
	amountMedium = decimal.NewFromInt(500)
	amountSmall  = decimal.NewFromInt(100)
	amountCap    = decimal.NewFromInt(30)
	amountPer100 = decimal.NewFromInt(3)
)

func amountRisk(amount decimal.Decimal) float64 {
	switch {
	case amount.GreaterThan(amountLarge):
		// 3 points per 100, capped at 30.
		return decimal.Min(amountCap, amount.Div(amountSmall).Mul(amountPer100)).InexactFloat64()
	case amount.GreaterThan(amountMedium):
		return 15
	case amount.GreaterThan(amountSmall):
		return 5
	}
	return 0
}

// ─── Factor 2: Location ───────────────────────────────────────────────────────

var locationRisks = map[string]float64{
	domain.LocationOnline:        10,
	domain.LocationLocal:         0,
	domain.LocationDomestic:      15,
	domain.LocationInternational: 35,
}

func locationRisk(location string) float64 {
	return locationRisks[location]
}

// ─── Factor 3: Time ───────────────────────────────────────────────────────────

// timeRisk applies the two bands in order. The second condition overlaps the
// first; evaluated after it, it only matches 06-07 and 18-21.
func timeRisk(hour int) float64 {
	if hour >= 22 || hour <= 5 {
		return 20
	}
	if hour >= 18 || hour <= 7 {
		return 10
	}
	return 0
}

// ─── Factor 4: Pattern ────────────────────────────────────────────────────────

const unknownMerchantRisk = 25

func (e *Engine) patternRisk(merchant string) float64 {
	if merchant == domain.MerchantUnknown {
		return unknownMerchantRisk
	}
	// Pattern similarity sample in [0,10).
	return e.rand.Float64() * 10
}

var typeRisks = map[string]float64{
	domain.TypePurchase:   0,
	domain.TypeWithdrawal: 15,
	domain.TypeTransfer:   10,
	domain.TypeRefund:     5,
}

func typeRisk(txType string) float64 {
	return typeRisks[txType]
}
