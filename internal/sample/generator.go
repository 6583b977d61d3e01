// Package sample generates random demo transactions for the dashboard's
// "generate sample" button and for seed datasets.
package sample

import (
	"fmt"

	"github.com/shopspring/decimal"

	"cardshield/fraud-api/internal/domain"
	"cardshield/fraud-api/internal/scoring"
)

var (
	Merchants = []string{"amazon", "walmart", "target", "bestbuy", domain.MerchantUnknown}
	Locations = []string{domain.LocationOnline, domain.LocationLocal, domain.LocationDomestic, domain.LocationInternational}
	Types     = []string{domain.TypePurchase, domain.TypeWithdrawal, domain.TypeTransfer, domain.TypeRefund}
)

const (
	minAmount   = 10
	amountRange = 2000
)

// Generator draws every field from one random source.
type Generator struct {
	rand scoring.RandomSource
}

// New creates a generator. A nil src uses scoring.DefaultSource.
func New(src scoring.RandomSource) *Generator {
	if src == nil {
		src = scoring.DefaultSource()
	}
	return &Generator{rand: src}
}

// Next returns a valid request: amount in [10, 2010) truncated to cents,
// a clock time, a masked card number and random categorical fields.
func (g *Generator) Next() domain.TransactionRequest {
	amount := decimal.NewFromFloat(minAmount + g.rand.Float64()*amountRange).Truncate(2)
	return domain.TransactionRequest{
		CardNumber: fmt.Sprintf("**** **** **** %04d", 1000+intN(g.rand, 9000)),
		Amount:     amount,
		Merchant:   pick(g.rand, Merchants),
		Location:   pick(g.rand, Locations),
		Time:       fmt.Sprintf("%02d:%02d", intN(g.rand, 24), intN(g.rand, 60)),
		Type:       pick(g.rand, Types),
	}
}

// Batch returns n requests.
func (g *Generator) Batch(n int) []domain.TransactionRequest {
	out := make([]domain.TransactionRequest, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, g.Next())
	}
	return out
}

func pick(src scoring.RandomSource, values []string) string {
	return values[intN(src, len(values))]
}

// intN returns a value in [0,n) from src.
func intN(src scoring.RandomSource, n int) int {
	v := int(src.Float64() * float64(n))
	if v >= n {
		v = n - 1
	}
	return v
}
