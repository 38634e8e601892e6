// Package domain contains the core domain types for the pricing context.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceObservation is one marketplace's quoted price for one ASIN at one
// point in time. Observations are ephemeral: they live only for the
// current scan pass and are never persisted standalone.
type PriceObservation struct {
	ASIN        string
	Marketplace string // marketplace code, e.g. "DE"
	Amount      decimal.Decimal
	Currency    string
	OfferCount  int
	SalesRank   int64 // 0 when the response carried no rank signal
	BuyBox      bool  // observation flagged as the primary competitive price
	ObservedAt  time.Time
}

// MarketplacePriceMap maps marketplace code to the single observation
// retained for one ASIN. Absence of a code means "no offer found" on
// that marketplace, which is a valid state rather than a zero price.
type MarketplacePriceMap map[string]PriceObservation

// Has reports whether an observation exists for the marketplace code.
func (m MarketplacePriceMap) Has(code string) bool {
	_, ok := m[code]
	return ok
}

// HomePrice returns the home-marketplace amount, or zero decimal if the
// home marketplace has no observation.
func (m MarketplacePriceMap) HomePrice(homeCode string) decimal.Decimal {
	obs, ok := m[homeCode]
	if !ok {
		return decimal.Zero
	}
	return obs.Amount
}

// FeeEstimate is the fee breakdown for selling one ASIN at a given home
// price. Fees depend only on the home price, so one estimate serves all
// source marketplaces of a unit within a scan pass.
type FeeEstimate struct {
	ASIN          string
	HomePrice     decimal.Decimal
	Currency      string
	TotalFees     decimal.Decimal
	ReferralFee   decimal.Decimal
	FulfilmentFee decimal.Decimal
	OtherFees     decimal.Decimal
	EstimatedAt   time.Time
}
