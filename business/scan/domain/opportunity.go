// Package domain holds the scan context's core entities: resale
// opportunities and scan sessions.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProfitCategory buckets an opportunity by absolute profit in home
// currency.
type ProfitCategory string

const (
	CategoryHigh     ProfitCategory = "high"
	CategoryMedium   ProfitCategory = "medium"
	CategoryLow      ProfitCategory = "low"
	CategoryMarginal ProfitCategory = "marginal"
	CategoryLoss     ProfitCategory = "loss"
)

// CategorizeProfit maps a profit amount to its category. Thresholds are
// inclusive at the lower bound of each band.
func CategorizeProfit(profit decimal.Decimal) ProfitCategory {
	switch {
	case profit.GreaterThanOrEqual(decimal.NewFromInt(10)):
		return CategoryHigh
	case profit.GreaterThanOrEqual(decimal.NewFromInt(5)):
		return CategoryMedium
	case profit.GreaterThanOrEqual(decimal.NewFromInt(2)):
		return CategoryLow
	case profit.IsPositive():
		return CategoryMarginal
	default:
		return CategoryLoss
	}
}

// MarketplaceEntry is one foreign marketplace's buy-side economics for
// a product, evaluated against the home sale price.
type MarketplaceEntry struct {
	Marketplace    string          `json:"marketplace"`
	SourcePrice    decimal.Decimal `json:"source_price"`
	SourceCurrency string          `json:"source_currency"`
	ConvertedPrice decimal.Decimal `json:"converted_price"`
	TotalCost      decimal.Decimal `json:"total_cost"`
	Profit         decimal.Decimal `json:"profit"`
	Margin         decimal.Decimal `json:"margin"`
	ROI            decimal.Decimal `json:"roi"`
	OfferCount     int             `json:"offer_count"`
}

// Opportunity is the per-product scan outcome: the home sale side, fee
// burden, every evaluated foreign marketplace, and the best entry among
// them.
type Opportunity struct {
	ScanID        string             `json:"scan_id"`
	ASIN          string             `json:"asin"`
	DisplayName   string             `json:"display_name"`
	ImageRef      string             `json:"image_ref,omitempty"`
	SalesRank     int64              `json:"sales_rank,omitempty"`
	Storefronts   []string           `json:"storefronts,omitempty"`
	HomePrice     decimal.Decimal    `json:"home_price"`
	HomeCurrency  string             `json:"home_currency"`
	TotalFees     decimal.Decimal    `json:"total_fees"`
	ServiceFee    decimal.Decimal    `json:"service_fee"`
	Entries       []MarketplaceEntry `json:"entries"`
	Best          *MarketplaceEntry  `json:"best,omitempty"`
	Category      ProfitCategory     `json:"category"`
	EvaluatedAt   time.Time          `json:"evaluated_at"`
}

// BestProfit returns the profit of the best entry, or zero when no
// entry qualified.
func (o *Opportunity) BestProfit() decimal.Decimal {
	if o.Best == nil {
		return decimal.Zero
	}
	return o.Best.Profit
}
