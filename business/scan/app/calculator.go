package app

import (
	"time"

	"github.com/shopspring/decimal"

	catalogdomain "github.com/teuchmannluca/storefront-scanner/business/catalog/domain"
	pricingdomain "github.com/teuchmannluca/storefront-scanner/business/pricing/domain"
	"github.com/teuchmannluca/storefront-scanner/business/scan/domain"
	"github.com/teuchmannluca/storefront-scanner/internal/apperror"
	"github.com/teuchmannluca/storefront-scanner/internal/marketplace"
)

var oneHundred = decimal.NewFromInt(100)

// Calculator evaluates resale economics for one product: a home sale
// side against every foreign buy side. All arithmetic is decimal.
type Calculator struct {
	registry          *marketplace.Registry
	serviceFeePercent decimal.Decimal

	// minProfit is the inclusion threshold. It may be negative to
	// surface near-miss break-even entries.
	minProfit decimal.Decimal
}

// NewCalculator creates a calculator. serviceFeePercent is applied to
// the home sale price; minProfit gates which foreign entries are
// included in the opportunity.
func NewCalculator(registry *marketplace.Registry, serviceFeePercent, minProfit decimal.Decimal) *Calculator {
	return &Calculator{
		registry:          registry,
		serviceFeePercent: serviceFeePercent,
		minProfit:         minProfit,
	}
}

// Evaluate builds the opportunity for a product from its aggregated
// prices and home-marketplace fee estimate. A missing or non-positive
// home price, or no foreign entry clearing the inclusion threshold,
// yields a nil opportunity and no error: the product simply is not
// viable. An unknown exchange rate is an error; it means the registry
// configuration is incomplete.
func (c *Calculator) Evaluate(scanID string, unit *catalogdomain.ProductUnit, prices pricingdomain.MarketplacePriceMap, fees *pricingdomain.FeeEstimate) (*domain.Opportunity, error) {
	home := c.registry.Home()
	homeObs, ok := prices[home.Code()]
	if !ok || !homeObs.Amount.IsPositive() {
		return nil, nil
	}
	homePrice := homeObs.Amount

	var totalFees decimal.Decimal
	if fees != nil {
		totalFees = fees.TotalFees
	}
	serviceFee := homePrice.Mul(c.serviceFeePercent).Div(oneHundred)

	var entries []domain.MarketplaceEntry
	for _, mp := range c.registry.All() {
		if mp.Code() == home.Code() {
			continue
		}
		obs, ok := prices[mp.Code()]
		if !ok || !obs.Amount.IsPositive() {
			continue
		}
		// A non-positive rate would make ROI's divisor zero; treat it
		// like an absent rate.
		rate, ok := c.registry.RateToHome(mp.Currency())
		if !ok || !rate.IsPositive() {
			return nil, apperror.New(apperror.CodeMissingExchangeRate,
				apperror.WithContext(mp.Currency()))
		}

		converted := obs.Amount.Mul(rate)
		totalCost := converted.Add(totalFees).Add(serviceFee)
		profit := homePrice.Sub(totalCost)
		if profit.LessThan(c.minProfit) {
			continue
		}

		entries = append(entries, domain.MarketplaceEntry{
			Marketplace:    mp.Code(),
			SourcePrice:    obs.Amount,
			SourceCurrency: mp.Currency(),
			ConvertedPrice: converted,
			TotalCost:      totalCost,
			Profit:         profit,
			Margin:         profit.Div(homePrice),
			ROI:            profit.Div(converted),
			OfferCount:     obs.OfferCount,
		})
	}
	if len(entries) == 0 {
		return nil, nil
	}

	opp := &domain.Opportunity{
		ScanID:       scanID,
		ASIN:         unit.ASIN,
		DisplayName:  unit.DisplayName,
		ImageRef:     unit.ImageRef,
		SalesRank:    unit.SalesRank,
		Storefronts:  unit.Storefronts,
		HomePrice:    homePrice,
		HomeCurrency: home.Currency(),
		TotalFees:    totalFees,
		ServiceFee:   serviceFee,
		Entries:      entries,
		EvaluatedAt:  time.Now(),
	}
	opp.Best = bestEntry(entries)
	opp.Category = domain.CategorizeProfit(opp.BestProfit())
	return opp, nil
}

// bestEntry picks the winner: highest ROI, then highest profit, then
// the lexicographically smallest marketplace code.
func bestEntry(entries []domain.MarketplaceEntry) *domain.MarketplaceEntry {
	var best *domain.MarketplaceEntry
	for i := range entries {
		e := &entries[i]
		if best == nil {
			best = e
			continue
		}
		switch {
		case e.ROI.GreaterThan(best.ROI):
			best = e
		case e.ROI.Equal(best.ROI) && e.Profit.GreaterThan(best.Profit):
			best = e
		case e.ROI.Equal(best.ROI) && e.Profit.Equal(best.Profit) && e.Marketplace < best.Marketplace:
			best = e
		}
	}
	return best
}
