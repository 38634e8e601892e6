// Package app contains application services and port definitions for the
// pricing context.
package app

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/teuchmannluca/storefront-scanner/business/pricing/domain"
)

// PricingProvider fetches competitive prices for a batch of ASINs on one
// marketplace. Implementations signal quota violations with an error
// carrying apperror.CodeThrottled.
type PricingProvider interface {
	GetCompetitivePricing(ctx context.Context, asins []string, marketplaceCode string) ([]domain.PriceObservation, error)
}

// FeeProvider estimates selling fees for one ASIN at a given home price.
// Same throttling contract as PricingProvider.
type FeeProvider interface {
	GetFeeEstimate(ctx context.Context, asin string, homePrice decimal.Decimal, homeMarketplaceCode string) (*domain.FeeEstimate, error)
}
