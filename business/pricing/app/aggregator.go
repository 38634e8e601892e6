package app

import (
	"github.com/teuchmannluca/storefront-scanner/business/pricing/domain"
)

// Aggregate merges per-marketplace pricing responses into one
// MarketplacePriceMap per ASIN. For each marketplace the buy-box
// observation wins; without one, the first available observation for the
// ASIN is used. An ASIN missing from a marketplace's response simply has
// no entry for that marketplace. Marketplaces are independent: a failed
// call should be passed as a nil (or absent) observation list and
// contributes nothing, leaving the other marketplaces intact.
func Aggregate(asins []string, responses map[string][]domain.PriceObservation) map[string]domain.MarketplacePriceMap {
	out := make(map[string]domain.MarketplacePriceMap, len(asins))
	for _, asin := range asins {
		out[asin] = domain.MarketplacePriceMap{}
	}

	for marketplaceCode, observations := range responses {
		for _, asin := range asins {
			obs, ok := selectObservation(asin, observations)
			if !ok {
				continue
			}
			obs.Marketplace = marketplaceCode
			out[asin][marketplaceCode] = obs
		}
	}

	return out
}

// selectObservation picks the retained observation for an ASIN from one
// marketplace's response: the buy-box entry if flagged, else the first
// entry with a positive amount.
func selectObservation(asin string, observations []domain.PriceObservation) (domain.PriceObservation, bool) {
	var fallback domain.PriceObservation
	haveFallback := false

	for _, obs := range observations {
		if obs.ASIN != asin {
			continue
		}
		if obs.BuyBox {
			return obs, true
		}
		if !haveFallback && obs.Amount.IsPositive() {
			fallback = obs
			haveFallback = true
		}
	}
	return fallback, haveFallback
}
