package mws

// Wire types for the marketplace-data API. Amounts arrive as JSON
// numbers and are converted to decimals at the boundary.

// moneyType is a currency-tagged amount.
type moneyType struct {
	Amount       float64 `json:"Amount"`
	CurrencyCode string  `json:"CurrencyCode"`
}

// competitivePrice is one competing offer's price. CompetitivePriceId
// "1" marks the buy-box (primary competitive) price.
type competitivePrice struct {
	CompetitivePriceID string `json:"CompetitivePriceId"`
	Condition          string `json:"condition"`
	Price              struct {
		ListingPrice moneyType `json:"ListingPrice"`
		Shipping     moneyType `json:"Shipping"`
	} `json:"Price"`
}

type offerListingCount struct {
	Condition string `json:"condition"`
	Count     int    `json:"Count"`
}

type salesRanking struct {
	ProductCategoryID string `json:"ProductCategoryId"`
	Rank              int64  `json:"Rank"`
}

type pricedProduct struct {
	ASIN    string `json:"ASIN"`
	Product struct {
		CompetitivePricing struct {
			CompetitivePrices     []competitivePrice  `json:"CompetitivePrices"`
			NumberOfOfferListings []offerListingCount `json:"NumberOfOfferListings"`
		} `json:"CompetitivePricing"`
		SalesRankings []salesRanking `json:"SalesRankings"`
	} `json:"Product"`
}

// getCompetitivePricingResponse is the pricing endpoint envelope.
type getCompetitivePricingResponse struct {
	Payload []pricedProduct `json:"payload"`
	Errors  []apiError      `json:"errors,omitempty"`
}

type feeDetail struct {
	FeeType   string    `json:"FeeType"`
	FeeAmount moneyType `json:"FeeAmount"`
}

// getFeesEstimateResponse is the fee endpoint envelope.
type getFeesEstimateResponse struct {
	Payload struct {
		FeesEstimateResult struct {
			Status       string `json:"Status"`
			FeesEstimate struct {
				TotalFeesEstimate moneyType   `json:"TotalFeesEstimate"`
				FeeDetailList     []feeDetail `json:"FeeDetailList"`
			} `json:"FeesEstimate"`
		} `json:"FeesEstimateResult"`
	} `json:"payload"`
	Errors []apiError `json:"errors,omitempty"`
}

// feesEstimateRequest is the fee endpoint request body.
type feesEstimateRequest struct {
	MarketplaceID       string `json:"MarketplaceId"`
	IsAmazonFulfilled   bool   `json:"IsAmazonFulfilled"`
	PriceToEstimateFees struct {
		ListingPrice moneyType `json:"ListingPrice"`
	} `json:"PriceToEstimateFees"`
	Identifier string `json:"Identifier"`
}

// apiError is the provider's error record.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *apiError) Error() string {
	return e.Code + ": " + e.Message
}

// isThrottleCode reports whether the provider error code is a quota
// violation signal.
func isThrottleCode(code string) bool {
	switch code {
	case "QuotaExceeded", "RequestThrottled", "TooManyRequests":
		return true
	}
	return false
}
