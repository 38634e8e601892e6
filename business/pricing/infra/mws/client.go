// Package mws implements the pricing and fee provider ports against the
// marketplace-data HTTP API.
package mws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/teuchmannluca/storefront-scanner/business/pricing/app"
	"github.com/teuchmannluca/storefront-scanner/business/pricing/domain"
	"github.com/teuchmannluca/storefront-scanner/internal/apperror"
	"github.com/teuchmannluca/storefront-scanner/internal/httpclient"
	"github.com/teuchmannluca/storefront-scanner/internal/logger"
	"github.com/teuchmannluca/storefront-scanner/internal/marketplace"
)

const tracerName = "mws"

const (
	competitivePricingPath = "/products/pricing/v0/competitivePrice"
	feesEstimatePathFmt    = "/products/fees/v0/items/%s/feesEstimate"

	// buyBoxPriceID marks the primary competitive price in responses.
	buyBoxPriceID = "1"
)

// Ensure Client implements both provider ports.
var (
	_ app.PricingProvider = (*Client)(nil)
	_ app.FeeProvider     = (*Client)(nil)
)

// ClientConfig holds configuration for the marketplace-data API client.
type ClientConfig struct {
	BaseURL        string
	APIKey         string
	RequestTimeout time.Duration

	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

// Client calls the marketplace-data API. All calls go through an
// instrumented HTTP client and a circuit breaker; throttling responses
// are classified into apperror.CodeThrottled so the retrying caller can
// recognise them.
type Client struct {
	http     httpclient.Client
	breaker  *gobreaker.CircuitBreaker[*httpclient.Response]
	registry *marketplace.Registry
	logger   logger.LoggerInterface
	tracer   trace.Tracer
}

// NewClient creates a marketplace-data API client.
func NewClient(cfg ClientConfig, registry *marketplace.Registry, log logger.LoggerInterface) (*Client, error) {
	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	opts := []httpclient.Option{
		httpclient.WithProviderName("mws"),
		httpclient.WithBaseURL(cfg.BaseURL),
		httpclient.WithRequestTimeout(timeout),
		httpclient.WithHeaders(map[string]string{
			"Accept":    "application/json",
			"x-api-key": cfg.APIKey,
		}),
	}
	if cfg.Transport != nil {
		opts = append(opts, httpclient.WithTransport(cfg.Transport))
	}
	hc, err := httpclient.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	breaker := gobreaker.NewCircuitBreaker[*httpclient.Response](gobreaker.Settings{
		Name:    "mws",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// Throttling is quota pressure, not provider sickness; it
			// must not open the breaker.
			return err == nil || apperror.IsCode(err, apperror.CodeThrottled)
		},
	})

	return &Client{
		http:     hc,
		breaker:  breaker,
		registry: registry,
		logger:   log,
		tracer:   otel.Tracer(tracerName),
	}, nil
}

// GetCompetitivePricing fetches competitive prices for a batch of ASINs
// on one marketplace.
func (c *Client) GetCompetitivePricing(ctx context.Context, asins []string, marketplaceCode string) ([]domain.PriceObservation, error) {
	ctx, span := c.tracer.Start(ctx, "mws.get_competitive_pricing",
		trace.WithAttributes(
			attribute.String("marketplace", marketplaceCode),
			attribute.Int("asins", len(asins)),
		),
	)
	defer span.End()

	mp, ok := c.registry.Get(marketplaceCode)
	if !ok {
		return nil, apperror.New(apperror.CodeUnknownMarketplace,
			apperror.WithContext(marketplaceCode))
	}

	var result getCompetitivePricingResponse
	_, err := c.execute(ctx, func() (*httpclient.Response, error) {
		return c.http.NewRequest().
			SetQueryParam("MarketplaceId", mp.EndpointID()).
			SetQueryParam("Asins", strings.Join(asins, ",")).
			SetQueryParam("ItemType", "Asin").
			SetResult(&result).
			SetErrorHandler(classifyResponse).
			Get(ctx, competitivePricingPath)
	})
	if err != nil {
		span.RecordError(err)
		if apperror.IsCode(err, apperror.CodeThrottled) || apperror.IsCode(err, apperror.CodeCircuitOpen) {
			return nil, err
		}
		return nil, apperror.Provider(apperror.CodePricingFetchFailed,
			fmt.Sprintf("marketplace %s", marketplaceCode), err)
	}

	observations := make([]domain.PriceObservation, 0, len(result.Payload))
	now := time.Now()
	for _, product := range result.Payload {
		offerCount := 0
		for _, listing := range product.Product.CompetitivePricing.NumberOfOfferListings {
			if listing.Condition == "New" {
				offerCount = listing.Count
				break
			}
		}
		var rank int64
		if len(product.Product.SalesRankings) > 0 {
			rank = product.Product.SalesRankings[0].Rank
		}

		for _, price := range product.Product.CompetitivePricing.CompetitivePrices {
			if price.Condition != "" && price.Condition != "New" {
				continue
			}
			observations = append(observations, domain.PriceObservation{
				ASIN:        product.ASIN,
				Marketplace: marketplaceCode,
				Amount:      decimal.NewFromFloat(price.Price.ListingPrice.Amount),
				Currency:    price.Price.ListingPrice.CurrencyCode,
				OfferCount:  offerCount,
				SalesRank:   rank,
				BuyBox:      price.CompetitivePriceID == buyBoxPriceID,
				ObservedAt:  now,
			})
		}
	}

	span.SetAttributes(attribute.Int("observations", len(observations)))
	c.logger.Debug(ctx, "fetched competitive pricing",
		"marketplace", marketplaceCode,
		"asins", len(asins),
		"observations", len(observations))

	return observations, nil
}

// GetFeeEstimate fetches the selling fee estimate for one ASIN at the
// given home price.
func (c *Client) GetFeeEstimate(ctx context.Context, asin string, homePrice decimal.Decimal, homeMarketplaceCode string) (*domain.FeeEstimate, error) {
	ctx, span := c.tracer.Start(ctx, "mws.get_fees_estimate",
		trace.WithAttributes(
			attribute.String("asin", asin),
			attribute.String("marketplace", homeMarketplaceCode),
		),
	)
	defer span.End()

	mp, ok := c.registry.Get(homeMarketplaceCode)
	if !ok {
		return nil, apperror.New(apperror.CodeUnknownMarketplace,
			apperror.WithContext(homeMarketplaceCode))
	}

	price, _ := homePrice.Float64()
	body := feesEstimateRequest{
		MarketplaceID:     mp.EndpointID(),
		IsAmazonFulfilled: true,
		Identifier:        asin,
	}
	body.PriceToEstimateFees.ListingPrice = moneyType{
		Amount:       price,
		CurrencyCode: mp.Currency(),
	}

	var result getFeesEstimateResponse
	_, err := c.execute(ctx, func() (*httpclient.Response, error) {
		return c.http.NewRequest().
			SetBody(body).
			SetResult(&result).
			SetErrorHandler(classifyResponse).
			Post(ctx, fmt.Sprintf(feesEstimatePathFmt, asin))
	})
	if err != nil {
		span.RecordError(err)
		if apperror.IsCode(err, apperror.CodeThrottled) || apperror.IsCode(err, apperror.CodeCircuitOpen) {
			return nil, err
		}
		return nil, apperror.Provider(apperror.CodeFeeEstimateFailed, asin, err)
	}

	estimateResult := result.Payload.FeesEstimateResult
	if estimateResult.Status != "" && estimateResult.Status != "Success" {
		return nil, apperror.Provider(apperror.CodeFeeEstimateFailed,
			fmt.Sprintf("%s: estimate status %s", asin, estimateResult.Status), nil)
	}

	estimate := &domain.FeeEstimate{
		ASIN:        asin,
		HomePrice:   homePrice,
		Currency:    estimateResult.FeesEstimate.TotalFeesEstimate.CurrencyCode,
		TotalFees:   decimal.NewFromFloat(estimateResult.FeesEstimate.TotalFeesEstimate.Amount),
		EstimatedAt: time.Now(),
	}
	for _, detail := range estimateResult.FeesEstimate.FeeDetailList {
		amount := decimal.NewFromFloat(detail.FeeAmount.Amount)
		switch detail.FeeType {
		case "ReferralFee":
			estimate.ReferralFee = amount
		case "FBAFees", "FulfillmentFee":
			estimate.FulfilmentFee = amount
		default:
			estimate.OtherFees = estimate.OtherFees.Add(amount)
		}
	}

	span.SetAttributes(attribute.String("total_fees", estimate.TotalFees.String()))
	return estimate, nil
}

// execute runs one HTTP exchange through the circuit breaker.
func (c *Client) execute(ctx context.Context, fn func() (*httpclient.Response, error)) (*httpclient.Response, error) {
	resp, err := c.breaker.Execute(fn)
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return nil, apperror.New(apperror.CodeCircuitOpen, apperror.WithCause(err))
	}
	return resp, err
}

// classifyResponse turns provider error payloads into typed errors.
// A 429 status, or an error record with a quota code, is a throttling
// signal; other failures are plain provider errors.
func classifyResponse(statusCode int, body []byte) error {
	if statusCode == http.StatusTooManyRequests {
		return apperror.Throttled(string(body), nil)
	}
	if statusCode < 400 {
		// Some quota violations hide behind a 200 with an error record.
		var envelope struct {
			Errors []apiError `json:"errors"`
		}
		if err := json.Unmarshal(body, &envelope); err == nil {
			for i := range envelope.Errors {
				if isThrottleCode(envelope.Errors[i].Code) {
					return apperror.Throttled(envelope.Errors[i].Message, &envelope.Errors[i])
				}
			}
		}
		return nil
	}

	var envelope struct {
		Errors []apiError `json:"errors"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Errors) > 0 {
		if isThrottleCode(envelope.Errors[0].Code) {
			return apperror.Throttled(envelope.Errors[0].Message, &envelope.Errors[0])
		}
		return &envelope.Errors[0]
	}
	return fmt.Errorf("HTTP %d: %s", statusCode, string(body))
}
