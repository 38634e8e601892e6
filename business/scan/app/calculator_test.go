package app

import (
	"testing"

	"github.com/shopspring/decimal"

	catalogdomain "github.com/teuchmannluca/storefront-scanner/business/catalog/domain"
	pricingdomain "github.com/teuchmannluca/storefront-scanner/business/pricing/domain"
	"github.com/teuchmannluca/storefront-scanner/business/scan/domain"
	"github.com/teuchmannluca/storefront-scanner/internal/apperror"
	"github.com/teuchmannluca/storefront-scanner/internal/marketplace"
)

func newTestCalculator(t *testing.T, serviceFeePercent, minProfit string) *Calculator {
	t.Helper()
	registry := marketplace.DefaultRegistry("UK", map[string]decimal.Decimal{
		"EUR": decimal.RequireFromString("0.86"),
	})
	return NewCalculator(registry,
		decimal.RequireFromString(serviceFeePercent),
		decimal.RequireFromString(minProfit))
}

func priceObs(code, amount string) pricingdomain.PriceObservation {
	return pricingdomain.PriceObservation{
		Marketplace: code,
		Amount:      decimal.RequireFromString(amount),
	}
}

func TestCalculator_Evaluate_PinnedNumbers(t *testing.T) {
	// home 100.00 GBP, DE 40.00 EUR at 0.86, total fees 7.00,
	// service fee 15% of home = 15.00:
	//   converted  = 34.40
	//   total cost = 34.40 + 7.00 + 15.00 = 56.40
	//   profit     = 43.60
	//   margin     = 0.436
	//   roi        = 43.60 / 34.40
	c := newTestCalculator(t, "15", "0")
	unit := &catalogdomain.ProductUnit{ASIN: "B001TEST", DisplayName: "Widget"}
	prices := pricingdomain.MarketplacePriceMap{
		"UK": priceObs("UK", "100.00"),
		"DE": priceObs("DE", "40.00"),
	}
	fees := &pricingdomain.FeeEstimate{
		ASIN:      "B001TEST",
		TotalFees: decimal.RequireFromString("7.00"),
	}

	opp, err := c.Evaluate("scan-1", unit, prices, fees)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if opp == nil {
		t.Fatal("Evaluate returned nil opportunity")
	}
	if len(opp.Entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(opp.Entries))
	}

	entry := opp.Entries[0]
	if !entry.ConvertedPrice.Equal(decimal.RequireFromString("34.40")) {
		t.Errorf("ConvertedPrice = %s, want 34.40", entry.ConvertedPrice)
	}
	if !entry.TotalCost.Equal(decimal.RequireFromString("56.40")) {
		t.Errorf("TotalCost = %s, want 56.40", entry.TotalCost)
	}
	if !entry.Profit.Equal(decimal.RequireFromString("43.60")) {
		t.Errorf("Profit = %s, want 43.60", entry.Profit)
	}
	if !entry.Margin.Equal(decimal.RequireFromString("0.436")) {
		t.Errorf("Margin = %s, want 0.436", entry.Margin)
	}
	wantROI := decimal.RequireFromString("43.60").Div(decimal.RequireFromString("34.40"))
	if !entry.ROI.Equal(wantROI) {
		t.Errorf("ROI = %s, want %s", entry.ROI, wantROI)
	}
	if opp.Best == nil || opp.Best.Marketplace != "DE" {
		t.Errorf("Best = %+v, want DE", opp.Best)
	}
	if opp.Category != domain.CategoryHigh {
		t.Errorf("Category = %s, want high", opp.Category)
	}
}

func TestCalculator_Evaluate_MissingHomePriceIsNotViable(t *testing.T) {
	c := newTestCalculator(t, "15", "0")
	unit := &catalogdomain.ProductUnit{ASIN: "B002"}
	prices := pricingdomain.MarketplacePriceMap{
		"DE": priceObs("DE", "40.00"),
	}

	opp, err := c.Evaluate("scan-1", unit, prices, nil)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if opp != nil {
		t.Errorf("opp = %+v, want nil without a home price", opp)
	}
}

func TestCalculator_Evaluate_InclusionThreshold(t *testing.T) {
	// home 50, DE costs 40 EUR -> 34.40 converted, profit 15.60;
	// FR costs 58 EUR -> 49.88 converted, profit 0.12.
	unit := &catalogdomain.ProductUnit{ASIN: "B003"}
	prices := pricingdomain.MarketplacePriceMap{
		"UK": priceObs("UK", "50.00"),
		"DE": priceObs("DE", "40.00"),
		"FR": priceObs("FR", "58.00"),
	}

	t.Run("threshold excludes marginal entry", func(t *testing.T) {
		c := newTestCalculator(t, "0", "1.00")
		opp, err := c.Evaluate("scan-1", unit, prices, nil)
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if len(opp.Entries) != 1 || opp.Entries[0].Marketplace != "DE" {
			t.Errorf("entries = %+v, want only DE", opp.Entries)
		}
	})

	t.Run("zero threshold keeps both", func(t *testing.T) {
		c := newTestCalculator(t, "0", "0")
		opp, err := c.Evaluate("scan-1", unit, prices, nil)
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if len(opp.Entries) != 2 {
			t.Errorf("entries = %d, want 2", len(opp.Entries))
		}
	})

	t.Run("nothing clears threshold yields nil", func(t *testing.T) {
		c := newTestCalculator(t, "0", "100")
		opp, err := c.Evaluate("scan-1", unit, prices, nil)
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if opp != nil {
			t.Errorf("opp = %+v, want nil", opp)
		}
	})

	t.Run("negative threshold shows near-miss losses", func(t *testing.T) {
		c := newTestCalculator(t, "0", "-5")
		lossPrices := pricingdomain.MarketplacePriceMap{
			"UK": priceObs("UK", "30.00"),
			"DE": priceObs("DE", "38.00"), // converted 32.68, profit -2.68
		}
		opp, err := c.Evaluate("scan-1", unit, lossPrices, nil)
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if opp == nil || len(opp.Entries) != 1 {
			t.Fatalf("opp = %+v, want one near-miss entry", opp)
		}
		if opp.Category != domain.CategoryLoss {
			t.Errorf("Category = %s, want loss", opp.Category)
		}
	})
}

func TestCalculator_Evaluate_MissingExchangeRate(t *testing.T) {
	registry := marketplace.NewRegistry("UK")
	registry.Register(marketplace.UK)
	registry.Register(marketplace.DE)
	// No EUR rate configured.
	c := NewCalculator(registry, decimal.Zero, decimal.Zero)

	unit := &catalogdomain.ProductUnit{ASIN: "B004"}
	prices := pricingdomain.MarketplacePriceMap{
		"UK": priceObs("UK", "50.00"),
		"DE": priceObs("DE", "20.00"),
	}

	_, err := c.Evaluate("scan-1", unit, prices, nil)
	if !apperror.IsCode(err, apperror.CodeMissingExchangeRate) {
		t.Errorf("error code = %v, want MISSING_EXCHANGE_RATE", apperror.GetCode(err))
	}
}

func TestCalculator_Evaluate_ZeroExchangeRate(t *testing.T) {
	registry := marketplace.NewRegistry("UK")
	registry.Register(marketplace.UK)
	registry.Register(marketplace.DE)
	registry.SetRate("EUR", decimal.Zero)
	c := NewCalculator(registry, decimal.Zero, decimal.Zero)

	unit := &catalogdomain.ProductUnit{ASIN: "B005"}
	prices := pricingdomain.MarketplacePriceMap{
		"UK": priceObs("UK", "50.00"),
		"DE": priceObs("DE", "20.00"),
	}

	// A zero rate would zero the ROI divisor; it must surface as a
	// missing-rate error, never reach the division.
	_, err := c.Evaluate("scan-1", unit, prices, nil)
	if !apperror.IsCode(err, apperror.CodeMissingExchangeRate) {
		t.Errorf("error code = %v, want MISSING_EXCHANGE_RATE", apperror.GetCode(err))
	}
}

func TestBestEntry_TieBreaks(t *testing.T) {
	d := decimal.RequireFromString

	tests := []struct {
		name    string
		entries []domain.MarketplaceEntry
		want    string
	}{
		{
			name: "highest roi wins",
			entries: []domain.MarketplaceEntry{
				{Marketplace: "DE", ROI: d("0.5"), Profit: d("10")},
				{Marketplace: "FR", ROI: d("0.8"), Profit: d("5")},
			},
			want: "FR",
		},
		{
			name: "equal roi falls back to profit",
			entries: []domain.MarketplaceEntry{
				{Marketplace: "DE", ROI: d("0.5"), Profit: d("5")},
				{Marketplace: "FR", ROI: d("0.5"), Profit: d("10")},
			},
			want: "FR",
		},
		{
			name: "full tie picks smallest code",
			entries: []domain.MarketplaceEntry{
				{Marketplace: "FR", ROI: d("0.5"), Profit: d("5")},
				{Marketplace: "DE", ROI: d("0.5"), Profit: d("5")},
			},
			want: "DE",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := bestEntry(tt.entries)
			if got == nil || got.Marketplace != tt.want {
				t.Errorf("bestEntry = %+v, want %s", got, tt.want)
			}
		})
	}
}
