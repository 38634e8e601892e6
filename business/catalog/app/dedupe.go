// Package app contains application services for the catalog context.
package app

import (
	"context"

	"github.com/teuchmannluca/storefront-scanner/business/catalog/domain"
	"github.com/teuchmannluca/storefront-scanner/internal/logger"
)

// Deduplicator collapses raw catalog rows into unique product units.
type Deduplicator struct {
	logger logger.LoggerInterface
}

// NewDeduplicator creates a Deduplicator.
func NewDeduplicator(log logger.LoggerInterface) *Deduplicator {
	return &Deduplicator{logger: log}
}

// Dedupe groups rows by ASIN. The first occurrence of an ASIN
// establishes the display metadata; every occurrence contributes its
// storefront to the unit's storefront set. Output preserves insertion
// order of first occurrence. No row is dropped: rows without a
// storefront are kept and logged as anomalous.
func (d *Deduplicator) Dedupe(ctx context.Context, rows []domain.ProductRow) []*domain.ProductUnit {
	byASIN := make(map[string]*domain.ProductUnit, len(rows))
	units := make([]*domain.ProductUnit, 0, len(rows))

	for _, row := range rows {
		if row.StorefrontID == "" {
			d.logger.Warn(ctx, "catalog row without storefront", "asin", row.ASIN)
		}

		unit, ok := byASIN[row.ASIN]
		if !ok {
			name := row.DisplayName
			if name == "" {
				name = row.ASIN
			}
			unit = &domain.ProductUnit{
				ASIN:        row.ASIN,
				DisplayName: name,
				ImageRef:    row.ImageRef,
				SalesRank:   row.SalesRank,
			}
			byASIN[row.ASIN] = unit
			units = append(units, unit)
		}
		unit.AddStorefront(row.StorefrontID)
	}

	return units
}
