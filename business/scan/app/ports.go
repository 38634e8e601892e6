// Package app contains the scan context's application services: the
// profit calculator, the progress emitter, and the batch orchestrator
// that drives a scan session end to end.
package app

import (
	"context"
	"strings"

	catalogdomain "github.com/teuchmannluca/storefront-scanner/business/catalog/domain"
	"github.com/teuchmannluca/storefront-scanner/business/scan/domain"
)

// Scope selects which catalog slice a scan covers: one or more
// storefronts, an explicit ASIN list, or everything when both selectors
// are empty.
type Scope struct {
	// StorefrontIDs limits the scan to these storefronts' products.
	StorefrontIDs []string
	// ASINs, when set, scans exactly these identifiers.
	ASINs []string
}

// All reports whether the scope covers the whole catalog.
func (s Scope) All() bool {
	return len(s.StorefrontIDs) == 0 && len(s.ASINs) == 0
}

// String renders the scope for session records and logs.
func (s Scope) String() string {
	if len(s.StorefrontIDs) > 0 {
		return "storefronts:" + strings.Join(s.StorefrontIDs, ",")
	}
	if len(s.ASINs) > 0 {
		return "asins:" + s.ASINs[0] + "..."
	}
	return "all"
}

// CatalogStore loads the product rows a scan starts from. Rows are
// scoped to the owning user.
type CatalogStore interface {
	LoadRows(ctx context.Context, owner string, scope Scope) ([]catalogdomain.ProductRow, error)
}

// ResultStore persists sessions and found opportunities. SaveOpportunity
// must complete before the corresponding event is emitted.
type ResultStore interface {
	CreateSession(ctx context.Context, snap domain.SessionSnapshot) error
	UpdateSession(ctx context.Context, snap domain.SessionSnapshot) error
	SaveOpportunity(ctx context.Context, opp *domain.Opportunity) error
	GetSession(ctx context.Context, scanID string) (*domain.SessionSnapshot, error)
	ListOpportunities(ctx context.Context, scanID string) ([]*domain.Opportunity, error)
}

// IdentityVerifier authenticates scan requests at the API boundary and
// resolves the verified user id that owns the request.
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (string, error)
}
