// Package domain contains the core domain types for the catalog context.
package domain

// ProductRow is one raw catalog entry as stored: a product identifier
// observed under one source storefront. The same ASIN may appear in
// many rows across storefronts.
type ProductRow struct {
	ASIN         string
	DisplayName  string
	ImageRef     string
	SalesRank    int64 // 0 when unknown
	StorefrontID string
}

// ProductUnit is one deduplicated sourcing target: a single ASIN plus
// the set of storefronts it was sourced from. Immutable during a scan
// once deduplication has produced it.
type ProductUnit struct {
	ASIN        string
	DisplayName string
	ImageRef    string
	SalesRank   int64
	Storefronts []string
}

// HasStorefront reports whether the unit already carries the given
// storefront id.
func (u *ProductUnit) HasStorefront(id string) bool {
	for _, s := range u.Storefronts {
		if s == id {
			return true
		}
	}
	return false
}

// AddStorefront appends a storefront id if not already present,
// preserving set semantics on the group list.
func (u *ProductUnit) AddStorefront(id string) {
	if id == "" || u.HasStorefront(id) {
		return
	}
	u.Storefronts = append(u.Storefronts, id)
}
