package marketplace

import "github.com/shopspring/decimal"

// Well-known European marketplaces. The endpoint identifiers are the
// provider-side marketplace IDs used on the wire.
var (
	UK = New("UK", "United Kingdom", "GBP", "A1F83G8C2ARO7P")
	DE = New("DE", "Germany", "EUR", "A1PA6795UKMFR9")
	FR = New("FR", "France", "EUR", "A13V1IB3VIYZZH")
	IT = New("IT", "Italy", "EUR", "APJ6JRA9NG5V4")
	ES = New("ES", "Spain", "EUR", "A1RKKUPIHCS9HS")
)

// DefaultRegistry builds a registry with the well-known marketplaces,
// the given home code, and the configured currency rates.
func DefaultRegistry(homeCode string, rates map[string]decimal.Decimal) *Registry {
	r := NewRegistry(homeCode)
	for _, m := range []*Marketplace{UK, DE, FR, IT, ES} {
		r.Register(m)
	}
	for cur, rate := range rates {
		r.SetRate(cur, rate)
	}
	return r
}
