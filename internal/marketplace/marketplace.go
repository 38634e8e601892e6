// Package marketplace holds the registry of marketplaces the scanner can
// price against, their currencies, and the configured exchange rates into
// the home currency.
package marketplace

// Marketplace represents one marketplace the engine can price against.
// It is a reference entity with stable identity (its code); the display
// name is metadata only.
type Marketplace struct {
	code     string
	name     string
	currency string
	endpoint string
}

// New creates a Marketplace.
func New(code, name, currency, endpoint string) *Marketplace {
	if code == "" {
		panic("marketplace: empty code")
	}
	if currency == "" {
		panic("marketplace: empty currency")
	}
	return &Marketplace{code: code, name: name, currency: currency, endpoint: endpoint}
}

// Code returns the marketplace code (e.g., "UK", "DE").
func (m *Marketplace) Code() string {
	return m.code
}

// Name returns the human-readable name.
func (m *Marketplace) Name() string {
	if m.name == "" {
		return m.code
	}
	return m.name
}

// Currency returns the ISO currency code items are priced in.
func (m *Marketplace) Currency() string {
	return m.currency
}

// EndpointID returns the provider-side marketplace identifier used in
// API requests.
func (m *Marketplace) EndpointID() string {
	return m.endpoint
}

// String returns the marketplace code.
func (m *Marketplace) String() string {
	return m.code
}

// Equals compares two marketplaces by code.
func (m *Marketplace) Equals(other *Marketplace) bool {
	if m == nil || other == nil {
		return m == other
	}
	return m.code == other.code
}
