package marketplace

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// Registry is a thread-safe registry of known marketplaces plus the
// exchange rates used to convert their currencies into the home currency.
// Rates are fixed configuration values, not live quotes; the operator is
// expected to refresh them out of band.
type Registry struct {
	byCode map[string]*Marketplace
	order  []string                   // registration order, kept for stable iteration
	rates  map[string]decimal.Decimal // currency -> home currency rate
	home   string
	mu     sync.RWMutex
}

// NewRegistry creates a registry with the given home marketplace code.
func NewRegistry(homeCode string) *Registry {
	return &Registry{
		byCode: make(map[string]*Marketplace),
		rates:  make(map[string]decimal.Decimal),
		home:   homeCode,
	}
}

// Register adds a marketplace. Panics on duplicate codes: the set is
// small and fixed, so a duplicate is a programming error.
func (r *Registry) Register(m *Marketplace) {
	if m == nil {
		panic("marketplace: cannot register nil marketplace")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byCode[m.Code()]; exists {
		panic(fmt.Sprintf("marketplace: %s already registered", m.Code()))
	}
	r.byCode[m.Code()] = m
	r.order = append(r.order, m.Code())
}

// SetRate sets the conversion rate from a currency into the home currency.
func (r *Registry) SetRate(currency string, rate decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rates[currency] = rate
}

// Get retrieves a marketplace by code.
func (r *Registry) Get(code string) (*Marketplace, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byCode[code]
	return m, ok
}

// MustGet retrieves a marketplace by code, panics if not found.
func (r *Registry) MustGet(code string) *Marketplace {
	m, ok := r.Get(code)
	if !ok {
		panic(fmt.Sprintf("marketplace: %s not found in registry", code))
	}
	return m
}

// Home returns the home marketplace.
func (r *Registry) Home() *Marketplace {
	return r.MustGet(r.home)
}

// HomeCode returns the home marketplace code.
func (r *Registry) HomeCode() string {
	return r.home
}

// RateToHome returns the conversion rate from the given currency into the
// home marketplace currency. The home currency always converts at 1.
func (r *Registry) RateToHome(currency string) (decimal.Decimal, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	home, ok := r.byCode[r.home]
	if ok && currency == home.Currency() {
		return decimal.NewFromInt(1), true
	}
	rate, ok := r.rates[currency]
	return rate, ok
}

// All returns the registered marketplaces in registration order, so
// downstream listings stay stable across runs.
func (r *Registry) All() []*Marketplace {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Marketplace, 0, len(r.order))
	for _, code := range r.order {
		result = append(result, r.byCode[code])
	}
	return result
}

// Count returns the number of registered marketplaces.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byCode)
}
