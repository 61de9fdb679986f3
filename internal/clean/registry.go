package clean

import (
	"fmt"
	"sort"
	"sync"

	"github.com/JonMunkholm/schemafix/internal/schema"
)

// Registry selects the validator for a canonical field: first by field name,
// then by the field's type tag. Fields matching neither are passed through
// with strings trimmed.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Validator
	byType map[string]Family
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]Validator),
		byType: make(map[string]Family),
	}
}

// Register binds a validator to a field name.
// Panics if the name is already registered.
func (r *Registry) Register(name string, v Validator) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[name]; exists {
		panic(fmt.Sprintf("validator already registered: %s", name))
	}
	r.byName[name] = v
}

// RegisterType binds a validator family to a type tag.
// Panics if the tag is already registered.
func (r *Registry) RegisterType(tag string, f Family) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byType[tag]; exists {
		panic(fmt.Sprintf("validator type already registered: %s", tag))
	}
	r.byType[tag] = f
}

// Lookup returns the validator for a field.
func (r *Registry) Lookup(f schema.CanonicalField) Validator {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if v, ok := r.byName[f.Name]; ok {
		return v
	}
	if fam, ok := r.byType[f.Type]; ok && f.Type != "" {
		return fam(f.Name)
	}
	return Text
}

// Has reports whether a validator is registered for the field name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byName[name]
	return ok
}

// Names returns the registered field names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Types returns the registered type tags, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tags := make([]string, 0, len(r.byType))
	for t := range r.byType {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

// textFields only need trimming.
var textFields = []string{
	"customer_name", "billing_address", "shipping_address",
	"city", "state", "country",
	"product_name", "category", "subcategory",
}

// DefaultRegistry returns a registry covering the built-in orders schema and
// the generic type tags.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.Register("order_id", OrderID)
	r.Register("order_date", Date)
	r.Register("customer_id", CustomerID)
	r.Register("email", Email)
	r.Register("phone", Phone)
	r.Register("postal_code", PostalCode)
	r.Register("product_sku", SKU)
	r.Register("quantity", Quantity)
	r.Register("currency", Currency)
	r.Register("discount_pct", Percent)
	r.Register("tax_pct", Percent)
	r.Register("tax_id", TaxID)
	for _, name := range []string{"unit_price", "shipping_fee", "total_amount"} {
		r.Register(name, Amount(name))
	}
	for _, name := range textFields {
		r.Register(name, Text)
	}

	r.RegisterType("text", fixed(Text))
	r.RegisterType("date", fixed(Date))
	r.RegisterType("email", fixed(Email))
	r.RegisterType("phone", fixed(Phone))
	r.RegisterType("postal_code", fixed(PostalCode))
	r.RegisterType("currency", fixed(Currency))
	r.RegisterType("fraction", fixed(Percent))
	r.RegisterType("tax_id", fixed(TaxID))
	r.RegisterType("integer", Integer)
	r.RegisterType("amount", Amount)

	return r
}
