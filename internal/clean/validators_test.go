package clean

import (
	"reflect"
	"testing"

	"github.com/JonMunkholm/schemafix/internal/schema"
)

type validatorCase struct {
	name  string
	input any
	want  Result
}

func runValidatorCases(t *testing.T, v Validator, tests []validatorCase) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := v(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("validate(%#v) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// Identifier Tests
// ----------------------------------------------------------------------------

func TestOrderID(t *testing.T) {
	runValidatorCases(t, OrderID, []validatorCase{
		{"lowercase trimmed", " ord-1234 ", Result{Value: "ORD-1234", Valid: true}},
		{"too short", "ORD-12", Result{Value: "ORD-12", Reason: ReasonOrderID}},
		{"non string", 1234.0, Result{Value: 1234.0, Reason: ReasonOrderID}},
	})
}

func TestCustomerID(t *testing.T) {
	runValidatorCases(t, CustomerID, []validatorCase{
		{"inner space", "cust- 42", Result{Value: "CUST-42", Valid: true}},
		{"many digits", "CUST-000123", Result{Value: "CUST-000123", Valid: true}},
		{"missing dash", "cust 42", Result{Value: "cust 42", Reason: ReasonCustomerID}},
	})
}

func TestSKUAndTaxID(t *testing.T) {
	runValidatorCases(t, SKU, []validatorCase{
		{"sku lowercase", "ab-1234", Result{Value: "AB-1234", Valid: true}},
		{"sku digits", "12-ABCD", Result{Value: "12-ABCD", Reason: ReasonSKU}},
	})
	runValidatorCases(t, TaxID, []validatorCase{
		{"gstin lowercase", "27aapfu0939f1zv", Result{Value: "27AAPFU0939F1ZV", Valid: true}},
		{"gstin short", "27AAPFU0939F1Z", Result{Value: "27AAPFU0939F1Z", Reason: ReasonTaxID}},
	})
}

// ----------------------------------------------------------------------------
// Contact Tests
// ----------------------------------------------------------------------------

func TestEmail(t *testing.T) {
	runValidatorCases(t, Email, []validatorCase{
		{"trimmed", " asha@example.com ", Result{Value: "asha@example.com", Valid: true}},
		{"inner space", "asha @example.com", Result{Value: "asha@example.com", Valid: true}},
		{"phone in email", "9876543210", Result{Reason: ReasonPhoneInEmail}},
		{"garbage", "not-an-email", Result{Reason: ReasonEmail}},
		{"non string", 42.0, Result{Reason: ReasonEmail}},
	})
}

func TestPhone(t *testing.T) {
	runValidatorCases(t, Phone, []validatorCase{
		{"formatted", "+91 98765-43210", Result{Value: "+919876543210", Valid: true}},
		{"seven digits", "555 1234", Result{Value: "5551234", Valid: true}},
		{"too short", "12345", Result{Reason: ReasonPhone}},
		{"email in phone", "asha@example.com", Result{Reason: ReasonEmailInPhone}},
		{"native float", 9876543210.0, Result{Value: "9876543210", Valid: true}},
		{"native int", int64(9876543210), Result{Value: "9876543210", Valid: true}},
		{"fractional float", 98765.5, Result{Reason: ReasonPhone}},
	})
}

func TestPostalCode(t *testing.T) {
	runValidatorCases(t, PostalCode, []validatorCase{
		{"six digits", "560001", Result{Value: "560001", Valid: true}},
		{"inner space", "560 001", Result{Value: "560001", Valid: true}},
		{"prefixed", "PIN-560001", Result{Value: "PIN-560001", Reason: ReasonPostalCode, Suggestion: "560001"}},
		{"five digits", "56001", Result{Value: "56001", Reason: ReasonPostalCode}},
		{"float padded", 56001.0, Result{Value: "056001", Valid: true}},
		{"int", int64(560001), Result{Value: "560001", Valid: true}},
		{"too large", 1234567.0, Result{Value: 1234567.0, Reason: ReasonPostalCode}},
		{"bool", true, Result{Value: true, Reason: ReasonPostalCode}},
	})
}

// ----------------------------------------------------------------------------
// Numeric Tests
// ----------------------------------------------------------------------------

func TestQuantity(t *testing.T) {
	runValidatorCases(t, Quantity, []validatorCase{
		{"text", "2", Result{Value: int64(2), Valid: true}},
		{"half even", "2.5", Result{Value: int64(2), Valid: true}},
		{"negative", "-1", Result{Value: "-1", Reason: ReasonQuantity}},
		{"words", "two", Result{Value: "two", Reason: ReasonQuantity}},
	})
}

func TestAmount(t *testing.T) {
	runValidatorCases(t, Amount("unit_price"), []validatorCase{
		{"rupee", "₹1,200.50", Result{Value: 1200.5, Valid: true}},
		{"zero", "0", Result{Value: 0.0, Valid: true}},
		{"negative", "-5", Result{Value: "-5", Reason: "Invalid unit_price"}},
		{"words", "free", Result{Value: "free", Reason: "Invalid unit_price"}},
	})
}

func TestCurrencyAndPercent(t *testing.T) {
	runValidatorCases(t, Currency, []validatorCase{
		{"alias", "rs", Result{Value: "INR", Valid: true}},
		{"unknown", "rupee notes", Result{Value: "rupee notes", Reason: ReasonCurrency}},
	})
	runValidatorCases(t, Percent, []validatorCase{
		{"percent sign", "15%", Result{Value: 0.15, Valid: true}},
		{"fraction", "0.125", Result{Value: 0.125, Valid: true}},
		{"native percent", 7.5, Result{Value: 0.075, Valid: true}},
		{"over", "150%", Result{Value: "150%", Reason: ReasonPercent}},
		{"negative", "-5", Result{Value: "-5", Reason: ReasonPercent}},
	})
}

func TestText(t *testing.T) {
	runValidatorCases(t, Text, []validatorCase{
		{"trim", "  Pune ", Result{Value: "Pune", Valid: true}},
		{"number", 3.0, Result{Value: 3.0, Valid: true}},
	})
}

// ----------------------------------------------------------------------------
// Registry Tests
// ----------------------------------------------------------------------------

func TestRegistry_Lookup(t *testing.T) {
	r := DefaultRegistry()

	tests := []struct {
		name  string
		field schema.CanonicalField
		input any
		want  Result
	}{
		{"by name", schema.CanonicalField{Name: "order_id"}, "ord-0001", Result{Value: "ORD-0001", Valid: true}},
		{"name beats type", schema.CanonicalField{Name: "quantity", Type: "text"}, "3", Result{Value: int64(3), Valid: true}},
		{"by type", schema.CanonicalField{Name: "gross", Type: "amount"}, "abc", Result{Value: "abc", Reason: "Invalid gross"}},
		{"integer type", schema.CanonicalField{Name: "cartons", Type: "integer"}, "x", Result{Value: "x", Reason: "Invalid cartons"}},
		{"unknown passes through", schema.CanonicalField{Name: "gift_wrap"}, " yes ", Result{Value: "yes", Valid: true}},
		{"unknown type passes through", schema.CanonicalField{Name: "notes", Type: "identifier"}, 5.0, Result{Value: 5.0, Valid: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Lookup(tt.field)(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Lookup(%s)(%#v) = %+v, want %+v", tt.field.Name, tt.input, got, tt.want)
			}
		})
	}
}

func TestRegistry_DuplicatePanics(t *testing.T) {
	r := NewRegistry()
	r.Register("order_id", OrderID)

	defer func() {
		if recover() == nil {
			t.Error("Register() did not panic on duplicate name")
		}
	}()
	r.Register("order_id", Text)
}

func TestDefaultRegistry_CoversDefaultSchema(t *testing.T) {
	m, err := schema.DefaultOrders()
	if err != nil {
		t.Fatal(err)
	}
	r := DefaultRegistry()
	for _, name := range m.Fields() {
		if !r.Has(name) {
			t.Errorf("no validator registered for %s", name)
		}
	}
	if len(r.Names()) != m.Len() {
		t.Errorf("Names() = %d entries, want %d", len(r.Names()), m.Len())
	}
}
