package clean

import (
	"encoding/json"
	"math"
	"regexp"
	"strings"

	"github.com/JonMunkholm/schemafix/internal/table"
)

// Reasons attached to issues. Callers match on these strings.
const (
	ReasonNullOrEmpty   = "Null or empty"
	ReasonMissingColumn = "Missing column (unmapped)"
	ReasonExtraColumn   = "Extra column"
	ReasonNewHeader     = "New header proposal"
	ReasonOrderID       = "Invalid order_id format"
	ReasonDate          = "Unparseable date"
	ReasonCustomerID    = "Invalid customer_id format"
	ReasonEmail         = "Invalid email"
	ReasonPhoneInEmail  = "Phone found in email field"
	ReasonPhone         = "Invalid phone"
	ReasonEmailInPhone  = "Email found in phone field"
	ReasonPostalCode    = "Postal code must be 6 digits"
	ReasonSKU           = "Invalid SKU format"
	ReasonQuantity      = "Invalid quantity"
	ReasonCurrency      = "Unknown currency"
	ReasonPercent       = "Invalid percent value"
	ReasonTaxID         = "Invalid GSTIN format"
	reasonInvalidPrefix = "Invalid "
)

var (
	orderIDPattern    = regexp.MustCompile(`^ORD-\d{4}$`)
	customerIDPattern = regexp.MustCompile(`^CUST-\d{1,}$`)
	skuPattern        = regexp.MustCompile(`^[A-Z]{2}-\d{4}$`)
	gstinPattern      = regexp.MustCompile(`^[0-9]{2}[A-Z]{5}[0-9]{4}[A-Z]{1}[1-9A-Z]{1}Z[0-9A-Z]{1}$`)
	emailPattern      = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)
	emailSearch       = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	pinPattern        = regexp.MustCompile(`^\d{6}$`)
	phoneNoise        = regexp.MustCompile(`[^0-9+]`)
	nonDigit          = regexp.MustCompile(`\D`)
	longDigitRun      = regexp.MustCompile(`\d{7,}`)
)

// Result is the outcome of validating one cell. Value is what the cleaned
// table holds: the normalized value when Valid, otherwise the original value
// or nil for contact fields. Suggestion is an optional repair.
type Result struct {
	Value      any
	Valid      bool
	Reason     string
	Suggestion any
}

// Validator checks and normalizes a single non-missing cell value. A
// Validator must be a pure function of its input.
type Validator func(v any) Result

// Family builds a validator for a named field. Families back type tags, where
// the reason text carries the field name.
type Family func(field string) Validator

func valid(v any) Result {
	return Result{Value: v, Valid: true}
}

func invalid(v any, reason string) Result {
	return Result{Value: v, Reason: reason}
}

// Text trims strings and passes anything else through.
func Text(v any) Result {
	if s, ok := v.(string); ok {
		return valid(strings.TrimSpace(s))
	}
	return valid(v)
}

// upperPattern builds a validator that uppercases and trims a string before
// matching it. strip removes every space first.
func upperPattern(re *regexp.Regexp, reason string, strip bool) Validator {
	return func(v any) Result {
		s, ok := v.(string)
		if !ok {
			return invalid(v, reason)
		}
		s = strings.ToUpper(strings.TrimSpace(s))
		if strip {
			s = strings.ReplaceAll(s, " ", "")
		}
		if re.MatchString(s) {
			return valid(s)
		}
		return invalid(v, reason)
	}
}

var (
	// OrderID accepts ORD- followed by four digits.
	OrderID = upperPattern(orderIDPattern, ReasonOrderID, false)
	// CustomerID accepts CUST- followed by digits; inner spaces are dropped.
	CustomerID = upperPattern(customerIDPattern, ReasonCustomerID, true)
	// SKU accepts two letters, a dash and four digits.
	SKU = upperPattern(skuPattern, ReasonSKU, false)
	// TaxID accepts a 15-character GSTIN.
	TaxID = upperPattern(gstinPattern, ReasonTaxID, false)
)

// Date normalizes to YYYY-MM-DD.
func Date(v any) Result {
	d, err := ToDate(v)
	if err != nil {
		return invalid(v, ReasonDate)
	}
	return valid(d)
}

// Email removes spaces and checks the address shape. Invalid values are
// nulled; a long digit run is reported as a misplaced phone number.
func Email(v any) Result {
	s, ok := v.(string)
	if !ok {
		return invalid(nil, ReasonEmail)
	}
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	if emailPattern.MatchString(s) {
		return valid(s)
	}
	if longDigitRun.MatchString(s) {
		return invalid(nil, ReasonPhoneInEmail)
	}
	return invalid(nil, ReasonEmail)
}

// Phone keeps digits and '+' and requires at least seven digits. Invalid
// values are nulled. Native numbers are formatted before checking.
func Phone(v any) Result {
	var s string
	switch x := v.(type) {
	case string:
		s = x
	case float64:
		if x != math.Trunc(x) {
			return invalid(nil, ReasonPhone)
		}
		s = table.FormatValue(x)
	case int, int64, json.Number:
		s = table.FormatValue(x)
	default:
		return invalid(nil, ReasonPhone)
	}

	if strings.Contains(s, "@") {
		return invalid(nil, ReasonEmailInPhone)
	}
	cleaned := phoneNoise.ReplaceAllString(s, "")
	if len(nonDigit.ReplaceAllString(cleaned, "")) >= 7 {
		return valid(cleaned)
	}
	return invalid(nil, ReasonPhone)
}

// PostalCode requires exactly six digits. Numbers are rounded and zero
// padded. A string that yields six digits once non-digits are removed gets
// those digits as its suggestion.
func PostalCode(v any) Result {
	switch x := v.(type) {
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(x), " ", "")
		if pinPattern.MatchString(s) {
			return valid(s)
		}
		r := invalid(v, ReasonPostalCode)
		if digits := nonDigit.ReplaceAllString(x, ""); len(digits) == 6 {
			r.Suggestion = digits
		}
		return r
	case float64, float32, int, int64, int32, json.Number:
		n, err := ToInt(x)
		if err != nil || n < 0 || n > 999999 {
			return invalid(v, ReasonPostalCode)
		}
		return valid(padPin(n))
	default:
		return invalid(v, ReasonPostalCode)
	}
}

func padPin(n int64) string {
	s := table.FormatValue(n)
	return strings.Repeat("0", 6-len(s)) + s
}

// Quantity is a non-negative integer, rounded half to even.
func Quantity(v any) Result {
	n, err := ToInt(v)
	if err != nil || n < 0 {
		return invalid(v, ReasonQuantity)
	}
	return valid(n)
}

// Integer is the family form of Quantity.
func Integer(field string) Validator {
	reason := reasonInvalidPrefix + field
	return func(v any) Result {
		n, err := ToInt(v)
		if err != nil || n < 0 {
			return invalid(v, reason)
		}
		return valid(n)
	}
}

// Amount builds a validator for a non-negative amount. The reason names the
// field, e.g. "Invalid unit_price".
func Amount(field string) Validator {
	reason := reasonInvalidPrefix + field
	return func(v any) Result {
		f, err := ToFloat(v)
		if err != nil || f < 0 {
			return invalid(v, reason)
		}
		return valid(f)
	}
}

// Currency resolves symbols, aliases and three-letter codes.
func Currency(v any) Result {
	c, err := ToCurrency(v)
	if err != nil {
		return invalid(v, ReasonCurrency)
	}
	return valid(c)
}

// Percent reads a rate into [0,1], rounded to four decimals.
func Percent(v any) Result {
	f, err := ToFraction(v)
	if err != nil || f < 0 || f > 1 {
		return invalid(v, ReasonPercent)
	}
	return valid(math.Round(f*1e4) / 1e4)
}

func fixed(v Validator) Family {
	return func(string) Validator { return v }
}
