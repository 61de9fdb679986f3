package clean

// coerce.go turns loosely formatted cell values into typed values.
//
// Spreadsheet exports arrive with currency symbols, thousands separators,
// percent signs, accounting parentheses and a dozen date layouts. Every
// coercion returns the typed value or one of the sentinel errors below, so
// callers decide what a failure means instead of catching panics.

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

var (
	// ErrEmpty is returned for nil, NaN and blank values.
	ErrEmpty = errors.New("empty value")
	// ErrNotNumeric is returned when a value does not parse as a number.
	ErrNotNumeric = errors.New("not a number")
	// ErrNotDate is returned when no date layout matches.
	ErrNotDate = errors.New("not a date")
	// ErrUnknownCurrency is returned when no currency code can be derived.
	ErrUnknownCurrency = errors.New("unknown currency")
	// ErrUnsupported is returned for value types a coercion does not accept.
	ErrUnsupported = errors.New("unsupported value type")
)

// numericPattern accepts integers, decimals and scientific notation once
// symbols and separators are gone. NaN and Inf spellings never match.
var numericPattern = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// numericNoise is removed from numeric strings before parsing.
var numericNoise = strings.NewReplacer(
	"%", "",
	"₹", "", // Rupee
	"$", "",
	"€", "", // Euro
	"£", "", // Pound
	",", "",
	" ", "",
	"\t", "",
	"\n", "",
	"\r", "",
	"\f", "",
	"\v", "",
	"\u00a0", "",
)

// ToFloat coerces native numbers and numeric strings. "(12.50)" is read as
// an accounting negative.
func ToFloat(v any) (float64, error) {
	switch x := v.(type) {
	case nil:
		return 0, ErrEmpty
	case float64:
		if math.IsNaN(x) {
			return 0, ErrEmpty
		}
		if math.IsInf(x, 0) {
			return 0, ErrNotNumeric
		}
		return x, nil
	case float32:
		return ToFloat(float64(x))
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case json.Number:
		return ToFloat(x.String())
	case string:
		return parseNumeric(x)
	default:
		return 0, fmt.Errorf("%w: %T", ErrUnsupported, v)
	}
}

func parseNumeric(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrEmpty
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}

	s = numericNoise.Replace(s)
	if negative {
		s = "-" + s
	}
	if !numericPattern.MatchString(s) {
		return 0, ErrNotNumeric
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) {
		return 0, ErrNotNumeric
	}
	return f, nil
}

// ToInt coerces like ToFloat and rounds half to even.
func ToInt(v any) (int64, error) {
	f, err := ToFloat(v)
	if err != nil {
		return 0, err
	}
	r := math.RoundToEven(f)
	if r > math.MaxInt64 || r < math.MinInt64 {
		return 0, ErrNotNumeric
	}
	return int64(r), nil
}

// ToFraction reads a rate. Values already in [0,1] are kept; anything else is
// taken as a percentage and divided by 100. A trailing % is ignored.
func ToFraction(v any) (float64, error) {
	var f float64
	switch x := v.(type) {
	case string:
		s := strings.ToLower(strings.TrimSpace(x))
		if s == "" {
			return 0, ErrEmpty
		}
		s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
		s = strings.ReplaceAll(s, ",", "")
		if !numericPattern.MatchString(s) {
			return 0, ErrNotNumeric
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, ErrNotNumeric
		}
		f = parsed
	default:
		parsed, err := ToFloat(v)
		if err != nil {
			return 0, err
		}
		f = parsed
	}

	if f >= 0 && f <= 1 {
		return f, nil
	}
	return f / 100, nil
}

// TwoDigitYearWindow is how far a two-digit year may land from the current
// year. "50" read in 2026 is 2050, "80" is 1980.
const TwoDigitYearWindow = 50

// now is the reference clock for two-digit and missing years.
var now = time.Now

// Date layouts. Day-first layouts are tried before month-first ones so
// "5/1/24" is the 5th of January.
var (
	isoLayouts = []string{
		"2006-1-2", "2006/1/2", "2006.1.2", "20060102",
		time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02 15:04",
	}
	dayFirstLayouts = []string{
		"2/1/2006", "2-1-2006", "2.1.2006",
		"2/1/2006 15:04", "2/1/2006 15:04:05", "2-1-2006 15:04",
	}
	dayFirstShortLayouts = []string{
		"2/1/06", "2-1-06", "2.1.06",
	}
	namedMonthLayouts = []string{
		"2 Jan 2006", "2 January 2006", "2-Jan-2006", "2 Jan, 2006",
		"Jan 2 2006", "Jan 2, 2006", "January 2 2006", "January 2, 2006",
		"Mon 2 Jan 2006", "Mon, 2 Jan 2006", "Monday, 2 January 2006",
		"Monday, January 2, 2006", "2006-Jan-2", "2006 Jan 2",
	}
	namedMonthShortLayouts = []string{
		"2-Jan-06", "2 Jan 06", "Jan 2, 06",
	}
	namedMonthNoYearLayouts = []string{
		"Jan 2", "January 2", "2 Jan", "2 January", "2-Jan",
	}
	monthFirstLayouts = []string{
		"1/2/2006", "1-2-2006", "1.2.2006", "1/2/2006 15:04", "1/2/2006 15:04:05",
	}
	monthFirstShortLayouts = []string{
		"1/2/06", "1-2-06", "1.2.06",
	}
)

var (
	ordinalSuffix = regexp.MustCompile(`(?i)\b(\d{1,2})(st|nd|rd|th)\b`)
	spaceRun      = regexp.MustCompile(`\s+`)
	dateTokens    = []*regexp.Regexp{
		regexp.MustCompile(`\d{4}[-/.]\d{1,2}[-/.]\d{1,2}`),
		regexp.MustCompile(`\d{1,2}[-/.]\d{1,2}[-/.]\d{2,4}`),
		regexp.MustCompile(`(?i)\d{1,2}[\s-][a-z]{3,9},?[\s-]\d{2,4}`),
		regexp.MustCompile(`(?i)[a-z]{3,9}\s+\d{1,2},?\s+\d{2,4}`),
	}
)

// ToDate parses a date string and renders it as YYYY-MM-DD. Text around a
// recognizable date is ignored. Native numbers are rejected.
func ToDate(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", ErrEmpty
	case time.Time:
		return x.Format("2006-01-02"), nil
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return "", ErrEmpty
		}
		t, ok := parseDate(s)
		if !ok {
			return "", ErrNotDate
		}
		return t.Format("2006-01-02"), nil
	default:
		return "", fmt.Errorf("%w: %T", ErrUnsupported, v)
	}
}

func parseDate(s string) (time.Time, bool) {
	s = spaceRun.ReplaceAllString(ordinalSuffix.ReplaceAllString(s, "$1"), " ")
	if t, ok := parseLayouts(s); ok {
		return t, true
	}
	for _, re := range dateTokens {
		for _, tok := range re.FindAllString(s, -1) {
			if t, ok := parseLayouts(tok); ok {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

type yearForm int

const (
	yearFull yearForm = iota
	yearTwoDigit
	yearMissing
)

func parseLayouts(s string) (time.Time, bool) {
	groups := []struct {
		layouts []string
		form    yearForm
	}{
		{isoLayouts, yearFull},
		{dayFirstLayouts, yearFull},
		{dayFirstShortLayouts, yearTwoDigit},
		{namedMonthLayouts, yearFull},
		{namedMonthShortLayouts, yearTwoDigit},
		{namedMonthNoYearLayouts, yearMissing},
		{monthFirstLayouts, yearFull},
		{monthFirstShortLayouts, yearTwoDigit},
	}
	for _, g := range groups {
		if t, ok := tryLayouts(s, g.layouts, g.form); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

func tryLayouts(s string, layouts []string, form yearForm) (time.Time, bool) {
	for _, layout := range layouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		switch form {
		case yearTwoDigit:
			t = withYear(t, expandTwoDigitYear(t.Year()%100))
		case yearMissing:
			y := withYear(t, now().Year())
			if y.Day() != t.Day() {
				// Feb 29 outside a leap year.
				continue
			}
			t = y
		}
		return t, true
	}
	return time.Time{}, false
}

// expandTwoDigitYear places yy in the century that keeps it within
// TwoDigitYearWindow years of the current year.
func expandTwoDigitYear(yy int) int {
	cur := now().Year()
	year := cur - cur%100 + yy
	switch {
	case year >= cur+TwoDigitYearWindow:
		year -= 100
	case year < cur-TwoDigitYearWindow:
		year += 100
	}
	return year
}

func withYear(t time.Time, year int) time.Time {
	return time.Date(year, t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

var (
	currencySymbols = map[string]string{
		"₹": "INR",
		"$": "USD",
	}
	currencyAliases = map[string]string{
		"inr":    "INR",
		"rs":     "INR",
		"rupees": "INR",
		"₹":      "INR",
	}
)

// ToCurrency resolves a symbol, alias or three-letter code to an uppercase
// code.
func ToCurrency(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		if v == nil {
			return "", ErrEmpty
		}
		return "", fmt.Errorf("%w: %T", ErrUnsupported, v)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrEmpty
	}
	if code, ok := currencySymbols[s]; ok {
		return code, nil
	}
	if code, ok := currencyAliases[strings.ToLower(s)]; ok {
		return code, nil
	}
	if utf8.RuneCountInString(s) == 3 && strings.IndexFunc(s, func(r rune) bool { return !unicode.IsLetter(r) }) < 0 {
		return strings.ToUpper(s), nil
	}
	return "", ErrUnknownCurrency
}
