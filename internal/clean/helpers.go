package clean

import (
	"strings"

	"github.com/JonMunkholm/schemafix/internal/schema"
	"github.com/JonMunkholm/schemafix/internal/table"
)

// helperKeywords mark raw columns that may hold contact details.
var helperKeywords = []string{"contact", "mobile", "phone", "email", "e-mail"}

// contactKind is the cross-field recovery family of a canonical field.
type contactKind int

const (
	contactNone contactKind = iota
	contactEmail
	contactPhone
)

func kindOf(f schema.CanonicalField) contactKind {
	switch {
	case f.Name == "email" || f.Type == "email":
		return contactEmail
	case f.Name == "phone" || f.Type == "phone":
		return contactPhone
	default:
		return contactNone
	}
}

// helperColumns returns the indices of raw headers that look like contact
// columns, in source order.
func helperColumns(headers []string) []int {
	var cols []int
	for i, h := range headers {
		lh := strings.ToLower(h)
		for _, kw := range helperKeywords {
			if strings.Contains(lh, kw) {
				cols = append(cols, i)
				break
			}
		}
	}
	return cols
}

// recoverContact scans a raw row's helper columns for a value of the given kind.
func recoverContact(kind contactKind, row []any, cols []int) any {
	switch kind {
	case contactEmail:
		return extractEmail(row, cols)
	case contactPhone:
		return extractPhone(row, cols)
	default:
		return nil
	}
}

// extractEmail returns the first helper value that is an email address, or
// the first address embedded in one.
func extractEmail(row []any, cols []int) any {
	for _, c := range cols {
		s := helperValue(row, c)
		if s == "" {
			continue
		}
		if emailPattern.MatchString(s) {
			return s
		}
		if m := emailSearch.FindString(s); m != "" {
			return m
		}
	}
	return nil
}

// extractPhone returns the first helper value carrying seven or more digits,
// reduced to digits and '+'. When no helper has one, the first helper holding
// an email address is returned as-is; the phone validator rejects it if it is
// ever applied.
func extractPhone(row []any, cols []int) any {
	var email any
	for _, c := range cols {
		s := helperValue(row, c)
		if s == "" {
			continue
		}
		if emailPattern.MatchString(s) {
			if email == nil {
				email = s
			}
			continue
		}
		cleaned := phoneNoise.ReplaceAllString(s, "")
		if len(nonDigit.ReplaceAllString(cleaned, "")) >= 7 {
			return cleaned
		}
	}
	return email
}

func helperValue(row []any, c int) string {
	if c < 0 || c >= len(row) || table.IsMissing(row[c]) {
		return ""
	}
	return strings.TrimSpace(table.FormatValue(row[c]))
}
