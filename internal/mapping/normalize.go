package mapping

import (
	"regexp"
	"strings"
)

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	nonAlnum      = regexp.MustCompile(`[^a-z0-9]`)

	symbolHints = strings.NewReplacer("%", " pct ", "#", " num ")
)

// Compact reduces a header or synonym to its comparison key: trimmed,
// lowercased, whitespace collapsed, % and # spelled out as "pct" and "num",
// then every character outside [a-z0-9] removed.
//
// "Discount %" and "Discount #" therefore stay distinct ("discountpct" and
// "discountnum").
func Compact(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = whitespaceRun.ReplaceAllString(s, " ")
	s = symbolHints.Replace(s)
	return nonAlnum.ReplaceAllString(s, "")
}
