package catalog

import (
	"regexp"
	"strings"
)

var (
	quantitySuffix  = regexp.MustCompile(`\s\d+\s?[a-zA-Z]{1,2}\.?$`)
	nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9]`)
	leadingBracket  = regexp.MustCompile(`^\(.+\)\s*`)
	horizontalSpace = regexp.MustCompile(`[ \t]+`)
)

// SplitQuantity splits a trailing quantity suffix (a number followed by a
// one or two letter unit, e.g. "500 G.") off a raw product name. The
// quantity is stripped to alphanumerics; the name keeps the remaining
// tokens joined by single spaces with any leading parenthetical qualifier
// removed. Names without a quantity suffix come back unchanged with a nil
// quantity.
func SplitQuantity(raw string) (string, *string) {
	loc := quantitySuffix.FindStringIndex(raw)
	if loc == nil {
		return raw, nil
	}
	qty := nonAlphanumeric.ReplaceAllString(raw[loc[0]:], "")
	name := strings.Join(strings.Fields(raw[:loc[0]]), " ")
	name = leadingBracket.ReplaceAllString(name, "")
	return name, &qty
}

// CollapseSpace squeezes runs of horizontal whitespace into single spaces
// and trims the result.
func CollapseSpace(s string) string {
	return strings.TrimSpace(horizontalSpace.ReplaceAllString(s, " "))
}
