package extractor

import (
	"regexp"
	"strconv"
	"strings"
)

// priceRegex finds the first number in a price label. Digit groups may be
// separated by spaces (plain, no-break, narrow no-break), commas or dots.
var priceRegex = regexp.MustCompile(`\d(?:[\d\x{00a0}\x{202f} ,.]*\d)?`)

var groupSeparators = strings.NewReplacer(" ", "", "\u00a0", "", "\u202f", "")

// ParsePrice extracts a whole price from labels such as "1 299 ₽",
// "2 550,50 руб.", "1.299 €" or "AED 1,079.00". The fractional part is
// dropped. Only the first number counts, so "2 шт. по 300 ₽" yields 2.
func ParsePrice(s string) (int64, bool) {
	m := priceRegex.FindString(s)
	if m == "" {
		return 0, false
	}
	m = groupSeparators.Replace(m)

	// One or two digits after the last comma or dot are decimals; every
	// other comma or dot groups digits.
	if i := strings.LastIndexAny(m, ".,"); i >= 0 && len(m)-i-1 <= 2 {
		m = m[:i]
	}
	m = strings.NewReplacer(",", "", ".", "").Replace(m)

	v, err := strconv.ParseInt(m, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
