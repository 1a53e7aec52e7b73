package coverage

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// CEPLength is the digit length of a Brazilian postal code.
const CEPLength = 8

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// DigitsOnly strips every non-digit rune from s.
func DigitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeCEP strips non-digits and zero-pads 7-digit codes to 8.
// Returns false for anything that is not 7 or 8 digits after stripping.
func NormalizeCEP(raw string) (string, bool) {
	digits := DigitsOnly(raw)
	switch len(digits) {
	case CEPLength:
		return digits, true
	case CEPLength - 1:
		return "0" + digits, true
	default:
		return "", false
	}
}

// NormalizeCity uppercases, trims, and strips combining marks so that
// "São Paulo" and "sao paulo" compare equal. The same normalization runs
// at write time and lookup time; the city tier never matches otherwise.
func NormalizeCity(city string) string {
	stripped, _, err := transform.String(stripMarks, city)
	if err != nil {
		stripped = city
	}
	return strings.ToUpper(strings.TrimSpace(stripped))
}

// NormalizeUF uppercases and trims a region code. Returns false unless the
// result is exactly two ASCII letters.
func NormalizeUF(uf string) (string, bool) {
	u := strings.ToUpper(strings.TrimSpace(uf))
	if len(u) != 2 {
		return "", false
	}
	for _, r := range u {
		if r < 'A' || r > 'Z' {
			return "", false
		}
	}
	return u, true
}

// UFScope builds the dedupe scope key for a UF set. Codes are sorted first
// so imports listing the same UFs in a different order share a scope.
func UFScope(ufs []string) string {
	sorted := make([]string, len(ufs))
	copy(sorted, ufs)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}
