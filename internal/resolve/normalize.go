// Package resolve matches business records observed by one source against
// canonical entities discovered by the other.
package resolve

import (
	"strings"
	"unicode"

	"golang.org/x/text/width"
)

// hyphenLike lists the dash, minus, prolonged-sound and wave characters
// Japanese addresses use interchangeably for block/lot separators.
var hyphenLike = map[rune]bool{
	'‐': true, // hyphen
	'‑': true, // non-breaking hyphen
	'‒': true, // figure dash
	'–': true, // en dash
	'—': true, // em dash
	'―': true, // horizontal bar
	'−': true, // minus sign
	'〜': true, // wave dash
	'ー': true, // katakana prolonged sound mark
	'－': true, // full-width hyphen-minus
	'～': true, // full-width tilde
	'ｰ': true, // half-width prolonged sound mark
}

// katakanaVariants maps archaic or loan-sound katakana to the form listing
// sites and map providers agree on.
var katakanaVariants = map[rune]rune{
	'ヴ': 'ブ',
	'ヰ': 'イ',
	'ヱ': 'エ',
}

// NormalizeAddress folds a postal address into a comparable form:
//  1. Full-width digits become ASCII digits
//  2. Hyphen-like characters become '-'
//  3. All whitespace, including the ideographic space, is removed
func NormalizeAddress(addr string) string {
	if addr == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(addr))
	for _, r := range addr {
		switch {
		case unicode.IsSpace(r):
			continue
		case hyphenLike[r]:
			b.WriteByte('-')
		case r >= '０' && r <= '９':
			b.WriteRune(narrow(r))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeName folds a business display name into a comparable form:
//  1. All whitespace is removed
//  2. ヴ, ヰ and ヱ become ブ, イ and エ
//  3. Full-width Latin letters become ASCII
//  4. The result is lower-cased
func NormalizeName(name string) string {
	if name == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if unicode.IsSpace(r) {
			continue
		}
		if v, ok := katakanaVariants[r]; ok {
			r = v
		}
		if (r >= 'Ａ' && r <= 'Ｚ') || (r >= 'ａ' && r <= 'ｚ') {
			r = narrow(r)
		}
		b.WriteRune(r)
	}
	return strings.ToLower(b.String())
}

func narrow(r rune) rune {
	if n := width.LookupRune(r).Narrow(); n != 0 {
		return n
	}
	return r
}
