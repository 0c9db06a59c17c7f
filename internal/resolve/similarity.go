package resolve

import "github.com/pmezard/go-difflib/difflib"

// Ratio returns the sequence-matcher similarity of a and b over runes: 2*M/T
// where M is the number of matched runes and T the combined rune length.
// The alignment is evaluated in both directions and the larger ratio is
// used, so Ratio(a, b) == Ratio(b, a). Either string empty yields 0.
func Ratio(a, b string) float64 {
	ra, rb := runes(a), runes(b)
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}
	fwd := difflib.NewMatcherWithJunk(ra, rb, false, nil).Ratio()
	rev := difflib.NewMatcherWithJunk(rb, ra, false, nil).Ratio()
	return max(fwd, rev)
}

// runes splits s into one-element strings, one per rune.
func runes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
