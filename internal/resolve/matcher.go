package resolve

import (
	"github.com/rotisserie/eris"

	"github.com/deepbiz/directory/internal/model"
)

// Policy names accepted by PolicyByName.
const (
	PolicyCombined   = "combined"
	PolicyEitherAxis = "either_axis"
)

// Default matching parameters.
const (
	DefaultThreshold      = 0.75
	DefaultAddressWeight  = 0.7
	DefaultNameWeight     = 0.3
	DefaultAddressCutoff  = 0.85
	DefaultNameCutoff     = 0.70
	DefaultCandidateLimit = 100
)

// Scores holds the per-axis and combined similarity of one candidate.
type Scores struct {
	Address  float64 `json:"address"`
	Name     float64 `json:"name"`
	Combined float64 `json:"combined"`
}

// Policy decides whether a scored candidate is eligible to be a match.
// Eligible candidates are always ranked by combined score.
type Policy interface {
	Accept(s Scores) bool
	Name() string
}

// CombinedPolicy accepts candidates whose combined score meets Threshold.
type CombinedPolicy struct {
	Threshold float64
}

func (p CombinedPolicy) Accept(s Scores) bool { return s.Combined >= p.Threshold }
func (p CombinedPolicy) Name() string         { return PolicyCombined }

// EitherAxisPolicy accepts candidates whose address score alone meets
// AddressCutoff or whose name score alone meets NameCutoff.
type EitherAxisPolicy struct {
	AddressCutoff float64
	NameCutoff    float64
}

func (p EitherAxisPolicy) Accept(s Scores) bool {
	return s.Address >= p.AddressCutoff || s.Name >= p.NameCutoff
}
func (p EitherAxisPolicy) Name() string { return PolicyEitherAxis }

// PolicyByName builds the named policy. An empty name selects the combined
// policy; threshold <= 0 selects DefaultThreshold.
func PolicyByName(name string, threshold float64) (Policy, error) {
	switch name {
	case "", PolicyCombined:
		if threshold <= 0 {
			threshold = DefaultThreshold
		}
		return CombinedPolicy{Threshold: threshold}, nil
	case PolicyEitherAxis:
		return EitherAxisPolicy{AddressCutoff: DefaultAddressCutoff, NameCutoff: DefaultNameCutoff}, nil
	}
	return nil, eris.Errorf("resolve: unknown match policy %q", name)
}

// Match is the selected candidate and its scores.
type Match struct {
	Entity model.Entity
	Scores Scores
}

// Matcher scores candidates against an observed name and address.
type Matcher struct {
	policy        Policy
	addressWeight float64
	nameWeight    float64
}

// MatcherOption configures a Matcher.
type MatcherOption func(*Matcher)

// WithWeights sets the address and name weights of the combined score.
func WithWeights(address, name float64) MatcherOption {
	return func(m *Matcher) {
		m.addressWeight = address
		m.nameWeight = name
	}
}

// NewMatcher creates a Matcher for p. A nil policy selects the combined policy
// at DefaultThreshold.
func NewMatcher(p Policy, opts ...MatcherOption) *Matcher {
	if p == nil {
		p = CombinedPolicy{Threshold: DefaultThreshold}
	}
	m := &Matcher{
		policy:        p,
		addressWeight: DefaultAddressWeight,
		nameWeight:    DefaultNameWeight,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Policy returns the matcher's acceptance policy.
func (m *Matcher) Policy() Policy { return m.policy }

// Score computes the similarity of an observed name/address against a
// candidate entity. Inputs are normalized before comparison.
func (m *Matcher) Score(name, address string, candidate *model.Entity) Scores {
	a := Ratio(NormalizeAddress(address), NormalizeAddress(candidate.Address))
	n := Ratio(NormalizeName(name), NormalizeName(candidate.DisplayName()))
	return Scores{
		Address:  a,
		Name:     n,
		Combined: m.addressWeight*a + m.nameWeight*n,
	}
}

// Best returns the accepted candidate with the highest combined score. A
// candidate replaces the current best only when its combined score is
// strictly greater, so the first-seen candidate wins ties. No match is
// attempted when address is empty.
func (m *Matcher) Best(name, address string, candidates []model.Entity) (*Match, bool) {
	if NormalizeAddress(address) == "" {
		return nil, false
	}

	var best *Match
	for i := range candidates {
		c := &candidates[i]
		if c.Address == "" {
			continue
		}
		s := m.Score(name, address, c)
		if !m.policy.Accept(s) {
			continue
		}
		if best == nil || s.Combined > best.Scores.Combined {
			best = &Match{Entity: *c, Scores: s}
		}
	}
	return best, best != nil
}
