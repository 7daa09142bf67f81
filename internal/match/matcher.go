package match

import (
	"fmt"
	"strings"
)

// Match reasons reported to callers.
const (
	ReasonExactName   = "exact name match"
	ReasonContainment = "name containment match"
)

// Options tunes the matcher. The zero value is not useful; start from
// DefaultOptions.
type Options struct {
	// GenericDomains never count as a shared domain (subdomains included).
	GenericDomains []string
	// TitlePrefixes mark a name as a post title rather than a company.
	TitlePrefixes []string
	// MaxNameWords above which a name is treated as a post title.
	MaxNameWords int
	// MinDomainSimilarity is the bigram similarity a same-domain pair needs.
	MinDomainSimilarity float64
	// MinContainmentLen is the shortest normalized name eligible for containment.
	MinContainmentLen int
	// MaxContainmentExtra is the most characters the longer name may add.
	MaxContainmentExtra int
}

// DefaultOptions returns the conservative defaults used in production.
func DefaultOptions() Options {
	return Options{
		GenericDomains: GenericDomains,
		TitlePrefixes: []string{
			"i built", "show hn", "launch hn", "ask hn", "tell hn",
			"a ", "an ", "the ", "my ", "we ",
			"how ", "why ", "if ", "what ",
		},
		MaxNameWords:        6,
		MinDomainSimilarity: 0.3,
		MinContainmentLen:   6,
		MaxContainmentExtra: 5,
	}
}

// Matcher decides whether two company records denote the same entity.
// It prefers false negatives: near-duplicates stay separate rather than
// risk merging unrelated companies.
type Matcher struct {
	opts    Options
	generic domainSet
}

// NewMatcher creates a Matcher from opts.
func NewMatcher(opts Options) *Matcher {
	return &Matcher{opts: opts, generic: newDomainSet(opts.GenericDomains)}
}

var defaultMatcher = NewMatcher(DefaultOptions())

// IsMatch reports whether two records match using DefaultOptions.
func IsMatch(nameA, nameB, websiteA, websiteB string) (bool, string) {
	return defaultMatcher.IsMatch(nameA, nameB, websiteA, websiteB)
}

// IsMatch reports whether two records denote the same company and why.
// The first rule that fires wins:
//  1. Either name looks like a post title: no match
//  2. Equal normalized names
//  3. Same non-generic domain with similar names
//  4. One normalized name contains the other with a short remainder
func (m *Matcher) IsMatch(nameA, nameB, websiteA, websiteB string) (bool, string) {
	if m.IsLikelyTitle(nameA) || m.IsLikelyTitle(nameB) {
		return false, ""
	}

	na := NormalizeName(nameA)
	nb := NormalizeName(nameB)

	if na == nb {
		return true, ReasonExactName
	}

	domA := ExtractDomain(websiteA)
	domB := ExtractDomain(websiteB)
	if domA != "" && domA == domB && !m.IsGenericDomain(domA) {
		if BigramSimilarity(na, nb) >= m.opts.MinDomainSimilarity {
			return true, fmt.Sprintf("same domain (%s)", domA)
		}
	}

	if m.contains(na, nb) || m.contains(nb, na) {
		return true, ReasonContainment
	}

	return false, ""
}

// IsLikelyTitle reports whether name reads like a generic post title
// ("Show HN: ...", "I built ...") rather than a company name.
func (m *Matcher) IsLikelyTitle(name string) bool {
	lower := strings.ToLower(name)
	for _, p := range m.opts.TitlePrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return len(strings.Fields(name)) > m.opts.MaxNameWords
}

// IsGenericDomain reports whether domain (or a parent of it) is on the
// generic hosting denylist.
func (m *Matcher) IsGenericDomain(domain string) bool {
	return m.generic.contains(domain)
}

// contains reports whether outer contains inner with at most
// MaxContainmentExtra extra characters, both names being long enough.
func (m *Matcher) contains(inner, outer string) bool {
	li := len([]rune(inner))
	lo := len([]rune(outer))
	if li < m.opts.MinContainmentLen || lo < m.opts.MinContainmentLen {
		return false
	}
	if !strings.Contains(outer, inner) {
		return false
	}
	return lo-li <= m.opts.MaxContainmentExtra
}
