// Package match decides whether two company records denote the same entity.
package match

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// legalSuffixes lists legal entity suffixes stripped during name normalization.
// A suffix only matches as a trailing token (it carries its leading space).
var legalSuffixes = []string{
	" ag", " sa", " gmbh", " ltd", " inc", " inc.", " co.",
	" llc", " corp", " corp.",
}

// trailingPunct is trimmed from the end of a normalized name.
const trailingPunct = " .,;:-–—"

// NormalizeName canonicalizes a company display name for comparison by:
//  1. Composing unicode to NFC and trimming whitespace
//  2. Converting to lowercase
//  3. Removing trailing legal suffixes (AG, GmbH, Ltd, Inc, LLC, Corp, ...)
//  4. Trimming trailing punctuation and whitespace
//
// Steps 3 and 4 repeat until the name is stable, so
// NormalizeName(NormalizeName(x)) == NormalizeName(x).
func NormalizeName(name string) string {
	n := strings.ToLower(strings.TrimSpace(norm.NFC.String(name)))
	for {
		prev := n
		for _, suffix := range legalSuffixes {
			if strings.HasSuffix(n, suffix) {
				n = strings.TrimRight(strings.TrimSuffix(n, suffix), " ")
			}
		}
		n = strings.TrimRight(n, trailingPunct)
		if n == prev {
			return n
		}
	}
}
