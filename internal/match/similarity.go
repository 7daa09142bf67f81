package match

// BigramSimilarity returns the Dice coefficient over the character-bigram
// sets of a and b: 2·|A∩B| / (|A|+|B|). It is order-sensitive, so
// "teleport" vs "telleroo" scores low even though the letters overlap.
// Returns 0 when either string has fewer than 2 characters.
func BigramSimilarity(a, b string) float64 {
	ba := bigrams(a)
	bb := bigrams(b)
	if len(ba) == 0 || len(bb) == 0 {
		return 0
	}

	shared := 0
	for g := range ba {
		if _, ok := bb[g]; ok {
			shared++
		}
	}
	return float64(2*shared) / float64(len(ba)+len(bb))
}

func bigrams(s string) map[[2]rune]struct{} {
	r := []rune(s)
	if len(r) < 2 {
		return nil
	}
	set := make(map[[2]rune]struct{}, len(r)-1)
	for i := 0; i < len(r)-1; i++ {
		set[[2]rune{r[i], r[i+1]}] = struct{}{}
	}
	return set
}
