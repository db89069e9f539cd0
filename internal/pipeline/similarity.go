package pipeline

import "strings"

// normalizeText trims and collapses internal whitespace. Vote entries and
// cache keys share this normalization so they agree on what "the same text"
// means; case is preserved.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// textSimilarity returns a ratio in [0,1] between two texts after
// normalization: 1.0 identical, 0.0 disjoint. The ratio is 2*M/T where M is
// the total length of the longest matching runs and T the combined length,
// computed over runes so multi-byte scripts are not penalized.
func textSimilarity(a, b string) float64 {
	an := normalizeText(a)
	bn := normalizeText(b)
	if an == "" && bn == "" {
		return 1.0
	}
	if an == "" || bn == "" {
		return 0.0
	}
	ar := []rune(an)
	br := []rune(bn)
	matched := matchedRunes(ar, br)
	return 2.0 * float64(matched) / float64(len(ar)+len(br))
}

// matchedRunes sums the lengths of the matching blocks between a and b:
// find the longest common run, then recurse on the unmatched pieces to the
// left and right of it.
func matchedRunes(a, b []rune) int {
	b2j := make(map[rune][]int, len(b))
	for j, r := range b {
		b2j[r] = append(b2j[r], j)
	}

	type span struct{ alo, ahi, blo, bhi int }
	stack := []span{{0, len(a), 0, len(b)}}
	total := 0
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		i, j, k := longestMatch(a, s.alo, s.ahi, s.blo, s.bhi, b2j)
		if k == 0 {
			continue
		}
		total += k
		stack = append(stack,
			span{s.alo, i, s.blo, j},
			span{i + k, s.ahi, j + k, s.bhi},
		)
	}
	return total
}

func longestMatch(a []rune, alo, ahi, blo, bhi int, b2j map[rune][]int) (besti, bestj, size int) {
	besti, bestj = alo, blo
	j2len := make(map[int]int)
	for i := alo; i < ahi; i++ {
		newj2len := make(map[int]int)
		for _, j := range b2j[a[i]] {
			if j < blo {
				continue
			}
			if j >= bhi {
				break
			}
			k := j2len[j-1] + 1
			newj2len[j] = k
			if k > size {
				besti, bestj, size = i-k+1, j-k+1, k
			}
		}
		j2len = newj2len
	}
	return besti, bestj, size
}
