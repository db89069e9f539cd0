package pipeline

// Voter converts a noisy stream of near-duplicate recognition texts into a
// single trustworthy representative once enough repeated or similar evidence
// has accumulated in its window.
//
// Two voting modes: with similarityVote == 0 only exact repeats count; with
// similarityVote > 0 window members whose pairwise similarity reaches the
// threshold are counted as the same cluster. When equally sized clusters
// compete, the earlier-found candidate keeps the win; true ties are resolved
// by window order and are an explicit non-guarantee.
//
// The voter is mutated only by the pipeline goroutine and carries no lock.
type Voter struct {
	window     []string
	capacity   int
	minVotes   int
	similarity float64
}

func NewVoter(windowSize, minVotes int, similarityVote float64) *Voter {
	if windowSize < 1 {
		windowSize = 1
	}
	if minVotes < 1 {
		minVotes = 1
	}
	if similarityVote < 0 {
		similarityVote = 0
	}
	if similarityVote > 1 {
		similarityVote = 1
	}
	return &Voter{
		window:     make([]string, 0, windowSize),
		capacity:   windowSize,
		minVotes:   minVotes,
		similarity: similarityVote,
	}
}

// Add normalizes the sample and pushes it into the window, evicting the
// oldest entry beyond capacity.
func (v *Voter) Add(raw string) {
	normalized := normalizeText(raw)
	if len(v.window) == v.capacity {
		copy(v.window, v.window[1:])
		v.window[len(v.window)-1] = normalized
		return
	}
	v.window = append(v.window, normalized)
}

// Len reports how many samples are currently in the window.
func (v *Voter) Len() int {
	return len(v.window)
}

// Stable returns the representative text of the strongest cluster if it has
// reached quorum, otherwise the most recent sample. An empty window yields "".
func (v *Voter) Stable() string {
	if len(v.window) == 0 {
		return ""
	}
	if v.similarity <= 0 {
		if best, count := v.mostFrequent(); count >= v.minVotes {
			return best
		}
		return v.window[len(v.window)-1]
	}
	if best, count := v.bestCluster(); count >= v.minVotes {
		return best
	}
	return v.window[len(v.window)-1]
}

// IsStable reports whether some cluster in the window has reached quorum.
func (v *Voter) IsStable() bool {
	if len(v.window) == 0 {
		return false
	}
	if v.similarity <= 0 {
		_, count := v.mostFrequent()
		return count >= v.minVotes
	}
	_, count := v.bestCluster()
	return count >= v.minVotes
}

// IsSoftStable reports whether the most recent sample still closely matches
// the current consensus. It permits correction before strict quorum forms, so
// camera jitter does not starve the corrector.
func (v *Voter) IsSoftStable(threshold float64) bool {
	if len(v.window) == 0 {
		return false
	}
	last := v.window[len(v.window)-1]
	return textSimilarity(v.Stable(), last) >= threshold
}

func (v *Voter) mostFrequent() (string, int) {
	counts := make(map[string]int, len(v.window))
	for _, t := range v.window {
		counts[t]++
	}
	best := ""
	bestCount := 0
	for _, t := range v.window {
		if c := counts[t]; c > bestCount {
			best, bestCount = t, c
		}
	}
	return best, bestCount
}

func (v *Voter) bestCluster() (string, int) {
	seen := make(map[string]bool, len(v.window))
	best := ""
	bestCount := 0
	for _, candidate := range v.window {
		if seen[candidate] {
			continue
		}
		seen[candidate] = true
		count := 0
		for _, t := range v.window {
			if textSimilarity(candidate, t) >= v.similarity {
				count++
			}
		}
		if count > bestCount {
			best, bestCount = candidate, count
		}
	}
	return best, bestCount
}
