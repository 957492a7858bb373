package services

import (
	"math"
	"sort"
	"strings"

	"github.com/assemblr-hq/assemblr-engine/pkg/models"
)

const (
	// signatureDepth is how many leading steps participate in the
	// exact-match signature used for initial grouping.
	signatureDepth = 10

	// jaccardMergeThreshold is the token-set similarity at which two
	// signature groups are considered the same pattern.
	jaccardMergeThreshold = 0.6

	// entropyCeiling normalizes entropy into [0,1] for confidence scoring.
	entropyCeiling = 5.0
)

// ScoredCluster is one merged group of similar sequences with its
// statistics. Sequence is the group's canonical (first-seen) ordering.
type ScoredCluster struct {
	Sequence   []models.SequenceStep
	Frequency  int
	Entropy    float64
	Confidence float64
}

type sequenceGroup struct {
	canonical []models.SequenceStep
	sequences [][]models.SequenceStep
}

// clusterSequences groups extracted sequences by signature, merges similar
// groups, and scores each merged group. The merge is a single pass: group i
// absorbs any later group whose canonical sequence meets the Jaccard
// threshold against i's canonical; absorbed groups are not re-compared, so
// the merge is deliberately not transitive-closed.
func clusterSequences(sequences [][]models.SequenceStep) []ScoredCluster {
	if len(sequences) == 0 {
		return nil
	}

	// Group by exact signature over the leading steps, preserving
	// first-seen order so canonical selection is deterministic.
	var groups []*sequenceGroup
	bySignature := make(map[string]*sequenceGroup)
	for _, seq := range sequences {
		sig := signature(seq)
		if g, ok := bySignature[sig]; ok {
			g.sequences = append(g.sequences, seq)
			continue
		}
		g := &sequenceGroup{canonical: seq, sequences: [][]models.SequenceStep{seq}}
		bySignature[sig] = g
		groups = append(groups, g)
	}

	// Single-pass similarity merge against each surviving group's
	// original canonical sequence.
	absorbed := make([]bool, len(groups))
	var merged []*sequenceGroup
	for i, g := range groups {
		if absorbed[i] {
			continue
		}
		for j := i + 1; j < len(groups); j++ {
			if absorbed[j] {
				continue
			}
			if jaccard(g.canonical, groups[j].canonical) >= jaccardMergeThreshold {
				g.sequences = append(g.sequences, groups[j].sequences...)
				absorbed[j] = true
			}
		}
		merged = append(merged, g)
	}

	total := len(sequences)
	clusters := make([]ScoredCluster, 0, len(merged))
	for _, g := range merged {
		freq := len(g.sequences)
		ent := tokenEntropy(g.sequences)
		clusters = append(clusters, ScoredCluster{
			Sequence:   g.canonical,
			Frequency:  freq,
			Entropy:    ent,
			Confidence: confidence(freq, total, ent),
		})
	}

	sort.SliceStable(clusters, func(i, j int) bool {
		return clusters[i].Confidence > clusters[j].Confidence
	})
	return clusters
}

// signature builds the exact-match grouping key from the leading steps.
func signature(seq []models.SequenceStep) string {
	depth := len(seq)
	if depth > signatureDepth {
		depth = signatureDepth
	}
	tokens := make([]string, depth)
	for i := 0; i < depth; i++ {
		tokens[i] = seq[i].Token()
	}
	return strings.Join(tokens, "|")
}

// jaccard computes set similarity over step tokens, ignoring order and
// repetition.
func jaccard(a, b []models.SequenceStep) float64 {
	sa := tokenSet(a)
	sb := tokenSet(b)

	union := len(sa)
	inter := 0
	for t := range sb {
		if _, ok := sa[t]; ok {
			inter++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func tokenSet(seq []models.SequenceStep) map[string]struct{} {
	set := make(map[string]struct{}, len(seq))
	for _, s := range seq {
		set[s.Token()] = struct{}{}
	}
	return set
}

// tokenEntropy computes Shannon entropy (base 2) over the multiset of step
// tokens across all sequences in a group. Low entropy means a tight,
// repeatable pattern.
func tokenEntropy(sequences [][]models.SequenceStep) float64 {
	counts := make(map[string]int)
	total := 0
	for _, seq := range sequences {
		for _, s := range seq {
			counts[s.Token()]++
			total++
		}
	}
	if total == 0 {
		return 0
	}

	entropy := 0.0
	for _, c := range counts {
		p := float64(c) / float64(total)
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// confidence blends relative frequency (weight 0.6) with inverted
// normalized entropy (weight 0.4). Result is always in [0,1].
func confidence(frequency, totalSequences int, entropy float64) float64 {
	if totalSequences < 1 {
		totalSequences = 1
	}
	relFreq := math.Min(float64(frequency)/float64(totalSequences), 1)
	tightness := 1 - math.Min(entropy/entropyCeiling, 1)
	return 0.6*relFreq + 0.4*tightness
}
