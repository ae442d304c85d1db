package search

import (
	"sort"

	"github.com/angelmondragon/artisanmarket-backend/internal/catalog"
)

// normalize maps scores onto [0,1] with min-max scaling. A single score, or a
// list whose scores are all equal, normalizes to 1.
func normalize(scores []float64) []float64 {
	out := make([]float64, len(scores))
	if len(scores) == 0 {
		return out
	}
	lo, hi := scores[0], scores[0]
	for _, s := range scores[1:] {
		if s < lo {
			lo = s
		}
		if s > hi {
			hi = s
		}
	}
	if hi == lo {
		for i := range out {
			out[i] = 1
		}
		return out
	}
	for i, s := range scores {
		out[i] = (s - lo) / (hi - lo)
	}
	return out
}

// fuse merges both candidate lists by product id. A side missing from a product
// contributes zero to its fused score.
func fuse(lexical []catalog.LexicalHit, semantic []catalog.VectorHit, wL, wS float64) []Result {
	byID := make(map[string]*Result, len(lexical)+len(semantic))
	order := make([]string, 0, len(lexical)+len(semantic))
	get := func(id string) *Result {
		r, ok := byID[id]
		if !ok {
			r = &Result{ProductID: id}
			byID[id] = r
			order = append(order, id)
		}
		return r
	}

	lexScores := make([]float64, len(lexical))
	for i, h := range lexical {
		lexScores[i] = h.Rank
	}
	for i, norm := range normalize(lexScores) {
		r := get(lexical[i].ProductID)
		raw := lexical[i].Rank
		r.LexicalScore = &raw
		r.NormalizedLexical = norm
		r.Sources.Lexical = true
	}

	semScores := make([]float64, len(semantic))
	for i, h := range semantic {
		semScores[i] = -h.Distance
	}
	for i, norm := range normalize(semScores) {
		r := get(semantic[i].ProductID)
		raw := semScores[i]
		r.SemanticScore = &raw
		r.NormalizedSemantic = norm
		r.Sources.Semantic = true
	}

	out := make([]Result, 0, len(order))
	for _, id := range order {
		r := byID[id]
		r.FusedScore = wL*r.NormalizedLexical + wS*r.NormalizedSemantic
		out = append(out, *r)
	}
	sortResults(out)
	return out
}

// sortResults orders by fused score descending, then product id ascending.
func sortResults(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].FusedScore != results[j].FusedScore {
			return results[i].FusedScore > results[j].FusedScore
		}
		return results[i].ProductID < results[j].ProductID
	})
}
