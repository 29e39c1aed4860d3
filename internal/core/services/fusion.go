package services

import (
	"sort"

	"github.com/custodia-labs/quarry/internal/core/domain"
)

// FusionConfig tunes the weighted Reciprocal Rank Fusion ranker.
type FusionConfig struct {
	// RRFK is the rank dampening constant. Larger values flatten the
	// difference between adjacent ranks.
	RRFK int

	// VectorWeight scales the vector path's rank contribution.
	VectorWeight float64

	// KeywordWeight scales the keyword path's rank contribution.
	KeywordWeight float64
}

// DefaultFusionConfig returns the standard fusion weights. The vector
// path is weighted slightly above keyword because embeddings catch
// paraphrases that exact-term matching misses.
func DefaultFusionConfig() FusionConfig {
	return FusionConfig{
		RRFK:          60,
		VectorWeight:  0.6,
		KeywordWeight: 0.4,
	}
}

// absentRank is the sentinel for a chunk missing from one list; only
// used for tie-breaking, never for scoring.
const absentRank = 1 << 20

// fuse merges the vector and keyword ranked lists with weighted RRF:
//
//	score = vectorWeight/(k+rankVec) + keywordWeight/(k+rankIR)
//
// Ranks are 1-based; a list that does not contain the chunk contributes
// zero. Ordering is fully deterministic: fused score descending, then
// combined rank ascending, then chunk key ascending.
func fuse(vector, keyword []domain.RankedChunk, cfg FusionConfig) []domain.RankedChunk {
	type fused struct {
		key          string
		score        float64
		combinedRank int
	}

	entries := make(map[string]*fused)

	add := func(list []domain.RankedChunk, weight float64) map[string]int {
		ranks := make(map[string]int, len(list))
		for i, rc := range list {
			rank := i + 1
			ranks[rc.Key] = rank

			e, ok := entries[rc.Key]
			if !ok {
				e = &fused{key: rc.Key}
				entries[rc.Key] = e
			}
			e.score += weight / float64(cfg.RRFK+rank)
		}
		return ranks
	}

	vecRanks := add(vector, cfg.VectorWeight)
	kwRanks := add(keyword, cfg.KeywordWeight)

	results := make([]fused, 0, len(entries))
	for key, e := range entries {
		vecRank, ok := vecRanks[key]
		if !ok {
			vecRank = absentRank
		}
		kwRank, ok := kwRanks[key]
		if !ok {
			kwRank = absentRank
		}
		e.combinedRank = vecRank + kwRank
		results = append(results, *e)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		if results[i].combinedRank != results[j].combinedRank {
			return results[i].combinedRank < results[j].combinedRank
		}
		return results[i].key < results[j].key
	})

	out := make([]domain.RankedChunk, len(results))
	for i, r := range results {
		out[i] = domain.RankedChunk{Key: r.key, Score: r.score}
	}
	return out
}
