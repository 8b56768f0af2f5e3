// Package classify canonicalizes scored candidates into discovery records
// ready for the store: values are normalized for identity, duplicates
// across sources merge, and low-scoring candidates are dropped before they
// can ever be persisted.
package classify

import (
	"sort"

	"narrahunt/internal/artifact"
)

// Classifier stages candidates into discovery records.
type Classifier struct {
	minScore float64
}

// New creates a classifier that drops candidates scoring below minScore.
func New(minScore float64) *Classifier {
	if minScore <= 0 {
		minScore = 0.3
	}
	return &Classifier{minScore: minScore}
}

// Classify merges a candidate batch by (normalized value, subtype). The
// merged record keeps the display casing of the highest-scoring
// occurrence, the maximum score, and the union of sources. Output order is
// deterministic: score descending, then value.
func (c *Classifier) Classify(candidates []artifact.Candidate) []artifact.Discovery {
	type key struct {
		value   string
		subtype artifact.Type
	}

	staged := make(map[key]*artifact.Discovery)
	var order []key
	for _, cand := range candidates {
		if cand.Score < c.minScore {
			continue
		}
		k := key{value: artifact.Normalize(cand.Value), subtype: cand.Subtype}
		if k.value == "" {
			continue
		}

		d, ok := staged[k]
		if !ok {
			staged[k] = &artifact.Discovery{
				Value:   k.value,
				Display: cand.Value,
				Subtype: cand.Subtype,
				Entity:  cand.Entity,
				Score:   cand.Score,
				Sources: []string{cand.SourceID},
			}
			order = append(order, k)
			continue
		}

		if cand.Score > d.Score {
			d.Score = cand.Score
			d.Display = cand.Value
		}
		if !containsSource(d.Sources, cand.SourceID) {
			d.Sources = append(d.Sources, cand.SourceID)
		}
	}

	out := make([]artifact.Discovery, 0, len(order))
	for _, k := range order {
		out = append(out, *staged[k])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Value < out[j].Value
	})
	return out
}

func containsSource(sources []string, s string) bool {
	for _, src := range sources {
		if src == s {
			return true
		}
	}
	return false
}
