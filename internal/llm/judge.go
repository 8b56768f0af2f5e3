package llm

import (
	"context"
	"fmt"

	"narrahunt/internal/artifact"
)

const judgePrompt = `You are reviewing a candidate artifact found while researching the history of %s.

Candidate value: %s
Candidate type: %s
Surrounding text:
%s

Judge whether this value is a genuine %s tied to %s, or an incidental match.

Respond with ONLY this JSON:
{
    "score": 0.0-1.0,
    "relations": ["short statement of how the value relates to the entity"]
}

score: 1.0 = certainly a real, narratively interesting artifact; 0.0 = noise.`

// Judgment is the LLM's refinement of a borderline candidate.
type Judgment struct {
	Score     float64
	Relations []string
}

// Judge asks the provider to re-score a candidate whose pattern-based
// score was ambiguous. A nil result with nil error means the response
// could not be parsed; callers keep the pattern score in that case.
func Judge(ctx context.Context, provider Provider, c artifact.Candidate, maxTokens int) (*Judgment, error) {
	if provider == nil {
		return nil, fmt.Errorf("no provider")
	}

	prompt := fmt.Sprintf(judgePrompt, c.Entity, c.Value, c.Subtype, c.Context, c.Subtype, c.Entity)
	response, err := provider.Generate(ctx, prompt, maxTokens)
	if err != nil {
		return nil, err
	}

	parsed := ParseJSONResponse(response)
	if parsed == nil {
		return nil, nil
	}

	j := &Judgment{}
	if v, ok := parsed["score"]; ok {
		if f, ok := v.(float64); ok {
			j.Score = f
		}
	}
	if j.Score < 0 {
		j.Score = 0
	} else if j.Score > 1 {
		j.Score = 1
	}

	if v, ok := parsed["relations"]; ok {
		if arr, ok := v.([]any); ok {
			for _, r := range arr {
				if s, ok := r.(string); ok {
					j.Relations = append(j.Relations, s)
				}
			}
		}
	}
	return j, nil
}
