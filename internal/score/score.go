// Package score assigns narrative-relevance scores to candidates. Scoring
// is a pure function of the candidate and the configured weights, so
// identical inputs always reproduce the same score.
package score

import (
	"net/url"
	"strings"

	"narrahunt/internal/artifact"
)

// Scorer combines subtype priors, context boosts, and source credibility
// into a score in [0, 1].
type Scorer struct {
	weights            map[artifact.Type]float64
	entityBoost        float64
	keywordBoost       float64
	keywords           []string
	credibility        map[string]float64
	defaultCredibility float64
}

// Options configures a Scorer. Zero values fall back to the defaults
// described in the field comments.
type Options struct {
	SubtypeWeights     map[string]float64 // base weight per subtype; default 0.5
	EntityBoost        float64            // canonical-name context boost; default 0.2
	KeywordBoost       float64            // domain-keyword context boost; default 0.1
	Keywords           []string
	SourceCredibility  map[string]float64 // keyed by host or full source descriptor
	DefaultCredibility float64            // unknown sources; default 0.8
}

// New builds a Scorer.
func New(opts Options) *Scorer {
	s := &Scorer{
		entityBoost:        opts.EntityBoost,
		keywordBoost:       opts.KeywordBoost,
		credibility:        opts.SourceCredibility,
		defaultCredibility: opts.DefaultCredibility,
		weights:            make(map[artifact.Type]float64, len(opts.SubtypeWeights)),
	}
	for name, w := range opts.SubtypeWeights {
		if t, err := artifact.ParseType(name); err == nil {
			s.weights[t] = w
		}
	}
	if s.entityBoost == 0 {
		s.entityBoost = 0.2
	}
	if s.keywordBoost == 0 {
		s.keywordBoost = 0.1
	}
	if s.defaultCredibility == 0 {
		s.defaultCredibility = 0.8
	}
	for _, kw := range opts.Keywords {
		s.keywords = append(s.keywords, strings.ToLower(kw))
	}
	return s
}

// Score computes the candidate's narrative-relevance score.
func (s *Scorer) Score(c artifact.Candidate) float64 {
	base, ok := s.weights[c.Subtype]
	if !ok {
		base = 0.5
	}

	context := strings.ToLower(c.Context)
	if c.Entity != "" && strings.Contains(context, strings.ToLower(c.Entity)) {
		base += s.entityBoost
	}
	for _, kw := range s.keywords {
		if kw != "" && strings.Contains(context, kw) {
			base += s.keywordBoost
			break
		}
	}

	score := base * s.Credibility(c.SourceID)
	if score > 1 {
		return 1
	}
	if score < 0 {
		return 0
	}
	return score
}

// Credibility looks up the weight for a source descriptor: exact match
// first, then the URL host, then the default for unknown sources.
func (s *Scorer) Credibility(sourceID string) float64 {
	if w, ok := s.credibility[sourceID]; ok {
		return w
	}
	if host := hostOf(sourceID); host != "" {
		if w, ok := s.credibility[host]; ok {
			return w
		}
	}
	return s.defaultCredibility
}

func hostOf(sourceID string) string {
	raw := strings.TrimPrefix(sourceID, "feed:")
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Host), "www.")
}
