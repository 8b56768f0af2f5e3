// Package extract turns raw page text into artifact candidates. Rules run
// in a fixed priority order per subtype; the first rule to claim a span
// wins and overlapping spans are never re-emitted under a second subtype.
package extract

import (
	"fmt"
	"regexp"
	"strings"

	"narrahunt/internal/artifact"
)

// ContextWindow is the number of characters inspected on each side of a
// match when filtering and when recording candidate context.
const ContextWindow = 50

type rule struct {
	subtype artifact.Type
	re      *regexp.Regexp
	group   int // capture group holding the artifact value
}

// builtinRules returns the ordered matching rules for one subtype.
// Ordering matters: earlier subtypes claim ambiguous spans first
// (a "known as X on twitter" span is a username, not a pseudonym).
func builtinRules(t artifact.Type) []rule {
	switch t {
	case artifact.TypeUsername:
		return compileRules(t, 1,
			`(?i)user[\s-]?name[:\s]+([A-Za-z0-9_-]{3,30})`,
			`(?i)handle[:\s]+([A-Za-z0-9_-]{3,30})`,
			`(?i)account[\s-]name[:\s]+([A-Za-z0-9_-]{3,30})`,
			`@([A-Za-z0-9_]{3,30})\b`,
			`(?i)(?:posted|posting|registered|known) as ([A-Za-z0-9_-]{3,30}) on`,
			`(?i)\b([A-Za-z0-9_-]{3,30}) on (?:twitter|github|reddit|bitcointalk)`,
			`\b([A-Za-z0-9_-]{3,30})\.eth\b`,
		)
	case artifact.TypeProjectName:
		return compileRules(t, 1,
			`(?i)project[\s-]name[:\s]+([A-Za-z0-9_-]{3,30})`,
			`(?i)(?:a|the) project (?:called|named) "?([A-Z][A-Za-z0-9 _-]{2,29})"?`,
			`(?i)(?:created|developed|launched|released|announced) (?:the )?([A-Z][A-Za-z0-9_-]{2,29})\b`,
			`\b([A-Z][A-Za-z0-9_-]{2,29}) (?:blockchain|protocol|platform|network|testnet|client)\b`,
		)
	case artifact.TypePseudonym:
		return compileRules(t, 1,
			`(?i)(?:pseudonym|alias|nickname|pen[\s-]name)[:\s]+([A-Za-z0-9_-]{3,30})`,
			`(?i)(?:known as|goes by|writing as) ([A-Z][A-Za-z0-9_-]{2,29})\b`,
			`\((?i:a\.?k\.?a\.?) ([A-Za-z0-9_-]{3,30})\)`,
		)
	case artifact.TypeTerminology:
		return compileRules(t, 1,
			`(?i)coined (?:the )?term[:\s]+["']([A-Za-z0-9 _-]{3,40})["']`,
			`(?i)the term ["']([A-Za-z0-9 _-]{3,40})["']`,
			`(?i)concept of ["']([A-Za-z0-9 _-]{3,40})["']`,
			`(?i)called it ["']([A-Za-z0-9 _-]{3,40})["']`,
		)
	case artifact.TypeOrganization:
		return compileRules(t, 1,
			`(?i)(?:company|startup|organization)[:\s]+([A-Z][A-Za-z0-9 _-]{2,29})\b`,
			`\b([A-Z][A-Za-z0-9_-]{2,29}) (?:Foundation|Labs|Inc\.?|LLC|Ltd\.?)\b`,
			`(?i)co-founded ([A-Z][A-Za-z0-9_-]{2,29})\b`,
		)
	case artifact.TypeGeneric:
		// Capitalized phrases near the entity; handled by the heuristic
		// pass in Extract, not by regex rules.
		return nil
	}
	return nil
}

func compileRules(t artifact.Type, group int, patterns ...string) []rule {
	rules := make([]rule, 0, len(patterns))
	for _, p := range patterns {
		rules = append(rules, rule{subtype: t, re: regexp.MustCompile(p), group: group})
	}
	return rules
}

var capitalizedPhrase = regexp.MustCompile(`\b([A-Z][a-z0-9]+(?: [A-Z][a-z0-9]+){0,2})\b`)

// filterTerms are values too generic to carry narrative weight on their own.
var filterTerms = map[string]bool{
	"project": true, "website": true, "platform": true, "system": true,
	"network": true, "concept": true, "username": true, "nickname": true,
	"handle": true, "alias": true, "term": true, "idea": true,
	"profile": true, "account": true, "user": true, "protocol": true,
	"blockchain": true, "foundation": true, "the": true, "and": true,
	"company": true, "startup": true, "organization": true, "group": true,
	"team": true, "community": true, "this": true, "that": true,
}

// Extractor finds artifact candidates for one entity. Stateless across
// calls: every Extract is a single fresh pass over the text.
type Extractor struct {
	entity   string
	aliases  []string
	keywords []string
	rules    []rule
	generic  bool
}

// New builds an extractor for the given entity. Only the requested
// subtypes get rules; the rule order follows the subtype order given.
func New(entity string, aliases, keywords []string, types []artifact.Type) *Extractor {
	e := &Extractor{
		entity:   entity,
		aliases:  aliases,
		keywords: lowerAll(keywords),
	}
	for _, t := range types {
		if t == artifact.TypeGeneric {
			e.generic = true
			continue
		}
		e.rules = append(e.rules, builtinRules(t)...)
	}
	return e
}

// AddRule registers an extra literal pattern for a subtype, evaluated
// after the built-in rules of all subtypes. A pattern that fails to
// compile is rejected here so a bad rule can never abort an extraction
// pass later.
func (e *Extractor) AddRule(t artifact.Type, pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("invalid rule for %s: %w", t, err)
	}
	if re.NumSubexp() < 1 {
		return fmt.Errorf("rule for %s has no capture group: %q", t, pattern)
	}
	e.rules = append(e.rules, rule{subtype: t, re: re, group: 1})
	return nil
}

// Extract runs one pass over text and returns every qualifying candidate.
// A candidate is only kept when its context window mentions the entity, a
// known alias, or a domain keyword.
func (e *Extractor) Extract(text, sourceID string) []artifact.Candidate {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var candidates []artifact.Candidate
	claimed := newSpanSet()

	for _, r := range e.rules {
		for _, idx := range r.re.FindAllStringSubmatchIndex(text, -1) {
			start, end := idx[2*r.group], idx[2*r.group+1]
			if start < 0 || end <= start {
				continue
			}
			value := strings.TrimSpace(text[start:end])
			if !e.acceptValue(value) {
				continue
			}
			if claimed.overlaps(start, end) {
				continue
			}

			window := contextAround(text, start, end)
			if !e.inContext(window) {
				continue
			}

			claimed.add(start, end)
			candidates = append(candidates, artifact.Candidate{
				Value:    value,
				Subtype:  r.subtype,
				Context:  window,
				Entity:   e.entity,
				SourceID: sourceID,
			})
		}
	}

	if e.generic {
		candidates = append(candidates, e.extractGeneric(text, sourceID, claimed)...)
	}
	return candidates
}

// extractGeneric applies the capitalized-phrase heuristic near entity
// mentions for the catch-all subtype.
func (e *Extractor) extractGeneric(text, sourceID string, claimed *spanSet) []artifact.Candidate {
	var candidates []artifact.Candidate
	for _, mention := range e.mentionOffsets(text) {
		lo := max(0, mention-ContextWindow)
		hi := min(len(text), mention+ContextWindow)
		region := text[lo:hi]

		for _, idx := range capitalizedPhrase.FindAllStringIndex(region, -1) {
			start, end := lo+idx[0], lo+idx[1]
			value := strings.TrimSpace(text[start:end])
			if !e.acceptValue(value) || e.isSelfReference(value) {
				continue
			}
			if claimed.overlaps(start, end) {
				continue
			}
			claimed.add(start, end)
			candidates = append(candidates, artifact.Candidate{
				Value:    value,
				Subtype:  artifact.TypeGeneric,
				Context:  contextAround(text, start, end),
				Entity:   e.entity,
				SourceID: sourceID,
			})
		}
	}
	return candidates
}

func (e *Extractor) mentionOffsets(text string) []int {
	lower := strings.ToLower(text)
	var offsets []int
	names := append([]string{e.entity}, e.aliases...)
	for _, name := range names {
		needle := strings.ToLower(name)
		if needle == "" {
			continue
		}
		for from := 0; ; {
			i := strings.Index(lower[from:], needle)
			if i < 0 {
				break
			}
			offsets = append(offsets, from+i)
			from += i + len(needle)
		}
	}
	return offsets
}

func (e *Extractor) acceptValue(value string) bool {
	if len(value) < 3 || len(value) > 40 {
		return false
	}
	return !filterTerms[strings.ToLower(value)]
}

// isSelfReference rejects generic phrases that are just the entity or one
// of its aliases.
func (e *Extractor) isSelfReference(value string) bool {
	if strings.EqualFold(value, e.entity) {
		return true
	}
	for _, a := range e.aliases {
		if strings.EqualFold(value, a) {
			return true
		}
	}
	return false
}

func (e *Extractor) inContext(window string) bool {
	lower := strings.ToLower(window)
	if strings.Contains(lower, strings.ToLower(e.entity)) {
		return true
	}
	for _, a := range e.aliases {
		if a != "" && strings.Contains(lower, strings.ToLower(a)) {
			return true
		}
	}
	for _, kw := range e.keywords {
		if kw != "" && strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func contextAround(text string, start, end int) string {
	lo := max(0, start-ContextWindow)
	hi := min(len(text), end+ContextWindow)
	return text[lo:hi]
}

type spanSet struct {
	spans [][2]int
}

func newSpanSet() *spanSet { return &spanSet{} }

func (s *spanSet) add(start, end int) {
	s.spans = append(s.spans, [2]int{start, end})
}

func (s *spanSet) overlaps(start, end int) bool {
	for _, sp := range s.spans {
		if start < sp[1] && end > sp[0] {
			return true
		}
	}
	return false
}

func lowerAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = strings.ToLower(s)
	}
	return out
}
