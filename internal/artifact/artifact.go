package artifact

import (
	"fmt"
	"strings"
	"time"
)

// Type is a closed artifact category. Unknown types are rejected when the
// configuration is loaded, not at extraction time.
type Type string

const (
	TypeUsername     Type = "username"
	TypeProjectName  Type = "project_name"
	TypePseudonym    Type = "pseudonym"
	TypeTerminology  Type = "terminology"
	TypeOrganization Type = "organization"
	TypeGeneric      Type = "generic"
)

// AllTypes lists every known artifact type in declaration order.
var AllTypes = []Type{
	TypeUsername,
	TypeProjectName,
	TypePseudonym,
	TypeTerminology,
	TypeOrganization,
	TypeGeneric,
}

// ParseType validates a configured type name.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllTypes {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown artifact type: %q", s)
}

// Promotable reports whether a discovery of this type may be promoted into
// a new research entity. Generic terminology never names a person or
// project, so it never seeds new cells.
func (t Type) Promotable() bool {
	switch t {
	case TypeUsername, TypeProjectName, TypePseudonym:
		return true
	}
	return false
}

// Candidate is an unscored extraction result. Candidates are transient:
// they flow through the scorer and classifier and are never persisted.
type Candidate struct {
	Value    string // raw matched span, original casing
	Subtype  Type
	Context  string // bounded window around the match
	Entity   string // canonical entity the extraction ran for
	SourceID string
	Score    float64 // filled in by the scorer
}

// Discovery is the canonical persisted record for one (value, subtype)
// pair. Re-discovery merges sources and only ever raises the score.
type Discovery struct {
	ID        int64
	Value     string // normalized identity
	Display   string // best-cased original for display
	Subtype   Type
	Entity    string
	Score     float64
	Sources   []string
	FirstSeen time.Time
	LastSeen  time.Time
}

// Normalize produces the comparison identity for a candidate value:
// casefolded with collapsed inner whitespace.
func Normalize(value string) string {
	return strings.Join(strings.Fields(strings.ToLower(value)), " ")
}
