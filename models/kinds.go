package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidDirection is returned for a sampling direction outside {references, citations}.
	ErrInvalidDirection = errors.New("invalid sampling direction")
	// ErrInvalidRelation is returned for an edge type outside the supported measures.
	ErrInvalidRelation = errors.New("invalid relation type")
)

// Direction selects which relation list of a node the sampler follows.
type Direction string

const (
	// DirectionReferences expands via what each node cites.
	DirectionReferences Direction = "references"
	// DirectionCitations expands via what cites each node.
	DirectionCitations Direction = "citations"
)

// Directions lists every valid sampling direction.
var Directions = []Direction{DirectionReferences, DirectionCitations}

// ParseDirection validates a user supplied direction. "ref" and "cit" are accepted
// as short forms.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "references", "reference", "ref", "refs":
		return DirectionReferences, nil
	case "citations", "citation", "cit", "cits":
		return DirectionCitations, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidDirection, s)
}

// Column is the processed-flag column of the nodes table for this direction.
func (d Direction) Column() string {
	if d == DirectionCitations {
		return "processed_citations"
	}
	return "processed_references"
}

// Valid reports whether d is one of the two sampling directions.
func (d Direction) Valid() bool {
	return d == DirectionReferences || d == DirectionCitations
}

// RelationType is the closed set of generated edge measures.
type RelationType string

const (
	RelationDirectCitation        RelationType = "direct_citation"
	RelationBibliographicCoupling RelationType = "bibliographic_coupling"
	RelationCoCitation            RelationType = "co_citation"
)

// RelationTypes lists every supported edge measure.
var RelationTypes = []RelationType{RelationDirectCitation, RelationBibliographicCoupling, RelationCoCitation}

// ParseRelationType validates a user supplied edge type. The short names of the old
// ads2gephi command line (citnet, bibcp, cocit) are accepted too.
func ParseRelationType(s string) (RelationType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "direct_citation", "direct-citation", "citnet":
		return RelationDirectCitation, nil
	case "bibliographic_coupling", "bibliographic-coupling", "bibcp":
		return RelationBibliographicCoupling, nil
	case "co_citation", "co-citation", "cocit":
		return RelationCoCitation, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRelation, s)
}

// Valid reports whether r is one of the supported measures.
func (r RelationType) Valid() bool {
	switch r {
	case RelationDirectCitation, RelationBibliographicCoupling, RelationCoCitation:
		return true
	}
	return false
}

// Symmetric reports whether weight(a,b) == weight(b,a) for the measure.
func (r RelationType) Symmetric() bool {
	return r != RelationDirectCitation
}

// GephiType is the value of the Gephi "type" edge column for this measure.
func (r RelationType) GephiType() string {
	if r.Symmetric() {
		return "Undirected"
	}
	return "Directed"
}
