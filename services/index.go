package services

import (
	"sort"

	"citnet/models"
)

// CitationIndex holds the reference and citer lists of the current node set.
// Edges leaving the node set and self-citations are dropped.
type CitationIndex struct {
	nodes  []string
	refs   map[string][]string
	citers map[string][]string
}

// NewCitationIndex builds the index over nodes from the given reference edges.
func NewCitationIndex(nodes []string, edges []models.ReferenceEdge) *CitationIndex {
	ix := &CitationIndex{
		nodes:  sortedUnique(nodes),
		refs:   make(map[string][]string),
		citers: make(map[string][]string),
	}
	member := make(map[string]struct{}, len(ix.nodes))
	for _, id := range ix.nodes {
		member[id] = struct{}{}
	}
	seen := make(map[[2]string]struct{}, len(edges))
	for _, e := range edges {
		if e.Source == e.Target {
			continue
		}
		if _, ok := member[e.Source]; !ok {
			continue
		}
		if _, ok := member[e.Target]; !ok {
			continue
		}
		if _, dup := seen[e.Key()]; dup {
			continue
		}
		seen[e.Key()] = struct{}{}
		ix.refs[e.Source] = append(ix.refs[e.Source], e.Target)
		ix.citers[e.Target] = append(ix.citers[e.Target], e.Source)
	}
	for _, l := range ix.refs {
		sort.Strings(l)
	}
	for _, l := range ix.citers {
		sort.Strings(l)
	}
	return ix
}

// Nodes returns the node ids in ascending order.
func (ix *CitationIndex) Nodes() []string { return ix.nodes }

// References returns the ids node cites, restricted to the node set.
func (ix *CitationIndex) References(node string) []string { return ix.refs[node] }

// Citers returns the ids citing node, restricted to the node set.
func (ix *CitationIndex) Citers(node string) []string { return ix.citers[node] }
