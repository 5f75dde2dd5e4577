package services

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"citnet/models"
	"citnet/storage"
)

// measureFunc computes the edge set of one relation. Implementations are pure.
type measureFunc func(ix *CitationIndex) []models.RelationEdge

var measures = map[models.RelationType]measureFunc{
	models.RelationDirectCitation:        directCitation,
	models.RelationBibliographicCoupling: bibliographicCoupling,
	models.RelationCoCitation:            coCitation,
}

// ComputeEdges evaluates relation over the index. The result is sorted by
// (source, target); symmetric measures emit each pair once with source < target.
func ComputeEdges(relation models.RelationType, ix *CitationIndex) ([]models.RelationEdge, error) {
	measure, ok := measures[relation]
	if !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidRelation, relation)
	}
	edges := measure(ix)
	for i := range edges {
		edges[i].Relation = relation
		edges[i].Type = relation.GephiType()
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Source != edges[j].Source {
			return edges[i].Source < edges[j].Source
		}
		return edges[i].Target < edges[j].Target
	})
	return edges, nil
}

// directCitation keeps one citing -> cited edge per unordered pair. For mutual
// citations the edge from the smaller id wins.
func directCitation(ix *CitationIndex) []models.RelationEdge {
	var edges []models.RelationEdge
	seen := make(map[[2]string]struct{})
	for _, src := range ix.Nodes() {
		for _, dst := range ix.References(src) {
			key := pairKey(src, dst)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			edges = append(edges, models.RelationEdge{Source: src, Target: dst, Weight: 1})
		}
	}
	return edges
}

// bibliographicCoupling: every pair of citers of a node shares that reference.
func bibliographicCoupling(ix *CitationIndex) []models.RelationEdge {
	return coOccurrence(ix.Nodes(), ix.Citers)
}

// coCitation: every pair of references of a node is co-cited by it.
func coCitation(ix *CitationIndex) []models.RelationEdge {
	return coOccurrence(ix.Nodes(), ix.References)
}

// coOccurrence counts, for each unordered pair, the groups containing both members.
func coOccurrence(keys []string, group func(string) []string) []models.RelationEdge {
	counts := make(map[[2]string]int)
	for _, k := range keys {
		members := group(k)
		for i := 0; i < len(members); i++ {
			for j := i + 1; j < len(members); j++ {
				counts[pairKey(members[i], members[j])]++
			}
		}
	}
	edges := make([]models.RelationEdge, 0, len(counts))
	for pair, n := range counts {
		edges = append(edges, models.RelationEdge{Source: pair[0], Target: pair[1], Weight: float64(n)})
	}
	return edges
}

func pairKey(a, b string) [2]string {
	if b < a {
		a, b = b, a
	}
	return [2]string{a, b}
}

// EdgeGenerator berechnet Relationskanten zwischen den gespeicherten Knoten.
type EdgeGenerator struct {
	Store   *storage.Store
	Logger  *zap.Logger
	Metrics *Metrics
}

// NewEdgeGenerator erstellt einen neuen EdgeGenerator.
func NewEdgeGenerator(store *storage.Store, logger *zap.Logger, metrics *Metrics) *EdgeGenerator {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &EdgeGenerator{Store: store, Logger: logger, Metrics: metrics}
}

// Generate recomputes relation over the current node set and replaces its stored edges.
func (g *EdgeGenerator) Generate(ctx context.Context, relation models.RelationType) (*models.Run, error) {
	if !relation.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidRelation, relation)
	}
	rt, err := startRun(ctx, g.Store, g.Metrics, "generate", string(relation))
	if err != nil {
		return nil, err
	}
	log := g.Logger.With(zap.String("run", rt.run.ID), zap.String("relation", string(relation)))
	log.Info("Starte Kantengenerierung")

	ix, err := g.index(ctx)
	if err != nil {
		return rt.finish(err)
	}
	edges, err := ComputeEdges(relation, ix)
	if err != nil {
		return rt.finish(err)
	}
	if err := g.Store.ReplaceEdges(ctx, relation, edges); err != nil {
		log.Error("Kanten konnten nicht gespeichert werden", zap.Error(err))
		return rt.finish(err)
	}
	rt.run.NewEdges = len(edges)
	g.Metrics.RelationEdges.WithLabelValues(string(relation)).Set(float64(len(edges)))

	log.Info("Kantengenerierung abgeschlossen", zap.Int("nodes", len(ix.Nodes())), zap.Int("edges", len(edges)))
	return rt.finish(nil)
}

func (g *EdgeGenerator) index(ctx context.Context) (*CitationIndex, error) {
	ids, err := g.Store.AllNodeIDs(ctx)
	if err != nil {
		return nil, err
	}
	refs, err := g.Store.InternalReferenceEdges(ctx)
	if err != nil {
		return nil, err
	}
	return NewCitationIndex(ids, refs), nil
}
