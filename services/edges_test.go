package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"citnet/models"
)

func refEdges(graph map[string][]string) []models.ReferenceEdge {
	var out []models.ReferenceEdge
	for src, refs := range graph {
		for _, r := range refs {
			out = append(out, models.ReferenceEdge{Source: src, Target: r})
		}
	}
	return out
}

func nodeIDs(graph map[string][]string) []string {
	var out []string
	for id := range graph {
		out = append(out, id)
	}
	return out
}

func weights(edges []models.RelationEdge) map[[2]string]float64 {
	out := make(map[[2]string]float64, len(edges))
	for _, e := range edges {
		out[[2]string{e.Source, e.Target}] = e.Weight
	}
	return out
}

func intersect(a, b []string) int {
	set := make(map[string]struct{}, len(a))
	for _, x := range a {
		set[x] = struct{}{}
	}
	n := 0
	for _, y := range b {
		if _, ok := set[y]; ok {
			n++
		}
	}
	return n
}

func TestComputeEdges_CouplingAndCoCitation(t *testing.T) {
	ix := NewCitationIndex(nodeIDs(couplingGraph()), refEdges(couplingGraph()))

	coupling, err := ComputeEdges(models.RelationBibliographicCoupling, ix)
	require.NoError(t, err)
	require.Len(t, coupling, 1)
	assert.Equal(t, "A", coupling[0].Source)
	assert.Equal(t, "B", coupling[0].Target)
	assert.Equal(t, 2.0, coupling[0].Weight)
	assert.Equal(t, "Undirected", coupling[0].Type)

	cocit, err := ComputeEdges(models.RelationCoCitation, ix)
	require.NoError(t, err)
	require.Len(t, cocit, 1)
	assert.Equal(t, [2]string{"X", "Y"}, [2]string{cocit[0].Source, cocit[0].Target})
	assert.Equal(t, 2.0, cocit[0].Weight)

	direct, err := ComputeEdges(models.RelationDirectCitation, ix)
	require.NoError(t, err)
	assert.Equal(t, map[[2]string]float64{
		{"A", "X"}: 1, {"A", "Y"}: 1, {"B", "X"}: 1, {"B", "Y"}: 1,
	}, weights(direct))
	assert.Equal(t, "Directed", direct[0].Type)
}

func TestComputeEdges_MatchesSetIntersection(t *testing.T) {
	graph := map[string][]string{
		"P1": {"R1", "R2", "R3", "P2"},
		"P2": {"R2", "R3", "R4"},
		"P3": {"R1", "R3", "P1"},
		"P4": {"R5"},
		"R1": {}, "R2": {}, "R3": {"R4"}, "R4": {}, "R5": {},
	}
	ix := NewCitationIndex(nodeIDs(graph), refEdges(graph))

	coupling, err := ComputeEdges(models.RelationBibliographicCoupling, ix)
	require.NoError(t, err)
	cocit, err := ComputeEdges(models.RelationCoCitation, ix)
	require.NoError(t, err)
	cw, ccw := weights(coupling), weights(cocit)

	ids := ix.Nodes()
	for i, a := range ids {
		for _, b := range ids[i+1:] {
			assert.Equal(t, float64(intersect(ix.References(a), ix.References(b))), cw[[2]string{a, b}], "coupling %s %s", a, b)
			assert.Equal(t, float64(intersect(ix.Citers(a), ix.Citers(b))), ccw[[2]string{a, b}], "co-citation %s %s", a, b)
			_, reversed := cw[[2]string{b, a}]
			assert.False(t, reversed, "symmetric edges are stored once")
		}
	}
	for _, e := range append(coupling, cocit...) {
		assert.Less(t, e.Source, e.Target)
		assert.Positive(t, e.Weight)
	}
	for i := 1; i < len(coupling); i++ {
		prev, cur := coupling[i-1], coupling[i]
		assert.True(t, prev.Source < cur.Source || (prev.Source == cur.Source && prev.Target < cur.Target))
	}
}

func TestComputeEdges_RestrictsToNodeSetAndIgnoresSelfCitations(t *testing.T) {
	edges := []models.ReferenceEdge{
		{Source: "A", Target: "A"},
		{Source: "A", Target: "X"},
		{Source: "B", Target: "X"},
		{Source: "A", Target: "OUT"},
		{Source: "B", Target: "OUT"},
		{Source: "A", Target: "B"},
		{Source: "B", Target: "A"},
	}
	ix := NewCitationIndex([]string{"A", "B", "X"}, edges)

	coupling, err := ComputeEdges(models.RelationBibliographicCoupling, ix)
	require.NoError(t, err)
	assert.Equal(t, map[[2]string]float64{{"A", "B"}: 1}, weights(coupling))

	direct, err := ComputeEdges(models.RelationDirectCitation, ix)
	require.NoError(t, err)
	assert.Equal(t, map[[2]string]float64{{"A", "B"}: 1, {"A", "X"}: 1, {"B", "X"}: 1}, weights(direct))
}

func TestComputeEdges_SelfCitationIsNotShared(t *testing.T) {
	// A cites itself and B cites A: A's own reference is not counted as shared.
	ix := NewCitationIndex([]string{"A", "B"}, []models.ReferenceEdge{
		{Source: "A", Target: "A"},
		{Source: "B", Target: "A"},
	})
	assert.Equal(t, []string{"A"}, ix.References("B"))
	assert.Empty(t, ix.References("A"))

	coupling, err := ComputeEdges(models.RelationBibliographicCoupling, ix)
	require.NoError(t, err)
	assert.Empty(t, coupling)

	// Likewise A citing itself does not make it a co-citer of A and B.
	ix = NewCitationIndex([]string{"A", "B", "C"}, []models.ReferenceEdge{
		{Source: "A", Target: "A"},
		{Source: "A", Target: "B"},
		{Source: "C", Target: "B"},
	})
	cocit, err := ComputeEdges(models.RelationCoCitation, ix)
	require.NoError(t, err)
	assert.Empty(t, cocit)
}

func TestComputeEdges_InvalidRelation(t *testing.T) {
	_, err := ComputeEdges(models.RelationType("pagerank"), NewCitationIndex(nil, nil))
	assert.ErrorIs(t, err, models.ErrInvalidRelation)
}

func TestGenerate_ReplacesAndIsDeterministic(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource(couplingGraph())
	s, store := newTestSampler(t, src, testConfig())
	_, err := s.Seed(ctx, []string{"A", "B"})
	require.NoError(t, err)

	gen := NewEdgeGenerator(store, zap.NewNop(), nil)

	// X and Y are not nodes yet, so A and B share no reference inside the node set.
	run, err := gen.Generate(ctx, models.RelationBibliographicCoupling)
	require.NoError(t, err)
	assert.Equal(t, 0, run.NewEdges)

	_, err = s.Expand(ctx, models.DirectionReferences)
	require.NoError(t, err)

	run, err = gen.Generate(ctx, models.RelationBibliographicCoupling)
	require.NoError(t, err)
	assert.Equal(t, 1, run.NewEdges)
	first, err := store.RelationEdges(ctx, models.RelationBibliographicCoupling)
	require.NoError(t, err)

	_, err = gen.Generate(ctx, models.RelationBibliographicCoupling)
	require.NoError(t, err)
	second, err := store.RelationEdges(ctx, models.RelationBibliographicCoupling)
	require.NoError(t, err)
	require.Len(t, second, 1, "regenerating replaces rather than appends")
	assert.Equal(t, weights(first), weights(second))
	assert.Equal(t, 2.0, second[0].Weight)

	_, err = gen.Generate(ctx, models.RelationType("pagerank"))
	assert.ErrorIs(t, err, models.ErrInvalidRelation)
}

func TestComputeEdges_CouplingExample(t *testing.T) {
	graph := map[string][]string{
		"A": {"C", "D", "E"},
		"B": {"C", "D"},
		"C": {}, "D": {}, "E": {},
	}
	ix := NewCitationIndex(nodeIDs(graph), refEdges(graph))
	coupling, err := ComputeEdges(models.RelationBibliographicCoupling, ix)
	require.NoError(t, err)
	assert.Equal(t, map[[2]string]float64{{"A", "B"}: 2}, weights(coupling))
}

func TestComputeEdges_CoCitationExample(t *testing.T) {
	graph := map[string][]string{
		"P": {"X", "Y"},
		"Q": {"X", "Y"},
		"R": {"X"},
		"X": {}, "Y": {},
	}
	ix := NewCitationIndex(nodeIDs(graph), refEdges(graph))
	cocit, err := ComputeEdges(models.RelationCoCitation, ix)
	require.NoError(t, err)
	w := weights(cocit)
	assert.Equal(t, 2.0, w[[2]string{"X", "Y"}])
	assert.Len(t, w, 1)
}
