package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"citnet/models"
)

func clique(ids ...string) []models.RelationEdge {
	var out []models.RelationEdge
	for i, a := range ids {
		for _, b := range ids[i+1:] {
			out = append(out, models.RelationEdge{Source: a, Target: b, Weight: 1})
		}
	}
	return out
}

func TestCommunities_DisconnectedCliques(t *testing.T) {
	edges := append(clique("A", "B", "C"), clique("D", "E", "F")...)
	got := Communities([]string{"F", "E", "D", "C", "B", "A", "Z"}, edges, 1)

	assert.Equal(t, map[string]int{
		"A": 0, "B": 0, "C": 0,
		"D": 1, "E": 1, "F": 1,
		"Z": 2,
	}, got)
}

func TestCommunities_NoEdges(t *testing.T) {
	got := Communities([]string{"B", "A"}, nil, 1)
	assert.Equal(t, map[string]int{"A": 0, "B": 1}, got)
}

func TestCommunities_Reproducible(t *testing.T) {
	ids := []string{"A", "B", "C", "D", "E", "F", "G", "H"}
	var ring []models.RelationEdge
	for i, id := range ids {
		ring = append(ring, models.RelationEdge{Source: id, Target: ids[(i+1)%len(ids)], Weight: 1})
	}

	first := Communities(ids, ring, 1)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, Communities(ids, ring, 1))
	}
}

func TestAssignClusters(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	var nodes []*models.Node
	for _, id := range []string{"A", "B", "C", "D", "E", "F"} {
		nodes = append(nodes, &models.Node{ID: id})
	}
	_, err := store.UpsertNodes(ctx, nodes)
	require.NoError(t, err)
	require.NoError(t, store.ReplaceEdges(ctx, models.RelationCoCitation, append(clique("A", "B", "C"), clique("D", "E", "F")...)))

	a := NewClusterAssigner(store, zap.NewNop(), nil)
	run, err := a.AssignClusters(ctx, models.RelationCoCitation)
	require.NoError(t, err)
	assert.Equal(t, models.RunFinished, run.Status)

	d, err := store.Node(ctx, "D")
	require.NoError(t, err)
	require.NotNil(t, d.ClusterID)
	assert.Equal(t, 1, *d.ClusterID)

	st, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, st.Clusters)

	_, err = a.AssignClusters(ctx, models.RelationType("x"))
	assert.ErrorIs(t, err, models.ErrInvalidRelation)
}
