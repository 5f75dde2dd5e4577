package services

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/graph/community"
	"gonum.org/v1/gonum/graph/simple"

	"citnet/models"
	"citnet/storage"
)

// ClusterAssigner groups nodes into communities of a generated relation.
type ClusterAssigner struct {
	Store   *storage.Store
	Logger  *zap.Logger
	Metrics *Metrics
	// Resolution is the Louvain resolution parameter; 1 is standard modularity.
	Resolution float64
}

// NewClusterAssigner erstellt einen neuen ClusterAssigner.
func NewClusterAssigner(store *storage.Store, logger *zap.Logger, metrics *Metrics) *ClusterAssigner {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &ClusterAssigner{Store: store, Logger: logger, Metrics: metrics, Resolution: 1}
}

// AssignClusters runs community detection over the stored edges of relation and
// writes a cluster id to every node.
func (a *ClusterAssigner) AssignClusters(ctx context.Context, relation models.RelationType) (*models.Run, error) {
	if !relation.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidRelation, relation)
	}
	rt, err := startRun(ctx, a.Store, a.Metrics, "cluster", string(relation))
	if err != nil {
		return nil, err
	}
	log := a.Logger.With(zap.String("run", rt.run.ID), zap.String("relation", string(relation)))

	ids, err := a.Store.AllNodeIDs(ctx)
	if err != nil {
		return rt.finish(err)
	}
	edges, err := a.Store.RelationEdges(ctx, relation)
	if err != nil {
		return rt.finish(err)
	}
	clusters := Communities(ids, edges, a.Resolution)
	if err := a.Store.SetClusters(ctx, clusters); err != nil {
		return rt.finish(err)
	}

	distinct := make(map[int]struct{})
	for _, c := range clusters {
		distinct[c] = struct{}{}
	}
	log.Info("Cluster zugewiesen", zap.Int("nodes", len(ids)), zap.Int("clusters", len(distinct)))
	return rt.finish(nil)
}

// louvainSeed fixes the node shuffling of the Louvain passes so a store always
// yields the same partition.
const louvainSeed = 1

// Communities partitions ids by Louvain modularity over the weighted edges.
// Clusters are numbered from 0 in the order of their smallest member id.
func Communities(ids []string, edges []models.RelationEdge, resolution float64) map[string]int {
	ids = sortedUnique(ids)
	index := make(map[string]int64, len(ids))
	g := simple.NewWeightedUndirectedGraph(0, 0)
	for i, id := range ids {
		index[id] = int64(i)
		g.AddNode(simple.Node(int64(i)))
	}

	edgeCount := 0
	for _, e := range edges {
		u, ok := index[e.Source]
		if !ok {
			continue
		}
		v, ok := index[e.Target]
		if !ok || u == v {
			continue
		}
		w := e.Weight
		if existing := g.WeightedEdge(u, v); existing != nil {
			w += existing.Weight()
		}
		g.SetWeightedEdge(g.NewWeightedEdge(simple.Node(u), simple.Node(v), w))
		edgeCount++
	}

	var groups [][]string
	if edgeCount == 0 {
		for _, id := range ids {
			groups = append(groups, []string{id})
		}
	} else {
		reduced := community.Modularize(g, resolution, rand.NewPCG(louvainSeed, louvainSeed))
		for _, comm := range reduced.Communities() {
			members := make([]string, 0, len(comm))
			for _, n := range comm {
				members = append(members, ids[n.ID()])
			}
			if len(members) == 0 {
				continue
			}
			sort.Strings(members)
			groups = append(groups, members)
		}
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i][0] < groups[j][0] })

	out := make(map[string]int, len(ids))
	for c, members := range groups {
		for _, id := range members {
			out[id] = c
		}
	}
	return out
}
