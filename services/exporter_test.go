package services

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"citnet/config"
	"citnet/models"
)

type fakePutter struct {
	keys   []string
	bodies map[string]string
}

func (f *fakePutter) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.keys = append(f.keys, *in.Key)
	f.bodies[*in.Key] = string(data)
	return &s3.PutObjectOutput{}, nil
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestExportAndUpload(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	_, err := store.UpsertNodes(ctx, []*models.Node{
		{ID: "A", Label: "Hubble 1929", Title: "A relation, with commas", Year: 1929},
		{ID: "B", Label: "Lemaitre 1927", Depth: 1},
	})
	require.NoError(t, err)
	require.NoError(t, store.SetClusters(ctx, map[string]int{"A": 3}))
	require.NoError(t, store.ReplaceEdges(ctx, models.RelationCoCitation, []models.RelationEdge{{Source: "A", Target: "B", Weight: 2}}))
	require.NoError(t, store.ReplaceEdges(ctx, models.RelationDirectCitation, []models.RelationEdge{{Source: "A", Target: "B", Weight: 1}}))

	cfg := &config.Config{S3URL: "https://s3.example.org/", S3Bucket: "nets", S3Prefix: "citnet"}
	e := NewExporter(cfg, store, zap.NewNop())
	files, err := e.Export(ctx, t.TempDir(), models.RelationCoCitation)
	require.NoError(t, err)
	require.Len(t, files, 2)

	nodes := readCSV(t, files[0])
	assert.Equal(t, nodeHeader, nodes[0])
	assert.Equal(t, []string{"A", "Hubble 1929", "A relation, with commas", "", "1929", "", "0", "3"}, nodes[1])
	assert.Equal(t, []string{"B", "Lemaitre 1927", "", "", "", "", "1", ""}, nodes[2])

	edges := readCSV(t, files[1])
	require.Len(t, edges, 2, "only the requested relation is exported")
	assert.Equal(t, edgeHeader, edges[0])
	assert.Equal(t, []string{"A", "B", "Undirected", "2", "co_citation"}, edges[1])

	all, err := e.Export(ctx, t.TempDir())
	require.NoError(t, err)
	assert.Len(t, readCSV(t, all[1]), 3)

	_, err = e.Export(ctx, t.TempDir(), models.RelationType("nope"))
	assert.ErrorIs(t, err, models.ErrInvalidRelation)

	putter := &fakePutter{bodies: map[string]string{}}
	links, err := e.Upload(ctx, putter, files)
	require.NoError(t, err)
	require.Len(t, putter.keys, 2)
	assert.Regexp(t, `^citnet/exports/\d{8}-\d{6}/nodes\.csv$`, putter.keys[0])
	assert.Contains(t, putter.bodies[putter.keys[1]], "co_citation")
	assert.Regexp(t, `^https://s3\.example\.org/nets/citnet/exports/`, links[0])
}
