package services

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"citnet/config"
	"citnet/models"
	"citnet/providers"
	"citnet/storage"
)

// fakeSource serves a fixed citation graph given as id -> references.
type fakeSource struct {
	refs      map[string][]string
	calls     int
	requested map[string]int
	// failing holds the remaining transient failures per id, -1 fails forever.
	failing map[string]int
	// rejecting ids make the whole request fail as not found.
	rejecting map[string]bool
}

func newFakeSource(refs map[string][]string) *fakeSource {
	return &fakeSource{
		refs:      refs,
		requested: make(map[string]int),
		failing:   make(map[string]int),
		rejecting: make(map[string]bool),
	}
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Fetch(ctx context.Context, ids []string) (*providers.FetchResult, error) {
	f.calls++
	for _, id := range ids {
		f.requested[id]++
	}
	for _, id := range ids {
		if f.rejecting[id] {
			return nil, fmt.Errorf("%w: %s", providers.ErrNotFound, id)
		}
	}
	for _, id := range ids {
		if n, ok := f.failing[id]; ok && n != 0 {
			if n > 0 {
				f.failing[id] = n - 1
			}
			return nil, fmt.Errorf("%w: %s unavailable", providers.ErrTransient, id)
		}
	}
	res := &providers.FetchResult{Records: make(map[string]*providers.Record)}
	for _, id := range ids {
		refs, ok := f.refs[id]
		if !ok {
			res.NotFound = append(res.NotFound, id)
			continue
		}
		res.Records[id] = &providers.Record{
			Node:       &models.Node{ID: id, Label: id, Year: models.YearFromID(id)},
			References: append([]string(nil), refs...),
			Citations:  f.citers(id),
		}
	}
	return res, nil
}

func (f *fakeSource) citers(id string) []string {
	var out []string
	for src, refs := range f.refs {
		for _, r := range refs {
			if r == id {
				out = append(out, src)
			}
		}
	}
	sort.Strings(out)
	return out
}

func testConfig() *config.Config {
	return &config.Config{
		BatchSize:            10,
		MaxRetries:           2,
		RetryInitialInterval: time.Millisecond,
		RetryMaxInterval:     time.Millisecond,
		MaxDepth:             1,
	}
}

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "citnet.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestSampler(t *testing.T, src providers.RecordSource, cfg *config.Config) (*Sampler, *storage.Store) {
	t.Helper()
	store := newTestStore(t)
	return NewSampler(cfg, store, src, zap.NewNop(), nil), store
}
