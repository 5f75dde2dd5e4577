package services

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"citnet/models"
	"citnet/storage"
)

// runTracker accumulates the outcome of one operation and persists it as a Run.
type runTracker struct {
	store    *storage.Store
	metrics  *Metrics
	run      *models.Run
	deferred map[string]struct{}
	skipped  map[string]struct{}
}

func startRun(ctx context.Context, store *storage.Store, metrics *Metrics, operation, argument string) (*runTracker, error) {
	rt := &runTracker{
		store:   store,
		metrics: metrics,
		run: &models.Run{
			ID:        uuid.NewString(),
			StartedAt: time.Now().UTC(),
			Operation: operation,
			Argument:  argument,
			Status:    models.RunRunning,
		},
		deferred: make(map[string]struct{}),
		skipped:  make(map[string]struct{}),
	}
	if err := store.CreateRun(ctx, rt.run); err != nil {
		return nil, err
	}
	return rt, nil
}

func (rt *runTracker) deferIDs(ids ...string) {
	for _, id := range ids {
		rt.deferred[id] = struct{}{}
	}
	rt.metrics.DeferredIDs.Add(float64(len(ids)))
}

func (rt *runTracker) skipIDs(ids ...string) {
	for _, id := range ids {
		rt.skipped[id] = struct{}{}
	}
	rt.metrics.SkippedIDs.Add(float64(len(ids)))
}

// finish stores the final state. The run's own error wins over a storage error.
// context.Background is used so a cancelled run is still recorded.
func (rt *runTracker) finish(runErr error) (*models.Run, error) {
	now := time.Now().UTC()
	rt.run.FinishedAt = &now
	rt.run.Deferred = jsonList(rt.deferred)
	rt.run.Skipped = jsonList(rt.skipped)
	rt.run.Status = models.RunFinished
	if runErr != nil {
		rt.run.Status = models.RunFailed
		rt.run.Error = runErr.Error()
	}
	rt.metrics.RunDuration.WithLabelValues(rt.run.Operation).Observe(now.Sub(rt.run.StartedAt).Seconds())
	if err := rt.store.FinishRun(context.Background(), rt.run); err != nil && runErr == nil {
		return rt.run, err
	}
	return rt.run, runErr
}

func jsonList(set map[string]struct{}) datatypes.JSON {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	raw, _ := json.Marshal(ids)
	return datatypes.JSON(raw)
}

// RunIDs decodes one of the id lists of a run record.
func RunIDs(raw datatypes.JSON) []string {
	var ids []string
	if len(raw) == 0 {
		return nil
	}
	_ = json.Unmarshal(raw, &ids)
	return ids
}
