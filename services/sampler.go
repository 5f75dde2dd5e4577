package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"citnet/config"
	"citnet/models"
	"citnet/providers"
	"citnet/storage"
)

// Sampler grows the node set by traversing references or citations at the record source.
type Sampler struct {
	Config  *config.Config
	Store   *storage.Store
	Source  providers.RecordSource
	Logger  *zap.Logger
	Metrics *Metrics

	// Interval restricts discovered ids by the year encoded in their bibcode.
	Interval models.YearInterval
	// MaxDepth bounds the work queue to nodes with depth < MaxDepth. <= 0 is unbounded.
	MaxDepth  int
	BatchSize int
}

// NewSampler erstellt einen Sampler mit den Werten aus der Konfiguration.
func NewSampler(cfg *config.Config, store *storage.Store, source providers.RecordSource, logger *zap.Logger, metrics *Metrics) *Sampler {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Sampler{
		Config:    cfg,
		Store:     store,
		Source:    source,
		Logger:    logger,
		Metrics:   metrics,
		Interval:  models.YearInterval{Start: cfg.SnowballStartYear, End: cfg.SnowballEndYear},
		MaxDepth:  cfg.MaxDepth,
		BatchSize: cfg.BatchSize,
	}
}

// errDeferred marks a batch left for a later run.
var errDeferred = errors.New("batch deferred")

// Seed inserts the given identifiers as depth-0 nodes. Ids already stored are
// not queried again.
func (s *Sampler) Seed(ctx context.Context, ids []string) (*models.Run, error) {
	ids = normalizeIDs(ids)
	rt, err := startRun(ctx, s.Store, s.Metrics, "seed", fmt.Sprintf("%d ids", len(ids)))
	if err != nil {
		return nil, err
	}
	log := s.Logger.With(zap.String("run", rt.run.ID), zap.String("operation", "seed"))
	log.Info("Starte Seeding", zap.Int("ids", len(ids)))

	existing, err := s.Store.ExistingIDs(ctx, ids)
	if err != nil {
		return rt.finish(err)
	}
	var todo []string
	for _, id := range ids {
		if _, ok := existing[id]; !ok {
			todo = append(todo, id)
		}
	}

	for _, batch := range chunkIDs(todo, s.batchSize()) {
		res, err := s.fetch(ctx, batch)
		if err != nil {
			if ctx.Err() != nil {
				return rt.finish(ctx.Err())
			}
			log.Warn("Seed-Batch zurückgestellt", zap.Strings("ids", batch), zap.Error(err))
			rt.deferIDs(batch...)
			continue
		}
		rt.run.Queried += len(batch)
		if len(res.NotFound) > 0 {
			log.Warn("Unbekannte Identifier übersprungen", zap.Strings("ids", res.NotFound))
			rt.skipIDs(res.NotFound...)
		}

		nodes, edges := s.discovered(res, batch, 0)
		err = s.Store.Transaction(ctx, func(tx *storage.Store) error {
			inserted, err := tx.UpsertNodes(ctx, nodes)
			if err != nil {
				return err
			}
			added, err := tx.AddReferenceEdges(ctx, edges)
			if err != nil {
				return err
			}
			rt.run.NewNodes += len(inserted)
			rt.run.NewEdges += added
			s.Metrics.NewNodes.Add(float64(len(inserted)))
			s.Metrics.ReferenceEdges.Add(float64(added))
			return nil
		})
		if err != nil {
			log.Error("Seed-Batch konnte nicht gespeichert werden", zap.Error(err))
			return rt.finish(err)
		}
	}

	log.Info("Seeding abgeschlossen", zap.Int("new_nodes", rt.run.NewNodes), zap.Int("new_edges", rt.run.NewEdges))
	return rt.finish(nil)
}

// Expand processes every queued node in direction d: its related ids are looked
// up, new ones are stored one level deeper and the node is marked processed.
// The queue is re-read until it is empty, attempting each id at most once.
func (s *Sampler) Expand(ctx context.Context, d models.Direction) (*models.Run, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidDirection, d)
	}
	rt, err := startRun(ctx, s.Store, s.Metrics, "expand", string(d))
	if err != nil {
		return nil, err
	}
	log := s.Logger.With(zap.String("run", rt.run.ID), zap.String("direction", string(d)))
	log.Info("Starte Expansion", zap.Int("max_depth", s.MaxDepth), zap.Int("start_year", s.Interval.Start), zap.Int("end_year", s.Interval.End))

	attempted := make(map[string]struct{})
	for {
		queue, err := s.Store.Unprocessed(ctx, d, s.MaxDepth)
		if err != nil {
			return rt.finish(err)
		}
		var pending []models.Node
		for _, n := range queue {
			if _, ok := attempted[n.ID]; !ok {
				pending = append(pending, n)
			}
		}
		if len(pending) == 0 {
			break
		}
		log.Info("Verarbeite Warteschlange", zap.Int("queued", len(pending)))

		for start := 0; start < len(pending); start += s.batchSize() {
			end := start + s.batchSize()
			if end > len(pending) {
				end = len(pending)
			}
			batch := pending[start:end]
			if ctx.Err() != nil {
				return s.interrupted(ctx, rt, log, pending[start:])
			}
			for _, n := range batch {
				attempted[n.ID] = struct{}{}
			}
			if err := s.expandBatch(ctx, d, batch, rt, log); err != nil {
				if errors.Is(err, errDeferred) {
					continue
				}
				if ctx.Err() != nil {
					return s.interrupted(ctx, rt, log, pending[start:])
				}
				return rt.finish(err)
			}
		}
	}

	log.Info("Expansion abgeschlossen",
		zap.Int("queried", rt.run.Queried),
		zap.Int("new_nodes", rt.run.NewNodes),
		zap.Int("new_edges", rt.run.NewEdges),
		zap.Int("deferred", len(rt.deferred)),
		zap.Int("skipped", len(rt.skipped)))
	return rt.finish(nil)
}

// interrupted records the nodes left in the queue as deferred and fails the run
// with the context error.
func (s *Sampler) interrupted(ctx context.Context, rt *runTracker, log *zap.Logger, rest []models.Node) (*models.Run, error) {
	ids := make([]string, len(rest))
	for i, n := range rest {
		ids[i] = n.ID
	}
	rt.deferIDs(ids...)
	log.Warn("Expansion abgebrochen", zap.Int("deferred", len(ids)), zap.Error(ctx.Err()))
	return rt.finish(ctx.Err())
}

// expandBatch fetches one batch and commits its results in a single transaction.
func (s *Sampler) expandBatch(ctx context.Context, d models.Direction, batch []models.Node, rt *runTracker, log *zap.Logger) error {
	ids := make([]string, len(batch))
	depth := make(map[string]int, len(batch))
	for i, n := range batch {
		ids[i] = n.ID
		depth[n.ID] = n.Depth
	}

	res, err := s.fetch(ctx, ids)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("Batch zurückgestellt", zap.Strings("ids", ids), zap.Error(err))
		rt.deferIDs(ids...)
		return errDeferred
	}
	rt.run.Queried += len(ids)
	if len(res.NotFound) > 0 {
		log.Warn("Unbekannte Identifier übersprungen", zap.Strings("ids", res.NotFound))
		rt.skipIDs(res.NotFound...)
	}

	// Pair edges for every queried record, and the shallowest parent of each related id.
	var edges []models.ReferenceEdge
	childDepth := make(map[string]int)
	var related []string
	for _, id := range ids {
		rec, ok := res.Records[id]
		if !ok {
			continue
		}
		for _, rel := range rec.Related(d) {
			if rel == "" || rel == id || !s.Interval.Contains(rel) {
				continue
			}
			if d == models.DirectionReferences {
				edges = append(edges, models.ReferenceEdge{Source: id, Target: rel})
			} else {
				edges = append(edges, models.ReferenceEdge{Source: rel, Target: id})
			}
			cd, seen := childDepth[rel]
			if !seen {
				related = append(related, rel)
			}
			if !seen || depth[id]+1 < cd {
				childDepth[rel] = depth[id] + 1
			}
		}
	}

	existing, err := s.Store.ExistingIDs(ctx, related)
	if err != nil {
		return err
	}
	var fresh []string
	for _, id := range related {
		if _, ok := existing[id]; !ok {
			fresh = append(fresh, id)
		}
	}

	var nodes []*models.Node
	for _, part := range chunkIDs(fresh, s.batchSize()) {
		meta, err := s.fetch(ctx, part)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn("Metadaten nicht abrufbar, Batch zurückgestellt", zap.Strings("ids", ids), zap.Error(err))
			rt.deferIDs(ids...)
			return errDeferred
		}
		rt.run.Queried += len(part)
		if len(meta.NotFound) > 0 {
			log.Warn("Unbekannte Identifier nicht eingefügt", zap.Strings("ids", meta.NotFound))
			rt.skipIDs(meta.NotFound...)
		}
		for _, id := range part {
			rec, ok := meta.Records[id]
			if !ok {
				continue
			}
			rec.Node.ID = id
			rec.Node.Depth = childDepth[id]
			nodes = append(nodes, rec.Node)
			edges = append(edges, recordEdges(id, rec)...)
		}
	}

	return s.Store.Transaction(ctx, func(tx *storage.Store) error {
		inserted, err := tx.UpsertNodes(ctx, nodes)
		if err != nil {
			return err
		}
		added, err := tx.AddReferenceEdges(ctx, edges)
		if err != nil {
			return err
		}
		if err := tx.MarkProcessed(ctx, ids, d); err != nil {
			return err
		}
		rt.run.NewNodes += len(inserted)
		rt.run.NewEdges += added
		s.Metrics.NewNodes.Add(float64(len(inserted)))
		s.Metrics.ReferenceEdges.Add(float64(added))
		log.Debug("Batch gespeichert", zap.Int("ids", len(ids)), zap.Int("new_nodes", len(inserted)), zap.Int("new_edges", added))
		return nil
	})
}

// discovered turns fetched records into nodes at depth plus the edges of their own lists.
func (s *Sampler) discovered(res *providers.FetchResult, ids []string, depth int) ([]*models.Node, []models.ReferenceEdge) {
	var nodes []*models.Node
	var edges []models.ReferenceEdge
	for _, id := range ids {
		rec, ok := res.Records[id]
		if !ok {
			continue
		}
		rec.Node.ID = id
		rec.Node.Depth = depth
		nodes = append(nodes, rec.Node)
		edges = append(edges, recordEdges(id, rec)...)
	}
	return nodes, edges
}

// recordEdges returns id -> reference and citer -> id for a record.
func recordEdges(id string, rec *providers.Record) []models.ReferenceEdge {
	edges := make([]models.ReferenceEdge, 0, len(rec.References)+len(rec.Citations))
	for _, ref := range rec.References {
		if ref != "" && ref != id {
			edges = append(edges, models.ReferenceEdge{Source: id, Target: ref})
		}
	}
	for _, cit := range rec.Citations {
		if cit != "" && cit != id {
			edges = append(edges, models.ReferenceEdge{Source: cit, Target: id})
		}
	}
	return edges
}

// fetch looks up ids with retries. A batch rejected as not found is split until
// the unknown ids are isolated.
func (s *Sampler) fetch(ctx context.Context, ids []string) (*providers.FetchResult, error) {
	res, err := s.fetchWithRetry(ctx, ids)
	if err == nil {
		s.Metrics.QueriedIDs.Add(float64(len(ids)))
		return res, nil
	}
	if !errors.Is(err, providers.ErrNotFound) {
		return nil, err
	}
	if len(ids) == 1 {
		return &providers.FetchResult{Records: map[string]*providers.Record{}, NotFound: ids}, nil
	}
	mid := len(ids) / 2
	left, err := s.fetch(ctx, ids[:mid])
	if err != nil {
		return nil, err
	}
	right, err := s.fetch(ctx, ids[mid:])
	if err != nil {
		return nil, err
	}
	for id, rec := range right.Records {
		left.Records[id] = rec
	}
	left.NotFound = append(left.NotFound, right.NotFound...)
	return left, nil
}

func (s *Sampler) fetchWithRetry(ctx context.Context, ids []string) (*providers.FetchResult, error) {
	var res *providers.FetchResult
	attempt := 0
	op := func() error {
		attempt++
		if attempt > 1 {
			s.Metrics.SourceRetries.Inc()
		}
		r, err := s.Source.Fetch(ctx, ids)
		if err != nil {
			if errors.Is(err, providers.ErrTransient) {
				return err
			}
			return backoff.Permanent(err)
		}
		if r == nil {
			r = &providers.FetchResult{}
		}
		if r.Records == nil {
			r.Records = map[string]*providers.Record{}
		}
		res = r
		return nil
	}
	notify := func(err error, wait time.Duration) {
		s.Logger.Debug("Quelle nicht erreichbar, neuer Versuch",
			zap.String("source", s.Source.Name()), zap.Int("attempt", attempt), zap.Duration("wait", wait), zap.Error(err))
	}
	if err := backoff.RetryNotify(op, s.newBackOff(ctx), notify); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Sampler) newBackOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	if s.Config.RetryInitialInterval > 0 {
		eb.InitialInterval = s.Config.RetryInitialInterval
	}
	if s.Config.RetryMaxInterval > 0 {
		eb.MaxInterval = s.Config.RetryMaxInterval
	}
	eb.MaxElapsedTime = 0
	retries := s.Config.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(retries)), ctx)
}

func (s *Sampler) batchSize() int {
	if s.BatchSize <= 0 {
		return 50
	}
	return s.BatchSize
}

// normalizeIDs trims, drops blanks and removes duplicates keeping the first occurrence.
func normalizeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func chunkIDs(ids []string, size int) [][]string {
	var out [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[start:end])
	}
	return out
}

// sortedUnique returns ids sorted without duplicates.
func sortedUnique(ids []string) []string {
	out := append([]string(nil), ids...)
	sort.Strings(out)
	n := 0
	for i, id := range out {
		if i == 0 || id != out[n-1] {
			out[n] = id
			n++
		}
	}
	return out[:n]
}
