package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"citnet/config"
	"citnet/models"
)

// maxParams keeps IN lists below SQLite's bound-variable limit.
const maxParams = 500

// Store is the persistent citation network: nodes, reference edges, relation edges and runs.
type Store struct {
	DB     *gorm.DB
	Logger *zap.Logger
	// BatchSize is the number of rows per INSERT statement.
	BatchSize int
}

// Open verbindet sich mit der konfigurierten Datenbank und migriert das Schema.
func Open(cfg *config.Config, logger *zap.Logger) (*Store, error) {
	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN())
	case "sqlite", "":
		dialector = sqlite.Open(sqliteDSN(cfg.DBPath))
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DBDriver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return New(db, logger)
}

// OpenSQLite opens (or creates) the single-file store at path.
func OpenSQLite(path string, logger *zap.Logger) (*Store, error) {
	return Open(&config.Config{DBDriver: "sqlite", DBPath: path}, logger)
}

// New wraps an existing connection and runs the migrations.
func New(db *gorm.DB, logger *zap.Logger) (*Store, error) {
	if err := db.AutoMigrate(&models.Node{}, &models.ReferenceEdge{}, &models.RelationEdge{}, &models.Run{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	logger.Debug("Datenbank-Migration erfolgreich")
	return &Store{DB: db, Logger: logger, BatchSize: 500}, nil
}

func sqliteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return path + "?_busy_timeout=5000"
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Transaction runs fn against a Store bound to one database transaction.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{DB: tx, Logger: s.Logger, BatchSize: s.BatchSize})
	})
}

func (s *Store) batchSize() int {
	if s.BatchSize <= 0 {
		return 500
	}
	return s.BatchSize
}

// UpsertNodes inserts the nodes whose id is not yet stored and returns them.
// Present ids, and ids repeated within the call, are left untouched.
func (s *Store) UpsertNodes(ctx context.Context, nodes []*models.Node) ([]*models.Node, error) {
	seen := make(map[string]struct{}, len(nodes))
	ids := make([]string, 0, len(nodes))
	unique := make([]*models.Node, 0, len(nodes))
	for _, n := range nodes {
		if n == nil || n.ID == "" {
			continue
		}
		if _, dup := seen[n.ID]; dup {
			continue
		}
		seen[n.ID] = struct{}{}
		ids = append(ids, n.ID)
		unique = append(unique, n)
	}
	if len(unique) == 0 {
		return nil, nil
	}

	existing, err := s.ExistingIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	var fresh []*models.Node
	for _, n := range unique {
		if _, ok := existing[n.ID]; !ok {
			fresh = append(fresh, n)
		}
	}
	if len(fresh) == 0 {
		return nil, nil
	}
	err = s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		CreateInBatches(fresh, s.batchSize()).Error
	if err != nil {
		return nil, fmt.Errorf("insert nodes: %w", err)
	}
	return fresh, nil
}

// ExistingIDs returns the subset of ids already stored as nodes.
func (s *Store) ExistingIDs(ctx context.Context, ids []string) (map[string]struct{}, error) {
	out := make(map[string]struct{}, len(ids))
	for _, part := range chunk(ids, maxParams) {
		var found []string
		if err := s.DB.WithContext(ctx).Model(&models.Node{}).Where("id IN ?", part).Pluck("id", &found).Error; err != nil {
			return nil, fmt.Errorf("lookup node ids: %w", err)
		}
		for _, id := range found {
			out[id] = struct{}{}
		}
	}
	return out, nil
}

// MarkProcessed sets the processed flag of direction d on the given nodes.
func (s *Store) MarkProcessed(ctx context.Context, ids []string, d models.Direction) error {
	if !d.Valid() {
		return fmt.Errorf("%w: %q", models.ErrInvalidDirection, d)
	}
	for _, part := range chunk(ids, maxParams) {
		err := s.DB.WithContext(ctx).Model(&models.Node{}).Where("id IN ?", part).Update(d.Column(), true).Error
		if err != nil {
			return fmt.Errorf("mark processed: %w", err)
		}
	}
	return nil
}

// Unprocessed returns the nodes not yet processed in direction d whose depth is
// below maxDepth, ordered by depth and id. maxDepth <= 0 disables the bound.
func (s *Store) Unprocessed(ctx context.Context, d models.Direction, maxDepth int) ([]models.Node, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidDirection, d)
	}
	q := s.DB.WithContext(ctx).Model(&models.Node{}).Select("id", "depth").Where(d.Column()+" = ?", false)
	if maxDepth > 0 {
		q = q.Where("depth < ?", maxDepth)
	}
	var nodes []models.Node
	if err := q.Order("depth, id").Find(&nodes).Error; err != nil {
		return nil, fmt.Errorf("load work queue: %w", err)
	}
	return nodes, nil
}

// AllNodeIDs returns every node id in ascending order.
func (s *Store) AllNodeIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.DB.WithContext(ctx).Model(&models.Node{}).Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("load node ids: %w", err)
	}
	return ids, nil
}

// Nodes lists nodes ordered by id.
func (s *Store) Nodes(ctx context.Context, limit, offset int) ([]models.Node, error) {
	q := s.DB.WithContext(ctx).Order("id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	var nodes []models.Node
	if err := q.Find(&nodes).Error; err != nil {
		return nil, err
	}
	return nodes, nil
}

// Node loads a single node. A missing id yields gorm.ErrRecordNotFound.
func (s *Store) Node(ctx context.Context, id string) (*models.Node, error) {
	var n models.Node
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&n).Error; err != nil {
		return nil, err
	}
	return &n, nil
}

// AddReferenceEdges stores the edges not present yet and returns how many were inserted.
func (s *Store) AddReferenceEdges(ctx context.Context, edges []models.ReferenceEdge) (int, error) {
	seen := make(map[[2]string]struct{}, len(edges))
	var candidates []models.ReferenceEdge
	sources := make(map[string]struct{})
	for _, e := range edges {
		if e.Source == "" || e.Target == "" {
			continue
		}
		if _, dup := seen[e.Key()]; dup {
			continue
		}
		seen[e.Key()] = struct{}{}
		candidates = append(candidates, models.ReferenceEdge{Source: e.Source, Target: e.Target})
		sources[e.Source] = struct{}{}
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	present := make(map[[2]string]struct{})
	for _, part := range chunk(sortedKeys(sources), maxParams) {
		var rows []models.ReferenceEdge
		err := s.DB.WithContext(ctx).Select("source", "target").Where("source IN ?", part).Find(&rows).Error
		if err != nil {
			return 0, fmt.Errorf("lookup reference edges: %w", err)
		}
		for _, r := range rows {
			present[r.Key()] = struct{}{}
		}
	}
	var fresh []models.ReferenceEdge
	for _, e := range candidates {
		if _, ok := present[e.Key()]; !ok {
			fresh = append(fresh, e)
		}
	}
	if len(fresh) == 0 {
		return 0, nil
	}
	err := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "source"}, {Name: "target"}}, DoNothing: true}).
		CreateInBatches(&fresh, s.batchSize()).Error
	if err != nil {
		return 0, fmt.Errorf("insert reference edges: %w", err)
	}
	return len(fresh), nil
}

// InternalReferenceEdges returns the reference edges whose endpoints are both nodes.
func (s *Store) InternalReferenceEdges(ctx context.Context) ([]models.ReferenceEdge, error) {
	var edges []models.ReferenceEdge
	err := s.DB.WithContext(ctx).
		Table("reference_edges AS e").
		Select("e.source, e.target").
		Joins("JOIN nodes AS s ON s.id = e.source").
		Joins("JOIN nodes AS t ON t.id = e.target").
		Order("e.source, e.target").
		Scan(&edges).Error
	if err != nil {
		return nil, fmt.Errorf("load reference edges: %w", err)
	}
	return edges, nil
}

// ReferenceEdgeCount returns the number of stored reference edges.
func (s *Store) ReferenceEdgeCount(ctx context.Context) (int64, error) {
	var n int64
	err := s.DB.WithContext(ctx).Model(&models.ReferenceEdge{}).Count(&n).Error
	return n, err
}

// ReplaceEdges swaps the stored edge set of relation for edges in one transaction.
// On any error the previous set stays in place.
func (s *Store) ReplaceEdges(ctx context.Context, relation models.RelationType, edges []models.RelationEdge) error {
	if !relation.Valid() {
		return fmt.Errorf("%w: %q", models.ErrInvalidRelation, relation)
	}
	rows := make([]models.RelationEdge, len(edges))
	for i, e := range edges {
		if e.Weight < 0 {
			return fmt.Errorf("negative weight %v for edge %s -> %s", e.Weight, e.Source, e.Target)
		}
		rows[i] = models.RelationEdge{
			Source:   e.Source,
			Target:   e.Target,
			Relation: relation,
			Weight:   e.Weight,
			Type:     relation.GephiType(),
		}
	}
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("relation = ?", relation).Delete(&models.RelationEdge{}).Error; err != nil {
			return fmt.Errorf("delete %s edges: %w", relation, err)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(&rows, s.batchSize()).Error; err != nil {
			return fmt.Errorf("insert %s edges: %w", relation, err)
		}
		return nil
	})
}

// RelationEdges returns the stored edges of relation ordered by (source, target).
func (s *Store) RelationEdges(ctx context.Context, relation models.RelationType) ([]models.RelationEdge, error) {
	if !relation.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidRelation, relation)
	}
	var edges []models.RelationEdge
	err := s.DB.WithContext(ctx).Where("relation = ?", relation).Order("source, target").Find(&edges).Error
	if err != nil {
		return nil, err
	}
	return edges, nil
}

// SetClusters replaces every node's cluster id with the given assignment.
// Nodes missing from clusters end up without a cluster.
func (s *Store) SetClusters(ctx context.Context, clusters map[string]int) error {
	byCluster := make(map[int][]string)
	for id, c := range clusters {
		byCluster[c] = append(byCluster[c], id)
	}
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Node{}).Where("cluster_id IS NOT NULL").Update("cluster_id", nil).Error; err != nil {
			return fmt.Errorf("reset clusters: %w", err)
		}
		for c, ids := range byCluster {
			for _, part := range chunk(ids, maxParams) {
				if err := tx.Model(&models.Node{}).Where("id IN ?", part).Update("cluster_id", c).Error; err != nil {
					return fmt.Errorf("set cluster %d: %w", c, err)
				}
			}
		}
		return nil
	})
}

// Stats summarises the stored network.
type Stats struct {
	Nodes               int64                         `json:"nodes"`
	ProcessedReferences int64                         `json:"processed_references"`
	ProcessedCitations  int64                         `json:"processed_citations"`
	MaxDepth            int                           `json:"max_depth"`
	Clusters            int64                         `json:"clusters"`
	ReferenceEdges      int64                         `json:"reference_edges"`
	RelationEdges       map[models.RelationType]int64 `json:"relation_edges"`
	Runs                int64                         `json:"runs"`
}

// Stats counts nodes, edges and runs.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	db := s.DB.WithContext(ctx)
	st := &Stats{RelationEdges: make(map[models.RelationType]int64)}
	if err := db.Model(&models.Node{}).Count(&st.Nodes).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Node{}).Where("processed_references = ?", true).Count(&st.ProcessedReferences).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Node{}).Where("processed_citations = ?", true).Count(&st.ProcessedCitations).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Node{}).Select("COALESCE(MAX(depth), 0)").Scan(&st.MaxDepth).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Node{}).Where("cluster_id IS NOT NULL").Distinct("cluster_id").Count(&st.Clusters).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.ReferenceEdge{}).Count(&st.ReferenceEdges).Error; err != nil {
		return nil, err
	}
	var perRelation []struct {
		Relation models.RelationType
		Count    int64
	}
	if err := db.Model(&models.RelationEdge{}).Select("relation, COUNT(*) AS count").Group("relation").Scan(&perRelation).Error; err != nil {
		return nil, err
	}
	for _, r := range perRelation {
		st.RelationEdges[r.Relation] = r.Count
	}
	if err := db.Model(&models.Run{}).Count(&st.Runs).Error; err != nil {
		return nil, err
	}
	return st, nil
}

func chunk(ids []string, size int) [][]string {
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

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Snapshot writes a consistent copy of a SQLite store to path.
func (s *Store) Snapshot(ctx context.Context, path string) error {
	if name := s.DB.Dialector.Name(); name != "sqlite" {
		return fmt.Errorf("snapshot is only supported for sqlite, not %s", name)
	}
	if err := s.DB.WithContext(ctx).Exec("VACUUM INTO ?", path).Error; err != nil {
		return fmt.Errorf("snapshot to %s: %w", path, err)
	}
	return nil
}
