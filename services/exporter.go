package services

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"citnet/config"
	"citnet/models"
	"citnet/storage"
)

// Exporter schreibt das Netzwerk im Gephi-Tabellenformat (nodes.csv, edges.csv).
type Exporter struct {
	Config *config.Config
	Store  *storage.Store
	Logger *zap.Logger
}

// NewExporter erstellt einen neuen Exporter.
func NewExporter(cfg *config.Config, store *storage.Store, logger *zap.Logger) *Exporter {
	return &Exporter{Config: cfg, Store: store, Logger: logger}
}

var (
	nodeHeader = []string{"Id", "Label", "Title", "Authors", "Year", "Publication", "Depth", "Cluster"}
	edgeHeader = []string{"Source", "Target", "Type", "Weight", "Relation"}
)

// Export writes nodes.csv and edges.csv into dir and returns their paths.
// With no relations given, the edges of every relation are exported.
func (e *Exporter) Export(ctx context.Context, dir string, relations ...models.RelationType) ([]string, error) {
	if len(relations) == 0 {
		relations = models.RelationTypes
	}
	for _, r := range relations {
		if !r.Valid() {
			return nil, fmt.Errorf("%w: %q", models.ErrInvalidRelation, r)
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	nodes, err := e.Store.Nodes(ctx, 0, 0)
	if err != nil {
		return nil, err
	}
	nodeRows := make([][]string, 0, len(nodes))
	for _, n := range nodes {
		cluster := ""
		if n.ClusterID != nil {
			cluster = strconv.Itoa(*n.ClusterID)
		}
		year := ""
		if n.Year != 0 {
			year = strconv.Itoa(n.Year)
		}
		nodeRows = append(nodeRows, []string{n.ID, n.Label, n.Title, n.Authors, year, n.Publication, strconv.Itoa(n.Depth), cluster})
	}

	var edgeRows [][]string
	for _, r := range relations {
		edges, err := e.Store.RelationEdges(ctx, r)
		if err != nil {
			return nil, err
		}
		for _, ed := range edges {
			edgeRows = append(edgeRows, []string{ed.Source, ed.Target, ed.Type, strconv.FormatFloat(ed.Weight, 'f', -1, 64), string(ed.Relation)})
		}
	}

	nodesPath := filepath.Join(dir, "nodes.csv")
	edgesPath := filepath.Join(dir, "edges.csv")
	if err := writeCSV(nodesPath, nodeHeader, nodeRows); err != nil {
		return nil, err
	}
	if err := writeCSV(edgesPath, edgeHeader, edgeRows); err != nil {
		return nil, err
	}
	e.Logger.Info("Export geschrieben", zap.String("dir", dir), zap.Int("nodes", len(nodeRows)), zap.Int("edges", len(edgeRows)))
	return []string{nodesPath, edgesPath}, nil
}

// Upload puts the exported files to the configured bucket under
// <prefix>/exports/<timestamp>/ and returns their links.
func (e *Exporter) Upload(ctx context.Context, client storage.ObjectPutter, files []string) ([]string, error) {
	stamp := time.Now().UTC().Format("20060102-150405")
	var links []string
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return links, err
		}
		key := path.Join(e.Config.S3Prefix, "exports", stamp, filepath.Base(f))
		link, err := storage.UploadFile(ctx, client, e.Config, key, data, "text/csv")
		if err != nil {
			return links, err
		}
		e.Logger.Info("Export hochgeladen", zap.String("key", key))
		links = append(links, link)
	}
	return links, nil
}

func writeCSV(path string, header []string, rows [][]string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	return w.Error()
}
