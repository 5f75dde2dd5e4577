package ads

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/datatypes"

	"citnet/config"
	"citnet/models"
	"citnet/providers"
)

// Fetcher implementiert das RecordSource-Interface für die ADS-Bigquery-API.
type Fetcher struct {
	Config  *config.Config
	Logger  *zap.Logger
	Client  *http.Client
	Limiter *rate.Limiter
}

// NewFetcher erstellt einen neuen ADS Fetcher.
func NewFetcher(cfg *config.Config, logger *zap.Logger) *Fetcher {
	timeout := cfg.ADSTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	limit := rate.Inf
	if cfg.ADSRequestsPerSecond > 0 {
		limit = rate.Limit(cfg.ADSRequestsPerSecond)
	}
	return &Fetcher{
		Config:  cfg,
		Logger:  logger,
		Client:  &http.Client{Timeout: timeout},
		Limiter: rate.NewLimiter(limit, 1),
	}
}

// Name gibt den Namen des Providers zurück.
func (f *Fetcher) Name() string {
	return "ads"
}

// Fetch resolves a batch of bibcodes with a single bigquery request.
func (f *Fetcher) Fetch(ctx context.Context, ids []string) (*providers.FetchResult, error) {
	result := &providers.FetchResult{Records: make(map[string]*providers.Record, len(ids))}
	if len(ids) == 0 {
		return result, nil
	}
	log := f.Logger.With(zap.Int("ids", len(ids)))

	if err := f.Limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("q", "*:*")
	q.Set("fl", fieldList)
	q.Set("rows", strconv.Itoa(len(ids)))
	endpoint := strings.TrimRight(f.Config.ADSBaseURL, "/") + "/search/bigquery?" + q.Encode()

	body := "bibcode\n" + strings.Join(ids, "\n")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBufferString(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+f.Config.ADSAPIKey)
	req.Header.Set("Content-Type", "big-query/csv")

	log.Debug("Rufe ADS API auf", zap.String("url", endpoint))
	resp, err := f.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", providers.ErrTransient, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		log.Warn("ADS API antwortet mit Fehler", zap.Int("status", resp.StatusCode), zap.Error(err))
		return nil, err
	}

	var searchResponse SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&searchResponse); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", providers.ErrTransient, err)
	}

	for i := range searchResponse.Response.Docs {
		doc := &searchResponse.Response.Docs[i]
		if doc.Bibcode == "" {
			continue
		}
		result.Records[doc.Bibcode] = mapDocToRecord(doc)
	}
	for _, id := range ids {
		if _, ok := result.Records[id]; !ok {
			result.NotFound = append(result.NotFound, id)
		}
	}

	log.Debug("ADS-Abfrage abgeschlossen", zap.Int("found", len(result.Records)), zap.Int("not_found", len(result.NotFound)))
	return result, nil
}

// checkStatus classifies non-2xx answers.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	msg := resp.Status
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var er ErrorResponse
	if json.Unmarshal(raw, &er) == nil && er.Error != "" {
		msg = er.Error
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("%w: ads status %d: %s", providers.ErrTransient, resp.StatusCode, msg)
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: ads status %d: %s", providers.ErrNotFound, resp.StatusCode, msg)
	default:
		return fmt.Errorf("ads status %d: %s", resp.StatusCode, msg)
	}
}

// mapDocToRecord konvertiert ein ADS-Dokument in unser internes Node-Modell.
func mapDocToRecord(doc *Doc) *providers.Record {
	node := &models.Node{
		ID:             doc.Bibcode,
		Title:          first(doc.Title),
		Authors:        strings.Join(doc.Author, "; "),
		Publication:    doc.Pub,
		DOI:            first(doc.DOI),
		CitationCount:  doc.CitationCount,
		ReferenceCount: len(doc.Reference),
	}
	if y, err := strconv.Atoi(doc.Year); err == nil {
		node.Year = y
	} else {
		node.Year = models.YearFromID(doc.Bibcode)
	}
	node.Label = label(doc.Author, node.Year)

	meta := map[string]any{
		"title":  doc.Title,
		"author": doc.Author,
		"doi":    doc.DOI,
		"pub":    doc.Pub,
	}
	if raw, err := json.Marshal(meta); err == nil {
		node.Metadata = datatypes.JSON(raw)
	}

	return &providers.Record{
		Node:       node,
		References: doc.Reference,
		Citations:  doc.Citation,
	}
}

// label builds the Gephi label "Surname Year" from the first author.
func label(authors []string, year int) string {
	surname := ""
	if len(authors) > 0 {
		surname = strings.TrimSpace(strings.SplitN(authors[0], ",", 2)[0])
	}
	switch {
	case surname == "" && year == 0:
		return ""
	case surname == "":
		return strconv.Itoa(year)
	case year == 0:
		return surname
	}
	return fmt.Sprintf("%s %d", surname, year)
}

func first(s []string) string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}
