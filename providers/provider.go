package providers

import (
	"context"
	"errors"

	"citnet/models"
)

var (
	// ErrTransient marks a failure worth retrying (rate limit, 5xx, network, truncated body).
	ErrTransient = errors.New("transient record source failure")
	// ErrNotFound marks identifiers the source rejects as unknown or malformed.
	ErrNotFound = errors.New("record not found")
)

// Record is one publication as delivered by a RecordSource.
type Record struct {
	Node *models.Node
	// References are the ids this record cites.
	References []string
	// Citations are the ids citing this record.
	Citations []string
}

// Related returns the relation list the sampler follows in direction d.
func (r *Record) Related(d models.Direction) []string {
	if d == models.DirectionCitations {
		return r.Citations
	}
	return r.References
}

// FetchResult is the answer to one batched lookup.
type FetchResult struct {
	Records map[string]*Record
	// NotFound lists requested ids the source does not know.
	NotFound []string
}

// RecordSource ist das Interface, das jede bibliographische Datenquelle (z.B. ADS) implementieren muss.
type RecordSource interface {
	// Fetch looks up a batch of identifiers. Errors wrapping ErrTransient may be retried;
	// an error wrapping ErrNotFound means the source rejected the request's identifiers.
	Fetch(ctx context.Context, ids []string) (*FetchResult, error)

	// Name gibt den eindeutigen Namen der Quelle zurück (z.B. "ads").
	Name() string
}
