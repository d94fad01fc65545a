package courtlistener

import (
	"context"

	"github.com/Sternrassler/cl-extractor/pkg/session"
)

// Fetcher runs fetch requests. *session.Session implements it.
type Fetcher interface {
	Fetch(ctx context.Context, req session.FetchRequest) (session.Summary, error)
}

// Extractor exposes one method per CourtListener dataset.
type Extractor struct {
	fetcher Fetcher
}

// NewExtractor creates an extractor on top of a session.
func NewExtractor(fetcher Fetcher) *Extractor {
	return &Extractor{fetcher: fetcher}
}

// FetchPositions runs the positions preset.
func (e *Extractor) FetchPositions(ctx context.Context, opts Options) (session.Summary, error) {
	return e.fetcher.Fetch(ctx, Positions(opts))
}

// FetchEducation runs the education preset.
func (e *Extractor) FetchEducation(ctx context.Context, opts Options) (session.Summary, error) {
	return e.fetcher.Fetch(ctx, Education(opts))
}

// FetchFinancialDisclosures runs the financial disclosures preset.
func (e *Extractor) FetchFinancialDisclosures(ctx context.Context, opts Options) (session.Summary, error) {
	return e.fetcher.Fetch(ctx, FinancialDisclosures(opts))
}

// FetchDocketsByAuthor runs the dockets search for one author.
func (e *Extractor) FetchDocketsByAuthor(ctx context.Context, authorID string, opts Options) (session.Summary, error) {
	return e.fetcher.Fetch(ctx, DocketsByAuthor(authorID, opts))
}

// Request returns the preset request for a dataset name as used on the
// command line ("positions", "education", "financial-disclosures").
func Request(dataset string, opts Options) (session.FetchRequest, bool) {
	switch dataset {
	case EndpointPositions:
		return Positions(opts), true
	case EndpointEducation:
		return Education(opts), true
	case EndpointFinancialDisclosures, "disclosures":
		return FinancialDisclosures(opts), true
	default:
		return session.FetchRequest{}, false
	}
}
