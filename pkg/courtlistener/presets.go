// Package courtlistener provides the CourtListener REST API v4 datasets as
// ready-made fetch requests.
package courtlistener

import (
	"maps"

	"github.com/Sternrassler/cl-extractor/pkg/client"
	"github.com/Sternrassler/cl-extractor/pkg/session"
)

// API constants.
const (
	BaseURL    = "https://www.courtlistener.com/api/rest/v4/"
	AuthScheme = "Token"
	UserAgent  = "cl-extractor/1.0"
)

// Dataset endpoints.
const (
	EndpointPositions            = "positions"
	EndpointEducation            = "education"
	EndpointFinancialDisclosures = "financial-disclosures"
	EndpointSearch               = "search"

	// DocketsDestination is where per-author docket files are written.
	DocketsDestination = "dockets"
)

// Options override preset values. Zero fields keep the preset. A
// FlushThreshold always means a file every FlushThreshold pages, also for
// presets that write once at the end.
type Options struct {
	Params         map[string]string
	MaxPages       int
	FlushThreshold int
	HourlyBudget   int
}

func (o Options) apply(req session.FetchRequest) session.FetchRequest {
	if len(o.Params) > 0 {
		params := make(map[string]string, len(req.Params)+len(o.Params))
		maps.Copy(params, o.Params)
		// Preset parameters win.
		maps.Copy(params, req.Params)
		req.Params = params
	}
	if o.MaxPages > 0 {
		req.MaxPages = o.MaxPages
	}
	if o.FlushThreshold > 0 {
		req.FlushThreshold = o.FlushThreshold
		req.FlushPolicy = session.FlushEveryPages
	}
	if o.HourlyBudget > 0 {
		req.HourlyBudget = o.HourlyBudget
	}
	return req
}

// APIConfig returns the client configuration for CourtListener.
func APIConfig(token string) client.Config {
	cfg := client.DefaultConfig(BaseURL, nil)
	cfg.Token = token
	cfg.AuthScheme = AuthScheme
	cfg.UserAgent = UserAgent
	return cfg
}

// Positions fetches judicial positions: a file every 5 pages, at most 20
// pages per run.
func Positions(opts Options) session.FetchRequest {
	return opts.apply(session.FetchRequest{
		Endpoint:       EndpointPositions,
		FlushPolicy:    session.FlushEveryPages,
		FlushThreshold: 5,
		MaxPages:       20,
	})
}

// Education fetches judges' education records, a file every 20 pages.
func Education(opts Options) session.FetchRequest {
	return opts.apply(session.FetchRequest{
		Endpoint:       EndpointEducation,
		FlushPolicy:    session.FlushEveryPages,
		FlushThreshold: 20,
	})
}

// FinancialDisclosures fetches financial disclosures, a file every 20 pages.
func FinancialDisclosures(opts Options) session.FetchRequest {
	return opts.apply(session.FetchRequest{
		Endpoint:       EndpointFinancialDisclosures,
		FlushPolicy:    session.FlushEveryPages,
		FlushThreshold: 20,
	})
}

// DocketsByAuthor searches the opinions written by authorID and writes them
// to a single file named after the judge.
func DocketsByAuthor(authorID string, opts Options) session.FetchRequest {
	return opts.apply(session.FetchRequest{
		Endpoint:      EndpointSearch,
		Params:        map[string]string{"q": "author_id:" + authorID},
		FlushPolicy:   session.FlushAtEnd,
		AuthorScoped:  true,
		AuthorID:      authorID,
		IdentityField: "judge",
		Destination:   DocketsDestination,
	})
}
