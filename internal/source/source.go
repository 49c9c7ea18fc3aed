// Package source holds the contract shared by all LMS adapters. Each
// adapter hides its SDK-level quirks (paging envelopes, auth schemes)
// behind PagedFetcher; nothing beyond this package's types escapes an
// adapter.
package source

import (
	"context"

	"lms-sync/internal/syncdb"
)

// System identifies which LMS a record came from.
type System string

const (
	Canvas    System = "Canvas"
	Google    System = "Google"
	Schoology System = "Schoology"
)

// Page is one page of records from an LMS API, plus the opaque token for
// the next page. An empty NextToken ends the iteration.
type Page struct {
	Records   []syncdb.Record
	NextToken string
}

// PagedFetcher fetches one page of a resource at a time. The first call
// passes an empty token.
type PagedFetcher interface {
	FetchPage(ctx context.Context, token string) (Page, error)
}

// FetchAll drains a PagedFetcher into a single page-complete slice.
func FetchAll(ctx context.Context, f PagedFetcher) ([]syncdb.Record, error) {
	var out []syncdb.Record
	token := ""
	for {
		page, err := f.FetchPage(ctx, token)
		if err != nil {
			return nil, err
		}
		out = append(out, page.Records...)
		if page.NextToken == "" {
			return out, nil
		}
		token = page.NextToken
	}
}

// FetcherFunc adapts a function to the PagedFetcher interface.
type FetcherFunc func(ctx context.Context, token string) (Page, error)

func (f FetcherFunc) FetchPage(ctx context.Context, token string) (Page, error) {
	return f(ctx, token)
}
