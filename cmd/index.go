package main

import (
	"context"
)

// documentIndex is the read-only view of the search index used by the service.
// facet counts returned for a facet never depend on that facet's own selection.
type documentIndex interface {
	// search runs the state's query, returning one page of documents plus
	// bucket counts for each requested facet
	search(ctx context.Context, state queryState, facets []string) (*queryResult, error)

	// facetValues returns every bucket of the facet, or errCardinalityExceeded
	// when the facet has more than maxCardinality distinct values
	facetValues(ctx context.Context, state queryState, facet string, maxCardinality int) ([]facetValueCount, error)

	// topFacetValues returns at most n buckets, ordered and thresholded server side
	topFacetValues(ctx context.Context, state queryState, facet string, n int, order fieldValuesOrder, minCount int) ([]facetValueCount, error)

	document(ctx context.Context, id string) (*vloDocument, error)

	ping(ctx context.Context) error
}

type vloDocument struct {
	ID     string                 `json:"id"`
	Fields map[string]interface{} `json:"fields"`
}

type queryResult struct {
	Documents []vloDocument
	Total     int
	Start     int
	Facets    map[string][]facetValueCount
	Truncated bool
	Warnings  []string
}
