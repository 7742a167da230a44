package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/uvalib/virgo4-api/v4api"
	"golang.org/x/sync/singleflight"
)

type facetValuesResult struct {
	Values              []facetValueCount `json:"values"`
	Total               int               `json:"total"`
	CardinalityExceeded bool              `json:"cardinality_exceeded"`
}

// facetValueProvider serves filtered, ordered windows over a facet's values.
// full value lists are fetched once per query basis and shared via the cache.
type facetValueProvider struct {
	index          documentIndex
	cache          facetValueCache
	flights        singleflight.Group
	maxCardinality int
	fallbackTopN   int
	strict         bool
	caseSensitive  bool
}

func newFacetValueProvider(index documentIndex, cache facetValueCache, cfg *serviceConfig) *facetValueProvider {
	p := facetValueProvider{
		index:          index,
		cache:          cache,
		maxCardinality: cfg.Solr.MaxCardinality,
		fallbackTopN:   cfg.Solr.FallbackTopN,
		strict:         cfg.Service.Strict,
		caseSensitive:  cfg.Service.CaseSensitiveFilter,
	}

	if p.cache == nil {
		p.cache = noFacetCache{}
	}

	if p.fallbackTopN <= 0 {
		p.fallbackTopN = 100
	}

	return &p
}

// facetBasis is the part of a query state that a facet's counts depend on
func facetBasis(state queryState, facet string) queryState {
	return state.withoutFacet(facet).withSort(v4api.SortOrder{}).withPage(0, 0)
}

func facetCacheKey(facet string, basis queryState) string {
	sum := sha256.Sum256([]byte(facet + "\n" + bookmarkString(basis)))
	return hex.EncodeToString(sum[:])
}

func (p *facetValueProvider) values(ctx context.Context, facet string, state queryState, filter fieldValuesFilter, order fieldValuesOrder, window valueWindow) (*facetValuesResult, error) {
	cl := clientFrom(ctx)

	if p.strict == true {
		if err := filter.validate(); err != nil {
			return nil, err
		}
	}

	filter = filter.normalized()
	filter.caseSensitive = p.caseSensitive

	basis := facetBasis(state, facet)

	entry, err := p.fullList(ctx, facet, basis)
	if err != nil {
		return nil, err
	}

	values := entry.Values

	if entry.Exceeded == true {
		cardinalityFallbacks.Inc()

		minCount := filter.MinimalOccurrence
		if minCount < 1 {
			minCount = 1
		}

		cl.log("[FACET] [%s] exceeds %d values; falling back to top %d", facet, p.maxCardinality, p.fallbackTopN)

		if values, err = p.index.topFacetValues(ctx, basis, facet, p.fallbackTopN, order, minCount); err != nil {
			return nil, err
		}
	}

	filtered := applyFieldValuesFilter(values, filter, order)

	res := facetValuesResult{
		Values:              windowValues(filtered, window),
		Total:               len(filtered),
		CardinalityExceeded: entry.Exceeded,
	}

	cl.log("[FACET] [%s] %d of %d values match; returning %d", facet, res.Total, len(values), len(res.Values))

	return &res, nil
}

// fullList returns the facet's complete value list for the basis, from the
// cache if possible.  concurrent misses for the same key share one fetch.
func (p *facetValueProvider) fullList(ctx context.Context, facet string, basis queryState) (*facetCacheEntry, error) {
	key := facetCacheKey(facet, basis)

	if entry, ok := p.cache.get(ctx, key); ok == true {
		facetCacheHits.Inc()
		return entry, nil
	}

	facetCacheMisses.Inc()

	// the shared fetch outlives any single waiting caller
	fctx := context.WithoutCancel(ctx)

	ch := p.flights.DoChan(key, func() (interface{}, error) {
		return p.fetch(fctx, key, facet, basis)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()

	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}

		return res.Val.(*facetCacheEntry), nil
	}
}

func (p *facetValueProvider) fetch(ctx context.Context, key, facet string, basis queryState) (*facetCacheEntry, error) {
	values, err := p.index.facetValues(ctx, basis, facet, p.maxCardinality)

	var entry facetCacheEntry

	switch {
	case err == nil:
		entry.Values = values

	case errors.Is(err, errCardinalityExceeded):
		entry.Exceeded = true

	default:
		return nil, err
	}

	p.cache.set(ctx, key, &entry)

	return &entry, nil
}

// refresh refetches a facet's full list, replacing any cached copy
func (p *facetValueProvider) refresh(ctx context.Context, facet string, state queryState) (*facetCacheEntry, error) {
	basis := facetBasis(state, facet)
	return p.fetch(ctx, facetCacheKey(facet, basis), facet, basis)
}
