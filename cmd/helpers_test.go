package main

import (
	"context"
	"sort"
	"sync"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

// fakeIndex serves canned facet values and documents
type fakeIndex struct {
	mu        sync.Mutex
	values    map[string][]facetValueCount
	docs      []vloDocument
	total     int
	err       error
	calls     int
	topCalls  int
	release   chan struct{} // when set, facetValues waits for it
	lastState queryState
	lastTopN  int
	lastMin   int
}

func newFakeIndex(values map[string][]facetValueCount) *fakeIndex {
	return &fakeIndex{values: values}
}

func (f *fakeIndex) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeIndex) search(ctx context.Context, state queryState, facets []string) (*queryResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}

	f.lastState = state

	qr := queryResult{
		Documents: f.docs,
		Total:     f.total,
		Start:     state.Start(),
		Facets:    make(map[string][]facetValueCount),
	}

	for _, facet := range facets {
		qr.Facets[facet] = append([]facetValueCount(nil), f.values[facet]...)
	}

	return &qr, nil
}

func (f *fakeIndex) facetValues(ctx context.Context, state queryState, facet string, maxCardinality int) ([]facetValueCount, error) {
	f.mu.Lock()
	f.calls++
	f.lastState = state
	release := f.release
	err := f.err
	values, ok := f.values[facet]
	f.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err != nil {
		return nil, err
	}

	if ok == false {
		return nil, &schemaError{kind: "facet", name: facet}
	}

	if maxCardinality > 0 && len(values) > maxCardinality {
		return nil, errCardinalityExceeded
	}

	return append([]facetValueCount(nil), values...), nil
}

func (f *fakeIndex) topFacetValues(ctx context.Context, state queryState, facet string, n int, order fieldValuesOrder, minCount int) ([]facetValueCount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.topCalls++
	f.lastTopN = n
	f.lastMin = minCount

	if f.err != nil {
		return nil, f.err
	}

	var res []facetValueCount
	for _, v := range f.values[facet] {
		if v.Count >= minCount {
			res = append(res, v)
		}
	}

	sortFacetValues(res, order)

	if len(res) > n {
		res = res[:n]
	}

	return res, nil
}

func (f *fakeIndex) document(ctx context.Context, id string) (*vloDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}

	for _, doc := range f.docs {
		if doc.ID == id {
			d := doc
			return &d, nil
		}
	}

	return nil, errDocumentNotFound
}

func (f *fakeIndex) ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.err
}

func languageValues() []facetValueCount {
	return []facetValueCount{
		{Value: "en", Count: 120},
		{Value: "de", Count: 80},
		{Value: "fr", Count: 80},
	}
}

func testConfig() *serviceConfig {
	return &serviceConfig{
		Service: serviceConfigService{
			Port:    "8080",
			NameXID: "ServiceName",
		},
		Solr: serviceConfigSolr{
			Host:           "http://localhost:8983/solr",
			Core:           "vlo",
			Handler:        "select",
			IDField:        "id",
			MaxCardinality: 100,
			FallbackTopN:   2,
		},
		Cache: serviceConfigCache{Type: "memory"},
		Facets: []serviceConfigFacet{
			{XID: "language", Field: "languageCode", Order: "count"},
			{XID: "collection", Field: "collection", Order: "name"},
		},
		SortOptions: []serviceConfigSortOption{
			{XID: "SortRelevance", Field: "score"},
			{XID: "SortName", Field: "_nameSort"},
		},
		DefaultSort: serviceConfigDefaultSort{XID: "SortRelevance", Order: "desc"},
	}
}

func testBundle() *i18n.Bundle {
	bundle := i18n.NewBundle(language.English)

	bundle.AddMessages(language.English,
		&i18n.Message{ID: "ServiceName", Other: "Virtual Language Observatory"},
		&i18n.Message{ID: "language", Other: "Language"},
		&i18n.Message{ID: "collection", Other: "Collection"},
		&i18n.Message{ID: "SortRelevance", Other: "Relevance"},
		&i18n.Message{ID: "SortName", Other: "Name"},
	)

	bundle.AddMessages(language.Dutch,
		&i18n.Message{ID: "ServiceName", Other: "Virtual Language Observatory"},
		&i18n.Message{ID: "language", Other: "Taal"},
		&i18n.Message{ID: "collection", Other: "Collectie"},
		&i18n.Message{ID: "SortRelevance", Other: "Relevantie"},
		&i18n.Message{ID: "SortName", Other: "Naam"},
	)

	return bundle
}

// newTestService wires a service around idx without touching the network
func newTestService(cfg *serviceConfig, idx documentIndex) *serviceContext {
	svc := newServiceContext(cfg)

	svc.translations.bundle = testBundle()
	svc.index = idx

	cache, err := newFacetValueCache(cfg.Cache)
	if err != nil {
		panic(err)
	}

	svc.cache = cache

	svc.initProvider()
	svc.initTransformer()

	return svc
}

func valueNames(values []facetValueCount) []string {
	names := []string{}
	for _, v := range values {
		names = append(names, v.Value)
	}
	return names
}

func isSortedByName(values []facetValueCount) bool {
	return sort.SliceIsSorted(values, func(i, j int) bool {
		return values[i].Value < values[j].Value
	})
}
