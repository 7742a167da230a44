package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	searchRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vlo_search_requests_total",
		Help: "Number of search requests",
	})
	facetValueRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vlo_facet_value_requests_total",
		Help: "Number of facet value list requests",
	})
	facetCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vlo_facet_cache_hits_total",
		Help: "Facet value lists served from cache",
	})
	facetCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vlo_facet_cache_misses_total",
		Help: "Facet value lists fetched from the index",
	})
	cardinalityFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vlo_facet_cardinality_fallbacks_total",
		Help: "Facet value requests answered with a top-N list",
	})
	indexRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vlo_index_retries_total",
		Help: "Retried index requests",
	})
	supersededRetrievals = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vlo_superseded_retrievals_total",
		Help: "Retrievals cancelled by a newer request for the same display context",
	})
	malformedDocuments = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vlo_malformed_documents_total",
		Help: "Documents skipped because they could not be mapped",
	})
)
