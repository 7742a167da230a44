package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/uvalib/virgo4-api/v4api"
)

type searchContext struct {
	svc    *serviceContext
	client *clientContext
}

type searchResponse struct {
	status int         // http status code
	data   interface{} // data to return as JSON
	err    error       // error, if any
}

func (s *searchContext) init(svc *serviceContext, c *clientContext) {
	s.svc = svc
	s.client = c
}

func (s *searchContext) log(format string, args ...interface{}) {
	s.client.log(format, args...)
}

func (s *searchContext) err(format string, args ...interface{}) {
	s.client.err(format, args...)
}

func (s *searchContext) elapsedMS() int64 {
	return int64(time.Since(s.client.start) / time.Millisecond)
}

func errorResponse(err error) searchResponse {
	return searchResponse{status: statusForError(err), err: err}
}

// retrieve runs fn as the latest retrieval of the display context key.
// the outcome of a retrieval that was overtaken by a newer one is dropped.
func (s *searchContext) retrieve(key string, fn func(ctx context.Context) error) error {
	ctx, ticket := s.svc.tracker.begin(s.client.context(), key)
	defer ticket.done()

	err := fn(ctx)

	if ticket.current() == false {
		s.log("[SEARCH] retrieval for [%s] superseded; discarding result", key)
		return errSuperseded
	}

	return err
}

// checkFacet rejects facets the service does not know about
func (s *searchContext) checkFacet(facet string) error {
	if _, ok := s.svc.maps.facets[facet]; ok == false {
		return &schemaError{kind: "facet", name: facet}
	}

	return nil
}

func (s *searchContext) checkState(state queryState) error {
	for _, facet := range state.Facets() {
		if err := s.checkFacet(facet); err != nil {
			return err
		}
	}

	return nil
}

func (s *searchContext) facetOrder(facet string) fieldValuesOrder {
	order, err := parseFieldValuesOrder(s.svc.maps.facets[facet].Order)
	if err != nil || s.svc.maps.facets[facet].Order == "" {
		return orderByCount
	}

	return order
}

func (s *searchContext) handleFacetsRequest() searchResponse {
	res := vloFacetList{
		DefaultSort: v4api.SortOrder{SortID: s.svc.config.DefaultSort.XID, Order: s.svc.config.DefaultSort.Order},
		MinOccurs:   s.svc.config.Service.MinOccurrenceThreshold,
	}

	for _, facet := range s.svc.facetNames() {
		res.Facets = append(res.Facets, vloFacetInfo{ID: facet, Name: s.client.localize(facet)})
	}

	for _, opt := range s.svc.sortOptions {
		opt.Label = s.client.localize(opt.ID)
		res.SortOptions = append(res.SortOptions, opt)
	}

	return searchResponse{status: http.StatusOK, data: res}
}

func (s *searchContext) populateFacet(facet string, state queryState, values []facetValueCount) v4api.Facet {
	f := v4api.Facet{
		ID:   facet,
		Name: s.client.localize(facet),
		Type: "checkbox",
	}

	sorted := append([]facetValueCount(nil), values...)
	sortFacetValues(sorted, s.facetOrder(facet))

	for _, v := range sorted {
		f.Buckets = append(f.Buckets, v4api.FacetBucket{Value: v.Value, Count: v.Count, Selected: state.IsSelected(facet, v.Value)})
	}

	// selected values with no remaining documents still need to be shown
	for _, value := range state.Selection(facet) {
		found := false
		for _, v := range values {
			if v.Value == value {
				found = true
				break
			}
		}

		if found == false {
			f.Buckets = append(f.Buckets, v4api.FacetBucket{Value: value, Count: 0, Selected: true})
		}
	}

	return f
}

func (s *searchContext) handleSearchRequest(req vloSearchRequest) searchResponse {
	searchRequests.Inc()

	state := req.State.toQueryState()

	if err := s.checkState(state); err != nil {
		return errorResponse(err)
	}

	facets := req.Facets
	if len(facets) == 0 {
		facets = s.svc.facetNames()
	}

	for _, facet := range facets {
		if err := s.checkFacet(facet); err != nil {
			return errorResponse(err)
		}
	}

	s.log("[SEARCH] query: [%s], filters: %v, facets: %v", state.Query(), req.State.Filters, facets)

	key := ""
	if req.Context != "" {
		key = req.Context + "/search"
	}

	var qr *queryResult

	err := s.retrieve(key, func(ctx context.Context) error {
		var err error
		qr, err = s.svc.index.search(ctx, state, facets)
		return err
	})

	if err != nil {
		s.err("search failed: %s", err.Error())
		return errorResponse(err)
	}

	res := vloSearchResponse{
		State:      stateToVlo(state),
		Bookmark:   bookmarkString(state),
		Pagination: v4api.Pagination{Start: qr.Start, Rows: len(qr.Documents), Total: qr.Total},
		Records:    []vloRecord{},
		Truncated:  qr.Truncated,
		Warnings:   qr.Warnings,
		StatusCode: http.StatusOK,
	}

	for _, doc := range qr.Documents {
		res.Records = append(res.Records, vloRecord{ID: doc.ID, Fields: doc.Fields, Links: s.recordLinks(doc.ID)})
	}

	for _, facet := range facets {
		res.Facets = append(res.Facets, s.populateFacet(facet, state, qr.Facets[facet]))
	}

	res.ElapsedMS = s.elapsedMS()

	return searchResponse{status: http.StatusOK, data: res}
}

func (s *searchContext) handleValuesRequest(facet string, req vloValuesRequest) searchResponse {
	facetValueRequests.Inc()

	if err := s.checkFacet(facet); err != nil {
		return errorResponse(err)
	}

	state := req.State.toQueryState()

	if err := s.checkState(state); err != nil {
		return errorResponse(err)
	}

	order, err := parseFieldValuesOrder(req.Order)
	if err != nil {
		return errorResponse(err)
	}

	window := valueWindow{
		Offset: restrictValue("offset", req.Window.Offset, 0, 0),
		Limit:  restrictValue("limit", req.Window.Limit, 0, 0),
	}

	s.log("[FACET] values: facet = [%s], filter = [%s], min = %d, order = %s, window = %d+%d", facet, req.Filter.Name, req.Filter.MinimalOccurrence, order, window.Offset, window.Limit)

	key := ""
	if req.Context != "" {
		key = fmt.Sprintf("%s/values/%s", req.Context, facet)
	}

	var vr *facetValuesResult

	err = s.retrieve(key, func(ctx context.Context) error {
		var err error
		vr, err = s.svc.provider.values(ctx, facet, state, req.Filter, order, window)
		return err
	})

	if err != nil {
		s.err("facet values failed: %s", err.Error())
		return errorResponse(err)
	}

	res := vloValuesResponse{
		Facet:               facet,
		Name:                s.client.localize(facet),
		Values:              vr.Values,
		Total:               vr.Total,
		CardinalityExceeded: vr.CardinalityExceeded,
		Selected:            state.Selection(facet),
		StatusCode:          http.StatusOK,
	}

	if req.GroupByLetter == true && order == orderByName {
		res.Groups = groupByFirstLetter(vr.Values)
	}

	res.ElapsedMS = s.elapsedMS()

	return searchResponse{status: http.StatusOK, data: res}
}

func (s *searchContext) handleSelectionRequest(req vloSelectionRequest, deselect bool) searchResponse {
	if err := s.checkFacet(req.Facet); err != nil {
		return errorResponse(err)
	}

	state := req.State.toQueryState()

	if err := s.checkState(state); err != nil {
		return errorResponse(err)
	}

	var next queryState

	if deselect == true {
		next = deselectValues(state, req.Facet, req.Values)
	} else {
		next = selectValues(state, req.Facet, req.Values)
	}

	changed := next.equal(state) == false

	s.log("[SELECT] facet = [%s], values = %v, deselect = %v, changed = %v", req.Facet, req.Values, deselect, changed)

	res := vloSelectionResponse{
		State:      stateToVlo(next),
		Bookmark:   bookmarkString(next),
		Changed:    changed,
		StatusCode: http.StatusOK,
	}

	return searchResponse{status: http.StatusOK, data: res}
}

func (s *searchContext) handleRecordRequest(id string) searchResponse {
	if id == "" {
		return errorResponse(fmt.Errorf("%w: missing docId", errInvalidQuery))
	}

	r, err := s.svc.transformer.transform(s.client.context(), id)
	if err != nil {
		s.err("record request failed: %s", err.Error())
		return errorResponse(err)
	}

	res := vloRecordResponse{
		Record:     r,
		Links:      s.recordLinks(id),
		StatusCode: http.StatusOK,
	}

	return searchResponse{status: http.StatusOK, data: res}
}

func (s *searchContext) handlePingRequest() searchResponse {
	if err := s.svc.index.ping(s.client.context()); err != nil {
		return errorResponse(err)
	}

	return searchResponse{status: http.StatusOK}
}
