package main

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/uvalib/virgo4-api/v4api"
)

// respond writes the response, turning errors into a status payload.
// index failures always read as "search temporarily unavailable".
func respond(c *gin.Context, resp searchResponse) {
	if resp.err != nil {
		c.JSON(resp.status, gin.H{"status_code": resp.status, "status_msg": messageForError(resp.err)})
		return
	}

	if resp.data == nil {
		c.Status(resp.status)
		return
	}

	c.JSON(resp.status, resp.data)
}

func (svc *serviceContext) newSearchContext(c *gin.Context) *searchContext {
	cl := clientContext{}
	cl.init(svc, c)

	s := searchContext{}
	s.init(svc, &cl)

	cl.logRequest()

	return &s
}

func (svc *serviceContext) facetsHandler(c *gin.Context) {
	s := svc.newSearchContext(c)

	resp := s.handleFacetsRequest()
	s.client.logResponse(resp)

	respond(c, resp)
}

func (svc *serviceContext) searchHandler(c *gin.Context) {
	s := svc.newSearchContext(c)

	var req vloSearchRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		resp := searchResponse{status: http.StatusBadRequest, err: fmt.Errorf("%w: %s", errInvalidQuery, err.Error())}
		s.client.logResponse(resp)
		respond(c, resp)
		return
	}

	resp := s.handleSearchRequest(req)
	s.client.logResponse(resp)

	respond(c, resp)
}

// bookmarkSearchHandler runs a search described entirely by the url
func (svc *serviceContext) bookmarkSearchHandler(c *gin.Context) {
	s := svc.newSearchContext(c)

	resp := s.bookmarkSearchRequest(c)
	s.client.logResponse(resp)

	respond(c, resp)
}

func (s *searchContext) bookmarkSearchRequest(c *gin.Context) searchResponse {
	query := c.Request.URL.Query()

	state, err := decodeBookmark(query)
	if err != nil {
		return errorResponse(err)
	}

	var params searchQueryParams
	if err := bookmarkDecoder.Decode(&params, query); err != nil {
		return errorResponse(fmt.Errorf("%w: %s", errInvalidQuery, err.Error()))
	}

	req := vloSearchRequest{State: stateToVlo(state), Facets: params.Facets, Context: params.Context}

	return s.handleSearchRequest(req)
}

func (svc *serviceContext) valuesHandler(c *gin.Context) {
	s := svc.newSearchContext(c)

	var req vloValuesRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		resp := searchResponse{status: http.StatusBadRequest, err: fmt.Errorf("%w: %s", errInvalidFilter, err.Error())}
		s.client.logResponse(resp)
		respond(c, resp)
		return
	}

	resp := s.handleValuesRequest(c.Param("facet"), req)
	s.client.logResponse(resp)

	respond(c, resp)
}

// bookmarkValuesHandler serves value lists addressed as
// /values/<facet>?<bookmark>&filter=..&facetMinOccurs=..
func (svc *serviceContext) bookmarkValuesHandler(c *gin.Context) {
	s := svc.newSearchContext(c)

	resp := s.bookmarkValuesRequest(c)
	s.client.logResponse(resp)

	respond(c, resp)
}

func (s *searchContext) bookmarkValuesRequest(c *gin.Context) searchResponse {
	query := c.Request.URL.Query()

	state, err := decodeBookmark(query)
	if err != nil {
		return errorResponse(err)
	}

	var params valuesQueryParams
	if err := bookmarkDecoder.Decode(&params, query); err != nil {
		return errorResponse(fmt.Errorf("%w: %s", errInvalidFilter, err.Error()))
	}

	// bookmarks carry the result sort in "sort"; a value order there is taken as valueSort
	if sortID := state.Sort().SortID; params.Sort == "" && s.svc.maps.sortFields[sortID] == "" {
		if _, err := parseFieldValuesOrder(sortID); err == nil {
			params.Sort = sortID
			state = state.withSort(v4api.SortOrder{})
		}
	}

	req := vloValuesRequest{
		State:         stateToVlo(state),
		Filter:        fieldValuesFilter{Name: params.Filter, MinimalOccurrence: params.MinOccurs},
		Order:         params.Sort,
		Window:        valueWindow{Offset: params.Offset, Limit: params.Limit},
		Context:       params.Context,
		GroupByLetter: params.Group,
	}

	return s.handleValuesRequest(c.Param("facet"), req)
}

func (svc *serviceContext) selectionHandler(deselect bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		s := svc.newSearchContext(c)

		var req vloSelectionRequest

		if err := c.ShouldBindJSON(&req); err != nil {
			resp := searchResponse{status: http.StatusBadRequest, err: fmt.Errorf("%w: %s", errInvalidQuery, err.Error())}
			s.client.logResponse(resp)
			respond(c, resp)
			return
		}

		resp := s.handleSelectionRequest(req, deselect)
		s.client.logResponse(resp)

		respond(c, resp)
	}
}

func (svc *serviceContext) recordHandler(c *gin.Context) {
	s := svc.newSearchContext(c)

	resp := s.handleRecordRequest(c.Query("docId"))
	s.client.logResponse(resp)

	respond(c, resp)
}

func (svc *serviceContext) ignoreHandler(c *gin.Context) {
}

func (svc *serviceContext) versionHandler(c *gin.Context) {
	c.JSON(http.StatusOK, svc.version)
}

func (svc *serviceContext) healthCheckHandler(c *gin.Context) {
	s := svc.newSearchContext(c)

	ping := s.handlePingRequest()

	// build response

	internalServiceError := false

	type hcResp struct {
		Healthy bool   `json:"healthy"`
		Message string `json:"message,omitempty"`
	}

	hcSolr := hcResp{Healthy: true}
	if ping.err != nil {
		internalServiceError = true
		hcSolr = hcResp{Healthy: false, Message: ping.err.Error()}
	}

	hcMap := make(map[string]hcResp)
	hcMap["solr"] = hcSolr

	if svc.cache != nil {
		hcCache := hcResp{Healthy: true, Message: svc.cache.name()}
		if err := svc.cache.ping(s.client.context()); err != nil {
			internalServiceError = true
			hcCache = hcResp{Healthy: false, Message: err.Error()}
		}

		hcMap["cache"] = hcCache
	}

	hcStatus := http.StatusOK
	if internalServiceError == true {
		hcStatus = http.StatusInternalServerError
	}

	c.JSON(hcStatus, hcMap)
}
