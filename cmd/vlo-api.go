package main

import (
	"github.com/uvalib/virgo4-api/v4api"
)

// json form of a query state as exchanged with clients
type vloState struct {
	Query      string              `json:"query"`
	Filters    map[string][]string `json:"filters,omitempty"`
	Sort       v4api.SortOrder     `json:"sort"`
	Pagination v4api.Pagination    `json:"pagination"`
}

func (v vloState) toQueryState() queryState {
	state := newQueryState(v.Query, v.Filters)
	state = state.withSort(v.Sort)
	state = state.withPage(v.Pagination.Start, v.Pagination.Rows)

	return state
}

func stateToVlo(state queryState) vloState {
	v := vloState{
		Query:      state.Query(),
		Filters:    make(map[string][]string),
		Sort:       state.Sort(),
		Pagination: v4api.Pagination{Start: state.Start(), Rows: state.Rows()},
	}

	for _, facet := range state.Facets() {
		v.Filters[facet] = state.Selection(facet)
	}

	return v
}

type vloFacetInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type vloSortOption struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

type vloFacetList struct {
	Facets      []vloFacetInfo  `json:"facets"`
	SortOptions []vloSortOption `json:"sort_options,omitempty"`
	DefaultSort v4api.SortOrder `json:"default_sort"`
	MinOccurs   int             `json:"min_occurrence_threshold"`
}

type vloSearchRequest struct {
	State   vloState `json:"state"`
	Facets  []string `json:"facets,omitempty"` // facets to count; all configured ones when empty
	Context string   `json:"context,omitempty"`
}

type vloRecord struct {
	ID     string                 `json:"id"`
	Fields map[string]interface{} `json:"fields,omitempty"`
	Links  map[string]string      `json:"links,omitempty"`
}

type vloSearchResponse struct {
	State         vloState         `json:"state"`
	Bookmark      string           `json:"bookmark"`
	Pagination    v4api.Pagination `json:"pagination"`
	Records       []vloRecord      `json:"records"`
	Facets        []v4api.Facet    `json:"facets,omitempty"`
	Truncated     bool             `json:"truncated"`
	Warnings      []string         `json:"warnings,omitempty"`
	ElapsedMS     int64            `json:"elapsed_ms"`
	StatusCode    int              `json:"status_code"`
	StatusMessage string           `json:"status_msg,omitempty"`
}

type vloValuesRequest struct {
	State         vloState          `json:"state"`
	Filter        fieldValuesFilter `json:"filter"`
	Order         string            `json:"order,omitempty"`
	Window        valueWindow       `json:"window"`
	Context       string            `json:"context,omitempty"`
	GroupByLetter bool              `json:"group_by_letter,omitempty"`
}

type vloValuesResponse struct {
	Facet               string            `json:"facet"`
	Name                string            `json:"name"`
	Values              []facetValueCount `json:"values"`
	Total               int               `json:"total"`
	CardinalityExceeded bool              `json:"cardinality_exceeded"`
	Selected            []string          `json:"selected,omitempty"`
	Groups              []letterGroup     `json:"groups,omitempty"`
	ElapsedMS           int64             `json:"elapsed_ms"`
	StatusCode          int               `json:"status_code"`
	StatusMessage       string            `json:"status_msg,omitempty"`
}

type vloSelectionRequest struct {
	State  vloState `json:"state"`
	Facet  string   `json:"facet"`
	Values []string `json:"values"`
}

type vloSelectionResponse struct {
	State         vloState `json:"state"`
	Bookmark      string   `json:"bookmark"`
	Changed       bool     `json:"changed"`
	StatusCode    int      `json:"status_code"`
	StatusMessage string   `json:"status_msg,omitempty"`
}

type vloRecordResponse struct {
	Record        *renderable       `json:"record,omitempty"`
	Links         map[string]string `json:"links,omitempty"`
	StatusCode    int               `json:"status_code"`
	StatusMessage string            `json:"status_msg,omitempty"`
}

// query string parameters accepted next to a bookmark

type searchQueryParams struct {
	Facets  []string `schema:"facets"`
	Context string   `schema:"context"`
}

type valuesQueryParams struct {
	Filter    string `schema:"filter"`
	MinOccurs int    `schema:"facetMinOccurs"`
	Sort      string `schema:"valueSort"`
	Offset    int    `schema:"offset"`
	Limit     int    `schema:"limit"`
	Context   string `schema:"context"`
	Group     bool   `schema:"group"`
}
