package main

import (
	"sort"

	"github.com/uvalib/virgo4-api/v4api"
)

// queryState is the live search context.  it is a value: every transformation
// returns a new state and never touches the selection map of the original, so
// a state can be handed to an in-flight query while the caller moves on.
type queryState struct {
	query     string
	selection map[string][]string // facet -> sorted, unique, never empty
	sort      v4api.SortOrder
	start     int
	rows      int
}

func newQueryState(query string, selection map[string][]string) queryState {
	q := queryState{query: query, selection: make(map[string][]string)}

	for facet, values := range selection {
		if set := normalizeValues(values); len(set) > 0 {
			q.selection[facet] = set
		}
	}

	return q
}

func normalizeValues(values []string) []string {
	seen := make(map[string]bool)
	var res []string

	for _, v := range values {
		if v == "" || seen[v] == true {
			continue
		}

		seen[v] = true
		res = append(res, v)
	}

	sort.Strings(res)

	return res
}

func (q queryState) Query() string {
	return q.query
}

func (q queryState) Sort() v4api.SortOrder {
	return q.sort
}

func (q queryState) Start() int {
	return q.start
}

func (q queryState) Rows() int {
	return q.rows
}

// Facets returns the names of all facets with a selection, sorted
func (q queryState) Facets() []string {
	facets := make([]string, 0, len(q.selection))

	for facet := range q.selection {
		facets = append(facets, facet)
	}

	sort.Strings(facets)

	return facets
}

// Selection returns a copy of the values selected for the facet
func (q queryState) Selection(facet string) []string {
	values := q.selection[facet]

	if len(values) == 0 {
		return nil
	}

	return append([]string(nil), values...)
}

func (q queryState) IsSelected(facet, value string) bool {
	for _, v := range q.selection[facet] {
		if v == value {
			return true
		}
	}

	return false
}

func (q queryState) clone() queryState {
	c := q
	c.selection = make(map[string][]string, len(q.selection))

	for facet, values := range q.selection {
		c.selection[facet] = append([]string(nil), values...)
	}

	return c
}

func (q queryState) withQuery(query string) queryState {
	c := q.clone()
	c.query = query
	c.start = 0
	return c
}

func (q queryState) withSort(sort v4api.SortOrder) queryState {
	c := q.clone()
	c.sort = sort
	return c
}

func (q queryState) withPage(start, rows int) queryState {
	c := q.clone()
	c.start = start
	c.rows = rows
	return c
}

// withoutFacet drops the facet's own selection (the basis for its drill-down counts)
func (q queryState) withoutFacet(facet string) queryState {
	c := q.clone()
	delete(c.selection, facet)
	return c
}

func (q queryState) equal(o queryState) bool {
	if q.query != o.query || q.sort != o.sort || q.start != o.start || q.rows != o.rows {
		return false
	}

	if len(q.selection) != len(o.selection) {
		return false
	}

	for facet, values := range q.selection {
		other, ok := o.selection[facet]
		if ok == false || len(other) != len(values) {
			return false
		}

		for i := range values {
			if values[i] != other[i] {
				return false
			}
		}
	}

	return true
}

// selectValues unions values into the facet's selection.  values already
// selected are ignored; if nothing changes the state comes back as it was.
// otherwise the result list starts again at the first page.
func selectValues(state queryState, facet string, values []string) queryState {
	c := state.clone()

	merged := normalizeValues(append(c.Selection(facet), values...))

	if len(merged) == len(state.selection[facet]) {
		return c
	}

	c.selection[facet] = merged
	c.start = 0

	return c
}

// deselectValues removes values from the facet's selection, dropping the facet
// entirely once nothing is left.  unknown values are ignored.
func deselectValues(state queryState, facet string, values []string) queryState {
	c := state.clone()

	current := c.selection[facet]
	if len(current) == 0 {
		return c
	}

	remove := make(map[string]bool)
	for _, v := range values {
		remove[v] = true
	}

	var kept []string
	for _, v := range current {
		if remove[v] == false {
			kept = append(kept, v)
		}
	}

	if len(kept) == len(current) {
		return c
	}

	if len(kept) == 0 {
		delete(c.selection, facet)
	} else {
		c.selection[facet] = kept
	}

	c.start = 0

	return c
}
