package main

import (
	"fmt"
	"strings"
)

// functions that map query states into solr requests

var solrPhraseEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func solrPhrase(value string) string {
	return `"` + solrPhraseEscaper.Replace(value) + `"`
}

// facetTag names the filter query holding a facet's selection, so that the
// facet's own terms request can exclude it
func facetTag(facet string) string {
	return "f_" + facet
}

// facetField resolves a public facet name to its solr field.  names that are
// not configured, or whose field the index schema does not define, are rejected
// before anything is sent to solr.
func (s *solrIndex) facetField(facet string) (string, error) {
	field, ok := s.facetFields[facet]
	if ok == false {
		return "", &schemaError{kind: "facet", name: facet}
	}

	if s.hasField(field) == false {
		return "", &schemaError{kind: "field", name: field}
	}

	return field, nil
}

// buildFilters returns one tagged filter query per facet with a selection.
// values within a facet are OR'ed; facets are AND'ed by solr itself.
func (s *solrIndex) buildFilters(state queryState) ([]string, error) {
	var filters []string

	for _, facet := range state.Facets() {
		field, err := s.facetField(facet)
		if err != nil {
			return nil, err
		}

		var phrases []string
		for _, value := range state.Selection(facet) {
			phrases = append(phrases, solrPhrase(value))
		}

		fq := fmt.Sprintf(`{!tag=%s}%s:(%s)`, facetTag(facet), field, strings.Join(phrases, " OR "))

		filters = append(filters, fq)
	}

	return filters, nil
}

func (s *solrIndex) termsFacet(facet, field string, limit int, order fieldValuesOrder, minCount int) *solrRequestFacet {
	f := solrRequestFacet{
		Type:     "terms",
		Field:    field,
		Sort:     order.solrSort(),
		Limit:    limit,
		MinCount: minCount,
	}

	// counts for a facet ignore its own selection
	f.Domain = &solrRequestFacetDomain{ExcludeTags: []string{facetTag(facet)}}

	return &f
}

func (s *solrIndex) solrSort(state queryState) (string, error) {
	sort := state.Sort()

	if sort.SortID == "" && sort.Order == "" {
		sort = s.defaultSort
	}

	field, ok := s.sortFields[sort.SortID]
	if ok == false {
		return "", fmt.Errorf("%w: unsupported sort [%s]", errInvalidQuery, sort.SortID)
	}

	if isValidSortOrder(sort.Order) == false {
		return "", fmt.Errorf("%w: unsupported sort order [%s]", errInvalidQuery, sort.Order)
	}

	return fmt.Sprintf("%s %s", field, sort.Order), nil
}

// requestWithDefaults fills out everything but paging and facets
func (s *solrIndex) requestWithDefaults(state queryState) (*solrRequestJSON, error) {
	var req solrRequestJSON
	var err error

	if req.Params.Q, err = convertQuery(state.Query()); err != nil {
		return nil, err
	}

	if req.Params.Sort, err = s.solrSort(state); err != nil {
		return nil, err
	}

	filters, err := s.buildFilters(state)
	if err != nil {
		return nil, err
	}

	req.Params.Qt = s.params.Qt
	req.Params.DefType = s.params.DefType
	req.Params.Fl = nonemptyValues(s.params.Fl)
	req.Params.Fq = append(nonemptyValues(s.params.Fq), filters...)

	return &req, nil
}

// pageRows applies the default and maximum row counts.  the returned flag
// reports whether the requested page had to be cut down.
func (s *solrIndex) pageRows(rows int) (int, bool) {
	if rows <= 0 {
		rows = s.defaultRows
	}

	if s.maxRows > 0 && rows > s.maxRows {
		return s.maxRows, true
	}

	return rows, false
}
