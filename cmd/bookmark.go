package main

import (
	"fmt"
	"log"
	"net/url"
	"strings"

	"github.com/gorilla/schema"
	"github.com/uvalib/virgo4-api/v4api"
)

// bookmark (url query) encoding of a query state.  selections travel as
// repeated "fq=facet:value" parameters; facet names never contain a colon,
// so values are free to.

type bookmarkParams struct {
	Query   string   `schema:"q,omitempty"`
	Filters []string `schema:"fq,omitempty"`
	SortID  string   `schema:"sort,omitempty"`
	Order   string   `schema:"order,omitempty"`
	Start   int      `schema:"start,omitempty"`
	Rows    int      `schema:"rows,omitempty"`
}

var (
	bookmarkEncoder = schema.NewEncoder()
	bookmarkDecoder = newBookmarkDecoder()
)

func newBookmarkDecoder() *schema.Decoder {
	d := schema.NewDecoder()
	// bookmark parameters share the query string with view parameters
	d.IgnoreUnknownKeys(true)
	return d
}

func encodeBookmark(state queryState) url.Values {
	params := bookmarkParams{
		Query:  state.Query(),
		SortID: state.Sort().SortID,
		Order:  state.Sort().Order,
		Start:  state.Start(),
		Rows:   state.Rows(),
	}

	for _, facet := range state.Facets() {
		for _, value := range state.Selection(facet) {
			params.Filters = append(params.Filters, facet+":"+value)
		}
	}

	dst := url.Values{}

	// encoding only fails for unsupported field types, which bookmarkParams does not have
	if err := bookmarkEncoder.Encode(params, dst); err != nil {
		log.Printf("ERROR: bookmark encoding failed: %s", err.Error())
	}

	return dst
}

func decodeBookmark(src url.Values) (queryState, error) {
	var params bookmarkParams

	if err := bookmarkDecoder.Decode(&params, src); err != nil {
		return queryState{}, fmt.Errorf("%w: %s", errInvalidQuery, err.Error())
	}

	selection := make(map[string][]string)

	for _, fq := range params.Filters {
		facet, value, found := strings.Cut(fq, ":")

		if found == false || facet == "" || value == "" {
			return queryState{}, fmt.Errorf("%w: malformed facet filter [%s]", errInvalidQuery, fq)
		}

		selection[facet] = append(selection[facet], value)
	}

	state := newQueryState(params.Query, selection)
	state = state.withSort(v4api.SortOrder{SortID: params.SortID, Order: params.Order})
	state = state.withPage(params.Start, params.Rows)

	return state, nil
}

func bookmarkString(state queryState) string {
	return encodeBookmark(state).Encode()
}
