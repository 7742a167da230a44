package main

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
)

// filtering and ordering of facet value lists.  nothing in here touches the index.

type facetValueCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

type fieldValuesOrder string

const (
	orderByName  fieldValuesOrder = "name"
	orderByCount fieldValuesOrder = "count"
)

func parseFieldValuesOrder(s string) (fieldValuesOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "name", "index", "alpha":
		// name order is what the full value listing always started out with
		return orderByName, nil

	case "count":
		return orderByCount, nil
	}

	return "", fmt.Errorf("%w: unsupported value order [%s]", errInvalidFilter, s)
}

// solrSort returns the equivalent Solr terms facet sort
func (o fieldValuesOrder) solrSort() string {
	if o == orderByCount {
		return "count desc"
	}

	return "index asc"
}

type fieldValuesFilter struct {
	Name              string `json:"name,omitempty"`
	MinimalOccurrence int    `json:"min_occurrence,omitempty"`
	caseSensitive     bool
}

func (f fieldValuesFilter) validate() error {
	if f.MinimalOccurrence < 0 {
		return fmt.Errorf("%w: negative minimal occurrence %d", errInvalidFilter, f.MinimalOccurrence)
	}

	return nil
}

func (f fieldValuesFilter) normalized() fieldValuesFilter {
	if f.MinimalOccurrence < 0 {
		log.Printf("[FACET] clamping negative minimal occurrence %d to 0", f.MinimalOccurrence)
		f.MinimalOccurrence = 0
	}

	return f
}

func (f fieldValuesFilter) matcher() func(string) bool {
	if f.Name == "" {
		return func(string) bool { return true }
	}

	if f.caseSensitive == true {
		return func(value string) bool {
			return strings.Contains(value, f.Name)
		}
	}

	// a caser is stateful, so each matcher gets its own
	folder := cases.Fold()
	pattern := folder.String(f.Name)

	return func(value string) bool {
		return strings.Contains(folder.String(value), pattern)
	}
}

// applyFieldValuesFilter returns a new slice holding the values that pass the
// filter, in the requested order.  the input is left untouched.
func applyFieldValuesFilter(values []facetValueCount, filter fieldValuesFilter, order fieldValuesOrder) []facetValueCount {
	filter = filter.normalized()
	matches := filter.matcher()

	res := make([]facetValueCount, 0, len(values))

	for _, v := range values {
		if v.Count < filter.MinimalOccurrence {
			continue
		}

		if matches(v.Value) == false {
			continue
		}

		res = append(res, v)
	}

	sortFacetValues(res, order)

	return res
}

func sortFacetValues(values []facetValueCount, order fieldValuesOrder) {
	switch order {
	case orderByCount:
		sort.SliceStable(values, func(i, j int) bool {
			if values[i].Count != values[j].Count {
				return values[i].Count > values[j].Count
			}

			// items with the same count get sorted by name for consistency
			return values[i].Value < values[j].Value
		})

	default:
		sort.SliceStable(values, func(i, j int) bool {
			return values[i].Value < values[j].Value
		})
	}
}

type valueWindow struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"` // <= 0 means everything from offset on
}

func windowValues(values []facetValueCount, w valueWindow) []facetValueCount {
	offset := w.Offset
	if offset < 0 {
		offset = 0
	}

	if offset >= len(values) {
		return []facetValueCount{}
	}

	end := len(values)
	if w.Limit > 0 && offset+w.Limit < end {
		end = offset + w.Limit
	}

	return values[offset:end]
}

type letterGroup struct {
	Letter string            `json:"letter"`
	Values []facetValueCount `json:"values"`
}

// groupByFirstLetter splits a name-ordered list into runs sharing the same
// upper-cased first letter.  values not starting with a letter go under "#".
func groupByFirstLetter(values []facetValueCount) []letterGroup {
	var groups []letterGroup

	for _, v := range values {
		letter := "#"

		if r, _ := utf8.DecodeRuneInString(v.Value); unicode.IsLetter(r) {
			letter = string(unicode.ToUpper(r))
		}

		if n := len(groups); n > 0 && groups[n-1].Letter == letter {
			groups[n-1].Values = append(groups[n-1].Values, v)
			continue
		}

		groups = append(groups, letterGroup{Letter: letter, Values: []facetValueCount{v}})
	}

	return groups
}
