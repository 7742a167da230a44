package main

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/uvalib/virgo4-parser/v4parser"
)

// advanced queries look like: keyword:{language} AND title:{corpus}
var advancedQueryPattern = regexp.MustCompile(`[A-Za-z_]+\s*:\s*\{`)

// convertQuery turns free text into a solr query.  plain text is passed
// through for the configured query parser; advanced syntax is converted.
func convertQuery(query string) (string, error) {
	q := strings.TrimSpace(query)

	if q == "" || q == "*" {
		return "*:*", nil
	}

	if advancedQueryPattern.MatchString(q) == false {
		return q, nil
	}

	var parser v4parser.SolrParser

	solrQuery, err := v4parser.ConvertToSolrWithParserAndTimeout(&parser, q, 10)
	if err != nil {
		return "", fmt.Errorf("%w: %s", errInvalidQuery, err.Error())
	}

	return solrQuery, nil
}
