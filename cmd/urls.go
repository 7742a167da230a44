package main

import (
	"net/url"
	"strings"
)

// getGenericURL substitutes the (path escaped) id into the template.
// templates without the pattern yield no url.
func getGenericURL(t serviceConfigURLTemplate, id string) string {
	if t.Pattern == "" || strings.Contains(t.Template, t.Pattern) == false {
		return ""
	}

	return strings.ReplaceAll(t.Template, t.Pattern, url.PathEscape(id))
}

func (s *searchContext) getRecordURL(id string) string {
	return getGenericURL(s.svc.config.Service.URLTemplates.Record, id)
}

func (s *searchContext) getCMDIURL(id string) string {
	return getGenericURL(s.svc.config.Service.URLTemplates.CMDI, id)
}

// recordLinks returns the configured links for a record, if any
func (s *searchContext) recordLinks(id string) map[string]string {
	links := make(map[string]string)

	if u := s.getRecordURL(id); u != "" {
		links["record"] = u
	}

	if u := s.getCMDIURL(id); u != "" {
		links["cmdi"] = u
	}

	if len(links) == 0 {
		return nil
	}

	return links
}
