package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/mitchellh/mapstructure"
	"github.com/uvalib/virgo4-api/v4api"
)

type solrIndex struct {
	client      *http.Client
	url         string
	schemaURL   string
	params      serviceConfigSolrParams
	idField     string
	defaultRows int
	maxRows     int
	retries     uint64
	readTimeout time.Duration
	facetFields map[string]string // facet name -> solr field
	sortFields  map[string]string // sort xid -> solr field
	defaultSort v4api.SortOrder
	newBackOff  func() backoff.BackOff

	schemaMu sync.RWMutex
	schema   map[string]solrSchemaField // nil until loaded
}

func newSolrIndex(cfg *serviceConfig) *solrIndex {
	connTimeout := integerWithMinimum(cfg.Solr.ConnTimeout, 5)
	readTimeout := integerWithMinimum(cfg.Solr.ReadTimeout, 5)

	// per-attempt timeouts come from the request context, so the client
	// itself only bounds connection setup
	solrClient := &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   time.Duration(connTimeout) * time.Second,
				KeepAlive: 60 * time.Second,
			}).DialContext,
			MaxIdleConns:        100, // we are hitting one solr host, so
			MaxIdleConnsPerHost: 100, // these two values can be the same
			IdleConnTimeout:     90 * time.Second,
		},
	}

	s := solrIndex{
		client:      solrClient,
		url:         fmt.Sprintf("%s/%s/%s", cfg.Solr.Host, cfg.Solr.Core, cfg.Solr.Handler),
		params:      cfg.Solr.Params,
		idField:     cfg.Solr.IDField,
		defaultRows: cfg.Service.DefaultRows,
		maxRows:     cfg.Service.MaxRows,
		readTimeout: time.Duration(readTimeout) * time.Second,
		facetFields: make(map[string]string),
		sortFields:  make(map[string]string),
		defaultSort: v4api.SortOrder{SortID: cfg.DefaultSort.XID, Order: cfg.DefaultSort.Order},
		newBackOff:  defaultBackOff,
	}

	if cfg.Solr.Retries > 0 {
		s.retries = uint64(cfg.Solr.Retries)
	}

	if cfg.Solr.SchemaHandler != "" {
		s.schemaURL = fmt.Sprintf("%s/%s/%s", cfg.Solr.Host, cfg.Solr.Core, cfg.Solr.SchemaHandler)
	}

	if s.idField == "" {
		s.idField = "id"
	}

	if s.defaultRows <= 0 {
		s.defaultRows = 10
	}

	for _, facet := range cfg.Facets {
		s.facetFields[facet.XID] = facet.Field
	}

	for _, opt := range cfg.SortOptions {
		s.sortFields[opt.XID] = opt.Field
	}

	return &s
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	return b
}

func (s *solrIndex) hasField(field string) bool {
	s.schemaMu.RLock()
	defer s.schemaMu.RUnlock()

	// without a schema we trust the configuration
	if s.schema == nil {
		return true
	}

	_, ok := s.schema[field]

	return ok
}

// loadSchema fetches the index field list, which is then used to reject
// unknown fields up front
func (s *solrIndex) loadSchema(ctx context.Context) error {
	if s.schemaURL == "" {
		return errors.New("no schema handler configured")
	}

	cl := clientFrom(ctx)

	var res solrSchemaResponse

	op := func() error {
		body, err := s.attempt(ctx, "GET", s.schemaURL, nil)
		if err != nil {
			return err
		}

		if err := json.Unmarshal(body, &res); err != nil {
			return fmt.Errorf("failed to decode solr schema response: %w", err)
		}

		return nil
	}

	if err := s.withRetries(ctx, op); err != nil {
		return err
	}

	schema := make(map[string]solrSchemaField)
	for _, field := range res.Fields {
		schema[field.Name] = field
	}

	s.schemaMu.Lock()
	s.schema = schema
	s.schemaMu.Unlock()

	cl.log("[SOLR] schema loaded: %d fields", len(schema))

	return nil
}

// withRetries runs op with bounded exponential backoff.  permanent errors and
// cancellation by the caller end the loop early.  anything else that is still
// failing at the end means the index is unavailable.
func (s *solrIndex) withRetries(ctx context.Context, op backoff.Operation) error {
	cl := clientFrom(ctx)

	notify := func(err error, wait time.Duration) {
		indexRetries.Inc()
		cl.log("[SOLR] retrying in %s after error: %s", wait, err.Error())
	}

	b := backoff.WithContext(backoff.WithMaxRetries(s.newBackOff(), s.retries), ctx)

	err := backoff.RetryNotify(op, b, notify)

	switch {
	case err == nil:
		return nil

	case errors.Is(ctx.Err(), context.Canceled):
		return ctx.Err()
	}

	var se *schemaError
	if errors.As(err, &se) || errors.Is(err, errInvalidQuery) || errors.Is(err, errDocumentNotFound) {
		return err
	}

	return &indexUnavailableError{err: err}
}

// attempt performs a single request under its own timeout.  failures that
// retrying cannot fix are marked permanent.
func (s *solrIndex) attempt(ctx context.Context, method, url string, body []byte) ([]byte, error) {
	cl := clientFrom(ctx)

	actx, cancel := context.WithTimeout(ctx, s.readTimeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, reqErr := http.NewRequestWithContext(actx, method, url, reader)
	if reqErr != nil {
		cl.err("NewRequest() failed: %s", reqErr.Error())
		return nil, backoff.Permanent(fmt.Errorf("failed to create solr request: %w", reqErr))
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	res, resErr := s.client.Do(req)
	elapsedMS := int64(time.Since(start) / time.Millisecond)

	// external service failure logging (scenario 1)

	if resErr != nil {
		status := http.StatusBadRequest
		errMsg := resErr.Error()
		if errors.Is(resErr, context.DeadlineExceeded) || strings.Contains(errMsg, "Timeout") {
			status = http.StatusRequestTimeout
			errMsg = fmt.Sprintf("%s timed out", url)
		} else if strings.Contains(errMsg, "connection refused") {
			status = http.StatusServiceUnavailable
			errMsg = fmt.Sprintf("%s refused connection", url)
		}

		cl.err("Failed response from %s %s - %d:%s. Elapsed Time: %d (ms)", method, url, status, errMsg, elapsedMS)
		return nil, fmt.Errorf("failed to receive solr response: %w", resErr)
	}

	defer res.Body.Close()

	resBody, readErr := io.ReadAll(res.Body)

	// external service failure logging (scenario 2)

	if readErr != nil {
		cl.err("Failed response from %s %s - %d:%s. Elapsed Time: %d (ms)", method, url, res.StatusCode, readErr.Error(), elapsedMS)
		return nil, fmt.Errorf("failed to read solr response: %w", readErr)
	}

	switch {
	case res.StatusCode >= 500:
		cl.err("Failed response from %s %s - %d. Elapsed Time: %d (ms)", method, url, res.StatusCode, elapsedMS)
		return nil, fmt.Errorf("solr responded with status %d", res.StatusCode)

	case res.StatusCode >= 400:
		cl.err("Failed response from %s %s - %d. Elapsed Time: %d (ms)", method, url, res.StatusCode, elapsedMS)
		return nil, backoff.Permanent(requestError(res.StatusCode, resBody))
	}

	// external service success logging

	cl.log("Successful solr response from %s %s. Elapsed Time: %d (ms)", method, url, elapsedMS)

	return resBody, nil
}

// requestError interprets a rejected request.  solr reports unknown fields
// as a bad request, which we surface as a schema problem.
func requestError(status int, body []byte) error {
	var res solrResponse

	msg := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &res); err == nil && res.Error.Msg != "" {
		msg = res.Error.Msg
	}

	if status == http.StatusBadRequest && strings.Contains(msg, "undefined field") {
		name := strings.TrimSpace(msg[strings.LastIndex(msg, "undefined field")+len("undefined field"):])
		return &schemaError{kind: "field", name: name}
	}

	return fmt.Errorf("%w: solr status %d: %s", errInvalidQuery, status, msg)
}

// execute posts a JSON request to the search handler and decodes the reply
func (s *solrIndex) execute(ctx context.Context, req *solrRequestJSON) (*solrResponse, error) {
	cl := clientFrom(ctx)

	jsonBytes, jsonErr := json.Marshal(req)
	if jsonErr != nil {
		cl.err("Marshal() failed: %s", jsonErr.Error())
		return nil, fmt.Errorf("failed to marshal solr JSON: %w", jsonErr)
	}

	if cl.opts.verbose == true {
		cl.log("[SOLR] req: [%s]", string(jsonBytes))
	} else {
		cl.log("[SOLR] req: q = [%s], fq = %v", req.Params.Q, req.Params.Fq)
	}

	var solrRes *solrResponse

	op := func() error {
		body, err := s.attempt(ctx, "GET", s.url, jsonBytes)
		if err != nil {
			return err
		}

		var res solrResponse

		if decErr := json.Unmarshal(body, &res); decErr != nil {
			cl.err("Decode() failed: %s", decErr.Error())
			return fmt.Errorf("failed to decode solr response: %w", decErr)
		}

		logHeader := fmt.Sprintf("[SOLR] res: header: { status = %d, QTime = %d }", res.ResponseHeader.Status, res.ResponseHeader.QTime)

		// quick validation
		if res.ResponseHeader.Status != 0 {
			cl.log("%s, error: { code = %d, msg = %s }", logHeader, res.Error.Code, res.Error.Msg)
			return backoff.Permanent(requestError(res.Error.Code, body))
		}

		if err := convertFacets(&res); err != nil {
			cl.err("mapstructure.Decode() failed: %s", err.Error())
			return backoff.Permanent(err)
		}

		cl.log("%s, body: { start = %d, rows = %d, total = %d }", logHeader, res.Response.Start, len(res.Response.Docs), res.Response.NumFound)

		solrRes = &res

		return nil
	}

	if err := s.withRetries(ctx, op); err != nil {
		return nil, err
	}

	return solrRes, nil
}

func convertFacets(res *solrResponse) error {
	// convert solr "facets" block to internal structures.
	// due to its structure block, we cannot read it directly into arbitrary structs
	// (it contains both named facet blocks along with a "count" field that is not such a block).
	//
	// e.g. '{ "count": 23, "facet1": { ... }, "facet2": { ... }, ..., "facetN": { ... } }'
	//
	// so we read it in as map[string]interface{}, strip out the keys that are not this type
	// (e.g. "count", which will be float64), and then decode the resulting map into
	// a map[string]solrResponseFacet type.

	facetsRaw := make(map[string]interface{})
	facets := make(map[string]solrResponseFacet)

	for key, val := range res.FacetsRaw {
		switch val.(type) {
		case map[string]interface{}:
			facetsRaw[key] = val
		}
	}

	cfg := &mapstructure.DecoderConfig{
		Metadata:         nil,
		Result:           &facets,
		TagName:          "json",
		ZeroFields:       true,
		WeaklyTypedInput: true, // numeric and boolean bucket values become strings
	}

	dec, err := mapstructure.NewDecoder(cfg)
	if err != nil {
		return err
	}

	if err := dec.Decode(facetsRaw); err != nil {
		return fmt.Errorf("failed to decode solr facet map: %w", err)
	}

	res.Facets = facets

	return nil
}

func bucketsToValues(buckets []solrBucket) []facetValueCount {
	values := make([]facetValueCount, 0, len(buckets))

	for _, b := range buckets {
		values = append(values, facetValueCount{Value: b.Val, Count: b.Count})
	}

	return values
}

// mapDocuments converts solr documents, skipping (and reporting) the ones
// without a usable identifier
func (s *solrIndex) mapDocuments(ctx context.Context, docs []solrDocument) ([]vloDocument, []string) {
	cl := clientFrom(ctx)

	var mapped []vloDocument
	var warnings []string

	for i, doc := range docs {
		id, err := s.documentID(doc, i)
		if err != nil {
			cl.log("WARNING: %s", err.Error())
			malformedDocuments.Inc()
			warnings = append(warnings, err.Error())
			continue
		}

		fields := make(map[string]interface{}, len(doc))
		for k, v := range doc {
			fields[k] = v
		}

		mapped = append(mapped, vloDocument{ID: id, Fields: fields})
	}

	return mapped, warnings
}

func (s *solrIndex) documentID(doc solrDocument, position int) (string, error) {
	raw, ok := doc[s.idField]
	if ok == false {
		return "", &malformedDocumentError{position: position, reason: fmt.Sprintf("missing %s field", s.idField)}
	}

	switch id := raw.(type) {
	case string:
		if id != "" {
			return id, nil
		}

	case []interface{}:
		if len(id) == 1 {
			if str, ok := id[0].(string); ok == true && str != "" {
				return str, nil
			}
		}
	}

	return "", &malformedDocumentError{position: position, reason: fmt.Sprintf("unusable %s value: %v", s.idField, raw)}
}

func (s *solrIndex) search(ctx context.Context, state queryState, facets []string) (*queryResult, error) {
	req, err := s.requestWithDefaults(state)
	if err != nil {
		return nil, err
	}

	rows, truncated := s.pageRows(state.Rows())
	if truncated == true {
		clientFrom(ctx).log("[SOLR] requested rows %d exceed maximum; truncating to %d", state.Rows(), rows)
	}

	req.Params.Start = state.Start()
	req.Params.Rows = rows

	if req.Params.Start < 0 {
		req.Params.Start = 0
	}

	if len(facets) > 0 {
		req.Facets = make(map[string]*solrRequestFacet)

		for _, facet := range facets {
			field, err := s.facetField(facet)
			if err != nil {
				return nil, err
			}

			// unlimited; value lists are narrowed later
			req.Facets[facet] = s.termsFacet(facet, field, -1, orderByCount, 1)
		}
	}

	res, err := s.execute(ctx, req)
	if err != nil {
		return nil, err
	}

	docs, warnings := s.mapDocuments(ctx, res.Response.Docs)

	qr := queryResult{
		Documents: docs,
		Total:     res.Response.NumFound,
		Start:     res.Response.Start,
		Facets:    make(map[string][]facetValueCount),
		Truncated: truncated,
		Warnings:  warnings,
	}

	for _, facet := range facets {
		qr.Facets[facet] = bucketsToValues(res.Facets[facet].Buckets)
	}

	return &qr, nil
}

func (s *solrIndex) facetRequest(state queryState, facet string, limit int, order fieldValuesOrder, minCount int) (*solrRequestJSON, error) {
	field, err := s.facetField(facet)
	if err != nil {
		return nil, err
	}

	req, err := s.requestWithDefaults(state)
	if err != nil {
		return nil, err
	}

	// counts only
	req.Params.Start = 0
	req.Params.Rows = 0
	req.Params.Sort = ""

	req.Facets = map[string]*solrRequestFacet{
		facet: s.termsFacet(facet, field, limit, order, minCount),
	}

	return req, nil
}

func (s *solrIndex) facetValues(ctx context.Context, state queryState, facet string, maxCardinality int) ([]facetValueCount, error) {
	limit := -1
	if maxCardinality > 0 {
		// one more than allowed, to detect overflow
		limit = maxCardinality + 1
	}

	req, err := s.facetRequest(state, facet, limit, orderByName, 1)
	if err != nil {
		return nil, err
	}

	res, err := s.execute(ctx, req)
	if err != nil {
		return nil, err
	}

	buckets := res.Facets[facet].Buckets

	if maxCardinality > 0 && len(buckets) > maxCardinality {
		return nil, fmt.Errorf("%w: [%s] has more than %d values", errCardinalityExceeded, facet, maxCardinality)
	}

	return bucketsToValues(buckets), nil
}

func (s *solrIndex) topFacetValues(ctx context.Context, state queryState, facet string, n int, order fieldValuesOrder, minCount int) ([]facetValueCount, error) {
	if minCount < 1 {
		minCount = 1
	}

	req, err := s.facetRequest(state, facet, n, order, minCount)
	if err != nil {
		return nil, err
	}

	res, err := s.execute(ctx, req)
	if err != nil {
		return nil, err
	}

	return bucketsToValues(res.Facets[facet].Buckets), nil
}

func (s *solrIndex) document(ctx context.Context, id string) (*vloDocument, error) {
	var req solrRequestJSON

	req.Params.Q = fmt.Sprintf("%s:%s", s.idField, solrPhrase(id))
	req.Params.Qt = s.params.Qt
	req.Params.DefType = "lucene"
	req.Params.Fq = nonemptyValues(s.params.Fq)

	// two rows, to catch the (impossible?) scenario of multiple records with the same id
	req.Params.Rows = 2

	res, err := s.execute(ctx, &req)
	if err != nil {
		return nil, err
	}

	docs, _ := s.mapDocuments(ctx, res.Response.Docs)

	switch {
	case len(docs) == 0:
		return nil, fmt.Errorf("%w: [%s]", errDocumentNotFound, id)

	case len(docs) > 1:
		clientFrom(ctx).log("WARNING: multiple records found for id [%s]", id)
	}

	return &docs[0], nil
}

func (s *solrIndex) ping(ctx context.Context) error {
	var req solrRequestJSON

	// we are not interested in records, just connectivity
	req.Params.Q = "*:*"
	req.Params.Qt = s.params.Qt
	req.Params.Rows = 0

	_, err := s.execute(ctx, &req)

	return err
}
