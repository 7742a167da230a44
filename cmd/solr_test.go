package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uvalib/virgo4-api/v4api"
)

// fakeSolr records the JSON requests it receives and replays scripted replies
type fakeSolr struct {
	mu       sync.Mutex
	requests []solrRequestJSON
	replies  []fakeSolrReply // consumed in order; the last one repeats
	schema   []string
	server   *httptest.Server
}

type fakeSolrReply struct {
	status int
	body   string
	delay  time.Duration
}

func newFakeSolr(t *testing.T, replies ...fakeSolrReply) *fakeSolr {
	f := &fakeSolr{replies: replies}

	f.server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.server.Close)

	return f
}

func (f *fakeSolr) serve(w http.ResponseWriter, r *http.Request) {
	if strings.HasSuffix(r.URL.Path, "/schema/fields") {
		var fields []solrSchemaField
		for _, name := range f.schema {
			fields = append(fields, solrSchemaField{Name: name, Type: "string"})
		}

		json.NewEncoder(w).Encode(solrSchemaResponse{Fields: fields})
		return
	}

	var req solrRequestJSON
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusTeapot)
		return
	}

	f.mu.Lock()
	f.requests = append(f.requests, req)
	reply := f.replies[0]
	if len(f.replies) > 1 {
		f.replies = f.replies[1:]
	}
	f.mu.Unlock()

	if reply.delay > 0 {
		select {
		case <-time.After(reply.delay):
		case <-r.Context().Done():
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(reply.status)
	w.Write([]byte(reply.body))
}

func (f *fakeSolr) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeSolr) lastRequest() solrRequestJSON {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func okReply(body string) fakeSolrReply {
	return fakeSolrReply{status: http.StatusOK, body: body}
}

func newTestSolrIndex(f *fakeSolr, cfg *serviceConfig) *solrIndex {
	cfg.Solr.Host = f.server.URL
	cfg.Service.DefaultRows = 10
	cfg.Service.MaxRows = 100

	s := newSolrIndex(cfg)
	s.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }

	return s
}

const searchReply = `{
	"responseHeader": {"status": 0, "QTime": 3},
	"response": {
		"numFound": 42,
		"start": 0,
		"docs": [
			{"id": "hdl:1839/00-0000-0000-0001", "name": "Spoken Dutch Corpus"},
			{"name": "no identifier"},
			{"id": ["hdl:1839/00-0000-0000-0002"], "name": "Frisian"}
		]
	},
	"facets": {
		"count": 42,
		"language": {"buckets": [{"val": "en", "count": 30}, {"val": "nl", "count": 12}]},
		"collection": {"buckets": [{"val": 1999, "count": 2}]}
	}
}`

func TestSolrSearchRequest(t *testing.T) {
	f := newFakeSolr(t, okReply(searchReply))
	s := newTestSolrIndex(f, testConfig())

	state := newQueryState("", map[string][]string{"language": {"en", `say "hi"`}})

	qr, err := s.search(context.Background(), state, []string{"language", "collection"})
	require.NoError(t, err)

	req := f.lastRequest()

	assert.Equal(t, "*:*", req.Params.Q)
	assert.Equal(t, "score desc", req.Params.Sort)
	assert.Equal(t, 10, req.Params.Rows)
	assert.Equal(t, []string{`{!tag=f_language}languageCode:("en" OR "say \"hi\"")`}, req.Params.Fq)

	require.Contains(t, req.Facets, "language")
	assert.Equal(t, "terms", req.Facets["language"].Type)
	assert.Equal(t, "languageCode", req.Facets["language"].Field)
	assert.Equal(t, -1, req.Facets["language"].Limit)
	assert.Equal(t, []string{"f_language"}, req.Facets["language"].Domain.ExcludeTags)
	assert.Equal(t, []string{"f_collection"}, req.Facets["collection"].Domain.ExcludeTags)

	assert.Equal(t, 42, qr.Total)
	assert.False(t, qr.Truncated)

	require.Len(t, qr.Documents, 2)
	assert.Equal(t, "hdl:1839/00-0000-0000-0001", qr.Documents[0].ID)
	assert.Equal(t, "hdl:1839/00-0000-0000-0002", qr.Documents[1].ID)
	require.Len(t, qr.Warnings, 1)
	assert.Contains(t, qr.Warnings[0], "position 1")

	assert.Equal(t, []facetValueCount{{Value: "en", Count: 30}, {Value: "nl", Count: 12}}, qr.Facets["language"])
	assert.Equal(t, []facetValueCount{{Value: "1999", Count: 2}}, qr.Facets["collection"])
}

func TestSolrSearchTruncatesRows(t *testing.T) {
	f := newFakeSolr(t, okReply(searchReply))
	s := newTestSolrIndex(f, testConfig())

	qr, err := s.search(context.Background(), newQueryState("", nil).withPage(0, 5000), nil)
	require.NoError(t, err)

	assert.True(t, qr.Truncated)
	assert.Equal(t, 100, f.lastRequest().Params.Rows)
	assert.Nil(t, f.lastRequest().Facets)
}

func TestSolrUnknownFacetNeverReachesSolr(t *testing.T) {
	f := newFakeSolr(t, okReply(searchReply))
	s := newTestSolrIndex(f, testConfig())

	_, err := s.search(context.Background(), newQueryState("", nil), []string{"genre"})

	var se *schemaError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "genre", se.name)

	_, err = s.search(context.Background(), newQueryState("", map[string][]string{"genre": {"poetry"}}), nil)
	assert.ErrorAs(t, err, &se)

	assert.Equal(t, 0, f.requestCount())
}

func TestSolrSchemaRejectsMissingField(t *testing.T) {
	f := newFakeSolr(t, okReply(searchReply))
	f.schema = []string{"id", "languageCode"}

	cfg := testConfig()
	cfg.Solr.SchemaHandler = "schema/fields"
	s := newTestSolrIndex(f, cfg)

	assert.True(t, s.hasField("collection"))

	require.NoError(t, s.loadSchema(context.Background()))

	assert.True(t, s.hasField("languageCode"))
	assert.False(t, s.hasField("collection"))

	_, err := s.facetValues(context.Background(), newQueryState("", nil), "collection", 10)

	var se *schemaError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "field", se.kind)
	assert.Equal(t, 0, f.requestCount())
}

func TestSolrUndefinedFieldIsSchemaError(t *testing.T) {
	f := newFakeSolr(t, fakeSolrReply{
		status: http.StatusBadRequest,
		body:   `{"responseHeader": {"status": 400}, "error": {"msg": "undefined field languageCode", "code": 400}}`,
	})
	s := newTestSolrIndex(f, testConfig())
	s.retries = 3

	_, err := s.search(context.Background(), newQueryState("", nil), []string{"language"})

	var se *schemaError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "languageCode", se.name)
	assert.Equal(t, http.StatusBadRequest, statusForError(err))
	assert.Equal(t, 1, f.requestCount())
}

func TestSolrBadRequestIsNotRetried(t *testing.T) {
	f := newFakeSolr(t, fakeSolrReply{
		status: http.StatusBadRequest,
		body:   `{"error": {"msg": "org.apache.solr.search.SyntaxError: Cannot parse", "code": 400}}`,
	})
	s := newTestSolrIndex(f, testConfig())
	s.retries = 3

	_, err := s.search(context.Background(), newQueryState("title:(", nil), nil)

	assert.ErrorIs(t, err, errInvalidQuery)
	assert.Equal(t, 1, f.requestCount())
}

func TestSolrRetriesThenUnavailable(t *testing.T) {
	f := newFakeSolr(t, fakeSolrReply{status: http.StatusInternalServerError, body: "boom"})
	s := newTestSolrIndex(f, testConfig())
	s.retries = 2

	_, err := s.search(context.Background(), newQueryState("", nil), nil)

	var ue *indexUnavailableError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, http.StatusServiceUnavailable, statusForError(err))
	assert.Equal(t, unavailableMessage, messageForError(err))
	assert.Equal(t, 3, f.requestCount())
}

func TestSolrRetryRecovers(t *testing.T) {
	f := newFakeSolr(t,
		fakeSolrReply{status: http.StatusServiceUnavailable},
		fakeSolrReply{status: http.StatusOK, body: "not json"},
		okReply(searchReply),
	)
	s := newTestSolrIndex(f, testConfig())
	s.retries = 3

	qr, err := s.search(context.Background(), newQueryState("", nil), nil)
	require.NoError(t, err)

	assert.Equal(t, 42, qr.Total)
	assert.Equal(t, 3, f.requestCount())
}

func TestSolrAttemptTimeout(t *testing.T) {
	f := newFakeSolr(t, fakeSolrReply{status: http.StatusOK, body: searchReply, delay: time.Second})
	s := newTestSolrIndex(f, testConfig())
	s.readTimeout = 50 * time.Millisecond
	s.retries = 1

	start := time.Now()
	_, err := s.search(context.Background(), newQueryState("", nil), nil)

	var ue *indexUnavailableError
	assert.ErrorAs(t, err, &ue)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 2, f.requestCount())
}

func TestSolrCallerCancellation(t *testing.T) {
	f := newFakeSolr(t, okReply(searchReply))
	s := newTestSolrIndex(f, testConfig())
	s.retries = 3

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.search(ctx, newQueryState("", nil), nil)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, http.StatusConflict, statusForError(err))
}

func TestSolrFacetValuesCardinality(t *testing.T) {
	f := newFakeSolr(t, okReply(`{
		"responseHeader": {"status": 0},
		"response": {"numFound": 9},
		"facets": {"count": 9, "language": {"buckets": [
			{"val": "de", "count": 1}, {"val": "en", "count": 5}, {"val": "fr", "count": 3}
		]}}
	}`))
	s := newTestSolrIndex(f, testConfig())

	state := newQueryState("", map[string][]string{"collection": {"TLA"}})

	_, err := s.facetValues(context.Background(), state, "language", 2)
	assert.ErrorIs(t, err, errCardinalityExceeded)

	req := f.lastRequest()
	assert.Equal(t, 0, req.Params.Rows)
	assert.Equal(t, "", req.Params.Sort)
	assert.Equal(t, 3, req.Facets["language"].Limit)
	assert.Equal(t, "index asc", req.Facets["language"].Sort)
	assert.Equal(t, []string{`{!tag=f_collection}collection:("TLA")`}, req.Params.Fq)

	values, err := s.facetValues(context.Background(), state, "language", 3)
	require.NoError(t, err)
	assert.Len(t, values, 3)
}

func TestSolrTopFacetValues(t *testing.T) {
	f := newFakeSolr(t, okReply(`{
		"responseHeader": {"status": 0},
		"facets": {"language": {"buckets": [{"val": "en", "count": 5}]}}
	}`))
	s := newTestSolrIndex(f, testConfig())

	values, err := s.topFacetValues(context.Background(), newQueryState("", nil), "language", 25, orderByCount, 0)
	require.NoError(t, err)
	assert.Equal(t, []facetValueCount{{Value: "en", Count: 5}}, values)

	facet := f.lastRequest().Facets["language"]
	assert.Equal(t, 25, facet.Limit)
	assert.Equal(t, 1, facet.MinCount)
	assert.Equal(t, "count desc", facet.Sort)
}

func TestSolrDocument(t *testing.T) {
	f := newFakeSolr(t,
		okReply(`{"responseHeader": {"status": 0}, "response": {"numFound": 1, "docs": [{"id": "a\"b", "name": "x"}]}}`),
		okReply(`{"responseHeader": {"status": 0}, "response": {"numFound": 0, "docs": []}}`),
	)
	s := newTestSolrIndex(f, testConfig())

	doc, err := s.document(context.Background(), `a"b`)
	require.NoError(t, err)
	assert.Equal(t, `a"b`, doc.ID)
	assert.Equal(t, `id:"a\"b"`, f.lastRequest().Params.Q)

	_, err = s.document(context.Background(), "missing")
	assert.ErrorIs(t, err, errDocumentNotFound)
	assert.Equal(t, http.StatusNotFound, statusForError(err))
}

func TestSolrSort(t *testing.T) {
	s := newSolrIndex(testConfig())

	sort, err := s.solrSort(newQueryState("", nil))
	require.NoError(t, err)
	assert.Equal(t, "score desc", sort)

	sort, err = s.solrSort(newQueryState("", nil).withSort(v4api.SortOrder{SortID: "SortName", Order: "asc"}))
	require.NoError(t, err)
	assert.Equal(t, "_nameSort asc", sort)

	_, err = s.solrSort(newQueryState("", nil).withSort(v4api.SortOrder{SortID: "SortDate", Order: "asc"}))
	assert.ErrorIs(t, err, errInvalidQuery)

	_, err = s.solrSort(newQueryState("", nil).withSort(v4api.SortOrder{SortID: "SortName", Order: "up"}))
	assert.ErrorIs(t, err, errInvalidQuery)
}

func TestPageRows(t *testing.T) {
	cfg := testConfig()
	cfg.Service.DefaultRows = 10
	cfg.Service.MaxRows = 50
	s := newSolrIndex(cfg)

	rows, truncated := s.pageRows(0)
	assert.Equal(t, 10, rows)
	assert.False(t, truncated)

	rows, truncated = s.pageRows(50)
	assert.Equal(t, 50, rows)
	assert.False(t, truncated)

	rows, truncated = s.pageRows(51)
	assert.Equal(t, 50, rows)
	assert.True(t, truncated)
}

func TestRequestError(t *testing.T) {
	err := requestError(http.StatusBadRequest, []byte(`{"error": {"msg": "undefined field bogus", "code": 400}}`))

	var se *schemaError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "bogus", se.name)

	err = requestError(http.StatusNotFound, []byte("no such core"))
	assert.ErrorIs(t, err, errInvalidQuery)
	assert.Contains(t, err.Error(), "no such core")
}

func TestSolrPhrase(t *testing.T) {
	assert.Equal(t, `"plain"`, solrPhrase("plain"))
	assert.Equal(t, `"a \"quoted\" \\ value"`, solrPhrase(`a "quoted" \ value`))
}
