package tests

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v2"
)

type testConfig struct {
	Endpoint string
}

var cfg = loadConfig()

var client = &http.Client{Timeout: 30 * time.Second}

func emptyField(field string) bool {
	return len(strings.TrimSpace(field)) == 0
}

func loadConfig() testConfig {
	var c testConfig

	data, err := os.ReadFile("service_test.yml")
	if err != nil {
		log.Fatal(err)
	}

	if err := yaml.Unmarshal(data, &c); err != nil {
		log.Fatal(err)
	}

	// allow environment variables to override the configuration file
	if len(os.Getenv("TC_ENDPOINT")) != 0 {
		c.Endpoint = os.Getenv("TC_ENDPOINT")
	}

	log.Printf("endpoint [%s]\n", c.Endpoint)

	return c
}

// requireEndpoint skips the calling test when no service endpoint is configured
func requireEndpoint(t *testing.T) string {
	if emptyField(cfg.Endpoint) == true {
		t.Skip("no service endpoint configured; set TC_ENDPOINT")
	}

	return strings.TrimSuffix(cfg.Endpoint, "/")
}

func doRequest(method, url string, body interface{}) (int, []byte) {
	var reader io.Reader

	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			log.Fatal(err)
		}

		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		log.Fatal(err)
	}

	req.Header.Set("Content-Type", "application/json")

	res, err := client.Do(req)
	if err != nil {
		log.Printf("request failed: %s", err.Error())
		return http.StatusServiceUnavailable, nil
	}

	defer res.Body.Close()

	data, _ := io.ReadAll(res.Body)

	return res.StatusCode, data
}

// VersionCheck returns the status and body of the version endpoint
func VersionCheck(endpoint string) (int, string) {
	status, body := doRequest("GET", endpoint+"/version", nil)
	return status, string(body)
}

// HealthCheck returns the status of the health check endpoint
func HealthCheck(endpoint string) int {
	status, _ := doRequest("GET", endpoint+"/healthcheck", nil)
	return status
}

type facetList struct {
	Facets []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"facets"`
}

type facetValue struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

type valuesResponse struct {
	Values []facetValue `json:"values"`
	Total  int          `json:"total"`
}

type searchResponse struct {
	Pagination struct {
		Total int `json:"total"`
	} `json:"pagination"`
	Records []struct {
		ID string `json:"id"`
	} `json:"records"`
	Facets []struct {
		ID      string `json:"id"`
		Buckets []struct {
			Value    string `json:"value"`
			Count    int    `json:"count"`
			Selected bool   `json:"selected"`
		} `json:"buckets"`
	} `json:"facets"`
}

func TestHealthCheck(t *testing.T) {
	endpoint := requireEndpoint(t)

	if status := HealthCheck(endpoint); status != http.StatusOK {
		t.Fatalf("Expected %v, got %v\n", http.StatusOK, status)
	}
}

func TestFacetList(t *testing.T) {
	endpoint := requireEndpoint(t)

	status, body := doRequest("GET", endpoint+"/api/facets", nil)
	if status != http.StatusOK {
		t.Fatalf("Expected %v, got %v\n", http.StatusOK, status)
	}

	var res facetList
	if err := json.Unmarshal(body, &res); err != nil {
		t.Fatalf("Unable to decode facet list: %s\n", err.Error())
	}

	if len(res.Facets) == 0 {
		t.Fatalf("Expected at least one configured facet\n")
	}

	for _, f := range res.Facets {
		if emptyField(f.ID) == true || emptyField(f.Name) == true {
			t.Fatalf("Expected facet id and label, got %+v\n", f)
		}
	}
}

func TestSearchAndDrillDown(t *testing.T) {
	endpoint := requireEndpoint(t)

	status, body := doRequest("GET", endpoint+"/api/search?q=*&facets=languageCode", nil)
	if status != http.StatusOK {
		t.Fatalf("Expected %v, got %v\n", http.StatusOK, status)
	}

	var all searchResponse
	if err := json.Unmarshal(body, &all); err != nil {
		t.Fatalf("Unable to decode search response: %s\n", err.Error())
	}

	if len(all.Facets) != 1 || len(all.Facets[0].Buckets) == 0 {
		t.Skip("index has no language values to drill into")
	}

	bucket := all.Facets[0].Buckets[0]

	status, body = doRequest("GET", endpoint+"/api/search?facets=languageCode&fq="+url.QueryEscape("languageCode:"+bucket.Value), nil)
	if status != http.StatusOK {
		t.Fatalf("Expected %v, got %v\n", http.StatusOK, status)
	}

	var narrowed searchResponse
	if err := json.Unmarshal(body, &narrowed); err != nil {
		t.Fatalf("Unable to decode search response: %s\n", err.Error())
	}

	if narrowed.Pagination.Total != bucket.Count {
		t.Fatalf("Expected %d results for [%s], got %d\n", bucket.Count, bucket.Value, narrowed.Pagination.Total)
	}

	// the facet's own selection must not narrow its counts
	if len(narrowed.Facets[0].Buckets) != len(all.Facets[0].Buckets) {
		t.Fatalf("Expected %d language buckets, got %d\n", len(all.Facets[0].Buckets), len(narrowed.Facets[0].Buckets))
	}
}

func TestFacetValues(t *testing.T) {
	endpoint := requireEndpoint(t)

	status, body := doRequest("GET", endpoint+"/api/values/languageCode?valueSort=count&limit=5", nil)
	if status != http.StatusOK {
		t.Fatalf("Expected %v, got %v\n", http.StatusOK, status)
	}

	var res valuesResponse
	if err := json.Unmarshal(body, &res); err != nil {
		t.Fatalf("Unable to decode values response: %s\n", err.Error())
	}

	if len(res.Values) > 5 {
		t.Fatalf("Expected at most 5 values, got %d\n", len(res.Values))
	}

	for i := 1; i < len(res.Values); i++ {
		if res.Values[i-1].Count < res.Values[i].Count {
			t.Fatalf("Expected descending counts, got %+v\n", res.Values)
		}
	}
}

func TestUnknownFacet(t *testing.T) {
	endpoint := requireEndpoint(t)

	status, _ := doRequest("GET", endpoint+"/api/values/noSuchFacet", nil)
	if status != http.StatusBadRequest {
		t.Fatalf("Expected %v, got %v\n", http.StatusBadRequest, status)
	}
}

//
// end of file
//
