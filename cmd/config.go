package main

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
)

const envPrefix = "VLO_SEARCH_WS_"

type serviceConfigURLTemplate struct {
	Pattern  string `json:"pattern,omitempty"`
	Template string `json:"template,omitempty"`
}

type serviceConfigURLTemplates struct {
	Record serviceConfigURLTemplate `json:"record,omitempty"`
	CMDI   serviceConfigURLTemplate `json:"cmdi,omitempty"`
}

type serviceConfigService struct {
	Port                   string                    `json:"port,omitempty"`
	NameXID                string                    `json:"name_xid,omitempty"` // translation ID
	Pprof                  bool                      `json:"pprof,omitempty"`
	Strict                 bool                      `json:"strict,omitempty"` // reject contract violations instead of clamping
	CaseSensitiveFilter    bool                      `json:"case_sensitive_filter,omitempty"`
	MinOccurrenceThreshold int                       `json:"min_occurrence_threshold,omitempty"`
	DefaultRows            int                       `json:"default_rows,omitempty"`
	MaxRows                int                       `json:"max_rows,omitempty"`
	URLTemplates           serviceConfigURLTemplates `json:"url_templates,omitempty"`
}

type serviceConfigSolrParams struct {
	Qt      string   `json:"qt,omitempty"`
	DefType string   `json:"deftype,omitempty"`
	Fq      []string `json:"fq,omitempty"`
	Fl      []string `json:"fl,omitempty"`
}

type serviceConfigSolr struct {
	Host           string                  `json:"host,omitempty"`
	Core           string                  `json:"core,omitempty"`
	Handler        string                  `json:"handler,omitempty"`
	SchemaHandler  string                  `json:"schema_handler,omitempty"`
	ConnTimeout    string                  `json:"conn_timeout,omitempty"`
	ReadTimeout    string                  `json:"read_timeout,omitempty"`
	Retries        int                     `json:"retries,omitempty"`
	IDField        string                  `json:"id_field,omitempty"`
	MaxCardinality int                     `json:"max_cardinality,omitempty"`
	FallbackTopN   int                     `json:"fallback_top_n,omitempty"`
	Params         serviceConfigSolrParams `json:"params,omitempty"`
}

type serviceConfigRedis struct {
	Addr     string `json:"addr,omitempty"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty"`
	Prefix   string `json:"prefix,omitempty"`
}

type serviceConfigCache struct {
	Type            string             `json:"type,omitempty"` // "memory" (default), "redis" or "none"
	Size            int                `json:"size,omitempty"`
	TTL             string             `json:"ttl,omitempty"`              // seconds
	RefreshInterval string             `json:"refresh_interval,omitempty"` // seconds; 0 disables warming
	Redis           serviceConfigRedis `json:"redis,omitempty"`
}

type serviceConfigTransformer struct {
	URL     serviceConfigURLTemplate `json:"url,omitempty"`
	Timeout string                   `json:"timeout,omitempty"`
}

type serviceConfigFacet struct {
	XID   string `json:"xid,omitempty"` // facet name and translation ID
	Field string `json:"field,omitempty"`
	Order string `json:"order,omitempty"` // bucket order in search responses
}

type serviceConfigSortOption struct {
	XID   string `json:"xid,omitempty"` // translation ID
	Field string `json:"field,omitempty"`
}

type serviceConfigDefaultSort struct {
	XID   string `json:"xid,omitempty"`
	Order string `json:"order,omitempty"`
}

type serviceConfig struct {
	Service     serviceConfigService      `json:"service,omitempty"`
	Solr        serviceConfigSolr         `json:"solr,omitempty"`
	Cache       serviceConfigCache        `json:"cache,omitempty"`
	Transformer serviceConfigTransformer  `json:"transformer,omitempty"`
	Facets      []serviceConfigFacet      `json:"facets,omitempty"`
	SortOptions []serviceConfigSortOption `json:"sort_options,omitempty"`
	DefaultSort serviceConfigDefaultSort  `json:"default_sort,omitempty"`
}

func getSortedJSONEnvVars() []string {
	var keys []string

	for _, keyval := range os.Environ() {
		key := strings.Split(keyval, "=")[0]
		if strings.HasPrefix(key, envPrefix+"JSON_") {
			keys = append(keys, key)
		}
	}

	sort.Strings(keys)

	return keys
}

// decodeConfigValue accepts plain json, or the gzip+base64 form written by setup
func decodeConfigValue(val string) []byte {
	trimmed := strings.TrimSpace(val)

	if strings.HasPrefix(trimmed, "{") {
		return []byte(trimmed)
	}

	raw, err := base64.StdEncoding.DecodeString(trimmed)
	if err != nil {
		return []byte(val)
	}

	gz, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return []byte(val)
	}

	defer gz.Close()

	data, err := io.ReadAll(gz)
	if err != nil {
		return []byte(val)
	}

	return data
}

func loadConfigFromEnv() (*serviceConfig, error) {
	cfg := serviceConfig{}

	// json configs

	var failed []string

	for _, env := range getSortedJSONEnvVars() {
		log.Printf("[CONFIG] loading %s ...", env)
		if val := os.Getenv(env); val != "" {
			dec := json.NewDecoder(bytes.NewReader(decodeConfigValue(val)))
			dec.DisallowUnknownFields()

			if err := dec.Decode(&cfg); err != nil {
				log.Printf("error decoding %s: %s", env, err.Error())
				failed = append(failed, env)
			}
		}
	}

	if len(failed) > 0 {
		return nil, fmt.Errorf("json decode error(s) in: %s", strings.Join(failed, ", "))
	}

	// optional convenience overrides to simplify deployment config

	if host := os.Getenv(envPrefix + "SOLR_HOST"); host != "" {
		cfg.Solr.Host = host
	}

	if addr := os.Getenv(envPrefix + "REDIS_ADDR"); addr != "" {
		cfg.Cache.Redis.Addr = addr
	}

	return &cfg, nil
}

func loadConfig() *serviceConfig {
	cfg, err := loadConfigFromEnv()
	if err != nil {
		log.Printf("exiting due to %s", err.Error())
		os.Exit(1)
	}

	bytes, err := json.Marshal(redactedConfig(cfg))
	if err != nil {
		log.Printf("error encoding service config json: %s", err.Error())
		os.Exit(1)
	}

	log.Printf("[CONFIG] composite json:")
	log.Printf("\n%s", string(bytes))

	return cfg
}

// redactedConfig returns a copy of cfg that is safe to log
func redactedConfig(cfg *serviceConfig) serviceConfig {
	echo := *cfg

	if echo.Cache.Redis.Password != "" {
		echo.Cache.Redis.Password = "********"
	}

	return echo
}
