package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

// git commit used for this build; supplied at compile time
var gitCommit string

type serviceVersion struct {
	BuildVersion string `json:"build,omitempty"`
	GoVersion    string `json:"go_version,omitempty"`
	GitCommit    string `json:"git_commit,omitempty"`
}

type serviceTranslations struct {
	bundle *i18n.Bundle
}

type serviceMaps struct {
	facets     map[string]serviceConfigFacet
	sortFields map[string]string
}

type serviceContext struct {
	randomMu     sync.Mutex
	randomSource *rand.Rand
	config       *serviceConfig
	translations serviceTranslations
	version      serviceVersion
	maps         serviceMaps
	solr         *solrIndex // nil when running against another index
	index        documentIndex
	cache        facetValueCache
	provider     *facetValueProvider
	transformer  recordTransformer
	tracker      *retrievalTracker
	sortOptions  []vloSortOption
}

func newServiceContext(cfg *serviceConfig) *serviceContext {
	svc := serviceContext{
		config:       cfg,
		randomSource: rand.New(rand.NewSource(time.Now().UnixNano())),
		tracker:      newRetrievalTracker(),
	}

	svc.applyDefaults()
	svc.initMaps()

	return &svc
}

// a rand.Rand is not safe for concurrent use
func (svc *serviceContext) newRequestID() string {
	svc.randomMu.Lock()
	defer svc.randomMu.Unlock()

	return fmt.Sprintf("%08x", svc.randomSource.Uint32())
}

func (svc *serviceContext) applyDefaults() {
	if svc.config.Service.MinOccurrenceThreshold <= 0 {
		svc.config.Service.MinOccurrenceThreshold = 2
	}

	if svc.config.Service.DefaultRows <= 0 {
		svc.config.Service.DefaultRows = 10
	}

	if svc.config.Service.MaxRows <= 0 {
		svc.config.Service.MaxRows = 1000
	}

	if svc.config.Solr.MaxCardinality <= 0 {
		svc.config.Solr.MaxCardinality = 10000
	}

	if svc.config.Solr.FallbackTopN <= 0 {
		svc.config.Solr.FallbackTopN = 100
	}
}

func (svc *serviceContext) initMaps() {
	svc.maps.facets = make(map[string]serviceConfigFacet)
	for _, facet := range svc.config.Facets {
		svc.maps.facets[facet.XID] = facet
	}

	svc.maps.sortFields = make(map[string]string)
	svc.sortOptions = nil
	for _, opt := range svc.config.SortOptions {
		svc.sortOptions = append(svc.sortOptions, vloSortOption{ID: opt.XID})
		svc.maps.sortFields[opt.XID] = opt.Field
	}
}

// facetNames lists the configured facets in configuration order
func (svc *serviceContext) facetNames() []string {
	var names []string

	for _, facet := range svc.config.Facets {
		names = append(names, facet.XID)
	}

	return names
}

func (svc *serviceContext) initVersion() {
	buildVersion := "unknown"
	files, _ := filepath.Glob("buildtag.*")
	if len(files) == 1 {
		buildVersion = strings.Replace(files[0], "buildtag.", "", 1)
	}

	svc.version = serviceVersion{
		BuildVersion: buildVersion,
		GoVersion:    fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH),
		GitCommit:    gitCommit,
	}

	log.Printf("[SERVICE] version.BuildVersion = [%s]", svc.version.BuildVersion)
	log.Printf("[SERVICE] version.GoVersion    = [%s]", svc.version.GoVersion)
	log.Printf("[SERVICE] version.GitCommit    = [%s]", svc.version.GitCommit)
}

func (svc *serviceContext) initTranslations() {
	defaultLang := language.English

	bundle := i18n.NewBundle(defaultLang)
	bundle.RegisterUnmarshalFunc("toml", toml.Unmarshal)

	toml, _ := filepath.Glob("i18n/*.toml")
	for _, f := range toml {
		bundle.MustLoadMessageFile(f)
	}

	svc.translations = serviceTranslations{
		bundle: bundle,
	}
}

func (svc *serviceContext) initSolr() {
	svc.solr = newSolrIndex(svc.config)
	svc.index = svc.solr

	log.Printf("[SERVICE] solr.url         = [%s]", svc.solr.url)
	log.Printf("[SERVICE] solr.retries     = [%d]", svc.solr.retries)
	log.Printf("[SERVICE] solr.readTimeout = [%s]", svc.solr.readTimeout)

	if svc.solr.schemaURL == "" {
		log.Printf("[SERVICE] no solr schema handler configured; trusting configured fields")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := svc.solr.loadSchema(ctx); err != nil {
		log.Printf("[SERVICE] solr schema not loaded (%s); trusting configured fields", err.Error())
	}
}

func (svc *serviceContext) initCache() {
	cache, err := newFacetValueCache(svc.config.Cache)
	if err != nil {
		log.Printf("[SERVICE] facet cache setup failed: %s", err.Error())
		os.Exit(1)
	}

	svc.cache = cache
}

func (svc *serviceContext) initProvider() {
	svc.provider = newFacetValueProvider(svc.index, svc.cache, svc.config)

	log.Printf("[SERVICE] facets.maxCardinality = [%d]", svc.provider.maxCardinality)
	log.Printf("[SERVICE] facets.fallbackTopN   = [%d]", svc.provider.fallbackTopN)
}

func (svc *serviceContext) initTransformer() {
	svc.transformer = newRecordTransformer(svc.config.Transformer, svc.index)
}

// checkConfig ensures the existence and validity of required
// variables/solr fields/translation ids, logging every problem found
func (svc *serviceContext) checkConfig() bool {
	invalid := false

	var solrFields stringValidator
	var messageIDs stringValidator
	var miscValues stringValidator

	miscValues.requireValue(svc.config.Service.Port, "service port")

	miscValues.requireValue(svc.config.Solr.Host, "solr host")
	miscValues.requireValue(svc.config.Solr.Core, "solr core")
	miscValues.requireValue(svc.config.Solr.Handler, "solr handler")

	if svc.config.Solr.Host != "" && isValidURL(svc.config.Solr.Host) == false {
		log.Printf("[VALIDATE] solr host is not a valid url: [%s]", svc.config.Solr.Host)
		invalid = true
	}

	miscValues.requireValue(svc.config.DefaultSort.XID, "default sort xid")
	miscValues.requireValue(svc.config.DefaultSort.Order, "default sort order")

	if svc.config.DefaultSort.XID != "" && svc.maps.sortFields[svc.config.DefaultSort.XID] == "" {
		log.Printf("[VALIDATE] default sort xid not found in sort options list")
		invalid = true
	}

	if isValidSortOrder(svc.config.DefaultSort.Order) == false {
		log.Printf("[VALIDATE] default sort order not valid")
		invalid = true
	}

	if sliceContainsString([]string{"", "memory", "redis", "none"}, svc.config.Cache.Type) == false {
		log.Printf("[VALIDATE] unsupported cache type: [%s]", svc.config.Cache.Type)
		invalid = true
	}

	if svc.config.Transformer.URL.Template != "" {
		miscValues.requireValue(svc.config.Transformer.URL.Pattern, "transformer url pattern")
	}

	messageIDs.requireValue(svc.config.Service.NameXID, "service name xid")

	if len(svc.config.Facets) == 0 {
		log.Printf("[VALIDATE] no facets configured")
		invalid = true
	}

	seen := make(map[string]bool)

	for i, facet := range svc.config.Facets {
		prefix := fmt.Sprintf("facet %d: ", i)

		messageIDs.setPrefix(prefix)
		solrFields.setPrefix(prefix)

		messageIDs.requireValue(facet.XID, "xid")
		solrFields.requireValue(facet.Field, "field")

		if seen[facet.XID] == true {
			log.Printf("[VALIDATE] duplicate facet xid: [%s]", facet.XID)
			invalid = true
		}

		seen[facet.XID] = true

		// facet names travel in bookmarks as "name:value"
		if strings.Contains(facet.XID, ":") {
			log.Printf("[VALIDATE] facet xid may not contain a colon: [%s]", facet.XID)
			invalid = true
		}

		if _, err := parseFieldValuesOrder(facet.Order); err != nil {
			log.Printf("[VALIDATE] facet %d: %s", i, err.Error())
			invalid = true
		}
	}

	for i, opt := range svc.config.SortOptions {
		prefix := fmt.Sprintf("sort option %d: ", i)

		messageIDs.setPrefix(prefix)
		solrFields.setPrefix(prefix)

		solrFields.requireValue(opt.Field, "field")
		messageIDs.requireValue(opt.XID, "xid")
	}

	// validate solr fields can actually be found in the index schema

	if svc.solr != nil {
		for _, field := range solrFields.Values() {
			// sort specs such as "score" or functions are not schema fields
			if field == "score" || strings.Contains(field, "(") {
				continue
			}

			if svc.solr.hasField(field) == false {
				log.Printf("[VALIDATE] field not found in solr schema: [%s]", field)
				invalid = true
			}
		}
	}

	// validate xids can actually be translated

	langs := []string{}
	tags := svc.translations.bundle.LanguageTags()

	for _, tag := range tags {
		lang := tag.String()
		langs = append(langs, lang)
		localizer := i18n.NewLocalizer(svc.translations.bundle, lang)
		for _, id := range messageIDs.Values() {
			if _, err := localizer.Localize(&i18n.LocalizeConfig{MessageID: id}); err != nil {
				log.Printf("[VALIDATE] [%s] missing translation for message ID: [%s] (%s)", lang, id, err.Error())
				invalid = true
			}
		}
	}

	log.Printf("[SERVICE] supported languages  = [%s]", strings.Join(langs, ", "))

	return (invalid || solrFields.Invalid() || messageIDs.Invalid() || miscValues.Invalid()) == false
}

func (svc *serviceContext) validateConfig() {
	if svc.checkConfig() == false {
		log.Printf("[VALIDATE] exiting due to missing/incorrect field value(s) above")
		os.Exit(1)
	}
}

func initializeService(cfg *serviceConfig) *serviceContext {
	svc := newServiceContext(cfg)

	svc.initTranslations()
	svc.initVersion()
	svc.initSolr()
	svc.initCache()
	svc.initProvider()
	svc.initTransformer()

	svc.validateConfig()

	return svc
}
