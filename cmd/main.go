package main

import (
	"context"
	"fmt"
	"log"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/contrib/static"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	ginprometheus "github.com/zsais/go-gin-prometheus"
)

func registerAPIRoutes(router *gin.Engine, svc *serviceContext) {
	router.GET("/favicon.ico", svc.ignoreHandler)

	router.GET("/version", svc.versionHandler)
	router.GET("/healthcheck", svc.healthCheckHandler)

	if api := router.Group("/api"); api != nil {
		api.GET("/facets", svc.facetsHandler)
		api.GET("/search", svc.bookmarkSearchHandler)
		api.POST("/search", svc.searchHandler)
		api.GET("/values/:facet", svc.bookmarkValuesHandler)
		api.POST("/values/:facet", svc.valuesHandler)
		api.POST("/select", svc.selectionHandler(false))
		api.POST("/deselect", svc.selectionHandler(true))
		api.GET("/record", svc.recordHandler)
	}
}

/**
 * Main entry point for the web service
 */
func main() {
	log.Printf("===> vlo-search-ws starting up <===")

	cfg := loadConfig()
	svc := initializeService(cfg)

	if interval := integerWithMinimum(cfg.Cache.RefreshInterval, 0); interval > 0 {
		warmer := newFacetWarmer(svc.provider, svc.facetNames(), interval)
		go warmer.monitorFacets(context.Background())
	}

	gin.SetMode(gin.ReleaseMode)

	router := gin.Default()

	router.Use(gzip.Gzip(gzip.DefaultCompression))

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowAllOrigins = true
	corsCfg.AllowCredentials = true
	router.Use(cors.New(corsCfg))

	p := ginprometheus.NewPrometheus("gin")

	// roundabout setup of /metrics endpoint to avoid double-gzip of response
	router.Use(p.HandlerFunc())
	h := promhttp.InstrumentMetricHandler(prometheus.DefaultRegisterer, promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{DisableCompression: true}))

	router.GET(p.MetricsPath, func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	})

	if cfg.Service.Pprof == true {
		log.Printf("[SERVICE] enabling pprof routes")
		pprof.Register(router)
	}

	registerAPIRoutes(router, svc)

	router.Use(static.Serve("/assets", static.LocalFile("./assets", false)))

	portStr := fmt.Sprintf(":%s", cfg.Service.Port)
	log.Printf("Start service on %s", portStr)

	log.Fatal(router.Run(portStr))
}
