package main

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nicksnyder/go-i18n/v2/i18n"
)

type clientOpts struct {
	verbose bool // controls whether verbose Solr requests/responses are logged
}

type clientContext struct {
	reqID       string          // internally generated
	start       time.Time       // internally set
	opts        clientOpts      // options set by client
	localizer   *i18n.Localizer // per-request localization
	ginCtx      *gin.Context    // gin context
	acceptLang  string          // first language requested by client
	contentLang string          // actual language we are responding with
}

type clientContextKey struct{}

// withClient attaches the client to ctx so that lower layers log under its request id
func withClient(ctx context.Context, c *clientContext) context.Context {
	return context.WithValue(ctx, clientContextKey{}, c)
}

// clientFrom returns the client attached to ctx, or an anonymous internal one
func clientFrom(ctx context.Context) *clientContext {
	if c, ok := ctx.Value(clientContextKey{}).(*clientContext); ok == true && c != nil {
		return c
	}

	return &clientContext{reqID: "internal", start: time.Now()}
}

func boolOptionWithFallback(opt string, fallback bool) bool {
	var err error
	var val bool

	if val, err = strconv.ParseBool(opt); err != nil {
		val = fallback
	}

	return val
}

func (c *clientContext) init(svc *serviceContext, ctx *gin.Context) {
	c.ginCtx = ctx

	c.start = time.Now()
	c.reqID = svc.newRequestID()

	// determine client preferred language
	c.acceptLang = strings.Split(ctx.GetHeader("Accept-Language"), ",")[0]
	if c.acceptLang == "" {
		c.acceptLang = "en"
	}

	c.localizer = i18n.NewLocalizer(svc.translations.bundle, c.acceptLang)

	// kludge to get the response language by checking the tag value returned for a known message ID
	_, tag, _ := c.localizer.LocalizeWithTag(&i18n.LocalizeConfig{MessageID: svc.config.Service.NameXID})
	c.contentLang = tag.String()

	ctx.Header("Content-Language", c.contentLang)

	c.opts.verbose = boolOptionWithFallback(ctx.Query("verbose"), false)
}

// context returns the request's context, carrying this client
func (c *clientContext) context() context.Context {
	ctx := context.Background()

	if c.ginCtx != nil && c.ginCtx.Request != nil {
		ctx = c.ginCtx.Request.Context()
	}

	return withClient(ctx, c)
}

func (c *clientContext) logRequest() {
	c.log("------------------------------[ NEW REQUEST ]------------------------------")

	query := ""
	if c.ginCtx.Request.URL.RawQuery != "" {
		query = fmt.Sprintf("?%s", c.ginCtx.Request.URL.RawQuery)
	}

	c.log("[REQUEST] %s %s%s  (%s) => (%s)", c.ginCtx.Request.Method, c.ginCtx.Request.URL.Path, query, c.acceptLang, c.contentLang)
}

func (c *clientContext) logResponse(resp searchResponse) {
	msg := fmt.Sprintf("[RESPONSE] status: %d", resp.status)

	if resp.err != nil {
		msg = msg + fmt.Sprintf(", error: %s", resp.err.Error())
	}

	msg = msg + fmt.Sprintf(", elapsed: %d (ms)", int64(time.Since(c.start)/time.Millisecond))

	c.log("%s", msg)
}

func (c *clientContext) printf(prefix, format string, args ...interface{}) {
	str := fmt.Sprintf(format, args...)

	if prefix != "" {
		str = strings.Join([]string{prefix, str}, " ")
	}

	log.Printf("[%s] %s", c.reqID, str)
}

func (c *clientContext) log(format string, args ...interface{}) {
	c.printf("", format, args...)
}

func (c *clientContext) err(format string, args ...interface{}) {
	c.printf("ERROR:", format, args...)
}

// localize falls back to the message id for untranslated strings
func (c *clientContext) localize(id string) string {
	if c.localizer == nil {
		return id
	}

	str, err := c.localizer.Localize(&i18n.LocalizeConfig{MessageID: id})
	if err != nil {
		return id
	}

	return str
}
