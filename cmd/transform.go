package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// renderable is whatever the transformation produced for a record.  its
// body is passed through to the client untouched.
type renderable struct {
	ID          string                 `json:"id"`
	ContentType string                 `json:"content_type"`
	Body        string                 `json:"body,omitempty"`
	Fields      map[string]interface{} `json:"fields,omitempty"`
}

type recordTransformer interface {
	transform(ctx context.Context, id string) (*renderable, error)
}

// indexTransformer renders a record as its indexed fields
type indexTransformer struct {
	index documentIndex
}

func (t *indexTransformer) transform(ctx context.Context, id string) (*renderable, error) {
	doc, err := t.index.document(ctx, id)
	if err != nil {
		return nil, err
	}

	return &renderable{ID: doc.ID, ContentType: "application/json", Fields: doc.Fields}, nil
}

// httpTransformer hands the record id to an external transformation service
type httpTransformer struct {
	client   *http.Client
	template serviceConfigURLTemplate
	index    documentIndex
}

func newRecordTransformer(cfg serviceConfigTransformer, index documentIndex) recordTransformer {
	if cfg.URL.Template == "" {
		return &indexTransformer{index: index}
	}

	timeout := integerWithMinimum(cfg.Timeout, 5)

	return &httpTransformer{
		client:   &http.Client{Timeout: time.Duration(timeout) * time.Second},
		template: cfg.URL,
		index:    index,
	}
}

func (t *httpTransformer) transform(ctx context.Context, id string) (*renderable, error) {
	cl := clientFrom(ctx)

	// make sure the record exists before bothering the transformer
	if _, err := t.index.document(ctx, id); err != nil {
		return nil, err
	}

	url := getGenericURL(t.template, id)
	if url == "" {
		return nil, fmt.Errorf("%w: invalid transformer url template", errTransformFailed)
	}

	req, reqErr := http.NewRequestWithContext(ctx, "GET", url, nil)
	if reqErr != nil {
		cl.log("[TRANSFORM] NewRequest() failed: %s", reqErr.Error())
		return nil, fmt.Errorf("%w: failed to create transformation request", errTransformFailed)
	}

	start := time.Now()
	res, resErr := t.client.Do(req)
	elapsedMS := int64(time.Since(start) / time.Millisecond)

	// external service failure logging

	if resErr != nil {
		status := http.StatusBadRequest
		errMsg := resErr.Error()
		if strings.Contains(errMsg, "Timeout") {
			status = http.StatusRequestTimeout
			errMsg = fmt.Sprintf("%s timed out", url)
		} else if strings.Contains(errMsg, "connection refused") {
			status = http.StatusServiceUnavailable
			errMsg = fmt.Sprintf("%s refused connection", url)
		}

		cl.log("[TRANSFORM] client.Do() failed: %s", resErr.Error())
		cl.log("WARNING: Failed response from %s %s - %d:%s. Elapsed Time: %d (ms)", req.Method, url, status, errMsg, elapsedMS)
		return nil, fmt.Errorf("%w: no response from transformation service", errTransformFailed)
	}

	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		cl.log("WARNING: Failed response from %s %s - %d. Elapsed Time: %d (ms)", req.Method, url, res.StatusCode, elapsedMS)
		return nil, fmt.Errorf("%w: transformation service responded with status %d", errTransformFailed, res.StatusCode)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		cl.log("[TRANSFORM] error reading response (%s)", err.Error())
		return nil, fmt.Errorf("%w: error reading transformation response", errTransformFailed)
	}

	// external service success logging

	cl.log("Successful transformation response from %s %s. Elapsed Time: %d (ms)", req.Method, url, elapsedMS)

	contentType := res.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/html"
	}

	return &renderable{ID: id, ContentType: contentType, Body: string(body)}, nil
}
