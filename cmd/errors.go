package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// message shown for any index failure, distinct from an empty (successful) result
const unavailableMessage = "search temporarily unavailable"

var (
	errCardinalityExceeded = errors.New("facet cardinality exceeds configured maximum")
	errInvalidFilter       = errors.New("invalid facet value filter")
	errInvalidQuery        = errors.New("invalid query")
	errSuperseded          = errors.New("retrieval superseded by a newer request")
	errDocumentNotFound    = errors.New("record not found")
	errTransformFailed     = errors.New("record transformation failed")
)

// schemaError is returned for facet or field names the index does not know about.
// it is fatal to the current request and never retried.
type schemaError struct {
	kind string
	name string
}

func (e *schemaError) Error() string {
	return fmt.Sprintf("unknown %s: [%s]", e.kind, e.name)
}

// indexUnavailableError wraps a transient backend failure that survived all retries.
type indexUnavailableError struct {
	err error
}

func (e *indexUnavailableError) Error() string {
	return fmt.Sprintf("index unavailable: %s", e.err.Error())
}

func (e *indexUnavailableError) Unwrap() error {
	return e.err
}

// malformedDocumentError describes a single document that could not be mapped.
// it is logged and reported as a warning, never returned from a query.
type malformedDocumentError struct {
	position int
	reason   string
}

func (e *malformedDocumentError) Error() string {
	return fmt.Sprintf("skipping malformed document at position %d: %s", e.position, e.reason)
}

func statusForError(err error) int {
	var se *schemaError
	var ue *indexUnavailableError

	switch {
	case err == nil:
		return http.StatusOK

	case errors.As(err, &se):
		return http.StatusBadRequest

	case errors.As(err, &ue):
		return http.StatusServiceUnavailable

	case errors.Is(err, errInvalidFilter), errors.Is(err, errInvalidQuery):
		return http.StatusBadRequest

	case errors.Is(err, errDocumentNotFound):
		return http.StatusNotFound

	case errors.Is(err, errTransformFailed):
		return http.StatusBadGateway

	case errors.Is(err, errSuperseded), errors.Is(err, context.Canceled):
		return http.StatusConflict

	default:
		return http.StatusInternalServerError
	}
}

func messageForError(err error) string {
	if statusForError(err) == http.StatusServiceUnavailable {
		return unavailableMessage
	}

	if errors.Is(err, context.Canceled) {
		return errSuperseded.Error()
	}

	return err.Error()
}
