// Package api exposes the correlation engine and the case store over HTTP.
//
// All handlers share one correlation.Engine, so repeated patterns seen by one
// request raise the confidence of later requests in the same investigation
// until POST /repetition/reset is called. Analyses run through the same
// pipeline as the CLI and are stored in the case database, where the
// /analyses endpoints read them back.
//
// Responses are JSON. Errors use the body {"error": "..."}; every response
// carries an X-Request-ID header.
package api
