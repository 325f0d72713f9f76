// Package httputil provides shared HTTP response helpers for the CDN handlers.
//
// Handlers write through these helpers instead of raw http.ResponseWriter
// calls so JSON envelopes, script bodies and error logging stay consistent.
package httputil
