// Package httputil holds the JSON response and request-decoding helpers
// shared by the service's HTTP handlers (health checks, the payment webhook
// and the instant-search trigger), so every endpoint speaks the same
// envelope format.
package httputil
