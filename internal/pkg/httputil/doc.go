// Package httputil provides shared HTTP response/request utilities for handlers.
//
// Every handler file should use these helpers instead of writing raw
// http.ResponseWriter calls. This ensures consistent JSON formatting,
// error structures, and logging across all endpoints. FromError maps the
// domain error taxonomy onto HTTP statuses.
package httputil
