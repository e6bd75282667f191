// Package http provides the HTTP REST API implementation.
//
// The HTTP server exposes endpoints for:
//   - Task and plan submission
//   - Status and result queries
//   - Health checks
//   - Prometheus metrics
package http
