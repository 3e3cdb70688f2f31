// Package metrics provides the centralized Prometheus metrics registry
// for the Gmail client. All metrics are defined in their respective
// packages (gmail, auth, ratelimit, checkpoint) to maintain modularity
// and avoid circular dependencies.
//
// This package provides documentation and reference for all available
// metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the Gmail client.
// All metrics are automatically registered via promauto in their
// respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Request Metrics (pkg/gmail):
//   - gmail_requests_total{endpoint, status} (Counter): Total requests by endpoint and HTTP status
//   - gmail_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - gmail_batch_outcomes_total{outcome} (Counter): Batch sub-request outcomes (present, missing, rate_limited)
//   - gmail_page_fetches_total{endpoint} (Counter): Listing page fetches by endpoint
//
// Auth Metrics (pkg/auth):
//   - gmail_auth_refreshes_total{result} (Counter): Access token refreshes by result (success, error)
//
// Rate Limiter Metrics (pkg/ratelimit):
//   - gmail_rate_limiter_waits_total (Counter): Requests that passed through the client-side limiter
//
// Checkpoint Metrics (pkg/checkpoint):
//   - gmail_checkpoint_ops_total{operation} (Counter): Checkpoint store operations (save, load, delete)
//
// Example Prometheus Queries:
//
//   # Rate-limited share of batch outcomes
//   sum(rate(gmail_batch_outcomes_total{outcome="rate_limited"}[5m])) /
//   sum(rate(gmail_batch_outcomes_total[5m]))
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(gmail_request_duration_seconds_bucket[5m]))
//
//   # Token refresh failure rate
//   rate(gmail_auth_refreshes_total{result="error"}[5m])
