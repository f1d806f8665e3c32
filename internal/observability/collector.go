// Package observability collects session metrics and traces requests and
// token refreshes for the CLI.
package observability

import (
	"sync"
	"time"

	"github.com/gptkit/gptkit-cli/internal/api"
)

// RequestMetrics holds timing and status information for a single HTTP request.
type RequestMetrics struct {
	Method     string
	URL        string
	StatusCode int
	Duration   time.Duration
	Error      error
}

// RefreshMetrics describes one token refresh exchange.
type RefreshMetrics struct {
	Duration time.Duration
	Error    error
}

// SessionMetrics aggregates metrics for an entire CLI session.
type SessionMetrics struct {
	StartTime       time.Time
	EndTime         time.Time
	TotalRequests   int
	FailedRequests  int
	TotalRefreshes  int
	FailedRefreshes int
	AuthRetries     int
	TotalLatency    time.Duration
}

// SessionCollector accumulates metrics across a CLI session.
// It is safe for concurrent use and uses counters instead of unbounded slices.
type SessionCollector struct {
	mu sync.Mutex

	startTime       time.Time
	totalRequests   int
	failedRequests  int
	totalRefreshes  int
	failedRefreshes int
	authRetries     int
	totalLatency    time.Duration
}

// NewSessionCollector creates a new SessionCollector.
func NewSessionCollector() *SessionCollector {
	return &SessionCollector{
		startTime: time.Now(),
	}
}

// RecordRequest records metrics for an HTTP request. Any error or non-2xx
// status counts as a failed request.
func (c *SessionCollector) RecordRequest(m RequestMetrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
	c.totalLatency += m.Duration
	if m.Error != nil || m.StatusCode < 200 || m.StatusCode > 299 {
		c.failedRequests++
	}
}

// RecordAPIRequest records metrics from client hook types.
func (c *SessionCollector) RecordAPIRequest(info api.RequestInfo, result api.RequestResult) {
	c.RecordRequest(RequestMetrics{
		Method:     info.Method,
		URL:        info.URL,
		StatusCode: result.StatusCode,
		Duration:   result.Duration,
		Error:      result.Err,
	})
}

// RecordRefresh records a token refresh exchange.
func (c *SessionCollector) RecordRefresh(m RefreshMetrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRefreshes++
	if m.Error != nil {
		c.failedRefreshes++
	}
}

// RecordAuthRetry records a request replayed after a refresh.
func (c *SessionCollector) RecordAuthRetry() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authRetries++
}

// Summary returns aggregated metrics for the session.
func (c *SessionCollector) Summary() SessionMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	return SessionMetrics{
		StartTime:       c.startTime,
		EndTime:         time.Now(),
		TotalRequests:   c.totalRequests,
		FailedRequests:  c.failedRequests,
		TotalRefreshes:  c.totalRefreshes,
		FailedRefreshes: c.failedRefreshes,
		AuthRetries:     c.authRetries,
		TotalLatency:    c.totalLatency,
	}
}

// Reset clears all collected metrics and resets the start time.
func (c *SessionCollector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.startTime = time.Now()
	c.totalRequests = 0
	c.failedRequests = 0
	c.totalRefreshes = 0
	c.failedRefreshes = 0
	c.authRetries = 0
	c.totalLatency = 0
}
