package observability

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gptkit/gptkit-cli/internal/api"
)

// sensitiveParams are query parameter names scrubbed from trace output.
// Names are compared lowercased.
var sensitiveParams = map[string]bool{
	"access_token":  true,
	"accesstoken":   true,
	"refresh_token": true,
	"refreshtoken":  true,
	"token":         true,
	"api_key":       true,
	"apikey":        true,
	"password":      true,
	"passwd":        true,
	"secret":        true,
	"client_secret": true,
	"state":         true,
	"code":          true,
}

// TraceWriter outputs human-readable trace information to stderr.
// It formats output with timestamps relative to session start.
type TraceWriter struct {
	mu        sync.Mutex
	writer    io.Writer
	startTime time.Time
}

// NewTraceWriter creates a new TraceWriter that writes to stderr.
func NewTraceWriter() *TraceWriter {
	return NewTraceWriterTo(os.Stderr)
}

// NewTraceWriterTo creates a new TraceWriter that writes to the given writer.
func NewTraceWriterTo(w io.Writer) *TraceWriter {
	return &TraceWriter{
		writer:    w,
		startTime: time.Now(),
	}
}

func (t *TraceWriter) printf(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	elapsed := time.Since(t.startTime).Seconds()
	fmt.Fprintf(t.writer, "[%.3fs] "+format+"\n", append([]any{elapsed}, args...)...)
}

// WriteRequestStart writes a request start trace line.
// Format: [0.234s]   -> GET https://api.example.com/auth/me
func (t *TraceWriter) WriteRequestStart(info api.RequestInfo) {
	t.printf("  -> %s %s", info.Method, scrubURL(info.URL))
}

// WriteRequestEnd writes a request completion trace line.
// Format: [0.234s]   <- 200 (45ms)
func (t *TraceWriter) WriteRequestEnd(result api.RequestResult) {
	if result.Err != nil {
		t.printf("  <- ERROR: %v", result.Err)
		return
	}
	t.printf("  <- %d (%dms)", result.StatusCode, result.Duration.Milliseconds())
}

// WriteRefreshStart writes a refresh start trace line.
func (t *TraceWriter) WriteRefreshStart() {
	t.printf("Refreshing session")
}

// WriteRefreshEnd writes a refresh completion trace line.
func (t *TraceWriter) WriteRefreshEnd(err error, duration time.Duration) {
	if err != nil {
		t.printf("Refresh failed: %v", err)
		return
	}
	t.printf("Session refreshed (%dms)", duration.Milliseconds())
}

// WriteAuthRetry writes a retry-after-refresh trace line.
// Format: [0.234s]   RETRY wp/config
func (t *TraceWriter) WriteAuthRetry(path string) {
	t.printf("  RETRY %s", scrubURL(path))
}

// Reset resets the start time for relative timestamps.
func (t *TraceWriter) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.startTime = time.Now()
}

// scrubURL redacts sensitive query parameters from a URL for safe logging.
// Returns a safe placeholder if the URL cannot be parsed.
func scrubURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "[unparseable URL]"
	}

	query := u.Query()
	modified := false
	for key := range query {
		if sensitiveParams[strings.ToLower(key)] {
			query.Set(key, "[REDACTED]")
			modified = true
		}
	}

	if !modified {
		return rawURL
	}

	u.RawQuery = query.Encode()
	return u.String()
}
