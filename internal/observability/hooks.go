package observability

import (
	"context"
	"sync"
	"time"

	"github.com/gptkit/gptkit-cli/internal/api"
	"github.com/gptkit/gptkit-cli/internal/auth"
)

var (
	_ api.Hooks  = (*CLIHooks)(nil)
	_ auth.Hooks = (*CLIHooks)(nil)
)

// CLIHooks observes the HTTP client and the session manager.
// It supports configurable verbosity levels:
//   - 0: Silent (collect stats only, no output)
//   - 1: Session events (refreshes and retries)
//   - 2: Session events + every HTTP request
type CLIHooks struct {
	mu        sync.Mutex
	level     int
	collector *SessionCollector
	writer    *TraceWriter
}

// NewCLIHooks creates a new CLIHooks with the given verbosity level.
// If collector is nil, metrics are not collected.
// If writer is nil, no trace output is produced.
func NewCLIHooks(level int, collector *SessionCollector, writer *TraceWriter) *CLIHooks {
	return &CLIHooks{
		level:     level,
		collector: collector,
		writer:    writer,
	}
}

// SetLevel changes the verbosity level at runtime.
func (h *CLIHooks) SetLevel(level int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.level = level
}

// Level returns the current verbosity level.
func (h *CLIHooks) Level() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.level
}

func (h *CLIHooks) snapshot() (int, *SessionCollector, *TraceWriter) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.level, h.collector, h.writer
}

// OnRequestStart is called before an HTTP request is sent.
func (h *CLIHooks) OnRequestStart(ctx context.Context, info api.RequestInfo) context.Context {
	level, _, writer := h.snapshot()
	if level >= 2 && writer != nil {
		writer.WriteRequestStart(info)
	}
	return ctx
}

// OnRequestEnd is called after an HTTP request completes.
func (h *CLIHooks) OnRequestEnd(_ context.Context, info api.RequestInfo, result api.RequestResult) {
	level, collector, writer := h.snapshot()
	if collector != nil {
		collector.RecordAPIRequest(info, result)
	}
	if level >= 2 && writer != nil {
		writer.WriteRequestEnd(result)
	}
}

// OnRefreshStart is called when a shared token refresh begins.
func (h *CLIHooks) OnRefreshStart(context.Context) {
	level, _, writer := h.snapshot()
	if level >= 1 && writer != nil {
		writer.WriteRefreshStart()
	}
}

// OnRefreshEnd is called when the token refresh finishes.
func (h *CLIHooks) OnRefreshEnd(_ context.Context, err error, duration time.Duration) {
	level, collector, writer := h.snapshot()
	if collector != nil {
		collector.RecordRefresh(RefreshMetrics{Duration: duration, Error: err})
	}
	if level >= 1 && writer != nil {
		writer.WriteRefreshEnd(err, duration)
	}
}

// OnAuthRetry is called before a request is replayed with a refreshed token.
func (h *CLIHooks) OnAuthRetry(_ context.Context, path string) {
	level, collector, writer := h.snapshot()
	if collector != nil {
		collector.RecordAuthRetry()
	}
	if level >= 1 && writer != nil {
		writer.WriteAuthRetry(path)
	}
}
