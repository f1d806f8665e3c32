package api

import (
	"context"
	"time"
)

// RequestInfo describes an outgoing request. It never carries the token.
type RequestInfo struct {
	Method        string
	URL           string
	RequestID     string
	Authenticated bool
}

// RequestResult describes how a request ended. StatusCode is zero when no
// response was received.
type RequestResult struct {
	StatusCode int
	Duration   time.Duration
	Err        error
}

// Hooks observes requests issued by a Client.
type Hooks interface {
	OnRequestStart(ctx context.Context, info RequestInfo) context.Context
	OnRequestEnd(ctx context.Context, info RequestInfo, result RequestResult)
}

// NoopHooks ignores all events.
type NoopHooks struct{}

func (NoopHooks) OnRequestStart(ctx context.Context, _ RequestInfo) context.Context { return ctx }
func (NoopHooks) OnRequestEnd(context.Context, RequestInfo, RequestResult)         {}
