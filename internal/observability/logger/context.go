package logger

import (
	"context"
	"strings"
)

type ctxKey int

const (
	feedKey ctxKey = iota
	runIDKey
	requestIDKey
)

// WithRun tags ctx with the feed and run being processed.
func WithRun(ctx context.Context, feed, runID string) context.Context {
	ctx = context.WithValue(ctx, feedKey, strings.TrimSpace(feed))
	return context.WithValue(ctx, runIDKey, strings.TrimSpace(runID))
}

// WithRequestID tags ctx with an inbound ops request id.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, strings.TrimSpace(requestID))
}

func FeedFromContext(ctx context.Context) string {
	return stringValue(ctx, feedKey)
}

func RunIDFromContext(ctx context.Context) string {
	return stringValue(ctx, runIDKey)
}

func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

func stringValue(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}
