package common

import (
	"context"
	"sync"
)

type reqInfoKey struct{}

// RequestInfo collects facts inner handlers learn about a request (such as the authenticated
// operator) so outer middleware can report them after the handler returns.
type RequestInfo struct {
	mu    sync.Mutex
	actor string
}

// WithRequestInfo attaches a fresh RequestInfo to ctx, or returns the one already there.
func WithRequestInfo(ctx context.Context) (context.Context, *RequestInfo) {
	if info, ok := ctx.Value(reqInfoKey{}).(*RequestInfo); ok {
		return ctx, info
	}
	info := &RequestInfo{}
	return context.WithValue(ctx, reqInfoKey{}, info), info
}

// Actor returns the authenticated operator recorded for the request.
func (ri *RequestInfo) Actor() string {
	if ri == nil {
		return ""
	}
	ri.mu.Lock()
	defer ri.mu.Unlock()
	return ri.actor
}

// WithActor records the authenticated operator for the request.
func WithActor(ctx context.Context, name string) context.Context {
	ctx, info := WithRequestInfo(ctx)
	info.mu.Lock()
	info.actor = name
	info.mu.Unlock()
	return ctx
}

// Actor extracts the authenticated operator from ctx.
func Actor(ctx context.Context) (string, bool) {
	info, _ := ctx.Value(reqInfoKey{}).(*RequestInfo)
	name := info.Actor()
	return name, name != ""
}
