package auth

import (
	"context"
)

type contextKey string

const CallerKey contextKey = "caller"

// Caller identifies who issued an API request.
type Caller struct {
	Name          string
	Authenticated bool
}

func GetCallerFromContext(ctx context.Context) (*Caller, bool) {
	caller, ok := ctx.Value(CallerKey).(*Caller)
	return caller, ok
}

func WithCaller(ctx context.Context, caller *Caller) context.Context {
	return context.WithValue(ctx, CallerKey, caller)
}
