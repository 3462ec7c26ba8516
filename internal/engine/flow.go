package engine

import (
	"context"

	"github.com/google/uuid"
)

// FlowTokenGenerator issues the token that ties one inbound request to
// every sync effect it causes.
type FlowTokenGenerator interface {
	Generate() string
}

// FlowTokenFunc adapts a plain function to FlowTokenGenerator.
type FlowTokenFunc func() string

// Generate calls f.
func (f FlowTokenFunc) Generate() string { return f() }

// UUIDv7Generator issues time-ordered UUIDv7 tokens, so flow tokens in the
// action log sort by request start.
type UUIDv7Generator struct{}

// Generate panics only if the system random source fails.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

type flowKey struct{}

type flowInfo struct {
	token        string
	invocationID string
}

// WithFlow attaches the flow token and invocation ID of the triggering
// action to ctx. The engine copies them into its report and log lines.
func WithFlow(ctx context.Context, flowToken, invocationID string) context.Context {
	return context.WithValue(ctx, flowKey{}, flowInfo{token: flowToken, invocationID: invocationID})
}

// FlowFrom returns the flow token and invocation ID stored by WithFlow.
func FlowFrom(ctx context.Context) (flowToken, invocationID string) {
	if fi, ok := ctx.Value(flowKey{}).(flowInfo); ok {
		return fi.token, fi.invocationID
	}
	return "", ""
}
