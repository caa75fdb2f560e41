package domain

import (
	"context"
	"encoding/json"
)

// ProviderRequest is the abstract "execute tool X with parameters P"
// request dispatched to a backing provider. The concrete wire protocol
// is the provider adapter's concern.
type ProviderRequest struct {
	Role string
	Tool string
	// Instructions is the tool's system-level task description.
	Instructions string
	// Input is the caller's query text.
	Input string
	// Params carries the schema-validated tool parameters.
	Params json.RawMessage
	// Context is free-form key/value data the tool may use.
	Context   map[string]string
	Shape     OutputShape
	Model     string
	MaxTokens int
}

// ProviderResult is a provider's answer to one request.
type ProviderResult struct {
	Output string
	Model  string
	Usage  Usage
}

// Provider is a backing execution endpoint that can fulfill tool requests.
type Provider interface {
	// Execute fulfills one request. Blocking; honors ctx cancellation.
	Execute(ctx context.Context, req ProviderRequest) (*ProviderResult, error)
	// Name returns the provider's identifier (e.g., "openai", "local").
	Name() string
}

// HealthChecker is implemented by providers that support liveness probes.
type HealthChecker interface {
	IsHealthy(ctx context.Context) bool
}

// ProviderResolver resolves a configured provider name to its client.
type ProviderResolver interface {
	Get(name string) (Provider, error)
}
