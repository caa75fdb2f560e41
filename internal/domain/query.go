package domain

import (
	"context"
	"time"
)

// Query is the unit of work submitted by a transport collaborator.
type Query struct {
	Text     string         `json:"text"`
	RoleHint string         `json:"role,omitempty"`
	ToolHint string         `json:"tool,omitempty"`
	Params   map[string]any `json:"params,omitempty"`
	// Context is free-form key/value data forwarded to the tool.
	Context map[string]string `json:"context,omitempty"`
	// UserID identifies the caller for quota and audit purposes. Admission
	// control happens upstream; the router only tags results with it.
	UserID string `json:"user_id,omitempty"`
}

// Status classifies the outcome of one router call.
type Status string

const (
	StatusOK            Status = "ok"
	StatusLowConfidence Status = "low_confidence"
	StatusPartial       Status = "partial" // a fallback provider answered
	StatusFailed        Status = "failed"
)

// ProviderAttempt is one entry in the fallback failure trail.
type ProviderAttempt struct {
	Provider string        `json:"provider"`
	Reason   string        `json:"reason"`
	Elapsed  time.Duration `json:"elapsed"`
}

// Usage reports token consumption as observed from the answering provider.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// InvocationResult is the outcome of one Route call.
type InvocationResult struct {
	RequestID string `json:"request_id"`
	Role      string `json:"role"`
	Tool      string `json:"tool"`
	// Provider is the provider that actually answered; empty on failure.
	Provider string      `json:"provider,omitempty"`
	Status   Status      `json:"status"`
	Output   string      `json:"output,omitempty"`
	Shape    OutputShape `json:"shape,omitempty"`
	Usage    Usage       `json:"usage"`
	Elapsed  time.Duration `json:"elapsed"`
	// LowConfidence is set when detection matched nothing and the default
	// role was used. It persists even when Status is degraded to partial.
	LowConfidence bool `json:"low_confidence,omitempty"`
	// Attempts lists failed provider attempts in declared chain order.
	Attempts []ProviderAttempt `json:"attempts,omitempty"`
}

// AggregateResult is the outcome of an explicit multi-role operation.
// Results appear in the order the roles were requested.
type AggregateResult struct {
	RequestID string             `json:"request_id"`
	Results   []InvocationResult `json:"results"`
	Elapsed   time.Duration      `json:"elapsed"`
}

// Telemetry is the per-call tuple emitted for logging/metrics collectors.
type Telemetry struct {
	RequestID string
	UserID    string
	Role      string
	Tool      string
	Provider  string
	Status    Status
	Elapsed   time.Duration
	Err       string
	At        time.Time
}

// TelemetrySink consumes telemetry tuples. Implementations must be safe
// for concurrent use; sink failures never fail the originating call.
type TelemetrySink interface {
	Record(ctx context.Context, t Telemetry) error
}

// SinkFunc adapts a function to the TelemetrySink interface.
type SinkFunc func(context.Context, Telemetry) error

func (f SinkFunc) Record(ctx context.Context, t Telemetry) error { return f(ctx, t) }
