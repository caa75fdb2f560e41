package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the domain layer. Caller-input errors abort a call
// before any provider I/O; provider errors drive the fallback chain.
var (
	ErrInvalidRole       = fmt.Errorf("unknown role")
	ErrInvalidTool       = fmt.Errorf("unknown tool")
	ErrToolRoleMismatch  = fmt.Errorf("tool belongs to a different role")
	ErrInvalidParameters = fmt.Errorf("parameters violate tool schema")

	ErrProviderTimeout = fmt.Errorf("provider timed out")
	ErrProviderFailure = fmt.Errorf("provider failed")
	ErrCircuitOpen     = fmt.Errorf("provider circuit open")

	ErrProvidersExhausted = fmt.Errorf("all providers exhausted")

	ErrProviderNotFound = fmt.Errorf("provider not found")
	ErrCatalogInvalid   = fmt.Errorf("catalog validation failed")

	// Provider-level classification, mapped from API responses.
	ErrRateLimit   = fmt.Errorf("rate limit exceeded")
	ErrAuthInvalid = fmt.Errorf("authentication failed")

	// Gateway errors.
	ErrGatewayAuthFailed = fmt.Errorf("gateway: %w", ErrAuthInvalid)
	ErrRPCMethodNotFound = fmt.Errorf("rpc method not found")
	ErrRPCInvalidPayload = fmt.Errorf("rpc payload invalid")
)

// CallerError reports whether err is a caller-input error that must be
// returned immediately and never retried.
func CallerError(err error) bool {
	return errors.Is(err, ErrInvalidRole) ||
		errors.Is(err, ErrInvalidTool) ||
		errors.Is(err, ErrToolRoleMismatch) ||
		errors.Is(err, ErrInvalidParameters)
}

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Selector.Select")
	Err    error  // underlying sentinel or wrapped error
	Detail string // the offending value or human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ExhaustionError carries the ordered per-provider failure trail produced
// when every provider in a tool's chain has failed or timed out.
type ExhaustionError struct {
	Role     string
	Tool     string
	Attempts []ProviderAttempt
}

func (e *ExhaustionError) Error() string {
	reasons := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		reasons[i] = fmt.Sprintf("%s: %s", a.Provider, a.Reason)
	}
	return fmt.Sprintf("%s/%s: %s: [%s]", e.Role, e.Tool, ErrProvidersExhausted, strings.Join(reasons, "; "))
}

func (e *ExhaustionError) Unwrap() error { return ErrProvidersExhausted }

// ErrorCode is a machine-parseable error category for monitoring.
type ErrorCode string

const (
	CodeUnknown            ErrorCode = "UNKNOWN"
	CodeInvalidRole        ErrorCode = "INVALID_ROLE"
	CodeInvalidTool        ErrorCode = "INVALID_TOOL"
	CodeToolRoleMismatch   ErrorCode = "TOOL_ROLE_MISMATCH"
	CodeInvalidParameters  ErrorCode = "INVALID_PARAMETERS"
	CodeProviderTimeout    ErrorCode = "PROVIDER_TIMEOUT"
	CodeProviderFailure    ErrorCode = "PROVIDER_FAILURE"
	CodeCircuitOpen        ErrorCode = "CIRCUIT_OPEN"
	CodeProvidersExhausted ErrorCode = "PROVIDERS_EXHAUSTED"
	CodeProviderNotFound   ErrorCode = "PROVIDER_NOT_FOUND"
	CodeCatalogInvalid     ErrorCode = "CATALOG_INVALID"
	CodeRateLimit          ErrorCode = "RATE_LIMIT"
	CodeAuthInvalid        ErrorCode = "AUTH_INVALID"
	CodeGatewayAuth        ErrorCode = "GATEWAY_AUTH"
	CodeRPCMethodNotFound  ErrorCode = "RPC_METHOD_NOT_FOUND"
	CodeRPCInvalidPayload  ErrorCode = "RPC_INVALID_PAYLOAD"
)

var codeMap = []struct {
	err  error
	code ErrorCode
}{
	// Order matters: more specific sentinels first.
	{ErrGatewayAuthFailed, CodeGatewayAuth},
	{ErrToolRoleMismatch, CodeToolRoleMismatch},
	{ErrInvalidRole, CodeInvalidRole},
	{ErrInvalidTool, CodeInvalidTool},
	{ErrInvalidParameters, CodeInvalidParameters},
	{ErrProvidersExhausted, CodeProvidersExhausted},
	{ErrProviderTimeout, CodeProviderTimeout},
	{ErrCircuitOpen, CodeCircuitOpen},
	{ErrProviderNotFound, CodeProviderNotFound},
	{ErrProviderFailure, CodeProviderFailure},
	{ErrCatalogInvalid, CodeCatalogInvalid},
	{ErrRateLimit, CodeRateLimit},
	{ErrAuthInvalid, CodeAuthInvalid},
	{ErrRPCMethodNotFound, CodeRPCMethodNotFound},
	{ErrRPCInvalidPayload, CodeRPCInvalidPayload},
}

// ErrorCodeOf maps err to its ErrorCode, or CodeUnknown.
func ErrorCodeOf(err error) ErrorCode {
	for _, m := range codeMap {
		if errors.Is(err, m.err) {
			return m.code
		}
	}
	return CodeUnknown
}
