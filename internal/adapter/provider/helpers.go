package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"roleroute/internal/domain"
	"roleroute/internal/infra/tracer"
)

// maxResponseBody is the maximum response body size we read from provider APIs.
const maxResponseBody = 10 * 1024 * 1024 // 10 MB

// doJSONRequest performs a JSON POST request and returns the response body.
// It handles: create request, set headers, execute, read body (with limit),
// and check HTTP status code. Returns a domain error for non-200 responses.
func doJSONRequest(ctx context.Context, client *http.Client, url string, body []byte, headers map[string]string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, mapHTTPError(httpResp.StatusCode, respBody)
	}

	return respBody, nil
}

// mapHTTPError maps an HTTP status code + response body to a domain error.
// The fallback chain and circuit breaker key off these classifications.
func mapHTTPError(statusCode int, body []byte) error {
	detail := fmt.Sprintf("API error %d: %s", statusCode, string(body))

	switch {
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimit, detail)
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrAuthInvalid, detail)
	case statusCode == http.StatusRequestTimeout || statusCode == http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %s", domain.ErrProviderTimeout, detail)
	case statusCode >= 500:
		return fmt.Errorf("%w: %s", domain.ErrProviderFailure, detail)
	default:
		return fmt.Errorf("%w: %s", domain.ErrProviderFailure, detail)
	}
}

// buildPrompt turns an abstract provider request into the system and user
// messages sent to a chat-style API. The shape directive steers plain text,
// JSON, or long-form document output.
func buildPrompt(req domain.ProviderRequest) (system, user string) {
	var sys strings.Builder
	fmt.Fprintf(&sys, "You are acting as the %q role, executing the %q tool.\n", req.Role, req.Tool)
	if req.Instructions != "" {
		sys.WriteString(req.Instructions)
		sys.WriteString("\n")
	}
	switch req.Shape {
	case domain.OutputJSON:
		sys.WriteString("Respond with a single valid JSON object and nothing else.")
	case domain.OutputDocument:
		sys.WriteString("Respond with a complete, well-structured document in Markdown.")
	default:
		sys.WriteString("Respond with plain text.")
	}

	var usr strings.Builder
	usr.WriteString(req.Input)
	if len(req.Params) > 0 && string(req.Params) != "{}" && string(req.Params) != "null" {
		fmt.Fprintf(&usr, "\n\nParameters:\n%s", string(req.Params))
	}
	if len(req.Context) > 0 {
		usr.WriteString("\n\nContext:")
		keys := make([]string, 0, len(req.Context))
		for k := range req.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&usr, "\n- %s: %s", k, req.Context[k])
		}
	}

	return sys.String(), usr.String()
}

// logExecuteCompleted logs the standard debug message after a successful call.
func logExecuteCompleted(logger *slog.Logger, providerName string, result *domain.ProviderResult) {
	logger.Debug("provider execute completed",
		"provider", providerName,
		"model", result.Model,
		"tokens", result.Usage.TotalTokens,
	)
}

// setUsageAttrs adds token usage attributes to a trace span.
func setUsageAttrs(span trace.Span, usage domain.Usage) {
	span.SetAttributes(
		tracer.IntAttr("provider.prompt_tokens", usage.PromptTokens),
		tracer.IntAttr("provider.completion_tokens", usage.CompletionTokens),
	)
}

// extractJSON pulls the first JSON object out of a model reply that may be
// wrapped in a Markdown code fence.
func extractJSON(s string) string {
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "```") {
		if idx := strings.Index(trimmed, "\n"); idx >= 0 {
			trimmed = trimmed[idx+1:]
		}
		trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
		trimmed = strings.TrimSpace(trimmed)
	}
	if json.Valid([]byte(trimmed)) {
		return trimmed
	}
	return s
}
