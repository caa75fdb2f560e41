package provider

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"roleroute/internal/domain"
	"roleroute/internal/infra/config"
)

func newTestLogger() *slog.Logger {
	return slog.Default()
}

func TestOpenAIProviderExecute(t *testing.T) {
	var gotReq openaiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected auth: %s", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decode request: %v", err)
		}

		resp := openaiResponse{
			ID:    "chatcmpl-123",
			Model: "gpt-4o-mini",
			Choices: []openaiChoice{
				{
					Message:      openaiMessage{Role: "assistant", Content: "func Add(a, b int) int { return a + b }"},
					FinishReason: "stop",
				},
			},
			Usage: openaiUsage{PromptTokens: 10, CompletionTokens: 8, TotalTokens: 18},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	p := NewOpenAIProvider(config.ProviderConfig{
		Name:    "cloud",
		BaseURL: server.URL,
		APIKey:  "test-key",
		Model:   "gpt-4o-mini",
	}, newTestLogger())

	result, err := p.Execute(context.Background(), domain.ProviderRequest{
		Role:         "developer",
		Tool:         "generate_code",
		Instructions: "Generate source code for the described change.",
		Input:        "write an add function",
		Params:       json.RawMessage(`{"language":"go"}`),
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if result.Output == "" {
		t.Error("expected non-empty output")
	}
	if result.Model != "gpt-4o-mini" {
		t.Errorf("model = %q, want gpt-4o-mini", result.Model)
	}
	if result.Usage.TotalTokens != 18 {
		t.Errorf("total tokens = %d, want 18", result.Usage.TotalTokens)
	}

	if len(gotReq.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(gotReq.Messages))
	}
	if gotReq.Messages[0].Role != "system" {
		t.Errorf("first message role = %q, want system", gotReq.Messages[0].Role)
	}
	if !strings.Contains(gotReq.Messages[0].Content, "generate_code") {
		t.Error("system prompt should mention the tool")
	}
	if !strings.Contains(gotReq.Messages[1].Content, "write an add function") {
		t.Error("user message should carry the query text")
	}
	if !strings.Contains(gotReq.Messages[1].Content, `"language":"go"`) {
		t.Error("user message should carry the validated parameters")
	}
}

func TestOpenAIProviderJSONShape(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openaiRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.ResponseFormat == nil || req.ResponseFormat.Type != "json_object" {
			t.Error("expected json_object response format")
		}

		resp := openaiResponse{
			Model: "gpt-4o-mini",
			Choices: []openaiChoice{
				{Message: openaiMessage{Role: "assistant", Content: "```json\n{\"ok\":true}\n```"}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	p := NewOpenAIProvider(config.ProviderConfig{
		Name:    "cloud",
		BaseURL: server.URL,
		Model:   "gpt-4o-mini",
	}, newTestLogger())

	result, err := p.Execute(context.Background(), domain.ProviderRequest{
		Tool:  "estimate_effort",
		Input: "estimate",
		Shape: domain.OutputJSON,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Output != `{"ok":true}` {
		t.Errorf("output = %q, want fenced JSON stripped", result.Output)
	}
}

func TestOpenAIProviderErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{"rate limited", http.StatusTooManyRequests, domain.ErrRateLimit},
		{"unauthorized", http.StatusUnauthorized, domain.ErrAuthInvalid},
		{"gateway timeout", http.StatusGatewayTimeout, domain.ErrProviderTimeout},
		{"server error", http.StatusInternalServerError, domain.ErrProviderFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", tt.status)
			}))
			defer server.Close()

			p := NewOpenAIProvider(config.ProviderConfig{
				Name:    "cloud",
				BaseURL: server.URL,
				Model:   "gpt-4o-mini",
			}, newTestLogger())

			_, err := p.Execute(context.Background(), domain.ProviderRequest{Input: "x"})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestOpenAIProviderEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(openaiResponse{Model: "gpt-4o-mini"})
	}))
	defer server.Close()

	p := NewOpenAIProvider(config.ProviderConfig{
		Name:    "cloud",
		BaseURL: server.URL,
		Model:   "gpt-4o-mini",
	}, newTestLogger())

	_, err := p.Execute(context.Background(), domain.ProviderRequest{Input: "x"})
	if !errors.Is(err, domain.ErrProviderFailure) {
		t.Errorf("error = %v, want ErrProviderFailure", err)
	}
}
