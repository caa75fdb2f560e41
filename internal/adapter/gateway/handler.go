package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"roleroute/internal/adapter/audit"
	"roleroute/internal/catalog"
	"roleroute/internal/domain"
	"roleroute/internal/usecase"
	"roleroute/internal/usecase/health"
)

// HandlerDeps holds dependencies needed by RPC handlers.
type HandlerDeps struct {
	Router   *usecase.Router
	Registry *catalog.Registry
	Audit    *audit.SQLiteStore // can be nil (audit disabled)
	Health   *health.Monitor    // can be nil (health monitor disabled)
	Reload   func(ctx context.Context) error
	Logger   *slog.Logger
	// Concurrency is the configured route_all fan-out bound, applied when
	// the request does not set its own.
	Concurrency int
}

// RegisterDefaultHandlers registers all built-in RPC handlers on the server.
func RegisterDefaultHandlers(s *Server, deps HandlerDeps) {
	s.RegisterHandler("route", routeHandler(deps))
	s.RegisterHandler("route_all", routeAllHandler(deps))
	s.RegisterHandler("catalog", catalogHandler(deps))
	s.RegisterHandler("status", rpcStatusHandler(deps))
	s.RegisterHandler("reload", reloadHandler(deps))
	if deps.Audit != nil {
		s.RegisterHandler("history", historyHandler(deps))
	}
}

// --- route ---

type routeRequest struct {
	Query   string            `json:"query"`
	Role    string            `json:"role,omitempty"`
	Tool    string            `json:"tool,omitempty"`
	Params  map[string]any    `json:"params,omitempty"`
	Context map[string]string `json:"context,omitempty"`
	UserID  string            `json:"user_id,omitempty"`
}

func (r routeRequest) toQuery() domain.Query {
	return domain.Query{
		Text:     r.Query,
		RoleHint: r.Role,
		ToolHint: r.Tool,
		Params:   r.Params,
		Context:  r.Context,
		UserID:   r.UserID,
	}
}

func routeHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, client *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		var req routeRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, domain.ErrRPCInvalidPayload
		}
		if req.Query == "" && req.Tool == "" {
			return nil, domain.ErrRPCInvalidPayload
		}

		result, err := deps.Router.Route(ctx, req.toQuery())
		if err != nil {
			return nil, err
		}
		return json.Marshal(result)
	}
}

// --- route_all ---

type routeAllRequest struct {
	routeRequest
	Roles       []string `json:"roles,omitempty"`
	Concurrency int      `json:"concurrency,omitempty"`
}

func routeAllHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, client *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		var req routeAllRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, domain.ErrRPCInvalidPayload
		}
		if req.Query == "" {
			return nil, domain.ErrRPCInvalidPayload
		}

		concurrency := req.Concurrency
		if concurrency <= 0 {
			concurrency = deps.Concurrency
		}

		result, err := deps.Router.RouteAll(ctx, req.toQuery(), req.Roles, concurrency)
		if err != nil {
			return nil, err
		}
		return json.Marshal(result)
	}
}

// --- catalog ---

type catalogTool struct {
	ID          string             `json:"id"`
	Description string             `json:"description"`
	Output      domain.OutputShape `json:"output"`
	Tags        []string           `json:"tags"`
	Providers   []string           `json:"providers"`
}

type catalogRole struct {
	ID          string        `json:"id"`
	Description string        `json:"description"`
	Priority    int           `json:"priority"`
	Default     bool          `json:"default"`
	Tools       []catalogTool `json:"tools"`
}

func catalogHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, client *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		snap := deps.Registry.Snapshot()
		defaultID := snap.DefaultRole().ID

		roles := make([]catalogRole, 0, len(snap.Roles()))
		for _, role := range snap.RolesByPriority() {
			cr := catalogRole{
				ID:          role.ID,
				Description: role.Description,
				Priority:    role.Priority,
				Default:     role.ID == defaultID,
			}
			for _, tool := range role.Tools() {
				cr.Tools = append(cr.Tools, catalogTool{
					ID:          tool.ID,
					Description: tool.Description,
					Output:      tool.Output,
					Tags:        tool.Tags,
					Providers:   tool.Chain(),
				})
			}
			roles = append(roles, cr)
		}
		return json.Marshal(map[string]any{"roles": roles})
	}
}

// --- status ---

func rpcStatusHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, client *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		status := map[string]any{
			"roles": len(deps.Registry.Snapshot().Roles()),
		}
		if deps.Health != nil {
			status["providers"] = deps.Health.Snapshot()
		}
		if deps.Audit != nil {
			counts, err := deps.Audit.CountByStatus(ctx)
			if err == nil {
				status["invocations"] = counts
			}
		}
		return json.Marshal(status)
	}
}

// --- reload ---

func reloadHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, client *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		if deps.Reload == nil {
			return nil, domain.ErrRPCMethodNotFound
		}
		start := time.Now()
		if err := deps.Reload(ctx); err != nil {
			return nil, err
		}
		deps.Logger.Info("catalog reloaded", "client", client.Name, "elapsed", time.Since(start))
		return json.Marshal(map[string]any{"reloaded": true})
	}
}

// --- history ---

type historyRequest struct {
	UserID string `json:"user_id"`
	Limit  int    `json:"limit,omitempty"`
}

func historyHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, client *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		var req historyRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, domain.ErrRPCInvalidPayload
		}
		if req.UserID == "" {
			return nil, domain.ErrRPCInvalidPayload
		}

		entries, err := deps.Audit.ListByUser(ctx, req.UserID, req.Limit)
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]any{"entries": entries})
	}
}
