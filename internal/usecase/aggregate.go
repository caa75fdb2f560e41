package usecase

import (
	"context"
	"sync"
	"time"

	"roleroute/internal/domain"
)

const defaultAggregateConcurrency = 3

// RouteAll is the explicit aggregate operation: it runs one independent
// Route call per requested role and merges the results. Aggregation is
// never an emergent effect of low confidence; callers opt into it here.
// An empty roles slice spans every role in the current catalog.
//
// Per-role failures are reflected in the corresponding result's status;
// RouteAll itself fails only when a requested role does not exist.
func (r *Router) RouteAll(ctx context.Context, q domain.Query, roles []string, concurrency int) (*domain.AggregateResult, error) {
	start := time.Now()
	snap := r.registry.Snapshot()

	if len(roles) == 0 {
		for _, role := range snap.Roles() {
			roles = append(roles, role.ID)
		}
	}
	// Validate up front so an aggregate with a typo fails whole, before
	// any provider I/O.
	for _, id := range roles {
		if _, err := snap.LookupRole(id); err != nil {
			return nil, domain.WrapOp("Router.RouteAll", err)
		}
	}
	if concurrency <= 0 {
		concurrency = defaultAggregateConcurrency
	}

	agg := &domain.AggregateResult{
		RequestID: newRequestID(),
		Results:   make([]domain.InvocationResult, len(roles)),
	}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	for i, roleID := range roles {
		wg.Add(1)
		go func(i int, roleID string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			call := q
			call.RoleHint = roleID
			// Tool hints and per-tool params do not transfer across roles.
			call.ToolHint = ""
			call.Params = nil

			res, err := r.Route(ctx, call)
			if err != nil {
				r.logger.Warn("aggregate role call failed",
					"aggregate_id", agg.RequestID, "role", roleID, "error", err)
			}
			agg.Results[i] = *res
		}(i, roleID)
	}
	wg.Wait()

	agg.Elapsed = time.Since(start)
	return agg, nil
}
