package usecase

import (
	"fmt"

	"roleroute/internal/catalog"
	"roleroute/internal/domain"
)

// Selector picks one tool within a resolved role using the same
// tag-scoring method as the detector, scoped to that role's tools.
type Selector struct{}

// NewSelector creates a selector.
func NewSelector() *Selector { return &Selector{} }

// Select returns the role's highest-scoring tool for the text. Among
// equal scores the first tool in the role's declared order wins; tool
// declaration order is a documented part of the configuration contract.
// A catalog role always has at least one tool, so Select never returns nil.
func (s *Selector) Select(role *catalog.Role, text string) *catalog.Tool {
	var best *catalog.Tool
	bestScore := -1
	for _, tool := range role.Tools() {
		if score := tool.MatchTags(text); score > bestScore {
			best = tool
			bestScore = score
		}
	}
	return best
}

// Validate checks an explicit tool hint against the resolved role.
// A hint that exists under a different role fails with ToolRoleMismatch
// so the caller can tell a typo from a misdirected request.
func (s *Selector) Validate(cat *catalog.Catalog, role *catalog.Role, toolHint string) (*catalog.Tool, error) {
	if tool, ok := role.Tool(toolHint); ok {
		return tool, nil
	}
	if owner, ok := cat.ToolOwner(toolHint); ok {
		return nil, domain.NewDomainError("Selector.Validate", domain.ErrToolRoleMismatch,
			fmt.Sprintf("tool %q belongs to role %q, not %q", toolHint, owner, role.ID))
	}
	return nil, domain.NewDomainError("Selector.Validate", domain.ErrInvalidTool, toolHint)
}
