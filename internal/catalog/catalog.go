// Package catalog holds the validated role/tool catalog. The catalog is
// built once at startup, is immutable afterwards, and may be read
// concurrently without synchronization; reload swaps the whole snapshot
// atomically through Registry.
package catalog

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/kaptinlin/jsonschema"

	"roleroute/internal/domain"
)

// tagPattern is one compiled capability tag. Tags match on word
// boundaries, case-insensitively, so "test" does not match "latest".
type tagPattern struct {
	raw string
	re  *regexp.Regexp
}

// Tool is a catalog entry: the declared tool plus its owning role, the
// resolved provider chain, the compiled parameter schema, and compiled
// tag patterns.
type Tool struct {
	domain.Tool
	RoleID string

	chain  []string
	schema *jsonschema.Schema
	tags   []tagPattern
}

// Chain returns the tool's resolved provider fallback chain.
func (t *Tool) Chain() []string { return t.chain }

// ValidateParams checks params against the tool's declared schema.
// Tools without a schema accept any parameters.
func (t *Tool) ValidateParams(params map[string]any) error {
	if t.schema == nil {
		return nil
	}
	if params == nil {
		params = map[string]any{}
	}
	result := t.schema.Validate(params)
	if !result.IsValid() {
		return domain.NewDomainError("Tool.ValidateParams",
			domain.ErrInvalidParameters, fmt.Sprintf("%s: %s", t.ID, result.Error()))
	}
	return nil
}

// MatchTags returns how many distinct capability tags of this tool are
// present in the normalized query text.
func (t *Tool) MatchTags(text string) int {
	n := 0
	for _, tp := range t.tags {
		if tp.re.MatchString(text) {
			n++
		}
	}
	return n
}

// Role is a catalog entry: the declared role plus an index of its tools.
type Role struct {
	domain.Role

	tools []*Tool
	byID  map[string]*Tool
}

// Tools returns the role's tools in declared order. Declaration order is
// part of the configuration contract: it breaks selection-score ties.
func (r *Role) Tools() []*Tool { return r.tools }

// Tool returns the role's tool with the given ID.
func (r *Role) Tool(id string) (*Tool, bool) {
	t, ok := r.byID[id]
	return t, ok
}

// Catalog is an immutable snapshot of all roles, tools, and the
// configured default role.
type Catalog struct {
	roles       []*Role
	byID        map[string]*Role
	toolOwner   map[string]string // tool ID -> first owning role ID
	defaultRole string
}

// Roles returns all roles in declared order.
func (c *Catalog) Roles() []*Role { return c.roles }

// LookupRole returns the role with the given ID.
func (c *Catalog) LookupRole(id string) (*Role, error) {
	r, ok := c.byID[id]
	if !ok {
		return nil, domain.NewDomainError("Catalog.LookupRole", domain.ErrInvalidRole, id)
	}
	return r, nil
}

// LookupTool returns the tool with the given ID within the given role.
func (c *Catalog) LookupTool(roleID, toolID string) (*Tool, error) {
	r, err := c.LookupRole(roleID)
	if err != nil {
		return nil, err
	}
	t, ok := r.Tool(toolID)
	if !ok {
		return nil, domain.NewDomainError("Catalog.LookupTool", domain.ErrInvalidTool, toolID)
	}
	return t, nil
}

// ToolOwner returns the role that declares the given tool ID, for
// distinguishing an unknown tool from a tool hinted under the wrong role.
func (c *Catalog) ToolOwner(toolID string) (string, bool) {
	owner, ok := c.toolOwner[toolID]
	return owner, ok
}

// DefaultRole returns the configured low-confidence fallback role.
func (c *Catalog) DefaultRole() *Role {
	return c.byID[c.defaultRole]
}

// buildError accumulates catalog construction problems so the operator
// sees all of them at once instead of fixing them one restart at a time.
type buildError struct {
	problems []string
}

func (e *buildError) add(format string, args ...any) {
	e.problems = append(e.problems, fmt.Sprintf(format, args...))
}

func (e *buildError) err() error {
	if len(e.problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w:\n  - %s", domain.ErrCatalogInvalid, strings.Join(e.problems, "\n  - "))
}

// Build validates the declared roles against the set of configured
// provider names and returns an immutable catalog. It fails fast on any
// invariant violation: duplicate role or tool identifiers, a role with
// zero tools, a chain referencing an undeclared provider, a duplicate
// provider within a chain, a non-unique role priority, an invalid
// parameter schema, or a missing default role.
func Build(roles []domain.Role, defaultRole string, providers map[string]bool) (*Catalog, error) {
	be := &buildError{}
	if len(roles) == 0 {
		be.add("catalog declares no roles")
	}

	c := &Catalog{
		byID:        make(map[string]*Role, len(roles)),
		toolOwner:   make(map[string]string),
		defaultRole: defaultRole,
	}
	compiler := jsonschema.NewCompiler()
	priorities := make(map[int]string, len(roles))

	for _, decl := range roles {
		if decl.ID == "" {
			be.add("role with empty id")
			continue
		}
		if _, dup := c.byID[decl.ID]; dup {
			be.add("duplicate role %q", decl.ID)
			continue
		}
		if prev, taken := priorities[decl.Priority]; taken {
			be.add("roles %q and %q share priority %d", prev, decl.ID, decl.Priority)
		} else {
			priorities[decl.Priority] = decl.ID
		}
		if len(decl.Tools) == 0 {
			be.add("role %q has zero tools", decl.ID)
		}
		if decl.DefaultProvider != "" && !providers[decl.DefaultProvider] {
			be.add("role %q: default provider %q is not declared", decl.ID, decl.DefaultProvider)
		}

		role := &Role{
			Role: decl,
			byID: make(map[string]*Tool, len(decl.Tools)),
		}
		for i := range decl.Tools {
			td := decl.Tools[i]
			if td.ID == "" {
				be.add("role %q: tool with empty id", decl.ID)
				continue
			}
			if _, dup := role.byID[td.ID]; dup {
				be.add("role %q: duplicate tool %q", decl.ID, td.ID)
				continue
			}

			tool := &Tool{Tool: td, RoleID: decl.ID}
			tool.chain = decl.Chain(&td)
			if len(tool.chain) == 0 {
				be.add("role %q tool %q: no providers and no role default", decl.ID, td.ID)
			}
			seen := make(map[string]bool, len(tool.chain))
			for _, p := range tool.chain {
				if !providers[p] {
					be.add("role %q tool %q: provider %q is not declared", decl.ID, td.ID, p)
				}
				if seen[p] {
					be.add("role %q tool %q: provider %q appears twice in chain", decl.ID, td.ID, p)
				}
				seen[p] = true
			}

			if len(td.Params) > 0 {
				schema, err := compiler.Compile([]byte(td.Params))
				if err != nil {
					be.add("role %q tool %q: invalid params schema: %v", decl.ID, td.ID, err)
				} else {
					tool.schema = schema
				}
			}

			for _, raw := range td.Tags {
				tag := strings.ToLower(strings.TrimSpace(raw))
				if tag == "" {
					continue
				}
				re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(tag) + `\b`)
				if err != nil {
					be.add("role %q tool %q: tag %q: %v", decl.ID, td.ID, raw, err)
					continue
				}
				tool.tags = append(tool.tags, tagPattern{raw: tag, re: re})
			}

			role.tools = append(role.tools, tool)
			role.byID[td.ID] = tool
			if _, owned := c.toolOwner[td.ID]; !owned {
				c.toolOwner[td.ID] = decl.ID
			}
		}

		c.roles = append(c.roles, role)
		c.byID[decl.ID] = role
	}

	if defaultRole == "" {
		be.add("no default role configured")
	} else if _, ok := c.byID[defaultRole]; !ok && len(roles) > 0 {
		be.add("default role %q is not declared", defaultRole)
	}

	if err := be.err(); err != nil {
		return nil, err
	}
	return c, nil
}

// RolesByPriority returns the roles sorted by declared priority
// (ascending). Used by the detector to break score ties deterministically.
func (c *Catalog) RolesByPriority() []*Role {
	out := make([]*Role, len(c.roles))
	copy(out, c.roles)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority < out[j].Priority
	})
	return out
}

// Registry publishes the current catalog snapshot. Reload swaps the
// pointer atomically: an in-flight request sees the old or the new
// catalog in its entirety, never a mix.
type Registry struct {
	current atomic.Pointer[Catalog]
}

// NewRegistry creates a registry serving the given catalog.
func NewRegistry(c *Catalog) *Registry {
	r := &Registry{}
	r.current.Store(c)
	return r
}

// Snapshot returns the current catalog. Callers hold the snapshot for
// the duration of one request so all steps see a consistent catalog.
func (r *Registry) Snapshot() *Catalog {
	return r.current.Load()
}

// Swap atomically replaces the published catalog.
func (r *Registry) Swap(c *Catalog) {
	r.current.Store(c)
}
